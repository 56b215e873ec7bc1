package config

import (
	"fmt"
	"strings"

	"github.com/gobwas/glob"
)

// ToolFilter decides whether a tool is disabled. Patterns use glob syntax, so
// a plain tool name matches only itself.
type ToolFilter struct {
	patterns []string
	globs    []glob.Glob
}

// NewToolFilter compiles the disabled tool patterns.
func NewToolFilter(patterns []string) (*ToolFilter, error) {
	f := &ToolFilter{}
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		g, err := glob.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid disabled tool pattern '%s': %w", p, err)
		}
		f.patterns = append(f.patterns, p)
		f.globs = append(f.globs, g)
	}
	return f, nil
}

// Disabled returns true if the tool matches any pattern.
func (f *ToolFilter) Disabled(name string) bool {
	if f == nil {
		return false
	}
	for _, g := range f.globs {
		if g.Match(name) {
			return true
		}
	}
	return false
}

// Patterns returns the compiled patterns in configuration order.
func (f *ToolFilter) Patterns() []string {
	if f == nil {
		return nil
	}
	return append([]string(nil), f.patterns...)
}

// splitList splits a comma separated list, dropping empty entries.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
