// Package stealth hides common automation markers from pages. Patches are
// registered as init scripts for future documents and evaluated in the
// current one. Applying them again is harmless: each script guards itself
// with a page marker and the Patcher remembers which init scripts a session
// already has.
package stealth

import (
	"context"
	"errors"
	"sync"

	"github.com/entrhq/webpilot/pkg/browser"
	"github.com/entrhq/webpilot/pkg/logging"
)

// Patcher applies Patches to sessions.
type Patcher struct {
	enabled bool
	patches []Patch
	logger  *logging.Logger

	mu         sync.Mutex
	registered map[string]map[string]bool
}

// New creates a patcher. A disabled patcher never touches a session.
func New(enabled bool, logger *logging.Logger) *Patcher {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Patcher{
		enabled:    enabled,
		patches:    Patches,
		logger:     logger,
		registered: make(map[string]map[string]bool),
	}
}

// Enabled reports whether the patcher does anything.
func (p *Patcher) Enabled() bool { return p.enabled }

// Apply runs every patch against the current tab of s and returns the names
// of the patches that did not fail. A failing patch is logged and skipped.
func (p *Patcher) Apply(ctx context.Context, s browser.Session) []string {
	if !p.enabled {
		return nil
	}

	var applied []string
	for _, patch := range p.patches {
		if err := ctx.Err(); err != nil {
			p.logger.Warnf("stealth patches interrupted: %v", err)
			return applied
		}
		script := patch.Script()

		if !p.isRegistered(s.ID(), patch.Name) {
			err := s.AddInitScript(ctx, script)
			switch {
			case err == nil:
				p.markRegistered(s.ID(), patch.Name)
			case errors.Is(err, errors.ErrUnsupported):
				p.logger.Debugf("stealth patch %s: init scripts unsupported, current document only", patch.Name)
			default:
				p.logger.Warnf("stealth patch %s not registered: %v", patch.Name, err)
				continue
			}
		}

		if _, err := s.Evaluate(ctx, script); err != nil {
			p.logger.Warnf("stealth patch %s failed on current page: %v", patch.Name, err)
			continue
		}
		applied = append(applied, patch.Name)
	}
	p.logger.Debugf("stealth patches applied to %s: %v", s.ID(), applied)
	return applied
}

// Forget drops what is known about a session once it is closed.
func (p *Patcher) Forget(sessionID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.registered, sessionID)
}

func (p *Patcher) isRegistered(sessionID, name string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.registered[sessionID][name]
}

func (p *Patcher) markRegistered(sessionID, name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.registered[sessionID] == nil {
		p.registered[sessionID] = make(map[string]bool)
	}
	p.registered[sessionID][name] = true
}
