package browser

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Canonical key names. Single printable characters are passed through as-is.
const (
	KeyControl    = "Control"
	KeyShift      = "Shift"
	KeyAlt        = "Alt"
	KeyMeta       = "Meta"
	KeyEnter      = "Enter"
	KeyTab        = "Tab"
	KeyEscape     = "Escape"
	KeyBackspace  = "Backspace"
	KeyDelete     = "Delete"
	KeySpace      = "Space"
	KeyInsert     = "Insert"
	KeyHome       = "Home"
	KeyEnd        = "End"
	KeyPageUp     = "PageUp"
	KeyPageDown   = "PageDown"
	KeyArrowUp    = "ArrowUp"
	KeyArrowDown  = "ArrowDown"
	KeyArrowLeft  = "ArrowLeft"
	KeyArrowRight = "ArrowRight"
)

var keyAliases = map[string]string{
	"control":    KeyControl,
	"ctrl":       KeyControl,
	"shift":      KeyShift,
	"alt":        KeyAlt,
	"option":     KeyAlt,
	"meta":       KeyMeta,
	"cmd":        KeyMeta,
	"command":    KeyMeta,
	"super":      KeyMeta,
	"win":        KeyMeta,
	"enter":      KeyEnter,
	"return":     KeyEnter,
	"tab":        KeyTab,
	"escape":     KeyEscape,
	"esc":        KeyEscape,
	"backspace":  KeyBackspace,
	"delete":     KeyDelete,
	"del":        KeyDelete,
	"space":      KeySpace,
	"insert":     KeyInsert,
	"home":       KeyHome,
	"end":        KeyEnd,
	"pageup":     KeyPageUp,
	"pgup":       KeyPageUp,
	"pagedown":   KeyPageDown,
	"pgdn":       KeyPageDown,
	"arrowup":    KeyArrowUp,
	"up":         KeyArrowUp,
	"arrowdown":  KeyArrowDown,
	"down":       KeyArrowDown,
	"arrowleft":  KeyArrowLeft,
	"left":       KeyArrowLeft,
	"arrowright": KeyArrowRight,
	"right":      KeyArrowRight,
}

// NormalizeKey maps a user supplied key name to its canonical form.
// Function keys are returned as F1 to F12.
func NormalizeKey(name string) (string, error) {
	if utf8.RuneCountInString(name) == 1 {
		return name, nil
	}
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", fmt.Errorf("empty key name")
	}
	lower := strings.ToLower(trimmed)
	if canonical, ok := keyAliases[lower]; ok {
		return canonical, nil
	}
	var n int
	if _, err := fmt.Sscanf(lower, "f%d", &n); err == nil && n >= 1 && n <= 12 && lower == fmt.Sprintf("f%d", n) {
		return fmt.Sprintf("F%d", n), nil
	}
	return "", fmt.Errorf("unsupported key %q", name)
}

// NormalizeChord normalizes every key of a chord.
func NormalizeChord(keys []string) ([]string, error) {
	if len(keys) == 0 {
		return nil, fmt.Errorf("no keys given")
	}
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		canonical, err := NormalizeKey(k)
		if err != nil {
			return nil, err
		}
		out = append(out, canonical)
	}
	return out, nil
}
