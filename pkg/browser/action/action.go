// Package action turns high level browser actions into Session calls and
// captures the resulting state.
package action

import (
	"fmt"
	"strings"
	"time"
)

// Kind names an action.
type Kind string

const (
	Click          Kind = "click"
	Hover          Kind = "hover"
	Type           Kind = "type"
	ScrollDocument Kind = "scroll_document"
	ScrollAt       Kind = "scroll_at"
	KeyCombination Kind = "key_combination"
	DragAndDrop    Kind = "drag_and_drop"
	Back           Kind = "back"
	Forward        Kind = "forward"
	Navigate       Kind = "navigate"
	Search         Kind = "search"
	Wait           Kind = "wait"
	CurrentState   Kind = "current_state"
)

// DefaultScrollMagnitude is the scroll_at distance in pixels.
const DefaultScrollMagnitude = 800

// Action is one unit of work for the pipeline. Only the fields relevant to
// Kind are read.
type Action struct {
	Kind Kind

	X, Y         int
	DestX, DestY int

	Text              string
	PressEnter        bool
	ClearBeforeTyping bool

	Direction string
	Magnitude int

	Keys []string
	URL  string

	Duration time.Duration
}

// Validate checks the fields Kind needs.
func (a Action) Validate() error {
	switch a.Kind {
	case Click, Hover, Type:
		return checkPoint(a.X, a.Y)
	case ScrollAt:
		if err := checkPoint(a.X, a.Y); err != nil {
			return err
		}
		if a.Magnitude < 0 {
			return fmt.Errorf("magnitude must be non-negative, got %d", a.Magnitude)
		}
		return checkDirection(a.Direction)
	case ScrollDocument:
		return checkDirection(a.Direction)
	case DragAndDrop:
		if err := checkPoint(a.X, a.Y); err != nil {
			return err
		}
		return checkPoint(a.DestX, a.DestY)
	case KeyCombination:
		if len(a.Keys) == 0 {
			return fmt.Errorf("no keys provided")
		}
	case Navigate:
		if strings.TrimSpace(a.URL) == "" {
			return fmt.Errorf("url is required")
		}
	case Wait:
		if a.Duration < 0 {
			return fmt.Errorf("duration must be non-negative")
		}
	case Back, Forward, Search, CurrentState:
	default:
		return fmt.Errorf("unknown action %q", a.Kind)
	}
	return nil
}

func checkPoint(x, y int) error {
	if x < 0 || y < 0 {
		return fmt.Errorf("coordinates must be non-negative, got (%d, %d)", x, y)
	}
	return nil
}

func checkDirection(d string) error {
	switch d {
	case "up", "down", "left", "right":
		return nil
	default:
		return fmt.Errorf("invalid direction %q (must be up, down, left or right)", d)
	}
}

// NormalizeURL adds https:// to URLs without a scheme.
func NormalizeURL(raw string) string {
	u := strings.TrimSpace(raw)
	if strings.Contains(u, "://") {
		return u
	}
	for _, scheme := range []string{"about:", "data:", "file:", "chrome:", "javascript:", "blob:"} {
		if strings.HasPrefix(strings.ToLower(u), scheme) {
			return u
		}
	}
	return "https://" + u
}

// scrollDelta converts a direction and magnitude to wheel deltas.
func scrollDelta(direction string, magnitude int) (dx, dy int) {
	switch direction {
	case "up":
		return 0, -magnitude
	case "down":
		return 0, magnitude
	case "left":
		return -magnitude, 0
	case "right":
		return magnitude, 0
	}
	return 0, 0
}

// scrollDocumentScript scrolls by most of a viewport height, or half a
// viewport width.
func scrollDocumentScript(direction string) string {
	switch direction {
	case "up":
		return "window.scrollBy(0, -window.innerHeight * 0.8)"
	case "down":
		return "window.scrollBy(0, window.innerHeight * 0.8)"
	case "left":
		return "window.scrollBy(-window.innerWidth * 0.5, 0)"
	default:
		return "window.scrollBy(window.innerWidth * 0.5, 0)"
	}
}

func hitTestScript(x, y int) string {
	return fmt.Sprintf(`(() => {
  const el = document.elementFromPoint(%d, %d);
  return el ? el.tagName.toLowerCase() : null;
})()`, x, y)
}

func highlightScript(x, y int) string {
	return fmt.Sprintf(`(() => {
  let dot = document.getElementById('__wp_pointer');
  if (!dot) {
    dot = document.createElement('div');
    dot.id = '__wp_pointer';
    dot.style.cssText = 'position:fixed;width:16px;height:16px;margin:-8px 0 0 -8px;border-radius:50%%;' +
      'background:rgba(255,0,0,0.6);border:2px solid #fff;pointer-events:none;z-index:2147483647';
    (document.body || document.documentElement).appendChild(dot);
  }
  dot.style.left = '%dpx';
  dot.style.top = '%dpx';
  return true;
})()`, x, y)
}
