package webdriver

import (
	"fmt"

	"github.com/entrhq/webpilot/pkg/browser"
)

// keyCodes maps canonical key names to WebDriver key code points.
var keyCodes = map[string]string{
	browser.KeyControl:    "\ue009",
	browser.KeyShift:      "\ue008",
	browser.KeyAlt:        "\ue00a",
	browser.KeyMeta:       "\ue03d",
	browser.KeyEnter:      "\ue007",
	browser.KeyTab:        "\ue004",
	browser.KeyEscape:     "\ue00c",
	browser.KeyBackspace:  "\ue003",
	browser.KeyDelete:     "\ue017",
	browser.KeySpace:      "\ue00d",
	browser.KeyInsert:     "\ue016",
	browser.KeyHome:       "\ue011",
	browser.KeyEnd:        "\ue010",
	browser.KeyPageUp:     "\ue00e",
	browser.KeyPageDown:   "\ue00f",
	browser.KeyArrowLeft:  "\ue012",
	browser.KeyArrowUp:    "\ue013",
	browser.KeyArrowRight: "\ue014",
	browser.KeyArrowDown:  "\ue015",
}

func init() {
	for i := 1; i <= 12; i++ {
		keyCodes[fmt.Sprintf("F%d", i)] = string(rune(0xE031 + i - 1))
	}
}

// keyValue returns the value to send for a canonical key name.
func keyValue(name string) (string, error) {
	if code, ok := keyCodes[name]; ok {
		return code, nil
	}
	if len([]rune(name)) == 1 {
		return name, nil
	}
	return "", fmt.Errorf("no WebDriver key code for %q", name)
}

type action map[string]any

type source struct {
	Type       string         `json:"type"`
	ID         string         `json:"id"`
	Parameters map[string]any `json:"parameters,omitempty"`
	Actions    []action       `json:"actions"`
}

func pointerMove(x, y int) action {
	return action{"type": "pointerMove", "duration": 0, "origin": "viewport", "x": x, "y": y}
}

// pointerActions encodes in as a W3C actions payload.
func pointerActions(in browser.PointerInput) (map[string]any, error) {
	if in.Kind == browser.PointerWheel {
		wheel := source{
			Type: "wheel",
			ID:   "wheel",
			Actions: []action{{
				"type":     "scroll",
				"origin":   "viewport",
				"x":        in.X,
				"y":        in.Y,
				"deltaX":   in.DeltaX,
				"deltaY":   in.DeltaY,
				"duration": 0,
			}},
		}
		return map[string]any{"actions": []source{wheel}}, nil
	}

	seq := []action{pointerMove(in.X, in.Y)}
	down := action{"type": "pointerDown", "button": 0}
	up := action{"type": "pointerUp", "button": 0}
	switch in.Kind {
	case browser.PointerMove:
	case browser.PointerClick:
		seq = append(seq, down, up)
	case browser.PointerDown:
		seq = append(seq, down)
	case browser.PointerUp:
		seq = append(seq, up)
	default:
		return nil, fmt.Errorf("unsupported pointer operation %s", in.Kind)
	}

	mouse := source{
		Type:       "pointer",
		ID:         "mouse",
		Parameters: map[string]any{"pointerType": "mouse"},
		Actions:    seq,
	}
	return map[string]any{"actions": []source{mouse}}, nil
}

// keyActions encodes in as a W3C actions payload. Text is typed one
// character at a time; a chord presses every key in order and releases them
// in reverse.
func keyActions(in browser.KeyInput) (map[string]any, error) {
	var seq []action
	if len(in.Chord) > 0 {
		values := make([]string, 0, len(in.Chord))
		for _, k := range in.Chord {
			v, err := keyValue(k)
			if err != nil {
				return nil, err
			}
			values = append(values, v)
		}
		for _, v := range values {
			seq = append(seq, action{"type": "keyDown", "value": v})
		}
		for i := len(values) - 1; i >= 0; i-- {
			seq = append(seq, action{"type": "keyUp", "value": values[i]})
		}
	} else {
		for _, r := range in.Text {
			v := string(r)
			if r == '\n' {
				v = keyCodes[browser.KeyEnter]
			}
			seq = append(seq, action{"type": "keyDown", "value": v}, action{"type": "keyUp", "value": v})
		}
	}
	if len(seq) == 0 {
		return nil, nil
	}
	kb := source{Type: "key", ID: "keyboard", Actions: seq}
	return map[string]any{"actions": []source{kb}}, nil
}
