package webdriver

import (
	"github.com/entrhq/webpilot/pkg/browser"
)

// Capabilities builds the new-session payload for spec.
func Capabilities(spec browser.BrowserSpec) map[string]any {
	always := map[string]any{}

	switch spec.Kind {
	case browser.KindChrome, browser.KindEdge:
		opts := map[string]any{"args": browser.ChromiumArgs(spec)}
		if spec.BinaryPath != "" {
			opts["binary"] = spec.BinaryPath
		}
		if spec.Stealth {
			opts["excludeSwitches"] = []string{"enable-automation"}
			opts["useAutomationExtension"] = false
		}
		if spec.Kind == browser.KindEdge {
			always["browserName"] = "MicrosoftEdge"
			always["ms:edgeOptions"] = opts
		} else {
			always["browserName"] = "chrome"
			always["goog:chromeOptions"] = opts
		}
	case browser.KindFirefox:
		opts := map[string]any{"args": browser.FirefoxArgs(spec)}
		if spec.BinaryPath != "" {
			opts["binary"] = spec.BinaryPath
		}
		always["browserName"] = "firefox"
		always["moz:firefoxOptions"] = opts
	case browser.KindSafari:
		always["browserName"] = "safari"
	}

	return map[string]any{
		"capabilities": map[string]any{
			"alwaysMatch": always,
		},
	}
}

// cdpCommandPath is the vendor endpoint that forwards raw DevTools commands,
// or "" when the browser has none.
func cdpCommandPath(kind browser.Kind) string {
	switch kind {
	case browser.KindChrome:
		return "/goog/cdp/execute"
	case browser.KindEdge:
		return "/ms/cdp/execute"
	default:
		return ""
	}
}
