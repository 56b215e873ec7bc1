package browser

import (
	"fmt"
	"strings"
)

// Kind identifies a browser family.
type Kind string

const (
	KindChrome  Kind = "chrome"
	KindEdge    Kind = "edge"
	KindFirefox Kind = "firefox"
	KindSafari  Kind = "safari"
)

// ParseKind parses a browser kind, accepting a few common aliases.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "chrome", "chromium", "google-chrome":
		return KindChrome, nil
	case "edge", "msedge":
		return KindEdge, nil
	case "firefox", "ff":
		return KindFirefox, nil
	case "safari":
		return KindSafari, nil
	default:
		return "", fmt.Errorf("unknown browser kind %q (must be chrome, edge, firefox or safari)", s)
	}
}

// Chromium reports whether the browser speaks the Chrome DevTools Protocol.
func (k Kind) Chromium() bool {
	return k == KindChrome || k == KindEdge
}

// ConnectionMode selects the protocol a Session uses.
type ConnectionMode string

const (
	// ModeWebDriver drives the browser through a W3C WebDriver server.
	ModeWebDriver ConnectionMode = "webdriver"
	// ModeCDP attaches directly to the browser's DevTools endpoint.
	ModeCDP ConnectionMode = "cdp"
)

// ParseConnectionMode parses a connection mode name.
func ParseConnectionMode(s string) (ConnectionMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "webdriver", "wd":
		return ModeWebDriver, nil
	case "cdp", "devtools":
		return ModeCDP, nil
	default:
		return "", fmt.Errorf("unknown connection mode %q (must be webdriver or cdp)", s)
	}
}

// WindowSize is a browser window size in CSS pixels.
type WindowSize struct {
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`
}

// BrowserSpec describes the browser to drive. It is immutable once the
// orchestrator has started.
type BrowserSpec struct {
	Kind       Kind
	BinaryPath string
	Headless   bool
	Window     WindowSize
	InitialURL string
	SearchURL  string
	Stealth    bool
	ExtraArgs  []string
}

// DriverSpec describes how the WebDriver server is obtained.
type DriverSpec struct {
	// Path pins the driver binary. When set no other location is tried.
	Path string

	// Port is the preferred listen port for a launched driver.
	Port int

	// AutoDownload allows fetching a matching driver release.
	AutoDownload bool

	// AutoLaunch starts the driver (or, in CDP mode, the browser) as a child process.
	AutoLaunch bool

	// RemoteURL points at an already running WebDriver server. Acquisition
	// and launching are skipped entirely when it is set.
	RemoteURL string

	// CacheDir is where downloaded drivers are kept between runs.
	CacheDir string
}

// CDPSpec describes how a DevTools endpoint is reached.
type CDPSpec struct {
	Port     int
	Endpoint string
}

// TabInfo is a snapshot of one browsing context.
type TabInfo struct {
	Handle string `json:"handle"`
	URL    string `json:"url"`
	Title  string `json:"title"`
	Active bool   `json:"active"`
}

// PointerKind enumerates low level pointer operations.
type PointerKind int

const (
	PointerMove PointerKind = iota
	PointerClick
	PointerDown
	PointerUp
	PointerWheel
)

func (k PointerKind) String() string {
	switch k {
	case PointerMove:
		return "move"
	case PointerClick:
		return "click"
	case PointerDown:
		return "down"
	case PointerUp:
		return "up"
	case PointerWheel:
		return "wheel"
	default:
		return fmt.Sprintf("pointer(%d)", int(k))
	}
}

// PointerInput is a single pointer operation in viewport coordinates.
// DeltaX and DeltaY are only used by PointerWheel.
type PointerInput struct {
	Kind   PointerKind
	X, Y   int
	DeltaX int
	DeltaY int
}

// KeyInput is either literal text to type or a chord of named keys pressed
// together and released in reverse order.
type KeyInput struct {
	Text  string
	Chord []string
}
