package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/entrhq/webpilot/pkg/browser"
)

const (
	DefaultBrowserKind   = "chrome"
	DefaultWindowWidth   = 1280
	DefaultWindowHeight  = 720
	DefaultInitialURL    = "https://www.google.com"
	DefaultSearchURL     = "https://www.google.com"
	DefaultDriverPort    = 9515
	DefaultCDPPort       = 9222
	DefaultLaunchTimeout = 30 * time.Second
	DefaultTransport     = TransportStdio
	DefaultHTTPHost      = "127.0.0.1"
	DefaultHTTPPort      = 8080
	DefaultHTTPMaxConns  = 64
	DefaultLogLevel      = "info"

	TransportStdio = "stdio"
	TransportHTTP  = "http"
)

// Section is one independently validated group of settings.
type Section interface {
	// ID returns the key the section is stored under.
	ID() string

	// Validate reports the first invalid value in the section.
	Validate() error

	// Reset restores the section defaults.
	Reset()
}

// BrowserSection configures the browser being driven.
type BrowserSection struct {
	Kind           string   `yaml:"kind"`
	BinaryPath     string   `yaml:"binary_path,omitempty"`
	Headless       bool     `yaml:"headless"`
	Width          int      `yaml:"width"`
	Height         int      `yaml:"height"`
	InitialURL     string   `yaml:"initial_url"`
	SearchURL      string   `yaml:"search_url"`
	HighlightMouse bool     `yaml:"highlight_mouse"`
	Undetected     bool     `yaml:"undetected"`
	ExtraArgs      []string `yaml:"extra_args,omitempty"`
}

func (s *BrowserSection) ID() string { return "browser" }

func (s *BrowserSection) Reset() {
	*s = BrowserSection{
		Kind:       DefaultBrowserKind,
		Headless:   true,
		Width:      DefaultWindowWidth,
		Height:     DefaultWindowHeight,
		InitialURL: DefaultInitialURL,
		SearchURL:  DefaultSearchURL,
	}
}

func (s *BrowserSection) Validate() error {
	if _, err := browser.ParseKind(s.Kind); err != nil {
		return err
	}
	if s.Width <= 0 || s.Height <= 0 {
		return fmt.Errorf("window size must be positive, got %dx%d", s.Width, s.Height)
	}
	for name, raw := range map[string]string{"initial_url": s.InitialURL, "search_url": s.SearchURL} {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" {
			return fmt.Errorf("%s must be an absolute URL, got %q", name, raw)
		}
	}
	return nil
}

// DriverSection configures how the WebDriver server is obtained.
type DriverSection struct {
	Path          string        `yaml:"path,omitempty"`
	Port          int           `yaml:"port"`
	AutoStart     bool          `yaml:"auto_start"`
	AutoDownload  bool          `yaml:"auto_download"`
	WebDriverURL  string        `yaml:"webdriver_url,omitempty"`
	CacheDir      string        `yaml:"cache_dir,omitempty"`
	LaunchTimeout time.Duration `yaml:"launch_timeout"`
}

func (s *DriverSection) ID() string { return "driver" }

func (s *DriverSection) Reset() {
	*s = DriverSection{
		Port:          DefaultDriverPort,
		AutoStart:     true,
		AutoDownload:  true,
		LaunchTimeout: DefaultLaunchTimeout,
	}
}

func (s *DriverSection) Validate() error {
	if s.Port < 0 || s.Port > 65535 {
		return fmt.Errorf("driver port out of range: %d", s.Port)
	}
	if s.LaunchTimeout <= 0 {
		return fmt.Errorf("launch timeout must be positive, got %s", s.LaunchTimeout)
	}
	if s.WebDriverURL != "" {
		if u, err := url.Parse(s.WebDriverURL); err != nil || u.Host == "" {
			return fmt.Errorf("invalid webdriver url %q", s.WebDriverURL)
		}
	}
	return nil
}

// SessionSection configures how and when the browser session is established.
type SessionSection struct {
	Mode        string        `yaml:"mode"`
	CDPPort     int           `yaml:"cdp_port"`
	CDPURL      string        `yaml:"cdp_url,omitempty"`
	OpenOnStart bool          `yaml:"open_on_start"`
	IdleTimeout time.Duration `yaml:"idle_timeout"`
}

func (s *SessionSection) ID() string { return "session" }

func (s *SessionSection) Reset() {
	*s = SessionSection{
		Mode:    string(browser.ModeWebDriver),
		CDPPort: DefaultCDPPort,
	}
}

func (s *SessionSection) Validate() error {
	if _, err := browser.ParseConnectionMode(s.Mode); err != nil {
		return err
	}
	if s.CDPPort < 0 || s.CDPPort > 65535 {
		return fmt.Errorf("cdp port out of range: %d", s.CDPPort)
	}
	if s.IdleTimeout < 0 {
		return fmt.Errorf("idle timeout must not be negative, got %s", s.IdleTimeout)
	}
	return nil
}

// ServerSection configures the MCP transport.
type ServerSection struct {
	Transport string `yaml:"transport"`
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	MaxConns  int    `yaml:"max_conns"`
	LogLevel  string `yaml:"log_level"`
}

func (s *ServerSection) ID() string { return "server" }

func (s *ServerSection) Reset() {
	*s = ServerSection{
		Transport: DefaultTransport,
		Host:      DefaultHTTPHost,
		Port:      DefaultHTTPPort,
		MaxConns:  DefaultHTTPMaxConns,
		LogLevel:  DefaultLogLevel,
	}
}

func (s *ServerSection) Validate() error {
	switch s.Transport {
	case TransportStdio, TransportHTTP:
	default:
		return fmt.Errorf("unknown transport %q (must be stdio or http)", s.Transport)
	}
	if s.Port <= 0 || s.Port > 65535 {
		return fmt.Errorf("http port out of range: %d", s.Port)
	}
	if s.MaxConns <= 0 {
		return fmt.Errorf("max_conns must be positive, got %d", s.MaxConns)
	}
	return nil
}

// ToolsSection lists tools hidden from clients. Entries are tool names or
// glob patterns such as "*_tab".
type ToolsSection struct {
	Disabled []string `yaml:"disabled,omitempty"`
}

func (s *ToolsSection) ID() string { return "tools" }

func (s *ToolsSection) Reset() { *s = ToolsSection{} }

func (s *ToolsSection) Validate() error {
	_, err := NewToolFilter(s.Disabled)
	return err
}

// Settings is the fully resolved configuration. It is read-only once Load returns.
type Settings struct {
	Browser BrowserSection `yaml:"browser"`
	Driver  DriverSection  `yaml:"driver"`
	Session SessionSection `yaml:"session"`
	Server  ServerSection  `yaml:"server"`
	Tools   ToolsSection   `yaml:"tools"`
}

// Defaults returns settings with every section at its default.
func Defaults() *Settings {
	s := &Settings{}
	for _, sec := range s.Sections() {
		sec.Reset()
	}
	return s
}

// Sections returns the sections in a fixed order.
func (s *Settings) Sections() []Section {
	return []Section{&s.Browser, &s.Driver, &s.Session, &s.Server, &s.Tools}
}

// Validate validates every section and the combinations between them.
func (s *Settings) Validate() error {
	var errs []error
	for _, sec := range s.Sections() {
		if err := sec.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", sec.ID(), err))
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	kind, _ := browser.ParseKind(s.Browser.Kind)
	mode, _ := browser.ParseConnectionMode(s.Session.Mode)
	if mode == browser.ModeCDP && !kind.Chromium() {
		return fmt.Errorf("session: cdp mode requires chrome or edge, got %s", kind)
	}
	return nil
}

// BrowserSpec converts the browser section.
func (s *Settings) BrowserSpec() browser.BrowserSpec {
	kind, _ := browser.ParseKind(s.Browser.Kind)
	return browser.BrowserSpec{
		Kind:       kind,
		BinaryPath: s.Browser.BinaryPath,
		Headless:   s.Browser.Headless,
		Window:     browser.WindowSize{Width: s.Browser.Width, Height: s.Browser.Height},
		InitialURL: s.Browser.InitialURL,
		SearchURL:  s.Browser.SearchURL,
		Stealth:    s.Browser.Undetected,
		ExtraArgs:  append([]string(nil), s.Browser.ExtraArgs...),
	}
}

// DriverSpec converts the driver section. An empty cache directory resolves
// to the user cache directory.
func (s *Settings) DriverSpec() browser.DriverSpec {
	cacheDir := s.Driver.CacheDir
	if cacheDir == "" {
		cacheDir = DefaultCacheDir()
	}
	return browser.DriverSpec{
		Path:         s.Driver.Path,
		Port:         s.Driver.Port,
		AutoDownload: s.Driver.AutoDownload,
		AutoLaunch:   s.Driver.AutoStart,
		RemoteURL:    s.Driver.WebDriverURL,
		CacheDir:     cacheDir,
	}
}

// CDPSpec converts the CDP part of the session section.
func (s *Settings) CDPSpec() browser.CDPSpec {
	return browser.CDPSpec{Port: s.Session.CDPPort, Endpoint: s.Session.CDPURL}
}

// ConnectionMode returns the configured connection mode.
func (s *Settings) ConnectionMode() browser.ConnectionMode {
	mode, _ := browser.ParseConnectionMode(s.Session.Mode)
	return mode
}

// DefaultCacheDir returns the directory downloaded drivers are cached in.
func DefaultCacheDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "webpilot", "drivers")
	}
	return filepath.Join(os.TempDir(), "webpilot", "drivers")
}
