// Package webdriver implements browser.Session over the W3C WebDriver HTTP
// protocol, as served by chromedriver, msedgedriver, geckodriver and
// safaridriver.
package webdriver

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/entrhq/webpilot/pkg/browser"
	"github.com/entrhq/webpilot/pkg/logging"
)

const defaultAttempts = 5

// Options configures NewSession.
type Options struct {
	HTTPClient *http.Client
	Logger     *logging.Logger
	// Attempts bounds how often session creation is tried while the server
	// is unreachable.
	Attempts uint
	// RetryInterval is the first delay between attempts.
	RetryInterval time.Duration
}

// Session is a WebDriver session. It implements browser.Session.
type Session struct {
	client *Client
	id     string
	kind   browser.Kind
	logger *logging.Logger

	mu          sync.Mutex
	initScripts []string
	seeded      map[string]int
	parked      string

	closeOnce sync.Once
	closeErr  error
}

var _ browser.Session = (*Session)(nil)

// NewSession creates a session on the server at baseURL for spec. Transport
// failures are retried with backoff; an answer from the server ends the
// retries. Failures wrap browser.ErrSessionInit.
func NewSession(ctx context.Context, baseURL string, spec browser.BrowserSpec, opts Options) (*Session, error) {
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.Attempts == 0 {
		opts.Attempts = defaultAttempts
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = 250 * time.Millisecond
	}

	root := NewClient(baseURL, opts.HTTPClient)
	payload := Capabilities(spec)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = opts.RetryInterval

	var created struct {
		SessionID    string         `json:"sessionId"`
		Capabilities map[string]any `json:"capabilities"`
	}
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := root.do(ctx, http.MethodPost, "/session", payload, &created)
		var perr *ProtocolError
		if errors.As(err, &perr) {
			return struct{}{}, backoff.Permanent(err)
		}
		if err != nil {
			opts.Logger.Debugf("new session attempt against %s failed: %v", baseURL, err)
		}
		return struct{}{}, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(opts.Attempts))
	if err != nil {
		return nil, browser.NewError(browser.ErrSessionInit, "new session", err)
	}
	if created.SessionID == "" {
		return nil, browser.Errorf(browser.ErrSessionInit, "new session", "server at %s returned no session id", baseURL)
	}

	s := &Session{
		client: NewClient(baseURL+"/session/"+created.SessionID, opts.HTTPClient),
		id:     created.SessionID,
		kind:   spec.Kind,
		logger: opts.Logger,
		seeded: make(map[string]int),
	}

	if !spec.Headless && spec.Window.Width > 0 && spec.Window.Height > 0 {
		rect := map[string]int{"width": spec.Window.Width, "height": spec.Window.Height}
		if err := s.client.do(ctx, http.MethodPost, "/window/rect", rect, nil); err != nil {
			s.logger.Warnf("failed to set window size: %v", err)
		}
	}

	opts.Logger.Infof("webdriver session %s created (%s)", s.id, spec.Kind)
	return s, nil
}

func (s *Session) ID() string                   { return s.id }
func (s *Session) Mode() browser.ConnectionMode { return browser.ModeWebDriver }

func (s *Session) Navigate(ctx context.Context, url string) error {
	return s.client.do(ctx, http.MethodPost, "/url", map[string]string{"url": url}, nil)
}

func (s *Session) Back(ctx context.Context) error {
	return s.client.do(ctx, http.MethodPost, "/back", nil, nil)
}

func (s *Session) Forward(ctx context.Context) error {
	return s.client.do(ctx, http.MethodPost, "/forward", nil, nil)
}

func (s *Session) Evaluate(ctx context.Context, expression string) (any, error) {
	expression = strings.TrimRight(strings.TrimSpace(expression), ";")
	body := map[string]any{
		"script": "return (" + expression + ");",
		"args":   []any{},
	}
	var out any
	if err := s.client.do(ctx, http.MethodPost, "/execute/sync", body, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// AddInitScript registers source through the vendor DevTools bridge. DevTools
// registrations are per tab, so the script is replayed on every tab the
// session switches to. Browsers without the bridge return
// errors.ErrUnsupported.
func (s *Session) AddInitScript(ctx context.Context, source string) error {
	if cdpCommandPath(s.kind) == "" {
		return fmt.Errorf("init scripts on %s: %w", s.kind, errors.ErrUnsupported)
	}
	s.mu.Lock()
	s.initScripts = append(s.initScripts, source)
	s.mu.Unlock()
	return s.seedCurrent(ctx)
}

// seedCurrent registers the init scripts the current tab has not seen yet.
func (s *Session) seedCurrent(ctx context.Context) error {
	path := cdpCommandPath(s.kind)
	if path == "" {
		return nil
	}
	handle, err := s.CurrentTab(ctx)
	if err != nil || handle == "" {
		return err
	}

	s.mu.Lock()
	pending := slices.Clone(s.initScripts[s.seeded[handle]:])
	s.mu.Unlock()

	for _, src := range pending {
		body := map[string]any{
			"cmd":    "Page.addScriptToEvaluateOnNewDocument",
			"params": map[string]string{"source": src},
		}
		if err := s.client.do(ctx, http.MethodPost, path, body, nil); err != nil {
			return fmt.Errorf("registering init script: %w", err)
		}
		s.mu.Lock()
		s.seeded[handle]++
		s.mu.Unlock()
	}
	return nil
}

func (s *Session) handles(ctx context.Context) ([]string, error) {
	var all []string
	if err := s.client.do(ctx, http.MethodGet, "/window/handles", nil, &all); err != nil {
		return nil, err
	}
	s.mu.Lock()
	parked := s.parked
	s.mu.Unlock()
	return slices.DeleteFunc(all, func(h string) bool { return h == parked }), nil
}

// Tabs visits every tab to read its URL and title, then returns to the tab
// that was current.
func (s *Session) Tabs(ctx context.Context) ([]browser.TabInfo, error) {
	handles, err := s.handles(ctx)
	if err != nil {
		return nil, err
	}
	current, err := s.CurrentTab(ctx)
	if err != nil {
		return nil, err
	}

	tabs := make([]browser.TabInfo, 0, len(handles))
	on := current
	for _, h := range handles {
		if h != on {
			if err := s.switchTo(ctx, h); err != nil {
				if errors.Is(err, browser.ErrTabNotFound) {
					continue
				}
				return nil, err
			}
			on = h
		}
		info := browser.TabInfo{Handle: h}
		info.URL, _ = s.URL(ctx)
		info.Title, _ = s.Title(ctx)
		tabs = append(tabs, info)
	}

	if on != current && current != "" {
		if err := s.switchTo(ctx, current); err != nil && !errors.Is(err, browser.ErrTabNotFound) {
			return nil, err
		}
	}
	return tabs, nil
}

func (s *Session) CurrentTab(ctx context.Context) (string, error) {
	var handle string
	err := s.client.do(ctx, http.MethodGet, "/window", nil, &handle)
	if errors.Is(err, browser.ErrTabNotFound) {
		return "", nil
	}
	return handle, err
}

func (s *Session) NewTab(ctx context.Context) (string, error) {
	s.mu.Lock()
	handle := s.parked
	s.parked = ""
	s.mu.Unlock()

	if handle == "" {
		var created struct {
			Handle string `json:"handle"`
		}
		if err := s.client.do(ctx, http.MethodPost, "/window/new", map[string]string{"type": "tab"}, &created); err != nil {
			return "", err
		}
		handle = created.Handle
	}
	if err := s.SwitchTab(ctx, handle); err != nil {
		return "", err
	}
	return handle, nil
}

func (s *Session) SwitchTab(ctx context.Context, handle string) error {
	if err := s.switchTo(ctx, handle); err != nil {
		return err
	}
	if err := s.seedCurrent(ctx); err != nil {
		s.logger.Debugf("init scripts not registered on tab %s: %v", handle, err)
	}
	return nil
}

func (s *Session) switchTo(ctx context.Context, handle string) error {
	return s.client.do(ctx, http.MethodPost, "/window", map[string]string{"handle": handle}, nil)
}

// CloseTab closes handle. WebDriver ends the session when its last window
// closes, so a blank placeholder tab is opened first and kept out of Tabs
// until NewTab reuses it.
func (s *Session) CloseTab(ctx context.Context, handle string) error {
	handles, err := s.handles(ctx)
	if err != nil {
		return err
	}
	if !slices.Contains(handles, handle) {
		return browser.Errorf(browser.ErrTabNotFound, "close tab", "no tab with handle %q", handle)
	}
	current, err := s.CurrentTab(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	needPlaceholder := len(handles) == 1 && s.parked == ""
	s.mu.Unlock()
	if needPlaceholder {
		var created struct {
			Handle string `json:"handle"`
		}
		if err := s.client.do(ctx, http.MethodPost, "/window/new", map[string]string{"type": "tab"}, &created); err != nil {
			return fmt.Errorf("opening placeholder tab: %w", err)
		}
		s.mu.Lock()
		s.parked = created.Handle
		s.mu.Unlock()
	}

	if handle != current {
		if err := s.switchTo(ctx, handle); err != nil {
			return err
		}
	}
	if err := s.client.do(ctx, http.MethodDelete, "/window", nil, nil); err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.seeded, handle)
	s.mu.Unlock()

	if handle != current && current != "" {
		return s.switchTo(ctx, current)
	}
	return nil
}

func (s *Session) Pointer(ctx context.Context, in browser.PointerInput) error {
	payload, err := pointerActions(in)
	if err != nil {
		return err
	}
	return s.client.do(ctx, http.MethodPost, "/actions", payload, nil)
}

func (s *Session) Keyboard(ctx context.Context, in browser.KeyInput) error {
	payload, err := keyActions(in)
	if err != nil || payload == nil {
		return err
	}
	return s.client.do(ctx, http.MethodPost, "/actions", payload, nil)
}

func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	var encoded string
	if err := s.client.do(ctx, http.MethodGet, "/screenshot", nil, &encoded); err != nil {
		return nil, err
	}
	png, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decoding screenshot: %w", err)
	}
	return png, nil
}

func (s *Session) URL(ctx context.Context) (string, error) {
	var u string
	err := s.client.do(ctx, http.MethodGet, "/url", nil, &u)
	return u, err
}

func (s *Session) Title(ctx context.Context) (string, error) {
	var t string
	err := s.client.do(ctx, http.MethodGet, "/title", nil, &t)
	return t, err
}

// Close deletes the session, which also closes the browser.
func (s *Session) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		s.closeErr = s.client.do(ctx, http.MethodDelete, "", nil, nil)
		if s.closeErr == nil {
			s.logger.Infof("webdriver session %s closed", s.id)
		}
	})
	return s.closeErr
}
