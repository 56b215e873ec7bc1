package cdp

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/playwright-community/playwright-go"

	"github.com/entrhq/webpilot/pkg/browser"
	"github.com/entrhq/webpilot/pkg/logging"
)

// Options configures Connect.
type Options struct {
	HTTPClient *http.Client
	Logger     *logging.Logger
	// Attempts bounds how often the endpoint is probed before giving up.
	Attempts      uint
	RetryInterval time.Duration
}

type tab struct {
	handle string
	page   playwright.Page
}

// Session is a Playwright connection to a DevTools endpoint. It implements
// browser.Session. Pages get UUID handles when they are first seen.
type Session struct {
	endpoint string
	browser  playwright.Browser
	context  playwright.BrowserContext
	logger   *logging.Logger

	mu      sync.Mutex
	tabs    []tab
	current string
	parked  playwright.Page

	lost      chan struct{}
	lostOnce  sync.Once
	closeOnce sync.Once
	closeErr  error
}

var _ browser.Session = (*Session)(nil)

// Connect waits for the endpoint to answer, attaches to it and adopts the
// browser's default context and its first page. Failures wrap
// browser.ErrSessionInit.
func Connect(ctx context.Context, rt *Runtime, endpoint string, opts Options) (*Session, error) {
	const op = "connect"
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.Attempts == 0 {
		opts.Attempts = 10
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = 250 * time.Millisecond
	}

	info, err := WaitReady(ctx, opts.HTTPClient, endpoint, opts.Attempts, opts.RetryInterval)
	if err != nil {
		return nil, err
	}

	pw, err := rt.playwright()
	if err != nil {
		return nil, browser.NewError(browser.ErrSessionInit, op, err)
	}
	b, err := pw.Chromium.ConnectOverCDP(endpoint)
	if err != nil {
		return nil, browser.NewError(browser.ErrSessionInit, op, err)
	}

	var bctx playwright.BrowserContext
	if contexts := b.Contexts(); len(contexts) > 0 {
		bctx = contexts[0]
	} else if bctx, err = b.NewContext(); err != nil {
		_ = b.Close()
		return nil, browser.NewError(browser.ErrSessionInit, op, err)
	}

	s := &Session{
		endpoint: endpoint,
		browser:  b,
		context:  bctx,
		logger:   opts.Logger,
		lost:     make(chan struct{}),
	}
	b.OnDisconnected(func(playwright.Browser) {
		s.lostOnce.Do(func() {
			s.logger.Warnf("devtools connection to %s lost", endpoint)
			close(s.lost)
		})
	})

	s.sync()
	if len(s.tabs) == 0 {
		if _, err := s.NewTab(ctx); err != nil {
			_ = b.Close()
			return nil, browser.NewError(browser.ErrSessionInit, op, err)
		}
	} else {
		s.current = s.tabs[0].handle
	}

	s.logger.Infof("attached to %s (%s)", info.Browser, endpoint)
	return s, nil
}

// Lost is closed when the DevTools connection drops, including after Close.
func (s *Session) Lost() <-chan struct{} { return s.lost }

func (s *Session) ID() string                   { return s.endpoint }
func (s *Session) Mode() browser.ConnectionMode { return browser.ModeCDP }

// sync reconciles the tab list with the context's open pages. Pages opened
// outside the session get fresh handles; closed pages are dropped.
func (s *Session) sync() {
	pages := s.context.Pages()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.tabs = slices.DeleteFunc(s.tabs, func(t tab) bool {
		return t.page.IsClosed() || !slices.Contains(pages, t.page)
	})
	for _, p := range pages {
		if p.IsClosed() || p == s.parked {
			continue
		}
		known := slices.ContainsFunc(s.tabs, func(t tab) bool { return t.page == p })
		if !known {
			s.tabs = append(s.tabs, tab{handle: uuid.NewString(), page: p})
		}
	}
}

// page returns the current page, or ErrTabNotFound when it was closed.
func (s *Session) page() (playwright.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tabs {
		if t.handle == s.current {
			if t.page.IsClosed() {
				break
			}
			return t.page, nil
		}
	}
	return nil, browser.Errorf(browser.ErrTabNotFound, "", "current tab %q is closed", s.current)
}

func (s *Session) Navigate(ctx context.Context, url string) error {
	p, err := s.page()
	if err != nil {
		return err
	}
	_, err = p.Goto(url, playwright.PageGotoOptions{Timeout: timeoutFrom(ctx)})
	return err
}

func (s *Session) Back(ctx context.Context) error {
	p, err := s.page()
	if err != nil {
		return err
	}
	_, err = p.GoBack(playwright.PageGoBackOptions{Timeout: timeoutFrom(ctx)})
	return err
}

func (s *Session) Forward(ctx context.Context) error {
	p, err := s.page()
	if err != nil {
		return err
	}
	_, err = p.GoForward(playwright.PageGoForwardOptions{Timeout: timeoutFrom(ctx)})
	return err
}

func (s *Session) Evaluate(ctx context.Context, expression string) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := s.page()
	if err != nil {
		return nil, err
	}
	return p.Evaluate(expression)
}

// AddInitScript registers source on the browser context, which covers every
// page of the session.
func (s *Session) AddInitScript(ctx context.Context, source string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.context.AddInitScript(playwright.Script{Content: &source})
}

func (s *Session) Tabs(ctx context.Context) ([]browser.TabInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.sync()

	s.mu.Lock()
	tabs := slices.Clone(s.tabs)
	s.mu.Unlock()

	out := make([]browser.TabInfo, 0, len(tabs))
	for _, t := range tabs {
		title, _ := t.page.Title()
		out = append(out, browser.TabInfo{Handle: t.handle, URL: t.page.URL(), Title: title})
	}
	return out, nil
}

func (s *Session) CurrentTab(ctx context.Context) (string, error) {
	if _, err := s.page(); err != nil {
		return "", nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current, nil
}

func (s *Session) NewTab(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.Lock()
	p := s.parked
	s.parked = nil
	s.mu.Unlock()

	if p == nil || p.IsClosed() {
		var err error
		if p, err = s.context.NewPage(); err != nil {
			return "", fmt.Errorf("opening tab: %w", err)
		}
	}

	handle := uuid.NewString()
	s.mu.Lock()
	s.tabs = append(s.tabs, tab{handle: handle, page: p})
	s.current = handle
	s.mu.Unlock()

	if err := p.BringToFront(); err != nil {
		s.logger.Debugf("bring new tab to front: %v", err)
	}
	return handle, nil
}

func (s *Session) lookup(handle string) (playwright.Page, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tabs {
		if t.handle == handle && !t.page.IsClosed() {
			return t.page, true
		}
	}
	return nil, false
}

func (s *Session) SwitchTab(ctx context.Context, handle string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.sync()
	p, ok := s.lookup(handle)
	if !ok {
		return browser.Errorf(browser.ErrTabNotFound, "switch tab", "no tab with handle %q", handle)
	}
	if err := p.BringToFront(); err != nil {
		return err
	}
	s.mu.Lock()
	s.current = handle
	s.mu.Unlock()
	return nil
}

// CloseTab closes handle. Chrome exits with its last window, so a blank
// placeholder page is opened first and kept out of Tabs until NewTab reuses
// it.
func (s *Session) CloseTab(ctx context.Context, handle string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.sync()
	p, ok := s.lookup(handle)
	if !ok {
		return browser.Errorf(browser.ErrTabNotFound, "close tab", "no tab with handle %q", handle)
	}

	s.mu.Lock()
	needPlaceholder := len(s.tabs) == 1 && s.parked == nil
	s.mu.Unlock()
	if needPlaceholder {
		parked, err := s.context.NewPage()
		if err != nil {
			return fmt.Errorf("opening placeholder tab: %w", err)
		}
		s.mu.Lock()
		s.parked = parked
		s.mu.Unlock()
	}

	if err := p.Close(); err != nil {
		return err
	}

	s.mu.Lock()
	s.tabs = slices.DeleteFunc(s.tabs, func(t tab) bool { return t.handle == handle })
	if s.current == handle {
		s.current = ""
	}
	s.mu.Unlock()
	return nil
}

func (s *Session) Pointer(ctx context.Context, in browser.PointerInput) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := s.page()
	if err != nil {
		return err
	}
	m := p.Mouse()
	x, y := float64(in.X), float64(in.Y)

	switch in.Kind {
	case browser.PointerMove:
		return m.Move(x, y)
	case browser.PointerClick:
		return m.Click(x, y)
	case browser.PointerDown:
		if err := m.Move(x, y); err != nil {
			return err
		}
		return m.Down()
	case browser.PointerUp:
		if err := m.Move(x, y); err != nil {
			return err
		}
		return m.Up()
	case browser.PointerWheel:
		if err := m.Move(x, y); err != nil {
			return err
		}
		return m.Wheel(float64(in.DeltaX), float64(in.DeltaY))
	default:
		return fmt.Errorf("unsupported pointer operation %s", in.Kind)
	}
}

func (s *Session) Keyboard(ctx context.Context, in browser.KeyInput) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := s.page()
	if err != nil {
		return err
	}
	kb := p.Keyboard()

	if len(in.Chord) == 0 {
		if in.Text == "" {
			return nil
		}
		return kb.Type(in.Text)
	}
	for _, k := range in.Chord {
		if err := kb.Down(k); err != nil {
			return err
		}
	}
	for i := len(in.Chord) - 1; i >= 0; i-- {
		if err := kb.Up(in.Chord[i]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := s.page()
	if err != nil {
		return nil, err
	}
	return p.Screenshot(playwright.PageScreenshotOptions{
		Type:    playwright.ScreenshotTypePng,
		Timeout: timeoutFrom(ctx),
	})
}

func (s *Session) URL(ctx context.Context) (string, error) {
	p, err := s.page()
	if err != nil {
		return "", err
	}
	return p.URL(), nil
}

func (s *Session) Title(ctx context.Context) (string, error) {
	p, err := s.page()
	if err != nil {
		return "", err
	}
	return p.Title()
}

// Close disconnects from the browser. The browser process itself belongs to
// whoever launched it.
func (s *Session) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		s.lostOnce.Do(func() { close(s.lost) })
		s.closeErr = s.browser.Close()
		s.logger.Infof("detached from %s", s.endpoint)
	})
	return s.closeErr
}

// timeoutFrom converts the context deadline to a Playwright timeout in
// milliseconds. Nil keeps Playwright's default.
func timeoutFrom(ctx context.Context) *float64 {
	deadline, ok := ctx.Deadline()
	if !ok {
		return nil
	}
	ms := float64(time.Until(deadline).Milliseconds())
	if ms < 1 {
		ms = 1
	}
	return &ms
}
