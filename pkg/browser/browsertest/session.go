// Package browsertest provides an in-memory browser.Session for tests.
package browsertest

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/entrhq/webpilot/pkg/browser"
)

type page struct {
	handle  string
	history []string
	pos     int
}

func (p *page) url() string { return p.history[p.pos] }

// Session is a fake browser.Session. Tabs are named "tab-0", "tab-1", ...
// and the first one is open at about:blank. Zero-value fields are usable
// defaults; configure the exported fields before use.
type Session struct {
	// SessionID defaults to "fake".
	SessionID string
	ModeValue browser.ConnectionMode

	// EvalFunc answers Evaluate. By default every expression yields nil.
	EvalFunc func(expression string) (any, error)

	mu          sync.Mutex
	pages       []*page
	current     string
	next        int
	closed      bool
	failures    map[string][]error
	Evaluated   []string
	InitScripts []string
	Pointers    []browser.PointerInput
	Keys        []browser.KeyInput
	Calls       []string
}

var _ browser.Session = (*Session)(nil)

// NewSession returns a session with one blank tab.
func NewSession() *Session {
	s := &Session{SessionID: "fake", ModeValue: browser.ModeWebDriver}
	s.pages = []*page{{handle: "tab-0", history: []string{"about:blank"}}}
	s.current = "tab-0"
	s.next = 1
	return s
}

// Fail makes the next call to op return err. Calls queue in order.
func (s *Session) Fail(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failures == nil {
		s.failures = make(map[string][]error)
	}
	s.failures[op] = append(s.failures[op], err)
}

// CloseExternally removes a tab as if the user closed it.
func (s *Session) CloseExternally(handle string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages = slices.DeleteFunc(s.pages, func(p *page) bool { return p.handle == handle })
}

// OpenExternally adds a tab as if a page opened a popup.
func (s *Session) OpenExternally(url string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := fmt.Sprintf("tab-%d", s.next)
	s.next++
	s.pages = append(s.pages, &page{handle: h, history: []string{url}})
	return h
}

// Closed reports whether Close was called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Current returns the current handle without going through the interface.
func (s *Session) Current() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// CallCount returns how often op was called.
func (s *Session) CallCount(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.Calls {
		if c == op {
			n++
		}
	}
	return n
}

// enter records the call and returns a queued failure, if any. Callers hold
// s.mu.
func (s *Session) enter(ctx context.Context, op string) error {
	s.Calls = append(s.Calls, op)
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.closed {
		return browser.Errorf(browser.ErrProcessCrashed, op, "session closed")
	}
	if q := s.failures[op]; len(q) > 0 {
		s.failures[op] = q[1:]
		return q[0]
	}
	return nil
}

func (s *Session) find(handle string) *page {
	for _, p := range s.pages {
		if p.handle == handle {
			return p
		}
	}
	return nil
}

func (s *Session) currentPage(op string) (*page, error) {
	if p := s.find(s.current); p != nil {
		return p, nil
	}
	return nil, browser.Errorf(browser.ErrTabNotFound, op, "no such window %q", s.current)
}

func (s *Session) ID() string                   { return s.SessionID }
func (s *Session) Mode() browser.ConnectionMode { return s.ModeValue }

func (s *Session) Navigate(ctx context.Context, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(ctx, "Navigate"); err != nil {
		return err
	}
	p, err := s.currentPage("navigate")
	if err != nil {
		return err
	}
	p.history = append(p.history[:p.pos+1], url)
	p.pos++
	return nil
}

func (s *Session) Back(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(ctx, "Back"); err != nil {
		return err
	}
	p, err := s.currentPage("back")
	if err != nil {
		return err
	}
	if p.pos > 0 {
		p.pos--
	}
	return nil
}

func (s *Session) Forward(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(ctx, "Forward"); err != nil {
		return err
	}
	p, err := s.currentPage("forward")
	if err != nil {
		return err
	}
	if p.pos < len(p.history)-1 {
		p.pos++
	}
	return nil
}

func (s *Session) Evaluate(ctx context.Context, expression string) (any, error) {
	s.mu.Lock()
	if err := s.enter(ctx, "Evaluate"); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if _, err := s.currentPage("evaluate"); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.Evaluated = append(s.Evaluated, expression)
	eval := s.EvalFunc
	s.mu.Unlock()

	if eval == nil {
		return nil, nil
	}
	return eval(expression)
}

func (s *Session) AddInitScript(ctx context.Context, source string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(ctx, "AddInitScript"); err != nil {
		return err
	}
	s.InitScripts = append(s.InitScripts, source)
	return nil
}

func (s *Session) Tabs(ctx context.Context) ([]browser.TabInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(ctx, "Tabs"); err != nil {
		return nil, err
	}
	out := make([]browser.TabInfo, 0, len(s.pages))
	for _, p := range s.pages {
		out = append(out, browser.TabInfo{Handle: p.handle, URL: p.url(), Title: titleFor(p.url())})
	}
	return out, nil
}

func (s *Session) CurrentTab(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(ctx, "CurrentTab"); err != nil {
		return "", err
	}
	if s.find(s.current) == nil {
		return "", nil
	}
	return s.current, nil
}

func (s *Session) NewTab(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(ctx, "NewTab"); err != nil {
		return "", err
	}
	h := fmt.Sprintf("tab-%d", s.next)
	s.next++
	s.pages = append(s.pages, &page{handle: h, history: []string{"about:blank"}})
	s.current = h
	return h, nil
}

func (s *Session) SwitchTab(ctx context.Context, handle string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(ctx, "SwitchTab"); err != nil {
		return err
	}
	if s.find(handle) == nil {
		return browser.Errorf(browser.ErrTabNotFound, "switch tab", "no such window %q", handle)
	}
	s.current = handle
	return nil
}

func (s *Session) CloseTab(ctx context.Context, handle string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(ctx, "CloseTab"); err != nil {
		return err
	}
	if s.find(handle) == nil {
		return browser.Errorf(browser.ErrTabNotFound, "close tab", "no such window %q", handle)
	}
	s.pages = slices.DeleteFunc(s.pages, func(p *page) bool { return p.handle == handle })
	if s.current == handle {
		s.current = ""
	}
	return nil
}

func (s *Session) Pointer(ctx context.Context, in browser.PointerInput) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(ctx, "Pointer"); err != nil {
		return err
	}
	if _, err := s.currentPage("pointer"); err != nil {
		return err
	}
	s.Pointers = append(s.Pointers, in)
	return nil
}

func (s *Session) Keyboard(ctx context.Context, in browser.KeyInput) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(ctx, "Keyboard"); err != nil {
		return err
	}
	if _, err := s.currentPage("keyboard"); err != nil {
		return err
	}
	s.Keys = append(s.Keys, in)
	return nil
}

// Screenshot returns "png:<handle>:<url>" so tests can tell which tab was
// captured.
func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(ctx, "Screenshot"); err != nil {
		return nil, err
	}
	p, err := s.currentPage("screenshot")
	if err != nil {
		return nil, err
	}
	return []byte("png:" + p.handle + ":" + p.url()), nil
}

func (s *Session) URL(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(ctx, "URL"); err != nil {
		return "", err
	}
	p, err := s.currentPage("url")
	if err != nil {
		return "", err
	}
	return p.url(), nil
}

func (s *Session) Title(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(ctx, "Title"); err != nil {
		return "", err
	}
	p, err := s.currentPage("title")
	if err != nil {
		return "", err
	}
	return titleFor(p.url()), nil
}

func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls = append(s.Calls, "Close")
	s.closed = true
	return nil
}

func titleFor(url string) string {
	if url == "about:blank" {
		return ""
	}
	return "Title of " + strings.TrimPrefix(url, "https://")
}
