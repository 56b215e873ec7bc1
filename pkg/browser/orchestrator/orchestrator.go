// Package orchestrator owns the browser session and exposes one method per
// tool.
//
// The session is established on the first call (or eagerly with
// OpenOnStart), cached, and torn down on shutdown, on idle timeout or when
// the browser or driver dies. After a crash every call fails with
// browser.ErrProcessCrashed until OpenBrowser recreates the session.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/entrhq/webpilot/pkg/browser"
	"github.com/entrhq/webpilot/pkg/browser/action"
	"github.com/entrhq/webpilot/pkg/browser/stealth"
	"github.com/entrhq/webpilot/pkg/browser/tabs"
	"github.com/entrhq/webpilot/pkg/logging"
	"github.com/entrhq/webpilot/pkg/metrics"
)

// WaitDuration is how long the wait tool pauses.
const WaitDuration = 5 * time.Second

const minIdleCheck = time.Second

var errShutdown = errors.New("orchestrator is shut down")

// Options configures an Orchestrator.
type Options struct {
	Connector Connector
	Logger    *logging.Logger

	InitialURL  string
	SearchURL   string
	Stealth     bool
	Highlight   bool
	IdleTimeout time.Duration

	// Settle overrides the post-action wait. Zero keeps the pipeline
	// default.
	Settle time.Duration
}

// Result is what a tool call reports.
type Result struct {
	URL        string
	Screenshot []byte
	Message    string
	Tab        *browser.TabInfo
	Tabs       []browser.TabInfo
}

// Status is a point-in-time view for health checks.
type Status struct {
	Active bool   `json:"active"`
	Mode   string `json:"mode,omitempty"`
	Tabs   int    `json:"tabs"`
	Lost   bool   `json:"lost"`
}

// Orchestrator serializes tool calls against a single browser session.
type Orchestrator struct {
	connector Connector
	logger    *logging.Logger
	patcher   *stealth.Patcher
	pipeline  *action.Pipeline

	initialURL  string
	idleTimeout time.Duration
	idleCheck   time.Duration

	mu       sync.Mutex
	conn     *Connection
	registry *tabs.Registry
	gen      uint64
	lost     error
	lastUsed time.Time
	shutdown bool

	stopIdle context.CancelFunc
	idleDone chan struct{}
}

// New creates an orchestrator. Nothing is started until Start or the first
// tool call.
func New(opts Options) *Orchestrator {
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	return &Orchestrator{
		connector: opts.Connector,
		logger:    opts.Logger,
		patcher:   stealth.New(opts.Stealth, opts.Logger.Named("stealth")),
		pipeline: action.New(action.Options{
			Settle:    opts.Settle,
			Highlight: opts.Highlight,
			SearchURL: opts.SearchURL,
			Logger:    opts.Logger.Named("action"),
		}),
		initialURL:  opts.InitialURL,
		idleTimeout: opts.IdleTimeout,
		idleCheck:   idleCheckInterval(opts.IdleTimeout),
		lastUsed:    time.Now(),
	}
}

// Start starts the idle monitor and, when eager is set, opens the browser.
// A failed eager open is logged; the next tool call tries again.
func (o *Orchestrator) Start(ctx context.Context, eager bool) {
	if o.idleTimeout > 0 {
		idleCtx, cancel := context.WithCancel(context.Background())
		o.stopIdle = cancel
		o.idleDone = make(chan struct{})
		go o.watchIdle(idleCtx)
	}
	if eager {
		if _, err := o.OpenBrowser(ctx); err != nil {
			o.logger.Errorf("failed to open browser on start: %v", err)
		}
	}
}

// Shutdown closes the session, stops every managed process and rejects
// further calls.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	if o.stopIdle != nil {
		o.stopIdle()
		<-o.idleDone
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.shutdown {
		return nil
	}
	o.shutdown = true
	err := o.teardown(ctx, "shutdown")
	return errors.Join(err, o.connector.Close(ctx))
}

// Status reports the session state without contacting the browser.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	st := Status{Lost: o.lost != nil}
	if o.conn != nil {
		st.Active = true
		st.Mode = string(o.conn.Session.Mode())
		st.Tabs = o.registry.Len()
	}
	return st
}

// establish connects, applies stealth patches, adopts the open tabs and
// opens the initial URL. Callers hold o.mu.
func (o *Orchestrator) establish(ctx context.Context) error {
	start := time.Now()
	conn, err := o.connector.Connect(ctx)
	if err != nil {
		return err
	}
	s := conn.Session

	fail := func(err error) error {
		if rerr := conn.Release(context.WithoutCancel(ctx)); rerr != nil {
			o.logger.Warnf("release after failed establishment: %v", rerr)
		}
		o.patcher.Forget(s.ID())
		return err
	}

	if applied := o.patcher.Apply(ctx, s); o.patcher.Enabled() {
		o.logger.Infof("stealth patches applied: %v", applied)
	}

	registry := tabs.New(s, o.logger.Named("tabs"))
	if err := registry.Adopt(ctx); err != nil {
		return fail(browser.NewError(browser.ErrSessionInit, "adopt tabs", err))
	}
	if o.initialURL != "" {
		if err := registry.EnsureActive(ctx); err != nil {
			return fail(browser.NewError(browser.ErrSessionInit, "open initial page", err))
		}
		if err := s.Navigate(ctx, action.NormalizeURL(o.initialURL)); err != nil {
			return fail(browser.NewError(browser.ErrSessionInit, "open initial page", err))
		}
	}

	o.gen++
	o.conn = conn
	o.registry = registry
	o.lost = nil
	metrics.SessionsEstablished.WithLabelValues(string(s.Mode())).Inc()
	metrics.SessionActive.Set(1)
	o.logger.Infof("browser session %s ready (%s) in %s", s.ID(), s.Mode(), time.Since(start).Round(time.Millisecond))

	if conn.Lost != nil {
		go o.watchCrash(o.gen, conn.Lost)
	}
	return nil
}

// teardown releases the current connection. Callers hold o.mu.
func (o *Orchestrator) teardown(ctx context.Context, reason string) error {
	if o.conn == nil {
		return nil
	}
	conn := o.conn
	// The crash watcher of this connection must not treat the release as a
	// crash.
	o.gen++
	o.conn = nil
	o.registry = nil
	metrics.SessionActive.Set(0)
	metrics.TabsOpen.Set(0)

	o.logger.Infof("closing browser session %s (%s)", conn.Session.ID(), reason)
	o.patcher.Forget(conn.Session.ID())
	return conn.Release(ctx)
}

// watchCrash invalidates the session of generation gen when lost closes.
func (o *Orchestrator) watchCrash(gen uint64, lost <-chan struct{}) {
	<-lost

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.gen != gen || o.conn == nil {
		return
	}
	o.invalidate(browser.Errorf(browser.ErrProcessCrashed, "session", "browser or driver exited unexpectedly"))
}

// invalidate drops a dead session and remembers why. Callers hold o.mu.
func (o *Orchestrator) invalidate(cause error) {
	o.logger.Errorf("browser session lost: %v", cause)
	if err := o.teardown(context.Background(), "lost"); err != nil {
		o.logger.Debugf("release of lost session: %v", err)
	}
	o.lost = cause
}

// session returns a live session, establishing one if needed. Callers hold
// o.mu.
func (o *Orchestrator) session(ctx context.Context) (browser.Session, error) {
	if o.shutdown {
		return nil, errShutdown
	}
	if o.lost != nil {
		return nil, fmt.Errorf("session lost, call open_web_browser to start a new one: %w", o.lost)
	}
	if o.conn == nil {
		if err := o.establish(ctx); err != nil {
			return nil, err
		}
	}
	return o.conn.Session, nil
}

// observe invalidates the session when err says the browser is gone.
// Callers hold o.mu.
func (o *Orchestrator) observe(err error) {
	if err != nil && o.conn != nil && errors.Is(err, browser.ErrProcessCrashed) {
		o.invalidate(err)
	}
}

func (o *Orchestrator) touch() {
	o.lastUsed = time.Now()
}

func (o *Orchestrator) lock() func() {
	o.mu.Lock()
	o.touch()
	return func() {
		o.touch()
		o.mu.Unlock()
	}
}

// OpenBrowser makes sure a session exists, recreating it after a crash, and
// reports the active tab.
func (o *Orchestrator) OpenBrowser(ctx context.Context) (Result, error) {
	defer o.lock()()
	if o.shutdown {
		return Result{}, errShutdown
	}

	message := "Browser is already open"
	if o.conn == nil {
		if o.lost != nil {
			o.logger.Infof("recreating browser session after: %v", o.lost)
			o.lost = nil
		}
		if err := o.establish(ctx); err != nil {
			return Result{}, err
		}
		message = "Browser opened"
	}

	if err := o.registry.EnsureActive(ctx); err != nil {
		repaired := errors.Is(err, browser.ErrTabNotFound) && o.registry.Active() != ""
		switch {
		case repaired:
			o.logger.Infof("active tab was closed, reselected %s", o.registry.Active())
		case errors.Is(err, browser.ErrNoActiveTab), errors.Is(err, browser.ErrTabNotFound):
			if _, err := o.registry.NewTab(ctx, ""); err != nil {
				o.observe(err)
				return Result{}, err
			}
		default:
			o.observe(err)
			return Result{}, err
		}
	}
	return o.capture(ctx, message)
}

// capture reports the active tab's state. Callers hold o.mu.
func (o *Orchestrator) capture(ctx context.Context, message string) (Result, error) {
	state, err := o.pipeline.Capture(ctx, o.conn.Session)
	res := Result{URL: state.URL, Screenshot: state.Screenshot, Message: message}
	if err != nil {
		o.observe(err)
		return res, err
	}
	return res, nil
}

// act runs one action on the active tab.
func (o *Orchestrator) act(ctx context.Context, a action.Action, message string) (Result, error) {
	defer o.lock()()

	s, err := o.session(ctx)
	if err != nil {
		return Result{}, err
	}

	if err := o.registry.EnsureActive(ctx); err != nil {
		if errors.Is(err, browser.ErrTabNotFound) && o.registry.Active() != "" {
			// Show the tab that took over, never the closed one.
			res, _ := o.capture(ctx, "")
			return res, err
		}
		o.observe(err)
		return Result{}, err
	}

	state, err := o.pipeline.Run(ctx, s, a)
	res := Result{URL: state.URL, Screenshot: state.Screenshot, Message: message}
	if err != nil {
		o.observe(err)
		return res, err
	}
	return res, nil
}

func (o *Orchestrator) ClickAt(ctx context.Context, x, y int) (Result, error) {
	return o.act(ctx, action.Action{Kind: action.Click, X: x, Y: y}, fmt.Sprintf("Clicked at (%d, %d)", x, y))
}

func (o *Orchestrator) HoverAt(ctx context.Context, x, y int) (Result, error) {
	return o.act(ctx, action.Action{Kind: action.Hover, X: x, Y: y}, fmt.Sprintf("Hovered at (%d, %d)", x, y))
}

// TypeTextAt clicks at (x, y) and types text into the focused element.
func (o *Orchestrator) TypeTextAt(ctx context.Context, x, y int, text string, pressEnter, clearBefore bool) (Result, error) {
	return o.act(ctx, action.Action{
		Kind:              action.Type,
		X:                 x,
		Y:                 y,
		Text:              text,
		PressEnter:        pressEnter,
		ClearBeforeTyping: clearBefore,
	}, fmt.Sprintf("Typed %d characters at (%d, %d)", len([]rune(text)), x, y))
}

func (o *Orchestrator) ScrollDocument(ctx context.Context, direction string) (Result, error) {
	return o.act(ctx, action.Action{Kind: action.ScrollDocument, Direction: direction}, "Scrolled document "+direction)
}

func (o *Orchestrator) ScrollAt(ctx context.Context, x, y int, direction string, magnitude int) (Result, error) {
	return o.act(ctx, action.Action{Kind: action.ScrollAt, X: x, Y: y, Direction: direction, Magnitude: magnitude},
		fmt.Sprintf("Scrolled %s at (%d, %d)", direction, x, y))
}

func (o *Orchestrator) Wait(ctx context.Context) (Result, error) {
	return o.act(ctx, action.Action{Kind: action.Wait, Duration: WaitDuration}, "Waited 5 seconds")
}

func (o *Orchestrator) GoBack(ctx context.Context) (Result, error) {
	return o.act(ctx, action.Action{Kind: action.Back}, "Navigated back")
}

func (o *Orchestrator) GoForward(ctx context.Context) (Result, error) {
	return o.act(ctx, action.Action{Kind: action.Forward}, "Navigated forward")
}

func (o *Orchestrator) Search(ctx context.Context) (Result, error) {
	return o.act(ctx, action.Action{Kind: action.Search}, "Opened search engine")
}

func (o *Orchestrator) Navigate(ctx context.Context, url string) (Result, error) {
	return o.act(ctx, action.Action{Kind: action.Navigate, URL: url}, "Navigated to "+action.NormalizeURL(url))
}

func (o *Orchestrator) KeyCombination(ctx context.Context, keys []string) (Result, error) {
	return o.act(ctx, action.Action{Kind: action.KeyCombination, Keys: keys}, fmt.Sprintf("Pressed %v", keys))
}

func (o *Orchestrator) DragAndDrop(ctx context.Context, x, y, destX, destY int) (Result, error) {
	return o.act(ctx, action.Action{Kind: action.DragAndDrop, X: x, Y: y, DestX: destX, DestY: destY},
		fmt.Sprintf("Dragged from (%d, %d) to (%d, %d)", x, y, destX, destY))
}

func (o *Orchestrator) CurrentState(ctx context.Context) (Result, error) {
	return o.act(ctx, action.Action{Kind: action.CurrentState}, "")
}

// NewTab opens a tab, optionally at url, and makes it active.
func (o *Orchestrator) NewTab(ctx context.Context, url string) (Result, error) {
	defer o.lock()()
	if _, err := o.session(ctx); err != nil {
		return Result{}, err
	}

	if url != "" {
		url = action.NormalizeURL(url)
	}
	info, err := o.registry.NewTab(ctx, url)
	if err != nil {
		o.observe(err)
		if info.Handle == "" {
			return Result{}, err
		}
	}
	res, cerr := o.capture(ctx, "Opened tab "+info.Handle)
	res.Tab = &info
	return res, errors.Join(err, cerr)
}

// SwitchTab activates the selected tab.
func (o *Orchestrator) SwitchTab(ctx context.Context, sel tabs.Selector) (Result, error) {
	defer o.lock()()
	if _, err := o.session(ctx); err != nil {
		return Result{}, err
	}

	info, err := o.registry.SwitchTab(ctx, sel)
	if err != nil {
		o.observe(err)
		return Result{}, err
	}
	res, err := o.capture(ctx, "Switched to tab "+info.Handle)
	res.Tab = &info
	return res, err
}

// CloseTab closes the selected tab, or the active one for an empty
// selector, and reports the tab that is active afterwards.
func (o *Orchestrator) CloseTab(ctx context.Context, sel tabs.Selector) (Result, error) {
	defer o.lock()()
	if _, err := o.session(ctx); err != nil {
		return Result{}, err
	}

	if err := o.registry.CloseTab(ctx, sel); err != nil {
		o.observe(err)
		return Result{}, err
	}
	remaining := o.registry.Snapshot()
	if o.registry.Active() == "" {
		return Result{Message: "Closed the last tab; open another with new_tab", Tabs: remaining}, nil
	}

	info := o.registry.Refresh(ctx)
	res, err := o.capture(ctx, "Closed tab; active tab is "+info.Handle)
	res.Tab = &info
	res.Tabs = remaining
	return res, err
}

// ListTabs lists the open tabs with the active one marked.
func (o *Orchestrator) ListTabs(ctx context.Context) (Result, error) {
	defer o.lock()()
	if _, err := o.session(ctx); err != nil {
		return Result{}, err
	}

	seq, err := o.registry.List(ctx)
	if err != nil {
		o.observe(err)
		return Result{}, err
	}
	list := slices.Collect(seq)
	message := fmt.Sprintf("%d tab(s) open", len(list))
	if o.registry.Active() == "" {
		return Result{Message: message, Tabs: list}, nil
	}
	if err := o.registry.EnsureActive(ctx); err != nil {
		o.observe(err)
		return Result{Message: message, Tabs: list}, err
	}
	res, err := o.capture(ctx, message)
	res.Tabs = list
	return res, err
}

// idleCheckInterval polls at a quarter of the timeout but at most once a
// second.
func idleCheckInterval(timeout time.Duration) time.Duration {
	return max(timeout/4, minIdleCheck)
}

// watchIdle closes the session after idleTimeout without tool activity.
func (o *Orchestrator) watchIdle(ctx context.Context) {
	defer close(o.idleDone)

	ticker := time.NewTicker(o.idleCheck)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.closeIfIdle()
		}
	}
}

func (o *Orchestrator) closeIfIdle() {
	// Blocks behind a running action, so a session is never closed mid-call.
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.conn == nil || time.Since(o.lastUsed) < o.idleTimeout {
		return
	}
	o.logger.Infof("no tool activity for %s", o.idleTimeout)
	if err := o.teardown(context.Background(), "idle timeout"); err != nil {
		o.logger.Warnf("closing idle session: %v", err)
	}
}
