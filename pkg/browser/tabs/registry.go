// Package tabs keeps the ordered set of open tabs and which one is active.
//
// The registry is a cache over the browser's own tab list: every operation
// reconciles with Session.Tabs first, so tabs the user opened or closed
// outside the server are picked up or pruned before anything acts on them.
package tabs

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"slices"
	"sync"

	"github.com/entrhq/webpilot/pkg/browser"
	"github.com/entrhq/webpilot/pkg/logging"
	"github.com/entrhq/webpilot/pkg/metrics"
)

// Selector picks a tab by handle or by 0-based position.
type Selector struct {
	Handle   string
	Index    int
	HasIndex bool
}

// ByHandle selects the tab with handle h.
func ByHandle(h string) Selector { return Selector{Handle: h} }

// ByIndex selects the i-th tab in registration order.
func ByIndex(i int) Selector { return Selector{Index: i, HasIndex: true} }

// Empty reports whether neither a handle nor an index is set.
func (s Selector) Empty() bool { return s.Handle == "" && !s.HasIndex }

func (s Selector) String() string {
	if s.HasIndex {
		return fmt.Sprintf("index %d", s.Index)
	}
	return fmt.Sprintf("handle %q", s.Handle)
}

// Registry tracks the tabs of one session. It is not meant for concurrent
// mutation; the orchestrator serializes calls.
type Registry struct {
	session browser.Session
	logger  *logging.Logger

	mu     sync.Mutex
	order  []string
	known  map[string]browser.TabInfo
	active string
}

// New creates a registry for s. Call Adopt before use.
func New(s browser.Session, logger *logging.Logger) *Registry {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Registry{
		session: s,
		logger:  logger,
		known:   make(map[string]browser.TabInfo),
	}
}

// Adopt loads the session's tabs and makes its current tab active.
func (r *Registry) Adopt(ctx context.Context) error {
	if _, err := r.reconcile(ctx); err != nil {
		return err
	}
	current, err := r.session.CurrentTab(ctx)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if current != "" && slices.Contains(r.order, current) {
		r.active = current
	} else if len(r.order) > 0 {
		r.active = r.order[0]
	}
	return nil
}

// Active returns the active handle, or "" when there is none.
func (r *Registry) Active() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// Len returns the number of known tabs.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.order)
}

// reconcile syncs the registry with the browser. It returns the active
// handle if it was pruned, after moving active to its neighbour.
func (r *Registry) reconcile(ctx context.Context) (string, error) {
	live, err := r.session.Tabs(ctx)
	if err != nil {
		return "", err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	liveSet := make(map[string]browser.TabInfo, len(live))
	for _, t := range live {
		liveSet[t.Handle] = t
	}

	var lostActive string
	kept := r.order[:0:0]
	for i, h := range r.order {
		if _, ok := liveSet[h]; ok {
			kept = append(kept, h)
			continue
		}
		r.logger.Infof("tab %s closed outside the server, pruning", h)
		delete(r.known, h)
		if h == r.active {
			lostActive = h
			r.active = neighbour(r.order, i, liveSet)
		}
	}
	r.order = kept

	for _, t := range live {
		if !slices.Contains(r.order, t.Handle) {
			r.order = append(r.order, t.Handle)
		}
		r.known[t.Handle] = t
	}

	metrics.TabsOpen.Set(float64(len(r.order)))
	return lostActive, nil
}

// neighbour returns the closest live tab before position i in order, else
// the first live tab after it, else "".
func neighbour(order []string, i int, live map[string]browser.TabInfo) string {
	for j := i - 1; j >= 0; j-- {
		if _, ok := live[order[j]]; ok {
			return order[j]
		}
	}
	for j := i + 1; j < len(order); j++ {
		if _, ok := live[order[j]]; ok {
			return order[j]
		}
	}
	return ""
}

// EnsureActive prepares the session for an action on the active tab.
//
// When the active tab was closed outside the server, it is pruned, active
// moves to its neighbour, the session is pointed at the neighbour and the
// returned error wraps browser.ErrTabNotFound. With no tabs at all the error
// wraps browser.ErrNoActiveTab.
func (r *Registry) EnsureActive(ctx context.Context) error {
	const op = "ensure active tab"

	lost, err := r.reconcile(ctx)
	if err != nil {
		return err
	}
	active := r.Active()

	if active != "" {
		if err := r.focus(ctx, active); err != nil {
			return err
		}
	}
	if lost != "" {
		if active == "" {
			return browser.Errorf(browser.ErrTabNotFound, op, "active tab %s was closed and no tab remains", lost)
		}
		return browser.Errorf(browser.ErrTabNotFound, op, "active tab %s was closed; switched to %s", lost, active)
	}
	if active == "" {
		return browser.NewError(browser.ErrNoActiveTab, op, errors.New("open a tab with new_tab"))
	}
	return nil
}

// focus points the session at handle if it is not already there.
func (r *Registry) focus(ctx context.Context, handle string) error {
	current, err := r.session.CurrentTab(ctx)
	if err != nil {
		return err
	}
	if current == handle {
		return nil
	}
	return r.session.SwitchTab(ctx, handle)
}

// resolve maps a selector to a handle. Callers hold r.mu.
func (r *Registry) resolve(sel Selector) (string, error) {
	switch {
	case sel.Handle != "" && sel.HasIndex:
		return "", fmt.Errorf("provide either a handle or an index, not both")
	case sel.HasIndex:
		if sel.Index < 0 || sel.Index >= len(r.order) {
			return "", browser.Errorf(browser.ErrTabNotFound, "", "tab index %d out of range (%d tabs open)", sel.Index, len(r.order))
		}
		return r.order[sel.Index], nil
	case sel.Handle != "":
		if !slices.Contains(r.order, sel.Handle) {
			return "", browser.Errorf(browser.ErrTabNotFound, "", "no tab with handle %q", sel.Handle)
		}
		return sel.Handle, nil
	default:
		return "", fmt.Errorf("no tab selected")
	}
}

// NewTab opens a tab, makes it active and navigates it to url when url is
// not empty.
func (r *Registry) NewTab(ctx context.Context, url string) (browser.TabInfo, error) {
	if _, err := r.reconcile(ctx); err != nil {
		return browser.TabInfo{}, err
	}
	handle, err := r.session.NewTab(ctx)
	if err != nil {
		return browser.TabInfo{}, err
	}

	r.mu.Lock()
	r.order = append(r.order, handle)
	r.active = handle
	r.known[handle] = browser.TabInfo{Handle: handle, URL: "about:blank"}
	metrics.TabsOpen.Set(float64(len(r.order)))
	r.mu.Unlock()
	r.logger.Infof("opened tab %s", handle)

	if url != "" {
		if err := r.session.Navigate(ctx, url); err != nil {
			return r.Refresh(ctx), fmt.Errorf("navigating new tab: %w", err)
		}
	}
	return r.Refresh(ctx), nil
}

// SwitchTab makes the selected tab active.
func (r *Registry) SwitchTab(ctx context.Context, sel Selector) (browser.TabInfo, error) {
	if _, err := r.reconcile(ctx); err != nil {
		return browser.TabInfo{}, err
	}

	r.mu.Lock()
	handle, err := r.resolve(sel)
	r.mu.Unlock()
	if err != nil {
		return browser.TabInfo{}, err
	}

	if err := r.session.SwitchTab(ctx, handle); err != nil {
		return browser.TabInfo{}, err
	}
	r.mu.Lock()
	r.active = handle
	r.mu.Unlock()
	r.logger.Infof("switched to tab %s", handle)
	return r.Refresh(ctx), nil
}

// CloseTab closes the selected tab, or the active one when sel is empty.
// Closing the active tab moves active to the tab registered before it, else
// the first remaining tab, else none.
func (r *Registry) CloseTab(ctx context.Context, sel Selector) error {
	const op = "close tab"

	if _, err := r.reconcile(ctx); err != nil {
		return err
	}

	r.mu.Lock()
	var handle string
	var err error
	if sel.Empty() {
		handle = r.active
		if handle == "" {
			err = browser.NewError(browser.ErrNoActiveTab, op, nil)
		}
	} else {
		handle, err = r.resolve(sel)
	}
	r.mu.Unlock()
	if err != nil {
		return err
	}

	if err := r.session.CloseTab(ctx, handle); err != nil {
		return err
	}

	r.mu.Lock()
	i := slices.Index(r.order, handle)
	wasActive := handle == r.active
	if wasActive {
		live := make(map[string]browser.TabInfo, len(r.order))
		for _, h := range r.order {
			if h != handle {
				live[h] = r.known[h]
			}
		}
		r.active = neighbour(r.order, i, live)
	}
	r.order = slices.Delete(r.order, i, i+1)
	delete(r.known, handle)
	next := r.active
	metrics.TabsOpen.Set(float64(len(r.order)))
	r.mu.Unlock()
	r.logger.Infof("closed tab %s", handle)

	if wasActive && next != "" {
		if err := r.session.SwitchTab(ctx, next); err != nil {
			return fmt.Errorf("activating tab %s: %w", next, err)
		}
	}
	return nil
}

// List reconciles and returns the tabs in registration order.
func (r *Registry) List(ctx context.Context) (iter.Seq[browser.TabInfo], error) {
	if _, err := r.reconcile(ctx); err != nil {
		return nil, err
	}
	return slices.Values(r.Snapshot()), nil
}

// Snapshot returns the last known state of every tab without contacting the
// browser.
func (r *Registry) Snapshot() []browser.TabInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]browser.TabInfo, 0, len(r.order))
	for _, h := range r.order {
		info := r.known[h]
		info.Handle = h
		info.Active = h == r.active
		out = append(out, info)
	}
	return out
}

// Refresh re-reads the URL and title of the active tab and returns it.
func (r *Registry) Refresh(ctx context.Context) browser.TabInfo {
	r.mu.Lock()
	active := r.active
	r.mu.Unlock()
	if active == "" {
		return browser.TabInfo{}
	}

	info := browser.TabInfo{Handle: active, Active: true}
	info.URL, _ = r.session.URL(ctx)
	info.Title, _ = r.session.Title(ctx)

	r.mu.Lock()
	if _, ok := r.known[active]; ok {
		r.known[active] = browser.TabInfo{Handle: active, URL: info.URL, Title: info.Title}
	}
	r.mu.Unlock()
	return info
}
