package tabs

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/webpilot/pkg/browser"
	"github.com/entrhq/webpilot/pkg/browser/browsertest"
)

func newRegistry(t *testing.T) (*Registry, *browsertest.Session) {
	t.Helper()
	s := browsertest.NewSession()
	r := New(s, nil)
	require.NoError(t, r.Adopt(context.Background()))
	return r, s
}

func list(t *testing.T, r *Registry) []browser.TabInfo {
	t.Helper()
	seq, err := r.List(context.Background())
	require.NoError(t, err)
	return slices.Collect(seq)
}

func handles(tabs []browser.TabInfo) []string {
	out := make([]string, 0, len(tabs))
	for _, t := range tabs {
		out = append(out, t.Handle)
	}
	return out
}

func activeHandle(tabs []browser.TabInfo) string {
	for _, t := range tabs {
		if t.Active {
			return t.Handle
		}
	}
	return ""
}

func TestAdopt(t *testing.T) {
	r, _ := newRegistry(t)
	assert.Equal(t, "tab-0", r.Active())
	assert.Equal(t, 1, r.Len())
}

func TestNewTabListClose(t *testing.T) {
	ctx := context.Background()
	r, s := newRegistry(t)

	info, err := r.NewTab(ctx, "https://b.test")
	require.NoError(t, err)
	assert.Equal(t, "tab-1", info.Handle)
	assert.Equal(t, "https://b.test", info.URL)
	assert.True(t, info.Active)
	assert.Equal(t, "tab-1", s.Current())

	tabs := list(t, r)
	assert.Equal(t, []string{"tab-0", "tab-1"}, handles(tabs))
	assert.Equal(t, "tab-1", activeHandle(tabs))

	require.NoError(t, r.CloseTab(ctx, Selector{}))
	tabs = list(t, r)
	assert.Equal(t, []string{"tab-0"}, handles(tabs))
	assert.Equal(t, "tab-0", activeHandle(tabs))
	assert.Equal(t, "tab-0", s.Current())
}

func TestSwitchThenListReportsSwitchedHandle(t *testing.T) {
	ctx := context.Background()
	r, s := newRegistry(t)
	_, err := r.NewTab(ctx, "")
	require.NoError(t, err)
	_, err = r.NewTab(ctx, "")
	require.NoError(t, err)

	info, err := r.SwitchTab(ctx, ByIndex(0))
	require.NoError(t, err)
	assert.Equal(t, "tab-0", info.Handle)
	assert.Equal(t, "tab-0", activeHandle(list(t, r)))
	assert.Equal(t, "tab-0", s.Current())

	_, err = r.SwitchTab(ctx, ByHandle("tab-2"))
	require.NoError(t, err)
	assert.Equal(t, "tab-2", activeHandle(list(t, r)))
}

func TestSwitchTab_Errors(t *testing.T) {
	ctx := context.Background()
	r, _ := newRegistry(t)

	_, err := r.SwitchTab(ctx, ByIndex(3))
	assert.True(t, errors.Is(err, browser.ErrTabNotFound))

	_, err = r.SwitchTab(ctx, ByHandle("nope"))
	assert.True(t, errors.Is(err, browser.ErrTabNotFound))

	_, err = r.SwitchTab(ctx, Selector{Handle: "tab-0", Index: 0, HasIndex: true})
	assert.ErrorContains(t, err, "not both")

	_, err = r.SwitchTab(ctx, Selector{})
	assert.Error(t, err)
	assert.Equal(t, "tab-0", r.Active())
}

func TestCloseActiveMovesToPreceding(t *testing.T) {
	ctx := context.Background()
	r, _ := newRegistry(t)
	for range 3 {
		_, err := r.NewTab(ctx, "")
		require.NoError(t, err)
	}
	_, err := r.SwitchTab(ctx, ByHandle("tab-2"))
	require.NoError(t, err)

	require.NoError(t, r.CloseTab(ctx, Selector{}))
	assert.Equal(t, "tab-1", r.Active())

	// Closing the first tab while it is active falls forward.
	_, err = r.SwitchTab(ctx, ByIndex(0))
	require.NoError(t, err)
	require.NoError(t, r.CloseTab(ctx, ByHandle("tab-0")))
	assert.Equal(t, "tab-1", r.Active())

	// Closing a background tab leaves active alone.
	require.NoError(t, r.CloseTab(ctx, ByHandle("tab-3")))
	assert.Equal(t, "tab-1", r.Active())
}

func TestCloseLastTabLeavesNoActiveUntilNewTab(t *testing.T) {
	ctx := context.Background()
	r, _ := newRegistry(t)

	require.NoError(t, r.CloseTab(ctx, ByIndex(0)))
	assert.Equal(t, "", r.Active())
	assert.Empty(t, list(t, r))

	err := r.EnsureActive(ctx)
	assert.True(t, errors.Is(err, browser.ErrNoActiveTab))
	err = r.CloseTab(ctx, Selector{})
	assert.True(t, errors.Is(err, browser.ErrNoActiveTab))

	_, err = r.NewTab(ctx, "")
	require.NoError(t, err)
	assert.NoError(t, r.EnsureActive(ctx))
}

func TestEnsureActive_ExternallyClosedActiveTab(t *testing.T) {
	ctx := context.Background()
	r, s := newRegistry(t)
	_, err := r.NewTab(ctx, "https://b.test")
	require.NoError(t, err)
	_, err = r.NewTab(ctx, "https://c.test")
	require.NoError(t, err)

	s.CloseExternally("tab-2")

	err = r.EnsureActive(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, browser.ErrTabNotFound))
	assert.Equal(t, "tab-1", r.Active())
	assert.Equal(t, "tab-1", s.Current(), "session must point at the repaired active tab")
	assert.Equal(t, []string{"tab-0", "tab-1"}, handles(list(t, r)))

	assert.NoError(t, r.EnsureActive(ctx), "the repaired tab is usable afterwards")
}

func TestEnsureActive_RefocusesDriftedSession(t *testing.T) {
	ctx := context.Background()
	r, s := newRegistry(t)
	_, err := r.NewTab(ctx, "")
	require.NoError(t, err)
	_, err = r.SwitchTab(ctx, ByIndex(0))
	require.NoError(t, err)

	require.NoError(t, s.SwitchTab(ctx, "tab-1"))
	require.NoError(t, r.EnsureActive(ctx))
	assert.Equal(t, "tab-0", s.Current())
}

func TestReconcileAdoptsExternalTabs(t *testing.T) {
	r, s := newRegistry(t)
	h := s.OpenExternally("https://popup.test")

	tabs := list(t, r)
	assert.Equal(t, []string{"tab-0", h}, handles(tabs))
	assert.Equal(t, "https://popup.test", tabs[1].URL)
	assert.Equal(t, "tab-0", activeHandle(tabs))
}
