package webdriver

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/webpilot/pkg/browser"
)

func testSpec() browser.BrowserSpec {
	return browser.BrowserSpec{
		Kind:    browser.KindChrome,
		Window:  browser.WindowSize{Width: 1280, Height: 720},
		Stealth: true,
	}
}

func newTestSession(t *testing.T, f *fakeDriver, url string) *Session {
	t.Helper()
	s, err := NewSession(context.Background(), url, testSpec(), Options{RetryInterval: time.Millisecond})
	require.NoError(t, err)
	return s
}

func TestNewSession_Capabilities(t *testing.T) {
	f, srv := newFakeDriver(t)
	s := newTestSession(t, f, srv.URL)

	assert.Equal(t, "sess-1", s.ID())
	assert.Equal(t, browser.ModeWebDriver, s.Mode())

	caps := f.lastCaps["capabilities"].(map[string]any)["alwaysMatch"].(map[string]any)
	assert.Equal(t, "chrome", caps["browserName"])
	opts := caps["goog:chromeOptions"].(map[string]any)
	args := opts["args"].([]any)
	assert.Contains(t, args, "--window-size=1280,720")
	assert.Contains(t, args, "--disable-blink-features=AutomationControlled")
	assert.Equal(t, []any{"enable-automation"}, opts["excludeSwitches"])
	assert.Equal(t, map[string]int{"width": 1280, "height": 720}, f.windowRect)
}

func TestNewSession_ServerErrorIsNotRetried(t *testing.T) {
	f, srv := newFakeDriver(t)
	f.failCreate = true

	_, err := NewSession(context.Background(), srv.URL, testSpec(), Options{RetryInterval: time.Millisecond})
	require.Error(t, err)
	assert.True(t, errors.Is(err, browser.ErrSessionInit))
	assert.Contains(t, err.Error(), "cannot find Chrome binary")
	assert.Equal(t, 1, f.newSessions)
}

func TestNewSession_UnreachableIsBounded(t *testing.T) {
	srv := httptest.NewServer(nil)
	url := srv.URL
	srv.Close()

	_, err := NewSession(context.Background(), url, testSpec(), Options{Attempts: 3, RetryInterval: time.Millisecond})
	require.Error(t, err)
	assert.True(t, errors.Is(err, browser.ErrSessionInit))
}

func TestSession_NavigateAndRead(t *testing.T) {
	f, srv := newFakeDriver(t)
	s := newTestSession(t, f, srv.URL)
	ctx := context.Background()

	require.NoError(t, s.Navigate(ctx, "https://example.com"))
	u, err := s.URL(ctx)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com", u)

	title, err := s.Title(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Title of https://example.com", title)

	png, err := s.Screenshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, "\x89PNG-w0", string(png))

	v, err := s.Evaluate(ctx, "  1 + 41; ")
	require.NoError(t, err)
	assert.Equal(t, float64(42), v)
	assert.Equal(t, "return (1 + 41);", f.scripts[0])
}

func TestSession_TabLifecycle(t *testing.T) {
	f, srv := newFakeDriver(t)
	s := newTestSession(t, f, srv.URL)
	ctx := context.Background()

	require.NoError(t, s.Navigate(ctx, "https://a.test"))
	h, err := s.NewTab(ctx)
	require.NoError(t, err)
	require.NoError(t, s.Navigate(ctx, "https://b.test"))

	cur, err := s.CurrentTab(ctx)
	require.NoError(t, err)
	assert.Equal(t, h, cur)

	tabs, err := s.Tabs(ctx)
	require.NoError(t, err)
	require.Len(t, tabs, 2)
	assert.Equal(t, "https://a.test", tabs[0].URL)
	assert.Equal(t, "https://b.test", tabs[1].URL)

	cur, _ = s.CurrentTab(ctx)
	assert.Equal(t, h, cur, "listing tabs must not move the current tab")

	// Closing a background tab keeps the current one.
	require.NoError(t, s.CloseTab(ctx, "w0"))
	cur, _ = s.CurrentTab(ctx)
	assert.Equal(t, h, cur)

	err = s.SwitchTab(ctx, "w0")
	assert.True(t, errors.Is(err, browser.ErrTabNotFound))
	err = s.CloseTab(ctx, "w0")
	assert.True(t, errors.Is(err, browser.ErrTabNotFound))
}

func TestSession_CloseLastTabKeepsSession(t *testing.T) {
	f, srv := newFakeDriver(t)
	s := newTestSession(t, f, srv.URL)
	ctx := context.Background()

	require.NoError(t, s.CloseTab(ctx, "w0"))

	tabs, err := s.Tabs(ctx)
	require.NoError(t, err)
	assert.Empty(t, tabs, "placeholder tab must stay hidden")

	cur, err := s.CurrentTab(ctx)
	require.NoError(t, err)
	assert.Empty(t, cur)

	h, err := s.NewTab(ctx)
	require.NoError(t, err)
	tabs, err = s.Tabs(ctx)
	require.NoError(t, err)
	require.Len(t, tabs, 1)
	assert.Equal(t, h, tabs[0].Handle)
	assert.Equal(t, 1, f.nextWindow, "placeholder is reused instead of opening another tab")
}

func TestSession_InitScriptsReplayedPerTab(t *testing.T) {
	f, srv := newFakeDriver(t)
	s := newTestSession(t, f, srv.URL)
	ctx := context.Background()

	require.NoError(t, s.AddInitScript(ctx, "a()"))
	require.NoError(t, s.AddInitScript(ctx, "b()"))
	h, err := s.NewTab(ctx)
	require.NoError(t, err)
	require.NoError(t, s.SwitchTab(ctx, "w0"))

	assert.Equal(t, []string{
		"w0:Page.addScriptToEvaluateOnNewDocument",
		"w0:Page.addScriptToEvaluateOnNewDocument",
		h + ":Page.addScriptToEvaluateOnNewDocument",
		h + ":Page.addScriptToEvaluateOnNewDocument",
	}, f.cdpCommands)
}

func TestSession_InitScriptsUnsupported(t *testing.T) {
	f, srv := newFakeDriver(t)
	spec := testSpec()
	spec.Kind = browser.KindFirefox
	s, err := NewSession(context.Background(), srv.URL, spec, Options{})
	require.NoError(t, err)

	err = s.AddInitScript(context.Background(), "a()")
	assert.True(t, errors.Is(err, errors.ErrUnsupported))
	assert.Empty(t, f.cdpCommands)
}

func TestSession_ExternallyClosedCurrentTab(t *testing.T) {
	f, srv := newFakeDriver(t)
	s := newTestSession(t, f, srv.URL)
	ctx := context.Background()

	_, err := s.NewTab(ctx)
	require.NoError(t, err)
	f.closeExternally("w1")

	cur, err := s.CurrentTab(ctx)
	require.NoError(t, err)
	assert.Empty(t, cur)

	_, err = s.URL(ctx)
	assert.True(t, errors.Is(err, browser.ErrTabNotFound))

	tabs, err := s.Tabs(ctx)
	require.NoError(t, err)
	require.Len(t, tabs, 1)
	assert.Equal(t, "w0", tabs[0].Handle)
}

func TestSession_Input(t *testing.T) {
	f, srv := newFakeDriver(t)
	s := newTestSession(t, f, srv.URL)
	ctx := context.Background()

	require.NoError(t, s.Pointer(ctx, browser.PointerInput{Kind: browser.PointerClick, X: 10, Y: 20}))
	require.NoError(t, s.Keyboard(ctx, browser.KeyInput{Chord: []string{browser.KeyControl, "a"}}))
	require.NoError(t, s.Keyboard(ctx, browser.KeyInput{}))
	require.Len(t, f.actions, 2)

	click := f.actions[0]["actions"].([]any)[0].(map[string]any)
	assert.Equal(t, "pointer", click["type"])
	assert.Len(t, click["actions"], 3)
}

func TestSession_CloseIsIdempotent(t *testing.T) {
	f, srv := newFakeDriver(t)
	s := newTestSession(t, f, srv.URL)

	require.NoError(t, s.Close(context.Background()))
	require.NoError(t, s.Close(context.Background()))
	assert.True(t, f.deleted)

	_, err := s.URL(context.Background())
	assert.True(t, errors.Is(err, browser.ErrProcessCrashed))
}
