package cdp

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/webpilot/pkg/browser"
)

func versionServer(t *testing.T, failFirst int32) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		if r.URL.Path != "/json/version" {
			http.NotFound(w, r)
			return
		}
		if n <= failFirst {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"Browser":"Chrome/126.0.6478.126","Protocol-Version":"1.3","webSocketDebuggerUrl":"ws://127.0.0.1/devtools/browser/abc"}`))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestEndpoint(t *testing.T) {
	assert.Equal(t, "http://127.0.0.1:9222", Endpoint(browser.CDPSpec{}))
	assert.Equal(t, "http://127.0.0.1:9333", Endpoint(browser.CDPSpec{Port: 9333}))
	assert.Equal(t, "http://remote:9222", Endpoint(browser.CDPSpec{Port: 9333, Endpoint: "http://remote:9222/"}))
}

func TestWaitReady_RetriesUntilUp(t *testing.T) {
	srv, calls := versionServer(t, 2)

	info, err := WaitReady(context.Background(), srv.Client(), srv.URL, 5, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, "Chrome/126.0.6478.126", info.Browser)
	assert.Equal(t, int32(3), calls.Load())
}

func TestWaitReady_Bounded(t *testing.T) {
	srv, calls := versionServer(t, 100)

	_, err := WaitReady(context.Background(), srv.Client(), srv.URL, 3, time.Millisecond)
	require.Error(t, err)
	assert.True(t, errors.Is(err, browser.ErrSessionInit))
	assert.Equal(t, int32(3), calls.Load())
}

func TestProbe_RequiresDebuggerURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"Browser":"Chrome/126"}`))
	}))
	defer srv.Close()

	_, err := Probe(context.Background(), srv.Client(), srv.URL)
	assert.ErrorContains(t, err, "no debugger url")
}

func TestLaunchSpec(t *testing.T) {
	spec := browser.BrowserSpec{
		Kind:     browser.KindChrome,
		Headless: true,
		Stealth:  true,
		Window:   browser.WindowSize{Width: 1024, Height: 768},
	}

	ps := LaunchSpec(spec, "/usr/bin/chrome", browser.CDPSpec{Port: 9222}, "/tmp/profile", time.Second)
	assert.Equal(t, 0, ps.Port, "default port is probed, not required")
	assert.Equal(t, 9222, ps.DefaultPort)

	args := strings.Join(ps.Args(9223), " ")
	assert.Contains(t, args, "--remote-debugging-port=9223")
	assert.Contains(t, args, "--user-data-dir=/tmp/profile")
	assert.Contains(t, args, "--headless=new")
	assert.Contains(t, args, "--window-size=1024,768")
	assert.Contains(t, args, "--disable-blink-features=AutomationControlled")
	assert.True(t, strings.HasSuffix(args, "about:blank"))

	ps = LaunchSpec(spec, "/usr/bin/chrome", browser.CDPSpec{Port: 9400}, "/tmp/profile", time.Second)
	assert.Equal(t, 9400, ps.Port)
}
