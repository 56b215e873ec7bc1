//go:build !windows

package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/webpilot/pkg/browser"
	"github.com/entrhq/webpilot/pkg/browser/driver"
	"github.com/entrhq/webpilot/pkg/config"
	"github.com/entrhq/webpilot/pkg/logging"
)

// TestHelperProcess is not a real test. It is re-executed through a driver
// script to stand in for chromedriver.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("WEBPILOT_HELPER_PROCESS") != "1" {
		return
	}
	args := os.Args
	for len(args) > 0 && args[0] != "--" {
		args = args[1:]
	}
	if len(args) < 3 {
		os.Exit(2)
	}
	mode, port := args[1], strings.TrimPrefix(args[2], "--port=")

	ln, err := net.Listen("tcp", "127.0.0.1:"+port)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	_ = http.Serve(ln, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/session":
			if mode == "reject" {
				writeWebDriver(w, http.StatusInternalServerError, map[string]string{
					"error":   "session not created",
					"message": "cannot find Chrome binary",
				})
				return
			}
			writeWebDriver(w, http.StatusOK, map[string]any{"sessionId": "sess-1", "capabilities": map[string]any{}})
			if mode == "crash" {
				go func() {
					time.Sleep(100 * time.Millisecond)
					os.Exit(3)
				}()
			}
		case r.Method == http.MethodDelete:
			writeWebDriver(w, http.StatusOK, nil)
		default:
			writeWebDriver(w, http.StatusNotFound, map[string]string{"error": "unknown command", "message": r.URL.Path})
		}
	}))
	os.Exit(0)
}

func writeWebDriver(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"value": v})
}

// helperDriver writes an executable that runs this test binary as a driver
// in the given mode. It stands in for a pinned chromedriver path.
func helperDriver(t *testing.T, mode string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chromedriver")
	script := fmt.Sprintf("#!/bin/sh\nWEBPILOT_HELPER_PROCESS=1 exec '%s' -test.run=TestHelperProcess -- %s \"$@\"\n", os.Args[0], mode)
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

// offlineAcquirer fails every lookup and counts how often it was asked.
func offlineAcquirer(lookups *atomic.Int32) *driver.Acquirer {
	return driver.NewAcquirer(logging.Discard(),
		driver.WithLookPath(func(string) (string, error) {
			lookups.Add(1)
			return "", errors.New("not found")
		}),
		driver.WithSearchDirs(),
	)
}

func newConnector(t *testing.T, settings *config.Settings, acquirer *driver.Acquirer) *BrowserConnector {
	t.Helper()
	c := NewBrowserConnector(settings, acquirer, nil)
	c.launcher.SetGrace(500 * time.Millisecond)
	t.Cleanup(func() { _ = c.Close(context.Background()) })
	return c
}

func TestConnect_RemoteURLSkipsAcquisition(t *testing.T) {
	var created atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && r.URL.Path == "/session" {
			created.Add(1)
			writeWebDriver(w, http.StatusOK, map[string]any{"sessionId": "remote-1", "capabilities": map[string]any{}})
			return
		}
		writeWebDriver(w, http.StatusOK, nil)
	}))
	defer srv.Close()

	settings := config.Defaults()
	settings.Driver.WebDriverURL = srv.URL
	var lookups atomic.Int32
	c := newConnector(t, settings, offlineAcquirer(&lookups))

	conn, err := c.Connect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), created.Load())
	assert.Zero(t, lookups.Load(), "no driver is looked up")
	assert.Empty(t, c.launcher.Running(), "no process is started")
	assert.Nil(t, conn.Lost)
	assert.Equal(t, browser.ModeWebDriver, conn.Session.Mode())

	assert.NoError(t, conn.Release(context.Background()))
}

func TestConnect_RejectedSessionStopsDriver(t *testing.T) {
	settings := config.Defaults()
	settings.Driver.Path = helperDriver(t, "reject")
	settings.Driver.LaunchTimeout = 10 * time.Second
	c := newConnector(t, settings, nil)

	_, err := c.Connect(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, browser.ErrSessionInit))
	assert.Contains(t, err.Error(), "cannot find Chrome binary")
	assert.Empty(t, c.launcher.Running(), "the driver is stopped when no session could be created")
}

func TestConnect_LostWhenDriverExits(t *testing.T) {
	settings := config.Defaults()
	settings.Driver.Path = helperDriver(t, "crash")
	settings.Driver.LaunchTimeout = 10 * time.Second
	c := newConnector(t, settings, nil)

	conn, err := c.Connect(context.Background())
	require.NoError(t, err)
	require.NotNil(t, conn.Lost)
	assert.Len(t, c.launcher.Running(), 1)

	select {
	case <-conn.Lost:
	case <-time.After(10 * time.Second):
		t.Fatal("lost was not closed after the driver exited")
	}
	_ = conn.Release(context.Background())
}

func TestConnect_ReleaseStopsDriver(t *testing.T) {
	settings := config.Defaults()
	settings.Driver.Path = helperDriver(t, "serve")
	settings.Driver.LaunchTimeout = 10 * time.Second
	c := newConnector(t, settings, nil)

	conn, err := c.Connect(context.Background())
	require.NoError(t, err)
	require.Len(t, c.launcher.Running(), 1)

	require.NoError(t, conn.Release(context.Background()))
	assert.Empty(t, c.launcher.Running())
	select {
	case <-conn.Lost:
	case <-time.After(5 * time.Second):
		t.Fatal("lost was not closed after release")
	}
}

func TestConnect_CDPMissingBrowser(t *testing.T) {
	settings := config.Defaults()
	settings.Session.Mode = string(browser.ModeCDP)
	settings.Browser.BinaryPath = filepath.Join(t.TempDir(), "no-such-chrome")
	c := newConnector(t, settings, nil)

	_, err := c.Connect(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, browser.ErrDriverNotFound))
	assert.False(t, errors.Is(err, browser.ErrLaunchTimeout))
	assert.Empty(t, c.launcher.Running())
}

func TestEither(t *testing.T) {
	a, b := make(chan struct{}), make(chan struct{})
	out := either(a, b)

	select {
	case <-out:
		t.Fatal("closed before either input")
	case <-time.After(20 * time.Millisecond):
	}

	close(b)
	select {
	case <-out:
	case <-time.After(time.Second):
		t.Fatal("not closed after the second input closed")
	}
}
