// Package cdp implements browser.Session by attaching to a Chromium DevTools
// endpoint through Playwright.
package cdp

import (
	"fmt"
	"io"
	"sync"

	"github.com/playwright-community/playwright-go"

	"github.com/entrhq/webpilot/pkg/logging"
)

// Runtime owns the Playwright driver. It is started on first use and shared
// by every session of the process.
type Runtime struct {
	logger *logging.Logger

	mu          sync.Mutex
	pw          *playwright.Playwright
	initialized bool
}

// NewRuntime creates a runtime. Nothing is installed or started until the
// first Connect.
func NewRuntime(logger *logging.Logger) *Runtime {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Runtime{logger: logger}
}

// playwright returns the running driver, installing and starting it if
// needed. Browsers are never downloaded: sessions attach to a browser that is
// already running.
func (r *Runtime) playwright() (*playwright.Playwright, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.initialized {
		return r.pw, nil
	}

	// Output must never reach stdout, which carries the stdio transport.
	opts := &playwright.RunOptions{
		SkipInstallBrowsers: true,
		Verbose:             false,
		Stdout:              io.Discard,
		Stderr:              io.Discard,
	}
	if err := playwright.Install(opts); err != nil {
		return nil, fmt.Errorf("failed to install playwright driver: %w", err)
	}
	pw, err := playwright.Run(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	r.logger.Debugf("playwright driver started")
	r.pw = pw
	r.initialized = true
	return pw, nil
}

// Stop stops the driver if it was started.
func (r *Runtime) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.initialized {
		return nil
	}
	r.initialized = false
	pw := r.pw
	r.pw = nil
	if err := pw.Stop(); err != nil {
		return fmt.Errorf("failed to stop playwright: %w", err)
	}
	return nil
}
