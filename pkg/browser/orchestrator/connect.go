package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/entrhq/webpilot/pkg/browser"
	"github.com/entrhq/webpilot/pkg/browser/cdp"
	"github.com/entrhq/webpilot/pkg/browser/driver"
	"github.com/entrhq/webpilot/pkg/browser/process"
	"github.com/entrhq/webpilot/pkg/browser/webdriver"
	"github.com/entrhq/webpilot/pkg/config"
	"github.com/entrhq/webpilot/pkg/logging"
)

// Connection is an established session plus everything that was acquired to
// reach it.
type Connection struct {
	Session browser.Session

	// Lost is closed when the browser or driver goes away. Nil means the
	// connection cannot detect that.
	Lost <-chan struct{}

	// Release closes the session and stops every process started for it.
	Release func(ctx context.Context) error
}

// Connector establishes browser sessions.
type Connector interface {
	Connect(ctx context.Context) (*Connection, error)
	// Close releases what the connector shares between connections.
	Close(ctx context.Context) error
}

// BrowserConnector reaches a real browser according to the settings:
// acquire a driver, launch it and open a WebDriver session, or launch or
// attach to a Chromium browser over CDP.
type BrowserConnector struct {
	settings *config.Settings
	logger   *logging.Logger
	acquirer *driver.Acquirer
	launcher *process.Launcher
	runtime  *cdp.Runtime
	client   *http.Client
}

// NewBrowserConnector builds a connector. A nil acquirer gets the default
// one.
func NewBrowserConnector(settings *config.Settings, acquirer *driver.Acquirer, logger *logging.Logger) *BrowserConnector {
	if logger == nil {
		logger = logging.Discard()
	}
	if acquirer == nil {
		acquirer = driver.NewAcquirer(logger.Named("driver"))
	}
	return &BrowserConnector{
		settings: settings,
		logger:   logger,
		acquirer: acquirer,
		launcher: process.NewLauncher(logger.Named("process")),
		runtime:  cdp.NewRuntime(logger.Named("cdp")),
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

// Connect implements Connector.
func (c *BrowserConnector) Connect(ctx context.Context) (*Connection, error) {
	if c.settings.ConnectionMode() == browser.ModeCDP {
		return c.connectCDP(ctx)
	}
	return c.connectWebDriver(ctx)
}

// Close stops every process the connector started and the Playwright
// driver.
func (c *BrowserConnector) Close(ctx context.Context) error {
	return errors.Join(c.launcher.Shutdown(ctx), c.runtime.Stop())
}

func (c *BrowserConnector) connectWebDriver(ctx context.Context) (*Connection, error) {
	bspec := c.settings.BrowserSpec()
	dspec := c.settings.DriverSpec()
	opts := webdriver.Options{Logger: c.logger.Named("webdriver")}

	if dspec.RemoteURL != "" {
		c.logger.Infof("using external webdriver at %s", dspec.RemoteURL)
		s, err := webdriver.NewSession(ctx, dspec.RemoteURL, bspec, opts)
		if err != nil {
			return nil, err
		}
		return &Connection{Session: s, Release: s.Close}, nil
	}

	if !dspec.AutoLaunch {
		base := "http://127.0.0.1:" + strconv.Itoa(dspec.Port)
		c.logger.Infof("auto start disabled, expecting a driver at %s", base)
		s, err := webdriver.NewSession(ctx, base, bspec, opts)
		if err != nil {
			return nil, err
		}
		return &Connection{Session: s, Release: s.Close}, nil
	}

	res, err := c.acquirer.Acquire(ctx, bspec, dspec)
	if err != nil {
		return nil, err
	}
	c.logger.Infof("using %s %s (%s)", driver.DriverName(bspec.Kind), res.Path, res.Origin)

	proc, err := c.launcher.Start(ctx, driverSpec(bspec.Kind, res.Path, dspec.Port, c.settings.Driver.LaunchTimeout))
	if err != nil {
		return nil, err
	}
	stop := func(ctx context.Context) error { return c.launcher.Stop(ctx, proc) }

	base := "http://127.0.0.1:" + strconv.Itoa(proc.Port())
	s, err := webdriver.NewSession(ctx, base, bspec, opts)
	if err != nil {
		_ = stop(context.WithoutCancel(ctx))
		return nil, err
	}
	return &Connection{
		Session: s,
		Lost:    proc.Done(),
		Release: func(ctx context.Context) error {
			return errors.Join(s.Close(ctx), stop(ctx))
		},
	}, nil
}

// driverSpec describes the driver process. The default port is probed
// rather than required so that several servers can run side by side.
func driverSpec(kind browser.Kind, path string, port int, timeout time.Duration) process.Spec {
	explicit := port
	if explicit == config.DefaultDriverPort {
		explicit = 0
	}
	return process.Spec{
		Name: driver.DriverName(kind),
		Path: path,
		Args: func(port int) []string {
			switch kind {
			case browser.KindFirefox:
				return []string{"--port", strconv.Itoa(port)}
			case browser.KindSafari:
				return []string{"-p", strconv.Itoa(port)}
			default:
				return []string{"--port=" + strconv.Itoa(port)}
			}
		},
		Port:         explicit,
		DefaultPort:  config.DefaultDriverPort,
		ReadyTimeout: timeout,
	}
}

func (c *BrowserConnector) connectCDP(ctx context.Context) (*Connection, error) {
	bspec := c.settings.BrowserSpec()
	cspec := c.settings.CDPSpec()
	opts := cdp.Options{HTTPClient: c.client, Logger: c.logger.Named("cdp")}

	// An explicit endpoint, or auto start turned off, means attaching to a
	// browser someone else runs.
	if cspec.Endpoint != "" || !c.settings.Driver.AutoStart {
		endpoint := cdp.Endpoint(cspec)
		c.logger.Infof("attaching to browser at %s", endpoint)
		s, err := cdp.Connect(ctx, c.runtime, endpoint, opts)
		if err != nil {
			return nil, err
		}
		return &Connection{Session: s, Lost: s.Lost(), Release: s.Close}, nil
	}

	binary, err := driver.FindBrowser(bspec)
	if err != nil {
		return nil, browser.NewError(browser.ErrDriverNotFound, "find browser", err)
	}
	profile, err := os.MkdirTemp("", "webpilot-profile-")
	if err != nil {
		return nil, browser.NewError(browser.ErrLaunchTimeout, "create profile", err)
	}

	proc, err := c.launcher.Start(ctx, cdp.LaunchSpec(bspec, binary, cspec, profile, c.settings.Driver.LaunchTimeout))
	if err != nil {
		_ = os.RemoveAll(profile)
		return nil, err
	}
	cleanup := func(ctx context.Context) error {
		stopErr := c.launcher.Stop(ctx, proc)
		if err := os.RemoveAll(profile); err != nil {
			c.logger.Warnf("failed to remove profile %s: %v", profile, err)
		}
		return stopErr
	}

	endpoint := fmt.Sprintf("http://127.0.0.1:%d", proc.Port())
	s, err := cdp.Connect(ctx, c.runtime, endpoint, opts)
	if err != nil {
		_ = cleanup(context.WithoutCancel(ctx))
		return nil, err
	}
	return &Connection{
		Session: s,
		Lost:    either(proc.Done(), s.Lost()),
		Release: func(ctx context.Context) error {
			return errors.Join(s.Close(ctx), cleanup(ctx))
		},
	}, nil
}

// either returns a channel closed when a or b is closed.
func either(a, b <-chan struct{}) <-chan struct{} {
	out := make(chan struct{})
	go func() {
		defer close(out)
		select {
		case <-a:
		case <-b:
		}
	}()
	return out
}
