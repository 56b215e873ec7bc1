package cdp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/entrhq/webpilot/pkg/browser"
	"github.com/entrhq/webpilot/pkg/browser/process"
)

const defaultDevToolsPort = 9222

// VersionInfo is the payload of the DevTools /json/version endpoint.
type VersionInfo struct {
	Browser              string `json:"Browser"`
	ProtocolVersion      string `json:"Protocol-Version"`
	UserAgent            string `json:"User-Agent"`
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
}

// Endpoint returns the HTTP DevTools endpoint for spec. An explicit endpoint
// wins over the port.
func Endpoint(spec browser.CDPSpec) string {
	if spec.Endpoint != "" {
		return strings.TrimRight(spec.Endpoint, "/")
	}
	port := spec.Port
	if port == 0 {
		port = defaultDevToolsPort
	}
	return "http://127.0.0.1:" + strconv.Itoa(port)
}

// Probe fetches /json/version once.
func Probe(ctx context.Context, client *http.Client, endpoint string) (VersionInfo, error) {
	var info VersionInfo
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"/json/version", nil)
	if err != nil {
		return info, fmt.Errorf("creating request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return info, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return info, fmt.Errorf("devtools endpoint returned status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return info, fmt.Errorf("decoding version info: %w", err)
	}
	if info.WebSocketDebuggerURL == "" {
		return info, fmt.Errorf("devtools endpoint reported no debugger url")
	}
	return info, nil
}

// WaitReady polls the endpoint until it answers, trying at most attempts
// times.
func WaitReady(ctx context.Context, client *http.Client, endpoint string, attempts uint, interval time.Duration) (VersionInfo, error) {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = interval
	b.MaxInterval = 2 * time.Second

	info, err := backoff.Retry(ctx, func() (VersionInfo, error) {
		return Probe(ctx, client, endpoint)
	}, backoff.WithBackOff(b), backoff.WithMaxTries(attempts))
	if err != nil {
		return VersionInfo{}, browser.NewError(browser.ErrSessionInit, "connect", fmt.Errorf("devtools endpoint %s unreachable: %w", endpoint, err))
	}
	return info, nil
}

// LaunchSpec describes the browser process started for CDP mode. The browser
// gets its own profile directory so it never hands the launch over to an
// instance the user already has open.
//
// The default port is probed rather than required, so a second server
// instance moves to the next free port.
func LaunchSpec(spec browser.BrowserSpec, binary string, cdp browser.CDPSpec, profileDir string, timeout time.Duration) process.Spec {
	explicit := cdp.Port
	if explicit == defaultDevToolsPort {
		explicit = 0
	}
	return process.Spec{
		Name: string(spec.Kind),
		Path: binary,
		Args: func(port int) []string {
			args := []string{
				"--remote-debugging-port=" + strconv.Itoa(port),
				"--user-data-dir=" + profileDir,
			}
			args = append(args, browser.ChromiumArgs(spec)...)
			return append(args, "about:blank")
		},
		Port:         explicit,
		DefaultPort:  defaultDevToolsPort,
		ReadyTimeout: timeout,
		Ready: func(ctx context.Context, port int) error {
			_, err := Probe(ctx, http.DefaultClient, "http://127.0.0.1:"+strconv.Itoa(port))
			return err
		},
	}
}
