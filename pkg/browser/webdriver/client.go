package webdriver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"syscall"
	"time"

	"github.com/entrhq/webpilot/pkg/browser"
)

const defaultRequestTimeout = 60 * time.Second

// ProtocolError is an error reported by the WebDriver server.
type ProtocolError struct {
	Status  int
	Code    string `json:"error"`
	Message string `json:"message"`
}

func (e *ProtocolError) Error() string {
	msg := e.Message
	if i := strings.IndexByte(msg, '\n'); i >= 0 {
		msg = msg[:i]
	}
	if msg == "" {
		return fmt.Sprintf("webdriver: %s (status %d)", e.Code, e.Status)
	}
	return fmt.Sprintf("webdriver: %s: %s", e.Code, msg)
}

// W3C error codes the session reacts to.
const (
	codeNoSuchWindow     = "no such window"
	codeInvalidSession   = "invalid session id"
	codeSessionNotCreate = "session not created"
	codeUnknownCommand   = "unknown command"
)

// Client speaks the W3C WebDriver wire protocol to one server.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient creates a client for the server at baseURL, e.g.
// "http://127.0.0.1:9515". A nil httpClient uses a client with a 60s
// timeout.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultRequestTimeout}
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

// BaseURL returns the server URL.
func (c *Client) BaseURL() string { return c.baseURL }

// Status reports whether the server is ready to create sessions.
func (c *Client) Status(ctx context.Context) error {
	var status struct {
		Ready   bool   `json:"ready"`
		Message string `json:"message"`
	}
	if err := c.do(ctx, http.MethodGet, "/status", nil, &status); err != nil {
		return err
	}
	if !status.Ready {
		return fmt.Errorf("webdriver not ready: %s", status.Message)
	}
	return nil
}

// do sends a command and decodes the "value" member of the response into
// out, which may be nil.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(data)
	} else if method == http.MethodPost {
		reader = strings.NewReader("{}")
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if reader != nil {
		req.Header.Set("Content-Type", "application/json; charset=utf-8")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, syscall.ECONNREFUSED) {
			return browser.NewError(browser.ErrProcessCrashed, method+" "+path, err)
		}
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	var envelope struct {
		Value json.RawMessage `json:"value"`
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &envelope); err != nil {
			return fmt.Errorf("decoding response (status %d): %w", resp.StatusCode, err)
		}
	}

	if resp.StatusCode >= 400 {
		perr := &ProtocolError{Status: resp.StatusCode}
		if len(envelope.Value) > 0 {
			_ = json.Unmarshal(envelope.Value, perr)
		}
		if perr.Code == "" {
			perr.Code = http.StatusText(resp.StatusCode)
		}
		return classify(perr)
	}

	if out == nil || len(envelope.Value) == 0 {
		return nil
	}
	if err := json.Unmarshal(envelope.Value, out); err != nil {
		return fmt.Errorf("decoding value: %w", err)
	}
	return nil
}

// classify attaches an error kind to protocol errors the callers branch on.
func classify(perr *ProtocolError) error {
	switch perr.Code {
	case codeNoSuchWindow:
		return browser.NewError(browser.ErrTabNotFound, "", perr)
	case codeInvalidSession:
		return browser.NewError(browser.ErrProcessCrashed, "", perr)
	default:
		return perr
	}
}
