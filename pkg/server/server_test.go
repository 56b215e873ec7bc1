package server

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/webpilot/pkg/browser/orchestrator"
	"github.com/entrhq/webpilot/pkg/config"
	browsertools "github.com/entrhq/webpilot/pkg/tools/browser"
)

// fakeBrowser answers Status and ClickAt; any other call panics on the nil
// embedded interface.
type fakeBrowser struct {
	browsertools.Browser
	status orchestrator.Status
	clicks int
}

func (f *fakeBrowser) Status() orchestrator.Status { return f.status }

func (f *fakeBrowser) ClickAt(ctx context.Context, x, y int) (orchestrator.Result, error) {
	f.clicks++
	return orchestrator.Result{URL: "https://a.test/", Message: "clicked"}, nil
}

func newServer(t *testing.T, disabled ...string) (*Server, *fakeBrowser) {
	t.Helper()
	settings := config.Defaults()
	settings.Tools.Disabled = disabled
	b := &fakeBrowser{status: orchestrator.Status{Active: true, Mode: "cdp", Tabs: 2}}
	s, err := New(settings, b, "test", nil)
	require.NoError(t, err)
	return s, b
}

// rpc sends one JSON-RPC message and returns the decoded response.
func rpc(t *testing.T, s *Server, msg string) map[string]any {
	t.Helper()
	res := s.MCP().HandleMessage(context.Background(), json.RawMessage(msg))
	require.NotNil(t, res)
	data, err := json.Marshal(res)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func listedTools(t *testing.T, s *Server) []string {
	t.Helper()
	out := rpc(t, s, `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)
	result, ok := out["result"].(map[string]any)
	require.True(t, ok, "tools/list result: %v", out)
	var names []string
	for _, tool := range result["tools"].([]any) {
		names = append(names, tool.(map[string]any)["name"].(string))
	}
	return names
}

func TestNew_OffersEveryTool(t *testing.T) {
	s, _ := newServer(t)
	assert.Len(t, s.Tools(), 18)
	assert.ElementsMatch(t, s.Tools(), listedTools(t, s))
}

func TestNew_DisabledTools(t *testing.T) {
	s, _ := newServer(t, "search", "*_tab")

	names := listedTools(t, s)
	assert.NotContains(t, names, "search")
	assert.NotContains(t, names, "new_tab")
	assert.NotContains(t, names, "close_tab")
	assert.NotContains(t, names, "switch_tab")
	assert.Contains(t, names, "list_tabs")
	assert.Contains(t, names, "click_at")
	assert.Len(t, names, 14)
}

func TestNew_InvalidPattern(t *testing.T) {
	settings := config.Defaults()
	settings.Tools.Disabled = []string{"[unclosed"}
	_, err := New(settings, &fakeBrowser{}, "test", nil)
	assert.Error(t, err)
}

func TestCallDisabledToolIsRejected(t *testing.T) {
	s, b := newServer(t, "click_at")

	out := rpc(t, s, `{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"click_at","arguments":{"x":1,"y":2}}}`)
	assert.Contains(t, out, "error")
	assert.NotContains(t, out, "result")
	assert.Zero(t, b.clicks)
}

func TestCallTool(t *testing.T) {
	s, b := newServer(t)

	out := rpc(t, s, `{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"click_at","arguments":{"x":1,"y":2}}}`)
	require.Contains(t, out, "result")
	assert.Equal(t, 1, b.clicks)

	result := out["result"].(map[string]any)
	content := result["content"].([]any)
	text := content[0].(map[string]any)["text"].(string)
	assert.Contains(t, text, `"success":true`)
	assert.Contains(t, text, `"url":"https://a.test/"`)
}

func TestServeHTTP(t *testing.T) {
	s, _ := newServer(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	base := "http://" + ln.Addr().String()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.ServeHTTP(ctx, ln) }()

	// a tool call so the counter has a sample
	rpc(t, s, `{"jsonrpc":"2.0","id":4,"method":"tools/call","params":{"name":"click_at","arguments":{"x":3,"y":4}}}`)

	resp, err := http.Get(base + "/healthz")
	require.NoError(t, err)
	var h health
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&h))
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", h.Status)
	assert.True(t, h.Browser.Active)
	assert.Equal(t, 2, h.Browser.Tabs)
	assert.Equal(t, 18, h.Tools)

	resp, err = http.Get(base + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Contains(t, string(body), `webpilot_tool_calls_total{outcome="ok",tool="click_at"}`)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestServeStdio(t *testing.T) {
	s, _ := newServer(t)

	inR, inW := io.Pipe()
	outR, outW := io.Pipe()
	defer inW.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- s.ServeStdio(ctx, inR, outW) }()

	go func() {
		_, _ = io.WriteString(inW, `{"jsonrpc":"2.0","id":1,"method":"ping"}`+"\n")
	}()

	line, err := bufio.NewReader(outR).ReadString('\n')
	require.NoError(t, err)
	assert.Contains(t, line, `"id":1`)
	assert.Contains(t, line, `"result"`)

	cancel()
	go func() { _, _ = io.Copy(io.Discard, outR) }()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("stdio server did not stop")
	}
}
