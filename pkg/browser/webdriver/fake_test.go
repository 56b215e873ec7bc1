package webdriver

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"testing"
)

// fakeDriver is an in-memory W3C WebDriver server with one browser.
type fakeDriver struct {
	t *testing.T

	mu          sync.Mutex
	newSessions int
	failCreate  bool
	sessionID   string
	deleted     bool
	lastCaps    map[string]any
	windows     []string
	current     string
	urls        map[string]string
	titles      map[string]string
	cdpCommands []string
	actions     []map[string]any
	scripts     []string
	windowRect  map[string]int
	nextWindow  int
}

func newFakeDriver(t *testing.T) (*fakeDriver, *httptest.Server) {
	f := &fakeDriver{
		t:         t,
		sessionID: "sess-1",
		windows:   []string{"w0"},
		current:   "w0",
		urls:      map[string]string{"w0": "about:blank"},
		titles:    map[string]string{"w0": ""},
	}
	srv := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(srv.Close)
	return f, srv
}

func writeValue(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"value": v})
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeValue(w, status, map[string]string{"error": code, "message": msg})
}

func (f *fakeDriver) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)

	if r.URL.Path == "/session" && r.Method == http.MethodPost {
		f.newSessions++
		if f.failCreate {
			writeError(w, http.StatusInternalServerError, codeSessionNotCreate, "cannot find Chrome binary")
			return
		}
		f.lastCaps = body
		writeValue(w, http.StatusOK, map[string]any{"sessionId": f.sessionID, "capabilities": map[string]any{}})
		return
	}

	prefix := "/session/" + f.sessionID
	if !strings.HasPrefix(r.URL.Path, prefix) || f.deleted {
		writeError(w, http.StatusNotFound, codeInvalidSession, "invalid session id")
		return
	}
	path := strings.TrimPrefix(r.URL.Path, prefix)

	needWindow := func() bool {
		if !slices.Contains(f.windows, f.current) {
			writeError(w, http.StatusNotFound, codeNoSuchWindow, "no such window: target window already closed")
			return false
		}
		return true
	}

	switch {
	case path == "" && r.Method == http.MethodDelete:
		f.deleted = true
		writeValue(w, http.StatusOK, nil)
	case path == "/url" && r.Method == http.MethodPost:
		if !needWindow() {
			return
		}
		u := body["url"].(string)
		f.urls[f.current] = u
		f.titles[f.current] = "Title of " + u
		writeValue(w, http.StatusOK, nil)
	case path == "/url":
		if !needWindow() {
			return
		}
		writeValue(w, http.StatusOK, f.urls[f.current])
	case path == "/title":
		if !needWindow() {
			return
		}
		writeValue(w, http.StatusOK, f.titles[f.current])
	case path == "/back", path == "/forward":
		writeValue(w, http.StatusOK, nil)
	case path == "/execute/sync":
		f.scripts = append(f.scripts, body["script"].(string))
		writeValue(w, http.StatusOK, float64(42))
	case path == "/window/handles":
		writeValue(w, http.StatusOK, f.windows)
	case path == "/window" && r.Method == http.MethodGet:
		if !needWindow() {
			return
		}
		writeValue(w, http.StatusOK, f.current)
	case path == "/window" && r.Method == http.MethodPost:
		h := body["handle"].(string)
		if !slices.Contains(f.windows, h) {
			writeError(w, http.StatusNotFound, codeNoSuchWindow, "no such window")
			return
		}
		f.current = h
		writeValue(w, http.StatusOK, nil)
	case path == "/window" && r.Method == http.MethodDelete:
		if !needWindow() {
			return
		}
		f.windows = slices.DeleteFunc(f.windows, func(h string) bool { return h == f.current })
		if len(f.windows) == 0 {
			f.deleted = true
		}
		writeValue(w, http.StatusOK, f.windows)
	case path == "/window/new":
		f.nextWindow++
		h := fmt.Sprintf("w%d", f.nextWindow)
		f.windows = append(f.windows, h)
		f.urls[h] = "about:blank"
		f.titles[h] = ""
		writeValue(w, http.StatusOK, map[string]string{"handle": h, "type": "tab"})
	case path == "/window/rect":
		f.windowRect = map[string]int{"width": int(body["width"].(float64)), "height": int(body["height"].(float64))}
		writeValue(w, http.StatusOK, f.windowRect)
	case path == "/actions":
		f.actions = append(f.actions, body)
		writeValue(w, http.StatusOK, nil)
	case path == "/screenshot":
		writeValue(w, http.StatusOK, base64.StdEncoding.EncodeToString([]byte("\x89PNG-"+f.current)))
	case path == "/goog/cdp/execute":
		f.cdpCommands = append(f.cdpCommands, f.current+":"+body["cmd"].(string))
		writeValue(w, http.StatusOK, map[string]any{"identifier": "1"})
	default:
		writeError(w, http.StatusNotFound, codeUnknownCommand, r.Method+" "+path)
	}
}

// closeExternally removes a window as if the user closed it.
func (f *fakeDriver) closeExternally(h string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.windows = slices.DeleteFunc(f.windows, func(w string) bool { return w == h })
}
