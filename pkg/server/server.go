// Package server assembles the MCP server that exposes the browser tools and
// runs it over stdio or streamable HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"golang.org/x/net/netutil"

	"github.com/entrhq/webpilot/pkg/browser/orchestrator"
	"github.com/entrhq/webpilot/pkg/config"
	"github.com/entrhq/webpilot/pkg/logging"
	"github.com/entrhq/webpilot/pkg/metrics"
	browsertools "github.com/entrhq/webpilot/pkg/tools/browser"
)

const (
	// Name is the server name announced during MCP initialization.
	Name = "webpilot"

	// MCPPath is where the streamable HTTP transport is mounted.
	MCPPath = "/mcp"

	shutdownTimeout = 5 * time.Second
)

// Browser is what the server drives: the tool entry points plus a status
// view for health checks.
type Browser interface {
	browsertools.Browser
	Status() orchestrator.Status
}

// Server is an MCP server bound to one browser.
type Server struct {
	settings *config.Settings
	browser  Browser
	logger   *logging.Logger
	mcp      *server.MCPServer
	tools    []string
}

// New builds the MCP server and registers every tool that is not disabled.
func New(settings *config.Settings, b Browser, version string, logger *logging.Logger) (*Server, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	filter, err := config.NewToolFilter(settings.Tools.Disabled)
	if err != nil {
		return nil, fmt.Errorf("invalid disabled tools: %w", err)
	}

	s := &Server{
		settings: settings,
		browser:  b,
		logger:   logger,
	}
	s.mcp = server.NewMCPServer(Name, version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithToolHandlerMiddleware(s.observe),
	)

	registry := browsertools.NewToolRegistry(b)
	for _, tool := range registry.RegisterTools() {
		if filter.Disabled(tool.Name()) {
			logger.Infof("tool %s disabled", tool.Name())
			continue
		}
		s.mcp.AddTool(tool.Definition(), tool.Execute)
		s.tools = append(s.tools, tool.Name())
	}
	logger.Infof("registered %d tools", len(s.tools))
	return s, nil
}

// Tools returns the names of the offered tools in catalogue order.
func (s *Server) Tools() []string {
	return append([]string(nil), s.tools...)
}

// MCP returns the underlying MCP server.
func (s *Server) MCP() *server.MCPServer {
	return s.mcp
}

// observe logs every tool call and counts it by outcome.
func (s *Server) observe(next server.ToolHandlerFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		name := req.Params.Name
		start := time.Now()
		s.logger.Debugf("tool %s called", name)

		res, err := next(ctx, req)

		outcome := "ok"
		switch {
		case err != nil:
			outcome = "error"
			s.logger.Errorf("tool %s failed after %v: %v", name, time.Since(start), err)
		case res != nil && res.IsError:
			outcome = "error"
			s.logger.Warnf("tool %s reported an error after %v", name, time.Since(start))
		default:
			s.logger.Infof("tool %s completed in %v", name, time.Since(start))
		}
		metrics.ToolCalls.WithLabelValues(name, outcome).Inc()
		return res, err
	}
}

// Serve runs the configured transport until ctx is cancelled or the client
// goes away.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	if s.settings.Server.Transport == config.TransportHTTP {
		addr := net.JoinHostPort(s.settings.Server.Host, strconv.Itoa(s.settings.Server.Port))
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", addr, err)
		}
		return s.ServeHTTP(ctx, ln)
	}
	return s.ServeStdio(ctx, in, out)
}

// ServeStdio speaks MCP over in and out. Log output never goes to out.
func (s *Server) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(log.New(s.logger.Writer(), "", 0))

	s.logger.Infof("serving MCP over stdio")
	err := stdio.Listen(ctx, in, out)
	if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// ServeHTTP serves the streamable HTTP transport, metrics and health checks
// on ln until ctx is cancelled, then shuts down gracefully.
func (s *Server) ServeHTTP(ctx context.Context, ln net.Listener) error {
	streamable := server.NewStreamableHTTPServer(s.mcp, server.WithEndpointPath(MCPPath))

	httpServer := &http.Server{
		Handler:           withLogging(s.logger, s.routes(streamable)),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	limited := netutil.LimitListener(ln, s.settings.Server.MaxConns)
	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Serve(limited)
	}()
	s.logger.Infof("serving MCP over http at http://%s%s", ln.Addr(), MCPPath)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	s.logger.Infof("shutting down http transport")
	err := errors.Join(streamable.Shutdown(shutdownCtx), httpServer.Shutdown(shutdownCtx))
	if errors.Is(err, context.DeadlineExceeded) {
		s.logger.Warnf("http shutdown timed out, closing remaining connections")
		return httpServer.Close()
	}
	return err
}

func (s *Server) routes(mcpHandler http.Handler) http.Handler {
	mux := http.NewServeMux()
	mux.Handle(MCPPath, mcpHandler)
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	return mux
}

type health struct {
	Status  string              `json:"status"`
	Browser orchestrator.Status `json:"browser"`
	Tools   int                 `json:"tools"`
}

// handleHealthz reports liveness of the server. A lost browser session is
// reported but does not fail the check; the next open_web_browser recovers
// it.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, health{
		Status:  "ok",
		Browser: s.browser.Status(),
		Tools:   len(s.tools),
	})
}

func withLogging(logger *logging.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logger.Debugf("%s %s %s %v", r.Method, r.URL.Path, r.RemoteAddr, time.Since(start))
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
