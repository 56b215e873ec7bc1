package browser

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	core "github.com/entrhq/webpilot/pkg/browser"
	"github.com/entrhq/webpilot/pkg/browser/orchestrator"
	"github.com/entrhq/webpilot/pkg/browser/tabs"
)

// Tool is one MCP tool.
type Tool interface {
	// Name returns the tool name clients call.
	Name() string

	// Definition returns the tool's name, description and input schema.
	Definition() mcp.Tool

	// Execute runs the tool. Failures are reported in the result, not as an
	// error; an error means the request could not be handled at all.
	Execute(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)
}

// Browser is what the tools drive. *orchestrator.Orchestrator implements it.
type Browser interface {
	OpenBrowser(ctx context.Context) (orchestrator.Result, error)

	ClickAt(ctx context.Context, x, y int) (orchestrator.Result, error)
	HoverAt(ctx context.Context, x, y int) (orchestrator.Result, error)
	TypeTextAt(ctx context.Context, x, y int, text string, pressEnter, clearBefore bool) (orchestrator.Result, error)
	ScrollDocument(ctx context.Context, direction string) (orchestrator.Result, error)
	ScrollAt(ctx context.Context, x, y int, direction string, magnitude int) (orchestrator.Result, error)
	Wait(ctx context.Context) (orchestrator.Result, error)
	GoBack(ctx context.Context) (orchestrator.Result, error)
	GoForward(ctx context.Context) (orchestrator.Result, error)
	Search(ctx context.Context) (orchestrator.Result, error)
	Navigate(ctx context.Context, url string) (orchestrator.Result, error)
	KeyCombination(ctx context.Context, keys []string) (orchestrator.Result, error)
	DragAndDrop(ctx context.Context, x, y, destX, destY int) (orchestrator.Result, error)
	CurrentState(ctx context.Context) (orchestrator.Result, error)

	NewTab(ctx context.Context, url string) (orchestrator.Result, error)
	CloseTab(ctx context.Context, sel tabs.Selector) (orchestrator.Result, error)
	SwitchTab(ctx context.Context, sel tabs.Selector) (orchestrator.Result, error)
	ListTabs(ctx context.Context) (orchestrator.Result, error)
}

var _ Browser = (*orchestrator.Orchestrator)(nil)

// envelope is the JSON text block of every result.
type envelope struct {
	URL     string         `json:"url"`
	Success bool           `json:"success"`
	Message string         `json:"message"`
	Tab     *core.TabInfo  `json:"tab,omitempty"`
	Tabs    []core.TabInfo `json:"tabs,omitempty"`
}
