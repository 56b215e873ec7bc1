package browser

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
)

// NavigateTool opens a URL in the active tab.
type NavigateTool struct {
	browser Browser
}

// NewNavigateTool creates the navigate tool.
func NewNavigateTool(b Browser) *NavigateTool {
	return &NavigateTool{browser: b}
}

func (t *NavigateTool) Name() string { return "navigate" }

func (t *NavigateTool) Definition() mcp.Tool {
	return mcp.NewTool(t.Name(),
		mcp.WithDescription("Opens a URL in the active tab. A URL without a scheme gets https:// in front."),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("Address to open, e.g. https://example.com or example.com"),
		),
	)
}

func (t *NavigateTool) Execute(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	url, err := req.RequireString("url")
	if err != nil {
		return invalidArguments(err), nil
	}
	return toolResult(t.browser.Navigate(ctx, url)), nil
}

// GoBackTool goes back in the active tab's history.
type GoBackTool struct {
	browser Browser
}

// NewGoBackTool creates the go_back tool.
func NewGoBackTool(b Browser) *GoBackTool {
	return &GoBackTool{browser: b}
}

func (t *GoBackTool) Name() string { return "go_back" }

func (t *GoBackTool) Definition() mcp.Tool {
	return mcp.NewTool(t.Name(),
		mcp.WithDescription("Goes back to the previous page in the active tab's history."),
	)
}

func (t *GoBackTool) Execute(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return toolResult(t.browser.GoBack(ctx)), nil
}

// GoForwardTool goes forward in the active tab's history.
type GoForwardTool struct {
	browser Browser
}

// NewGoForwardTool creates the go_forward tool.
func NewGoForwardTool(b Browser) *GoForwardTool {
	return &GoForwardTool{browser: b}
}

func (t *GoForwardTool) Name() string { return "go_forward" }

func (t *GoForwardTool) Definition() mcp.Tool {
	return mcp.NewTool(t.Name(),
		mcp.WithDescription("Goes forward to the next page in the active tab's history."),
	)
}

func (t *GoForwardTool) Execute(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return toolResult(t.browser.GoForward(ctx)), nil
}
