package browser

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
)

// OpenBrowserTool opens the browser, or a new one after a crash.
type OpenBrowserTool struct {
	browser Browser
}

// NewOpenBrowserTool creates the open_web_browser tool.
func NewOpenBrowserTool(b Browser) *OpenBrowserTool {
	return &OpenBrowserTool{browser: b}
}

func (t *OpenBrowserTool) Name() string { return "open_web_browser" }

func (t *OpenBrowserTool) Definition() mcp.Tool {
	return mcp.NewTool(t.Name(),
		mcp.WithDescription("Opens the web browser and returns a screenshot of the active tab. "+
			"Call it before other browser tools, and again to start a fresh browser after the previous one was lost."),
	)
}

func (t *OpenBrowserTool) Execute(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return toolResult(t.browser.OpenBrowser(ctx)), nil
}
