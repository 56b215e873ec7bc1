package browser

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
)

// SearchTool opens the configured search engine.
type SearchTool struct {
	browser Browser
}

// NewSearchTool creates the search tool.
func NewSearchTool(b Browser) *SearchTool {
	return &SearchTool{browser: b}
}

func (t *SearchTool) Name() string { return "search" }

func (t *SearchTool) Definition() mcp.Tool {
	return mcp.NewTool(t.Name(),
		mcp.WithDescription("Opens the search engine home page in the active tab, as a starting point for a web search."),
	)
}

func (t *SearchTool) Execute(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return toolResult(t.browser.Search(ctx)), nil
}
