package browser

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
)

// WaitTool pauses so that the page can finish loading.
type WaitTool struct {
	browser Browser
}

// NewWaitTool creates the wait_5_seconds tool.
func NewWaitTool(b Browser) *WaitTool {
	return &WaitTool{browser: b}
}

func (t *WaitTool) Name() string { return "wait_5_seconds" }

func (t *WaitTool) Definition() mcp.Tool {
	return mcp.NewTool(t.Name(),
		mcp.WithDescription("Waits five seconds, then returns a screenshot. Use it when the page is still loading or animating."),
	)
}

func (t *WaitTool) Execute(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return toolResult(t.browser.Wait(ctx)), nil
}

// CurrentStateTool reports the active tab without acting on it.
type CurrentStateTool struct {
	browser Browser
}

// NewCurrentStateTool creates the current_state tool.
func NewCurrentStateTool(b Browser) *CurrentStateTool {
	return &CurrentStateTool{browser: b}
}

func (t *CurrentStateTool) Name() string { return "current_state" }

func (t *CurrentStateTool) Definition() mcp.Tool {
	return mcp.NewTool(t.Name(),
		mcp.WithDescription("Returns the URL and a screenshot of the active tab without changing anything."),
		mcp.WithReadOnlyHintAnnotation(true),
	)
}

func (t *CurrentStateTool) Execute(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return toolResult(t.browser.CurrentState(ctx)), nil
}
