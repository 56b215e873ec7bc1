package browser

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
)

// TypeTextAtTool focuses the element at a point and types into it.
type TypeTextAtTool struct {
	browser Browser
}

// NewTypeTextAtTool creates the type_text_at tool.
func NewTypeTextAtTool(b Browser) *TypeTextAtTool {
	return &TypeTextAtTool{browser: b}
}

func (t *TypeTextAtTool) Name() string { return "type_text_at" }

func (t *TypeTextAtTool) Definition() mcp.Tool {
	return mcp.NewTool(t.Name(),
		mcp.WithDescription("Clicks the element at x, y and types text into it. "+
			"Existing content is cleared first unless clear_before_typing is false; press_enter submits afterwards."),
		coordinate("x", "Horizontal position in pixels"),
		coordinate("y", "Vertical position in pixels"),
		mcp.WithString("text",
			mcp.Required(),
			mcp.Description("Text to type"),
		),
		mcp.WithBoolean("press_enter",
			mcp.DefaultBool(false),
			mcp.Description("Press Enter after typing"),
		),
		mcp.WithBoolean("clear_before_typing",
			mcp.DefaultBool(true),
			mcp.Description("Select and delete existing content before typing"),
		),
	)
}

func (t *TypeTextAtTool) Execute(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	x, y, err := point(req, "x", "y")
	if err != nil {
		return invalidArguments(err), nil
	}
	text, err := req.RequireString("text")
	if err != nil {
		return invalidArguments(err), nil
	}
	pressEnter := req.GetBool("press_enter", false)
	clearBefore := req.GetBool("clear_before_typing", true)
	return toolResult(t.browser.TypeTextAt(ctx, x, y, text, pressEnter, clearBefore)), nil
}
