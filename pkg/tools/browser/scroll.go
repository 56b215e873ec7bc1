package browser

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/entrhq/webpilot/pkg/browser/action"
)

var directions = []string{"up", "down", "left", "right"}

// ScrollDocumentTool scrolls the whole page.
type ScrollDocumentTool struct {
	browser Browser
}

// NewScrollDocumentTool creates the scroll_document tool.
func NewScrollDocumentTool(b Browser) *ScrollDocumentTool {
	return &ScrollDocumentTool{browser: b}
}

func (t *ScrollDocumentTool) Name() string { return "scroll_document" }

func (t *ScrollDocumentTool) Definition() mcp.Tool {
	return mcp.NewTool(t.Name(),
		mcp.WithDescription("Scrolls the whole page up or down by most of a screen, or left or right by half a screen."),
		mcp.WithString("direction",
			mcp.Required(),
			mcp.Enum(directions...),
			mcp.Description("Scroll direction"),
		),
	)
}

func (t *ScrollDocumentTool) Execute(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	direction, err := req.RequireString("direction")
	if err != nil {
		return invalidArguments(err), nil
	}
	return toolResult(t.browser.ScrollDocument(ctx, direction)), nil
}

// ScrollAtTool scrolls whatever is under a point.
type ScrollAtTool struct {
	browser Browser
}

// NewScrollAtTool creates the scroll_at tool.
func NewScrollAtTool(b Browser) *ScrollAtTool {
	return &ScrollAtTool{browser: b}
}

func (t *ScrollAtTool) Name() string { return "scroll_at" }

func (t *ScrollAtTool) Definition() mcp.Tool {
	return mcp.NewTool(t.Name(),
		mcp.WithDescription("Scrolls the element under x, y by magnitude pixels in the given direction. "+
			"Use it for scrollable panels inside the page."),
		coordinate("x", "Horizontal position in pixels"),
		coordinate("y", "Vertical position in pixels"),
		mcp.WithString("direction",
			mcp.Required(),
			mcp.Enum(directions...),
			mcp.Description("Scroll direction"),
		),
		mcp.WithNumber("magnitude",
			mcp.DefaultNumber(action.DefaultScrollMagnitude),
			mcp.Min(0),
			mcp.Description("Distance in pixels"),
		),
	)
}

func (t *ScrollAtTool) Execute(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	x, y, err := point(req, "x", "y")
	if err != nil {
		return invalidArguments(err), nil
	}
	direction, err := req.RequireString("direction")
	if err != nil {
		return invalidArguments(err), nil
	}
	magnitude := req.GetInt("magnitude", action.DefaultScrollMagnitude)
	return toolResult(t.browser.ScrollAt(ctx, x, y, direction, magnitude)), nil
}
