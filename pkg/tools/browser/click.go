package browser

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
)

// ClickAtTool clicks at a viewport coordinate.
type ClickAtTool struct {
	browser Browser
}

// NewClickAtTool creates the click_at tool.
func NewClickAtTool(b Browser) *ClickAtTool {
	return &ClickAtTool{browser: b}
}

func (t *ClickAtTool) Name() string { return "click_at" }

func (t *ClickAtTool) Definition() mcp.Tool {
	return mcp.NewTool(t.Name(),
		mcp.WithDescription("Clicks at an x, y position in the page, in viewport pixels. Fails when no element is at that point."),
		coordinate("x", "Horizontal position in pixels from the left edge of the viewport"),
		coordinate("y", "Vertical position in pixels from the top edge of the viewport"),
	)
}

func (t *ClickAtTool) Execute(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	x, y, err := point(req, "x", "y")
	if err != nil {
		return invalidArguments(err), nil
	}
	return toolResult(t.browser.ClickAt(ctx, x, y)), nil
}

// HoverAtTool moves the pointer to a viewport coordinate.
type HoverAtTool struct {
	browser Browser
}

// NewHoverAtTool creates the hover_at tool.
func NewHoverAtTool(b Browser) *HoverAtTool {
	return &HoverAtTool{browser: b}
}

func (t *HoverAtTool) Name() string { return "hover_at" }

func (t *HoverAtTool) Definition() mcp.Tool {
	return mcp.NewTool(t.Name(),
		mcp.WithDescription("Moves the mouse to an x, y position without clicking, for example to open menus that react to hovering."),
		coordinate("x", "Horizontal position in pixels"),
		coordinate("y", "Vertical position in pixels"),
	)
}

func (t *HoverAtTool) Execute(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	x, y, err := point(req, "x", "y")
	if err != nil {
		return invalidArguments(err), nil
	}
	return toolResult(t.browser.HoverAt(ctx, x, y)), nil
}

// DragAndDropTool drags from one point to another.
type DragAndDropTool struct {
	browser Browser
}

// NewDragAndDropTool creates the drag_and_drop tool.
func NewDragAndDropTool(b Browser) *DragAndDropTool {
	return &DragAndDropTool{browser: b}
}

func (t *DragAndDropTool) Name() string { return "drag_and_drop" }

func (t *DragAndDropTool) Definition() mcp.Tool {
	return mcp.NewTool(t.Name(),
		mcp.WithDescription("Presses the mouse on the element at x, y, moves to destination_x, destination_y and releases it there."),
		coordinate("x", "Horizontal start position in pixels"),
		coordinate("y", "Vertical start position in pixels"),
		coordinate("destination_x", "Horizontal drop position in pixels"),
		coordinate("destination_y", "Vertical drop position in pixels"),
	)
}

func (t *DragAndDropTool) Execute(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	x, y, err := point(req, "x", "y")
	if err != nil {
		return invalidArguments(err), nil
	}
	destX, destY, err := point(req, "destination_x", "destination_y")
	if err != nil {
		return invalidArguments(err), nil
	}
	return toolResult(t.browser.DragAndDrop(ctx, x, y, destX, destY)), nil
}
