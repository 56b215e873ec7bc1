package browser

import (
	"context"
	"errors"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/entrhq/webpilot/pkg/browser/tabs"
)

// selector reads the optional handle and index arguments. With required
// set, exactly one of them must be present.
func selector(req mcp.CallToolRequest, required bool) (tabs.Selector, error) {
	handle := req.GetString("handle", "")
	raw, hasIndex := req.GetArguments()["index"]
	hasIndex = hasIndex && raw != nil

	switch {
	case handle != "" && hasIndex:
		return tabs.Selector{}, errors.New("provide either handle or index, not both")
	case hasIndex:
		index, err := req.RequireInt("index")
		if err != nil {
			return tabs.Selector{}, err
		}
		return tabs.ByIndex(index), nil
	case handle != "":
		return tabs.ByHandle(handle), nil
	case required:
		return tabs.Selector{}, errors.New("provide either handle or index")
	default:
		return tabs.Selector{}, nil
	}
}

// NewTabTool opens a tab.
type NewTabTool struct {
	browser Browser
}

// NewNewTabTool creates the new_tab tool.
func NewNewTabTool(b Browser) *NewTabTool {
	return &NewTabTool{browser: b}
}

func (t *NewTabTool) Name() string { return "new_tab" }

func (t *NewTabTool) Definition() mcp.Tool {
	return mcp.NewTool(t.Name(),
		mcp.WithDescription("Opens a new tab, makes it the active tab and optionally loads a URL in it. "+
			"Returns the new tab and a screenshot."),
		mcp.WithString("url",
			mcp.Description("Address to open in the new tab; blank when omitted"),
		),
	)
}

func (t *NewTabTool) Execute(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return toolResult(t.browser.NewTab(ctx, req.GetString("url", ""))), nil
}

// CloseTabTool closes a tab.
type CloseTabTool struct {
	browser Browser
}

// NewCloseTabTool creates the close_tab tool.
func NewCloseTabTool(b Browser) *CloseTabTool {
	return &CloseTabTool{browser: b}
}

func (t *CloseTabTool) Name() string { return "close_tab" }

func (t *CloseTabTool) Definition() mcp.Tool {
	return mcp.NewTool(t.Name(),
		mcp.WithDescription("Closes a tab selected by handle or index, or the active tab when neither is given. "+
			"The tab before it becomes active. After the last tab is closed, open another with new_tab."),
		mcp.WithString("handle",
			mcp.Description("Handle of the tab to close, as reported by list_tabs"),
		),
		mcp.WithNumber("index",
			mcp.Min(0),
			mcp.Description("0-based position of the tab to close"),
		),
	)
}

func (t *CloseTabTool) Execute(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sel, err := selector(req, false)
	if err != nil {
		return invalidArguments(err), nil
	}
	return toolResult(t.browser.CloseTab(ctx, sel)), nil
}

// SwitchTabTool activates a tab.
type SwitchTabTool struct {
	browser Browser
}

// NewSwitchTabTool creates the switch_tab tool.
func NewSwitchTabTool(b Browser) *SwitchTabTool {
	return &SwitchTabTool{browser: b}
}

func (t *SwitchTabTool) Name() string { return "switch_tab" }

func (t *SwitchTabTool) Definition() mcp.Tool {
	return mcp.NewTool(t.Name(),
		mcp.WithDescription("Makes another tab the active one. Give exactly one of handle or index (0-based)."),
		mcp.WithString("handle",
			mcp.Description("Handle of the tab, as reported by list_tabs"),
		),
		mcp.WithNumber("index",
			mcp.Min(0),
			mcp.Description("0-based position of the tab"),
		),
	)
}

func (t *SwitchTabTool) Execute(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sel, err := selector(req, true)
	if err != nil {
		return invalidArguments(err), nil
	}
	return toolResult(t.browser.SwitchTab(ctx, sel)), nil
}

// ListTabsTool lists the open tabs.
type ListTabsTool struct {
	browser Browser
}

// NewListTabsTool creates the list_tabs tool.
func NewListTabsTool(b Browser) *ListTabsTool {
	return &ListTabsTool{browser: b}
}

func (t *ListTabsTool) Name() string { return "list_tabs" }

func (t *ListTabsTool) Definition() mcp.Tool {
	return mcp.NewTool(t.Name(),
		mcp.WithDescription("Lists the open tabs in order with handle, URL, title and which one is active, "+
			"plus a screenshot of the active tab."),
		mcp.WithReadOnlyHintAnnotation(true),
	)
}

func (t *ListTabsTool) Execute(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return toolResult(t.browser.ListTabs(ctx)), nil
}
