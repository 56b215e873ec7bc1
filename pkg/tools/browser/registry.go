package browser

// ToolRegistry builds the browser tools.
type ToolRegistry struct {
	browser Browser
	tools   []Tool
}

// NewToolRegistry creates a registry whose tools drive b.
func NewToolRegistry(b Browser) *ToolRegistry {
	return &ToolRegistry{
		browser: b,
		tools:   make([]Tool, 0),
	}
}

// RegisterTools creates and returns every browser tool in catalogue order.
func (r *ToolRegistry) RegisterTools() []Tool {
	if len(r.tools) > 0 {
		return r.tools
	}

	r.tools = append(r.tools,
		NewOpenBrowserTool(r.browser),
		NewClickAtTool(r.browser),
		NewHoverAtTool(r.browser),
		NewTypeTextAtTool(r.browser),
		NewScrollDocumentTool(r.browser),
		NewScrollAtTool(r.browser),
		NewWaitTool(r.browser),
		NewGoBackTool(r.browser),
		NewGoForwardTool(r.browser),
		NewSearchTool(r.browser),
		NewNavigateTool(r.browser),
		NewKeyCombinationTool(r.browser),
		NewDragAndDropTool(r.browser),
		NewCurrentStateTool(r.browser),
	)

	// Tab management
	r.tools = append(r.tools,
		NewNewTabTool(r.browser),
		NewCloseTabTool(r.browser),
		NewSwitchTabTool(r.browser),
		NewListTabsTool(r.browser),
	)

	return r.tools
}

// Lookup finds a registered tool by name.
func (r *ToolRegistry) Lookup(name string) (Tool, bool) {
	for _, t := range r.RegisterTools() {
		if t.Name() == name {
			return t, true
		}
	}
	return nil, false
}
