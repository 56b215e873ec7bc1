package browser

import (
	"context"
	"errors"

	"github.com/mark3labs/mcp-go/mcp"
)

// KeyCombinationTool presses keys together.
type KeyCombinationTool struct {
	browser Browser
}

// NewKeyCombinationTool creates the key_combination tool.
func NewKeyCombinationTool(b Browser) *KeyCombinationTool {
	return &KeyCombinationTool{browser: b}
}

func (t *KeyCombinationTool) Name() string { return "key_combination" }

func (t *KeyCombinationTool) Definition() mcp.Tool {
	return mcp.NewTool(t.Name(),
		mcp.WithDescription("Presses a key or a key combination in the active tab, such as [\"Control\", \"c\"] or [\"Enter\"]. "+
			"Keys are pressed in order and released in reverse. Modifiers: Control, Shift, Alt, Meta (Command)."),
		mcp.WithArray("keys",
			mcp.Required(),
			mcp.Items(map[string]any{"type": "string"}),
			mcp.Description("Key names, modifiers first"),
		),
	)
}

func (t *KeyCombinationTool) Execute(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	keys, err := req.RequireStringSlice("keys")
	if err != nil {
		return invalidArguments(err), nil
	}
	if len(keys) == 0 {
		return invalidArguments(errors.New("keys must not be empty")), nil
	}
	return toolResult(t.browser.KeyCombination(ctx, keys)), nil
}
