package browser

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/entrhq/webpilot/pkg/browser/orchestrator"
)

// toolResult renders an orchestrator outcome. The screenshot is attached
// whenever there is one, failures included.
func toolResult(res orchestrator.Result, err error) *mcp.CallToolResult {
	env := envelope{
		URL:     res.URL,
		Success: err == nil,
		Message: res.Message,
		Tab:     res.Tab,
		Tabs:    res.Tabs,
	}
	if err != nil {
		env.Message = err.Error()
	}

	body, merr := json.Marshal(env)
	if merr != nil {
		body = []byte(fmt.Sprintf(`{"url":%q,"success":false,"message":%q}`, res.URL, merr.Error()))
	}

	out := &mcp.CallToolResult{
		Content: []mcp.Content{mcp.NewTextContent(string(body))},
		IsError: err != nil,
	}
	if len(res.Screenshot) > 0 {
		out.Content = append(out.Content, mcp.NewImageContent(base64.StdEncoding.EncodeToString(res.Screenshot), "image/png"))
	}
	return out
}

// invalidArguments reports arguments that could not be used.
func invalidArguments(err error) *mcp.CallToolResult {
	return toolResult(orchestrator.Result{}, fmt.Errorf("invalid arguments: %w", err))
}

// point reads a pair of required coordinates.
func point(req mcp.CallToolRequest, xName, yName string) (int, int, error) {
	x, err := req.RequireInt(xName)
	if err != nil {
		return 0, 0, err
	}
	y, err := req.RequireInt(yName)
	if err != nil {
		return 0, 0, err
	}
	return x, y, nil
}

// coordinate declares a required non-negative pixel coordinate.
func coordinate(name, description string) mcp.ToolOption {
	return mcp.WithNumber(name, mcp.Required(), mcp.Min(0), mcp.Description(description))
}
