// Package browser defines the MCP tools that drive the browser.
//
// Every tool is a thin adapter: it reads its arguments from the call
// request, invokes one Browser method and turns the outcome into a tool
// result.
//
// # Results
//
// Each result carries a JSON text block and, when one could be taken, a PNG
// screenshot of the active tab:
//
//	{"url": "https://example.com/", "success": true, "message": "Clicked at (10, 20)"}
//
// Tab tools add a "tab" object and/or a "tabs" array. Failures set
// "success" to false, carry the error in "message" and mark the result with
// isError, still attaching the screenshot when the browser produced one.
//
// # Session lifecycle
//
// The browser is opened lazily by the first tool call, or explicitly with
// open_web_browser. When the browser or its driver exits unexpectedly every
// tool fails with "session lost" until open_web_browser starts a new one.
package browser
