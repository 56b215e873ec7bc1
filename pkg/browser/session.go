package browser

import "context"

// Session is the live control handle to one browser instance. Implementations
// exist for WebDriver and CDP; callers never branch on the mode.
//
// All tab-scoped methods act on the session's current tab, which the tab
// registry moves with SwitchTab.
type Session interface {
	// ID returns the remote session id or the browser endpoint.
	ID() string

	// Mode reports which protocol backs the session.
	Mode() ConnectionMode

	Navigate(ctx context.Context, url string) error
	Back(ctx context.Context) error
	Forward(ctx context.Context) error

	// Evaluate runs a JavaScript expression in the current tab and returns
	// its JSON-decoded value.
	Evaluate(ctx context.Context, expression string) (any, error)

	// AddInitScript registers a script that runs in every new document of the
	// session before page scripts.
	AddInitScript(ctx context.Context, source string) error

	// Tabs lists every open tab in browser order. Active is not set.
	Tabs(ctx context.Context) ([]TabInfo, error)
	// CurrentTab returns the handle input is routed to, or "" when the
	// current tab was closed and no other has been selected.
	CurrentTab(ctx context.Context) (string, error)
	// NewTab opens a blank tab and makes it current.
	NewTab(ctx context.Context) (string, error)
	SwitchTab(ctx context.Context, handle string) error
	// CloseTab closes handle. Closing the current tab leaves no current tab
	// until SwitchTab or NewTab. Closing the last tab keeps the browser
	// running so that NewTab can open another.
	CloseTab(ctx context.Context, handle string) error

	Pointer(ctx context.Context, in PointerInput) error
	Keyboard(ctx context.Context, in KeyInput) error

	// Screenshot captures the visible viewport of the current tab as PNG.
	Screenshot(ctx context.Context) ([]byte, error)
	URL(ctx context.Context) (string, error)
	Title(ctx context.Context) (string, error)

	// Close ends the session. It is safe to call more than once.
	Close(ctx context.Context) error
}
