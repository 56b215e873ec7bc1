// Package browser defines the session abstraction webpilot drives browsers through.
//
// A Session is a single live control handle to a browser. Two implementations
// exist: package webdriver speaks the W3C WebDriver protocol to a driver
// process, and package cdp attaches to the browser's DevTools endpoint through
// Playwright. Everything above them works against the Session interface and
// never inspects the mode.
//
// # Establishment
//
// A session is established in four steps, each in its own package:
//
//  1. driver: locate or download a driver binary matching the installed browser
//  2. process: launch the driver (or the browser in CDP mode) and wait for its port
//  3. webdriver / cdp: open the session against the endpoint
//  4. stealth: optionally patch automation fingerprints
//
// The orchestrator package performs these steps once, lazily or at startup,
// and releases every acquired resource if a later step fails.
//
// # Tabs and actions
//
// The tabs package owns the list of known tabs and the active tab pointer. It
// treats its state as a cache and reconciles against Session.Tabs before every
// mutation. The action package executes one tool action against the active tab
// and always returns the resulting URL and a screenshot, even when the action
// itself failed.
//
// # Errors
//
// Failures carry one of the Err* kinds defined here, wrapped in *Error with the
// operation name and the underlying cause. Use errors.Is to test for a kind.
package browser
