package cdp

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/webpilot/pkg/browser"
	"github.com/entrhq/webpilot/pkg/browser/driver"
	"github.com/entrhq/webpilot/pkg/browser/process"
)

// TestSession_RealBrowser needs a local Chrome and network access for the
// Playwright driver download, so it only runs when asked for.
func TestSession_RealBrowser(t *testing.T) {
	if testing.Short() || os.Getenv("WEBPILOT_INTEGRATION") != "1" {
		t.Skip("set WEBPILOT_INTEGRATION=1 to run against a real browser")
	}

	spec := browser.BrowserSpec{
		Kind:     browser.KindChrome,
		Headless: true,
		Window:   browser.WindowSize{Width: 800, Height: 600},
	}
	binary, err := driver.FindBrowser(spec)
	if err != nil {
		t.Skipf("no chrome installed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	launcher := process.NewLauncher(nil)
	defer launcher.Shutdown(context.Background())

	proc, err := launcher.Start(ctx, LaunchSpec(spec, binary, browser.CDPSpec{}, t.TempDir(), 30*time.Second))
	require.NoError(t, err)

	rt := NewRuntime(nil)
	defer rt.Stop()

	s, err := Connect(ctx, rt, Endpoint(browser.CDPSpec{Port: proc.Port()}), Options{})
	require.NoError(t, err)
	defer s.Close(context.Background())

	require.NoError(t, s.Navigate(ctx, "data:text/html,<title>hi</title><p>hello</p>"))
	title, err := s.Title(ctx)
	require.NoError(t, err)
	assert.Equal(t, "hi", title)

	png, err := s.Screenshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, "\x89PNG", string(png[:4]))

	first, err := s.CurrentTab(ctx)
	require.NoError(t, err)
	second, err := s.NewTab(ctx)
	require.NoError(t, err)
	tabs, err := s.Tabs(ctx)
	require.NoError(t, err)
	assert.Len(t, tabs, 2)

	require.NoError(t, s.CloseTab(ctx, second))
	require.NoError(t, s.CloseTab(ctx, first))
	tabs, err = s.Tabs(ctx)
	require.NoError(t, err)
	assert.Empty(t, tabs)

	select {
	case <-s.Lost():
		t.Fatal("closing the last tab must not drop the connection")
	default:
	}
}
