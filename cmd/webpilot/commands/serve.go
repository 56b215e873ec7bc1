package commands

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/entrhq/webpilot/pkg/browser/orchestrator"
	"github.com/entrhq/webpilot/pkg/config"
	"github.com/entrhq/webpilot/pkg/logging"
	"github.com/entrhq/webpilot/pkg/server"
)

const shutdownTimeout = 15 * time.Second

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server",
		Long: `Run the MCP server over stdio (the default) or streamable HTTP.

Settings are read from defaults, the config file, the .env file, MCP_*
environment variables and finally the flags below.

Examples:
  webpilot serve
  webpilot serve --browser firefox --headless
  webpilot serve --mode cdp --cdp-url http://127.0.0.1:9222
  webpilot serve --transport http --port 8080 --disable-tool '*_tab'`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}
	addServeFlags(cmd)
	return cmd
}

func addServeFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("transport", "", "MCP transport (stdio, http)")
	f.String("host", "", "HTTP listen host")
	f.Int("port", 0, "HTTP listen port")
	f.String("browser", "", "browser to drive (chrome, edge, firefox, safari)")
	f.Bool("headless", false, "run the browser without a window")
	f.String("mode", "", "connection mode (webdriver, cdp)")
	f.String("cdp-url", "", "attach to the browser at this devtools endpoint")
	f.String("webdriver-url", "", "use an already running WebDriver server")
	f.StringSlice("disable-tool", nil, "hide tools by name or glob pattern (repeatable)")
	f.Bool("open-on-start", false, "open the browser before serving")
	f.Duration("idle-timeout", 0, "close the browser after this long without tool calls (0 disables)")
}

// applyServeFlags overlays the flags the user set onto settings.
func applyServeFlags(cmd *cobra.Command, s *config.Settings) error {
	f := cmd.Flags()
	if f.Changed("transport") {
		s.Server.Transport, _ = f.GetString("transport")
	}
	if f.Changed("host") {
		s.Server.Host, _ = f.GetString("host")
	}
	if f.Changed("port") {
		s.Server.Port, _ = f.GetInt("port")
	}
	if f.Changed("browser") {
		s.Browser.Kind, _ = f.GetString("browser")
	}
	if f.Changed("headless") {
		s.Browser.Headless, _ = f.GetBool("headless")
	}
	if f.Changed("mode") {
		s.Session.Mode, _ = f.GetString("mode")
	}
	if f.Changed("cdp-url") {
		s.Session.CDPURL, _ = f.GetString("cdp-url")
	}
	if f.Changed("webdriver-url") {
		s.Driver.WebDriverURL, _ = f.GetString("webdriver-url")
	}
	if f.Changed("disable-tool") {
		disabled, _ := f.GetStringSlice("disable-tool")
		s.Tools.Disabled = append(s.Tools.Disabled, disabled...)
	}
	if f.Changed("open-on-start") {
		s.Session.OpenOnStart, _ = f.GetBool("open-on-start")
	}
	if f.Changed("idle-timeout") {
		s.Session.IdleTimeout, _ = f.GetDuration("idle-timeout")
	}
	return s.Validate()
}

func runServe(cmd *cobra.Command, _ []string) (err error) {
	settings, logger, err := setup(cmd, "webpilot")
	if err != nil {
		return err
	}
	defer logger.Close()

	if err := applyServeFlags(cmd, settings); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	orch := orchestrator.New(orchestrator.Options{
		Connector:   orchestrator.NewBrowserConnector(settings, nil, logger.Named("connector")),
		Logger:      logger.Named("orchestrator"),
		InitialURL:  settings.Browser.InitialURL,
		SearchURL:   settings.Browser.SearchURL,
		Stealth:     settings.Browser.Undetected,
		Highlight:   settings.Browser.HighlightMouse,
		IdleTimeout: settings.Session.IdleTimeout,
	})
	defer shutdownOrchestrator(orch, logger, &err)

	srv, err := server.New(settings, orch, Version, logger.Named("server"))
	if err != nil {
		return err
	}

	logger.Infof("webpilot v%s starting (browser=%s mode=%s transport=%s)",
		Version, settings.Browser.Kind, settings.ConnectionMode(), settings.Server.Transport)
	logger.Infof("logging to %s", logger.LogPath())

	orch.Start(ctx, settings.Session.OpenOnStart)
	return srv.Serve(ctx, os.Stdin, os.Stdout)
}

// shutdownOrchestrator closes the browser and stops every managed process.
// A failure is joined into *errp.
func shutdownOrchestrator(orch *orchestrator.Orchestrator, logger *logging.Logger, errp *error) {
	logger.Infof("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := orch.Shutdown(ctx); err != nil {
		logger.Errorf("shutdown: %v", err)
		*errp = errors.Join(*errp, err)
	}
}
