// Package commands implements the webpilot command line.
package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/entrhq/webpilot/pkg/config"
	"github.com/entrhq/webpilot/pkg/logging"
)

// Version is set at build time with -ldflags "-X ...commands.Version=...".
var Version = "0.1.0"

// NewRootCmd creates the webpilot command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "webpilot",
		Short: "MCP server for browser automation",
		Long: `webpilot exposes a web browser as MCP tools: click, type, scroll,
navigate and manage tabs, with a screenshot after every action.

Running webpilot without a subcommand is the same as "webpilot serve".`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runServe,
	}

	root.PersistentFlags().StringP("config", "c", "", "path to a YAML config file (default $MCP_CONFIG_FILE)")
	root.PersistentFlags().String("env-file", ".env", "dotenv file read for missing MCP_* variables")
	root.PersistentFlags().String("log-level", "", "minimum log level (debug, info, warn, error)")
	root.PersistentFlags().String("log-dir", "", "directory for log files (default ~/.webpilot/logs)")
	root.PersistentFlags().BoolP("verbose", "v", false, "also write log entries to stderr")

	addServeFlags(root)
	root.AddCommand(
		newServeCmd(),
		newDriverCmd(),
		newConfigCmd(),
		newVersionCmd(),
	)
	return root
}

// setup loads the settings and configures logging. Logging goes to the log
// file and optionally stderr; stdout is left to the MCP stream.
func setup(cmd *cobra.Command, component string) (*config.Settings, *logging.Logger, error) {
	flags := cmd.Root().PersistentFlags()
	if dir, _ := flags.GetString("log-dir"); dir != "" {
		logging.SetLogDirectory(dir)
	}
	if verbose, _ := flags.GetBool("verbose"); verbose {
		logging.MirrorTo(os.Stderr)
	}
	logger := logging.MustLogger(component)

	configPath, _ := flags.GetString("config")
	envFile, _ := flags.GetString("env-file")
	settings, err := config.Load(config.LoadOptions{
		File:    configPath,
		EnvFile: envFile,
		Logger:  logger.Named("config"),
	})
	if err != nil {
		logger.Close()
		return nil, nil, err
	}

	level := settings.Server.LogLevel
	if flagLevel, _ := flags.GetString("log-level"); flagLevel != "" {
		level = flagLevel
		settings.Server.LogLevel = flagLevel
	}
	parsed, err := logging.ParseLevel(level)
	if err != nil {
		logger.Close()
		return nil, nil, fmt.Errorf("invalid log level: %w", err)
	}
	logging.SetLevel(parsed)
	return settings, logger, nil
}
