package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/entrhq/webpilot/pkg/browser/driver"
)

func newDriverCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "driver",
		Short: "Manage WebDriver binaries",
	}
	cmd.PersistentFlags().String("browser", "", "browser the driver is for (chrome, edge, firefox, safari)")
	cmd.AddCommand(newDriverInstallCmd(), newDriverPathCmd())
	return cmd
}

func newDriverInstallCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "install",
		Short: "Find or download a driver matching the installed browser",
		Long: `Run driver acquisition on its own and print the resolved driver path.

With --force the driver matching the installed browser is downloaded into
the cache even when a usable one is already installed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			force, _ := cmd.Flags().GetBool("force")
			return runDriver(cmd, true, force)
		},
	}
	cmd.Flags().Bool("force", false, "download even if a compatible driver is installed")
	return cmd
}

func newDriverPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the driver that would be used, without downloading",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDriver(cmd, false, false)
		},
	}
}

func runDriver(cmd *cobra.Command, download, force bool) error {
	settings, logger, err := setup(cmd, "driver")
	if err != nil {
		return err
	}
	defer logger.Close()

	if cmd.Flags().Changed("browser") {
		settings.Browser.Kind, _ = cmd.Flags().GetString("browser")
		if err := settings.Validate(); err != nil {
			return err
		}
	}

	bspec := settings.BrowserSpec()
	dspec := settings.DriverSpec()
	dspec.AutoDownload = download

	acquirer := driver.NewAcquirer(logger)
	var res driver.Result
	if force {
		res, err = acquirer.Download(cmd.Context(), bspec, dspec)
	} else {
		res, err = acquirer.Acquire(cmd.Context(), bspec, dspec)
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, res.Path)
	if verbose, _ := cmd.Root().PersistentFlags().GetBool("verbose"); verbose {
		fmt.Fprintf(out, "driver:  %s %s (%s)\n", driver.DriverName(bspec.Kind), res.Version, res.Origin)
		if res.BrowserVersion != nil {
			fmt.Fprintf(out, "browser: %s\n", res.BrowserVersion)
		}
	}
	return nil
}
