package cli

import (
	"context"
	"fmt"

	"github.com/rsjfw/rsjfw/internal/branding"
	"github.com/rsjfw/rsjfw/internal/launcher"
	"github.com/rsjfw/rsjfw/internal/progress"
	"github.com/spf13/cobra"
)

var installVersion string

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Download and install " + branding.ApplicationName(),
	Long: `Resolve the configured channel's current version and install it to
~/.rsjfw/versions/. Installing an already present version does nothing.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var id string
		err := exclusive(cmd, func() error {
			return withProgress(cmd, func(ctx context.Context, tracker *progress.Tracker) error {
				var err error
				id, err = newLauncher(tracker).Install(ctx, launcher.Request{Version: installVersion})
				return err
			})
		})
		if err != nil {
			return fmt.Errorf("installation failed: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Installed %s to %s\n", id, app.layout.Version(id))
		return nil
	},
}

func init() {
	installCmd.Flags().StringVar(&installVersion, "version", "", "Install this version identifier instead of the channel's current one")
	rootCmd.AddCommand(installCmd)
}
