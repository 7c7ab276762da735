package cli

import (
	"context"
	"fmt"

	"github.com/rsjfw/rsjfw/internal/launcher"
	"github.com/rsjfw/rsjfw/internal/progress"
	"github.com/spf13/cobra"
)

var reinstallVersion string

var reinstallCmd = &cobra.Command{
	Use:   "reinstall",
	Short: "Remove and install the current version again",
	Long: `Delete the installed tree of the resolved version, clear the prefix setup
marker so the registry is rewritten on the next launch, and install again.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var id string
		err := exclusive(cmd, func() error {
			return withProgress(cmd, func(ctx context.Context, tracker *progress.Tracker) error {
				var err error
				id, err = newLauncher(tracker).Reinstall(ctx, launcher.Request{Version: reinstallVersion})
				return err
			})
		})
		if err != nil {
			return fmt.Errorf("reinstall failed: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Reinstalled %s\n", id)
		return nil
	},
}

func init() {
	reinstallCmd.Flags().StringVar(&reinstallVersion, "version", "", "Reinstall this version identifier")
	rootCmd.AddCommand(reinstallCmd)
}
