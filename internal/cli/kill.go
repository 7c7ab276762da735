package cli

import (
	"fmt"

	"github.com/rsjfw/rsjfw/internal/progress"
	"github.com/spf13/cobra"
)

var killCmd = &cobra.Command{
	Use:   "kill",
	Short: "Stop every process running in the Wine prefix",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := newLauncher(progress.NewTracker()).Kill(cmd.Context()); err != nil {
			return fmt.Errorf("failed to stop the prefix: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Prefix processes terminated")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(killCmd)
}
