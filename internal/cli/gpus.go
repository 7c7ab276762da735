package cli

import (
	"fmt"

	"github.com/rsjfw/rsjfw/internal/gpu"
	"github.com/spf13/cobra"
)

var gpusCmd = &cobra.Command{
	Use:   "gpus",
	Short: "List display adapters usable with general.gpu",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		gpus, err := gpu.Detect(cmd.Context())
		if err != nil {
			return fmt.Errorf("detecting GPUs: %w", err)
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%d: Auto\n", gpu.Auto)
		for i, desc := range gpus {
			fmt.Fprintf(out, "%d: %s\n", i, desc)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(gpusCmd)
}
