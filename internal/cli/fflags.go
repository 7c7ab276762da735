package cli

import (
	"fmt"

	"github.com/rsjfw/rsjfw/internal/fflag"
	"github.com/spf13/cobra"
)

func init() {
	fflagsCmd.AddCommand(fflagsSetCmd)
	fflagsCmd.AddCommand(fflagsUnsetCmd)
	fflagsCmd.AddCommand(fflagsListCmd)
	fflagsCmd.AddCommand(fflagsImportCmd)
	rootCmd.AddCommand(fflagsCmd)
}

var fflagsCmd = &cobra.Command{
	Use:   "fflags",
	Short: "Manage fast flags written to ClientAppSettings.json",
	Long: `Fast flags are stored in ~/.rsjfw/fflags.yaml and written to the
installed version's ClientSettings/ClientAppSettings.json on every launch.
The configured renderer adds its own flags on top.`,
}

var fflagsSetCmd = &cobra.Command{
	Use:   "set <name> <value>",
	Short: "Set a fast flag",
	Long:  `Values parse as boolean, then integer, then float; anything else is a string.`,
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		v := fflag.Parse(args[1])
		if err := app.flags.Set(args[0], v); err != nil {
			return fmt.Errorf("setting flag %q: %w", args[0], err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %s (%s)\n", args[0], v, v.Kind)
		return nil
	},
}

var fflagsUnsetCmd = &cobra.Command{
	Use:   "unset <name>",
	Short: "Remove a fast flag",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := app.flags.Unset(args[0]); err != nil {
			return fmt.Errorf("removing flag %q: %w", args[0], err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", args[0])
		return nil
	},
}

var fflagsListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print the stored fast flags",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := app.flags.Flags()
		out := cmd.OutOrStdout()
		if len(flags) == 0 {
			fmt.Fprintln(out, "No fast flags set.")
			return nil
		}
		for _, name := range flags.Names() {
			fmt.Fprintf(out, "%s = %s\n", name, flags[name])
		}
		return nil
	},
}

var fflagsImportCmd = &cobra.Command{
	Use:   "import <file.json>",
	Short: "Merge fast flags from a JSON object",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := app.flags.Import(args[0])
		if err != nil {
			return fmt.Errorf("importing %s: %w", args[0], err)
		}
		out := cmd.OutOrStdout()
		if !result.Valid {
			for _, issue := range result.Issues {
				fmt.Fprintf(out, "  %s\n", issue)
			}
			return fmt.Errorf("%s is not a valid fast-flag object", args[0])
		}
		fmt.Fprintf(out, "Imported %s\n", args[0])
		return nil
	},
}
