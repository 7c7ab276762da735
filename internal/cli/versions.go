package cli

import (
	"fmt"
	"strings"

	"github.com/rsjfw/rsjfw/internal/progress"
	"github.com/rsjfw/rsjfw/internal/provision"
	"github.com/spf13/cobra"
)

var (
	versionsSource  string
	versionsRefresh bool
)

var versionsCmd = &cobra.Command{
	Use:       "versions <wine|dxvk>",
	Short:     "List the releases available for a runtime component",
	Long:      `List release tags for the configured (or --source) source of Wine or DXVK.`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"wine", "dxvk"},
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := newLauncher(progress.NewTracker()).Provisioner(args[0])
		if err != nil {
			return err
		}

		source := provision.Source(versionsSource)
		if source == "" {
			source = provision.Source(app.settings.Get(args[0] + ".source"))
		}
		if versionsRefresh {
			if err := p.Refresh(source); err != nil {
				return fmt.Errorf("clearing release cache: %w", err)
			}
		}

		tags, err := p.ListAvailable(cmd.Context(), source)
		if err != nil {
			return fmt.Errorf("listing %s releases: %w", args[0], err)
		}
		out := cmd.OutOrStdout()
		if len(tags) == 0 {
			names := make([]string, 0)
			for _, s := range p.Component().SourceNames() {
				names = append(names, string(s))
			}
			fmt.Fprintf(out, "%s has no release list. Sources with releases: %s\n",
				source, strings.Join(names, ", "))
			return nil
		}
		for _, tag := range tags {
			fmt.Fprintln(out, tag)
		}
		return nil
	},
}

func init() {
	versionsCmd.Flags().StringVar(&versionsSource, "source", "", "Source to list instead of the configured one")
	versionsCmd.Flags().BoolVar(&versionsRefresh, "refresh", false, "Ignore the cached release list")
	rootCmd.AddCommand(versionsCmd)
}
