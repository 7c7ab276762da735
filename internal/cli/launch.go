package cli

import (
	"context"
	"fmt"

	"github.com/rsjfw/rsjfw/internal/instance"
	"github.com/rsjfw/rsjfw/internal/launcher"
	"github.com/rsjfw/rsjfw/internal/progress"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	launchOffline bool
	launchVersion string
	launchQuiet   bool
)

var launchCmd = &cobra.Command{
	Use:   "launch [args...]",
	Short: "Install if needed and launch the application",
	Long: `Run the full pipeline and launch the application, waiting until it exits.

If another launch is already running, the arguments are handed to it and this
invocation exits immediately. roblox-studio: and roblox-studio-auth: URLs are
passed to the application as -protocolString.`,
	RunE: runLaunch,
}

func init() {
	launchCmd.Flags().BoolVar(&launchOffline, "offline", false, "Use the newest installed version when the version service is unreachable")
	launchCmd.Flags().StringVar(&launchVersion, "version", "", "Launch this version identifier")
	launchCmd.Flags().BoolVarP(&launchQuiet, "quiet", "q", false, "Do not echo application output")
	launchCmd.Flags().SetInterspersed(false)
	rootCmd.AddCommand(launchCmd)
}

func runLaunch(cmd *cobra.Command, args []string) error {
	coord := instance.New(app.env.SocketDir, instance.WithLogger(app.log))
	role, err := coord.BecomePrimaryOrForward(app.env.Instance, args)
	if err != nil {
		return err
	}
	if role == instance.Secondary {
		fmt.Fprintln(cmd.OutOrStdout(), "Handed off to the running instance")
		return nil
	}
	defer coord.Stop()

	var res launcher.Result
	err = withProgress(cmd, func(ctx context.Context, tracker *progress.Tracker) error {
		var opts []launcher.Option
		if !launchQuiet {
			opts = append(opts, launcher.WithOutput(cmd.OutOrStdout()))
		}
		l := newLauncher(tracker, opts...)

		if err := coord.Serve(func(forwarded []string) {
			app.log.Info("forwarded launch", zap.Strings("args", forwarded))
			l.Handoff(ctx, forwarded)
		}); err != nil {
			return err
		}

		res = l.Run(ctx, launcher.Request{Version: launchVersion, Args: args, Offline: launchOffline})

		// Forwarded sessions keep the primary alive, and it keeps
		// accepting forwards until they are done.
		l.Wait()
		coord.Stop()
		l.Close()
		return res.Err
	})
	if err != nil {
		return fmt.Errorf("launch failed: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), res.Status)
	return nil
}
