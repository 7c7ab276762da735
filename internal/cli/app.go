package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rsjfw/rsjfw/internal/appdata"
	"github.com/rsjfw/rsjfw/internal/config"
	"github.com/rsjfw/rsjfw/internal/fflag"
	"github.com/rsjfw/rsjfw/internal/httpclient"
	"github.com/rsjfw/rsjfw/internal/instance"
	"github.com/rsjfw/rsjfw/internal/launcher"
	"github.com/rsjfw/rsjfw/internal/logging"
	"github.com/rsjfw/rsjfw/internal/progress"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// app is the state shared by every command, built once per invocation.
var app struct {
	env      config.Env
	layout   appdata.Layout
	settings *config.Store
	flags    *fflag.Store
	log      *zap.Logger
}

func setup(cmd *cobra.Command) error {
	env, err := config.LoadEnv()
	if err != nil {
		return err
	}
	layout := appdata.New(env.Root)
	if env.Root == "" {
		if layout, err = appdata.Resolve(); err != nil {
			return err
		}
	}
	if err := layout.Ensure(); err != nil {
		return err
	}

	logCfg := logging.DefaultConfig(layout.LogPath())
	logCfg.Level = env.LogLevel
	logCfg.Development = env.LogDev
	if verbose {
		logCfg.OutputPaths = append(logCfg.OutputPaths, "stderr")
	}
	log := logging.NewOrNop(logCfg)

	settings, err := config.Load(layout.ConfigPath())
	if err != nil {
		return err
	}
	flags, err := fflag.Load(layout.FFlagsPath())
	if err != nil {
		return err
	}

	app.env = env
	app.layout = layout
	app.settings = settings
	app.flags = flags
	app.log = log.With(zap.String("cmd", cmd.CommandPath()))
	return nil
}

func teardown() {
	if app.log != nil {
		_ = app.log.Sync()
	}
}

func newClient() *httpclient.Client {
	return httpclient.New(httpclient.WithLogger(app.log))
}

func newLauncher(tracker *progress.Tracker, opts ...launcher.Option) *launcher.Launcher {
	opts = append([]launcher.Option{launcher.WithLogger(app.log)}, opts...)
	return launcher.New(app.layout, app.settings.Settings(), app.settings, app.flags.Flags(),
		newClient(), tracker, opts...)
}

// exclusive runs fn while holding the instance socket, so no launch can
// touch the prefix until fn returns. Launches forwarded meanwhile are dropped.
func exclusive(cmd *cobra.Command, fn func() error) error {
	coord := instance.New(app.env.SocketDir, instance.WithLogger(app.log))
	if err := coord.Acquire(app.env.Instance); err != nil {
		if errors.Is(err, instance.ErrRunning) {
			return fmt.Errorf("a launch of instance %q is running; close it before running %s", app.env.Instance, cmd.Name())
		}
		return err
	}
	defer coord.Stop()

	if err := coord.Serve(func(args []string) {
		app.log.Warn("dropping forwarded launch", zap.String("command", cmd.Name()), zap.Strings("args", args))
		fmt.Fprintf(cmd.ErrOrStderr(), "Ignoring a launch request while %s runs\n", cmd.Name())
	}); err != nil {
		return err
	}
	return fn()
}

// withProgress runs fn while drawing tracker updates on stderr. The
// context is cancelled on SIGINT or SIGTERM.
func withProgress(cmd *cobra.Command, fn func(ctx context.Context, tracker *progress.Tracker) error) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tracker := progress.NewTracker()
	drawCtx, cancelDraw := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		progress.NewRenderer(cmd.ErrOrStderr()).Run(drawCtx, tracker)
		close(done)
	}()

	err := fn(ctx, tracker)
	cancelDraw()
	<-done
	return err
}
