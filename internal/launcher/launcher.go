// Package launcher runs the launch pipeline: resolve the version, install
// it, provision Wine and DXVK, configure the prefix, write the fast-flag
// files and hand the process to the supervisor.
//
// Every stage returns an error; Run converts the first failure into a
// Result at the pipeline boundary and reports it on the tracker.
package launcher

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
	"github.com/rsjfw/rsjfw/internal/appdata"
	"github.com/rsjfw/rsjfw/internal/config"
	"github.com/rsjfw/rsjfw/internal/fflag"
	"github.com/rsjfw/rsjfw/internal/installer"
	"github.com/rsjfw/rsjfw/internal/progress"
	"github.com/rsjfw/rsjfw/internal/provision"
	"github.com/rsjfw/rsjfw/internal/supervisor"
	"github.com/rsjfw/rsjfw/internal/version"
	"go.uber.org/zap"
)

// Task is the progress task name of the launch stage.
const Task = "launch"

// HTTPClient is the network surface of the pipeline.
type HTTPClient interface {
	Get(ctx context.Context, url string) ([]byte, error)
	GetJSON(ctx context.Context, url string, out interface{}) error
	Download(ctx context.Context, url, dest, task string, rep progress.Reporter) error
}

// Request is one launch.
type Request struct {
	// Version pins a version identifier; empty follows the settings.
	Version string
	Args    []string
	// Protocol marks a handoff from a URL handler. The running prefix is
	// left alone.
	Protocol bool
	// Offline falls back to the newest installed version when the
	// version service cannot be reached.
	Offline bool
}

// Result is the outcome of a pipeline run as shown to the user.
type Result struct {
	OK     bool
	Status string
	Err    error
}

// Launcher wires the pipeline stages together.
type Launcher struct {
	layout   appdata.Layout
	settings config.Settings
	flags    fflag.Set
	client   HTTPClient
	tracker  *progress.Tracker

	resolver *version.Resolver
	inst     *installer.Installer
	wine     *provision.Provisioner
	dxvk     *provision.Provisioner
	sup      *supervisor.Supervisor

	log     *zap.Logger
	output  io.Writer
	supOpts []supervisor.Option

	mu       sync.Mutex
	idle     *sync.Cond
	prepared *prepared
	// handoffs counts running handed-off sessions; closed refuses new ones.
	handoffs int
	closed   bool
}

// Option configures a Launcher.
type Option func(*Launcher)

// WithLogger sets the logger shared by every stage.
func WithLogger(l *zap.Logger) Option {
	return func(ln *Launcher) {
		if l != nil {
			ln.log = l
		}
	}
}

// WithOutput echoes the application's output to w.
func WithOutput(w io.Writer) Option {
	return func(ln *Launcher) { ln.output = w }
}

// WithSupervisorOptions passes options through to the process supervisor.
func WithSupervisorOptions(opts ...supervisor.Option) Option {
	return func(ln *Launcher) { ln.supOpts = append(ln.supOpts, opts...) }
}

// New builds a Launcher from settings. store receives provisioned roots.
func New(layout appdata.Layout, settings config.Settings, store provision.RootStore, flags fflag.Set,
	client HTTPClient, tracker *progress.Tracker, opts ...Option) *Launcher {
	l := &Launcher{
		layout:   layout,
		settings: settings,
		flags:    flags,
		client:   client,
		tracker:  tracker,
		log:      zap.NewNop(),
	}
	l.idle = sync.NewCond(&l.mu)
	for _, opt := range opts {
		opt(l)
	}

	l.resolver = version.NewResolver(client, settings.Endpoints.ClientSettings)
	l.inst = installer.New(layout, client, settings.Endpoints.CDN, installer.WithLogger(l.log))
	l.wine = provision.New(provision.Wine(layout), client, store, settings.Endpoints.GitHubAPI,
		provision.WithLogger(l.log), provision.WithReleaseCache(layout.ReleaseCache()))
	l.dxvk = provision.New(provision.DXVK(layout), client, store, settings.Endpoints.GitHubAPI,
		provision.WithLogger(l.log), provision.WithReleaseCache(layout.ReleaseCache()))
	l.sup = supervisor.New(layout.Logs(), append([]supervisor.Option{supervisor.WithLogger(l.log)}, l.supOpts...)...)
	return l
}

// Installer returns the application installer.
func (l *Launcher) Installer() *installer.Installer { return l.inst }

// Provisioner returns the provisioner for "wine" or "dxvk".
func (l *Launcher) Provisioner(component string) (*provision.Provisioner, error) {
	switch component {
	case "wine":
		return l.wine, nil
	case "dxvk":
		return l.dxvk, nil
	}
	return nil, fmt.Errorf("unknown component %q", component)
}

// Run executes the whole pipeline and blocks until the application exits.
func (l *Launcher) Run(ctx context.Context, req Request) Result {
	log := l.log.With(zap.String("run", uuid.NewString()))
	log.Info("pipeline start", zap.String("version", req.Version), zap.Strings("args", req.Args), zap.Bool("protocol", req.Protocol))

	return l.finish(log, l.run(ctx, log, req))
}

// Handoff launches args forwarded by another invocation without waiting.
// It reuses the state prepared by the last run when there is one. The
// session lives until it exits or ctx is cancelled; Wait and Close block
// on it. Handoff reports false once the Launcher is closed.
func (l *Launcher) Handoff(ctx context.Context, args []string) bool {
	log := l.log.With(zap.String("run", uuid.NewString()), zap.Bool("handoff", true))

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		log.Warn("launcher closed, dropping forwarded launch", zap.Strings("args", args))
		return false
	}
	l.handoffs++
	p := l.prepared
	l.mu.Unlock()

	go func() {
		defer l.handoffDone()
		req := Request{Args: args, Protocol: true}
		var err error
		if p != nil {
			err = l.launch(ctx, log, p, req)
		} else {
			err = l.run(ctx, log, req)
		}
		l.finish(log, err)
	}()
	return true
}

func (l *Launcher) handoffDone() {
	l.mu.Lock()
	l.handoffs--
	if l.handoffs == 0 {
		l.idle.Broadcast()
	}
	l.mu.Unlock()
}

// Wait blocks until no handed-off session is running. Handoffs may still
// start while it waits.
func (l *Launcher) Wait() {
	l.mu.Lock()
	for l.handoffs > 0 {
		l.idle.Wait()
	}
	l.mu.Unlock()
}

// Close refuses further handoffs and waits for the running ones.
func (l *Launcher) Close() {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	l.Wait()
}

func (l *Launcher) finish(log *zap.Logger, err error) Result {
	if err != nil {
		log.Error("pipeline failed", zap.Error(err))
		l.tracker.Fail(Task, err.Error())
		return Result{Status: err.Error(), Err: err}
	}
	log.Info("pipeline finished")
	l.tracker.Finish(Task, "Studio exited")
	return Result{OK: true, Status: "Studio exited"}
}

func (l *Launcher) run(ctx context.Context, log *zap.Logger, req Request) error {
	p, err := l.prepare(ctx, req)
	if err != nil {
		return err
	}
	return l.launch(ctx, log, p, req)
}
