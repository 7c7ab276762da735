// Package supervisor launches the application under Wine and watches it:
// environment assembly, optional virtual desktop, output capture into a
// per-launch log, and termination on a known fatal message.
package supervisor

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rsjfw/rsjfw/internal/appdata"
	"github.com/rsjfw/rsjfw/internal/apperr"
	"github.com/rsjfw/rsjfw/internal/process"
	"github.com/rsjfw/rsjfw/internal/wine"
	"go.uber.org/zap"
)

// FatalPattern is the output line that means the application will never
// come up; it is killed as soon as the line is seen.
const FatalPattern = "Fatal exiting due to Trouble launching Studio"

// DefaultGrace is the wait between SIGTERM and SIGKILL.
const DefaultGrace = time.Second

// Desktop configures the explorer virtual-desktop wrapper.
type Desktop struct {
	Enabled    bool
	Multiple   bool
	Resolution string
}

// Request describes one launch.
type Request struct {
	Prefix *wine.Prefix
	// Exe is the host path of the Windows executable.
	Exe      string
	Args     []string
	Protocol bool

	DXVK        bool
	GPU         int
	WebView2Dir string
	User        string
	Env         map[string]string
	Desktop     Desktop

	// Output additionally receives every child line when set.
	Output io.Writer
}

// ExitResult describes how a launch ended.
type ExitResult struct {
	Pid     int
	Status  process.Status
	Fatal   bool
	LogPath string
}

// Supervisor launches and watches application processes.
type Supervisor struct {
	logDir  string
	log     *zap.Logger
	grace   time.Duration
	environ func() []string
	pid     int
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithLogger sets the application logger that receives child output.
func WithLogger(l *zap.Logger) Option {
	return func(s *Supervisor) {
		if l != nil {
			s.log = l
		}
	}
}

// WithGrace sets the wait between SIGTERM and SIGKILL.
func WithGrace(d time.Duration) Option {
	return func(s *Supervisor) { s.grace = d }
}

// WithEnviron replaces the parent environment source.
func WithEnviron(fn func() []string) Option {
	return func(s *Supervisor) { s.environ = fn }
}

// New returns a Supervisor writing per-launch logs into logDir.
func New(logDir string, opts ...Option) *Supervisor {
	s := &Supervisor{
		logDir:  logDir,
		log:     zap.NewNop(),
		grace:   DefaultGrace,
		environ: defaultEnviron,
		pid:     os.Getpid(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Command returns the program and arguments that start req.
func (s *Supervisor) Command(req Request) (string, []string) {
	exe, args := req.Prefix.WineCommand()
	args = append(args, DesktopArgs(req.Desktop, s.pid)...)
	args = append(args, req.Exe)
	return exe, append(args, req.Args...)
}

// Launch runs the application to completion. A zero exit returns a nil
// error; anything else is a process error carrying the raw status, and
// the result is still returned when a child existed.
func (s *Supervisor) Launch(ctx context.Context, req Request) (*ExitResult, error) {
	if !req.Protocol {
		if err := req.Prefix.Kill(ctx); err != nil {
			s.log.Debug("wineserver -k", zap.Error(err))
		}
	}

	exe, args := s.Command(req)
	s.log.Info("launching", zap.String("exe", exe), zap.Strings("args", args))

	p, err := process.Start(process.Spec{
		Path: exe,
		Args: args,
		Env:  s.BuildEnv(req),
		Dir:  filepath.Dir(req.Exe),
	})
	if err != nil {
		return nil, err
	}

	res := &ExitResult{Pid: p.Pid()}
	logFile := s.openLog(res)
	defer logFile.Close()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			s.stop(p)
		case <-stop:
		}
	}()

	childLog := s.log.With(zap.Int("pid", res.Pid))
	err = p.ReadLines(func(line string) bool {
		fmt.Fprintln(logFile, line)
		if req.Output != nil {
			fmt.Fprintln(req.Output, line)
		}
		childLog.Info(line)
		if strings.Contains(line, FatalPattern) {
			res.Fatal = true
			return false
		}
		return true
	})
	if err != nil {
		s.log.Warn("reading child output", zap.Error(err))
	}

	if res.Fatal {
		fmt.Fprintln(logFile, "Detected fatal application error, terminating")
		s.log.Warn("fatal application error, terminating", zap.Int("pid", res.Pid))
		s.stop(p)
	}

	res.Status, err = p.Wait()
	if err != nil {
		return res, err
	}
	return res, classify(res)
}

func classify(res *ExitResult) error {
	switch {
	case res.Fatal:
		return apperr.New(apperr.KindProcess, "launch", "application reported a fatal startup error").
			WithExitStatus(res.Status.Raw())
	case !res.Status.Success():
		return apperr.Newf(apperr.KindProcess, "launch", "application %s", res.Status).
			WithExitStatus(res.Status.Raw())
	}
	return nil
}

// stop sends SIGTERM to the group, then SIGKILL if it outlives the grace.
func (s *Supervisor) stop(p *process.Process) {
	if err := p.Terminate(process.Graceful); err != nil {
		s.log.Warn("terminate", zap.Error(err))
	}
	select {
	case <-p.Done():
		return
	case <-time.After(s.grace):
	}
	if err := p.Terminate(process.Forced); err != nil {
		s.log.Warn("kill", zap.Error(err))
	}
}

func (s *Supervisor) openLog(res *ExitResult) io.WriteCloser {
	if err := os.MkdirAll(s.logDir, appdata.DirPermNormal); err != nil {
		s.log.Warn("creating log directory", zap.Error(err))
		return nopCloser{io.Discard}
	}
	res.LogPath = filepath.Join(s.logDir, fmt.Sprintf("studio_%d.log", res.Pid))
	f, err := os.Create(res.LogPath)
	if err != nil {
		s.log.Warn("creating launch log", zap.Error(err))
		res.LogPath = ""
		return nopCloser{io.Discard}
	}
	return f
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

// Kill stops every process in the prefix.
func (s *Supervisor) Kill(ctx context.Context, p *wine.Prefix) error {
	s.log.Info("killing prefix processes", zap.String("prefix", p.Dir))
	return p.Kill(ctx)
}
