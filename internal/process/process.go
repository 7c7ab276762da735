// Package process runs one child in its own process group with stdout and
// stderr merged into a single pipe.
//
// The group matters for Wine: the launcher forks wineserver and the
// Windows program, and a signal sent to the group reaches all of them.
package process

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"github.com/rsjfw/rsjfw/internal/apperr"
	"golang.org/x/sys/unix"
)

// Mode selects how Terminate stops the group.
type Mode int

const (
	// Graceful sends SIGTERM.
	Graceful Mode = iota
	// Forced sends SIGKILL.
	Forced
)

// maxLine bounds one output line.
const maxLine = 1 << 20

// Spec describes a child to start.
type Spec struct {
	Path string
	Args []string
	Env  []string
	Dir  string
}

// Status is how a child ended.
type Status struct {
	Code     int
	Signaled bool
	Signal   syscall.Signal
}

// Success reports a zero exit without a signal.
func (s Status) Success() bool { return !s.Signaled && s.Code == 0 }

// Raw folds the status into one integer, using 128+signal for signals.
func (s Status) Raw() int {
	if s.Signaled {
		return 128 + int(s.Signal)
	}
	return s.Code
}

func (s Status) String() string {
	if s.Signaled {
		return fmt.Sprintf("killed by %s", unix.SignalName(s.Signal))
	}
	return fmt.Sprintf("exit status %d", s.Code)
}

// Process is a running child.
type Process struct {
	cmd  *exec.Cmd
	out  *os.File
	done chan struct{}
	err  error
}

// Start spawns the child. A failure here means no child exists.
func Start(spec Spec) (*Process, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return nil, apperr.Wrap(apperr.KindProcess, "spawn", fmt.Errorf("creating pipe: %w", err))
	}

	cmd := exec.Command(spec.Path, spec.Args...)
	cmd.Env = spec.Env
	cmd.Dir = spec.Dir
	cmd.Stdout = w
	cmd.Stderr = w
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		r.Close()
		w.Close()
		return nil, apperr.Wrap(apperr.KindProcess, "spawn", fmt.Errorf("starting %s: %w", spec.Path, err))
	}
	// The child owns the write end now; EOF arrives once every process
	// holding it has exited.
	w.Close()

	p := &Process{cmd: cmd, out: r, done: make(chan struct{})}
	go func() {
		p.err = cmd.Wait()
		close(p.done)
	}()
	return p, nil
}

// Pid returns the child's process id, which is also its group id.
func (p *Process) Pid() int { return p.cmd.Process.Pid }

// ReadLines calls fn for every output line until EOF or until fn returns
// false. The pipe is closed on return, so it can only be called once.
func (p *Process) ReadLines(fn func(line string) bool) error {
	defer p.out.Close()

	sc := bufio.NewScanner(p.out)
	sc.Buffer(make([]byte, 64*1024), maxLine)
	for sc.Scan() {
		if !fn(sc.Text()) {
			return nil
		}
	}
	if err := sc.Err(); err != nil && !errors.Is(err, os.ErrClosed) {
		return fmt.Errorf("reading child output: %w", err)
	}
	return nil
}

// Terminate signals the whole process group. Signalling a group that is
// already gone is not an error.
func (p *Process) Terminate(mode Mode) error {
	sig := unix.SIGTERM
	if mode == Forced {
		sig = unix.SIGKILL
	}
	err := unix.Kill(-p.Pid(), sig)
	if err != nil && !errors.Is(err, unix.ESRCH) {
		return fmt.Errorf("signalling process group %d: %w", p.Pid(), err)
	}
	return nil
}

// Done is closed when the child has exited.
func (p *Process) Done() <-chan struct{} { return p.done }

// Wait blocks until the child exits and returns its status.
func (p *Process) Wait() (Status, error) {
	<-p.done

	state := p.cmd.ProcessState
	if state == nil {
		return Status{Code: -1}, apperr.Wrap(apperr.KindProcess, "wait", p.err)
	}
	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return Status{Signaled: true, Signal: ws.Signal()}, nil
	}
	return Status{Code: state.ExitCode()}, nil
}
