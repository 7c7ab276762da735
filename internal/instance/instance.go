// Package instance keeps one primary process per instance name. Later
// invocations find the primary's unix socket, hand it their arguments and
// exit.
package instance

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
)

// Role is the outcome of BecomePrimaryOrForward.
type Role int

const (
	// Primary owns the socket and should run the application.
	Primary Role = iota
	// Secondary forwarded its arguments and should exit.
	Secondary
)

func (r Role) String() string {
	if r == Primary {
		return "primary"
	}
	return "secondary"
}

// ErrNotPrimary is returned by Serve on a coordinator that does not own
// the socket.
var ErrNotPrimary = errors.New("instance is not primary")

// ErrRunning is returned by Acquire when a primary already owns the socket.
var ErrRunning = errors.New("another instance is running")

// SocketPath returns the socket location for an instance name.
func SocketPath(dir, name string) string {
	return filepath.Join(dir, "rsjfw_"+name+".sock")
}

// Coordinator arbitrates between invocations sharing a socket directory.
type Coordinator struct {
	dir     string
	path    string
	ln      *net.UnixListener
	stopped atomic.Bool
	log     *zap.Logger
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.log = l
		}
	}
}

// New returns a Coordinator placing sockets in dir.
func New(dir string, opts ...Option) *Coordinator {
	c := &Coordinator{dir: dir, log: zap.NewNop()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Path returns the socket path once BecomePrimaryOrForward or Acquire has run.
func (c *Coordinator) Path() string { return c.path }

// BecomePrimaryOrForward binds the socket for name. If another process
// already listens there, args are sent to it and Secondary is returned.
// A socket file nobody listens on is stale: it is removed and binding is
// retried once.
func (c *Coordinator) BecomePrimaryOrForward(name string, args []string) (Role, error) {
	conn, err := c.bind(name)
	if err != nil {
		return Primary, err
	}
	if conn == nil {
		return Primary, nil
	}
	defer conn.Close()
	if err := send(conn, args); err != nil {
		return Secondary, fmt.Errorf("forwarding arguments: %w", err)
	}
	c.log.Info("forwarded arguments to primary instance", zap.String("socket", c.path), zap.Strings("args", args))
	return Secondary, nil
}

// Acquire binds the socket for name without forwarding anything. It
// returns ErrRunning while a primary is alive.
func (c *Coordinator) Acquire(name string) error {
	conn, err := c.bind(name)
	if err != nil {
		return err
	}
	if conn != nil {
		conn.Close()
		return ErrRunning
	}
	return nil
}

// bind listens on the socket for name, replacing a stale file. When a
// live primary holds it, the connection to that primary is returned.
func (c *Coordinator) bind(name string) (net.Conn, error) {
	c.path = SocketPath(c.dir, name)

	ln, err := c.listen()
	if err == nil {
		c.ln = ln
		return nil, nil
	}

	conn, dialErr := net.Dial("unix", c.path)
	if dialErr == nil {
		return conn, nil
	}

	c.log.Debug("removing stale socket", zap.String("socket", c.path), zap.Error(dialErr))
	if err := os.Remove(c.path); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("removing stale socket: %w", err)
	}
	ln, err = c.listen()
	if err != nil {
		return nil, fmt.Errorf("binding %s: %w", c.path, err)
	}
	c.ln = ln
	return nil, nil
}

func (c *Coordinator) listen() (*net.UnixListener, error) {
	return net.ListenUnix("unix", &net.UnixAddr{Name: c.path, Net: "unix"})
}

func send(w io.Writer, args []string) error {
	var b strings.Builder
	for _, a := range args {
		b.WriteString(a)
		b.WriteByte('\n')
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// Serve accepts forwarded argument lists on a background goroutine and
// passes each non-empty list to fn. Connections are handled one at a
// time, in arrival order.
func (c *Coordinator) Serve(fn func(args []string)) error {
	if c.ln == nil {
		return ErrNotPrimary
	}
	go c.acceptLoop(c.ln, fn)
	return nil
}

func (c *Coordinator) acceptLoop(ln *net.UnixListener, fn func([]string)) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if c.stopped.Load() || errors.Is(err, net.ErrClosed) {
				return
			}
			c.log.Warn("accept", zap.Error(err))
			continue
		}
		if c.stopped.Load() {
			conn.Close()
			return
		}

		data, err := io.ReadAll(conn)
		conn.Close()
		if err != nil {
			c.log.Warn("reading forwarded arguments", zap.Error(err))
			continue
		}
		if args := parse(data); len(args) > 0 {
			fn(args)
		}
	}
}

func parse(data []byte) []string {
	if len(data) == 0 {
		return nil
	}
	return strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
}

// Stop shuts the listener down and removes the socket file.
func (c *Coordinator) Stop() error {
	if c.ln == nil || !c.stopped.CompareAndSwap(false, true) {
		return nil
	}
	if conn, err := net.Dial("unix", c.path); err == nil {
		conn.Close()
	}
	err := c.ln.Close()
	if rmErr := os.Remove(c.path); rmErr != nil && !os.IsNotExist(rmErr) && err == nil {
		err = rmErr
	}
	if err != nil && !errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("stopping instance listener: %w", err)
	}
	return nil
}
