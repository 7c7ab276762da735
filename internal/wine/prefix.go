// Package wine wraps one Wine prefix driven by one Wine (or Proton) build:
// binary resolution, environment assembly, short-lived helper commands
// such as reg and wineserver.
package wine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rsjfw/rsjfw/internal/apperr"
	"go.uber.org/zap"
)

// Prefix is a Wine prefix bound to a runtime root. An empty Root means the
// wine found on PATH.
type Prefix struct {
	Root string
	Dir  string
	Env  map[string]string

	log *zap.Logger
}

// New returns a Prefix. When dir is empty the conventional ~/.wine is used.
func New(root, dir string, log *zap.Logger) *Prefix {
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		dir = filepath.Join(home, ".wine")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Prefix{Root: root, Dir: dir, Env: map[string]string{}, log: log}
}

// IsProton reports whether the runtime root is a Proton build.
func (p *Prefix) IsProton() bool {
	if p.Root == "" {
		return false
	}
	_, err := os.Stat(filepath.Join(p.Root, "proton"))
	return err == nil
}

// Bin returns the path of a runtime program such as "wineserver".
func (p *Prefix) Bin(prog string) string {
	switch {
	case p.IsProton():
		return filepath.Join(p.Root, "files", "bin", prog)
	case p.Root != "":
		return filepath.Join(p.Root, "bin", prog)
	}
	return prog
}

// WineCommand returns the launcher executable and the arguments that must
// precede the Windows program.
func (p *Prefix) WineCommand() (string, []string) {
	switch {
	case p.IsProton():
		return filepath.Join(p.Root, "proton"), []string{"run"}
	case p.Root != "":
		return filepath.Join(p.Root, "bin", "wine"), nil
	}
	return "wine", nil
}

// Environ merges base, the prefix's own variables and WINEPREFIX, in
// increasing precedence, and returns the result sorted by name.
func (p *Prefix) Environ(base []string) []string {
	merged := make(map[string]string, len(base)+len(p.Env)+1)
	for _, kv := range base {
		if k, v, ok := strings.Cut(kv, "="); ok {
			merged[k] = v
		}
	}
	for k, v := range p.Env {
		merged[k] = v
	}
	if p.Dir != "" {
		merged["WINEPREFIX"] = p.Dir
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+merged[k])
	}
	return out
}

// Command builds a command running exe inside the prefix environment.
func (p *Prefix) Command(ctx context.Context, exe string, args ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, exe, args...)
	cmd.Env = p.Environ(os.Environ())
	return cmd
}

// Run executes exe to completion, capturing its combined output. A
// non-zero exit is a process error carrying the exit status and the tail
// of the output.
func (p *Prefix) Run(ctx context.Context, exe string, args ...string) error {
	cmd := p.Command(ctx, exe, args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	p.log.Debug("running", zap.String("exe", exe), zap.Strings("args", args))
	err := cmd.Run()
	if err == nil {
		return nil
	}

	op := filepath.Base(exe)
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return apperr.Newf(apperr.KindProcess, op, "exited with status %d: %s",
			exitErr.ExitCode(), tail(out.String(), 400)).WithExitStatus(exitErr.ExitCode())
	}
	return apperr.Wrap(apperr.KindProcess, op, fmt.Errorf("starting: %w", err))
}

// Wine runs a Windows program (or builtin such as "reg") in the prefix.
func (p *Prefix) Wine(ctx context.Context, target string, args ...string) error {
	exe, lead := p.WineCommand()
	full := append(append(lead, target), args...)
	return p.Run(ctx, exe, full...)
}

// Kill stops every process of the prefix with wineserver -k.
func (p *Prefix) Kill(ctx context.Context) error {
	return p.Run(ctx, p.Bin("wineserver"), "-k")
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}

// User returns the account name Wine uses for the prefix's user profile.
func User() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "nunya"
}

// UserDir returns drive_c/users/<user> inside the prefix.
func (p *Prefix) UserDir() string {
	return filepath.Join(p.Dir, "drive_c", "users", User())
}

// LocalAppData returns the profile's local application-data directory.
// Older prefixes without an AppData folder use the XP-era layout.
func (p *Prefix) LocalAppData() string {
	if _, err := os.Stat(filepath.Join(p.UserDir(), "AppData")); err != nil {
		return filepath.Join(p.UserDir(), "Local Settings", "Application Data")
	}
	return filepath.Join(p.UserDir(), "AppData", "Local")
}
