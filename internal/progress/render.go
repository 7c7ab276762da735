package progress

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/mattn/go-isatty"
)

// writerIsTTY returns true if the given writer exposes an Fd() method
// (e.g. *os.File) and that fd is a terminal.
func writerIsTTY(w io.Writer) bool {
	type fder interface {
		Fd() uintptr
	}
	if f, ok := w.(fder); ok {
		return isatty.IsTerminal(f.Fd())
	}
	return false
}

// Renderer draws tracker updates to a writer.
type Renderer struct {
	w     io.Writer
	tty   bool
	width int
	last  string
}

// NewRenderer returns a renderer for w. On a terminal it redraws one line in
// place; otherwise it prints each distinct status once.
func NewRenderer(w io.Writer) *Renderer {
	return &Renderer{w: w, tty: writerIsTTY(w), width: 30}
}

// Run redraws on every tracker update until ctx is done.
func (r *Renderer) Run(ctx context.Context, t *Tracker) {
	for {
		select {
		case <-ctx.Done():
			r.Draw(t.Snapshot())
			if r.tty {
				fmt.Fprintln(r.w)
			}
			return
		case <-t.Updates():
			r.Draw(t.Snapshot())
		}
	}
}

// Draw renders one snapshot.
func (r *Renderer) Draw(s Snapshot) {
	line := s.Status
	if len(s.Tasks) > 0 {
		task := s.Tasks[len(s.Tasks)-1]
		line = fmt.Sprintf("%s %3d%% %s", r.bar(task.Fraction), int(task.Fraction*100), task.Status)
	}

	if r.tty {
		// Pad to clear leftovers from a longer previous line.
		pad := ""
		if n := len(r.last) - len(line); n > 0 {
			pad = strings.Repeat(" ", n)
		}
		fmt.Fprintf(r.w, "\r%s%s", line, pad)
		r.last = line
		return
	}

	if s.Status != "" && s.Status != r.last {
		fmt.Fprintln(r.w, s.Status)
		r.last = s.Status
	}
}

func (r *Renderer) bar(fraction float64) string {
	filled := int(fraction * float64(r.width))
	var b strings.Builder
	b.WriteString("[")
	for i := 0; i < r.width; i++ {
		switch {
		case i < filled-1:
			b.WriteString("=")
		case i == filled-1:
			b.WriteString(">")
		default:
			b.WriteString(" ")
		}
	}
	b.WriteString("]")
	return b.String()
}
