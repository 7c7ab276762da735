// Package progress holds the shared status object every pipeline stage
// reports into, and a terminal renderer that polls it.
//
// Producers never block: each update bumps a version counter and performs a
// non-blocking send on a one-slot notification channel. Consumers either
// wait on Updates() or poll Snapshot() and compare versions.
package progress

import "sync"

// Reporter receives progress for one named task.
type Reporter interface {
	Report(task string, fraction float64, status string)
}

// Sink is the stage-facing side of a Tracker.
type Sink interface {
	Reporter
	Begin(task, status string)
	Finish(task, status string)
}

// Task is the visible state of one active task.
type Task struct {
	Name     string
	Fraction float64
	Status   string
}

// Snapshot is a consistent copy of the tracker state.
type Snapshot struct {
	Version uint64
	Status  string
	Tasks   []Task
	// Finished lists tasks completed since they last began, at fraction 1.
	Finished []Task
	Failed   bool
}

// Tracker is the mutex-guarded shared status object.
type Tracker struct {
	mu      sync.Mutex
	version uint64
	status  string
	failed  bool
	tasks   map[string]*Task
	order   []string
	done    []Task
	notify  chan struct{}
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		tasks:  make(map[string]*Task),
		notify: make(chan struct{}, 1),
	}
}

// Begin starts (or restarts) a task at fraction 0.
func (t *Tracker) Begin(task, status string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.tasks[task]; !ok {
		t.order = append(t.order, task)
	}
	t.tasks[task] = &Task{Name: task, Status: status}
	t.forget(task)
	t.status = status
	t.bump()
}

// Report updates a task. The fraction is clamped to [0,1] and never moves
// backwards within one task's lifetime.
func (t *Tracker) Report(task string, fraction float64, status string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	cur, ok := t.tasks[task]
	if !ok {
		cur = &Task{Name: task}
		t.tasks[task] = cur
		t.order = append(t.order, task)
	}
	fraction = clamp(fraction)
	if fraction > cur.Fraction {
		cur.Fraction = fraction
	}
	if status != "" {
		cur.Status = status
		t.status = status
	}
	t.bump()
}

// Finish reports fraction 1 with a terminal status and removes the task
// from the active set.
func (t *Tracker) Finish(task, status string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.remove(task)
	t.forget(task)
	t.done = append(t.done, Task{Name: task, Fraction: 1, Status: status})
	if status != "" {
		t.status = status
	}
	t.bump()
}

// Fail removes the task and records status as the failure text.
func (t *Tracker) Fail(task, status string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.remove(task)
	t.status = status
	t.failed = true
	t.bump()
}

// Snapshot returns a copy of the current state. Tasks are listed in the
// order they were first reported.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := Snapshot{Version: t.version, Status: t.status, Failed: t.failed}
	for _, name := range t.order {
		s.Tasks = append(s.Tasks, *t.tasks[name])
	}
	s.Finished = append(s.Finished, t.done...)
	return s
}

// Updates returns a channel that receives after one or more updates.
// Several updates between reads coalesce into one notification.
func (t *Tracker) Updates() <-chan struct{} {
	return t.notify
}

// Scale returns a Reporter that maps fractions into [lo, hi] of task on r.
// It folds per-package progress into one bar.
func Scale(r Reporter, task string, lo, hi float64) Reporter {
	return scaled{r: r, task: task, lo: lo, hi: hi}
}

func (t *Tracker) remove(task string) {
	if _, ok := t.tasks[task]; !ok {
		return
	}
	delete(t.tasks, task)
	for i, name := range t.order {
		if name == task {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
}

func (t *Tracker) forget(task string) {
	for i, d := range t.done {
		if d.Name == task {
			t.done = append(t.done[:i], t.done[i+1:]...)
			return
		}
	}
}

// bump must be called with the lock held.
func (t *Tracker) bump() {
	t.version++
	select {
	case t.notify <- struct{}{}:
	default:
	}
}

type scaled struct {
	r      Reporter
	task   string
	lo, hi float64
}

// Report keeps the mapped value inside [lo, hi] and lands exactly on hi
// at fraction 1, so consecutive ranges never overlap through rounding.
func (s scaled) Report(_ string, fraction float64, status string) {
	fraction = clamp(fraction)
	v := s.lo + fraction*(s.hi-s.lo)
	if fraction == 1 || v > s.hi {
		v = s.hi
	}
	s.r.Report(s.task, v, status)
}

func clamp(f float64) float64 {
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}

// Nop discards every report.
var Nop Reporter = nopReporter{}

type nopReporter struct{}

func (nopReporter) Report(string, float64, string) {}
