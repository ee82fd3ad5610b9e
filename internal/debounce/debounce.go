// Package debounce coalesces bursts of save requests into occasional runs of
// a single idempotent flush function.
package debounce

import (
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

const (
	DefaultDelay      = 3 * time.Second
	DefaultRerunDelay = 10 * time.Millisecond
)

type state int

const (
	stateIdle state = iota
	stateScheduled
	stateRunning
	stateRunningWithRerun
)

func (s state) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateScheduled:
		return "scheduled"
	case stateRunning:
		return "running"
	case stateRunningWithRerun:
		return "running+rerun"
	default:
		return "unknown"
	}
}

type Option func(*Worker)

// WithDelay sets the quiescence window between the first Trigger and the flush.
func WithDelay(d time.Duration) Option {
	return func(w *Worker) {
		w.delay = d
	}
}

// WithRerunDelay sets the pause before the follow-up flush requested while
// a flush was running.
func WithRerunDelay(d time.Duration) Option {
	return func(w *Worker) {
		w.rerunDelay = d
	}
}

func WithClock(c clockwork.Clock) Option {
	return func(w *Worker) {
		w.clock = c
	}
}

// Worker runs fn at most once per window and never concurrently with itself.
// Triggering is level based: a rerun sees whatever state exists when it runs.
type Worker struct {
	fn         func() error
	clock      clockwork.Clock
	delay      time.Duration
	rerunDelay time.Duration

	mu      sync.Mutex
	state   state
	timer   clockwork.Timer
	stopped bool
	// pending counts scheduled runs that have not finished yet
	pending sync.WaitGroup

	// runMu serialises fn between timer driven runs and Flush.
	runMu sync.Mutex
}

func NewWorker(fn func() error, opts ...Option) *Worker {
	w := &Worker{
		fn:         fn,
		clock:      clockwork.NewRealClock(),
		delay:      DefaultDelay,
		rerunDelay: DefaultRerunDelay,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Trigger requests a flush. Safe to call from any goroutine, any number of times.
func (w *Worker) Trigger() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return
	}

	switch w.state {
	case stateIdle:
		w.schedule(w.delay)
	case stateRunning:
		w.state = stateRunningWithRerun
	}
	// scheduled: the pending run will observe the latest state anyway
}

// IsIdle reports whether no flush is scheduled, running or pending.
func (w *Worker) IsIdle() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state == stateIdle
}

// Flush runs fn synchronously, waiting for an in-flight run first. Used on
// shutdown so the final state reaches storage.
func (w *Worker) Flush() error {
	w.runMu.Lock()
	defer w.runMu.Unlock()
	return w.fn()
}

// Stop cancels any scheduled run, waits for a running one and ignores
// further triggers. Flush still works after Stop.
func (w *Worker) Stop() {
	w.mu.Lock()
	w.stopped = true
	if w.state == stateScheduled && w.timer != nil && w.timer.Stop() {
		w.state = stateIdle
		w.pending.Done()
	}
	w.mu.Unlock()

	w.pending.Wait()
}

// schedule must be called with mu held.
func (w *Worker) schedule(delay time.Duration) {
	w.state = stateScheduled
	w.pending.Add(1)
	w.timer = w.clock.AfterFunc(delay, w.exec)
}

func (w *Worker) exec() {
	defer w.pending.Done()

	w.mu.Lock()
	if w.stopped {
		w.state = stateIdle
		w.mu.Unlock()
		return
	}
	w.state = stateRunning
	w.mu.Unlock()

	w.runMu.Lock()
	if err := w.fn(); err != nil {
		slog.Error("debounced flush failed", "error", err)
	}
	w.runMu.Unlock()

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state == stateRunningWithRerun && !w.stopped {
		w.schedule(w.rerunDelay)
		return
	}
	w.state = stateIdle
}
