// Package throttle bounds how many transfer jobs run at once. Jobs past the
// limit wait in an unbounded FIFO backlog that the running slots drain.
package throttle

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/openmined/mirrorbox/internal/queue"
)

// DefaultLimit is the number of jobs allowed to run at the same time.
const DefaultLimit = 64

// Job is a unit of work. Errors are logged by the throttler and go nowhere else.
type Job interface {
	Run() error
}

// JobFunc adapts a plain function to Job.
type JobFunc func() error

func (f JobFunc) Run() error {
	return f()
}

type Throttler struct {
	limit   int
	running int
	backlog *queue.Queue[Job]
	mu      sync.Mutex
	idle    *sync.Cond
}

func New(limit int) *Throttler {
	if limit <= 0 {
		limit = DefaultLimit
	}
	t := &Throttler{
		limit:   limit,
		backlog: queue.NewQueue[Job](),
	}
	t.idle = sync.NewCond(&t.mu)
	return t
}

// Submit starts job on a fresh slot if one is free, otherwise queues it.
// It never blocks on the job itself.
func (t *Throttler) Submit(job Job) {
	t.mu.Lock()
	if t.running >= t.limit {
		t.backlog.Enqueue(job)
		t.mu.Unlock()
		return
	}
	t.running++
	t.mu.Unlock()

	go t.slot(job)
}

// slot runs job, then keeps pulling from the backlog. The slot is released
// only when the backlog is empty at the moment it looks.
func (t *Throttler) slot(job Job) {
	for {
		t.run(job)

		t.mu.Lock()
		next, ok := t.backlog.Dequeue()
		if !ok {
			t.running--
			if t.running == 0 {
				t.idle.Broadcast()
			}
			t.mu.Unlock()
			return
		}
		t.mu.Unlock()
		job = next
	}
}

func (t *Throttler) run(job Job) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("job panic", "job", job, "panic", fmt.Sprint(r))
		}
	}()

	if err := job.Run(); err != nil {
		slog.Error("job failed", "job", job, "error", err)
	}
}

// Running returns the number of occupied slots.
func (t *Throttler) Running() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

// Pending returns the backlog length.
func (t *Throttler) Pending() int {
	return t.backlog.Len()
}

// Wait blocks until every submitted job has finished.
func (t *Throttler) Wait() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for t.running > 0 {
		t.idle.Wait()
	}
}
