package mirror

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/jonboulle/clockwork"
	"github.com/openmined/mirrorbox/internal/throttle"
	"github.com/openmined/mirrorbox/internal/watcher"
	"github.com/spf13/afero"
)

const (
	DefaultFirstRecheckDelay  = 2 * time.Second
	DefaultSecondRecheckDelay = 3 * time.Second
)

// Executor runs transfer jobs asynchronously.
type Executor interface {
	Submit(job throttle.Job)
}

// Persister is asked to save state after every mutation.
type Persister interface {
	Trigger()
}

type ReconcilerOption func(*Reconciler)

func WithFs(fs afero.Fs) ReconcilerOption {
	return func(r *Reconciler) {
		r.fs = fs
	}
}

func WithClock(clock clockwork.Clock) ReconcilerOption {
	return func(r *Reconciler) {
		r.clock = clock
	}
}

// WithRecheckDelays sets the two waits before an unavailable path is
// considered deleted.
func WithRecheckDelays(first, second time.Duration) ReconcilerOption {
	return func(r *Reconciler) {
		r.firstRecheck = first
		r.secondRecheck = second
	}
}

// WithIgnore drops events for which ignore returns true.
func WithIgnore(ignore func(path string) bool) ReconcilerOption {
	return func(r *Reconciler) {
		r.ignore = ignore
	}
}

// Reconciler decides, for every change under one root, whether to copy it
// to the opposite root, delete its mirror, delete it locally or do nothing.
// It is the only writer of its root's PathState.
type Reconciler struct {
	root    *Root
	fs      afero.Fs
	exec    Executor
	persist Persister
	clock   clockwork.Clock
	ignore  func(path string) bool

	firstRecheck  time.Duration
	secondRecheck time.Duration

	wg sync.WaitGroup
}

func NewReconciler(root *Root, exec Executor, persist Persister, opts ...ReconcilerOption) *Reconciler {
	r := &Reconciler{
		root:          root,
		fs:            afero.NewOsFs(),
		exec:          exec,
		persist:       persist,
		clock:         clockwork.NewRealClock(),
		firstRecheck:  DefaultFirstRecheckDelay,
		secondRecheck: DefaultSecondRecheckDelay,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Reconciler) Root() *Root {
	return r.root
}

// Prune forgets tracked paths that no longer exist under the root. The
// opposite root is left alone; live events take care of it.
func (r *Reconciler) Prune() int {
	removed := 0
	for _, path := range r.root.State.Paths() {
		if _, err := r.fs.Stat(path); err != nil {
			r.root.State.Remove(path)
			removed++
		}
	}

	slog.Info("state pruned", "root", r.root.Name, "removed", removed, "tracked", r.root.State.Len())
	r.persist.Trigger()
	return removed
}

// Run handles events until the channel closes or ctx is done. Each event is
// handled on its own goroutine; Run returns after all of them finished.
func (r *Reconciler) Run(ctx context.Context, events <-chan watcher.Event) error {
	defer r.wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if r.ignore != nil && r.ignore(ev.Path) {
				continue
			}

			r.wg.Add(1)
			go func() {
				defer r.wg.Done()
				if err := r.Handle(ctx, ev); err != nil && !errors.Is(err, context.Canceled) {
					slog.Warn("event dropped", "root", r.root.Name, "path", ev.Path, "error", err)
				}
			}()
		}
	}
}

// Handle applies the reconciliation protocol to a single event.
func (r *Reconciler) Handle(ctx context.Context, ev watcher.Event) error {
	info := ev.Info
	if info == nil {
		var err error
		if info, err = r.recheck(ctx, ev.Path); err != nil {
			return err
		}
		if info == nil {
			return r.removeMirror(ev.Path)
		}
	}

	if !info.IsFile || info.IsSymlink || info.IsSocket {
		return nil
	}
	return r.compareAndCopy(ev.Path, info)
}

// recheck gives a path that could not be stat'ed two more chances to show
// up, which covers editors replacing files through rename. A nil Info
// means the path is gone.
func (r *Reconciler) recheck(ctx context.Context, path string) (*watcher.Info, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-r.clock.After(r.firstRecheck):
	}

	var info *watcher.Info
	err := retry.Do(
		func() error {
			fi, err := lstat(r.fs, path)
			if err != nil {
				return err
			}
			info = watcher.NewInfo(fi)
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(2),
		retry.Delay(r.secondRecheck),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.WithTimer(r.clock),
	)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if err != nil {
		slog.Debug("path still unavailable", "root", r.root.Name, "path", path, "error", err)
		return nil, nil
	}
	return info, nil
}

// removeMirror handles a path that is confirmed deleted.
func (r *Reconciler) removeMirror(from string) error {
	to, err := r.root.MirrorPath(from)
	if err != nil {
		return err
	}

	if err := r.fs.RemoveAll(to); err != nil {
		slog.Warn("remove mirror", "root", r.root.Name, "path", to, "error", err)
	} else {
		slog.Info("removed", "path", to, "because", from)
	}

	r.root.State.Remove(from)
	r.persist.Trigger()
	return nil
}

func (r *Reconciler) compareAndCopy(from string, info *watcher.Info) error {
	to, err := r.root.MirrorPath(from)
	if err != nil {
		return err
	}

	toInfo, err := r.fs.Stat(to)
	switch {
	case err == nil:
		if info.ModTime.After(toInfo.ModTime()) {
			r.submit(from, to, info)
			return nil
		}
		r.markSynced(from)
		return nil

	case errors.Is(err, fs.ErrNotExist):
		if r.root.State.Contains(from) {
			return r.removeLocal(from)
		}
		if err := r.fs.MkdirAll(filepath.Dir(to), 0o755); err != nil {
			return fmt.Errorf("create parent of %s: %w", to, err)
		}
		r.submit(from, to, info)
		return nil

	default:
		return fmt.Errorf("stat %s: %w", to, err)
	}
}

// removeLocal deletes a file whose mirror was deleted on the other side.
func (r *Reconciler) removeLocal(from string) error {
	if err := r.fs.Remove(from); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", from, err)
	}
	slog.Info("removed", "path", from, "because", "mirror deleted")

	r.root.State.Remove(from)
	r.persist.Trigger()
	return nil
}

func (r *Reconciler) submit(from, to string, info *watcher.Info) {
	r.exec.Submit(&TransferJob{
		From:       from,
		To:         to,
		ModTime:    info.ModTime,
		AccessTime: info.AccessTime,
		Direction:  r.root.Direction,
		Transform:  r.root.Transform,
		fs:         r.fs,
		onComplete: func() { r.markSynced(from) },
	})
}

func (r *Reconciler) markSynced(from string) {
	r.root.State.Add(from)
	r.persist.Trigger()
}

func lstat(fsys afero.Fs, path string) (os.FileInfo, error) {
	if l, ok := fsys.(afero.Lstater); ok {
		fi, _, err := l.LstatIfPossible(path)
		return fi, err
	}
	return fsys.Stat(path)
}
