// Package mirror keeps two directory trees in sync in both directions,
// transforming file contents on the way from one to the other.
package mirror

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/openmined/mirrorbox/internal/debounce"
	"github.com/openmined/mirrorbox/internal/state"
	"github.com/openmined/mirrorbox/internal/throttle"
	"github.com/openmined/mirrorbox/internal/transform"
	"github.com/openmined/mirrorbox/internal/utils"
	"github.com/openmined/mirrorbox/internal/watcher"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"
)

var (
	ErrAlreadyStarted = errors.New("mirror already started")
	ErrNestedRoots    = errors.New("source and target must not contain each other")
)

type Options struct {
	SourceDir   string
	TargetDir   string
	Store       *state.Store
	Transformer transform.Transformer

	Concurrency        int
	WatchDepth         int
	StabilityWindow    time.Duration
	DebounceDelay      time.Duration
	FirstRecheckDelay  time.Duration
	SecondRecheckDelay time.Duration
	// Ignore holds extra gitignore-style rules applied to both roots
	Ignore []string

	Fs    afero.Fs
	Clock clockwork.Clock
}

func (o *Options) setDefaults() {
	if o.Transformer == nil {
		o.Transformer = transform.Plain{}
	}
	if o.Concurrency <= 0 {
		o.Concurrency = throttle.DefaultLimit
	}
	if o.WatchDepth <= 0 {
		o.WatchDepth = watcher.DefaultMaxDepth
	}
	if o.StabilityWindow <= 0 {
		o.StabilityWindow = watcher.DefaultStabilityWindow
	}
	if o.DebounceDelay <= 0 {
		o.DebounceDelay = debounce.DefaultDelay
	}
	if o.FirstRecheckDelay <= 0 {
		o.FirstRecheckDelay = DefaultFirstRecheckDelay
	}
	if o.SecondRecheckDelay <= 0 {
		o.SecondRecheckDelay = DefaultSecondRecheckDelay
	}
	if o.Fs == nil {
		o.Fs = afero.NewOsFs()
	}
	if o.Clock == nil {
		o.Clock = clockwork.NewRealClock()
	}
}

// Mirror owns both roots and everything they share: the transfer throttler,
// the debounced state persister and one watcher per root.
type Mirror struct {
	opts      Options
	source    *Root
	target    *Root
	throttler *throttle.Throttler
	persister *debounce.Worker

	reconcilers []*Reconciler
	watchers    []*watcher.FileWatcher

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	group   *errgroup.Group
}

func New(opts Options) (*Mirror, error) {
	if opts.Store == nil {
		return nil, errors.New("state store is required")
	}
	if opts.SourceDir == "" || opts.TargetDir == "" {
		return nil, errors.New("source and target directories are required")
	}
	if _, err := utils.Rebase(opts.SourceDir, opts.TargetDir, opts.TargetDir); err == nil {
		return nil, ErrNestedRoots
	}
	if _, err := utils.Rebase(opts.TargetDir, opts.SourceDir, opts.SourceDir); err == nil {
		return nil, ErrNestedRoots
	}
	opts.setDefaults()

	m := &Mirror{opts: opts}
	m.source, m.target = NewRoots(opts.SourceDir, opts.TargetDir, opts.Store, opts.Transformer)
	m.throttler = throttle.New(opts.Concurrency)
	m.persister = debounce.NewWorker(opts.Store.Save,
		debounce.WithDelay(opts.DebounceDelay),
		debounce.WithClock(opts.Clock),
	)

	for _, root := range []*Root{m.source, m.target} {
		ignore := watcher.NewIgnoreList(root.Path, opts.Ignore...)
		ignore.Load()

		rec := NewReconciler(root, m.throttler, m.persister,
			WithFs(opts.Fs),
			WithClock(opts.Clock),
			WithRecheckDelays(opts.FirstRecheckDelay, opts.SecondRecheckDelay),
			WithIgnore(ignore.ShouldIgnore),
		)

		fw := watcher.NewFileWatcher(root.Path)
		fw.SetMaxDepth(opts.WatchDepth)
		fw.SetStabilityWindow(opts.StabilityWindow)
		fw.FilterPaths(func(path string, isDir bool) bool {
			if isDir {
				return ignore.ShouldIgnoreDir(path)
			}
			return ignore.ShouldIgnore(path)
		})

		m.reconcilers = append(m.reconcilers, rec)
		m.watchers = append(m.watchers, fw)
	}

	return m, nil
}

func (m *Mirror) Source() *Root {
	return m.source
}

func (m *Mirror) Target() *Root {
	return m.target
}

// Start prunes stale state and begins watching both roots. A Mirror can be
// started once.
func (m *Mirror) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.group != nil {
		return ErrAlreadyStarted
	}

	slog.Info("mirror start",
		"source", m.source.Path,
		"target", m.target.Path,
		"concurrency", m.opts.Concurrency,
		"tracked", m.source.State.Len()+m.target.State.Len(),
	)

	for _, rec := range m.reconcilers {
		rec.Prune()
	}

	ctx, cancel := context.WithCancel(ctx)
	group, gctx := errgroup.WithContext(ctx)

	for i, fw := range m.watchers {
		if err := fw.Start(gctx); err != nil {
			cancel()
			for _, started := range m.watchers[:i] {
				started.Stop()
			}
			return fmt.Errorf("watch %s: %w", fw.Root(), err)
		}
	}

	for i, rec := range m.reconcilers {
		rec := rec
		events := m.watchers[i].Events()
		group.Go(func() error {
			return rec.Run(gctx, events)
		})
	}

	m.cancel = cancel
	m.group = group
	m.running = true
	return nil
}

// Stop halts event processing, lets in-flight transfers finish and writes
// the final state.
func (m *Mirror) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return nil
	}
	m.running = false

	slog.Info("mirror stopping", "transfers", m.throttler.Running(), "queued", m.throttler.Pending())

	m.cancel()
	for _, fw := range m.watchers {
		fw.Stop()
	}
	err := m.group.Wait()

	m.throttler.Wait()
	m.persister.Stop()
	if flushErr := m.persister.Flush(); flushErr != nil {
		err = errors.Join(err, fmt.Errorf("save state: %w", flushErr))
	}

	slog.Info("mirror stopped")
	return err
}

// Run blocks until ctx is done.
func (m *Mirror) Run(ctx context.Context) error {
	if err := m.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	return m.Stop()
}
