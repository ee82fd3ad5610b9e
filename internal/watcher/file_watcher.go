// Package watcher turns filesystem notifications for one directory tree into
// a stream of settled per-path events.
package watcher

import (
	"context"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/openmined/mirrorbox/internal/utils"
	"github.com/rjeczalik/notify"
)

const (
	DefaultStabilityWindow = 5 * time.Second
	DefaultMaxDepth        = 25
	rawBufferSize          = 1024
	eventBufferSize        = 1024
)

// FilterCallback is a function that returns true if the path should be dropped
type FilterCallback func(path string, isDir bool) bool

type FileWatcher struct {
	watchDir  string
	maxDepth  int
	stability time.Duration

	events    chan Event
	rawEvents chan notify.EventInfo
	done      chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup

	// Debouncing fields
	eventTimers map[string]*time.Timer
	debounceMu  sync.Mutex
	stopped     bool
	inflight    sync.WaitGroup

	filter   FilterCallback
	filterMu sync.RWMutex
}

func NewFileWatcher(watchDir string) *FileWatcher {
	return &FileWatcher{
		watchDir:    filepath.Clean(watchDir),
		maxDepth:    DefaultMaxDepth,
		stability:   DefaultStabilityWindow,
		done:        make(chan struct{}),
		eventTimers: make(map[string]*time.Timer),
	}
}

// SetStabilityWindow sets how long a path must stay quiet before its event is
// reported. Bursts of writes to one file collapse into a single event.
func (fw *FileWatcher) SetStabilityWindow(window time.Duration) {
	fw.stability = window
}

// SetMaxDepth bounds how many levels below the root are reported.
func (fw *FileWatcher) SetMaxDepth(depth int) {
	fw.maxDepth = depth
}

// FilterPaths installs a callback that drops matching paths before debouncing
// and during the initial scan.
func (fw *FileWatcher) FilterPaths(callback FilterCallback) {
	fw.filterMu.Lock()
	defer fw.filterMu.Unlock()
	fw.filter = callback
}

func (fw *FileWatcher) Root() string {
	return fw.watchDir
}

// Start begins watching. The existing tree is reported first (one event per
// entry), interleaved with live changes as they arrive.
func (fw *FileWatcher) Start(ctx context.Context) error {
	slog.Info("file watcher start", "dir", fw.watchDir, "depth", fw.maxDepth, "stability", fw.stability)

	fw.rawEvents = make(chan notify.EventInfo, rawBufferSize)
	fw.events = make(chan Event, eventBufferSize)

	recursivePath := filepath.Join(fw.watchDir, "...")
	if err := notify.Watch(recursivePath, fw.rawEvents, notify.All); err != nil {
		return err
	}

	fw.wg.Add(1)
	go fw.filterEvents(ctx)

	fw.wg.Add(1)
	go fw.initialScan(ctx)

	return nil
}

// Stop ends watching and closes the events channel once every pending
// send has been abandoned or delivered.
func (fw *FileWatcher) Stop() {
	fw.stopOnce.Do(func() {
		slog.Info("file watcher stopping", "dir", fw.watchDir)

		fw.debounceMu.Lock()
		fw.stopped = true
		for path, timer := range fw.eventTimers {
			timer.Stop()
			delete(fw.eventTimers, path)
		}
		fw.debounceMu.Unlock()

		close(fw.done)
		if fw.rawEvents != nil {
			notify.Stop(fw.rawEvents)
		}

		fw.wg.Wait()
		fw.inflight.Wait()
		if fw.events != nil {
			close(fw.events)
		}

		slog.Info("file watcher stopped", "dir", fw.watchDir)
	})
}

func (fw *FileWatcher) Events() <-chan Event {
	return fw.events
}

func (fw *FileWatcher) isFiltered(path string, isDir bool) bool {
	fw.filterMu.RLock()
	defer fw.filterMu.RUnlock()
	return fw.filter != nil && fw.filter(path, isDir)
}

// tooDeep reports whether path lies below the deepest traversed directory.
// Children of the root are at level zero.
func (fw *FileWatcher) tooDeep(path string) bool {
	return utils.Depth(fw.watchDir, path) > fw.maxDepth+1
}

// initialScan synthesizes an event for everything already in the tree.
// Symlinked directories are reported as symlinks and not descended into.
func (fw *FileWatcher) initialScan(ctx context.Context) {
	defer fw.wg.Done()

	count := 0
	err := filepath.WalkDir(fw.watchDir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			slog.Warn("initial scan", "path", path, "error", walkErr)
			return nil
		}
		if path == fw.watchDir {
			return nil
		}

		isDir := d.IsDir()
		if fw.isFiltered(path, isDir) || fw.tooDeep(path) {
			if isDir {
				return filepath.SkipDir
			}
			return nil
		}

		if !fw.send(ctx, Lstat(path)) {
			return filepath.SkipAll
		}
		count++

		if isDir && utils.Depth(fw.watchDir, path) > fw.maxDepth {
			return filepath.SkipDir
		}
		return nil
	})
	if err != nil {
		slog.Error("initial scan failed", "dir", fw.watchDir, "error", err)
		return
	}
	slog.Info("initial scan done", "dir", fw.watchDir, "entries", count)
}

// filterEvents drops filtered paths and debounces the rest
func (fw *FileWatcher) filterEvents(ctx context.Context) {
	defer func() {
		slog.Debug("file watcher filter events done", "dir", fw.watchDir)
		fw.wg.Done()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-fw.done:
			return
		case event, ok := <-fw.rawEvents:
			if !ok {
				return
			}

			path := event.Path()
			if path == fw.watchDir || fw.isFiltered(path, false) || fw.tooDeep(path) {
				continue
			}
			fw.debounceEvent(ctx, path)
		}
	}
}

// debounceEvent restarts the stability timer for path
func (fw *FileWatcher) debounceEvent(ctx context.Context, path string) {
	fw.debounceMu.Lock()
	defer fw.debounceMu.Unlock()

	if fw.stopped {
		return
	}

	if timer, exists := fw.eventTimers[path]; exists {
		timer.Stop()
	}

	fw.eventTimers[path] = time.AfterFunc(fw.stability, func() {
		fw.flushEvent(ctx, path)
	})
}

// flushEvent reports the settled status of path
func (fw *FileWatcher) flushEvent(ctx context.Context, path string) {
	fw.debounceMu.Lock()
	if fw.stopped {
		fw.debounceMu.Unlock()
		return
	}
	delete(fw.eventTimers, path)
	fw.inflight.Add(1)
	fw.debounceMu.Unlock()
	defer fw.inflight.Done()

	event := Lstat(path)
	if fw.send(ctx, event) {
		slog.Debug("file watcher", "path", path, "unknown", event.Unknown())
	}
}

// send blocks until the consumer takes the event or watching stops.
func (fw *FileWatcher) send(ctx context.Context, event Event) bool {
	select {
	case fw.events <- event:
		return true
	case <-fw.done:
		return false
	case <-ctx.Done():
		return false
	}
}
