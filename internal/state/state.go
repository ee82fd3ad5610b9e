// Package state tracks which paths have been mirrored in each direction and
// persists that knowledge so restarts do not re-copy everything.
package state

import (
	"fmt"
	"log/slog"
	"sync"
)

// Snapshot is the durable record of both directions.
type Snapshot struct {
	FromSource map[string]int `json:"from_source"`
	FromTarget map[string]int `json:"from_target"`
}

func NewSnapshot() *Snapshot {
	return &Snapshot{
		FromSource: make(map[string]int),
		FromTarget: make(map[string]int),
	}
}

// normalize replaces nil maps so a snapshot written by hand with a missing
// key still loads.
func (s *Snapshot) normalize() *Snapshot {
	if s.FromSource == nil {
		s.FromSource = make(map[string]int)
	}
	if s.FromTarget == nil {
		s.FromTarget = make(map[string]int)
	}
	return s
}

// SnapshotStore loads and saves whole snapshots.
type SnapshotStore interface {
	// Load returns an empty snapshot when nothing was persisted yet.
	Load() (*Snapshot, error)
	// Save replaces whatever was stored before.
	Save(*Snapshot) error
	Close() error
}

// Store owns the two live PathStates and writes them through a SnapshotStore.
type Store struct {
	FromSource *PathState
	FromTarget *PathState

	backend SnapshotStore
	saveMu  sync.Mutex
}

// Open loads the persisted snapshot from backend.
func Open(backend SnapshotStore) (*Store, error) {
	snap, err := backend.Load()
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	snap.normalize()

	slog.Info("state loaded", "fromSource", len(snap.FromSource), "fromTarget", len(snap.FromTarget))

	return &Store{
		FromSource: FromMarkers(snap.FromSource),
		FromTarget: FromMarkers(snap.FromTarget),
		backend:    backend,
	}, nil
}

// Snapshot captures the current state of both directions.
func (s *Store) Snapshot() *Snapshot {
	return &Snapshot{
		FromSource: s.FromSource.Markers(),
		FromTarget: s.FromTarget.Markers(),
	}
}

// Save writes the current state wholesale.
func (s *Store) Save() error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	snap := s.Snapshot()
	if err := s.backend.Save(snap); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	slog.Debug("state saved", "fromSource", len(snap.FromSource), "fromTarget", len(snap.FromTarget))
	return nil
}

func (s *Store) Close() error {
	return s.backend.Close()
}
