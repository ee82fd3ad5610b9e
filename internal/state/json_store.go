package state

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/openmined/mirrorbox/internal/utils"
	"github.com/spf13/afero"
)

// JSONStore keeps the snapshot in a single JSON document, the format the
// state file has always had: {"from_source": {path: 1}, "from_target": {...}}.
type JSONStore struct {
	path string
	fs   afero.Fs
}

func NewJSONStore(path string) *JSONStore {
	return &JSONStore{path: path, fs: afero.NewOsFs()}
}

// NewJSONStoreFs is NewJSONStore on an arbitrary filesystem.
func NewJSONStoreFs(fs afero.Fs, path string) *JSONStore {
	return &JSONStore{path: path, fs: fs}
}

func (s *JSONStore) Path() string {
	return s.path
}

func (s *JSONStore) Load() (*Snapshot, error) {
	data, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return NewSnapshot(), nil
		}
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}

	snap := &Snapshot{}
	if err := jsonUnmarshal(data, snap); err != nil {
		return nil, fmt.Errorf("parse %s: %w", s.path, err)
	}
	return snap.normalize(), nil
}

func (s *JSONStore) Save(snap *Snapshot) error {
	data, err := jsonMarshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := s.fs.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	return utils.WriteFileAtomic(s.fs, s.path, data, 0o644)
}

func (s *JSONStore) Close() error {
	return nil
}
