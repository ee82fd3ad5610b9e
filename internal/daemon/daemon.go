// Package daemon assembles a mirror from configuration and runs it until
// the context is cancelled.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/gofrs/flock"
	"github.com/openmined/mirrorbox/internal/config"
	"github.com/openmined/mirrorbox/internal/mirror"
	"github.com/openmined/mirrorbox/internal/state"
	"github.com/openmined/mirrorbox/internal/transform"
	"github.com/openmined/mirrorbox/internal/utils"
)

var (
	ErrStateLocked = errors.New("state locked by another process")
	ErrMissingRoot = errors.New("mirror root does not exist")
)

type Daemon struct {
	config *config.Config
	flock  *flock.Flock
}

func New(cfg *config.Config) *Daemon {
	return &Daemon{
		config: cfg,
		flock:  flock.New(cfg.LockPath()),
	}
}

// Run holds the state lock for its whole lifetime. The state is saved one
// last time before it returns.
func (d *Daemon) Run(ctx context.Context) error {
	slog.Info("mirrorbox daemon start", "config", d.config)

	for _, dir := range []string{d.config.SourceDir, d.config.TargetDir} {
		if !utils.DirExists(dir) {
			return fmt.Errorf("%w: %s", ErrMissingRoot, dir)
		}
	}

	if err := d.lock(); err != nil {
		return err
	}
	defer func() {
		if err := d.unlock(); err != nil {
			slog.Warn("release state lock", "error", err)
		}
	}()

	codec, err := LoadTransformer(d.config)
	if err != nil {
		return err
	}

	store, err := OpenStore(d.config)
	if err != nil {
		return err
	}
	defer store.Close()

	m, err := mirror.New(mirror.Options{
		SourceDir:          d.config.SourceDir,
		TargetDir:          d.config.TargetDir,
		Store:              store,
		Transformer:        codec,
		Concurrency:        d.config.Concurrency,
		WatchDepth:         d.config.WatchDepth,
		StabilityWindow:    d.config.StabilityWindow,
		DebounceDelay:      d.config.DebounceDelay,
		FirstRecheckDelay:  d.config.FirstRecheckDelay,
		SecondRecheckDelay: d.config.SecondRecheckDelay,
		Ignore:             d.config.Ignore,
	})
	if err != nil {
		return fmt.Errorf("create mirror: %w", err)
	}

	err = m.Run(ctx)
	slog.Info("mirrorbox daemon stop")
	return err
}

func (d *Daemon) lock() error {
	if err := utils.EnsureParent(d.flock.Path()); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", d.flock.Path(), err)
	}

	locked, err := d.flock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to lock state: %w", err)
	}
	if !locked {
		return fmt.Errorf("%w: %s", ErrStateLocked, d.flock.Path())
	}
	return nil
}

func (d *Daemon) unlock() error {
	// if this process hasn't locked the state, then don't delete the lock file
	if !d.flock.Locked() {
		return nil
	}

	if err := d.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to unlock state: %w", err)
	}

	return os.Remove(d.flock.Path())
}

// OpenStore loads the persisted snapshot with the configured backend.
func OpenStore(cfg *config.Config) (*state.Store, error) {
	var backend state.SnapshotStore

	switch cfg.StateBackend {
	case config.BackendSQLite:
		s, err := state.OpenSQLiteStore(cfg.StatePath)
		if err != nil {
			return nil, fmt.Errorf("open state db: %w", err)
		}
		backend = s
	default:
		backend = state.NewJSONStore(cfg.StatePath)
	}

	store, err := state.Open(backend)
	if err != nil {
		backend.Close()
		return nil, fmt.Errorf("load state: %w", err)
	}
	return store, nil
}

// LoadTransformer returns the codec for the configured key, or the plain
// transform when encryption is off.
func LoadTransformer(cfg *config.Config) (transform.Transformer, error) {
	if !cfg.Encrypt {
		slog.Warn("encryption disabled, mirroring plain files")
		return transform.Plain{}, nil
	}

	key, err := transform.LoadKey(cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("load key: %w", err)
	}

	codec, err := transform.NewCodec(key)
	if err != nil {
		return nil, err
	}
	return codec, nil
}
