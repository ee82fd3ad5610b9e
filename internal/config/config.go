package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/openmined/mirrorbox/internal/utils"
)

const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
)

var (
	home, _              = os.UserHomeDir()
	DefaultConfigDir     = filepath.Join(home, ".mirrorbox")
	DefaultConfigPath    = filepath.Join(DefaultConfigDir, "config.json")
	DefaultLogFilePath   = filepath.Join(DefaultConfigDir, "logs", "mirrorbox.log")
	DefaultStatePath     = filepath.Join(home, ".dropbox_serializer_state")
	DefaultKeyFile       = filepath.Join(home, ".dropbox_secret_key")
	DefaultSourceDir     = "/storage/mono"
	DefaultTargetDir     = "/storage/Dropbox/mono"
	DefaultConcurrency   = 64
	DefaultWatchDepth    = 25
	DefaultStability     = 5 * time.Second
	DefaultDebounceDelay = 3 * time.Second
	DefaultFirstRecheck  = 2 * time.Second
	DefaultSecondRecheck = 3 * time.Second
)

var (
	ErrNoSourceDir    = errors.New("source directory is required")
	ErrNoTargetDir    = errors.New("target directory is required")
	ErrInvalidBackend = errors.New("state backend must be json or sqlite")
)

type Config struct {
	SourceDir          string        `json:"source_dir"`
	TargetDir          string        `json:"target_dir"`
	StatePath          string        `json:"state_path"`
	StateBackend       string        `json:"state_backend"`
	KeyFile            string        `json:"key_file"`
	Encrypt            bool          `json:"encrypt"`
	Concurrency        int           `json:"concurrency"`
	WatchDepth         int           `json:"watch_depth"`
	StabilityWindow    time.Duration `json:"stability_window"`
	DebounceDelay      time.Duration `json:"debounce_delay"`
	FirstRecheckDelay  time.Duration `json:"first_recheck_delay"`
	SecondRecheckDelay time.Duration `json:"second_recheck_delay"`
	Ignore             []string      `json:"ignore,omitempty"`
	LogLevel           string        `json:"log_level"`
	Path               string        `json:"-"`
}

// Default returns the configuration the tool runs with when nothing is set.
func Default() *Config {
	return &Config{
		SourceDir:          DefaultSourceDir,
		TargetDir:          DefaultTargetDir,
		StatePath:          DefaultStatePath,
		StateBackend:       BackendJSON,
		KeyFile:            DefaultKeyFile,
		Encrypt:            true,
		Concurrency:        DefaultConcurrency,
		WatchDepth:         DefaultWatchDepth,
		StabilityWindow:    DefaultStability,
		DebounceDelay:      DefaultDebounceDelay,
		FirstRecheckDelay:  DefaultFirstRecheck,
		SecondRecheckDelay: DefaultSecondRecheck,
		LogLevel:           "info",
		Path:               DefaultConfigPath,
	}
}

// Validate resolves paths, fills zero values with defaults and rejects
// settings the daemon cannot run with.
func (c *Config) Validate() error {
	var err error

	if c.SourceDir == "" {
		return ErrNoSourceDir
	}
	if c.TargetDir == "" {
		return ErrNoTargetDir
	}

	if c.SourceDir, err = utils.ResolvePath(c.SourceDir); err != nil {
		return fmt.Errorf("source dir: %w", err)
	}
	if c.TargetDir, err = utils.ResolvePath(c.TargetDir); err != nil {
		return fmt.Errorf("target dir: %w", err)
	}
	if c.SourceDir == c.TargetDir {
		return fmt.Errorf("source and target are both %s", c.SourceDir)
	}

	if c.StatePath == "" {
		c.StatePath = DefaultStatePath
	}
	if c.StatePath, err = utils.ResolvePath(c.StatePath); err != nil {
		return fmt.Errorf("state path: %w", err)
	}

	c.StateBackend = strings.ToLower(strings.TrimSpace(c.StateBackend))
	switch c.StateBackend {
	case "":
		c.StateBackend = BackendJSON
	case BackendJSON, BackendSQLite:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidBackend, c.StateBackend)
	}

	if c.Encrypt {
		if c.KeyFile == "" {
			c.KeyFile = DefaultKeyFile
		}
		if c.KeyFile, err = utils.ResolvePath(c.KeyFile); err != nil {
			return fmt.Errorf("key file: %w", err)
		}
	}

	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency
	}
	if c.WatchDepth <= 0 {
		c.WatchDepth = DefaultWatchDepth
	}
	if c.StabilityWindow <= 0 {
		c.StabilityWindow = DefaultStability
	}
	if c.DebounceDelay <= 0 {
		c.DebounceDelay = DefaultDebounceDelay
	}
	if c.FirstRecheckDelay <= 0 {
		c.FirstRecheckDelay = DefaultFirstRecheck
	}
	if c.SecondRecheckDelay <= 0 {
		c.SecondRecheckDelay = DefaultSecondRecheck
	}

	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}

	if c.Path != "" {
		if c.Path, err = utils.ResolvePath(c.Path); err != nil {
			return fmt.Errorf("config path: %w", err)
		}
	}

	return nil
}

// LockPath is where the single-instance lock for the state lives.
func (c *Config) LockPath() string {
	return c.StatePath + ".lock"
}

func ParseLogLevel(level string) (slog.Level, error) {
	var l slog.Level
	if level == "" {
		return slog.LevelInfo, nil
	}
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log level %q: %w", level, err)
	}
	return l, nil
}

func (c *Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("source", c.SourceDir),
		slog.String("target", c.TargetDir),
		slog.String("state", c.StatePath),
		slog.String("backend", c.StateBackend),
		slog.Bool("encrypt", c.Encrypt),
		slog.Int("concurrency", c.Concurrency),
	)
}
