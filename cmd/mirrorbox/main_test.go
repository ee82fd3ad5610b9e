package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/openmined/mirrorbox/internal/config"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRoot(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "mirrorbox", RunE: func(*cobra.Command, []string) error { return nil }}
	addDaemonFlags(cmd)
	addSharedFlags(cmd)
	// keep the developer's own config out of the way
	missing := filepath.Join(t.TempDir(), "missing.json")
	require.NoError(t, cmd.ParseFlags(append([]string{"--config", missing}, args...)))
	return cmd
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := loadConfig(newTestRoot(t))
	require.NoError(t, err)

	defaults := config.Default()
	assert.Equal(t, defaults.SourceDir, cfg.SourceDir)
	assert.Equal(t, defaults.TargetDir, cfg.TargetDir)
	assert.Equal(t, defaults.StatePath, cfg.StatePath)
	assert.True(t, cfg.Encrypt)
	assert.Equal(t, 64, cfg.Concurrency)
	assert.Equal(t, 5*time.Second, cfg.StabilityWindow)
	assert.Equal(t, 3*time.Second, cfg.SecondRecheckDelay)
	assert.Empty(t, cfg.Ignore)
}

func TestLoadConfigEnv(t *testing.T) {
	t.Setenv("MIRRORBOX_SOURCE_DIR", "/tmp/mirrorbox-src")
	t.Setenv("MIRRORBOX_TARGET_DIR", "/tmp/mirrorbox-dst")
	t.Setenv("MIRRORBOX_STATE_BACKEND", "sqlite")
	t.Setenv("MIRRORBOX_ENCRYPT", "false")
	t.Setenv("MIRRORBOX_CONCURRENCY", "8")
	t.Setenv("MIRRORBOX_FIRST_RECHECK_DELAY", "250ms")
	t.Setenv("MIRRORBOX_LOG_LEVEL", "debug")

	cfg, err := loadConfig(newTestRoot(t))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "/tmp/mirrorbox-src", cfg.SourceDir)
	assert.Equal(t, "/tmp/mirrorbox-dst", cfg.TargetDir)
	assert.Equal(t, config.BackendSQLite, cfg.StateBackend)
	assert.False(t, cfg.Encrypt)
	assert.Equal(t, 8, cfg.Concurrency)
	assert.Equal(t, 250*time.Millisecond, cfg.FirstRecheckDelay)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadConfigFlagsBeatEnv(t *testing.T) {
	t.Setenv("MIRRORBOX_SOURCE_DIR", "/tmp/from-env")

	cfg, err := loadConfig(newTestRoot(t, "-s", "/tmp/from-flag", "--concurrency", "2", "--state", "/tmp/state.json"))
	require.NoError(t, err)

	assert.Equal(t, "/tmp/from-flag", cfg.SourceDir)
	assert.Equal(t, 2, cfg.Concurrency)
	assert.Equal(t, "/tmp/state.json", cfg.StatePath)
}

func TestLoadConfigJSON(t *testing.T) {
	dummyConfig := `
{
	"source_dir": "/tmp/mirrorbox-json-src",
	"target_dir": "/tmp/mirrorbox-json-dst",
	"state_backend": "sqlite",
	"key_file": "/tmp/key",
	"watch_depth": 10,
	"stability_window": "1s",
	"debounce_delay": "500ms",
	"ignore": ["*.log", "/build"]
}
`
	configFile := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(configFile, []byte(dummyConfig), 0o644))

	cmd := newTestRoot(t)
	require.NoError(t, cmd.ParseFlags([]string{"--config", configFile}))

	cfg, err := loadConfig(cmd)
	require.NoError(t, err)

	assert.Equal(t, configFile, cfg.Path)
	assert.Equal(t, "/tmp/mirrorbox-json-src", cfg.SourceDir)
	assert.Equal(t, "/tmp/mirrorbox-json-dst", cfg.TargetDir)
	assert.Equal(t, config.BackendSQLite, cfg.StateBackend)
	assert.Equal(t, "/tmp/key", cfg.KeyFile)
	assert.Equal(t, 10, cfg.WatchDepth)
	assert.Equal(t, time.Second, cfg.StabilityWindow)
	assert.Equal(t, 500*time.Millisecond, cfg.DebounceDelay)
	assert.Equal(t, []string{"*.log", "/build"}, cfg.Ignore)
	// unset keys keep their defaults
	assert.Equal(t, 64, cfg.Concurrency)
}

func TestLoadConfigMalformedJSON(t *testing.T) {
	configFile := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(configFile, []byte("{oops"), 0o644))

	cmd := newTestRoot(t)
	require.NoError(t, cmd.ParseFlags([]string{"--config", configFile}))

	_, err := loadConfig(cmd)
	assert.Error(t, err)
}
