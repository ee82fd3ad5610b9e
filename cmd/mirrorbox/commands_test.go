package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/openmined/mirrorbox/internal/state"
	"github.com/openmined/mirrorbox/internal/transform"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCommand(t *testing.T, sub *cobra.Command, args ...string) (string, error) {
	t.Helper()
	root := &cobra.Command{Use: "mirrorbox"}
	addSharedFlags(root)
	root.AddCommand(sub)

	missing := filepath.Join(t.TempDir(), "missing.json")
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append(args, "--config", missing))

	err := root.Execute()
	return out.String(), err
}

func TestStateCommand(t *testing.T) {
	statePath := filepath.Join(t.TempDir(), "serializer_state")
	snap := state.NewSnapshot()
	snap.FromSource["/storage/mono/a.txt"] = 1
	snap.FromSource["/storage/mono/b.txt"] = 1
	snap.FromTarget["/storage/Dropbox/mono/a.txt"] = 1
	require.NoError(t, state.NewJSONStore(statePath).Save(snap))

	out, err := runCommand(t, newStateCmd(), "state", "--state", statePath, "--list")
	require.NoError(t, err)

	assert.Contains(t, out, statePath)
	assert.Contains(t, out, "from_source 2")
	assert.Contains(t, out, "from_target 1")
	assert.Contains(t, out, "  /storage/mono/b.txt")
}

func TestStateCommand_Match(t *testing.T) {
	statePath := filepath.Join(t.TempDir(), "serializer_state")
	snap := state.NewSnapshot()
	snap.FromSource["/storage/mono/pkg/a.py"] = 1
	snap.FromSource["/storage/mono/README.md"] = 1
	require.NoError(t, state.NewJSONStore(statePath).Save(snap))

	out, err := runCommand(t, newStateCmd(), "state", "--state", statePath, "--match", "/storage/**/*.py")
	require.NoError(t, err)

	assert.Contains(t, out, "from_source 2")
	assert.Contains(t, out, "  /storage/mono/pkg/a.py")
	assert.NotContains(t, out, "README.md")

	_, err = runCommand(t, newStateCmd(), "state", "--state", statePath, "--match", "[unclosed")
	assert.Error(t, err)
}

func TestStateCommand_MalformedState(t *testing.T) {
	statePath := filepath.Join(t.TempDir(), "serializer_state")
	require.NoError(t, os.WriteFile(statePath, []byte("not json"), 0o644))

	_, err := runCommand(t, newStateCmd(), "state", "--state", statePath)
	assert.Error(t, err)
}

func TestCodecCommands_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	keyFile := filepath.Join(dir, "key")
	require.NoError(t, os.WriteFile(keyFile, []byte(strings.Repeat("z", 64)), 0o600))

	plain := filepath.Join(dir, "notes.md")
	encoded := filepath.Join(dir, "notes.md.enc")
	decoded := filepath.Join(dir, "notes.decoded.md")
	content := strings.Repeat("# heading\nsome text\n", 50)
	require.NoError(t, os.WriteFile(plain, []byte(content), 0o644))

	out, err := runCommand(t, newCodecCmd("encode", transform.Forward), "encode", plain, encoded, "--key-file", keyFile)
	require.NoError(t, err)
	assert.Contains(t, out, "encoded")

	payload, err := os.ReadFile(encoded)
	require.NoError(t, err)
	assert.Less(t, len(payload), len(content))

	_, err = runCommand(t, newCodecCmd("decode", transform.Backward), "decode", encoded, decoded, "--key-file", keyFile)
	require.NoError(t, err)

	got, err := os.ReadFile(decoded)
	require.NoError(t, err)
	assert.Equal(t, content, string(got))
}

func TestCodecCommands_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := runCommand(t, newCodecCmd("encode", transform.Forward), "encode", "only-one-arg")
	assert.Error(t, err)

	_, err = runCommand(t, newCodecCmd("encode", transform.Forward), "encode", "a", "b", "--key-file", filepath.Join(dir, "nokey"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
