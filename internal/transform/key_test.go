package transform

import (
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveKey_KnownAnswer(t *testing.T) {
	tests := []struct {
		name   string
		secret string
		want   string
	}{
		{
			// bytes past the midpoint fold against already rewritten bytes
			name:   "40 byte secret",
			secret: "abcdefghijklmnopqrstuvwxyz0123456789ABCD",
			want:   "252121255c5e505e5c5e585e5c5e15090905050174737271706f6e6d6c6b6a69",
		},
		{
			name:   "exactly 32 bytes",
			secret: strings.Repeat("x", 32),
			want:   "0000000000000000000000000000000078787878787878787878787878787878",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, err := DeriveKey(tt.secret)
			require.NoError(t, err)
			assert.Equal(t, tt.want, hex.EncodeToString(key[:]))
		})
	}
}

func TestDeriveKey_Deterministic(t *testing.T) {
	a, err := DeriveKey(testSecret)
	require.NoError(t, err)
	b, err := DeriveKey(testSecret)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestDeriveKey_TooShort(t *testing.T) {
	_, err := DeriveKey("short")
	assert.ErrorIs(t, err, ErrKeyTooShort)
}

func TestLoadKey(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "secret")
	require.NoError(t, os.WriteFile(path, []byte("  abcdefghijklmnopqrstuvwxyz0123456789ABCD\n"), 0o600))

	key, err := LoadKey(path)
	require.NoError(t, err)
	assert.Equal(t, "252121255c5e505e5c5e585e5c5e15090905050174737271706f6e6d6c6b6a69", hex.EncodeToString(key[:]))

	_, err = LoadKey(filepath.Join(dir, "missing"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
