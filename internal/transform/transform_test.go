package transform

import (
	"bytes"
	"crypto/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "correct horse battery staple, but longer than 32 bytes"

func newTestCodec(t *testing.T) *Codec {
	t.Helper()
	key, err := DeriveKey(testSecret)
	require.NoError(t, err)
	codec, err := NewCodec(key)
	require.NoError(t, err)
	return codec
}

func TestCodec_RoundTrip(t *testing.T) {
	codec := newTestCodec(t)

	random := make([]byte, 256*1024)
	_, err := rand.Read(random)
	require.NoError(t, err)

	inputs := map[string][]byte{
		"empty":  {},
		"short":  []byte("hi"),
		"text":   []byte(strings.Repeat("the quick brown fox jumps over the lazy dog\n", 2000)),
		"binary": random,
	}

	for name, input := range inputs {
		t.Run(name, func(t *testing.T) {
			encoded, err := codec.Encode(input)
			require.NoError(t, err)
			require.GreaterOrEqual(t, len(encoded), IVSize)

			decoded, err := codec.Decode(encoded)
			require.NoError(t, err)
			assert.True(t, bytes.Equal(input, decoded), "round trip mismatch")
		})
	}
}

func TestCodec_FreshIVPerEncode(t *testing.T) {
	codec := newTestCodec(t)

	a, err := codec.Encode([]byte("same input"))
	require.NoError(t, err)
	b, err := codec.Encode([]byte("same input"))
	require.NoError(t, err)

	assert.NotEqual(t, a[:IVSize], b[:IVSize])
	assert.NotEqual(t, a, b)
}

func TestCodec_Compresses(t *testing.T) {
	codec := newTestCodec(t)
	input := []byte(strings.Repeat("aaaaaaaaaaaaaaaa", 4096))

	encoded, err := codec.Encode(input)
	require.NoError(t, err)
	assert.Less(t, len(encoded), len(input)/10)
}

func TestCodec_DecodeShortPayload(t *testing.T) {
	codec := newTestCodec(t)
	_, err := codec.Decode([]byte("short"))
	assert.ErrorIs(t, err, ErrPayloadTooShort)
}

func TestCodec_DecodeWithWrongKey(t *testing.T) {
	codec := newTestCodec(t)
	encoded, err := codec.Encode([]byte(strings.Repeat("secret text ", 100)))
	require.NoError(t, err)

	otherKey, err := DeriveKey(strings.Repeat("z", 40))
	require.NoError(t, err)
	other, err := NewCodec(otherKey)
	require.NoError(t, err)

	decoded, err := other.Decode(encoded)
	if err == nil {
		assert.NotEqual(t, []byte(strings.Repeat("secret text ", 100)), decoded)
	}
}

func TestCodec_Func(t *testing.T) {
	codec := newTestCodec(t)

	encoded, err := codec.Func(Forward)([]byte("payload"))
	require.NoError(t, err)
	decoded, err := codec.Func(Forward.Inverse())(encoded)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(decoded))

	assert.Equal(t, Backward, Forward.Inverse())
	assert.Equal(t, Forward, Backward.Inverse())
	assert.Equal(t, "forward", Forward.String())
	assert.Equal(t, "backward", Backward.String())
}

func TestWindowBits(t *testing.T) {
	assert.Equal(t, minWindowBits, windowBits(0))
	assert.Equal(t, minWindowBits, windowBits(1000))
	assert.Equal(t, 11, windowBits(1024))
	assert.Equal(t, 22, windowBits(4<<20))
	assert.Equal(t, 22, windowBits(64<<20))
	assert.Equal(t, maxWindowBits, windowBits(1<<30))
}

func TestCopyFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	codec := newTestCodec(t)

	require.NoError(t, fs.MkdirAll("/src", 0o755))
	require.NoError(t, fs.MkdirAll("/enc", 0o755))
	require.NoError(t, fs.MkdirAll("/dec", 0o755))
	require.NoError(t, afero.WriteFile(fs, "/src/a.txt", []byte("hi"), 0o644))

	n, err := CopyFile(fs, "/src/a.txt", "/enc/a.txt", codec.Func(Forward))
	require.NoError(t, err)
	assert.Greater(t, n, IVSize)

	_, err = CopyFile(fs, "/enc/a.txt", "/dec/a.txt", codec.Func(Backward))
	require.NoError(t, err)

	data, err := afero.ReadFile(fs, "/dec/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "hi", string(data))
}

func TestCopyFile_IdentityAndMissingSource(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/a", []byte("plain"), 0o644))

	_, err := CopyFile(fs, "/a", "/b", nil)
	require.NoError(t, err)
	data, err := afero.ReadFile(fs, "/b")
	require.NoError(t, err)
	assert.Equal(t, "plain", string(data))

	_, err = CopyFile(fs, "/missing", "/c", Identity)
	assert.ErrorIs(t, err, os.ErrNotExist)
	exists, _ := afero.Exists(fs, "/c")
	assert.False(t, exists)
}

func TestCopyFile_TransformErrorLeavesNoDestination(t *testing.T) {
	dir := t.TempDir()
	fs := afero.NewOsFs()
	codec := newTestCodec(t)

	from := filepath.Join(dir, "garbage")
	to := filepath.Join(dir, "out")
	require.NoError(t, os.WriteFile(from, []byte("x"), 0o644))

	_, err := CopyFile(fs, from, to, codec.Func(Backward))
	require.ErrorIs(t, err, ErrPayloadTooShort)
	assert.NoFileExists(t, to)
}
