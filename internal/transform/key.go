package transform

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// KeySize is the AES-256 key length.
const KeySize = 32

var (
	ErrKeyTooShort = errors.New("secret must be at least 32 bytes")
)

type Key [KeySize]byte

// DeriveKey folds the secret onto itself: byte i is XORed with byte len-1-i,
// in place and in order, for the first KeySize bytes. Once i passes the
// middle the mirrored byte has already been rewritten, and that is part of
// the format: existing mirrors were encoded with exactly this key.
func DeriveKey(secret string) (Key, error) {
	var key Key

	buf := []byte(secret)
	if len(buf) < KeySize {
		return key, fmt.Errorf("%w: got %d", ErrKeyTooShort, len(buf))
	}

	for i := 0; i < KeySize; i++ {
		buf[i] ^= buf[len(buf)-1-i]
	}

	copy(key[:], buf[:KeySize])
	return key, nil
}

// LoadKey reads the secret file, trims surrounding whitespace and derives the key.
func LoadKey(path string) (Key, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Key{}, fmt.Errorf("read secret %s: %w", path, err)
	}

	key, err := DeriveKey(strings.TrimSpace(string(data)))
	if err != nil {
		return Key{}, fmt.Errorf("derive key from %s: %w", path, err)
	}
	return key, nil
}
