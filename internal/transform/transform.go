// Package transform implements the reversible codec applied to file contents
// while they travel between the two roots: brotli compression followed by
// AES-256-CTR encryption in one direction, and the inverse in the other.
package transform

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"github.com/andybalholm/brotli"
)

const (
	// IVSize is the length of the initialization vector prefixed to every payload.
	IVSize = 16

	// maxQuality is brotli's highest compression level.
	maxQuality = 11

	minWindowBits = 10
	// maxWindowBits is brotli's default window; the size hint only shrinks it.
	maxWindowBits = 22
)

var (
	ErrPayloadTooShort = errors.New("encoded payload shorter than iv")
)

// Direction selects which half of the codec a root applies when copying out.
type Direction int

const (
	// Forward compresses and encrypts.
	Forward Direction = iota
	// Backward decrypts and decompresses.
	Backward
)

func (d Direction) String() string {
	switch d {
	case Forward:
		return "forward"
	case Backward:
		return "backward"
	default:
		return fmt.Sprintf("direction(%d)", int(d))
	}
}

// Inverse returns the opposite direction.
func (d Direction) Inverse() Direction {
	if d == Forward {
		return Backward
	}
	return Forward
}

// Func maps the bytes read from one root to the bytes written to the other.
type Func func(data []byte) ([]byte, error)

// Identity copies contents unchanged.
func Identity(data []byte) ([]byte, error) {
	return data, nil
}

// Transformer yields the transform for each direction.
type Transformer interface {
	Func(d Direction) Func
}

// Plain mirrors files unencrypted.
type Plain struct{}

func (Plain) Func(Direction) Func {
	return Identity
}

// Codec holds the derived key. It is stateless otherwise and safe for
// concurrent use.
type Codec struct {
	key   Key
	block cipher.Block
	rand  io.Reader
}

func NewCodec(key Key) (*Codec, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	return &Codec{key: key, block: block, rand: rand.Reader}, nil
}

// Func returns the transform for the given direction.
func (c *Codec) Func(d Direction) Func {
	if d == Forward {
		return c.Encode
	}
	return c.Decode
}

// Encode produces IV || AES-256-CTR(brotli(plain)).
func (c *Codec) Encode(plain []byte) ([]byte, error) {
	compressed, err := compress(plain)
	if err != nil {
		return nil, fmt.Errorf("compress: %w", err)
	}

	out := make([]byte, IVSize+len(compressed))
	iv := out[:IVSize]
	if _, err := io.ReadFull(c.rand, iv); err != nil {
		return nil, fmt.Errorf("generate iv: %w", err)
	}

	cipher.NewCTR(c.block, iv).XORKeyStream(out[IVSize:], compressed)
	return out, nil
}

// Decode reverses Encode.
func (c *Codec) Decode(payload []byte) ([]byte, error) {
	if len(payload) < IVSize {
		return nil, ErrPayloadTooShort
	}

	iv := payload[:IVSize]
	compressed := make([]byte, len(payload)-IVSize)
	cipher.NewCTR(c.block, iv).XORKeyStream(compressed, payload[IVSize:])

	plain, err := decompress(compressed)
	if err != nil {
		return nil, fmt.Errorf("decompress: %w", err)
	}
	return plain, nil
}

func compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := brotli.NewWriterOptions(&buf, brotli.WriterOptions{
		Quality: maxQuality,
		LGWin:   windowBits(len(data)),
	})
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompress(data []byte) ([]byte, error) {
	return io.ReadAll(brotli.NewReader(bytes.NewReader(data)))
}

// windowBits sizes the sliding window from the input length, the same way
// brotli's size hint does: the smallest window that still covers the input.
func windowBits(size int) int {
	bits := minWindowBits
	for bits < maxWindowBits && (1<<bits)-16 < size {
		bits++
	}
	return bits
}
