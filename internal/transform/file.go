package transform

import (
	"fmt"

	"github.com/openmined/mirrorbox/internal/utils"
	"github.com/spf13/afero"
)

// CopyFile reads from, runs it through fn and writes the result to to.
// The destination only appears once it is complete. Returns the number of
// bytes written.
func CopyFile(fs afero.Fs, from, to string, fn Func) (int, error) {
	if fn == nil {
		fn = Identity
	}

	data, err := afero.ReadFile(fs, from)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", from, err)
	}

	out, err := fn(data)
	if err != nil {
		return 0, fmt.Errorf("transform %s: %w", from, err)
	}

	if err := utils.WriteFileAtomic(fs, to, out, 0o644); err != nil {
		return 0, fmt.Errorf("write %s: %w", to, err)
	}
	return len(out), nil
}
