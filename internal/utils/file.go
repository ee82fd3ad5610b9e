package utils

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/afero"
)

// TempSuffix marks in-progress writes. Watchers ignore paths carrying it.
const TempSuffix = ".mbtmp"

// TempPath returns a unique sibling of path used to stage a write.
func TempPath(path string) string {
	dir, base := filepath.Split(path)
	return filepath.Join(dir, fmt.Sprintf(".%s.%s%s", base, uuid.NewString(), TempSuffix))
}

// WriteFileAtomic writes data next to path and renames it into place, so
// readers never observe a partially written file.
func WriteFileAtomic(fs afero.Fs, path string, data []byte, perm os.FileMode) error {
	tmp := TempPath(path)

	if err := afero.WriteFile(fs, tmp, data, perm); err != nil {
		fs.Remove(tmp)
		return err
	}

	if err := fs.Rename(tmp, path); err != nil {
		fs.Remove(tmp)
		return fmt.Errorf("rename %s: %w", tmp, err)
	}
	return nil
}
