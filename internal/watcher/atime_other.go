//go:build !linux && !darwin

package watcher

import (
	"os"
	"time"
)

// accessTime falls back to the modification time where atime is not exposed.
func accessTime(fi os.FileInfo) time.Time {
	return fi.ModTime()
}
