package watcher

import (
	"os"
	"time"
)

// Info is what the watcher knows about a path that exists.
type Info struct {
	IsFile     bool
	IsSymlink  bool
	IsSocket   bool
	Size       int64
	ModTime    time.Time
	AccessTime time.Time
}

// NewInfo converts an lstat result. Symlinks are described, never followed.
func NewInfo(fi os.FileInfo) *Info {
	mode := fi.Mode()
	return &Info{
		IsFile:     mode.IsRegular(),
		IsSymlink:  mode&os.ModeSymlink != 0,
		IsSocket:   mode&os.ModeSocket != 0,
		Size:       fi.Size(),
		ModTime:    fi.ModTime(),
		AccessTime: accessTime(fi),
	}
}

// Event reports that something happened at Path. A nil Info means the path
// could not be stat'ed when the event was produced: it may be gone, or it
// may be in the middle of an atomic replace.
type Event struct {
	Path string
	Info *Info
}

// Unknown reports whether the path status could not be determined.
func (e Event) Unknown() bool {
	return e.Info == nil
}

// Lstat builds an event for path from its current on-disk status.
func Lstat(path string) Event {
	fi, err := os.Lstat(path)
	if err != nil {
		return Event{Path: path}
	}
	return Event{Path: path, Info: NewInfo(fi)}
}
