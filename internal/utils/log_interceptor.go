// Package utils holds small helpers shared by the mirrorbox packages.
package utils

import (
	"bytes"
	"fmt"
	"io"
	"sync"
	"time"
)

// LogInterceptor prefixes every complete line written to it with a running
// line number and a timestamp before passing it on. Incomplete lines are held
// back until their newline arrives or Close is called.
type LogInterceptor struct {
	mu      sync.Mutex
	target  io.Writer
	line    uint64
	pending bytes.Buffer
	now     func() time.Time
}

func NewLogInterceptor(target io.Writer) *LogInterceptor {
	return &LogInterceptor{target: target, now: time.Now}
}

func (i *LogInterceptor) Write(p []byte) (int, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.pending.Write(p)
	for {
		idx := bytes.IndexByte(i.pending.Bytes(), '\n')
		if idx < 0 {
			break
		}
		line := bytes.TrimSuffix(i.pending.Next(idx+1)[:idx], []byte("\r"))
		if err := i.emit(line); err != nil {
			return len(p), err
		}
	}
	return len(p), nil
}

// Close writes out a trailing partial line, if any.
func (i *LogInterceptor) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.pending.Len() == 0 {
		return nil
	}
	line := bytes.Clone(i.pending.Bytes())
	i.pending.Reset()
	return i.emit(line)
}

func (i *LogInterceptor) emit(line []byte) error {
	i.line++
	_, err := fmt.Fprintf(i.target, "line=%d time=%s %s\n", i.line, i.now().Format(time.RFC3339), line)
	return err
}
