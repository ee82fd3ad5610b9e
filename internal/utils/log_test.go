package utils

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogInterceptor(t *testing.T) {
	var out bytes.Buffer
	li := NewLogInterceptor(&out)
	li.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }

	n, err := li.Write([]byte("first\r\nsec"))
	require.NoError(t, err)
	assert.Equal(t, len("first\r\nsec"), n)

	_, err = li.Write([]byte("ond\nthi"))
	require.NoError(t, err)
	require.NoError(t, li.Close())

	lines := strings.Split(strings.TrimSuffix(out.String(), "\n"), "\n")
	assert.Equal(t, []string{
		"line=1 time=2024-01-02T03:04:05Z first",
		"line=2 time=2024-01-02T03:04:05Z second",
		"line=3 time=2024-01-02T03:04:05Z thi",
	}, lines)

	before := out.Len()
	require.NoError(t, li.Close())
	assert.Equal(t, before, out.Len())
}

func TestMultiLogHandler(t *testing.T) {
	var debugOut, infoOut bytes.Buffer
	debug := slog.NewTextHandler(&debugOut, &slog.HandlerOptions{Level: slog.LevelDebug})
	info := slog.NewTextHandler(&infoOut, &slog.HandlerOptions{Level: slog.LevelInfo})

	h := NewMultiLogHandler(debug, info)
	assert.True(t, h.Enabled(context.Background(), slog.LevelDebug))

	logger := slog.New(h).With("root", "source").WithGroup("job")
	logger.Debug("queued", "path", "/a")
	logger.Info("copied", "path", "/b")

	assert.Contains(t, debugOut.String(), "msg=queued root=source job.path=/a")
	assert.Contains(t, debugOut.String(), "msg=copied")
	assert.NotContains(t, infoOut.String(), "queued")
	assert.Contains(t, infoOut.String(), "msg=copied root=source job.path=/b")

	quiet := NewMultiLogHandler(slog.NewTextHandler(&infoOut, &slog.HandlerOptions{Level: slog.LevelError}))
	assert.False(t, quiet.Enabled(context.Background(), slog.LevelInfo))
}
