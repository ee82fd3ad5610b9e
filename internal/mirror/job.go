package mirror

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/openmined/mirrorbox/internal/transform"
	"github.com/spf13/afero"
)

// TransferJob transforms one file into its mirror location and carries the
// source timestamps over, so the opposite reconciler sees equal mtimes and
// leaves the pair alone.
type TransferJob struct {
	From       string
	To         string
	ModTime    time.Time
	AccessTime time.Time
	Direction  transform.Direction
	Transform  transform.Func

	fs         afero.Fs
	onComplete func()
}

func (j *TransferJob) Run() error {
	start := time.Now()

	n, err := transform.CopyFile(j.fs, j.From, j.To, j.Transform)
	if err != nil {
		return err
	}

	if err := j.fs.Chtimes(j.To, j.AccessTime, j.ModTime); err != nil {
		return fmt.Errorf("set times on %s: %w", j.To, err)
	}

	slog.Info("copied", "from", j.From, "to", j.To, "direction", j.Direction, "size", humanize.Bytes(uint64(n)), "took", time.Since(start))

	if j.onComplete != nil {
		j.onComplete()
	}
	return nil
}

func (j *TransferJob) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("from", j.From),
		slog.String("to", j.To),
		slog.String("direction", j.Direction.String()),
	)
}
