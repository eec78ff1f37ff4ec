package telemetry

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"os"
	"time"
)

// Tailer follows an append-only JSONL log file, emitting validated raw
// events. It starts at the current end of the file, polls for new lines,
// and reopens from the start when the file is truncated or recreated.
type Tailer struct {
	path string
	log  *slog.Logger

	// PollInterval is how long to wait when no new data is available.
	PollInterval time.Duration
}

// NewTailer creates a tailer for the given file path.
func NewTailer(path string, log *slog.Logger) *Tailer {
	return &Tailer{
		path:         path,
		log:          log,
		PollInterval: 20 * time.Millisecond,
	}
}

// Run follows the file until ctx is cancelled, calling emit for every line
// that parses as a valid event. Malformed lines are logged and skipped.
func (t *Tailer) Run(ctx context.Context, emit func(*RawEvent)) error {
	var offset int64
	first := true

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		f, err := os.Open(t.path)
		if err != nil {
			if !sleepCtx(ctx, 250*time.Millisecond) {
				return ctx.Err()
			}
			continue
		}

		if first {
			// Skip history, only new traffic matters.
			offset, _ = f.Seek(0, io.SeekEnd)
			first = false
		} else {
			if st, err := f.Stat(); err == nil && st.Size() < offset {
				offset = 0 // truncated or rotated underneath us
			}
			if _, err := f.Seek(offset, io.SeekStart); err != nil {
				offset, _ = f.Seek(0, io.SeekEnd)
			}
		}

		offset = t.consume(ctx, f, offset, emit)
		f.Close()
	}
}

// consume reads lines until EOF persists or ctx is cancelled, returning the
// final offset.
func (t *Tailer) consume(ctx context.Context, f *os.File, offset int64, emit func(*RawEvent)) int64 {
	reader := bufio.NewReader(f)
	for {
		line, err := reader.ReadBytes('\n')
		if len(line) > 0 && err == nil {
			offset += int64(len(line))
			ev, perr := ParseRawEvent(line)
			if perr != nil {
				t.log.Debug("skipping malformed log line", "err", perr)
				continue
			}
			emit(ev)
			continue
		}
		if err == io.EOF {
			if !sleepCtx(ctx, t.PollInterval) {
				return offset
			}
			// Reopen to pick up rotation; partial lines stay unread
			// until the writer completes them.
			return offset
		}
		if err != nil {
			t.log.Warn("tail read failed", "err", err)
			return offset
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
