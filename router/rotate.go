package router

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/flyingMooncake/SentinelKarma-sub000/metrics"
)

const (
	// sealRetries bounds how often a failing flush/close is retried before
	// the writer gives up and escalates.
	sealRetries = 3
	sealBackoff = 100 * time.Millisecond

	// maxPending bounds the lines buffered in memory while the filesystem
	// is failing. Beyond it the writer reports a fatal condition rather
	// than dropping already-classified events.
	maxPending = 10000
)

// trackWriter owns the file lifecycle of one track. The Router drives each
// instance from exactly one goroutine; only currentPath is safe to call
// from elsewhere.
//
// States: no file (between rotations and at startup) and open. The first
// line needing the track opens a file; once now reaches dueAt the old file
// is fully flushed and closed before any byte of the next file is written.
type trackWriter struct {
	track  string
	dir    string
	period time.Duration

	file      *os.File
	buf       *bufio.Writer
	openSince time.Time
	dueAt     time.Time

	// livePath mirrors the open file's path for the retention sweeper,
	// which runs on its own goroutine. Updated at every open and seal.
	liveMu   sync.Mutex
	livePath string

	// pending holds lines that could not be written because a seal or open
	// failed; they are replayed into the next successfully opened file.
	pending [][]byte
}

func newTrackWriter(track, dir string, period time.Duration) (*trackWriter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating %s track dir: %w", track, err)
	}
	return &trackWriter{track: track, dir: dir, period: period}, nil
}

// pathFor names the file by its open instant, UTC, minute precision.
func (w *trackWriter) pathFor(openSince time.Time) string {
	t := openSince.UTC()
	return filepath.Join(w.dir, fmt.Sprintf("log-%04d%02d%02d-%02d%02d.jsonl",
		t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute()))
}

// currentPath returns the live file's path, or "" when no file is open.
// Safe to call from outside the owning goroutine.
func (w *trackWriter) currentPath() string {
	w.liveMu.Lock()
	defer w.liveMu.Unlock()
	return w.livePath
}

func (w *trackWriter) setLivePath(path string) {
	w.liveMu.Lock()
	w.livePath = path
	w.liveMu.Unlock()
}

// append writes one newline-terminated Diagnostic line, rotating first if
// the live file is due. A returned error is fatal for the track: retries
// and bounded buffering have already been exhausted.
func (w *trackWriter) append(line []byte, now time.Time) error {
	if w.file != nil && !now.Before(w.dueAt) {
		if err := w.seal(); err != nil {
			return w.buffer(line, err)
		}
	}
	if w.file == nil {
		if err := w.open(now); err != nil {
			return w.buffer(line, err)
		}
	}

	if err := w.writeLine(line); err != nil {
		metrics.RotateFailures.WithLabelValues(w.track).Inc()
		return w.buffer(line, err)
	}
	return nil
}

func (w *trackWriter) writeLine(line []byte) error {
	if _, err := w.buf.Write(line); err != nil {
		return err
	}
	if err := w.buf.WriteByte('\n'); err != nil {
		return err
	}
	// Flush per line: sealed files must be complete and readers may tail
	// the live file.
	return w.buf.Flush()
}

// buffer retains a line that could not be persisted. Within the bound the
// failure stays transient; beyond it the track is corrupt-at-risk and the
// caller must halt.
func (w *trackWriter) buffer(line []byte, cause error) error {
	if len(w.pending) >= maxPending {
		return fmt.Errorf("%s track: %d lines buffered after persistent failure: %w",
			w.track, len(w.pending), cause)
	}
	w.pending = append(w.pending, line)
	return nil
}

// open starts a new file and replays any buffered lines into it.
func (w *trackWriter) open(now time.Time) error {
	path := w.pathFor(now)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening %s track file: %w", w.track, err)
	}
	w.file = f
	w.buf = bufio.NewWriter(f)
	w.openSince = now
	w.dueAt = now.Add(w.period)
	w.setLivePath(path)

	for len(w.pending) > 0 {
		line := w.pending[0]
		if err := w.writeLine(line); err != nil {
			return fmt.Errorf("replaying buffered line: %w", err)
		}
		w.pending = w.pending[1:]
	}
	return nil
}

// seal flushes and closes the live file, retrying a bounded number of
// times. On success the file is an immutable artifact and the writer is
// back in the no-file state.
func (w *trackWriter) seal() error {
	var err error
	for attempt := 0; attempt <= sealRetries; attempt++ {
		if attempt > 0 {
			metrics.RotateFailures.WithLabelValues(w.track).Inc()
			time.Sleep(sealBackoff * time.Duration(attempt))
		}
		if err = w.buf.Flush(); err != nil {
			continue
		}
		if err = w.file.Close(); err != nil {
			continue
		}
		w.file = nil
		w.buf = nil
		w.setLivePath("")
		metrics.Rotations.WithLabelValues(w.track).Inc()
		return nil
	}
	return fmt.Errorf("sealing %s track file after %d retries: %w", w.track, sealRetries, err)
}

// close seals the live file if one is open. Used on shutdown.
func (w *trackWriter) close() error {
	if w.file == nil {
		return nil
	}
	return w.seal()
}
