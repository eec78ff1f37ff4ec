package router

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// retentionSweep deletes sealed .jsonl files in dir older than ttl, never
// touching the live file. A zero ttl keeps files forever.
func retentionSweep(dir string, ttl time.Duration, livePath string, log *slog.Logger) {
	if ttl <= 0 {
		return
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	now := time.Now()
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".jsonl") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		if path == livePath {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if now.Sub(info.ModTime()) > ttl {
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				log.Warn("retention sweep failed", "path", path, "err", err)
			}
		}
	}
}

// runRetention sweeps dir on an interval until ctx is cancelled. livePath
// reports the track's currently open file so it is never removed.
func runRetention(ctx context.Context, dir string, ttl time.Duration, interval time.Duration, livePath func() string, log *slog.Logger) {
	if ttl <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			retentionSweep(dir, ttl, livePath(), log)
		}
	}
}
