package telemetry

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTailerEmitsAppendedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "requests.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(`{"method":"old","lat_ms":1,"status":200}`+"\n"), 0o644))

	var mu sync.Mutex
	var got []string
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tailer := NewTailer(path, slog.Default())
	tailer.PollInterval = 5 * time.Millisecond
	done := make(chan struct{})
	go func() {
		defer close(done)
		tailer.Run(ctx, func(ev *RawEvent) {
			mu.Lock()
			got = append(got, ev.Method)
			mu.Unlock()
		})
	}()

	// Let the tailer reach the current end of file before appending.
	time.Sleep(100 * time.Millisecond)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(`{"method":"eth_call","lat_ms":12,"status":200}` + "\n" +
		`not json` + "\n" +
		`{"method":"eth_getLogs","lat_ms":80,"status":503}` + "\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	<-done

	mu.Lock()
	defer mu.Unlock()
	// History before the tailer started and the malformed line are skipped.
	assert.Equal(t, []string{"eth_call", "eth_getLogs"}, got)
}
