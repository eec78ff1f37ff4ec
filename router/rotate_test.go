package router

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var logNameRe = regexp.MustCompile(`^log-\d{8}-\d{4}\.jsonl$`)

func TestTrackWriterNamesFilesByOpenInstant(t *testing.T) {
	dir := t.TempDir()
	w, err := newTrackWriter("normal", dir, 30*time.Minute)
	require.NoError(t, err)

	openAt := time.Date(2026, 8, 23, 14, 7, 31, 0, time.UTC)
	require.NoError(t, w.append([]byte(`{"method":"eth_call"}`), openAt))

	path := w.currentPath()
	assert.Equal(t, "log-20260823-1407.jsonl", filepath.Base(path))
	assert.True(t, logNameRe.MatchString(filepath.Base(path)))
	require.NoError(t, w.close())
}

func TestTrackWriterSealsBeforeOpeningNext(t *testing.T) {
	dir := t.TempDir()
	w, err := newTrackWriter("malicious", dir, 3*time.Minute)
	require.NoError(t, err)

	start := time.Date(2026, 8, 23, 10, 0, 0, 0, time.UTC)
	require.NoError(t, w.append([]byte(`{"n":1}`), start))
	require.NoError(t, w.append([]byte(`{"n":2}`), start.Add(time.Minute)))
	firstPath := w.currentPath()

	// Crossing due_at seals the first file and opens a new one.
	require.NoError(t, w.append([]byte(`{"n":3}`), start.Add(3*time.Minute)))
	secondPath := w.currentPath()
	assert.NotEqual(t, firstPath, secondPath)

	first, err := os.ReadFile(firstPath)
	require.NoError(t, err)
	assert.Equal(t, `{"n":1}`+"\n"+`{"n":2}`+"\n", string(first))

	require.NoError(t, w.close())
	second, err := os.ReadFile(secondPath)
	require.NoError(t, err)
	assert.Equal(t, `{"n":3}`+"\n", string(second))
}

func TestTrackWriterSuccessiveRotationsIncreaseDueAt(t *testing.T) {
	dir := t.TempDir()
	w, err := newTrackWriter("malicious", dir, 3*time.Minute)
	require.NoError(t, err)

	now := time.Date(2026, 8, 23, 10, 0, 0, 0, time.UTC)
	var dues []time.Time
	for i := 0; i < 4; i++ {
		require.NoError(t, w.append([]byte(`{}`), now))
		dues = append(dues, w.dueAt)
		now = now.Add(3 * time.Minute)
	}
	require.NoError(t, w.close())

	for i := 1; i < len(dues); i++ {
		assert.True(t, dues[i].After(dues[i-1]), "due_at must be strictly increasing")
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 4)
	for _, e := range entries {
		assert.True(t, strings.HasSuffix(e.Name(), ".jsonl"))
	}
}

func TestTrackWriterLinesAreNewlineDelimited(t *testing.T) {
	dir := t.TempDir()
	w, err := newTrackWriter("normal", dir, time.Hour)
	require.NoError(t, err)

	now := time.Date(2026, 8, 23, 10, 0, 0, 0, time.UTC)
	lines := []string{`{"a":1}`, `{"b":2}`, `{"c":3}`}
	for _, line := range lines {
		require.NoError(t, w.append([]byte(line), now))
	}
	path := w.currentPath()
	require.NoError(t, w.close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	got := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	assert.Equal(t, lines, got)
}

func TestRetentionSweepSparesLiveFile(t *testing.T) {
	dir := t.TempDir()

	old := filepath.Join(dir, "log-20260801-0000.jsonl")
	require.NoError(t, os.WriteFile(old, []byte("{}\n"), 0o644))
	past := time.Now().Add(-3 * time.Hour)
	require.NoError(t, os.Chtimes(old, past, past))

	live := filepath.Join(dir, "log-20260823-1000.jsonl")
	require.NoError(t, os.WriteFile(live, []byte("{}\n"), 0o644))
	require.NoError(t, os.Chtimes(live, past, past))

	unrelated := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(unrelated, []byte("keep"), 0o644))
	require.NoError(t, os.Chtimes(unrelated, past, past))

	retentionSweep(dir, 2*time.Hour, live, testLogger())

	_, err := os.Stat(old)
	assert.True(t, os.IsNotExist(err), "expired sealed file is removed")
	_, err = os.Stat(live)
	assert.NoError(t, err, "live file is never removed")
	_, err = os.Stat(unrelated)
	assert.NoError(t, err, "non-jsonl files are untouched")
}

func TestRetentionSweepZeroTTLKeepsEverything(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "log-20260801-0000.jsonl")
	require.NoError(t, os.WriteFile(old, []byte("{}\n"), 0o644))
	past := time.Now().Add(-24 * 365 * time.Hour)
	require.NoError(t, os.Chtimes(old, past, past))

	retentionSweep(dir, 0, "", testLogger())

	_, err := os.Stat(old)
	assert.NoError(t, err)
}
