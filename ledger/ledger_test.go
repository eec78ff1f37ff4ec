package ledger

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPLedgerRecordReport(t *testing.T) {
	var got reportRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(reportResponse{Receipt: "0xabc123"})
	}))
	defer srv.Close()

	led := NewHTTPLedger(srv.URL, time.Second)
	receipt, err := led.RecordReport(context.Background(), "http://peer/logs/deadbeef", "cafe")
	require.NoError(t, err)
	assert.Equal(t, "0xabc123", receipt)
	assert.Equal(t, "http://peer/logs/deadbeef", got.URL)
	assert.Equal(t, "cafe", got.SHA256)
}

func TestHTTPLedgerErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no capacity", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	led := NewHTTPLedger(srv.URL, time.Second)
	_, err := led.RecordReport(context.Background(), "http://peer/logs/deadbeef", "cafe")
	assert.Error(t, err)
}

func TestHTTPLedgerUnreachable(t *testing.T) {
	led := NewHTTPLedger("http://127.0.0.1:1", 100*time.Millisecond)
	_, err := led.RecordReport(context.Background(), "url", "hash")
	assert.Error(t, err)
}

func TestNoopLedger(t *testing.T) {
	receipt, err := Noop{}.RecordReport(context.Background(), "url", "hash")
	require.NoError(t, err)
	assert.Empty(t, receipt)
}
