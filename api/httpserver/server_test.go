package httpserver

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pingRegistrar struct{}

func (pingRegistrar) RegisterRoutes(r chi.Router) {
	r.Get("/ping", func(w http.ResponseWriter, req *http.Request) {
		w.Write([]byte("pong"))
	})
}

func newTestServer(t *testing.T) *BaseServer {
	t.Helper()
	srv, err := New(&Config{
		ListenAddr:    "127.0.0.1:0",
		Log:           slog.New(slog.NewTextHandler(io.Discard, nil)),
		DrainDuration: 10 * time.Millisecond,
	}, pingRegistrar{})
	require.NoError(t, err)
	return srv
}

func get(srv *BaseServer, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	srv.srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestRegistrarRoutesAreMounted(t *testing.T) {
	srv := newTestServer(t)
	rec := get(srv, "/ping")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "pong", rec.Body.String())
}

func TestLivenessAndReadiness(t *testing.T) {
	srv := newTestServer(t)

	assert.Equal(t, http.StatusOK, get(srv, "/livez").Code)
	assert.Equal(t, http.StatusOK, get(srv, "/readyz").Code)
}

func TestDrainTogglesReadiness(t *testing.T) {
	srv := newTestServer(t)

	assert.Equal(t, http.StatusOK, get(srv, "/drain").Code)
	assert.Equal(t, http.StatusServiceUnavailable, get(srv, "/readyz").Code)

	// Draining twice is reported but harmless.
	assert.Equal(t, http.StatusOK, get(srv, "/drain").Code)

	assert.Equal(t, http.StatusOK, get(srv, "/undrain").Code)
	assert.Equal(t, http.StatusOK, get(srv, "/readyz").Code)
}
