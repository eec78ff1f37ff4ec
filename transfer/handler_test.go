package transfer

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flyingMooncake/SentinelKarma-sub000/crypto"
	"github.com/flyingMooncake/SentinelKarma-sub000/ledger"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(t *testing.T, mutate func(*Config)) (*Service, http.Handler) {
	t.Helper()
	cfg := DefaultConfig()
	cfg.StorageDir = t.TempDir()
	cfg.PeersFile = ""
	cfg.PublicURL = "http://logs.test"
	cfg.Log = discardLogger()
	if mutate != nil {
		mutate(cfg)
	}

	index, err := NewSQLiteIndex(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { index.Close() })

	svc, err := New(cfg, index, ledger.Noop{})
	require.NoError(t, err)

	r := chi.NewRouter()
	NewHandler(svc).RegisterRoutes(r)
	return svc, r
}

type testPeer struct {
	pub  crypto.PublicKey
	priv crypto.PrivateKey
}

func newPeer(t *testing.T, svc *Service) *testPeer {
	t.Helper()
	pub, priv, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	svc.Peers().Add(pub)
	return &testPeer{pub: pub, priv: priv}
}

// sign builds the auth headers for a canonical field (filename on upload,
// log id on download) at the given unix timestamp.
func (p *testPeer) sign(t *testing.T, req *http.Request, canonical string, ts int64) {
	t.Helper()
	tsStr := strconv.FormatInt(ts, 10)
	sig, err := crypto.Sign(p.priv, []byte(canonical+tsStr+p.pub.String()))
	require.NoError(t, err)
	req.Header.Set(HeaderPubkey, p.pub.String())
	req.Header.Set(HeaderTimestamp, tsStr)
	req.Header.Set(HeaderSignature, sig.String())
}

func uploadReq(t *testing.T, p *testPeer, filename string, body []byte, ts int64) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/logs?filename="+filename, bytes.NewReader(body))
	p.sign(t, req, filename, ts)
	return req
}

func downloadReq(t *testing.T, p *testPeer, logID string, ts int64) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/logs/"+logID, nil)
	p.sign(t, req, logID, ts)
	return req
}

func doUpload(t *testing.T, h http.Handler, p *testPeer, filename string, body []byte, ts int64) *UploadResult {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, uploadReq(t, p, filename, body, ts))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var result UploadResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	return &result
}

func TestUploadDownloadRoundTrip(t *testing.T) {
	svc, h := newTestService(t, nil)
	peer := newPeer(t, svc)

	content := []byte(`{"ts":1,"window_ms":250,"method":"eth_call"}` + "\n")
	sum := sha256.Sum256(content)
	wantHash := hex.EncodeToString(sum[:])

	result := doUpload(t, h, peer, "log-20260823-1000.jsonl", content, time.Now().Unix())
	assert.Equal(t, wantHash, result.Hash)
	assert.Equal(t, wantHash[:16], result.LogID)
	assert.Equal(t, int64(len(content)), result.Size)
	assert.Equal(t, "http://logs.test/logs/"+result.LogID, result.URL)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, downloadReq(t, peer, result.LogID, time.Now().Unix()+1))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, content, rec.Body.Bytes())

	got := sha256.Sum256(rec.Body.Bytes())
	assert.Equal(t, wantHash, hex.EncodeToString(got[:]))
}

func TestUnknownPeerIsForbidden(t *testing.T) {
	_, h := newTestService(t, nil)

	pub, priv, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	outsider := &testPeer{pub: pub, priv: priv}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, uploadReq(t, outsider, "a.jsonl", []byte("x"), time.Now().Unix()))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestMissingAuthHeadersAreForbidden(t *testing.T) {
	_, h := newTestService(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/logs?filename=a.jsonl", bytes.NewReader([]byte("x")))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestStaleTimestampIsRejected(t *testing.T) {
	svc, h := newTestService(t, nil)
	peer := newPeer(t, svc)

	old := time.Now().Add(-10 * time.Minute).Unix()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, uploadReq(t, peer, "a.jsonl", []byte("x"), old))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	future := time.Now().Add(10 * time.Minute).Unix()
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, uploadReq(t, peer, "a.jsonl", []byte("x"), future))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestReplayIsRejected(t *testing.T) {
	svc, h := newTestService(t, nil)
	peer := newPeer(t, svc)

	ts := time.Now().Unix()
	first := uploadReq(t, peer, "a.jsonl", []byte("x"), ts)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, first)
	require.Equal(t, http.StatusOK, rec.Code)

	// Byte-identical request: same pubkey, timestamp and signature.
	replay := uploadReq(t, peer, "a.jsonl", []byte("x"), ts)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, replay)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestInvalidSignatureIsRejected(t *testing.T) {
	svc, h := newTestService(t, nil)
	peer := newPeer(t, svc)

	req := uploadReq(t, peer, "a.jsonl", []byte("x"), time.Now().Unix())
	// Signature over a different filename than the request carries.
	otherSig, err := crypto.Sign(peer.priv, []byte("other.jsonl"))
	require.NoError(t, err)
	req.Header.Set(HeaderSignature, otherSig.String())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRejectedSignatureDoesNotPoisonReplayCache(t *testing.T) {
	svc, h := newTestService(t, nil)
	peer := newPeer(t, svc)

	ts := time.Now().Unix()
	req := uploadReq(t, peer, "a.jsonl", []byte("x"), ts)
	badSig, err := crypto.Sign(peer.priv, []byte("some other message"))
	require.NoError(t, err)
	req.Header.Set(HeaderSignature, badSig.String())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	// The genuine request with the same timestamp still goes through.
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, uploadReq(t, peer, "a.jsonl", []byte("x"), ts))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestOversizeUploadIsRejected(t *testing.T) {
	svc, h := newTestService(t, func(cfg *Config) {
		cfg.MaxLogSize = 64
	})
	peer := newPeer(t, svc)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, uploadReq(t, peer, "big.jsonl", bytes.Repeat([]byte("a"), 65), time.Now().Unix()))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, uploadReq(t, peer, "fits.jsonl", bytes.Repeat([]byte("a"), 64), time.Now().Unix()+1))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestEvictionPrefersStrictlyOlderLogs(t *testing.T) {
	svc, h := newTestService(t, func(cfg *Config) {
		cfg.MaxLogSize = 1024
		cfg.MaxStorage = 250
	})
	peer := newPeer(t, svc)

	base := time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return base }
	a := doUpload(t, h, peer, "a.jsonl", bytes.Repeat([]byte("a"), 100), time.Now().Unix())

	svc.now = func() time.Time { return base.Add(time.Minute) }
	b := doUpload(t, h, peer, "b.jsonl", bytes.Repeat([]byte("b"), 100), time.Now().Unix()+1)

	// Third upload exceeds 250 bytes; the oldest (a) is strictly older and
	// gets evicted.
	svc.now = func() time.Time { return base.Add(2 * time.Minute) }
	c := doUpload(t, h, peer, "c.jsonl", bytes.Repeat([]byte("c"), 100), time.Now().Unix()+2)

	_, err := svc.Metadata(context.Background(), a.LogID)
	assert.ErrorIs(t, err, ErrNotFound)
	for _, id := range []string{b.LogID, c.LogID} {
		_, err := svc.Metadata(context.Background(), id)
		assert.NoError(t, err)
	}
}

func TestStorageFullWhenNothingStrictlyOlder(t *testing.T) {
	svc, h := newTestService(t, func(cfg *Config) {
		cfg.MaxLogSize = 1024
		cfg.MaxStorage = 150
	})
	peer := newPeer(t, svc)

	fixed := time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	doUpload(t, h, peer, "a.jsonl", bytes.Repeat([]byte("a"), 100), time.Now().Unix())

	// Same upload instant: the stored log is not strictly older, so it is
	// not evicted and the new upload fails.
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, uploadReq(t, peer, "b.jsonl", bytes.Repeat([]byte("b"), 100), time.Now().Unix()+1))
	assert.Equal(t, http.StatusInsufficientStorage, rec.Code)
}

func TestDuplicateUploadReusesLogID(t *testing.T) {
	svc, h := newTestService(t, nil)
	peer := newPeer(t, svc)

	content := []byte("identical bytes")
	first := doUpload(t, h, peer, "first.jsonl", content, time.Now().Unix())
	second := doUpload(t, h, peer, "second.jsonl", content, time.Now().Unix()+1)

	assert.Equal(t, first.LogID, second.LogID)

	// The index holds one record carrying the latest filename.
	stats, err := svc.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.LogCount)
	assert.Equal(t, int64(len(content)), stats.StoredBytes)

	record, err := svc.Metadata(context.Background(), first.LogID)
	require.NoError(t, err)
	assert.Equal(t, "second.jsonl", record.Filename)
}

func TestDownloadUnknownLogIs404(t *testing.T) {
	svc, h := newTestService(t, nil)
	peer := newPeer(t, svc)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, downloadReq(t, peer, "0123456789abcdef", time.Now().Unix()))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDailyQuotaBlocksDownloads(t *testing.T) {
	svc, h := newTestService(t, func(cfg *Config) {
		cfg.DailyBandwidth = 150
	})
	peer := newPeer(t, svc)

	content := bytes.Repeat([]byte("a"), 100)
	result := doUpload(t, h, peer, "a.jsonl", content, time.Now().Unix())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, downloadReq(t, peer, result.LogID, time.Now().Unix()+1))
	require.Equal(t, http.StatusOK, rec.Code)

	// 100 of 150 bytes consumed; another 100-byte download exceeds the cap.
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, downloadReq(t, peer, result.LogID, time.Now().Unix()+2))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	// Another peer has its own budget.
	other := newPeer(t, svc)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, downloadReq(t, other, result.LogID, time.Now().Unix()+3))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMetadataAndRecentLogsArePublic(t *testing.T) {
	svc, h := newTestService(t, nil)
	peer := newPeer(t, svc)

	result := doUpload(t, h, peer, "a.jsonl", []byte("content"), time.Now().Unix())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/logs/"+result.LogID+"/metadata", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var record StoredLog
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &record))
	assert.Equal(t, result.LogID, record.LogID)
	assert.Equal(t, "a.jsonl", record.Filename)
	assert.Equal(t, result.Hash, record.SHA256)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/recent_logs?minutes=60", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var recent struct {
		Logs  []StoredLog `json:"logs"`
		Count int         `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &recent))
	assert.Equal(t, 1, recent.Count)
}

func TestHealthAndStats(t *testing.T) {
	svc, h := newTestService(t, nil)
	peer := newPeer(t, svc)
	doUpload(t, h, peer, "a.jsonl", []byte("content"), time.Now().Unix())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var stats Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats.LogCount)
	assert.Equal(t, int64(7), stats.StoredBytes)
	assert.Equal(t, 1, stats.AuthorizedPeers)
}

func TestDisableSignatureCheckSkipsOnlyVerification(t *testing.T) {
	svc, h := newTestService(t, func(cfg *Config) {
		cfg.DisableSignatureCheck = true
	})
	peer := newPeer(t, svc)

	// A garbage signature passes when verification is disabled.
	ts := time.Now().Unix()
	req := uploadReq(t, peer, "a.jsonl", []byte("x"), ts)
	req.Header.Set(HeaderSignature, "deadbeef")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Roster membership still applies.
	pub, priv, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	outsider := &testPeer{pub: pub, priv: priv}
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, uploadReq(t, outsider, "a.jsonl", []byte("x"), time.Now().Unix()))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Freshness still applies.
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, uploadReq(t, peer, "a.jsonl", []byte("x"), time.Now().Add(-time.Hour).Unix()))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Replay still applies.
	replay := uploadReq(t, peer, "a.jsonl", []byte("x"), ts)
	replay.Header.Set(HeaderSignature, "deadbeef")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, replay)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

// failingLedger always errors; uploads must not care.
type failingLedger struct{}

func (failingLedger) RecordReport(ctx context.Context, url, sha256 string) (string, error) {
	return "", errors.New("registry down")
}

// recordingLedger captures the first report it receives.
type recordingLedger struct {
	reports chan [2]string
}

func (l *recordingLedger) RecordReport(ctx context.Context, url, sha256 string) (string, error) {
	l.reports <- [2]string{url, sha256}
	return "receipt-1", nil
}

func TestLedgerFailureDoesNotFailUpload(t *testing.T) {
	svc, h := newTestService(t, nil)
	svc.ledger = failingLedger{}
	peer := newPeer(t, svc)

	result := doUpload(t, h, peer, "a.jsonl", []byte("content"), time.Now().Unix())
	assert.NotEmpty(t, result.LogID)
}

func TestSuccessfulUploadNotifiesLedger(t *testing.T) {
	svc, h := newTestService(t, nil)
	led := &recordingLedger{reports: make(chan [2]string, 1)}
	svc.ledger = led
	peer := newPeer(t, svc)

	result := doUpload(t, h, peer, "a.jsonl", []byte("content"), time.Now().Unix())

	select {
	case report := <-led.reports:
		assert.Equal(t, result.URL, report[0])
		assert.Equal(t, result.Hash, report[1])
	case <-time.After(5 * time.Second):
		t.Fatal("ledger was never notified")
	}
}
