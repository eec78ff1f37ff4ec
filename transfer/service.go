package transfer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/flyingMooncake/SentinelKarma-sub000/ledger"
	"github.com/flyingMooncake/SentinelKarma-sub000/metrics"
)

// Config configures the transfer service.
type Config struct {
	// StorageDir holds the uploaded log bytes, one file per log id.
	StorageDir string `yaml:"storage_dir"`
	// PeersFile is the authorized peer roster, one hex pubkey per line.
	PeersFile string `yaml:"peers_file"`
	// PublicURL is the externally reachable base URL reported back to
	// uploaders and to the ledger.
	PublicURL string `yaml:"public_url"`

	// MaxLogSize bounds a single upload.
	MaxLogSize int64 `yaml:"max_log_size"`
	// MaxStorage bounds the summed size of all stored logs.
	MaxStorage int64 `yaml:"max_storage"`
	// DailyBandwidth caps each peer's downloads per UTC day; 0 disables.
	DailyBandwidth int64 `yaml:"daily_bandwidth"`
	// ReplayWindow bounds request timestamp skew and replay retention.
	ReplayWindow time.Duration `yaml:"replay_window"`

	// DisableSignatureCheck skips signature verification only. Never set
	// in production.
	DisableSignatureCheck bool `yaml:"disable_signature_check"`

	Log *slog.Logger `yaml:"-"`
}

// DefaultConfig returns the deployed limits: 10MB logs, 1GB storage,
// 100MB/day per peer, 5 minute replay window.
func DefaultConfig() *Config {
	return &Config{
		StorageDir:     "/data/peer_logs",
		MaxLogSize:     10 << 20,
		MaxStorage:     1 << 30,
		DailyBandwidth: 100 << 20,
		ReplayWindow:   300 * time.Second,
	}
}

// UploadResult is the response body of a successful upload.
type UploadResult struct {
	LogID string `json:"log_id"`
	URL   string `json:"url"`
	Hash  string `json:"hash"`
	Size  int64  `json:"size"`
}

// Stats are the public aggregate counters of the service.
type Stats struct {
	LogCount        int   `json:"log_count"`
	StoredBytes     int64 `json:"stored_bytes"`
	MaxStorage      int64 `json:"max_storage"`
	AuthorizedPeers int   `json:"authorized_peers"`
	ReplayCacheSize int   `json:"replay_cache_size"`
}

// Service implements the peer log exchange: authenticated uploads and
// downloads over a bounded storage pool with oldest-first eviction.
type Service struct {
	cfg    *Config
	log    *slog.Logger
	auth   *Authenticator
	peers  *AuthorizedPeers
	replay *ReplayCache
	index  LogIndex
	ledger ledger.Ledger
	bw     *bandwidthLedger

	// storage guards the usage counter and the eviction decision as one
	// critical section, so concurrent uploads cannot both conclude there
	// is room for the last slot.
	storage struct {
		ch    chan struct{}
		bytes int64
	}

	now func() time.Time
}

// New creates the service. The index and ledger are injected; the caller
// owns their lifecycles.
func New(cfg *Config, index LogIndex, led ledger.Ledger) (*Service, error) {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	if err := os.MkdirAll(cfg.StorageDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating storage dir: %w", err)
	}
	if led == nil {
		led = ledger.Noop{}
	}

	peers := NewAuthorizedPeers(cfg.PeersFile, log)
	replay := NewReplayCache(cfg.ReplayWindow)
	s := &Service{
		cfg:    cfg,
		log:    log,
		peers:  peers,
		replay: replay,
		index:  index,
		ledger: led,
		bw:     newBandwidthLedger(cfg.DailyBandwidth),
		now:    time.Now,
		auth: &Authenticator{
			Peers:                 peers,
			Replay:                replay,
			ReplayWindow:          cfg.ReplayWindow,
			DisableSignatureCheck: cfg.DisableSignatureCheck,
		},
	}
	s.storage.ch = make(chan struct{}, 1)
	s.storage.ch <- struct{}{}

	_, bytes, err := index.Totals(context.Background())
	if err != nil {
		return nil, fmt.Errorf("reading index totals: %w", err)
	}
	s.storage.bytes = bytes
	metrics.StoredBytes.Set(float64(bytes))

	if cfg.DisableSignatureCheck {
		log.Warn("signature verification is DISABLED, test deployments only")
	}
	return s, nil
}

// Peers exposes the roster, mainly so callers can seed it or run refresh.
func (s *Service) Peers() *AuthorizedPeers { return s.peers }

// Run drives the background loops (roster refresh, replay sweep) until ctx
// is cancelled.
func (s *Service) Run(ctx context.Context) {
	go s.peers.RunRefresh(ctx, 30*time.Second)
	s.replay.RunSweep(ctx, s.cfg.ReplayWindow)
}

func (s *Service) logPath(logID string) string {
	return filepath.Join(s.cfg.StorageDir, logID+".log")
}

// Upload ingests one log from an authenticated peer. The body is read up
// to the size limit, hashed, persisted atomically and indexed; the index
// insert happens last so a failure at any earlier point leaves no record.
func (s *Service) Upload(ctx context.Context, filename, uploaderPubkey string, body io.Reader) (*UploadResult, error) {
	data, err := io.ReadAll(io.LimitReader(body, s.cfg.MaxLogSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading upload body: %w", err)
	}
	size := int64(len(data))
	if size > s.cfg.MaxLogSize {
		return nil, ErrSizeExceeded
	}

	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])
	logID := hash[:16]
	now := s.now().UTC()

	release, err := s.reserve(ctx, logID, size, now)
	if err != nil {
		return nil, err
	}

	if err := s.persist(logID, data); err != nil {
		release(false)
		return nil, err
	}
	record := StoredLog{
		LogID:          logID,
		Filename:       filename,
		UploaderPubkey: uploaderPubkey,
		UploadTs:       now,
		SHA256:         hash,
		SizeBytes:      size,
	}
	if err := s.index.Insert(ctx, record); err != nil {
		os.Remove(s.logPath(logID))
		release(false)
		return nil, fmt.Errorf("indexing log: %w", err)
	}
	release(true)

	metrics.Uploads.Inc()
	url := s.cfg.PublicURL + "/logs/" + logID
	s.log.Info("log stored", "log_id", logID, "filename", filename, "size", size, "uploader", uploaderPubkey)

	// Ledger notification is best-effort and fully decoupled from the
	// upload outcome.
	go func() {
		nctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		receipt, err := s.ledger.RecordReport(nctx, url, hash)
		if err != nil {
			s.log.Warn("ledger notification failed", "log_id", logID, "err", err)
			return
		}
		if receipt != "" {
			s.log.Info("ledger receipt", "log_id", logID, "receipt", receipt)
		}
	}()

	return &UploadResult{LogID: logID, URL: url, Hash: hash, Size: size}, nil
}

// reserve accounts size bytes against the storage bound, evicting strictly
// older logs if needed. It holds the storage slot across the caller's
// persist-and-index so a concurrent upload cannot claim the same headroom;
// the returned release func commits or rolls back the reservation.
func (s *Service) reserve(ctx context.Context, logID string, size int64, uploadTs time.Time) (func(committed bool), error) {
	if size > s.cfg.MaxStorage {
		return nil, ErrStorageFull
	}
	select {
	case <-s.storage.ch:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	// Re-uploading identical bytes replaces the existing record, so its
	// current size does not count against the headroom.
	var replaced int64
	if existing, err := s.index.Get(ctx, logID); err == nil {
		replaced = existing.SizeBytes
	}

	for s.storage.bytes-replaced+size > s.cfg.MaxStorage {
		if err := s.evictOldest(ctx, uploadTs); err != nil {
			s.storage.ch <- struct{}{}
			return nil, err
		}
	}

	release := func(committed bool) {
		if committed {
			s.storage.bytes += size - replaced
			metrics.StoredBytes.Set(float64(s.storage.bytes))
		}
		s.storage.ch <- struct{}{}
	}
	return release, nil
}

// evictOldest removes the single oldest stored log, provided it is
// strictly older than the incoming upload. Evicting same-age or newer logs
// would let uploads churn each other out, so that case is StorageFull.
func (s *Service) evictOldest(ctx context.Context, uploadTs time.Time) error {
	victims, err := s.index.OldestFirst(ctx, 1)
	if err != nil {
		return fmt.Errorf("selecting eviction victim: %w", err)
	}
	if len(victims) == 0 {
		return ErrStorageFull
	}
	v := victims[0]
	if !v.UploadTs.Before(uploadTs) {
		return ErrStorageFull
	}
	if err := s.index.Delete(ctx, v.LogID); err != nil {
		return fmt.Errorf("deleting evicted index record: %w", err)
	}
	if err := os.Remove(s.logPath(v.LogID)); err != nil && !os.IsNotExist(err) {
		s.log.Warn("removing evicted log file", "log_id", v.LogID, "err", err)
	}
	s.storage.bytes -= v.SizeBytes
	metrics.StoredBytes.Set(float64(s.storage.bytes))
	s.log.Info("evicted log for capacity", "log_id", v.LogID, "size", v.SizeBytes)
	return nil
}

// persist writes the bytes to a temp file in the storage dir and renames
// it into place, so a crash mid-write never leaves a half-written log
// under its final name.
func (s *Service) persist(logID string, data []byte) error {
	tmp, err := os.CreateTemp(s.cfg.StorageDir, ".upload-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.logPath(logID)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}

// Download opens a stored log for an authenticated peer. The log's full
// size is charged against the peer's daily budget up front; the caller
// refunds undelivered bytes via RefundDownload if the stream aborts.
func (s *Service) Download(ctx context.Context, logID, peerPubkey string) (*StoredLog, io.ReadCloser, error) {
	record, err := s.index.Get(ctx, logID)
	if err != nil {
		return nil, nil, err
	}
	now := s.now()
	if !s.bw.reserve(peerPubkey, record.SizeBytes, now) {
		return nil, nil, ErrQuotaExceeded
	}
	f, err := os.Open(s.logPath(logID))
	if err != nil {
		s.bw.refund(peerPubkey, record.SizeBytes, now)
		if os.IsNotExist(err) {
			// Index and disk disagree; treat the record as gone.
			return nil, nil, ErrNotFound
		}
		return nil, nil, fmt.Errorf("opening stored log: %w", err)
	}
	return record, f, nil
}

// CompleteDownload records a fully delivered transfer.
func (s *Service) CompleteDownload() {
	metrics.Downloads.Inc()
}

// RefundDownload returns n reserved-but-undelivered bytes to the peer's
// daily budget after an aborted stream.
func (s *Service) RefundDownload(peerPubkey string, n int64) {
	s.bw.refund(peerPubkey, n, s.now())
}

// Metadata returns the index record for logID.
func (s *Service) Metadata(ctx context.Context, logID string) (*StoredLog, error) {
	return s.index.Get(ctx, logID)
}

// Recent returns metadata for logs uploaded within the last d, newest first.
func (s *Service) Recent(ctx context.Context, d time.Duration) ([]StoredLog, error) {
	return s.index.Recent(ctx, s.now().Add(-d))
}

// Stats returns the public aggregate counters.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	count, bytes, err := s.index.Totals(ctx)
	if err != nil {
		return nil, err
	}
	return &Stats{
		LogCount:        count,
		StoredBytes:     bytes,
		MaxStorage:      s.cfg.MaxStorage,
		AuthorizedPeers: s.peers.Len(),
		ReplayCacheSize: s.replay.Len(),
	}, nil
}
