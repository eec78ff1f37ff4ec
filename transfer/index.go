package transfer

import (
	"context"
	"time"
)

// StoredLog is the index record for one uploaded log file. The bytes live
// on disk under the storage directory; the index holds everything else.
type StoredLog struct {
	LogID          string    `json:"log_id"`
	Filename       string    `json:"filename"`
	UploaderPubkey string    `json:"uploader_pubkey"`
	UploadTs       time.Time `json:"upload_ts"`
	SHA256         string    `json:"sha256"`
	SizeBytes      int64     `json:"size_bytes"`
}

// LogIndex persists StoredLog records. Implementations: SQLite for
// single-node deployments, Postgres for shared ones.
type LogIndex interface {
	// Insert stores a record, replacing any record with the same log id.
	Insert(ctx context.Context, log StoredLog) error
	// Get returns the record for logID, or ErrNotFound.
	Get(ctx context.Context, logID string) (*StoredLog, error)
	// Delete removes the record for logID. Deleting an absent id is a no-op.
	Delete(ctx context.Context, logID string) error
	// Recent returns records with upload_ts after since, newest first.
	Recent(ctx context.Context, since time.Time) ([]StoredLog, error)
	// OldestFirst returns up to limit records ordered by ascending
	// upload_ts. Eviction consumes them in order.
	OldestFirst(ctx context.Context, limit int) ([]StoredLog, error)
	// Totals returns the record count and summed size in bytes.
	Totals(ctx context.Context) (int, int64, error)
	// Close releases the underlying database handle.
	Close() error
}
