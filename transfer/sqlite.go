package transfer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

var sqliteSchema = `
CREATE TABLE IF NOT EXISTS stored_logs (
	log_id          TEXT PRIMARY KEY,
	filename        TEXT NOT NULL,
	uploader_pubkey TEXT NOT NULL,
	upload_ts_ms    INTEGER NOT NULL,
	sha256          TEXT NOT NULL,
	size_bytes      INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS stored_logs_upload_ts ON stored_logs (upload_ts_ms);
`

// SQLiteIndex is the default LogIndex, a single-file embedded database.
// Use ":memory:" as the path for throwaway instances.
type SQLiteIndex struct {
	db *sql.DB
}

// NewSQLiteIndex opens (creating if needed) the index database at path.
func NewSQLiteIndex(path string) (*SQLiteIndex, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite index: %w", err)
	}
	// The sqlite driver allows one writer; serialize through a single conn
	// to avoid SQLITE_BUSY under concurrent handlers.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating sqlite schema: %w", err)
	}
	return &SQLiteIndex{db: db}, nil
}

func (s *SQLiteIndex) Insert(ctx context.Context, log StoredLog) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO stored_logs (log_id, filename, uploader_pubkey, upload_ts_ms, sha256, size_bytes)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (log_id) DO UPDATE SET
			filename = excluded.filename,
			uploader_pubkey = excluded.uploader_pubkey,
			upload_ts_ms = excluded.upload_ts_ms,
			sha256 = excluded.sha256,
			size_bytes = excluded.size_bytes`,
		log.LogID, log.Filename, log.UploaderPubkey, log.UploadTs.UnixMilli(), log.SHA256, log.SizeBytes)
	return err
}

func (s *SQLiteIndex) Get(ctx context.Context, logID string) (*StoredLog, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT log_id, filename, uploader_pubkey, upload_ts_ms, sha256, size_bytes
		FROM stored_logs WHERE log_id = ?`, logID)
	log, err := scanSQLiteLog(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return log, nil
}

func (s *SQLiteIndex) Delete(ctx context.Context, logID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM stored_logs WHERE log_id = ?`, logID)
	return err
}

func (s *SQLiteIndex) Recent(ctx context.Context, since time.Time) ([]StoredLog, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT log_id, filename, uploader_pubkey, upload_ts_ms, sha256, size_bytes
		FROM stored_logs WHERE upload_ts_ms > ? ORDER BY upload_ts_ms DESC`,
		since.UnixMilli())
	if err != nil {
		return nil, err
	}
	return collectSQLiteLogs(rows)
}

func (s *SQLiteIndex) OldestFirst(ctx context.Context, limit int) ([]StoredLog, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT log_id, filename, uploader_pubkey, upload_ts_ms, sha256, size_bytes
		FROM stored_logs ORDER BY upload_ts_ms ASC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	return collectSQLiteLogs(rows)
}

func (s *SQLiteIndex) Totals(ctx context.Context) (int, int64, error) {
	var count int
	var bytes sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(size_bytes), 0) FROM stored_logs`).Scan(&count, &bytes)
	if err != nil {
		return 0, 0, err
	}
	return count, bytes.Int64, nil
}

func (s *SQLiteIndex) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteLog(row rowScanner) (*StoredLog, error) {
	var log StoredLog
	var tsMilli int64
	if err := row.Scan(&log.LogID, &log.Filename, &log.UploaderPubkey, &tsMilli, &log.SHA256, &log.SizeBytes); err != nil {
		return nil, err
	}
	log.UploadTs = time.UnixMilli(tsMilli).UTC()
	return &log, nil
}

func collectSQLiteLogs(rows *sql.Rows) ([]StoredLog, error) {
	defer rows.Close()
	var logs []StoredLog
	for rows.Next() {
		log, err := scanSQLiteLog(rows)
		if err != nil {
			return nil, err
		}
		logs = append(logs, *log)
	}
	return logs, rows.Err()
}
