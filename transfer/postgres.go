package transfer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

var postgresSchema = `
CREATE TABLE IF NOT EXISTS stored_logs (
	log_id          TEXT PRIMARY KEY,
	filename        TEXT NOT NULL,
	uploader_pubkey TEXT NOT NULL,
	upload_ts       TIMESTAMPTZ NOT NULL,
	sha256          TEXT NOT NULL,
	size_bytes      BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS stored_logs_upload_ts ON stored_logs (upload_ts);
`

// PostgresIndex is the LogIndex for deployments sharing one index across
// several transfer nodes.
type PostgresIndex struct {
	db *sql.DB
}

// NewPostgresIndex connects to the database at dsn and ensures the schema.
func NewPostgresIndex(dsn string) (*PostgresIndex, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening postgres index: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging postgres index: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	if _, err := db.Exec(postgresSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating postgres schema: %w", err)
	}
	return &PostgresIndex{db: db}, nil
}

func (s *PostgresIndex) Insert(ctx context.Context, log StoredLog) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO stored_logs (log_id, filename, uploader_pubkey, upload_ts, sha256, size_bytes)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (log_id) DO UPDATE SET
			filename = EXCLUDED.filename,
			uploader_pubkey = EXCLUDED.uploader_pubkey,
			upload_ts = EXCLUDED.upload_ts,
			sha256 = EXCLUDED.sha256,
			size_bytes = EXCLUDED.size_bytes`,
		log.LogID, log.Filename, log.UploaderPubkey, log.UploadTs.UTC(), log.SHA256, log.SizeBytes)
	return err
}

func (s *PostgresIndex) Get(ctx context.Context, logID string) (*StoredLog, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT log_id, filename, uploader_pubkey, upload_ts, sha256, size_bytes
		FROM stored_logs WHERE log_id = $1`, logID)
	log, err := scanPostgresLog(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return log, nil
}

func (s *PostgresIndex) Delete(ctx context.Context, logID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM stored_logs WHERE log_id = $1`, logID)
	return err
}

func (s *PostgresIndex) Recent(ctx context.Context, since time.Time) ([]StoredLog, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT log_id, filename, uploader_pubkey, upload_ts, sha256, size_bytes
		FROM stored_logs WHERE upload_ts > $1 ORDER BY upload_ts DESC`, since.UTC())
	if err != nil {
		return nil, err
	}
	return collectPostgresLogs(rows)
}

func (s *PostgresIndex) OldestFirst(ctx context.Context, limit int) ([]StoredLog, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT log_id, filename, uploader_pubkey, upload_ts, sha256, size_bytes
		FROM stored_logs ORDER BY upload_ts ASC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	return collectPostgresLogs(rows)
}

func (s *PostgresIndex) Totals(ctx context.Context) (int, int64, error) {
	var count int
	var bytes sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(size_bytes), 0) FROM stored_logs`).Scan(&count, &bytes)
	if err != nil {
		return 0, 0, err
	}
	return count, bytes.Int64, nil
}

func (s *PostgresIndex) Close() error {
	return s.db.Close()
}

func scanPostgresLog(row rowScanner) (*StoredLog, error) {
	var log StoredLog
	if err := row.Scan(&log.LogID, &log.Filename, &log.UploaderPubkey, &log.UploadTs, &log.SHA256, &log.SizeBytes); err != nil {
		return nil, err
	}
	log.UploadTs = log.UploadTs.UTC()
	return &log, nil
}

func collectPostgresLogs(rows *sql.Rows) ([]StoredLog, error) {
	defer rows.Close()
	var logs []StoredLog
	for rows.Next() {
		log, err := scanPostgresLog(rows)
		if err != nil {
			return nil, err
		}
		logs = append(logs, *log)
	}
	return logs, rows.Err()
}
