package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/rs/zerolog"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"ReelRelay/internal/domain"
	"ReelRelay/internal/ports"
)

const (
	videosTable = "videos"
	// fixed width so that text order matches time order
	timeLayout = "2006-01-02T15:04:05.000000000Z07:00"
)

const schema = `
CREATE TABLE IF NOT EXISTS videos (
	id                   INTEGER PRIMARY KEY AUTOINCREMENT,
	source_id            TEXT NOT NULL UNIQUE,
	source_url           TEXT NOT NULL,
	content_hash         TEXT NOT NULL,
	original_title       TEXT NOT NULL DEFAULT '',
	original_text        TEXT NOT NULL DEFAULT '',
	generated_title      TEXT NOT NULL DEFAULT '',
	generated_description TEXT NOT NULL DEFAULT '',
	remote_id            TEXT NOT NULL DEFAULT '',
	status               TEXT NOT NULL DEFAULT 'pending',
	created_at           TEXT NOT NULL,
	uploaded_at          TEXT
);
CREATE INDEX IF NOT EXISTS idx_videos_source_id ON videos(source_id);
CREATE INDEX IF NOT EXISTS idx_videos_content_hash ON videos(content_hash);
CREATE INDEX IF NOT EXISTS idx_videos_status ON videos(status);
`

var recordColumns = []string{
	"source_id", "source_url", "content_hash", "original_title", "original_text",
	"generated_title", "generated_description", "remote_id", "status",
	"created_at", "uploaded_at",
}

// SQLiteRepository persists video processing state in a single SQLite file.
type SQLiteRepository struct {
	pool    *Pool
	logger  zerolog.Logger
	now     func() time.Time
	writeMu sync.Mutex
}

var _ ports.VideoRepository = (*SQLiteRepository)(nil)

// Open creates the database file and schema when missing. The caller owns
// the returned repository and must Close it.
func Open(ctx context.Context, path string, logger zerolog.Logger) (*SQLiteRepository, error) {
	pool, err := OpenPool(PoolConfig{Path: path, Logger: logger})
	if err != nil {
		return nil, err
	}

	repo := &SQLiteRepository{
		pool:   pool,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
	if err := repo.migrate(ctx); err != nil {
		_ = pool.Close()
		return nil, err
	}
	return repo, nil
}

// Close flushes and releases every connection.
func (r *SQLiteRepository) Close() error {
	return r.pool.Close()
}

func (r *SQLiteRepository) migrate(ctx context.Context) error {
	conn, err := r.pool.Take(ctx)
	if err != nil {
		return err
	}
	defer r.pool.Put(conn)

	if err := sqlitex.ExecuteScript(conn, schema, nil); err != nil {
		return fmt.Errorf("storage: create schema: %w", err)
	}
	return nil
}

// IsProcessed reports whether the video has been uploaded. Pending and
// failed records are eligible for another attempt.
func (r *SQLiteRepository) IsProcessed(ctx context.Context, id string) (bool, error) {
	query := sq.Select("1").From(videosTable).
		Where(sq.Eq{"source_id": id, "status": string(domain.StatusUploaded)}).
		Limit(1)
	return r.exists(ctx, query)
}

// HashExists reports whether any record carries the content hash.
func (r *SQLiteRepository) HashExists(ctx context.Context, hash string) (bool, error) {
	query := sq.Select("1").From(videosTable).
		Where(sq.Eq{"content_hash": hash}).
		Limit(1)
	return r.exists(ctx, query)
}

// Get loads a single record by source ID.
func (r *SQLiteRepository) Get(ctx context.Context, id string) (domain.Record, error) {
	query := sq.Select(recordColumns...).From(videosTable).
		Where(sq.Eq{"source_id": id}).
		Limit(1)

	records, err := r.selectRecords(ctx, query)
	if err != nil {
		return domain.Record{}, err
	}
	if len(records) == 0 {
		return domain.Record{}, fmt.Errorf("get %s: %w", id, domain.ErrRecordNotFound)
	}
	return records[0], nil
}

// RecordNew inserts a pending record. It returns false without error when the
// source ID is already tracked.
func (r *SQLiteRepository) RecordNew(ctx context.Context, record domain.Record) (bool, error) {
	createdAt := record.CreatedAt
	if createdAt.IsZero() {
		createdAt = r.now()
	}

	query := sq.Insert(videosTable).
		Options("OR IGNORE").
		Columns("source_id", "source_url", "content_hash", "original_title", "original_text", "status", "created_at").
		Values(record.ID, record.URL, record.Hash, record.OriginalTitle, record.OriginalText,
			string(domain.StatusPending), createdAt.UTC().Format(timeLayout))

	changed, err := r.write(ctx, query)
	if err != nil {
		return false, fmt.Errorf("record %s: %w", record.ID, err)
	}
	if changed == 0 {
		r.logger.Debug().Str("video_id", record.ID).Msg("record already tracked")
	}
	return changed > 0, nil
}

// SetGeneratedContent stores the generated text and marks the record ready.
func (r *SQLiteRepository) SetGeneratedContent(ctx context.Context, id, title, description string) error {
	query := sq.Update(videosTable).
		Set("generated_title", title).
		Set("generated_description", description).
		Set("status", string(domain.StatusReady)).
		Where(sq.Eq{"source_id": id})
	return r.mutate(ctx, id, "set generated content", query)
}

// MarkUploaded stores the remote ID and stamps the upload time.
func (r *SQLiteRepository) MarkUploaded(ctx context.Context, id, remoteID string) error {
	query := sq.Update(videosTable).
		Set("remote_id", remoteID).
		Set("status", string(domain.StatusUploaded)).
		Set("uploaded_at", r.now().UTC().Format(timeLayout)).
		Where(sq.Eq{"source_id": id})
	return r.mutate(ctx, id, "mark uploaded", query)
}

// MarkFailed moves the record to failed.
func (r *SQLiteRepository) MarkFailed(ctx context.Context, id string) error {
	query := sq.Update(videosTable).
		Set("status", string(domain.StatusFailed)).
		Where(sq.Eq{"source_id": id})
	return r.mutate(ctx, id, "mark failed", query)
}

// Stats counts records per status.
func (r *SQLiteRepository) Stats(ctx context.Context) (domain.Stats, error) {
	sqlText, args, err := sq.Select("status", "COUNT(*)").From(videosTable).GroupBy("status").ToSql()
	if err != nil {
		return domain.Stats{}, fmt.Errorf("build stats query: %w", err)
	}

	conn, err := r.pool.Take(ctx)
	if err != nil {
		return domain.Stats{}, err
	}
	defer r.pool.Put(conn)

	var stats domain.Stats
	err = sqlitex.Execute(conn, sqlText, &sqlitex.ExecOptions{
		Args: args,
		ResultFunc: func(stmt *sqlite.Stmt) error {
			count := int(stmt.ColumnInt64(1))
			stats.Total += count
			switch domain.Status(stmt.ColumnText(0)) {
			case domain.StatusPending:
				stats.Pending = count
			case domain.StatusReady:
				stats.Ready = count
			case domain.StatusUploaded:
				stats.Uploaded = count
			case domain.StatusFailed:
				stats.Failed = count
			}
			return nil
		},
	})
	if err != nil {
		return domain.Stats{}, fmt.Errorf("query stats: %w", err)
	}
	return stats, nil
}

// Recent returns the latest uploaded records, newest first.
func (r *SQLiteRepository) Recent(ctx context.Context, limit int) ([]domain.Record, error) {
	if limit <= 0 {
		limit = 10
	}
	query := sq.Select(recordColumns...).From(videosTable).
		Where(sq.Eq{"status": string(domain.StatusUploaded)}).
		OrderBy("uploaded_at DESC", "id DESC").
		Limit(uint64(limit))
	return r.selectRecords(ctx, query)
}

func (r *SQLiteRepository) mutate(ctx context.Context, id, op string, query sq.Sqlizer) error {
	changed, err := r.write(ctx, query)
	if err != nil {
		return fmt.Errorf("%s %s: %w", op, id, err)
	}
	if changed == 0 {
		return fmt.Errorf("%s %s: %w", op, id, domain.ErrRecordNotFound)
	}
	return nil
}

// write runs a single statement inside an immediate transaction and returns
// the number of rows it changed. The transaction commits before returning.
func (r *SQLiteRepository) write(ctx context.Context, query sq.Sqlizer) (changed int, err error) {
	sqlText, args, err := query.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build query: %w", err)
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	conn, err := r.pool.Take(ctx)
	if err != nil {
		return 0, err
	}
	defer r.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer endTransaction(&err)

	if err = sqlitex.Execute(conn, sqlText, &sqlitex.ExecOptions{Args: args}); err != nil {
		return 0, err
	}
	return conn.Changes(), nil
}

func (r *SQLiteRepository) exists(ctx context.Context, query sq.SelectBuilder) (bool, error) {
	sqlText, args, err := query.ToSql()
	if err != nil {
		return false, fmt.Errorf("build query: %w", err)
	}

	conn, err := r.pool.Take(ctx)
	if err != nil {
		return false, err
	}
	defer r.pool.Put(conn)

	found := false
	err = sqlitex.Execute(conn, sqlText, &sqlitex.ExecOptions{
		Args: args,
		ResultFunc: func(*sqlite.Stmt) error {
			found = true
			return nil
		},
	})
	if err != nil {
		return false, fmt.Errorf("query: %w", err)
	}
	return found, nil
}

func (r *SQLiteRepository) selectRecords(ctx context.Context, query sq.SelectBuilder) ([]domain.Record, error) {
	sqlText, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	conn, err := r.pool.Take(ctx)
	if err != nil {
		return nil, err
	}
	defer r.pool.Put(conn)

	var (
		records []domain.Record
		scanErr error
	)
	err = sqlitex.Execute(conn, sqlText, &sqlitex.ExecOptions{
		Args: args,
		ResultFunc: func(stmt *sqlite.Stmt) error {
			record, err := scanRecord(stmt)
			if err != nil {
				scanErr = errors.Join(scanErr, err)
				return nil
			}
			records = append(records, record)
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	if scanErr != nil {
		return nil, scanErr
	}
	return records, nil
}

func scanRecord(stmt *sqlite.Stmt) (domain.Record, error) {
	record := domain.Record{
		ID:                   stmt.ColumnText(0),
		URL:                  stmt.ColumnText(1),
		Hash:                 stmt.ColumnText(2),
		OriginalTitle:        stmt.ColumnText(3),
		OriginalText:         stmt.ColumnText(4),
		GeneratedTitle:       stmt.ColumnText(5),
		GeneratedDescription: stmt.ColumnText(6),
		RemoteID:             stmt.ColumnText(7),
		Status:               domain.Status(stmt.ColumnText(8)),
	}

	createdAt, err := time.Parse(time.RFC3339Nano, stmt.ColumnText(9))
	if err != nil {
		return domain.Record{}, fmt.Errorf("parse created_at for %s: %w", record.ID, err)
	}
	record.CreatedAt = createdAt

	if raw := stmt.ColumnText(10); raw != "" {
		uploadedAt, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return domain.Record{}, fmt.Errorf("parse uploaded_at for %s: %w", record.ID, err)
		}
		record.UploadedAt = &uploadedAt
	}
	return record, nil
}
