package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

type Repository interface {
	Create(ctx context.Context, rec *Record) error
	MarkSucceeded(ctx context.Context, id, storageKey, publicURL string, sizeBytes int64, elapsed time.Duration) error
	MarkFailed(ctx context.Context, id, kind, stage, errMsg string, elapsed time.Duration) error
	Get(ctx context.Context, id string) (*Record, error)
	List(ctx context.Context, callID string, limit int) ([]*Record, error)
}

type SQLiteRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const selectColumns = `
	SELECT id, call_id, exchange_index, recording_url, start_seconds, end_seconds, status,
		storage_key, public_url, failure_kind, failed_stage, error, size_bytes, duration_ms,
		created_at, updated_at
	FROM clips`

func (r *SQLiteRepository) Create(ctx context.Context, rec *Record) error {
	if rec.ID == "" {
		rec.ID = NewID()
	}
	if rec.Status == "" {
		rec.Status = StatusRunning
	}
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = rec.CreatedAt
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO clips (id, call_id, exchange_index, recording_url, start_seconds, end_seconds, status,
			storage_key, public_url, failure_kind, failed_stage, error, size_bytes, duration_ms, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.CallID, rec.ExchangeIndex, rec.RecordingURL, rec.StartSeconds, rec.EndSeconds, rec.Status,
		nullString(rec.StorageKey), nullString(rec.PublicURL), nullString(rec.FailureKind),
		nullString(rec.FailedStage), nullString(rec.Error), rec.SizeBytes, rec.DurationMS,
		rec.CreatedAt.UTC().Format(time.RFC3339), rec.UpdatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("insert clip %s: %w", rec.ID, err)
	}
	return nil
}

func (r *SQLiteRepository) MarkSucceeded(ctx context.Context, id, storageKey, publicURL string, sizeBytes int64, elapsed time.Duration) error {
	return r.finish(ctx, id, outcome{
		Status:     StatusSucceeded,
		StorageKey: storageKey,
		PublicURL:  publicURL,
		SizeBytes:  sizeBytes,
		Duration:   elapsed,
	})
}

func (r *SQLiteRepository) MarkFailed(ctx context.Context, id, kind, stage, errMsg string, elapsed time.Duration) error {
	return r.finish(ctx, id, outcome{
		Status:      StatusFailed,
		FailureKind: kind,
		FailedStage: stage,
		Error:       errMsg,
		Duration:    elapsed,
	})
}

func (r *SQLiteRepository) finish(ctx context.Context, id string, out outcome) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE clips SET status = ?, storage_key = ?, public_url = ?, failure_kind = ?, failed_stage = ?,
			error = ?, size_bytes = ?, duration_ms = ?, updated_at = ?
		WHERE id = ?
	`, out.Status, nullString(out.StorageKey), nullString(out.PublicURL), nullString(out.FailureKind),
		nullString(out.FailedStage), nullString(out.Error), out.SizeBytes, out.Duration.Milliseconds(),
		time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("update clip %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("clip %s not found", id)
	}
	return nil
}

// Get returns nil, nil when no record has the given id.
func (r *SQLiteRepository) Get(ctx context.Context, id string) (*Record, error) {
	rows, err := r.db.QueryContext(ctx, selectColumns+` WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	recs, err := scanRecords(rows)
	if err != nil || len(recs) == 0 {
		return nil, err
	}
	return recs[0], nil
}

// List returns the newest records first, optionally filtered by call id.
func (r *SQLiteRepository) List(ctx context.Context, callID string, limit int) ([]*Record, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}

	var rows *sql.Rows
	var err error
	if callID != "" {
		rows, err = r.db.QueryContext(ctx, selectColumns+`
			WHERE call_id = ? ORDER BY created_at DESC, rowid DESC LIMIT ?`, callID, limit)
	} else {
		rows, err = r.db.QueryContext(ctx, selectColumns+`
			ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanRecords(rows)
}

func scanRecords(rows *sql.Rows) ([]*Record, error) {
	var recs []*Record
	for rows.Next() {
		var rec Record
		var storageKey, publicURL, failureKind, failedStage, errMsg sql.NullString
		var createdAt, updatedAt string

		if err := rows.Scan(&rec.ID, &rec.CallID, &rec.ExchangeIndex, &rec.RecordingURL,
			&rec.StartSeconds, &rec.EndSeconds, &rec.Status,
			&storageKey, &publicURL, &failureKind, &failedStage, &errMsg,
			&rec.SizeBytes, &rec.DurationMS, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		rec.StorageKey = storageKey.String
		rec.PublicURL = publicURL.String
		rec.FailureKind = failureKind.String
		rec.FailedStage = failedStage.String
		rec.Error = errMsg.String
		rec.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		rec.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		recs = append(recs, &rec)
	}
	return recs, rows.Err()
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
