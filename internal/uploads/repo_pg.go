package uploads

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"spinevision-backend/internal/engine"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

// Create inserts a new upload.
func (r *PGRepo) Create(ctx context.Context, upload Upload) error {
	const query = `
INSERT INTO uploads (id, user_id, file_name, storage_key, file_type, size_bytes, status, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := r.DB.ExecContext(ctx, query,
		upload.ID,
		upload.UserID,
		upload.FileName,
		upload.StorageKey,
		upload.FileType,
		upload.SizeBytes,
		upload.Status,
		upload.CreatedAt,
	)
	return err
}

// GetByID returns an upload owned by the given user.
func (r *PGRepo) GetByID(ctx context.Context, userID, uploadID string) (Upload, error) {
	const query = `
SELECT id, user_id, file_name, storage_key, file_type, size_bytes, status, created_at
FROM uploads
WHERE id = $1 AND user_id = $2
LIMIT 1`
	var u Upload
	err := r.DB.QueryRowContext(ctx, query, uploadID, userID).Scan(
		&u.ID,
		&u.UserID,
		&u.FileName,
		&u.StorageKey,
		&u.FileType,
		&u.SizeBytes,
		&u.Status,
		&u.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Upload{}, ErrNotFound
		}
		return Upload{}, err
	}
	return u, nil
}

// UpdateStatus updates the status of an upload.
func (r *PGRepo) UpdateStatus(ctx context.Context, uploadID, status string) error {
	const query = `UPDATE uploads SET status = $1 WHERE id = $2`
	res, err := r.DB.ExecContext(ctx, query, status, uploadID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// CompleteWithResult inserts the result row and flips the upload to done
// in one transaction.
func (r *PGRepo) CompleteWithResult(ctx context.Context, uploadID string, result Result) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	findings, err := marshalFindings(result.Findings)
	if err != nil {
		return err
	}

	const insertResult = `
INSERT INTO results (id, upload_id, model_version, classification, confidence_score, findings, heatmap_key, report_key, processed_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	if _, err := tx.ExecContext(ctx, insertResult,
		result.ID,
		uploadID,
		result.ModelVersion,
		result.Classification,
		result.ConfidenceScore,
		findings,
		nullString(result.HeatmapKey),
		nullString(result.ReportKey),
		result.ProcessedAt,
	); err != nil {
		return err
	}

	const markDone = `UPDATE uploads SET status = $1 WHERE id = $2`
	res, err := tx.ExecContext(ctx, markDone, StatusDone, uploadID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}

	return tx.Commit()
}

// GetResult returns the result row for an upload.
func (r *PGRepo) GetResult(ctx context.Context, uploadID string) (Result, error) {
	const query = `
SELECT id, upload_id, model_version, classification, confidence_score, findings, heatmap_key, report_key, processed_at
FROM results
WHERE upload_id = $1
LIMIT 1`
	var res Result
	var findings sql.NullString
	var heatmapKey sql.NullString
	var reportKey sql.NullString
	err := r.DB.QueryRowContext(ctx, query, uploadID).Scan(
		&res.ID,
		&res.UploadID,
		&res.ModelVersion,
		&res.Classification,
		&res.ConfidenceScore,
		&findings,
		&heatmapKey,
		&reportKey,
		&res.ProcessedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Result{}, ErrNotFound
		}
		return Result{}, err
	}
	if findings.Valid {
		if err := json.Unmarshal([]byte(findings.String), &res.Findings); err != nil {
			res.Findings = nil
		}
	}
	if heatmapKey.Valid {
		res.HeatmapKey = heatmapKey.String
	}
	if reportKey.Valid {
		res.ReportKey = reportKey.String
	}
	return res, nil
}

// Delete removes the upload row; the results row goes with it via the
// foreign-key cascade.
func (r *PGRepo) Delete(ctx context.Context, userID, uploadID string) error {
	const query = `DELETE FROM uploads WHERE id = $1 AND user_id = $2`
	res, err := r.DB.ExecContext(ctx, query, uploadID, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListByUser lists uploads for a user newest-first with an optional
// status filter, returning the total matching count for pagination.
func (r *PGRepo) ListByUser(ctx context.Context, userID, status string, limit, offset int) ([]Upload, int, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	const countQuery = `
SELECT COUNT(*)
FROM uploads
WHERE user_id = $1 AND ($2 = '' OR status = $2)`
	var total int
	if err := r.DB.QueryRowContext(ctx, countQuery, userID, status).Scan(&total); err != nil {
		return nil, 0, err
	}

	const query = `
SELECT id, user_id, file_name, storage_key, file_type, size_bytes, status, created_at
FROM uploads
WHERE user_id = $1 AND ($2 = '' OR status = $2)
ORDER BY created_at DESC, id DESC
LIMIT $3 OFFSET $4`
	rows, err := r.DB.QueryContext(ctx, query, userID, status, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Upload
	for rows.Next() {
		var u Upload
		if err := rows.Scan(
			&u.ID,
			&u.UserID,
			&u.FileName,
			&u.StorageKey,
			&u.FileType,
			&u.SizeBytes,
			&u.Status,
			&u.CreatedAt,
		); err != nil {
			return nil, 0, err
		}
		out = append(out, u)
	}
	return out, total, rows.Err()
}

// StatsByUser aggregates counts for one user's uploads.
func (r *PGRepo) StatsByUser(ctx context.Context, userID string) (Stats, error) {
	const query = `
SELECT
	COUNT(*),
	COUNT(*) FILTER (WHERE u.status = 'done'),
	COUNT(*) FILTER (WHERE u.status = 'done' AND res.classification LIKE 'Normal%'),
	COUNT(*) FILTER (WHERE u.status = 'done' AND res.classification NOT LIKE 'Normal%'),
	COUNT(*) FILTER (WHERE u.status IN ('uploaded', 'processing')),
	COUNT(*) FILTER (WHERE u.status = 'failed')
FROM uploads u
LEFT JOIN results res ON res.upload_id = u.id
WHERE u.user_id = $1`
	var stats Stats
	err := r.DB.QueryRowContext(ctx, query, userID).Scan(
		&stats.Total,
		&stats.Done,
		&stats.Normal,
		&stats.Abnormal,
		&stats.Pending,
		&stats.Failed,
	)
	return stats, err
}

// StatsGlobal aggregates counts across all uploads.
func (r *PGRepo) StatsGlobal(ctx context.Context) (Stats, error) {
	const query = `
SELECT
	COUNT(*),
	COUNT(*) FILTER (WHERE u.status = 'done'),
	COUNT(*) FILTER (WHERE u.status = 'done' AND res.classification LIKE 'Normal%'),
	COUNT(*) FILTER (WHERE u.status = 'done' AND res.classification NOT LIKE 'Normal%'),
	COUNT(*) FILTER (WHERE u.status IN ('uploaded', 'processing')),
	COUNT(*) FILTER (WHERE u.status = 'failed')
FROM uploads u
LEFT JOIN results res ON res.upload_id = u.id`
	var stats Stats
	err := r.DB.QueryRowContext(ctx, query).Scan(
		&stats.Total,
		&stats.Done,
		&stats.Normal,
		&stats.Abnormal,
		&stats.Pending,
		&stats.Failed,
	)
	return stats, err
}

var _ Repo = (*PGRepo)(nil)

func marshalFindings(findings []engine.Finding) ([]byte, error) {
	if findings == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(findings)
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
