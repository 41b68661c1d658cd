package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nancybwi/DrainGuardHCM-sub000/internal/domain"
)

// CreateFingerprint records the perceptual hash of an approved report's
// image. Written once, never updated.
func (q *Queries) CreateFingerprint(ctx context.Context, hash uint64, reportID uuid.UUID) (*domain.ImageFingerprint, error) {
	fp := &domain.ImageFingerprint{
		Hash:     hash,
		ReportID: reportID,
	}
	err := q.db.QueryRowContext(ctx, `
		INSERT INTO image_fingerprints (hash, report_id)
		VALUES ($1, $2)
		RETURNING id, created_at`,
		int64(hash), reportID,
	).Scan(&fp.ID, &fp.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert fingerprint: %w", err)
	}
	return fp, nil
}

// ListRecentFingerprintHashes returns every hash stored within the retention
// window. The coordinator matches against them in memory; the retention
// janitor keeps the set small enough for that to stay cheap.
func (q *Queries) ListRecentFingerprintHashes(ctx context.Context, window time.Duration) ([]uint64, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT hash FROM image_fingerprints WHERE created_at > $1`,
		time.Now().Add(-window))
	if err != nil {
		return nil, fmt.Errorf("fingerprint lookup: %w", err)
	}
	defer rows.Close()

	var hashes []uint64
	for rows.Next() {
		var h int64
		if err := rows.Scan(&h); err != nil {
			return nil, fmt.Errorf("scan fingerprint: %w", err)
		}
		hashes = append(hashes, uint64(h))
	}
	return hashes, rows.Err()
}

// DeleteExpiredFingerprints prunes fingerprints older than the retention
// window and returns how many were removed. Called by the retention janitor.
func (q *Queries) DeleteExpiredFingerprints(ctx context.Context, window time.Duration) (int64, error) {
	result, err := q.db.ExecContext(ctx, `
		DELETE FROM image_fingerprints WHERE created_at <= $1`,
		time.Now().Add(-window))
	if err != nil {
		return 0, fmt.Errorf("delete expired fingerprints: %w", err)
	}
	return result.RowsAffected()
}
