package domain

import (
	"time"

	"github.com/google/uuid"
)

// FingerprintRetention is how long a stored fingerprint participates in
// duplicate detection. Fingerprints older than this never match and are
// pruned by the retention janitor.
const FingerprintRetention = 30 * 24 * time.Hour

// ImageFingerprint is the perceptual hash of an approved report's prepared
// image. Written once alongside the report, read only by future duplicate
// lookups, never updated.
type ImageFingerprint struct {
	ID        uuid.UUID
	Hash      uint64
	ReportID  uuid.UUID
	CreatedAt time.Time
}
