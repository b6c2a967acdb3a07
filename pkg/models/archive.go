package models

import "time"

// ArchivedDocument is the immutable snapshot generated once a request
// reaches approved. At most one exists per request unless force-regenerated;
// the request ID is the idempotency key.
type ArchivedDocument struct {
	ID          string    `json:"id"`
	RequestID   string    `json:"request_id"`
	Locator     string    `json:"locator"` // Storage path or URL of the rendered artifact
	GeneratedAt time.Time `json:"generated_at"`
	GeneratedBy string    `json:"generated_by,omitempty"`
	SizeBytes   int64     `json:"size_bytes,omitempty"`
}
