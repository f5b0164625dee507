package store

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/abelbrown/livelog/internal/cursor"
)

// Row is one entry of the append-only event log: a monitor check result or a
// request log line. Rows are never updated or deleted once appended.
type Row struct {
	ID         string `json:"id"`
	Timestamp  int64  `json:"timestamp"` // ms since epoch
	Monitor    string `json:"monitor"`
	Region     string `json:"region,omitempty"`
	Status     string `json:"status"` // "up", "down", "degraded", or an HTTP outcome
	StatusCode int    `json:"statusCode,omitempty"`
	LatencyMs  int64  `json:"latencyMs,omitempty"`
	Message    string `json:"message,omitempty"`
}

// Key returns the composite ordering key of the row.
func (r Row) Key() cursor.Key {
	return cursor.Key{Timestamp: r.Timestamp, ID: r.ID}
}

// Time returns the row timestamp as a time.Time.
func (r Row) Time() time.Time {
	return time.UnixMilli(r.Timestamp)
}

// NewID returns a fresh row id. UUIDv7 strings sort in creation order, so rows
// appended within the same millisecond keep their insertion order.
func NewID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate row id: %w", err)
	}
	return id.String(), nil
}

// Stats summarizes the stored log.
type Stats struct {
	Count  int64 `json:"count"`
	Oldest int64 `json:"oldest"` // ms, 0 when empty
	Newest int64 `json:"newest"` // ms, 0 when empty
	Now    int64 `json:"now"`    // server clock at read time, ms
}
