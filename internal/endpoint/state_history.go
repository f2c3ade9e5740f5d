package endpoint

import (
	"context"
	"time"
)

// State history source values.
const (
	StateHistorySourcePoll    = "poll"
	StateHistorySourceCommand = "command"
)

// State is a JSON-serialisable snapshot of a plug record.
type State map[string]any

// StateHistoryEntry is one recorded power-state change.
type StateHistoryEntry struct {
	ID        int64     `json:"id"`
	DeviceID  string    `json:"device_id"`
	State     State     `json:"state"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"created_at"`
}

// StateHistoryRepository stores and retrieves power-state history.
//
// Implementations must be thread-safe and use UTC timestamps.
type StateHistoryRepository interface {
	// RecordStateChange stores a snapshot. An empty source defaults to poll.
	RecordStateChange(ctx context.Context, deviceID string, state State, source string) error

	// GetHistory returns entries newest first. limit is clamped to sane bounds.
	GetHistory(ctx context.Context, deviceID string, limit int) ([]StateHistoryEntry, error)

	// PruneHistory deletes entries older than the given age and returns the count.
	PruneHistory(ctx context.Context, olderThan time.Duration) (int64, error)
}
