package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Status represents the lifecycle state of a refresh batch.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

func (s Status) String() string { return string(s) }

func (s Status) IsValid() bool {
	switch s {
	case StatusQueued, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// IsTerminal reports whether the status is absorbing: no further
// transitions occur for the batch once it is reached.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

func ParseStatusFromString(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid status %q", ErrValidation, s)
	}
	return st, nil
}

// rank orders statuses along the forward-only lifecycle.
func (s Status) rank() int {
	switch s {
	case StatusQueued:
		return 1
	case StatusProcessing:
		return 2
	case StatusCompleted, StatusFailed:
		return 3
	}
	return 0
}

// CanTransitionTo reports whether moving from s to next respects the
// monotonic lifecycle: forward only, terminal states absorbing.
func (s Status) CanTransitionTo(next Status) bool {
	if !next.IsValid() {
		return false
	}
	if s.IsTerminal() {
		return false
	}
	return next.rank() > s.rank()
}

// Priority represents the enqueue priority hint for a batch.
type Priority string

const (
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

func (p Priority) String() string { return string(p) }

func (p Priority) IsValid() bool {
	return p == PriorityNormal || p == PriorityHigh
}

func ParsePriorityFromString(s string) (Priority, error) {
	trimmed := strings.ToLower(strings.TrimSpace(s))
	if trimmed == "" {
		return PriorityNormal, nil
	}
	p := Priority(trimmed)
	if !p.IsValid() {
		return "", fmt.Errorf("%w: invalid priority %q", ErrValidation, s)
	}
	return p, nil
}

// FeedRef identifies one feed inside a refresh batch.
type FeedRef struct {
	Title     string `json:"feedTitle"`
	SourceURL string `json:"sourceUrl"`
	MediaType string `json:"mediaType,omitempty"`
}

// BatchResult carries the worker-reported outcome of a terminal batch.
type BatchResult struct {
	Success         bool            `json:"success"`
	NewEntriesCount int             `json:"newEntriesCount"`
	Entries         json.RawMessage `json:"entries,omitempty"`
	Error           string          `json:"error,omitempty"`
}

// BatchStatus is the durable status record for one refresh batch. It is
// created once at enqueue time and mutated exactly once more when the
// worker reports completion; timestamps are epoch milliseconds.
type BatchStatus struct {
	BatchID     string       `json:"batchId"`
	Status      Status       `json:"status"`
	QueuedAt    int64        `json:"queuedAt"`
	ProcessedAt *int64       `json:"processedAt,omitempty"`
	CompletedAt *int64       `json:"completedAt,omitempty"`
	Result      *BatchResult `json:"result,omitempty"`
}

// MarshalBinary implements encoding.BinaryMarshaler so the record can be
// written to the status store as JSON.
func (b BatchStatus) MarshalBinary() ([]byte, error) {
	return json.Marshal(b)
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (b *BatchStatus) UnmarshalBinary(data []byte) error {
	return json.Unmarshal(data, b)
}

// EpochMillis converts a time to the epoch-millisecond representation
// used across batch records and queue messages.
func EpochMillis(t time.Time) int64 {
	return t.UnixMilli()
}
