package domain

import (
	"testing"
	"time"
)

func TestStatusIsTerminal(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status   Status
		terminal bool
	}{
		{StatusQueued, false},
		{StatusProcessing, false},
		{StatusCompleted, true},
		{StatusFailed, true},
	}

	for _, tt := range tests {
		if got := tt.status.IsTerminal(); got != tt.terminal {
			t.Fatalf("IsTerminal(%s) = %v, want %v", tt.status, got, tt.terminal)
		}
	}
}

func TestStatusCanTransitionTo(t *testing.T) {
	t.Parallel()

	if !StatusQueued.CanTransitionTo(StatusProcessing) {
		t.Fatal("queued -> processing should be allowed")
	}
	if !StatusQueued.CanTransitionTo(StatusCompleted) {
		t.Fatal("queued -> completed should be allowed")
	}
	if !StatusProcessing.CanTransitionTo(StatusFailed) {
		t.Fatal("processing -> failed should be allowed")
	}
	if StatusCompleted.CanTransitionTo(StatusQueued) {
		t.Fatal("terminal status must be absorbing")
	}
	if StatusCompleted.CanTransitionTo(StatusFailed) {
		t.Fatal("completed -> failed must be rejected")
	}
	if StatusProcessing.CanTransitionTo(StatusQueued) {
		t.Fatal("backward transition must be rejected")
	}
	if StatusQueued.CanTransitionTo(Status("bogus")) {
		t.Fatal("invalid target status must be rejected")
	}
}

func TestParseStatusFromString(t *testing.T) {
	t.Parallel()

	status, err := ParseStatusFromString(" Completed ")
	if err != nil {
		t.Fatalf("ParseStatusFromString() error = %v", err)
	}
	if status != StatusCompleted {
		t.Fatalf("status = %s, want completed", status)
	}

	if _, err := ParseStatusFromString("done"); err == nil {
		t.Fatal("expected error for unknown status")
	}
}

func TestParsePriorityFromString(t *testing.T) {
	t.Parallel()

	priority, err := ParsePriorityFromString("")
	if err != nil {
		t.Fatalf("ParsePriorityFromString() error = %v", err)
	}
	if priority != PriorityNormal {
		t.Fatalf("priority = %s, want normal (default)", priority)
	}

	priority, err = ParsePriorityFromString("HIGH")
	if err != nil {
		t.Fatalf("ParsePriorityFromString() error = %v", err)
	}
	if priority != PriorityHigh {
		t.Fatalf("priority = %s, want high", priority)
	}

	if _, err := ParsePriorityFromString("urgent"); err == nil {
		t.Fatal("expected error for unknown priority")
	}
}

func TestBatchStatusBinaryRoundTrip(t *testing.T) {
	t.Parallel()

	processedAt := int64(1700000001000)
	completedAt := int64(1700000005000)
	original := BatchStatus{
		BatchID:     "batch_1700000000000_abc123",
		Status:      StatusCompleted,
		QueuedAt:    1700000000000,
		ProcessedAt: &processedAt,
		CompletedAt: &completedAt,
		Result: &BatchResult{
			Success:         true,
			NewEntriesCount: 5,
		},
	}

	data, err := original.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary() error = %v", err)
	}

	var decoded BatchStatus
	if err := decoded.UnmarshalBinary(data); err != nil {
		t.Fatalf("UnmarshalBinary() error = %v", err)
	}

	if decoded.BatchID != original.BatchID || decoded.Status != original.Status {
		t.Fatalf("decoded = %+v, want %+v", decoded, original)
	}
	if decoded.Result == nil || decoded.Result.NewEntriesCount != 5 {
		t.Fatalf("decoded result = %+v, want newEntriesCount 5", decoded.Result)
	}
}

func TestFeedIsStale(t *testing.T) {
	t.Parallel()

	cutoff := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)

	neverFetched := &Feed{Title: "Feed A"}
	if !neverFetched.IsStale(cutoff) {
		t.Fatal("feed with nil lastFetchedAt should be stale")
	}

	old := cutoff.Add(-time.Hour)
	stale := &Feed{Title: "Feed B", LastFetchedAt: &old}
	if !stale.IsStale(cutoff) {
		t.Fatal("feed fetched before the cutoff should be stale")
	}

	recent := cutoff.Add(time.Hour)
	fresh := &Feed{Title: "Feed C", LastFetchedAt: &recent}
	if fresh.IsStale(cutoff) {
		t.Fatal("feed fetched after the cutoff should not be stale")
	}
}
