package coordination

import (
	"context"
	"testing"
	"time"

	"github.com/feedworks/refresh-engine/internal/domain"
	"github.com/feedworks/refresh-engine/internal/status"
)

const testWait = 2 * time.Second

func queuedRecord(batchID string) *domain.BatchStatus {
	return &domain.BatchStatus{
		BatchID:  batchID,
		Status:   domain.StatusQueued,
		QueuedAt: 1700000000000,
	}
}

func completedRecord(batchID string, newEntries int) *domain.BatchStatus {
	completedAt := int64(1700000005000)
	return &domain.BatchStatus{
		BatchID:     batchID,
		Status:      domain.StatusCompleted,
		QueuedAt:    1700000000000,
		CompletedAt: &completedAt,
		Result:      &domain.BatchResult{Success: true, NewEntriesCount: newEntries},
	}
}

func newTestRegistry(t *testing.T, records ...*domain.BatchStatus) *Registry {
	t.Helper()

	store := status.NewMemoryStore()
	for _, record := range records {
		if err := store.Put(context.Background(), record, time.Minute); err != nil {
			t.Fatalf("seed store: %v", err)
		}
	}

	registry, err := NewRegistry(store, time.Minute, nil)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	return registry
}

func nextEvent(t *testing.T, sub *Subscription) Event {
	t.Helper()

	select {
	case event, ok := <-sub.Events():
		if !ok {
			t.Fatal("event channel closed unexpectedly")
		}
		return event
	case <-time.After(testWait):
		t.Fatal("timed out waiting for event")
	}
	return Event{}
}

func expectClosed(t *testing.T, sub *Subscription) {
	t.Helper()

	select {
	case event, ok := <-sub.Events():
		if ok {
			t.Fatalf("expected closed channel, got event %+v", event)
		}
	case <-time.After(testWait):
		t.Fatal("timed out waiting for channel close")
	}
}

func TestSubscribeReplaysCurrentState(t *testing.T) {
	t.Parallel()

	registry := newTestRegistry(t, queuedRecord("b1"))

	sub, err := registry.Subscribe(context.Background(), "b1")
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	defer sub.Cancel()

	if event := nextEvent(t, sub); event.Type != EventConnected {
		t.Fatalf("first event type = %s, want connected", event.Type)
	}
	event := nextEvent(t, sub)
	if event.Type != EventStatus || event.Status != domain.StatusQueued {
		t.Fatalf("second event = %+v, want queued status", event)
	}
}

func TestNotifyDeliversTerminalAndCloses(t *testing.T) {
	t.Parallel()

	registry := newTestRegistry(t, queuedRecord("b1"))

	sub, err := registry.Subscribe(context.Background(), "b1")
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	nextEvent(t, sub) // connected
	nextEvent(t, sub) // queued

	registry.Notify(completedRecord("b1", 5))

	event := nextEvent(t, sub)
	if event.Status != domain.StatusCompleted {
		t.Fatalf("terminal event status = %s, want completed", event.Status)
	}
	if event.Result == nil || event.Result.NewEntriesCount != 5 {
		t.Fatalf("terminal event result = %+v, want newEntriesCount 5", event.Result)
	}
	expectClosed(t, sub)
}

func TestDuplicateNotifyDeliversOnce(t *testing.T) {
	t.Parallel()

	registry := newTestRegistry(t, queuedRecord("b1"))

	sub, err := registry.Subscribe(context.Background(), "b1")
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	nextEvent(t, sub)
	nextEvent(t, sub)

	registry.Notify(completedRecord("b1", 5))
	registry.Notify(completedRecord("b1", 5))

	event := nextEvent(t, sub)
	if event.Status != domain.StatusCompleted {
		t.Fatalf("event status = %s, want completed", event.Status)
	}
	// The channel must close with no second terminal event queued.
	expectClosed(t, sub)
}

func TestSubscribeAfterTerminalReceivesStatusThenCloses(t *testing.T) {
	t.Parallel()

	registry := newTestRegistry(t, completedRecord("b1", 3))

	sub, err := registry.Subscribe(context.Background(), "b1")
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	if event := nextEvent(t, sub); event.Type != EventConnected {
		t.Fatalf("first event type = %s, want connected", event.Type)
	}
	event := nextEvent(t, sub)
	if event.Status != domain.StatusCompleted {
		t.Fatalf("event status = %s, want completed", event.Status)
	}
	expectClosed(t, sub)
}

func TestSubscribeUnknownBatchSynthesizesQueued(t *testing.T) {
	t.Parallel()

	registry := newTestRegistry(t)

	sub, err := registry.Subscribe(context.Background(), "never-enqueued")
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	defer sub.Cancel()

	nextEvent(t, sub) // connected
	event := nextEvent(t, sub)
	if event.Status != domain.StatusQueued {
		t.Fatalf("placeholder status = %s, want queued", event.Status)
	}
}

func TestCancelRemovesSubscriber(t *testing.T) {
	t.Parallel()

	registry := newTestRegistry(t, queuedRecord("b1"))

	sub, err := registry.Subscribe(context.Background(), "b1")
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	nextEvent(t, sub)
	nextEvent(t, sub)

	sub.Cancel()
	expectClosed(t, sub)

	// Notify after cancel must not panic or deliver.
	registry.Notify(completedRecord("b1", 1))
}

func TestRegistryRemovesActorAfterTerminalDrain(t *testing.T) {
	t.Parallel()

	registry := newTestRegistry(t, queuedRecord("b1"))

	sub, err := registry.Subscribe(context.Background(), "b1")
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	nextEvent(t, sub)
	nextEvent(t, sub)

	registry.Notify(completedRecord("b1", 2))
	nextEvent(t, sub)
	expectClosed(t, sub)

	deadline := time.Now().Add(testWait)
	for registry.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("registry len = %d, want 0 after terminal drain", registry.Len())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestConcurrentSubscribersAllNotified(t *testing.T) {
	t.Parallel()

	registry := newTestRegistry(t, queuedRecord("b1"))

	const subscribers = 8
	subs := make([]*Subscription, 0, subscribers)
	for i := 0; i < subscribers; i++ {
		sub, err := registry.Subscribe(context.Background(), "b1")
		if err != nil {
			t.Fatalf("Subscribe() #%d error = %v", i, err)
		}
		nextEvent(t, sub)
		nextEvent(t, sub)
		subs = append(subs, sub)
	}

	if registry.Len() != 1 {
		t.Fatalf("registry len = %d, want 1 actor for one batch id", registry.Len())
	}

	registry.Notify(completedRecord("b1", 7))

	for i, sub := range subs {
		event := nextEvent(t, sub)
		if event.Status != domain.StatusCompleted {
			t.Fatalf("subscriber %d terminal status = %s, want completed", i, event.Status)
		}
		expectClosed(t, sub)
	}
}

// staleReadStore returns the record as it was before onGet ran, modelling a
// completion that lands after the snapshot read but before it is applied.
type staleReadStore struct {
	inner status.Store
	onGet func()
}

func (s *staleReadStore) Get(ctx context.Context, batchID string) (*domain.BatchStatus, error) {
	record, err := s.inner.Get(ctx, batchID)
	if hook := s.onGet; hook != nil {
		s.onGet = nil
		hook()
	}
	return record, err
}

func (s *staleReadStore) Put(ctx context.Context, record *domain.BatchStatus, ttl time.Duration) error {
	return s.inner.Put(ctx, record, ttl)
}

func TestSubscribeDuringCompletionDeliversTerminal(t *testing.T) {
	t.Parallel()

	inner := status.NewMemoryStore()
	if err := inner.Put(context.Background(), queuedRecord("b1"), time.Minute); err != nil {
		t.Fatalf("seed store: %v", err)
	}

	store := &staleReadStore{inner: inner}
	registry, err := NewRegistry(store, time.Minute, nil)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}

	// The completion writer updates the durable record first, then notifies.
	store.onGet = func() {
		if err := inner.Put(context.Background(), completedRecord("b1", 5), time.Minute); err != nil {
			t.Errorf("store terminal record: %v", err)
		}
		registry.Notify(completedRecord("b1", 5))
	}

	sub, err := registry.Subscribe(context.Background(), "b1")
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	if event := nextEvent(t, sub); event.Type != EventConnected {
		t.Fatalf("first event type = %s, want connected", event.Type)
	}
	event := nextEvent(t, sub)
	if event.Status != domain.StatusCompleted {
		t.Fatalf("event status = %s, want completed", event.Status)
	}
	if event.Result == nil || event.Result.NewEntriesCount != 5 {
		t.Fatalf("event result = %+v, want newEntriesCount 5", event.Result)
	}
	expectClosed(t, sub)
}

func TestNotifyWithoutSubscribersIsNoOp(t *testing.T) {
	t.Parallel()

	registry := newTestRegistry(t, queuedRecord("b1"))

	// No actor exists yet; the durable record in the store is the source
	// of truth for later subscribers.
	registry.Notify(completedRecord("b1", 1))

	if registry.Len() != 0 {
		t.Fatalf("registry len = %d, want 0", registry.Len())
	}
}
