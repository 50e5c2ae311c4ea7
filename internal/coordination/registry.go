package coordination

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/feedworks/refresh-engine/internal/domain"
	"github.com/feedworks/refresh-engine/internal/status"
)

const defaultIdleTTL = 5 * time.Minute

// Subscription is one stream subscriber's handle on a batch actor.
// Cancel is idempotent and releases the fan-out slot.
type Subscription struct {
	batchID string
	events  chan Event
	owner   *actor
	once    sync.Once
}

func (s *Subscription) Events() <-chan Event { return s.events }

func (s *Subscription) Cancel() {
	s.once.Do(func() {
		s.owner.send(actorCommand{kind: cmdUnsubscribe, subscriber: s.events})
	})
}

// Registry routes each batch id to its single actor instance. Actors are
// created lazily on first access, seeded from the status store, and
// removed once they deliver a terminal event and their subscribers drain
// (or after idling with no subscribers).
type Registry struct {
	store   status.Store
	logger  *zap.Logger
	idleTTL time.Duration
	now     func() time.Time

	mu     sync.Mutex
	actors map[string]*actor
}

func NewRegistry(store status.Store, idleTTL time.Duration, logger *zap.Logger) (*Registry, error) {
	if store == nil {
		return nil, fmt.Errorf("status store is required")
	}
	if idleTTL <= 0 {
		idleTTL = defaultIdleTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Registry{
		store:   store,
		logger:  logger,
		idleTTL: idleTTL,
		now:     time.Now,
		actors:  make(map[string]*actor),
	}, nil
}

// Subscribe attaches a new stream subscriber to the batch actor. The
// subscriber's first events are `connected` followed by the current known
// status; if that status is already terminal the event channel closes
// right after.
func (r *Registry) Subscribe(ctx context.Context, batchID string) (*Subscription, error) {
	if strings.TrimSpace(batchID) == "" {
		return nil, fmt.Errorf("%w: batch id is required", domain.ErrValidation)
	}

	// The actor can exit between lookup and send; retry against a fresh
	// instance once before giving up.
	for attempt := 0; attempt < 3; attempt++ {
		a, err := r.actorFor(ctx, batchID)
		if err != nil {
			return nil, err
		}

		events := make(chan Event, subscriberBuffer)
		if a.send(actorCommand{kind: cmdSubscribe, subscriber: events}) {
			return &Subscription{batchID: batchID, events: events, owner: a}, nil
		}
	}

	return nil, fmt.Errorf("%w: batch %s actor unavailable", domain.ErrUnavailable, batchID)
}

// Notify forwards a status transition to the batch actor if one is live.
// With no live actor there are no subscribers to fan out to; the status
// store already holds the durable record, so dropping the notify is
// observably equivalent.
func (r *Registry) Notify(record *domain.BatchStatus) {
	if record == nil || record.BatchID == "" {
		return
	}

	r.mu.Lock()
	a := r.actors[record.BatchID]
	r.mu.Unlock()

	if a == nil {
		return
	}

	if !a.send(actorCommand{kind: cmdNotify, record: record}) {
		r.logger.Debug("notify raced actor shutdown",
			zap.String("batchId", record.BatchID),
		)
	}
}

// Len reports the number of live actors.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.actors)
}

func (r *Registry) actorFor(ctx context.Context, batchID string) (*actor, error) {
	r.mu.Lock()
	if a, ok := r.actors[batchID]; ok {
		r.mu.Unlock()
		return a, nil
	}

	// Register before reading the store: a completion that lands during
	// the read must find a live actor to notify, or it would be dropped
	// and the actor seeded with a stale snapshot.
	a := newActor(batchID)
	r.actors[batchID] = a
	placeholder := domain.BatchStatus{
		BatchID:  batchID,
		Status:   domain.StatusQueued,
		QueuedAt: domain.EpochMillis(r.now()),
	}
	go a.run(placeholder, r.idleTTL, func() { r.remove(batchID, a) })
	r.mu.Unlock()

	snapshot, err := r.snapshot(ctx, batchID)
	if err != nil {
		// The placeholder actor stays registered until a retry seeds it
		// or the idle reaper collects it.
		return nil, err
	}

	// The transition guard keeps the seed from regressing the state if a
	// notify overtook the store read.
	a.send(actorCommand{kind: cmdSeed, record: snapshot})

	return a, nil
}

func (r *Registry) snapshot(ctx context.Context, batchID string) (*domain.BatchStatus, error) {
	record, err := r.store.Get(ctx, batchID)
	if errors.Is(err, domain.ErrNotFound) {
		// Never-enqueued or expired batch: present a queued placeholder
		// so the stream protocol stays uniform.
		return &domain.BatchStatus{
			BatchID:  batchID,
			Status:   domain.StatusQueued,
			QueuedAt: domain.EpochMillis(r.now()),
		}, nil
	}
	if err != nil {
		return nil, err
	}
	return record, nil
}

func (r *Registry) remove(batchID string, a *actor) {
	r.mu.Lock()
	if current, ok := r.actors[batchID]; ok && current == a {
		delete(r.actors, batchID)
	}
	r.mu.Unlock()
}
