package status

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/feedworks/refresh-engine/internal/domain"
)

var _ Store = (*MemoryStore)(nil)

type memoryEntry struct {
	record    domain.BatchStatus
	expiresAt time.Time
}

// MemoryStore is the in-process Store implementation used by tests and
// single-node development runs. Expired entries are dropped lazily on read.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (s *MemoryStore) Get(ctx context.Context, batchID string) (*domain.BatchStatus, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(batchID) == "" {
		return nil, fmt.Errorf("%w: batch id is required", domain.ErrValidation)
	}

	s.mu.RLock()
	entry, ok := s.entries[batchID]
	s.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: batch %s", domain.ErrNotFound, batchID)
	}
	if s.now().After(entry.expiresAt) {
		s.mu.Lock()
		// A Put may have refreshed the key between the locks; only drop
		// the entry if it is still the expired one we observed.
		current, live := s.entries[batchID]
		if live && current.expiresAt.Equal(entry.expiresAt) {
			delete(s.entries, batchID)
			live = false
		}
		s.mu.Unlock()

		if !live || s.now().After(current.expiresAt) {
			return nil, fmt.Errorf("%w: batch %s", domain.ErrNotFound, batchID)
		}
		record := current.record
		return &record, nil
	}

	record := entry.record
	return &record, nil
}

func (s *MemoryStore) Put(ctx context.Context, record *domain.BatchStatus, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if record == nil || strings.TrimSpace(record.BatchID) == "" {
		return fmt.Errorf("%w: batch record with id is required", domain.ErrValidation)
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	s.mu.Lock()
	s.entries[record.BatchID] = memoryEntry{
		record:    *record,
		expiresAt: s.now().Add(ttl),
	}
	s.mu.Unlock()

	return nil
}
