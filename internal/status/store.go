// Package status holds the durable batch status ledger. The store is the
// source of truth for a batch's state; the coordination layer is only a
// fan-out cache on top of it.
package status

import (
	"context"
	"time"

	"github.com/feedworks/refresh-engine/internal/domain"
)

// DefaultTTL is how long a batch record survives after its last write.
// Records are never deleted explicitly; expiry is the only reaper.
const DefaultTTL = time.Hour

// Store is a key-value ledger of batch status records with per-key TTL.
// Get returns domain.ErrNotFound for unknown or expired batch ids.
type Store interface {
	Get(ctx context.Context, batchID string) (*domain.BatchStatus, error)
	Put(ctx context.Context, record *domain.BatchStatus, ttl time.Duration) error
}
