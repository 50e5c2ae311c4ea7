package status

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/feedworks/refresh-engine/internal/domain"
)

const keyPrefix = "refresh:batch:"

var _ Store = (*RedisStore)(nil)

// RedisStore keeps batch records as JSON values under a namespaced key
// with a per-key TTL.
type RedisStore struct {
	client *goredis.Client
}

func NewRedisStore(client *goredis.Client) (*RedisStore, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	return &RedisStore{client: client}, nil
}

func recordKey(batchID string) string {
	return keyPrefix + batchID
}

func (s *RedisStore) Get(ctx context.Context, batchID string) (*domain.BatchStatus, error) {
	if strings.TrimSpace(batchID) == "" {
		return nil, fmt.Errorf("%w: batch id is required", domain.ErrValidation)
	}

	data, err := s.client.Get(ctx, recordKey(batchID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, fmt.Errorf("%w: batch %s", domain.ErrNotFound, batchID)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: status store read failed: %v", domain.ErrUnavailable, err)
	}

	var record domain.BatchStatus
	if err := record.UnmarshalBinary(data); err != nil {
		return nil, fmt.Errorf("failed to decode batch record %s: %w", batchID, err)
	}

	return &record, nil
}

func (s *RedisStore) Put(ctx context.Context, record *domain.BatchStatus, ttl time.Duration) error {
	if record == nil || strings.TrimSpace(record.BatchID) == "" {
		return fmt.Errorf("%w: batch record with id is required", domain.ErrValidation)
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	if err := s.client.Set(ctx, recordKey(record.BatchID), *record, ttl).Err(); err != nil {
		return fmt.Errorf("%w: status store write failed: %v", domain.ErrUnavailable, err)
	}

	return nil
}
