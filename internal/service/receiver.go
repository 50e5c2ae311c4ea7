package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/feedworks/refresh-engine/internal/domain"
	"github.com/feedworks/refresh-engine/internal/observability"
	"github.com/feedworks/refresh-engine/internal/provider"
	"github.com/feedworks/refresh-engine/internal/status"
)

// CompletionResult is the payload the worker posts back once it has
// finished (or given up on) a batch.
type CompletionResult struct {
	BatchID          string
	Success          bool
	NewEntriesCount  int
	Entries          json.RawMessage
	Error            string
	ProcessingTimeMs int64
}

// notifier fans a status change out to any live stream subscribers.
type notifier interface {
	Notify(record *domain.BatchStatus)
}

// historyRecorder archives terminal outcomes; failures here never block
// the completion path.
type historyRecorder interface {
	Record(ctx context.Context, record *domain.BatchStatus) error
}

type completionCallback interface {
	NotifyCompletion(ctx context.Context, record domain.BatchStatus) error
}

// Receiver applies worker completion reports to the status store and
// pushes the terminal state to subscribers. Completions are idempotent:
// a report for an already-terminal batch is acknowledged without effect.
type Receiver struct {
	store     status.Store
	registry  notifier
	history   historyRecorder
	callback  completionCallback
	logger    *zap.Logger
	metrics   *observability.Metrics
	statusTTL time.Duration
	now       func() time.Time
}

func NewReceiver(
	store status.Store,
	registry notifier,
	history historyRecorder,
	callback completionCallback,
	statusTTL time.Duration,
	logger *zap.Logger,
	metrics *observability.Metrics,
) (*Receiver, error) {
	if store == nil {
		return nil, fmt.Errorf("status store is required")
	}
	if statusTTL <= 0 {
		statusTTL = status.DefaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Receiver{
		store:     store,
		registry:  registry,
		history:   history,
		callback:  callback,
		logger:    logger,
		metrics:   metrics,
		statusTTL: statusTTL,
		now:       time.Now,
	}, nil
}

func (r *Receiver) Complete(ctx context.Context, result CompletionResult) (*domain.BatchStatus, error) {
	if strings.TrimSpace(result.BatchID) == "" {
		return nil, fmt.Errorf("%w: batchId is required", domain.ErrValidation)
	}
	if !result.Success && strings.TrimSpace(result.Error) == "" {
		return nil, fmt.Errorf("%w: a failed completion must carry an error message", domain.ErrValidation)
	}

	logger := observability.WithContextLogger(r.logger, ctx).With(observability.BatchID(result.BatchID))

	existing, err := r.store.Get(ctx, result.BatchID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("%w: status store unreachable", domain.ErrUnavailable)
	}

	if existing != nil && existing.Status.IsTerminal() {
		r.metrics.IncDuplicateCompletion()
		logger.Info("duplicate completion ignored", zap.String("status", existing.Status.String()))
		return existing, nil
	}

	completedAt := domain.EpochMillis(r.now())
	processedAt := completedAt
	if result.ProcessingTimeMs > 0 {
		processedAt = completedAt - result.ProcessingTimeMs
	}

	queuedAt := completedAt
	if existing != nil {
		queuedAt = existing.QueuedAt
	} else {
		// The queued record can expire (or be lost) before the worker
		// reports back. Late subscribers still deserve the result, so the
		// record is resurrected with a synthetic queue time.
		logger.Warn("completion for unknown batch, resurrecting status record")
	}

	final := domain.StatusCompleted
	if !result.Success {
		final = domain.StatusFailed
	}

	record := &domain.BatchStatus{
		BatchID:     result.BatchID,
		Status:      final,
		QueuedAt:    queuedAt,
		ProcessedAt: &processedAt,
		CompletedAt: &completedAt,
		Result: &domain.BatchResult{
			Success:         result.Success,
			NewEntriesCount: result.NewEntriesCount,
			Entries:         result.Entries,
			Error:           result.Error,
		},
	}

	if err := r.store.Put(ctx, record, r.statusTTL); err != nil {
		logger.Error("failed to persist terminal batch status", zap.Error(err))
		return nil, fmt.Errorf("%w: status store unreachable", domain.ErrUnavailable)
	}

	if r.registry != nil {
		r.registry.Notify(record)
	}

	if r.history != nil {
		if err := r.history.Record(ctx, record); err != nil {
			logger.Warn("failed to archive batch outcome", zap.Error(err))
		}
	}

	if r.callback != nil {
		if err := r.callback.NotifyCompletion(ctx, *record); err != nil {
			if provider.IsTransient(err) {
				logger.Warn("transient completion callback failure", zap.Error(err))
			} else {
				logger.Error("completion callback failed", zap.Error(err))
			}
		}
	}

	r.metrics.IncCompletion(final.String())
	r.metrics.ObserveBatchTurnaround(time.Duration(completedAt-queuedAt) * time.Millisecond)
	logger.Info("batch completed",
		zap.String("status", final.String()),
		zap.Int("newEntries", result.NewEntriesCount),
		zap.Int64("processingTimeMs", result.ProcessingTimeMs),
	)

	return record, nil
}
