package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/feedworks/refresh-engine/internal/coordination"
	"github.com/feedworks/refresh-engine/internal/domain"
	"github.com/feedworks/refresh-engine/internal/observability"
	"github.com/feedworks/refresh-engine/internal/status"
)

const heartbeatInterval = 15 * time.Second

// StreamConfig selects between the push path and the polling fallback and
// bounds how long a single stream may stay open.
type StreamConfig struct {
	PushEnabled   bool
	PollInterval  time.Duration
	MaxPolls      int
	StreamTimeout time.Duration
}

// Subscriber is the push-side coordination surface the handler needs.
type Subscriber interface {
	Subscribe(ctx context.Context, batchID string) (*coordination.Subscription, error)
}

// StreamHandler serves batch progress over server-sent events. When push
// is enabled it rides the coordination registry; otherwise it polls the
// status store on a fixed cadence. Both modes emit the same event frames,
// so clients never need to know which side they landed on.
type StreamHandler struct {
	registry Subscriber
	store    status.Store
	cfg      StreamConfig
	logger   *zap.Logger
	metrics  *observability.Metrics
}

func NewStreamHandler(registry Subscriber, store status.Store, cfg StreamConfig, logger *zap.Logger, metrics *observability.Metrics) (*StreamHandler, error) {
	if cfg.PushEnabled && registry == nil {
		return nil, fmt.Errorf("registry is required when push is enabled")
	}
	if store == nil {
		return nil, fmt.Errorf("status store is required")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.MaxPolls <= 0 {
		cfg.MaxPolls = 120
	}
	if cfg.StreamTimeout <= 0 {
		cfg.StreamTimeout = 4 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &StreamHandler{
		registry: registry,
		store:    store,
		cfg:      cfg,
		logger:   logger,
		metrics:  metrics,
	}, nil
}

func RegisterStreamRoutes(router fiber.Router, registry Subscriber, store status.Store, cfg StreamConfig, logger *zap.Logger, metrics *observability.Metrics) error {
	h, err := NewStreamHandler(registry, store, cfg, logger, metrics)
	if err != nil {
		return err
	}

	router.Get("/refresh/:batchId/stream", h.Stream)

	return nil
}

func (h *StreamHandler) Stream(c *fiber.Ctx) error {
	batchID := strings.TrimSpace(c.Params("batchId"))
	if batchID == "" {
		return toHTTPError(fmt.Errorf("%w: batchId is required", domain.ErrValidation))
	}

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	if h.cfg.PushEnabled {
		sub, err := h.registry.Subscribe(c.Context(), batchID)
		if err != nil {
			return toHTTPError(err)
		}

		// The fiber context is recycled once this handler returns; the
		// stream writer must not touch it.
		c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
			defer sub.Cancel()
			h.pushLoop(w, batchID, sub)
		}))
		return nil
	}

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		h.pollLoop(w, batchID)
	}))
	return nil
}

func (h *StreamHandler) pushLoop(w *bufio.Writer, batchID string, sub *coordination.Subscription) {
	h.metrics.IncStreamSubscribers("push")
	defer h.metrics.DecStreamSubscribers("push")

	logger := h.logger.With(observability.BatchID(batchID))

	timeout := time.NewTimer(h.cfg.StreamTimeout)
	defer timeout.Stop()
	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case event, ok := <-sub.Events():
			if !ok {
				// Batch reached a terminal state and the actor closed us out.
				return
			}
			if err := writeEvent(w, event); err != nil {
				logger.Debug("stream client disconnected", zap.Error(err))
				return
			}
		case <-heartbeat.C:
			if err := writeHeartbeat(w); err != nil {
				logger.Debug("stream client disconnected", zap.Error(err))
				return
			}
		case <-timeout.C:
			_ = writeEvent(w, coordination.TimeoutEvent(batchID))
			logger.Debug("stream timed out before completion")
			return
		}
	}
}

func (h *StreamHandler) pollLoop(w *bufio.Writer, batchID string) {
	h.metrics.IncStreamSubscribers("poll")
	defer h.metrics.DecStreamSubscribers("poll")

	logger := h.logger.With(observability.BatchID(batchID))

	ctx, cancel := context.WithTimeout(context.Background(), h.cfg.StreamTimeout)
	defer cancel()

	if err := writeEvent(w, coordination.ConnectedEvent(batchID)); err != nil {
		return
	}

	var lastStatus domain.Status
	for poll := 0; poll < h.cfg.MaxPolls; poll++ {
		record, err := h.snapshot(ctx, batchID)
		if err != nil {
			logger.Warn("status snapshot failed mid stream", zap.Error(err))
			return
		}
		h.metrics.IncStreamPoll()

		if record.Status != lastStatus {
			if err := writeEvent(w, coordination.StatusEvent(record)); err != nil {
				logger.Debug("stream client disconnected", zap.Error(err))
				return
			}
			lastStatus = record.Status
		} else if err := writeHeartbeat(w); err != nil {
			logger.Debug("stream client disconnected", zap.Error(err))
			return
		}

		if record.Status.IsTerminal() {
			return
		}

		select {
		case <-ctx.Done():
			_ = writeEvent(w, coordination.TimeoutEvent(batchID))
			return
		case <-time.After(h.cfg.PollInterval):
		}
	}

	_ = writeEvent(w, coordination.TimeoutEvent(batchID))
	logger.Debug("stream exhausted poll budget before completion")
}

// snapshot mirrors the registry's seeding rule: a batch id the store has
// never seen streams as a queued placeholder rather than a 404, since the
// queued record may simply not have landed yet.
func (h *StreamHandler) snapshot(ctx context.Context, batchID string) (*domain.BatchStatus, error) {
	record, err := h.store.Get(ctx, batchID)
	if err == nil {
		return record, nil
	}
	if errors.Is(err, domain.ErrNotFound) {
		return &domain.BatchStatus{
			BatchID:  batchID,
			Status:   domain.StatusQueued,
			QueuedAt: domain.EpochMillis(time.Now()),
		}, nil
	}
	return nil, err
}

func writeEvent(w *bufio.Writer, event coordination.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
		return err
	}
	return w.Flush()
}

// writeHeartbeat emits an SSE comment frame. Clients ignore it; its only
// job is to surface a dead connection as a flush error.
func writeHeartbeat(w *bufio.Writer) error {
	if _, err := fmt.Fprint(w, ": heartbeat\n\n"); err != nil {
		return err
	}
	return w.Flush()
}
