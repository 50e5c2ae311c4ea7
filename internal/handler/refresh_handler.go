package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/feedworks/refresh-engine/internal/domain"
	"github.com/feedworks/refresh-engine/internal/observability"
	"github.com/feedworks/refresh-engine/internal/service"
)

type RefreshProducer interface {
	Enqueue(ctx context.Context, req service.RefreshRequest) (*service.EnqueueResult, error)
}

type StaleChecker interface {
	Check(ctx context.Context, titles []string) (*service.StaleCheckResult, error)
}

type CompletionReceiver interface {
	Complete(ctx context.Context, result service.CompletionResult) (*domain.BatchStatus, error)
}

type RefreshHandler struct {
	producer RefreshProducer
	checker  StaleChecker
	receiver CompletionReceiver
}

func NewRefreshHandler(producer RefreshProducer, checker StaleChecker, receiver CompletionReceiver) (*RefreshHandler, error) {
	if producer == nil {
		return nil, fmt.Errorf("producer is required")
	}
	if checker == nil {
		return nil, fmt.Errorf("stale checker is required")
	}
	if receiver == nil {
		return nil, fmt.Errorf("completion receiver is required")
	}
	return &RefreshHandler{producer: producer, checker: checker, receiver: receiver}, nil
}

func RegisterRefreshRoutes(router fiber.Router, producer RefreshProducer, checker StaleChecker, receiver CompletionReceiver) error {
	h, err := NewRefreshHandler(producer, checker, receiver)
	if err != nil {
		return err
	}

	router.Post("/refresh", h.EnqueueRefresh)
	router.Post("/refresh/stale", h.CheckStale)
	router.Post("/refresh/complete", h.CompleteRefresh)

	return nil
}

type refreshRequest struct {
	UserID          string   `json:"userId"`
	PostTitles      []string `json:"postTitles"`
	FeedURLs        []string `json:"feedUrls"`
	MediaTypes      []string `json:"mediaTypes"`
	ExistingGUIDs   []string `json:"existingGuids"`
	NewestEntryDate string   `json:"newestEntryDate"`
	Priority        string   `json:"priority"`
}

type refreshResponse struct {
	Success                 bool   `json:"success"`
	BatchID                 string `json:"batchId"`
	Status                  string `json:"status"`
	QueuedAt                int64  `json:"queuedAt"`
	EstimatedProcessingTime string `json:"estimatedProcessingTime"`
}

type staleCheckRequest struct {
	PostTitles []string `json:"postTitles"`
}

type staleCheckResponse struct {
	Success         bool     `json:"success"`
	StaleFeedTitles []string `json:"staleFeedTitles"`
	TotalChecked    int      `json:"totalChecked"`
	StaleCount      int      `json:"staleCount"`
}

type completionRequest struct {
	Result completionPayload `json:"result"`
}

type completionPayload struct {
	BatchID          string          `json:"batchId"`
	Success          bool            `json:"success"`
	NewEntriesCount  int             `json:"newEntriesCount"`
	Entries          json.RawMessage `json:"entries,omitempty"`
	Error            string          `json:"error,omitempty"`
	ProcessingTimeMs int64           `json:"processingTimeMs"`
}

type completionResponse struct {
	Success          bool   `json:"success"`
	BatchID          string `json:"batchId"`
	Status           string `json:"status"`
	ProcessedEntries int    `json:"processedEntries"`
	CompletedAt      *int64 `json:"completedAt,omitempty"`
}

func (h *RefreshHandler) EnqueueRefresh(c *fiber.Ctx) error {
	var req refreshRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	priority, err := domain.ParsePriorityFromString(req.Priority)
	if err != nil {
		return toHTTPError(fmt.Errorf("%w: %s", domain.ErrValidation, err))
	}

	ctx := observability.WithCorrelationID(c.Context(), requestCorrelationID(c))

	result, err := h.producer.Enqueue(ctx, service.RefreshRequest{
		UserID:          strings.TrimSpace(req.UserID),
		PostTitles:      req.PostTitles,
		FeedURLs:        req.FeedURLs,
		MediaTypes:      req.MediaTypes,
		ExistingGUIDs:   req.ExistingGUIDs,
		NewestEntryDate: req.NewestEntryDate,
		Priority:        priority,
	})
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(refreshResponse{
		Success:                 true,
		BatchID:                 result.BatchID,
		Status:                  result.Status.String(),
		QueuedAt:                result.QueuedAt,
		EstimatedProcessingTime: result.EstimatedProcessingTime,
	})
}

func (h *RefreshHandler) CheckStale(c *fiber.Ctx) error {
	var req staleCheckRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	result, err := h.checker.Check(c.Context(), req.PostTitles)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(staleCheckResponse{
		Success:         true,
		StaleFeedTitles: result.StaleFeedTitles,
		TotalChecked:    result.TotalChecked,
		StaleCount:      result.StaleCount,
	})
}

func (h *RefreshHandler) CompleteRefresh(c *fiber.Ctx) error {
	var req completionRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	ctx := observability.WithCorrelationID(c.Context(), requestCorrelationID(c))

	record, err := h.receiver.Complete(ctx, service.CompletionResult{
		BatchID:          strings.TrimSpace(req.Result.BatchID),
		Success:          req.Result.Success,
		NewEntriesCount:  req.Result.NewEntriesCount,
		Entries:          req.Result.Entries,
		Error:            req.Result.Error,
		ProcessingTimeMs: req.Result.ProcessingTimeMs,
	})
	if err != nil {
		return toHTTPError(err)
	}

	processedEntries := 0
	if record.Result != nil {
		processedEntries = record.Result.NewEntriesCount
	}

	return c.Status(fiber.StatusOK).JSON(completionResponse{
		Success:          true,
		BatchID:          record.BatchID,
		Status:           record.Status.String(),
		ProcessedEntries: processedEntries,
		CompletedAt:      record.CompletedAt,
	})
}

func requestCorrelationID(c *fiber.Ctx) string {
	if value := strings.TrimSpace(c.Get(fiber.HeaderXRequestID)); value != "" {
		return value
	}
	return uuid.NewString()
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrConflict):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrRateLimited):
		return fiber.NewError(fiber.StatusTooManyRequests, err.Error())
	case errors.Is(err, domain.ErrUnavailable):
		return fiber.NewError(fiber.StatusServiceUnavailable, err.Error())
	default:
		return err
	}
}
