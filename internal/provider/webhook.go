package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/feedworks/refresh-engine/internal/domain"
)

const defaultWebhookTimeout = 10 * time.Second

type callbackPayload struct {
	BatchID         string `json:"batchId"`
	Status          string `json:"status"`
	Success         bool   `json:"success"`
	NewEntriesCount int    `json:"newEntriesCount"`
	Error           string `json:"error,omitempty"`
	QueuedAt        int64  `json:"queuedAt"`
	CompletedAt     *int64 `json:"completedAt,omitempty"`
}

// CompletionWebhook POSTs terminal batch results to a configured
// endpoint, so downstream systems can react without polling this service.
type CompletionWebhook struct {
	client   *resty.Client
	endpoint string
}

func NewCompletionWebhook(endpoint string) (*CompletionWebhook, error) {
	client := resty.New()
	client.SetTimeout(defaultWebhookTimeout)
	client.SetRetryCount(0)

	return NewCompletionWebhookWithClient(endpoint, client)
}

func NewCompletionWebhookWithClient(endpoint string, client *resty.Client) (*CompletionWebhook, error) {
	trimmedEndpoint := strings.TrimSpace(endpoint)
	if trimmedEndpoint == "" {
		return nil, fmt.Errorf("webhook endpoint is required")
	}
	if _, err := url.ParseRequestURI(trimmedEndpoint); err != nil {
		return nil, fmt.Errorf("invalid webhook endpoint: %w", err)
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}

	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultWebhookTimeout)
	}
	client.SetRetryCount(0)

	return &CompletionWebhook{
		client:   client,
		endpoint: trimmedEndpoint,
	}, nil
}

func (w *CompletionWebhook) NotifyCompletion(ctx context.Context, record domain.BatchStatus) error {
	if w == nil || w.client == nil {
		return fmt.Errorf("completion webhook is not initialized")
	}
	if !record.Status.IsTerminal() {
		return fmt.Errorf("batch %s is not terminal", record.BatchID)
	}

	payload := callbackPayload{
		BatchID:     record.BatchID,
		Status:      record.Status.String(),
		QueuedAt:    record.QueuedAt,
		CompletedAt: record.CompletedAt,
	}
	if record.Result != nil {
		payload.Success = record.Result.Success
		payload.NewEntriesCount = record.Result.NewEntriesCount
		payload.Error = record.Result.Error
	}

	response, err := w.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(payload).
		Post(w.endpoint)
	if err != nil {
		return &CallbackError{
			Message:   "callback request failed",
			Transient: !errors.Is(err, context.Canceled),
			Cause:     err,
		}
	}
	if response == nil {
		return &CallbackError{
			Message:   "callback returned empty response",
			Transient: true,
		}
	}

	statusCode := response.StatusCode()
	if statusCode >= http.StatusOK && statusCode < http.StatusMultipleChoices {
		return nil
	}

	return &CallbackError{
		StatusCode: statusCode,
		Message:    callbackErrorMessage(statusCode, strings.TrimSpace(response.String())),
		Transient:  isTransientHTTPStatus(statusCode),
	}
}

func isTransientHTTPStatus(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests || (statusCode >= http.StatusInternalServerError && statusCode <= 599)
}

func callbackErrorMessage(statusCode int, body string) string {
	base := fmt.Sprintf("callback returned status %d", statusCode)
	if body == "" {
		return base
	}
	return fmt.Sprintf("%s: %s", base, body)
}
