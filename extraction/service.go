package extraction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/satheeshds/invoicedesk/apperr"
	"github.com/satheeshds/invoicedesk/models"
	"golang.org/x/time/rate"
)

// ServiceConfig bounds calls to the extraction capability.
type ServiceConfig struct {
	Timeout    time.Duration // per attempt, defaults to 60s
	MaxRetries int           // retries after the first attempt
	RPS        float64       // 0 means unlimited
	Backoff    time.Duration // initial retry delay, defaults to 1s
}

// Service wraps a Client with rate limiting, per-attempt timeouts, retries
// on transient service failures, and response parsing.
type Service struct {
	client  Client
	limiter *rate.Limiter
	cfg     ServiceConfig
	log     *slog.Logger
}

// NewService returns a Service over client.
func NewService(client Client, cfg ServiceConfig) *Service {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = time.Second
	}
	limit := rate.Inf
	if cfg.RPS > 0 {
		limit = rate.Limit(cfg.RPS)
	}
	return &Service{
		client:  client,
		limiter: rate.NewLimiter(limit, 1),
		cfg:     cfg,
		log:     slog.With("component", "extraction"),
	}
}

// ExtractFields returns the invoice fields found in image. Transient service
// failures are retried with exponential backoff. Service failures are
// reported as extraction_service;
// an undecodable reply is not retried and is reported as extraction_parse.
func (s *Service) ExtractFields(ctx context.Context, image []byte, mimeType string) (models.InvoiceFields, error) {
	const op = "extraction.ExtractFields"

	raw, err := s.call(ctx, image, mimeType)
	if err != nil {
		return models.InvoiceFields{}, apperr.ExtractionService(op, err)
	}

	fields, err := Parse(raw)
	if err != nil {
		s.log.Warn("failed to parse extraction response", "error", err, "raw", raw)
		return models.InvoiceFields{}, err
	}
	return fields, nil
}

func (s *Service) call(ctx context.Context, image []byte, mimeType string) (string, error) {
	backoff := s.cfg.Backoff
	var lastErr error

	for attempt := 0; attempt <= s.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", fmt.Errorf("%w (last error: %v)", ctx.Err(), lastErr)
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		if err := s.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("rate limiter: %w", err)
		}

		raw, err := s.attempt(ctx, image, mimeType)
		if err == nil {
			return raw, nil
		}
		lastErr = err
		if ctx.Err() != nil || !retryable(err) {
			return "", err
		}
		s.log.Warn("extraction request failed",
			"attempt", attempt+1, "max_attempts", s.cfg.MaxRetries+1, "error", err)
	}
	return "", fmt.Errorf("after %d attempts: %w", s.cfg.MaxRetries+1, lastErr)
}

func (s *Service) attempt(ctx context.Context, image []byte, mimeType string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()
	return s.client.Extract(ctx, image, mimeType)
}

// retryable reports whether a failed call may succeed when repeated. Client
// errors other than rate limiting are final.
func retryable(err error) bool {
	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}
	if status >= 400 && status < 500 && status != http.StatusTooManyRequests {
		return false
	}
	return true
}
