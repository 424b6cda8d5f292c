package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/datasheet-crawler/internal/metrics"
)

const defaultTimeout = 10 * time.Second

// SenderConfig tunes webhook delivery.
type SenderConfig struct {
	Timeout   time.Duration
	UserAgent string
}

// Sender POSTs JSON payloads to callback URLs. Each delivery is attempted
// once with a bounded timeout; there are no retries.
type Sender struct {
	client *http.Client
	cfg    SenderConfig
	logger *zap.Logger
}

// NewSender constructs a Sender. A nil client uses http.DefaultClient.
func NewSender(client *http.Client, cfg SenderConfig, logger *zap.Logger) *Sender {
	if client == nil {
		client = http.DefaultClient
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sender{client: client, cfg: cfg, logger: logger}
}

// Notify delivers payload to callbackURL. An empty URL is skipped without
// error. Failures are logged and returned so callers can record them; they
// never affect the request outcome.
func (s *Sender) Notify(ctx context.Context, callbackURL string, payload json.RawMessage) error {
	callbackURL = strings.TrimSpace(callbackURL)
	if callbackURL == "" {
		metrics.ObserveWebhook(metrics.WebhookSkipped)
		return nil
	}
	err := s.post(ctx, callbackURL, payload)
	if err != nil {
		outcome := metrics.WebhookFailed
		var rejected *RejectedError
		if errors.As(err, &rejected) {
			outcome = metrics.WebhookRejected
		}
		metrics.ObserveWebhook(outcome)
		s.logger.Warn("webhook delivery failed",
			zap.String("callback_url", callbackURL),
			zap.String("outcome", outcome),
			zap.Error(err),
		)
		return err
	}
	metrics.ObserveWebhook(metrics.WebhookDelivered)
	s.logger.Debug("webhook delivered", zap.String("callback_url", callbackURL))
	return nil
}

func (s *Sender) post(ctx context.Context, callbackURL string, payload json.RawMessage) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, callbackURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", s.cfg.UserAgent)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &RejectedError{StatusCode: resp.StatusCode}
	}
	return nil
}

// RejectedError reports a callback that answered with a non-2xx status.
type RejectedError struct {
	StatusCode int
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("webhook rejected with status %d", e.StatusCode)
}
