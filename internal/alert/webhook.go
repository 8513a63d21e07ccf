package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/driftlock-systems/driftlock/pkg/types"
)

// Webhook HTTP delivery defaults.
const webhookTimeout = 10 * time.Second

// ErrCircuitOpen is returned when the webhook breaker is failing fast.
var ErrCircuitOpen = fmt.Errorf("webhook circuit open")

// WebhookSink sends alerts as JSON POST requests to a URL. A circuit breaker
// fails fast while the endpoint keeps rejecting deliveries.
type WebhookSink struct {
	url     string
	client  *http.Client
	breaker *breaker
}

// NewWebhookSink creates a new webhook alert sink.
func NewWebhookSink(url string) *WebhookSink {
	return &WebhookSink{
		url:     url,
		client:  &http.Client{Timeout: webhookTimeout},
		breaker: newBreaker(BreakerConfig{}),
	}
}

// Name returns the sink identifier.
func (s *WebhookSink) Name() string { return "webhook" }

// Send posts the alert as JSON to the configured webhook URL.
func (s *WebhookSink) Send(ctx context.Context, alert types.Alert) error {
	if !s.breaker.allow() {
		return ErrCircuitOpen
	}

	data, err := json.Marshal(alert)
	if err != nil {
		return err
	}

	if err := s.doPost(ctx, data); err != nil {
		s.breaker.recordFailure()
		return fmt.Errorf("webhook POST failed: %w", err)
	}
	s.breaker.recordSuccess()
	return nil
}

func (s *WebhookSink) doPost(ctx context.Context, data []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
