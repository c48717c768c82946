package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"voucher-trade-engine/internal/core/ports"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"
)

// Notification kinds.
const (
	NotificationMatch = "MATCH"
	NotificationTrade = "TRADE"
)

// HTTPClient interface for testability.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// WebhookPayload is the JSON body posted to the notification webhook.
type WebhookPayload struct {
	EventType    string             `json:"event_type"`
	Notification ports.Notification `json:"notification"`
	Timestamp    int64              `json:"timestamp"`
}

// WebhookNotifier implements ports.Notifier by POSTing signed JSON to a
// single endpoint owned by the messaging collaborator.
type WebhookNotifier struct {
	url         string
	secret      string
	maxAttempts int
	retryDelay  time.Duration
	signer      ports.Signer
	httpClient  HTTPClient
	log         zerolog.Logger
}

// NewWebhookNotifier creates a webhook notifier. The client's own timeout
// bounds each attempt.
func NewWebhookNotifier(
	url string,
	secret string,
	maxAttempts int,
	signer ports.Signer,
	httpClient HTTPClient,
	log zerolog.Logger,
) *WebhookNotifier {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &WebhookNotifier{
		url:         url,
		secret:      secret,
		maxAttempts: maxAttempts,
		retryDelay:  500 * time.Millisecond,
		signer:      signer,
		httpClient:  httpClient,
		log:         log,
	}
}

func (n *WebhookNotifier) Name() string {
	return "webhook"
}

// Send delivers one notification, retrying network errors and 5xx/429
// responses with exponential backoff. Other 4xx responses are final.
func (n *WebhookNotifier) Send(ctx context.Context, notification ports.Notification) error {
	payload := WebhookPayload{
		EventType:    notification.Kind,
		Notification: notification,
		Timestamp:    time.Now().Unix(),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}
	signature := n.signer.Sign(n.secret, body)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = n.retryDelay

	attempt := 0
	_, err = backoff.Retry(ctx, func() (int, error) {
		attempt++
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
		if err != nil {
			return 0, backoff.Permanent(fmt.Errorf("build webhook request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Signature", signature)
		req.Header.Set("X-Dedup-Key", notification.DedupKey)

		resp, err := n.httpClient.Do(req)
		if err != nil {
			n.log.Warn().Err(err).Str("dedup_key", notification.DedupKey).Int("attempt", attempt).Msg("webhook: delivery failed")
			return 0, err
		}
		resp.Body.Close()

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return resp.StatusCode, nil
		case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode >= 500:
			n.log.Warn().Str("dedup_key", notification.DedupKey).Int("attempt", attempt).Int("status", resp.StatusCode).Msg("webhook: non-2xx response, retrying")
			return 0, fmt.Errorf("webhook responded %d", resp.StatusCode)
		default:
			return 0, backoff.Permanent(fmt.Errorf("webhook rejected notification with status %d", resp.StatusCode))
		}
	}, backoff.WithBackOff(b), backoff.WithMaxTries(uint(n.maxAttempts)))
	if err != nil {
		return fmt.Errorf("webhook delivery after %d attempts: %w", attempt, err)
	}

	n.log.Info().
		Str("kind", notification.Kind).
		Str("user_id", notification.UserID.String()).
		Int("attempt", attempt).
		Msg("webhook: delivered successfully")
	return nil
}

// LogNotifier implements ports.Notifier by writing notifications to the log.
// It is used when no webhook is configured.
type LogNotifier struct {
	log zerolog.Logger
}

// NewLogNotifier creates a log-only notifier.
func NewLogNotifier(log zerolog.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Name() string {
	return "log"
}

func (n *LogNotifier) Send(_ context.Context, notification ports.Notification) error {
	ev := n.log.Info().
		Str("kind", notification.Kind).
		Str("user_id", notification.UserID.String()).
		Str("dedup_key", notification.DedupKey).
		Str("subject", notification.Subject)
	for k, v := range notification.Data {
		ev = ev.Str(k, v)
	}
	ev.Msg("notification")
	return nil
}
