package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"voucher-trade-engine/internal/core/ports"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockHTTPClient implements HTTPClient for testing.
type mockHTTPClient struct {
	doFunc func(req *http.Request) (*http.Response, error)
}

func (m *mockHTTPClient) Do(req *http.Request) (*http.Response, error) {
	return m.doFunc(req)
}

func newTestLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func statusResponse(code int) *http.Response {
	return &http.Response{StatusCode: code, Body: io.NopCloser(strings.NewReader(""))}
}

func testNotification() ports.Notification {
	return ports.Notification{
		Kind:      NotificationMatch,
		UserID:    uuid.New(),
		DedupKey:  "dedup-1",
		Subject:   "A Amazon voucher matches your wishlist",
		Data:      map[string]string{"voucher_id": uuid.NewString()},
		CreatedAt: testNow,
	}
}

func newTestNotifier(attempts int, client HTTPClient) *WebhookNotifier {
	n := NewWebhookNotifier("https://notify.example.com/hook", "hook-secret", attempts, NewHMACSigner(), client, newTestLogger())
	n.retryDelay = time.Millisecond
	return n
}

func TestWebhookNotifier_Send_Success(t *testing.T) {
	signer := NewHMACSigner()
	var got *http.Request
	var body []byte
	client := &mockHTTPClient{doFunc: func(req *http.Request) (*http.Response, error) {
		got = req
		body, _ = io.ReadAll(req.Body)
		return statusResponse(http.StatusAccepted), nil
	}}

	n := newTestNotifier(3, client)
	notification := testNotification()
	require.NoError(t, n.Send(context.Background(), notification))

	require.NotNil(t, got)
	assert.Equal(t, http.MethodPost, got.Method)
	assert.Equal(t, "application/json", got.Header.Get("Content-Type"))
	assert.Equal(t, "dedup-1", got.Header.Get("X-Dedup-Key"))
	assert.True(t, signer.Verify("hook-secret", body, got.Header.Get("X-Signature")))

	var payload WebhookPayload
	require.NoError(t, json.Unmarshal(body, &payload))
	assert.Equal(t, NotificationMatch, payload.EventType)
	assert.Equal(t, notification.UserID, payload.Notification.UserID)
	assert.Equal(t, "webhook", n.Name())
}

func TestWebhookNotifier_Send_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	client := &mockHTTPClient{doFunc: func(req *http.Request) (*http.Response, error) {
		switch calls.Add(1) {
		case 1:
			return nil, errors.New("connection reset")
		case 2:
			return statusResponse(http.StatusServiceUnavailable), nil
		default:
			return statusResponse(http.StatusOK), nil
		}
	}}

	n := newTestNotifier(3, client)
	require.NoError(t, n.Send(context.Background(), testNotification()))
	assert.Equal(t, int32(3), calls.Load())
}

func TestWebhookNotifier_Send_ClientErrorIsFinal(t *testing.T) {
	var calls atomic.Int32
	client := &mockHTTPClient{doFunc: func(req *http.Request) (*http.Response, error) {
		calls.Add(1)
		return statusResponse(http.StatusBadRequest), nil
	}}

	n := newTestNotifier(5, client)
	err := n.Send(context.Background(), testNotification())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
	assert.Equal(t, int32(1), calls.Load())
}

func TestWebhookNotifier_Send_GivesUpAfterMaxAttempts(t *testing.T) {
	var calls atomic.Int32
	client := &mockHTTPClient{doFunc: func(req *http.Request) (*http.Response, error) {
		calls.Add(1)
		return statusResponse(http.StatusTooManyRequests), nil
	}}

	n := newTestNotifier(2, client)
	require.Error(t, n.Send(context.Background(), testNotification()))
	assert.Equal(t, int32(2), calls.Load())
}

func TestLogNotifier_Send(t *testing.T) {
	var buf strings.Builder
	n := NewLogNotifier(zerolog.New(&buf))

	require.NoError(t, n.Send(context.Background(), testNotification()))
	assert.Equal(t, "log", n.Name())
	assert.Contains(t, buf.String(), `"dedup_key":"dedup-1"`)
	assert.Contains(t, buf.String(), `"kind":"MATCH"`)
}
