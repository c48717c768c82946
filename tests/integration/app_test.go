package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	httpHandler "voucher-trade-engine/internal/adapter/http/handler"
	"voucher-trade-engine/internal/adapter/http/middleware"
	"voucher-trade-engine/internal/adapter/storage/memory"
	redisStorage "voucher-trade-engine/internal/adapter/storage/redis"
	"voucher-trade-engine/internal/core/domain"
	"voucher-trade-engine/internal/core/ports"
	"voucher-trade-engine/internal/service"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const (
	jwtSecret      = "integration-jwt-secret"
	verifierSecret = "integration-verifier-secret"
)

// recordingNotifier collects every notification the engine sends.
type recordingNotifier struct {
	mu   sync.Mutex
	sent []ports.Notification
}

func (n *recordingNotifier) Send(_ context.Context, msg ports.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
	return nil
}

func (n *recordingNotifier) Name() string { return "recording" }

// For returns the notifications of kind sent to userID.
func (n *recordingNotifier) For(userID uuid.UUID, kind string) []ports.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []ports.Notification
	for _, s := range n.sent {
		if s.UserID == userID && s.Kind == kind {
			out = append(out, s)
		}
	}
	return out
}

// testApp runs the whole engine over the in-memory store, with miniredis
// behind the delivery ledger, nonce store and rate limiter.
type testApp struct {
	server   *httptest.Server
	redis    *miniredis.Miniredis
	notifier *recordingNotifier
	tokens   *service.JWTTokenService
	signer   *service.HMACSigner
	cancel   context.CancelFunc
	done     chan error
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})

	log := zerolog.Nop()
	policy := service.StorePolicy{Timeout: time.Second, ReadRetries: 1, RetryInterval: time.Millisecond}
	scorer, err := service.NewScorer(service.DefaultScoringPolicy())
	require.NoError(t, err)

	store := memory.New()
	queue := service.NewEventQueue()
	notifier := &recordingNotifier{}
	signer := service.NewHMACSigner()
	tokens := service.NewJWTTokenService(jwtSecret, "integration")

	inventory := service.NewInventoryService(store.Vouchers(), queue, policy, log)
	trades := service.NewTradeService(inventory, store.Vouchers(), store.Trades(), store.Wishlists(), scorer, queue, policy, log)
	wishlists := service.NewWishlistService(store.Wishlists(), queue, policy, log)
	dispatcher := service.NewNotificationDispatcher(
		store.Wishlists(), store.Vouchers(), store.MatchEvents(),
		redisStorage.NewDeliveryLedger(rdb), notifier, 24*time.Hour, policy, log,
	)
	matcher := service.NewWishlistMatcher(inventory, store.Vouchers(), store.Wishlists(), store.MatchEvents(),
		scorer, dispatcher, 50, policy, log)
	processor := service.NewEventProcessor(queue, matcher, dispatcher, 2, log)

	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		Inventory:      inventory,
		Trades:         trades,
		Wishlists:      wishlists,
		Matcher:        matcher,
		Signer:         signer,
		NonceStore:     redisStorage.NewNonceStore(rdb),
		TokenSvc:       tokens,
		VerifierSecret: verifierSecret,
		RateLimiter:    redisStorage.NewRateLimitStore(rdb),
		HealthCheckers: []ports.HealthChecker{store, redisStorage.NewHealthCheck(rdb)},
		Logger:         log,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- processor.Run(ctx) }()

	app := &testApp{
		server:   httptest.NewServer(router),
		redis:    mr,
		notifier: notifier,
		tokens:   tokens,
		signer:   signer,
		cancel:   cancel,
		done:     done,
	}
	t.Cleanup(func() {
		queue.Close()
		app.close()
	})
	return app
}

func (a *testApp) close() {
	a.cancel()
	<-a.done
	a.server.Close()
	a.redis.Close()
}

// apiResponse is the decoded envelope of any API response.
type apiResponse struct {
	Status    int
	Data      json.RawMessage `json:"data"`
	ErrorCode string          `json:"error_code"`
}

func (r apiResponse) decode(t *testing.T, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(r.Data, v))
}

// user is an authenticated API caller.
type user struct {
	ID    uuid.UUID
	token string
}

func (a *testApp) newUser(t *testing.T) user {
	t.Helper()
	id := uuid.New()
	token, _, err := a.tokens.Generate(id, time.Hour)
	require.NoError(t, err)
	return user{ID: id, token: token}
}

func (a *testApp) do(t *testing.T, method, path string, u *user, body interface{}) apiResponse {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, a.server.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if u != nil {
		req.Header.Set("Authorization", "Bearer "+u.token)
	}
	return send(t, req)
}

// verify calls the internal verification endpoint as the verifier would.
func (a *testApp) verify(t *testing.T, voucherID string, nonce string) apiResponse {
	t.Helper()
	path := "/internal/v1/vouchers/" + voucherID + "/verify"
	ts := time.Now().Unix()
	sig := a.signer.SignRequest(verifierSecret, domain.SignedRequest{
		Method:    http.MethodPost,
		Path:      path,
		Timestamp: ts,
		Nonce:     nonce,
	})

	req, err := http.NewRequest(http.MethodPost, a.server.URL+path, nil)
	require.NoError(t, err)
	req.Header.Set(middleware.HeaderClientID, "verifier")
	req.Header.Set(middleware.HeaderTimestamp, strconv.FormatInt(ts, 10))
	req.Header.Set(middleware.HeaderNonce, nonce)
	req.Header.Set(middleware.HeaderSignature, sig)
	return send(t, req)
}

func send(t *testing.T, req *http.Request) apiResponse {
	t.Helper()
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := apiResponse{Status: resp.StatusCode}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return out
}

type voucherView struct {
	ID           string `json:"id"`
	SellerID     string `json:"seller_id"`
	SellingPrice string `json:"selling_price"`
	Status       string `json:"status"`
	Views        int64  `json:"views"`
}

type tradeView struct {
	ID           string  `json:"id"`
	Status       string  `json:"status"`
	MatchScore   int     `json:"match_score"`
	CancelReason *string `json:"cancel_reason"`
}

// listVerified creates a voucher for u and has it verified.
func (a *testApp) listVerified(t *testing.T, u user, brand, category, price string) voucherView {
	t.Helper()
	resp := a.do(t, http.MethodPost, "/api/v1/vouchers", &u, map[string]string{
		"brand_name":     brand,
		"category":       category,
		"original_value": "100.00",
		"selling_price":  price,
		"expiry_date":    time.Now().AddDate(0, 0, 20).UTC().Format("2006-01-02"),
	})
	require.Equal(t, http.StatusCreated, resp.Status, resp.ErrorCode)

	var v voucherView
	resp.decode(t, &v)
	require.Equal(t, "pending_verification", v.Status)

	verified := a.verify(t, v.ID, uuid.NewString())
	require.Equal(t, http.StatusOK, verified.Status, verified.ErrorCode)
	verified.decode(t, &v)
	return v
}

func (a *testApp) propose(t *testing.T, from, to user, offered string, requested *string) apiResponse {
	t.Helper()
	body := map[string]string{
		"recipient_id":         to.ID.String(),
		"initiator_voucher_id": offered,
	}
	if requested != nil {
		body["recipient_voucher_id"] = *requested
	}
	return a.do(t, http.MethodPost, "/api/v1/trades", &from, body)
}

func (a *testApp) voucher(t *testing.T, u user, id string) voucherView {
	t.Helper()
	resp := a.do(t, http.MethodGet, "/api/v1/vouchers/"+id, &u, nil)
	require.Equal(t, http.StatusOK, resp.Status, resp.ErrorCode)
	var v voucherView
	resp.decode(t, &v)
	return v
}

func categoryPath(category string) string {
	return fmt.Sprintf("/api/v1/vouchers?category=%s", category)
}
