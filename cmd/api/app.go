package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"voucher-trade-engine/config"
	httpHandler "voucher-trade-engine/internal/adapter/http/handler"
	"voucher-trade-engine/internal/adapter/storage/memory"
	pgStorage "voucher-trade-engine/internal/adapter/storage/postgres"
	redisStorage "voucher-trade-engine/internal/adapter/storage/redis"
	"voucher-trade-engine/internal/core/ports"
	"voucher-trade-engine/internal/service"

	"github.com/rs/zerolog"
)

// stores groups the persistence ports behind the configured driver.
type stores struct {
	vouchers  ports.InventoryStore
	trades    ports.TradeRepository
	wishlists ports.WishlistRepository
	matches   ports.MatchEventRepository
	health    []ports.HealthChecker
}

// ephemera groups the TTL-keyed stores that live in Redis when it is enabled.
type ephemera struct {
	ledger  ports.DeliveryLedger
	nonces  ports.NonceStore
	limiter ports.RateLimiter
	health  []ports.HealthChecker
}

// app is the fully wired engine.
type app struct {
	cfg       *config.Config
	log       zerolog.Logger
	queue     *service.EventQueue
	inventory *service.InventoryServiceImpl
	trades    *service.TradeServiceImpl
	wishlists *service.WishlistServiceImpl
	matcher   *service.WishlistMatcherImpl
	processor *service.EventProcessor
	sweeper   *service.Sweeper
	tokens    *service.JWTTokenService
	signer    *service.HMACSigner
	ephemera  ephemera
	health    []ports.HealthChecker
	closers   []func()
}

// newApp connects the configured stores and builds every service.
func newApp(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*app, error) {
	a := &app{cfg: cfg, log: log}

	st, err := a.openStores(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	eph, err := a.openEphemera(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.ephemera = eph
	a.health = append(st.health, eph.health...)

	scorer, err := service.NewScorer(service.ScoringPolicyFromConfig(cfg.Engine.Scoring))
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("scoring policy: %w", err)
	}

	policy := service.StorePolicy{
		Timeout:       cfg.Engine.StoreTimeout,
		ReadRetries:   cfg.Engine.ReadRetries,
		RetryInterval: service.DefaultStorePolicy().RetryInterval,
	}

	a.signer = service.NewHMACSigner()
	a.tokens = service.NewJWTTokenService(cfg.JWT.Secret, cfg.JWT.Issuer)
	a.queue = service.NewEventQueue()

	a.inventory = service.NewInventoryService(st.vouchers, a.queue, policy, log)
	a.trades = service.NewTradeService(a.inventory, st.vouchers, st.trades, st.wishlists, scorer, a.queue, policy, log)
	a.wishlists = service.NewWishlistService(st.wishlists, a.queue, policy, log)

	dispatcher := service.NewNotificationDispatcher(
		st.wishlists, st.vouchers, st.matches, eph.ledger,
		a.newNotifier(), cfg.Engine.NotifyCooldown, policy, log,
	)
	a.matcher = service.NewWishlistMatcher(
		a.inventory, st.vouchers, st.wishlists, st.matches,
		scorer, dispatcher, cfg.Engine.MatchThreshold, policy, log,
	)
	a.processor = service.NewEventProcessor(a.queue, a.matcher, dispatcher, cfg.Engine.Workers, log)
	a.sweeper = service.NewSweeper(a.inventory, a.trades,
		cfg.Engine.SweepInterval, cfg.Engine.ReconcileAfter, cfg.Engine.SweepBatch, log).
		WithRedelivery(a.matcher, cfg.Engine.RedeliverWindow)

	return a, nil
}

func (a *app) openStores(ctx context.Context) (stores, error) {
	if a.cfg.Store.Driver == config.StoreDriverMemory {
		a.log.Warn().Msg("Using the in-memory store; state is lost on exit")
		m := memory.New()
		return stores{
			vouchers:  m.Vouchers(),
			trades:    m.Trades(),
			wishlists: m.Wishlists(),
			matches:   m.MatchEvents(),
			health:    []ports.HealthChecker{m},
		}, nil
	}

	pool, err := pgStorage.NewPool(ctx, a.cfg.Database, a.log)
	if err != nil {
		return stores{}, fmt.Errorf("connecting to PostgreSQL: %w", err)
	}
	a.closers = append(a.closers, pool.Close)

	return stores{
		vouchers:  pgStorage.NewVoucherRepo(pool),
		trades:    pgStorage.NewTradeRepo(pool),
		wishlists: pgStorage.NewWishlistRepo(pool),
		matches:   pgStorage.NewMatchEventRepo(pool),
		health:    []ports.HealthChecker{pgStorage.NewHealthCheck(pool)},
	}, nil
}

func (a *app) openEphemera(ctx context.Context) (ephemera, error) {
	if !a.cfg.Redis.Enabled {
		a.log.Warn().Msg("Redis disabled; delivery ledger, nonces and rate limits are process-local")
		return ephemera{
			ledger:  memory.NewDeliveryLedger(time.Now),
			nonces:  memory.NewNonceStore(time.Now),
			limiter: memory.NewRateLimitStore(time.Now),
		}, nil
	}

	rdb, err := redisStorage.NewClient(ctx, a.cfg.Redis, a.log)
	if err != nil {
		return ephemera{}, fmt.Errorf("connecting to Redis: %w", err)
	}
	a.closers = append(a.closers, func() { rdb.Close() })

	return ephemera{
		ledger:  redisStorage.NewDeliveryLedger(rdb),
		nonces:  redisStorage.NewNonceStore(rdb),
		limiter: redisStorage.NewRateLimitStore(rdb),
		health:  []ports.HealthChecker{redisStorage.NewHealthCheck(rdb)},
	}, nil
}

func (a *app) newNotifier() ports.Notifier {
	n := a.cfg.Notifier
	if n.WebhookURL == "" {
		return service.NewLogNotifier(a.log)
	}
	return service.NewWebhookNotifier(
		n.WebhookURL, n.Secret, n.MaxAttempts, a.signer,
		&http.Client{Timeout: n.Timeout}, a.log,
	)
}

// routerDeps returns the HTTP surface of the engine.
func (a *app) routerDeps() httpHandler.RouterDeps {
	return httpHandler.RouterDeps{
		Inventory:      a.inventory,
		Trades:         a.trades,
		Wishlists:      a.wishlists,
		Matcher:        a.matcher,
		Signer:         a.signer,
		NonceStore:     a.ephemera.nonces,
		TokenSvc:       a.tokens,
		VerifierSecret: a.cfg.Verifier.Secret,
		RateLimiter:    a.ephemera.limiter,
		HealthCheckers: a.health,
		Logger:         a.log,
	}
}

// Close releases store connections in reverse order of opening.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
