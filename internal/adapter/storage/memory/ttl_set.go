package memory

import (
	"context"
	"sync"
	"time"

	"voucher-trade-engine/internal/core/ports"
)

// ttlSet is a set of keys that expire, used where Redis SET NX PX would be.
type ttlSet struct {
	mu      sync.Mutex
	expires map[string]time.Time
	now     func() time.Time
}

func newTTLSet(now func() time.Time) *ttlSet {
	if now == nil {
		now = time.Now
	}
	return &ttlSet{expires: make(map[string]time.Time), now: now}
}

// setNX stores key for ttl unless a live entry exists.
func (s *ttlSet) setNX(key string, ttl time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if exp, ok := s.expires[key]; ok && now.Before(exp) {
		return false
	}
	s.expires[key] = now.Add(ttl)
	s.sweep(now)
	return true
}

func (s *ttlSet) del(key string) {
	s.mu.Lock()
	delete(s.expires, key)
	s.mu.Unlock()
}

// sweep drops expired keys once the set has grown.
func (s *ttlSet) sweep(now time.Time) {
	if len(s.expires) < 1024 {
		return
	}
	for k, exp := range s.expires {
		if !now.Before(exp) {
			delete(s.expires, k)
		}
	}
}

// DeliveryLedger implements ports.DeliveryLedger in process memory.
type DeliveryLedger struct {
	set *ttlSet
}

// NewDeliveryLedger creates a ledger. A nil clock means time.Now.
func NewDeliveryLedger(now func() time.Time) *DeliveryLedger {
	return &DeliveryLedger{set: newTTLSet(now)}
}

func (l *DeliveryLedger) Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return l.set.setNX(key, ttl), nil
}

func (l *DeliveryLedger) Release(ctx context.Context, key string) error {
	l.set.del(key)
	return nil
}

// NonceStore implements ports.NonceStore in process memory.
type NonceStore struct {
	set *ttlSet
}

// NewNonceStore creates a nonce store. A nil clock means time.Now.
func NewNonceStore(now func() time.Time) *NonceStore {
	return &NonceStore{set: newTTLSet(now)}
}

func (s *NonceStore) CheckAndSet(ctx context.Context, clientID string, nonce string, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return s.set.setNX(clientID+":"+nonce, ttl), nil
}

// RateLimitStore implements ports.RateLimiter with fixed windows in process memory.
type RateLimitStore struct {
	mu      sync.Mutex
	windows map[string]*rateWindow
	now     func() time.Time
}

type rateWindow struct {
	count   int64
	resetAt time.Time
}

// NewRateLimitStore creates a rate limiter. A nil clock means time.Now.
func NewRateLimitStore(now func() time.Time) *RateLimitStore {
	if now == nil {
		now = time.Now
	}
	return &RateLimitStore{windows: make(map[string]*rateWindow), now: now}
}

func (s *RateLimitStore) Allow(ctx context.Context, key string, limit int64, window time.Duration) (*ports.RateLimitResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	w, ok := s.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = &rateWindow{resetAt: now.Add(window)}
		s.windows[key] = w
	}
	w.count++

	if len(s.windows) >= 1024 {
		for k, other := range s.windows {
			if !now.Before(other.resetAt) {
				delete(s.windows, k)
			}
		}
	}

	remaining := limit - w.count
	if remaining < 0 {
		remaining = 0
	}
	return &ports.RateLimitResult{
		Allowed:   w.count <= limit,
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   w.resetAt.Unix(),
	}, nil
}
