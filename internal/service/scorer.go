package service

import (
	"fmt"
	"math"
	"time"

	"voucher-trade-engine/config"
	"voucher-trade-engine/internal/core/domain"
)

// ScoringPolicy holds the weights and scales of the match score.
// Weights are points out of 100.
type ScoringPolicy struct {
	CategoryWeight   int
	PriceWeight      int
	UrgencyWeight    int
	PopularityWeight int
	PriceBand        int64 // Minor units at which the price component reaches 0
	UrgencyHorizon   time.Duration
	PopularityCap    int64
}

// DefaultScoringPolicy returns the 40/30/20/10 policy.
func DefaultScoringPolicy() ScoringPolicy {
	return ScoringPolicy{
		CategoryWeight:   40,
		PriceWeight:      30,
		UrgencyWeight:    20,
		PopularityWeight: 10,
		PriceBand:        5000,
		UrgencyHorizon:   30 * 24 * time.Hour,
		PopularityCap:    500,
	}
}

// ScoringPolicyFromConfig converts the engine.scoring section.
func ScoringPolicyFromConfig(c config.ScoringConfig) ScoringPolicy {
	return ScoringPolicy{
		CategoryWeight:   c.CategoryWeight,
		PriceWeight:      c.PriceWeight,
		UrgencyWeight:    c.UrgencyWeight,
		PopularityWeight: c.PopularityWeight,
		PriceBand:        c.PriceBand,
		UrgencyHorizon:   c.UrgencyHorizon,
		PopularityCap:    c.PopularityCap,
	}
}

// Validate rejects negative weights, weights not summing to 100 and
// non-positive scales.
func (p ScoringPolicy) Validate() error {
	weights := []int{p.CategoryWeight, p.PriceWeight, p.UrgencyWeight, p.PopularityWeight}
	sum := 0
	for _, w := range weights {
		if w < 0 {
			return fmt.Errorf("scoring weights must not be negative, got %v", weights)
		}
		sum += w
	}
	if sum != 100 {
		return fmt.Errorf("scoring weights must sum to 100, got %d", sum)
	}
	if p.PriceBand <= 0 || p.UrgencyHorizon <= 0 || p.PopularityCap <= 0 {
		return fmt.Errorf("scoring scales must be positive")
	}
	return nil
}

// Scorer computes 0-100 match scores. It is deterministic and has no side effects.
type Scorer struct {
	policy ScoringPolicy
}

// NewScorer validates the policy and returns a scorer.
func NewScorer(policy ScoringPolicy) (*Scorer, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	return &Scorer{policy: policy}, nil
}

// Policy returns the scorer's policy.
func (s *Scorer) Policy() ScoringPolicy {
	return s.policy
}

// Score rates how well two vouchers pair for a trade. Score(a, b) == Score(b, a).
func (s *Scorer) Score(a, b *domain.Voucher, asOf time.Time) int {
	category := 0.0
	if domain.NormalizeKey(a.Category) == domain.NormalizeKey(b.Category) {
		category = 1
	}
	price := s.priceCloseness(a.SellingPrice, b.SellingPrice)
	urgency := (s.urgency(a, asOf) + s.urgency(b, asOf)) / 2
	popularity := (s.popularity(a) + s.popularity(b)) / 2

	return s.combine(category, price, urgency, popularity)
}

// ScoreWishlist rates a voucher for a wishlist item. A brand mismatch or a
// price above the item's ceiling scores 0.
func (s *Scorer) ScoreWishlist(v *domain.Voucher, item *domain.WishlistItem, asOf time.Time) int {
	if !item.WantsBrand(v.BrandName) || item.PriceDisqualifies(v.SellingPrice) {
		return 0
	}

	category := 0.0
	if domain.NormalizeKey(v.Category) == domain.NormalizeKey(item.Category) {
		category = 1
	}
	return s.combine(category, 1, s.urgency(v, asOf), s.popularity(v))
}

func (s *Scorer) combine(category, price, urgency, popularity float64) int {
	p := s.policy
	total := float64(p.CategoryWeight)*category +
		float64(p.PriceWeight)*price +
		float64(p.UrgencyWeight)*urgency +
		float64(p.PopularityWeight)*popularity

	score := int(math.Round(total))
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

func (s *Scorer) priceCloseness(a, b int64) float64 {
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	return 1 - math.Min(float64(diff)/float64(s.policy.PriceBand), 1)
}

// urgency grows as expiry approaches; an expired voucher has none.
func (s *Scorer) urgency(v *domain.Voucher, asOf time.Time) float64 {
	if v.IsExpiredAt(asOf) {
		return 0
	}
	left := v.ExpiryDate.Sub(asOf)
	return 1 - math.Min(float64(left)/float64(s.policy.UrgencyHorizon), 1)
}

func (s *Scorer) popularity(v *domain.Voucher) float64 {
	if v.Views <= 0 {
		return 0
	}
	return math.Min(float64(v.Views)/float64(s.policy.PopularityCap), 1)
}
