package service

import (
	"context"
	"fmt"
	"time"

	"voucher-trade-engine/internal/core/domain"
	"voucher-trade-engine/internal/core/ports"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// eventTimeout bounds the handling of a single event.
const eventTimeout = 30 * time.Second

// EventProcessor drains the event queue with a fixed set of workers,
// routing voucher and wishlist events to the matcher and trade events
// to the dispatcher.
type EventProcessor struct {
	queue      *EventQueue
	matcher    ports.WishlistMatcher
	dispatcher ports.NotificationDispatcher
	workers    int
	log        zerolog.Logger
}

// NewEventProcessor creates a new EventProcessor.
func NewEventProcessor(queue *EventQueue, matcher ports.WishlistMatcher, dispatcher ports.NotificationDispatcher, workers int, log zerolog.Logger) *EventProcessor {
	if workers < 1 {
		workers = 1
	}
	return &EventProcessor{
		queue:      queue,
		matcher:    matcher,
		dispatcher: dispatcher,
		workers:    workers,
		log:        log,
	}
}

// Run blocks until the queue is closed and drained, or ctx ends. Events
// already taken by a worker are finished even if ctx is cancelled.
func (p *EventProcessor) Run(ctx context.Context) error {
	p.log.Info().Int("workers", p.workers).Msg("event processor started")

	var g errgroup.Group
	for i := 0; i < p.workers; i++ {
		g.Go(func() error {
			for {
				e, ok := p.queue.Pop(ctx)
				if !ok {
					return nil
				}
				p.handle(context.WithoutCancel(ctx), e)
			}
		})
	}
	err := g.Wait()

	p.log.Info().Int("pending", p.queue.Len()).Msg("event processor stopped")
	return err
}

// handle processes one event. Failures are logged and never stop the worker.
func (p *EventProcessor) handle(ctx context.Context, e domain.Event) {
	ctx, cancel := context.WithTimeout(ctx, eventTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			p.log.Error().Str("event_type", string(e.Type)).Str("panic", fmt.Sprint(r)).Msg("event handler panicked")
		}
	}()

	log := p.log.With().Str("event_type", string(e.Type)).Logger()

	switch {
	case e.Type.IsVoucherEvent():
		if _, err := p.matcher.Rescan(ctx, e.VoucherID); err != nil {
			log.Error().Err(err).Str("voucher_id", e.VoucherID.String()).Msg("voucher rescan failed")
		}
	case e.Type == domain.EventTradeChanged && e.Trade != nil:
		if _, err := p.dispatcher.DeliverTradeUpdate(ctx, e.Trade); err != nil {
			log.Error().Err(err).Str("trade_id", e.Trade.ID.String()).Msg("trade notification failed")
		}
	case e.Type == domain.EventWishlistItemAdded && e.Item != nil:
		if _, err := p.matcher.MatchItem(ctx, e.Item); err != nil {
			log.Error().Err(err).Str("wishlist_item_id", e.Item.ID.String()).Msg("wishlist item match failed")
		}
	default:
		log.Warn().Msg("dropping unroutable event")
	}
}
