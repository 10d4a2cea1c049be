// Package feed keeps a dashboard's order collection in step with the store:
// an initial load, then realtime events, with reconnect and periodic resync.
package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"restaurant-orders/internal/logger"
	"restaurant-orders/internal/models"
)

var errSubscriptionClosed = errors.New("subscription closed")

// Lister loads a restaurant's orders, newest first.
type Lister interface {
	ListByRestaurant(ctx context.Context, restaurantID string) ([]models.Order, error)
}

// Subscriber opens a realtime event stream for one restaurant.
type Subscriber interface {
	Subscribe(ctx context.Context, restaurantID string, types ...models.EventType) (<-chan models.OrderEvent, error)
}

// Sink is the collection the feed writes into.
type Sink interface {
	Replace(orders []models.Order)
	Transform(orderID string, fn func([]models.Order) ([]models.Order, bool)) bool
}

// Alerter is the audible notification for a newly arrived order.
type Alerter interface {
	Alert(order models.Order)
}

// AlerterFunc adapts a function to Alerter.
type AlerterFunc func(order models.Order)

func (f AlerterFunc) Alert(order models.Order) { f(order) }

type Options struct {
	// ResyncInterval re-loads the collection while subscribed. Zero disables it.
	ResyncInterval   time.Duration
	ReconnectBackoff time.Duration
}

// Feed follows one restaurant's orders.
type Feed struct {
	restaurantID string
	lister       Lister
	subscriber   Subscriber
	sink         Sink
	alerter      Alerter
	logger       *logger.Logger
	opts         Options

	readyOnce sync.Once
	ready     chan struct{}
}

func New(restaurantID string, lister Lister, subscriber Subscriber, sink Sink, alerter Alerter, log *logger.Logger, opts Options) *Feed {
	if opts.ReconnectBackoff <= 0 {
		opts.ReconnectBackoff = 2 * time.Second
	}
	return &Feed{
		restaurantID: restaurantID,
		lister:       lister,
		subscriber:   subscriber,
		sink:         sink,
		alerter:      alerter,
		logger:       log,
		opts:         opts,
		ready:        make(chan struct{}),
	}
}

// Ready is closed once the first load has landed in the sink.
func (f *Feed) Ready() <-chan struct{} {
	return f.ready
}

// Run follows the restaurant until ctx is cancelled. Each cycle subscribes
// first and loads second, so no insert committed in between is missed; the
// reducer drops the duplicates this can produce. A dropped subscription is
// re-established after a backoff and the collection reloaded.
func (f *Feed) Run(ctx context.Context) error {
	for {
		err := f.follow(ctx)
		if ctx.Err() != nil {
			f.logger.Debug("feed_stopped", "Order feed stopped", "", map[string]interface{}{
				"restaurant_id": f.restaurantID,
			})
			return nil
		}

		f.logger.Warn("feed_disconnected", "Order feed lost its subscription, reconnecting", "", map[string]interface{}{
			"restaurant_id": f.restaurantID,
			"error":         err.Error(),
			"backoff_ms":    f.opts.ReconnectBackoff.Milliseconds(),
		})

		timer := time.NewTimer(f.opts.ReconnectBackoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

func (f *Feed) follow(ctx context.Context) error {
	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	events, err := f.subscriber.Subscribe(subCtx, f.restaurantID)
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	if err := f.Resync(subCtx); err != nil {
		return err
	}

	var resync <-chan time.Time
	if f.opts.ResyncInterval > 0 {
		ticker := time.NewTicker(f.opts.ResyncInterval)
		defer ticker.Stop()
		resync = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return errSubscriptionClosed
			}
			f.apply(ev)
		case <-resync:
			if err := f.Resync(subCtx); err != nil {
				f.logger.Warn("feed_resync_failed", "Periodic resync failed", "", map[string]interface{}{
					"restaurant_id": f.restaurantID,
					"error":         err.Error(),
				})
			}
		}
	}
}

// Resync reloads the collection from the store.
func (f *Feed) Resync(ctx context.Context) error {
	orders, err := f.lister.ListByRestaurant(ctx, f.restaurantID)
	if err != nil {
		return fmt.Errorf("load orders: %w", err)
	}
	f.sink.Replace(orders)
	f.readyOnce.Do(func() { close(f.ready) })

	f.logger.Debug("feed_seeded", "Order collection loaded", "", map[string]interface{}{
		"restaurant_id": f.restaurantID,
		"orders":        len(orders),
	})
	return nil
}

func (f *Feed) apply(ev models.OrderEvent) {
	changed := f.sink.Transform(ev.Order.ID, func(current []models.Order) ([]models.Order, bool) {
		return Reduce(f.restaurantID, current, ev)
	})
	if !changed {
		return
	}

	f.logger.Debug("feed_event_applied", "Realtime event applied", "", map[string]interface{}{
		"restaurant_id": f.restaurantID,
		"order_id":      ev.Order.ID,
		"type":          string(ev.Type),
	})

	if ev.Type == models.EventInsert && f.alerter != nil {
		f.alerter.Alert(ev.Order.Clone())
	}
}
