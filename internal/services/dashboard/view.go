// Package dashboard serves owner dashboard sessions. Each session owns one
// View: a board kept current by a realtime feed, with its metrics and a
// fan-out of change events for server-sent event clients.
package dashboard

import (
	"context"
	"sync"

	"restaurant-orders/internal/logger"
	"restaurant-orders/internal/models"
	"restaurant-orders/internal/services/board"
	"restaurant-orders/internal/services/feed"
	"restaurant-orders/internal/services/metrics"
)

const clientBuffer = 32

const (
	EventOrderCreated  = "order_created"
	EventOrdersChanged = "orders_changed"
)

// Event is one message pushed to a dashboard's event stream.
type Event struct {
	Name string
	Data interface{}
}

type orderCreatedPayload struct {
	Order board.ListEntry `json:"order"`
}

type ordersChangedPayload struct {
	Reason  string        `json:"reason"`
	OrderID string        `json:"order_id,omitempty"`
	Stats   metrics.Stats `json:"stats"`
}

// View is the mounted state of one dashboard session.
type View struct {
	Board *board.Board

	feed    *feed.Feed
	cancel  context.CancelFunc
	done    chan struct{}
	alerter feed.Alerter
	logger  *logger.Logger

	mu      sync.Mutex
	clients map[chan Event]struct{}
	closed  bool
}

func newView(b *board.Board, alerter feed.Alerter, log *logger.Logger) *View {
	v := &View{
		Board:   b,
		done:    make(chan struct{}),
		alerter: alerter,
		logger:  log,
		clients: make(map[chan Event]struct{}),
	}
	b.OnChange(v.onChange)
	return v
}

// start runs f until Close. The feed goroutine is the only writer of
// realtime changes into the board.
func (v *View) start(f *feed.Feed) {
	ctx, cancel := context.WithCancel(context.Background())
	v.feed = f
	v.cancel = cancel

	go func() {
		defer close(v.done)
		if err := f.Run(ctx); err != nil {
			v.logger.Error("feed_failed", "Dashboard feed stopped with error", "", err, map[string]interface{}{
				"restaurant_id": v.Board.RestaurantID(),
			})
		}
	}()
}

// Ready is closed once the board holds its first load.
func (v *View) Ready() <-chan struct{} {
	return v.feed.Ready()
}

// Stats recomputes the metrics from the current collection.
func (v *View) Stats() metrics.Stats {
	return metrics.Compute(v.Board.Orders())
}

// Subscribe registers an event stream client. The returned channel is
// closed by the cancel func or when the view closes.
func (v *View) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, clientBuffer)

	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	v.clients[ch] = struct{}{}
	v.mu.Unlock()

	return ch, func() {
		v.mu.Lock()
		if _, ok := v.clients[ch]; ok {
			delete(v.clients, ch)
			close(ch)
		}
		v.mu.Unlock()
	}
}

// Close tears the view down: the feed's subscription is cancelled, the
// board stops accepting changes and every stream client is released.
// Close blocks until the feed goroutine has exited.
func (v *View) Close() {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.closed = true
	for ch := range v.clients {
		close(ch)
	}
	v.clients = nil
	v.mu.Unlock()

	v.Board.Close()
	if v.cancel != nil {
		v.cancel()
		<-v.done
	}
}

// Alert is called by the feed for every newly arrived order.
func (v *View) Alert(o models.Order) {
	entries := board.ToFlatList([]models.Order{o}, nil, v.Board.Policy())
	v.broadcast(Event{Name: EventOrderCreated, Data: orderCreatedPayload{Order: entries[0]}})
	if v.alerter != nil {
		v.alerter.Alert(o)
	}
}

func (v *View) onChange(c board.Change) {
	v.broadcast(Event{Name: EventOrdersChanged, Data: ordersChangedPayload{
		Reason:  c.Reason,
		OrderID: c.OrderID,
		Stats:   v.Stats(),
	}})
}

// broadcast never blocks; a client that falls behind misses events and
// catches up from the next orders_changed snapshot.
func (v *View) broadcast(ev Event) {
	v.mu.Lock()
	defer v.mu.Unlock()

	for ch := range v.clients {
		select {
		case ch <- ev:
		default:
			v.logger.Debug("event_dropped", "Dashboard client is behind, event dropped", "", map[string]interface{}{
				"restaurant_id": v.Board.RestaurantID(),
				"event":         ev.Name,
			})
		}
	}
}
