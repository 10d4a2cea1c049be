package testutil

import (
	"context"
	"sync"

	"restaurant-orders/internal/models"
)

const busBuffer = 64

type subscription struct {
	restaurantID string
	types        map[models.EventType]bool
	ch           chan models.OrderEvent
	closed       bool
}

// Bus is an in-process realtime event bus with the same contract as the
// RabbitMQ publisher and subscriber.
type Bus struct {
	mu           sync.Mutex
	subs         []*subscription
	published    []models.OrderEvent
	publishErr   error
	subscribeErr error
}

func NewBus() *Bus {
	return &Bus{}
}

func (b *Bus) FailPublish(err error)   { b.mu.Lock(); b.publishErr = err; b.mu.Unlock() }
func (b *Bus) FailSubscribe(err error) { b.mu.Lock(); b.subscribeErr = err; b.mu.Unlock() }

func (b *Bus) PublishOrderEvent(_ context.Context, ev models.OrderEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.publishErr != nil {
		return b.publishErr
	}
	b.published = append(b.published, ev)
	for _, s := range b.subs {
		if s.closed || s.restaurantID != ev.RestaurantID || !s.types[ev.Type] {
			continue
		}
		select {
		case s.ch <- ev:
		default:
		}
	}
	return nil
}

func (b *Bus) Subscribe(ctx context.Context, restaurantID string, types ...models.EventType) (<-chan models.OrderEvent, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.subscribeErr != nil {
		return nil, b.subscribeErr
	}
	if len(types) == 0 {
		types = []models.EventType{models.EventInsert, models.EventUpdate, models.EventDelete}
	}
	s := &subscription{
		restaurantID: restaurantID,
		types:        make(map[models.EventType]bool),
		ch:           make(chan models.OrderEvent, busBuffer),
	}
	for _, t := range types {
		s.types[t] = true
	}
	b.subs = append(b.subs, s)

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		b.closeLocked(s)
		b.mu.Unlock()
	}()

	return s.ch, nil
}

// Drop closes every open subscription as if the broker connection was lost.
func (b *Bus) Drop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range append([]*subscription(nil), b.subs...) {
		b.closeLocked(s)
	}
}

// Active returns the number of open subscriptions.
func (b *Bus) Active() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Published returns a copy of every event published so far.
func (b *Bus) Published() []models.OrderEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]models.OrderEvent(nil), b.published...)
}

func (b *Bus) closeLocked(s *subscription) {
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
	for i, cur := range b.subs {
		if cur == s {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			break
		}
	}
}
