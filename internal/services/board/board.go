// Package board holds one restaurant's order collection and is the only
// place its statuses change.
package board

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"restaurant-orders/internal/database"
	"restaurant-orders/internal/logger"
	"restaurant-orders/internal/models"
)

var (
	ErrOrderNotFound        = errors.New("order not found")
	ErrInvalidTransition    = errors.New("status transition not allowed")
	ErrConfirmationRequired = errors.New("deletion must be confirmed")
	ErrUpdatePending        = errors.New("a write for this order is still in flight")
	ErrPersistFailed        = errors.New("could not save change")
	ErrClosed               = errors.New("board is closed")
)

// Store persists status changes and deletions.
type Store interface {
	UpdateStatus(ctx context.Context, restaurantID, orderID string, status models.Status, from ...models.Status) (models.Order, error)
	Delete(ctx context.Context, restaurantID, orderID string) error
}

// EventPublisher announces persisted changes to other dashboards.
type EventPublisher interface {
	PublishOrderEvent(ctx context.Context, ev models.OrderEvent) error
}

// RowState is per-order UI state that never reaches the store.
type RowState struct {
	Pending      bool   `json:"pending"`
	UpdateFailed bool   `json:"update_failed"`
	Error        string `json:"error,omitempty"`
}

// Change describes why the collection changed.
type Change struct {
	Reason  string
	OrderID string
}

const (
	ReasonSeeded       = "seeded"
	ReasonRealtime     = "realtime"
	ReasonPending      = "pending"
	ReasonStatus       = "status_changed"
	ReasonStatusFailed = "status_failed"
	ReasonDeleted      = "deleted"
)

// Board is the single normalized order collection of one dashboard. List
// and kanban views are projections of it. Writes are persisted first and
// applied in memory only after the store confirmed them. Concurrent edits
// from other dashboards resolve as last write wins at the store, except
// that the strict policy refuses to move an order the store holds as
// terminal.
type Board struct {
	mu           sync.Mutex
	restaurantID string
	orders       []models.Order
	rows         map[string]*RowState
	listeners    []func(Change)
	closed       bool

	store     Store
	publisher EventPublisher
	policy    TransitionPolicy
	logger    *logger.Logger
}

func New(restaurantID string, store Store, publisher EventPublisher, policy TransitionPolicy, log *logger.Logger) *Board {
	return &Board{
		restaurantID: restaurantID,
		orders:       make([]models.Order, 0),
		rows:         make(map[string]*RowState),
		store:        store,
		publisher:    publisher,
		policy:       policy,
		logger:       log,
	}
}

func (b *Board) RestaurantID() string { return b.restaurantID }

func (b *Board) Policy() TransitionPolicy { return b.policy }

// OnChange registers fn to run after every change. fn runs outside the
// board lock and may read the board.
func (b *Board) OnChange(fn func(Change)) {
	b.mu.Lock()
	b.listeners = append(b.listeners, fn)
	b.mu.Unlock()
}

// Replace swaps in a freshly loaded collection. Orders of other
// restaurants are dropped. Row state survives for orders still present.
func (b *Board) Replace(orders []models.Order) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}

	next := make([]models.Order, 0, len(orders))
	keep := make(map[string]bool, len(orders))
	for _, o := range orders {
		if o.RestaurantID != b.restaurantID {
			continue
		}
		next = append(next, o.Clone())
		keep[o.ID] = true
	}
	for id := range b.rows {
		if !keep[id] {
			delete(b.rows, id)
		}
	}
	b.orders = next
	b.mu.Unlock()

	b.notify(Change{Reason: ReasonSeeded})
}

// Transform applies fn to the collection atomically. fn receives a copy and
// returns the new collection plus whether anything changed. It is how the
// realtime feed folds events in.
func (b *Board) Transform(orderID string, fn func([]models.Order) ([]models.Order, bool)) bool {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return false
	}

	current := make([]models.Order, len(b.orders))
	copy(current, b.orders)
	next, changed := fn(current)
	if changed {
		b.orders = next
		if b.indexOf(orderID) < 0 {
			delete(b.rows, orderID)
		}
	}
	b.mu.Unlock()

	if changed {
		b.notify(Change{Reason: ReasonRealtime, OrderID: orderID})
	}
	return changed
}

// Orders returns a deep copy of the collection, newest first.
func (b *Board) Orders() []models.Order {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snapshotLocked()
}

// Get returns one order and its row state.
func (b *Board) Get(orderID string) (models.Order, RowState, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	i := b.indexOf(orderID)
	if i < 0 {
		return models.Order{}, RowState{}, false
	}
	return b.orders[i].Clone(), b.rowLocked(orderID), true
}

// FlatList projects the collection into list rows.
func (b *Board) FlatList() []ListEntry {
	b.mu.Lock()
	orders := b.snapshotLocked()
	rows := b.rowsLocked()
	b.mu.Unlock()

	return ToFlatList(orders, rows, b.policy)
}

// Kanban projects the collection into status columns.
func (b *Board) Kanban() []Column {
	return ToKanbanColumns(b.FlatList())
}

// SetStatus persists status for the order and, once the store confirmed,
// applies it in place. A failed write leaves the last persisted status and
// flags the row as update_failed.
func (b *Board) SetStatus(ctx context.Context, orderID string, status models.Status, requestID string) (models.Order, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return models.Order{}, ErrClosed
	}
	i := b.indexOf(orderID)
	if i < 0 {
		b.mu.Unlock()
		return models.Order{}, ErrOrderNotFound
	}
	current := b.orders[i]
	if current.Status == status {
		b.mu.Unlock()
		return current.Clone(), nil
	}
	if !b.policy.Allows(current.Status, status) {
		b.mu.Unlock()
		return models.Order{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, status)
	}
	row := b.row(orderID)
	if row.Pending {
		b.mu.Unlock()
		return models.Order{}, ErrUpdatePending
	}
	row.Pending = true
	b.mu.Unlock()
	b.notify(Change{Reason: ReasonPending, OrderID: orderID})

	persisted, err := b.store.UpdateStatus(ctx, b.restaurantID, orderID, status, b.policy.Sources(status)...)

	b.mu.Lock()
	row.Pending = false
	if b.closed {
		b.mu.Unlock()
		if err != nil {
			return models.Order{}, fmt.Errorf("%w: %w", ErrPersistFailed, err)
		}
		return persisted, nil
	}

	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			b.removeLocked(orderID)
			b.mu.Unlock()
			b.notify(Change{Reason: ReasonDeleted, OrderID: orderID})
			return models.Order{}, ErrOrderNotFound
		}
		if errors.Is(err, database.ErrConflict) {
			b.mu.Unlock()
			b.logger.Warn("order_status_conflict", "Stored status no longer allows the change", requestID, map[string]interface{}{
				"restaurant_id": b.restaurantID,
				"order_id":      orderID,
				"to":            string(status),
				"error":         err.Error(),
			})
			b.notify(Change{Reason: ReasonStatus, OrderID: orderID})
			return models.Order{}, fmt.Errorf("%w: %w", ErrInvalidTransition, err)
		}
		row.UpdateFailed = true
		row.Error = ErrPersistFailed.Error()
		b.mu.Unlock()

		b.logger.Error("order_status_update_failed", "Failed to persist status change", requestID, err, map[string]interface{}{
			"restaurant_id": b.restaurantID,
			"order_id":      orderID,
			"from":          string(current.Status),
			"to":            string(status),
		})
		b.notify(Change{Reason: ReasonStatusFailed, OrderID: orderID})
		return models.Order{}, fmt.Errorf("%w: %w", ErrPersistFailed, err)
	}

	row.UpdateFailed = false
	row.Error = ""
	if j := b.indexOf(orderID); j >= 0 {
		b.orders[j] = persisted.Clone()
	}
	b.mu.Unlock()

	b.logger.Info("order_status_updated", "Order status changed", requestID, map[string]interface{}{
		"restaurant_id": b.restaurantID,
		"order_id":      orderID,
		"from":          string(current.Status),
		"to":            string(status),
	})
	b.notify(Change{Reason: ReasonStatus, OrderID: orderID})
	b.publish(ctx, models.EventUpdate, persisted, requestID)

	return persisted.Clone(), nil
}

// Delete removes the order from the store and then from the collection.
// It refuses to run unless confirmed is true.
func (b *Board) Delete(ctx context.Context, orderID string, confirmed bool, requestID string) error {
	if !confirmed {
		return ErrConfirmationRequired
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	i := b.indexOf(orderID)
	if i < 0 {
		b.mu.Unlock()
		return ErrOrderNotFound
	}
	order := b.orders[i].Clone()
	row := b.row(orderID)
	if row.Pending {
		b.mu.Unlock()
		return ErrUpdatePending
	}
	row.Pending = true
	b.mu.Unlock()

	err := b.store.Delete(ctx, b.restaurantID, orderID)
	if err != nil && !errors.Is(err, database.ErrNotFound) {
		b.mu.Lock()
		row.Pending = false
		row.UpdateFailed = true
		row.Error = ErrPersistFailed.Error()
		b.mu.Unlock()

		b.logger.Error("order_delete_failed", "Failed to delete order", requestID, err, map[string]interface{}{
			"restaurant_id": b.restaurantID,
			"order_id":      orderID,
		})
		b.notify(Change{Reason: ReasonStatusFailed, OrderID: orderID})
		return fmt.Errorf("%w: %w", ErrPersistFailed, err)
	}

	b.mu.Lock()
	b.removeLocked(orderID)
	b.mu.Unlock()

	b.logger.Info("order_deleted", "Order deleted", requestID, map[string]interface{}{
		"restaurant_id": b.restaurantID,
		"order_id":      orderID,
	})
	b.notify(Change{Reason: ReasonDeleted, OrderID: orderID})
	if err == nil {
		b.publish(ctx, models.EventDelete, order, requestID)
	}
	return nil
}

// Close detaches the board. Later events and writes no longer touch it.
func (b *Board) Close() {
	b.mu.Lock()
	b.closed = true
	b.listeners = nil
	b.mu.Unlock()
}

func (b *Board) publish(ctx context.Context, t models.EventType, order models.Order, requestID string) {
	if b.publisher == nil {
		return
	}
	ev := models.OrderEvent{
		EventID:      uuid.NewString(),
		Type:         t,
		RestaurantID: b.restaurantID,
		Order:        order,
		OccurredAt:   time.Now().UTC(),
	}
	if err := b.publisher.PublishOrderEvent(ctx, ev); err != nil {
		b.logger.Warn("order_event_publish_failed", "Change saved but event was not published", requestID, map[string]interface{}{
			"order_id": order.ID,
			"type":     string(t),
			"error":    err.Error(),
		})
	}
}

func (b *Board) notify(c Change) {
	b.mu.Lock()
	listeners := append([]func(Change){}, b.listeners...)
	b.mu.Unlock()

	for _, fn := range listeners {
		fn(c)
	}
}

func (b *Board) indexOf(orderID string) int {
	for i := range b.orders {
		if b.orders[i].ID == orderID {
			return i
		}
	}
	return -1
}

func (b *Board) row(orderID string) *RowState {
	r, ok := b.rows[orderID]
	if !ok {
		r = &RowState{}
		b.rows[orderID] = r
	}
	return r
}

func (b *Board) rowLocked(orderID string) RowState {
	if r, ok := b.rows[orderID]; ok {
		return *r
	}
	return RowState{}
}

func (b *Board) rowsLocked() map[string]RowState {
	out := make(map[string]RowState, len(b.rows))
	for id, r := range b.rows {
		out[id] = *r
	}
	return out
}

func (b *Board) removeLocked(orderID string) {
	if i := b.indexOf(orderID); i >= 0 {
		next := make([]models.Order, 0, len(b.orders)-1)
		next = append(next, b.orders[:i]...)
		b.orders = append(next, b.orders[i+1:]...)
	}
	delete(b.rows, orderID)
}

func (b *Board) snapshotLocked() []models.Order {
	out := make([]models.Order, len(b.orders))
	for i, o := range b.orders {
		out[i] = o.Clone()
	}
	return out
}
