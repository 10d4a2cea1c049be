package order

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"restaurant-orders/internal/cart"
	"restaurant-orders/internal/logger"
	"restaurant-orders/internal/models"
	"restaurant-orders/internal/services/order/internal/validation"
)

var (
	// ErrEmptyCart is returned when a submission is attempted with nothing in the cart.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrSubmissionFailed wraps every store failure. Its message is what guests see.
	ErrSubmissionFailed = errors.New("couldn't submit order, please try again")
)

// OrderStore persists new orders.
type OrderStore interface {
	Insert(ctx context.Context, o models.NewOrder) (models.Order, bool, error)
}

// EventPublisher announces persisted orders to realtime subscribers.
type EventPublisher interface {
	PublishOrderEvent(ctx context.Context, ev models.OrderEvent) error
}

// Details are the optional guest fields sent with a submission.
type Details struct {
	GuestName       string `json:"guest_name"`
	TableNumber     string `json:"table_number"`
	Comment         string `json:"comment"`
	SubmissionToken string `json:"submission_token"`
}

type Options struct {
	// IdempotentSubmissions persists the client submission token so a
	// retried submit returns the original order instead of a duplicate.
	IdempotentSubmissions bool
	MaxLineItems          int

	// MaxItemQuantity caps the quantity of one line item.
	MaxItemQuantity int
}

const defaultMaxItemQuantity = 99

// Service turns a cart into a persisted order.
type Service struct {
	store     OrderStore
	publisher EventPublisher
	logger    *logger.Logger
	opts      Options
}

func NewService(store OrderStore, publisher EventPublisher, log *logger.Logger, opts Options) *Service {
	if opts.MaxItemQuantity <= 0 {
		opts.MaxItemQuantity = defaultMaxItemQuantity
	}
	return &Service{
		store:     store,
		publisher: publisher,
		logger:    log,
		opts:      opts,
	}
}

// Submit snapshots the cart, persists it as a new order and clears the cart
// only after the store confirmed the write. On any failure the cart is left
// unchanged so the guest can retry.
func (s *Service) Submit(ctx context.Context, restaurantID string, c *cart.Cart, d Details, requestID string) (models.Order, error) {
	var order models.Order
	err := c.Checkout(func(entries []cart.Entry) error {
		var err error
		order, err = s.submitEntries(ctx, restaurantID, entries, d, requestID)
		return err
	})
	if err != nil {
		return models.Order{}, err
	}
	return order, nil
}

func (s *Service) submitEntries(ctx context.Context, restaurantID string, entries []cart.Entry, d Details, requestID string) (models.Order, error) {
	if len(entries) == 0 {
		return models.Order{}, ErrEmptyCart
	}

	items := Snapshot(entries)
	sub := validation.Submission{
		RestaurantID: restaurantID,
		Items:        items,
		GuestName:    strings.TrimSpace(d.GuestName),
		TableNumber:  strings.TrimSpace(d.TableNumber),
		Comment:      strings.TrimSpace(d.Comment),
	}
	if err := validation.ValidateSubmission(sub, validation.Limits{
		MaxLineItems:    s.opts.MaxLineItems,
		MaxItemQuantity: s.opts.MaxItemQuantity,
	}); err != nil {
		return models.Order{}, err
	}

	newOrder := models.NewOrder{
		RestaurantID: restaurantID,
		Items:        items,
		GuestName:    optional(sub.GuestName),
		TableNumber:  optional(sub.TableNumber),
		Comment:      optional(sub.Comment),
	}
	if s.opts.IdempotentSubmissions {
		newOrder.SubmissionToken = optional(strings.TrimSpace(d.SubmissionToken))
	}

	order, created, err := s.store.Insert(ctx, newOrder)
	if err != nil {
		s.logger.Error("order_submit_failed", "Failed to persist order", requestID, err, map[string]interface{}{
			"restaurant_id": restaurantID,
			"line_items":    len(items),
		})
		return models.Order{}, fmt.Errorf("%w: %w", ErrSubmissionFailed, err)
	}

	if !created {
		s.logger.Info("order_submit_deduplicated", "Submission token already used, returning existing order", requestID, map[string]interface{}{
			"restaurant_id": restaurantID,
			"order_id":      order.ID,
		})
		return order, nil
	}

	s.logger.Info("order_submitted", "Order persisted", requestID, map[string]interface{}{
		"restaurant_id": restaurantID,
		"order_id":      order.ID,
		"total":         order.Total().String(),
	})

	s.announce(ctx, order, requestID)
	return order, nil
}

// announce publishes the insert event. The order is already persisted, so a
// publish failure is only logged; dashboards pick the order up on resync.
func (s *Service) announce(ctx context.Context, order models.Order, requestID string) {
	if s.publisher == nil {
		return
	}
	ev := models.OrderEvent{
		EventID:      uuid.NewString(),
		Type:         models.EventInsert,
		RestaurantID: order.RestaurantID,
		Order:        order,
		OccurredAt:   time.Now().UTC(),
	}
	if err := s.publisher.PublishOrderEvent(ctx, ev); err != nil {
		s.logger.Warn("order_event_publish_failed", "Order saved but insert event was not published", requestID, map[string]interface{}{
			"order_id": order.ID,
			"error":    err.Error(),
		})
	}
}

// Snapshot copies cart entries into immutable line items. Later changes to
// the cart or the menu never reach the returned slice.
func Snapshot(entries []cart.Entry) []models.LineItem {
	items := make([]models.LineItem, 0, len(entries))
	for _, e := range entries {
		items = append(items, models.LineItem{
			MenuItemID: e.MenuItemID,
			Name:       e.Name,
			Price:      e.Price,
			Quantity:   e.Quantity,
		})
	}
	return items
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
