package notification

import (
	"context"

	"restaurant-orders/internal/logger"
	"restaurant-orders/internal/models"
	"restaurant-orders/internal/services/board"
	"restaurant-orders/internal/services/feed"
	"restaurant-orders/internal/services/metrics"
)

// Store is what the notifier reads orders from.
type Store interface {
	feed.Lister
	board.Store
}

// Notifier follows one restaurant's orders from a terminal and alerts on
// every new one.
type Notifier struct {
	restaurantID string
	store        Store
	subscriber   feed.Subscriber
	alerter      *ConsoleAlerter
	feedOpts     feed.Options
	logger       *logger.Logger
}

// NewNotifier creates a new notifier
func NewNotifier(restaurantID string, store Store, subscriber feed.Subscriber, alerter *ConsoleAlerter, feedOpts feed.Options, log *logger.Logger) *Notifier {
	return &Notifier{
		restaurantID: restaurantID,
		store:        store,
		subscriber:   subscriber,
		alerter:      alerter,
		feedOpts:     feedOpts,
		logger:       log,
	}
}

// Run blocks until ctx is cancelled. It prints a summary once the orders
// are loaded and again after every alert.
func (n *Notifier) Run(ctx context.Context) error {
	requestID := logger.GenerateRequestID()

	b := board.New(n.restaurantID, n.store, nil, board.PolicyStrict, n.logger)
	defer b.Close()

	alert := feed.AlerterFunc(func(o models.Order) {
		n.alerter.Alert(o)
		n.alerter.Summary(n.restaurantID, metrics.Compute(b.Orders()))
	})
	f := feed.New(n.restaurantID, n.store, n.subscriber, b, alert, n.logger, n.feedOpts)

	n.logger.Info("service_started", "Notifier started", requestID, map[string]interface{}{
		"restaurant_id": n.restaurantID,
	})

	done := make(chan error, 1)
	go func() { done <- f.Run(ctx) }()

	select {
	case <-f.Ready():
		n.alerter.Summary(n.restaurantID, metrics.Compute(b.Orders()))
	case <-ctx.Done():
	}

	err := <-done
	n.logger.Info("graceful_shutdown", "Notifier stopped", requestID, map[string]interface{}{
		"restaurant_id": n.restaurantID,
	})
	return err
}
