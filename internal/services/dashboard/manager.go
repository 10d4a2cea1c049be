package dashboard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"restaurant-orders/internal/database"
	"restaurant-orders/internal/logger"
	"restaurant-orders/internal/models"
	"restaurant-orders/internal/services/board"
	"restaurant-orders/internal/services/feed"
	"restaurant-orders/internal/session"
)

var ErrSessionNotFound = errors.New("dashboard session not found")

// Store is everything a dashboard needs from the order repository.
type Store interface {
	feed.Lister
	board.Store
}

// Options configures every view the manager opens.
type Options struct {
	Policy     board.TransitionPolicy
	Feed       feed.Options
	SessionTTL time.Duration
	// Alerter, when set, also fires for each new order on every view.
	Alerter feed.Alerter
}

// Manager opens, tracks and expires dashboard sessions.
type Manager struct {
	store      Store
	subscriber feed.Subscriber
	publisher  board.EventPublisher
	opts       Options
	sessions   *session.Registry[*View]
	logger     *logger.Logger
}

func NewManager(store Store, subscriber feed.Subscriber, publisher board.EventPublisher, log *logger.Logger, opts Options) *Manager {
	if opts.Policy == "" {
		opts.Policy = board.PolicyStrict
	}
	m := &Manager{
		store:      store,
		subscriber: subscriber,
		publisher:  publisher,
		opts:       opts,
		logger:     log,
	}
	m.sessions = session.NewRegistry(opts.SessionTTL, func(id string, v *View) {
		v.Close()
		m.logger.Info("dashboard_closed", "Dashboard session closed", "", map[string]interface{}{
			"session_id":    id,
			"restaurant_id": v.Board.RestaurantID(),
		})
	})
	return m
}

// Open mounts a view for restaurantID and waits until its first load has
// landed or ctx is done. A view that could not load is torn down again.
func (m *Manager) Open(ctx context.Context, restaurantID, requestID string) (string, *View, error) {
	b := board.New(restaurantID, m.store, m.publisher, m.opts.Policy, m.logger)
	v := newView(b, m.opts.Alerter, m.logger)
	v.start(feed.New(restaurantID, m.store, m.subscriber, b, v, m.logger, m.opts.Feed))

	select {
	case <-v.Ready():
	case <-ctx.Done():
		v.Close()
		m.logger.Warn("dashboard_open_failed", "Initial order load did not complete", requestID, map[string]interface{}{
			"restaurant_id": restaurantID,
		})
		return "", nil, fmt.Errorf("load orders: %w: %w", database.ErrUnavailable, ctx.Err())
	}

	id := m.sessions.Create(v)
	m.logger.Info("dashboard_opened", "Dashboard session opened", requestID, map[string]interface{}{
		"session_id":    id,
		"restaurant_id": restaurantID,
		"orders":        len(b.Orders()),
	})
	return id, v, nil
}

func (m *Manager) Get(sessionID string) (*View, error) {
	v, ok := m.sessions.Get(sessionID)
	if !ok {
		return nil, ErrSessionNotFound
	}
	return v, nil
}

// Close unmounts the session. Closing an unknown session reports
// ErrSessionNotFound.
func (m *Manager) Close(sessionID string) error {
	if !m.sessions.Delete(sessionID) {
		return ErrSessionNotFound
	}
	return nil
}

func (m *Manager) Len() int { return m.sessions.Len() }

// Run expires idle sessions every interval until ctx is cancelled.
func (m *Manager) Run(ctx context.Context, every time.Duration) {
	m.sessions.Run(ctx, every)
}

// Shutdown closes every open view.
func (m *Manager) Shutdown() {
	m.sessions.CloseAll()
}

// SetStatus applies a status change through the session's board.
func (m *Manager) SetStatus(ctx context.Context, sessionID, orderID string, status models.Status, requestID string) (board.ListEntry, error) {
	v, err := m.Get(sessionID)
	if err != nil {
		return board.ListEntry{}, err
	}
	o, err := v.Board.SetStatus(ctx, orderID, status, requestID)
	if err != nil {
		return board.ListEntry{}, err
	}
	return board.ToFlatList([]models.Order{o}, nil, v.Board.Policy())[0], nil
}
