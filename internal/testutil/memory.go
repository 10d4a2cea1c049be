// Package testutil provides in-memory stand-ins for the order store and the
// realtime event bus.
package testutil

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"restaurant-orders/internal/database"
	"restaurant-orders/internal/models"
)

// tokenKey scopes submission tokens per restaurant, like the unique index.
type tokenKey struct {
	restaurantID string
	token        string
}

// MemoryStore implements the order repository methods against a map.
// Fail* setters inject errors into the next calls until reset with nil.
type MemoryStore struct {
	mu        sync.Mutex
	orders    map[string]models.Order
	tokens    map[tokenKey]string
	seq       int
	base      time.Time
	insertErr error
	updateErr error
	deleteErr error
	listErr   error

	Inserts     int
	StatusCalls int
	ListCalls   int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		orders: make(map[string]models.Order),
		tokens: make(map[tokenKey]string),
		base:   time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (s *MemoryStore) FailInsert(err error) { s.mu.Lock(); s.insertErr = err; s.mu.Unlock() }
func (s *MemoryStore) FailUpdate(err error) { s.mu.Lock(); s.updateErr = err; s.mu.Unlock() }
func (s *MemoryStore) FailDelete(err error) { s.mu.Lock(); s.deleteErr = err; s.mu.Unlock() }
func (s *MemoryStore) FailList(err error)   { s.mu.Lock(); s.listErr = err; s.mu.Unlock() }

// Put stores o as-is, bypassing validation. Used to seed fixtures, including
// malformed ones.
func (s *MemoryStore) Put(o models.Order) models.Order {
	s.mu.Lock()
	defer s.mu.Unlock()

	if o.ID == "" {
		s.seq++
		o.ID = fmt.Sprintf("order-%d", s.seq)
	}
	if o.CreatedAt.IsZero() {
		s.seq++
		o.CreatedAt = s.base.Add(time.Duration(s.seq) * time.Second)
	}
	if o.UpdatedAt.IsZero() {
		o.UpdatedAt = o.CreatedAt
	}
	if o.Status == "" {
		o.Status = models.StatusNew
	}
	s.orders[o.ID] = o.Clone()
	return o.Clone()
}

func (s *MemoryStore) Insert(_ context.Context, n models.NewOrder) (models.Order, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.insertErr != nil {
		return models.Order{}, false, s.insertErr
	}
	if n.SubmissionToken != nil {
		if id, ok := s.tokens[tokenKey{n.RestaurantID, *n.SubmissionToken}]; ok {
			return s.orders[id].Clone(), false, nil
		}
	}

	s.seq++
	created := s.base.Add(time.Duration(s.seq) * time.Second)
	o := models.Order{
		ID:           fmt.Sprintf("order-%d", s.seq),
		RestaurantID: n.RestaurantID,
		Items:        append([]models.LineItem(nil), n.Items...),
		GuestName:    n.GuestName,
		TableNumber:  n.TableNumber,
		Comment:      n.Comment,
		Status:       models.StatusNew,
		CreatedAt:    created,
		UpdatedAt:    created,
	}
	s.orders[o.ID] = o.Clone()
	if n.SubmissionToken != nil {
		s.tokens[tokenKey{n.RestaurantID, *n.SubmissionToken}] = o.ID
	}
	s.Inserts++
	return o, true, nil
}

func (s *MemoryStore) UpdateStatus(_ context.Context, restaurantID, orderID string, status models.Status, from ...models.Status) (models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.StatusCalls++
	if s.updateErr != nil {
		return models.Order{}, s.updateErr
	}
	o, ok := s.orders[orderID]
	if !ok || o.RestaurantID != restaurantID {
		return models.Order{}, fmt.Errorf("order %s: %w", orderID, database.ErrNotFound)
	}
	if len(from) > 0 && !slices.Contains(from, o.Status) {
		return models.Order{}, fmt.Errorf("order %s is %s: %w", orderID, o.Status, database.ErrConflict)
	}
	o.Status = status
	o.UpdatedAt = o.UpdatedAt.Add(time.Second)
	s.orders[orderID] = o
	return o.Clone(), nil
}

func (s *MemoryStore) Delete(_ context.Context, restaurantID, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.deleteErr != nil {
		return s.deleteErr
	}
	o, ok := s.orders[orderID]
	if !ok || o.RestaurantID != restaurantID {
		return fmt.Errorf("order %s: %w", orderID, database.ErrNotFound)
	}
	delete(s.orders, orderID)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, restaurantID, orderID string) (models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[orderID]
	if !ok || o.RestaurantID != restaurantID {
		return models.Order{}, fmt.Errorf("order %s: %w", orderID, database.ErrNotFound)
	}
	return o.Clone(), nil
}

// ListByRestaurant returns the restaurant's orders newest first.
func (s *MemoryStore) ListByRestaurant(_ context.Context, restaurantID string) ([]models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ListCalls++
	if s.listErr != nil {
		return nil, s.listErr
	}
	out := make([]models.Order, 0)
	for _, o := range s.orders {
		if o.RestaurantID == restaurantID {
			out = append(out, o.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}
