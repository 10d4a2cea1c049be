package feed

import "restaurant-orders/internal/models"

// Reduce folds one realtime event into orders, which are kept newest first.
// Inserts are prepended without re-sorting, updates replace the order in
// place and deletes remove it. Events for another restaurant, inserts of an
// order already present and updates or deletes of unknown orders are
// ignored. The input slice is never modified.
func Reduce(restaurantID string, orders []models.Order, ev models.OrderEvent) ([]models.Order, bool) {
	if ev.RestaurantID != restaurantID || ev.Order.RestaurantID != restaurantID {
		return orders, false
	}

	idx := -1
	for i := range orders {
		if orders[i].ID == ev.Order.ID {
			idx = i
			break
		}
	}

	switch ev.Type {
	case models.EventInsert:
		if idx >= 0 {
			return orders, false
		}
		next := make([]models.Order, 0, len(orders)+1)
		next = append(next, ev.Order.Clone())
		return append(next, orders...), true

	case models.EventUpdate:
		if idx < 0 {
			return orders, false
		}
		next := make([]models.Order, len(orders))
		copy(next, orders)
		next[idx] = ev.Order.Clone()
		return next, true

	case models.EventDelete:
		if idx < 0 {
			return orders, false
		}
		next := make([]models.Order, 0, len(orders)-1)
		next = append(next, orders[:idx]...)
		return append(next, orders[idx+1:]...), true
	}

	return orders, false
}
