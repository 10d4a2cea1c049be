package models

import (
	"fmt"
	"strings"
	"time"
)

// EventType is the kind of change a realtime event describes.
type EventType string

const (
	EventInsert EventType = "INSERT"
	EventUpdate EventType = "UPDATE"
	EventDelete EventType = "DELETE"
)

// OrderEvent is published after every successful write to the orders store.
type OrderEvent struct {
	EventID      string    `json:"event_id"`
	Type         EventType `json:"type"`
	RestaurantID string    `json:"restaurant_id"`
	Order        Order     `json:"order"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// RoutingKey places the event under orders.<restaurant>.<insert|update|delete>.
func (e OrderEvent) RoutingKey() string {
	return OrderRoutingKey(e.RestaurantID, e.Type)
}

// OrderRoutingKey builds the topic key for one restaurant and event type.
func OrderRoutingKey(restaurantID string, t EventType) string {
	return fmt.Sprintf("orders.%s.%s", restaurantID, strings.ToLower(string(t)))
}
