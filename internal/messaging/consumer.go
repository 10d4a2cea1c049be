package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"

	"restaurant-orders/internal/logger"
	"restaurant-orders/internal/models"
)

const subscriptionBuffer = 16

// Subscriber opens realtime order event subscriptions backed by exclusive,
// auto-deleted queues.
type Subscriber struct {
	conn   *Connection
	logger *logger.Logger
}

// NewSubscriber creates a new realtime subscriber
func NewSubscriber(conn *Connection, log *logger.Logger) *Subscriber {
	return &Subscriber{
		conn:   conn,
		logger: log,
	}
}

// Subscribe streams events of the given types for one restaurant. With no
// types every event type is delivered. The returned channel is closed when
// ctx is cancelled or when the broker connection drops; callers tell the
// two apart by checking ctx.
func (s *Subscriber) Subscribe(ctx context.Context, restaurantID string, types ...models.EventType) (<-chan models.OrderEvent, error) {
	if len(types) == 0 {
		types = []models.EventType{models.EventInsert, models.EventUpdate, models.EventDelete}
	}

	ch, err := s.conn.OpenChannel(ctx)
	if err != nil {
		return nil, err
	}

	queue, err := ch.QueueDeclare(
		"",    // server-named
		false, // durable
		true,  // delete when unused
		true,  // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("failed to declare subscription queue: %w", err)
	}

	for _, t := range types {
		key := models.OrderRoutingKey(restaurantID, t)
		if err := ch.QueueBind(queue.Name, key, OrderEventsExchange, false, nil); err != nil {
			ch.Close()
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	consumerTag := "feed-" + uuid.NewString()
	msgs, err := ch.Consume(
		queue.Name,  // queue
		consumerTag, // consumer
		false,       // auto-ack
		true,        // exclusive
		false,       // no-local
		false,       // no-wait
		nil,         // args
	)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("failed to register consumer: %w", err)
	}

	s.logger.Info("subscription_started",
		fmt.Sprintf("Subscribed to order events for restaurant %s", restaurantID),
		"", map[string]interface{}{
			"restaurant_id": restaurantID,
			"queue":         queue.Name,
			"consumer":      consumerTag,
		})

	out := make(chan models.OrderEvent, subscriptionBuffer)
	go s.forward(ctx, ch, msgs, out, restaurantID)

	return out, nil
}

func (s *Subscriber) forward(ctx context.Context, ch *amqp091.Channel, msgs <-chan amqp091.Delivery, out chan<- models.OrderEvent, restaurantID string) {
	defer close(out)
	defer ch.Close()

	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("subscription_stopped", "Subscription stopped by context", "", map[string]interface{}{
				"restaurant_id": restaurantID,
			})
			return
		case d, ok := <-msgs:
			if !ok {
				s.logger.Warn("subscription_dropped", "Delivery channel closed", "", map[string]interface{}{
					"restaurant_id": restaurantID,
				})
				return
			}

			ev, err := DecodeOrderEvent(d.Body)
			if err != nil {
				s.logger.Error("message_parsing_failed", "Failed to parse order event", "", err, map[string]interface{}{
					"routing_key":  d.RoutingKey,
					"delivery_tag": d.DeliveryTag,
				})
				if nackErr := d.Nack(false, false); nackErr != nil {
					s.logger.Error("message_nack_failed", "Failed to nack message", "", nackErr, nil)
				}
				continue
			}

			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}

			if ackErr := d.Ack(false); ackErr != nil {
				s.logger.Error("message_ack_failed", "Failed to ack message", "", ackErr, nil)
			}
		}
	}
}

// DecodeOrderEvent parses and sanity-checks an order event body.
func DecodeOrderEvent(body []byte) (models.OrderEvent, error) {
	var ev models.OrderEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return models.OrderEvent{}, fmt.Errorf("failed to decode order event: %w", err)
	}
	switch ev.Type {
	case models.EventInsert, models.EventUpdate, models.EventDelete:
	default:
		return models.OrderEvent{}, fmt.Errorf("unknown event type %q", ev.Type)
	}
	if ev.RestaurantID == "" || ev.Order.ID == "" {
		return models.OrderEvent{}, fmt.Errorf("order event missing restaurant or order id")
	}
	return ev, nil
}
