package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"restaurant-orders/internal/database"
	"restaurant-orders/internal/models"
)

// DBPool matches the methods from *pgxpool.Pool that the repository uses,
// so tests can substitute pgxmock.
type DBPool interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// OrderRepository persists orders in PostgreSQL.
type OrderRepository struct {
	pool  DBPool
	newID func() string
}

func NewOrderRepository(pool DBPool) *OrderRepository {
	return &OrderRepository{pool: pool, newID: uuid.NewString}
}

// Insert stores a new order with status new and records the initial status.
// When the submission token was already used at the same restaurant, the
// existing order is returned with created=false and nothing is written.
func (r *OrderRepository) Insert(ctx context.Context, o models.NewOrder) (models.Order, bool, error) {
	itemsJSON, err := json.Marshal(o.Items)
	if err != nil {
		return models.Order{}, false, fmt.Errorf("failed to encode line items: %w", err)
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Order{}, false, fmt.Errorf("failed to begin transaction: %w", database.Classify(err))
	}
	defer func() { _ = tx.Rollback(ctx) }()

	order, err := scanOrder(tx.QueryRow(ctx, database.InsertOrderSQL,
		r.newID(), o.RestaurantID, string(itemsJSON),
		deref(o.GuestName), deref(o.TableNumber), deref(o.Comment), o.SubmissionToken))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) && o.SubmissionToken != nil {
			existing, lookupErr := scanOrder(tx.QueryRow(ctx, database.GetOrderBySubmissionTokenSQL, o.RestaurantID, *o.SubmissionToken))
			if lookupErr != nil {
				return models.Order{}, false, fmt.Errorf("failed to load existing submission: %w", database.Classify(lookupErr))
			}
			return existing, false, nil
		}
		return models.Order{}, false, fmt.Errorf("failed to insert order: %w", database.Classify(err))
	}

	if _, err := tx.Exec(ctx, database.InsertOrderStatusLogSQL, order.ID, string(models.StatusNew)); err != nil {
		return models.Order{}, false, fmt.Errorf("failed to record initial status: %w", database.Classify(err))
	}

	if err := tx.Commit(ctx); err != nil {
		return models.Order{}, false, fmt.Errorf("failed to commit order: %w", database.Classify(err))
	}

	return order, true, nil
}

// UpdateStatus persists a new status for one of the restaurant's orders and
// returns the stored row. When from is given, the row only changes if its
// stored status is one of them; otherwise database.ErrConflict is returned.
func (r *OrderRepository) UpdateStatus(ctx context.Context, restaurantID, orderID string, status models.Status, from ...models.Status) (models.Order, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Order{}, fmt.Errorf("failed to begin transaction: %w", database.Classify(err))
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var row pgx.Row
	if len(from) == 0 {
		row = tx.QueryRow(ctx, database.UpdateOrderStatusSQL, orderID, restaurantID, string(status))
	} else {
		allowed := make([]string, len(from))
		for i, s := range from {
			allowed[i] = string(s)
		}
		row = tx.QueryRow(ctx, database.UpdateOrderStatusFromSQL, orderID, restaurantID, string(status), allowed)
	}

	order, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) && len(from) > 0 {
		current, getErr := scanOrder(tx.QueryRow(ctx, database.GetOrderSQL, orderID, restaurantID))
		if getErr == nil {
			return models.Order{}, fmt.Errorf("order %s is %s: %w", orderID, current.Status, database.ErrConflict)
		}
		err = getErr
	}
	if err != nil {
		return models.Order{}, fmt.Errorf("failed to update order %s: %w", orderID, database.Classify(err))
	}

	if _, err := tx.Exec(ctx, database.InsertOrderStatusLogSQL, order.ID, string(status)); err != nil {
		return models.Order{}, fmt.Errorf("failed to record status change: %w", database.Classify(err))
	}

	if err := tx.Commit(ctx); err != nil {
		return models.Order{}, fmt.Errorf("failed to commit status change: %w", database.Classify(err))
	}

	return order, nil
}

// Delete removes one of the restaurant's orders.
func (r *OrderRepository) Delete(ctx context.Context, restaurantID, orderID string) error {
	tag, err := r.pool.Exec(ctx, database.DeleteOrderSQL, orderID, restaurantID)
	if err != nil {
		return fmt.Errorf("failed to delete order %s: %w", orderID, database.Classify(err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("order %s: %w", orderID, database.ErrNotFound)
	}
	return nil
}

// Get loads a single order of the restaurant.
func (r *OrderRepository) Get(ctx context.Context, restaurantID, orderID string) (models.Order, error) {
	order, err := scanOrder(r.pool.QueryRow(ctx, database.GetOrderSQL, orderID, restaurantID))
	if err != nil {
		return models.Order{}, fmt.Errorf("failed to get order %s: %w", orderID, database.Classify(err))
	}
	return order, nil
}

// ListByRestaurant returns all orders of a restaurant, newest first.
func (r *OrderRepository) ListByRestaurant(ctx context.Context, restaurantID string) ([]models.Order, error) {
	rows, err := r.pool.Query(ctx, database.ListOrdersByRestaurantSQL, restaurantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", database.Classify(err))
	}
	defer rows.Close()

	orders := make([]models.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", database.Classify(err))
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate orders: %w", database.Classify(err))
	}

	return orders, nil
}

func scanOrder(row pgx.Row) (models.Order, error) {
	var (
		o         models.Order
		rawItems  []byte
		status    string
		createdAt time.Time
		updatedAt time.Time
	)

	err := row.Scan(&o.ID, &o.RestaurantID, &rawItems, &o.GuestName, &o.TableNumber, &o.Comment, &status, &createdAt, &updatedAt)
	if err != nil {
		return models.Order{}, err
	}

	items, wellFormed, decodeErr := models.DecodeLineItems(rawItems)
	o.Items = items
	o.ItemsMalformed = decodeErr != nil || !wellFormed
	o.Status = models.Status(status)
	o.CreatedAt = createdAt.UTC()
	o.UpdatedAt = updatedAt.UTC()

	return o, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
