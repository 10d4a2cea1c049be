package database

// OrderColumns is the column list every order read returns, in scan order.
const OrderColumns = `id::text, restaurant_id, items, guest_name, table_number, comment, status, created_at, updated_at`

// Order queries
const (
	InsertOrderSQL = `
		INSERT INTO orders (id, restaurant_id, items, guest_name, table_number, comment, status, submission_token)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''), 'new', $7)
		ON CONFLICT (restaurant_id, submission_token) WHERE submission_token IS NOT NULL DO NOTHING
		RETURNING ` + OrderColumns

	GetOrderBySubmissionTokenSQL = `
		SELECT ` + OrderColumns + `
		FROM orders WHERE restaurant_id = $1 AND submission_token = $2`

	InsertOrderStatusLogSQL = `
		INSERT INTO order_status_log (order_id, status)
		VALUES ($1, $2)`

	UpdateOrderStatusSQL = `
		UPDATE orders SET status = $3, updated_at = now()
		WHERE id = $1 AND restaurant_id = $2
		RETURNING ` + OrderColumns

	// UpdateOrderStatusFromSQL only moves orders whose stored status is in $4.
	UpdateOrderStatusFromSQL = `
		UPDATE orders SET status = $3, updated_at = now()
		WHERE id = $1 AND restaurant_id = $2 AND status = ANY($4)
		RETURNING ` + OrderColumns

	DeleteOrderSQL = `
		DELETE FROM orders WHERE id = $1 AND restaurant_id = $2`

	GetOrderSQL = `
		SELECT ` + OrderColumns + `
		FROM orders WHERE id = $1 AND restaurant_id = $2`

	ListOrdersByRestaurantSQL = `
		SELECT ` + OrderColumns + `
		FROM orders WHERE restaurant_id = $1
		ORDER BY created_at DESC, id DESC`
)
