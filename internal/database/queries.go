package database

// Catalog queries
const (
	GetRestaurantSQL = `
		SELECT id, name, is_active FROM restaurants WHERE id = $1`

	GetTableSQL = `
		SELECT id, restaurant_id, table_number FROM restaurant_tables WHERE id = $1`

	GetMenuItemsSQL = `
		SELECT id, restaurant_id, name, price, is_available
		FROM menu_items WHERE id = ANY($1)`
)

// Order sequence
const (
	NextOrderSequenceSQL = `
		INSERT INTO order_sequences (restaurant_id, business_date, last_value)
		VALUES ($1, $2, 1)
		ON CONFLICT (restaurant_id, business_date)
		DO UPDATE SET last_value = order_sequences.last_value + 1
		RETURNING last_value`
)

// Order queries
const (
	orderColumns = `
		o.id, o.restaurant_id, o.table_id, t.table_number, o.order_number,
		o.customer_name, o.customer_phone, o.special_instructions,
		o.status, o.payment_status, o.payment_method,
		o.subtotal, o.discount_amount, o.tax_amount, o.total_amount, o.cancel_reason,
		o.confirmed_at, o.completed_at, o.cancelled_at, o.paid_at,
		o.version, o.created_at, o.updated_at`

	InsertOrderSQL = `
		INSERT INTO orders (id, restaurant_id, table_id, order_number, customer_name, customer_phone,
			special_instructions, status, payment_status, payment_method,
			subtotal, discount_amount, tax_amount, total_amount, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`

	InsertOrderItemSQL = `
		INSERT INTO order_items (id, order_id, menu_item_id, position, item_name, unit_price,
			quantity, subtotal, status, special_instructions)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	InsertOrderStatusLogSQL = `
		INSERT INTO order_status_log (order_id, status, changed_by, notes, changed_at)
		VALUES ($1, $2, $3, $4, $5)`

	GetOrderByIDSQL = `
		SELECT ` + orderColumns + `
		FROM orders o LEFT JOIN restaurant_tables t ON t.id = o.table_id
		WHERE o.id = $1`

	GetOrderByItemIDSQL = `
		SELECT ` + orderColumns + `
		FROM orders o LEFT JOIN restaurant_tables t ON t.id = o.table_id
		WHERE o.id = (SELECT order_id FROM order_items WHERE id = $1)`

	ListOrdersSQL = `
		SELECT ` + orderColumns + `
		FROM orders o LEFT JOIN restaurant_tables t ON t.id = o.table_id
		WHERE o.restaurant_id = $1 AND ($2 = '' OR o.status = $2)
		ORDER BY o.created_at DESC, o.order_number DESC`

	GetOrderItemsSQL = `
		SELECT id, order_id, menu_item_id, position, item_name, unit_price, quantity, subtotal,
			status, special_instructions, started_preparing_at, ready_at, served_at
		FROM order_items WHERE order_id = ANY($1)
		ORDER BY order_id, position`

	UpdateOrderStatusSQL = `
		UPDATE orders SET status = $2, payment_status = $3, cancel_reason = $4,
			confirmed_at = $5, completed_at = $6, cancelled_at = $7, paid_at = $8,
			updated_at = $9, version = version + 1
		WHERE id = $1 AND version = $10`

	UpdateOrderItemStatusSQL = `
		UPDATE order_items SET status = $2, started_preparing_at = $3, ready_at = $4, served_at = $5
		WHERE id = $1 AND status = $6`

	TouchOrderSQL = `
		UPDATE orders SET updated_at = $2 WHERE id = $1`

	DeleteOrderSQL = `
		DELETE FROM orders WHERE id = $1`

	GetOrderStatusHistorySQL = `
		SELECT id, order_id, status, changed_by, notes, changed_at
		FROM order_status_log
		WHERE order_id = $1
		ORDER BY changed_at ASC, id ASC`
)

// Outbox queries
const (
	InsertOutboxSQL = `
		INSERT INTO outbox (event_id, event_type, aggregate_id, routing_key, payload)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (event_type, aggregate_id) DO NOTHING`

	FetchPendingOutboxSQL = `
		SELECT id, event_id, event_type, aggregate_id, routing_key, payload, attempts, created_at
		FROM outbox
		WHERE sent_at IS NULL
		ORDER BY id
		LIMIT $1
		FOR UPDATE SKIP LOCKED`

	MarkOutboxSentSQL = `
		UPDATE outbox SET sent_at = NOW(), attempts = attempts + 1, last_error = NULL WHERE id = $1`

	MarkOutboxFailedSQL = `
		UPDATE outbox SET attempts = attempts + 1, last_error = $2 WHERE id = $1`
)

// Inventory queries
const (
	ClaimDeductionSQL = `
		INSERT INTO inventory_deductions (order_id, event_id)
		VALUES ($1, $2)
		ON CONFLICT (order_id) DO NOTHING`

	GetDeductionLinesSQL = `
		SELECT oi.menu_item_id, oi.item_name, oi.quantity, ri.ingredient_id, ri.quantity
		FROM order_items oi
		LEFT JOIN recipe_ingredients ri ON ri.menu_item_id = oi.menu_item_id
		WHERE oi.order_id = $1
		ORDER BY oi.position, ri.ingredient_id`

	DeductIngredientSQL = `
		UPDATE ingredients SET current_stock = current_stock - $2, updated_at = NOW()
		WHERE id = $1
		RETURNING restaurant_id, name, unit, current_stock, min_stock`

	InsertStockAdjustmentSQL = `
		INSERT INTO stock_adjustments (ingredient_id, order_id, adjustment_type, quantity, stock_after, notes)
		VALUES ($1, $2, $3, $4, $5, $6)`
)
