package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/kingwillyo/BellBuy-sub001/internal/models"

	"github.com/jmoiron/sqlx"
)

// CreateOrder inserts a new order row
func (s *Store) CreateOrder(ctx context.Context, order *models.Order) error {
	query := `
		INSERT INTO orders (buyer_id, seller_id, status, payment_status, delivery_method,
			shipping_fee, platform_fee, total_amount, confirmation_deadline, idempotency_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at, updated_at`

	return s.db.QueryRowxContext(ctx, query,
		order.BuyerID, order.SellerID, order.Status, order.PaymentStatus, order.DeliveryMethod,
		order.ShippingFee, order.PlatformFee, order.TotalAmount, order.ConfirmationDeadline,
		order.IdempotencyKey,
	).Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt)
}

// GetOrderByID retrieves an order by ID
func (s *Store) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrderByIdempotencyKey retrieves an order by idempotency key,
// returning (nil, nil) when none exists.
func (s *Store) GetOrderByIdempotencyKey(ctx context.Context, key string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE idempotency_key = $1", key)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// UpdateOrderStatus moves an order from one status to another. The WHERE
// guard makes stale transitions lose: the returned bool reports whether a
// row actually changed.
func (s *Store) UpdateOrderStatus(ctx context.Context, orderID int64, from, to models.OrderStatus) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3",
		to, orderID, from)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// UpdatePaymentStatus moves the escrow state with the same guard semantics
// as UpdateOrderStatus.
func (s *Store) UpdatePaymentStatus(ctx context.Context, orderID int64, from, to models.PaymentStatus) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE orders SET payment_status = $1, updated_at = NOW() WHERE id = $2 AND payment_status = $3",
		to, orderID, from)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// SetVerificationCode stores a freshly issued code and its expiry.
func (s *Store) SetVerificationCode(ctx context.Context, orderID int64, code string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE orders SET verification_code = $1, verification_expires_at = $2, updated_at = NOW() WHERE id = $3",
		code, expiresAt, orderID)
	return err
}

// CompleteOrder finalizes an order in a single statement: status becomes
// completed and the verification code is invalidated. Only orders still in
// one of the given statuses complete; a second attempt finds no row.
func (s *Store) CompleteOrder(ctx context.Context, orderID int64, from []models.OrderStatus) (bool, error) {
	query, args, err := sqlx.In(`
		UPDATE orders
		SET status = 'completed', verification_code = '', verification_expires_at = NULL, updated_at = NOW()
		WHERE id = ? AND status IN (?)`, orderID, from)
	if err != nil {
		return false, err
	}
	query = s.db.Rebind(query)

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// ListOrdersByBuyer retrieves a buyer's orders, newest first
func (s *Store) ListOrdersByBuyer(ctx context.Context, buyerID string) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.SelectContext(ctx, &orders,
		"SELECT * FROM orders WHERE buyer_id = $1 ORDER BY created_at DESC", buyerID)
	return orders, err
}

// ListOrdersBySeller retrieves a seller's orders, newest first
func (s *Store) ListOrdersBySeller(ctx context.Context, sellerID string) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.SelectContext(ctx, &orders,
		"SELECT * FROM orders WHERE seller_id = $1 ORDER BY created_at DESC", sellerID)
	return orders, err
}

// ListPendingPastDeadline retrieves pending orders whose confirmation
// deadline has elapsed, oldest first.
func (s *Store) ListPendingPastDeadline(ctx context.Context, now time.Time, limit int) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.SelectContext(ctx, &orders, `
		SELECT * FROM orders
		WHERE status = 'pending' AND confirmation_deadline < $1
		ORDER BY confirmation_deadline ASC
		LIMIT $2`, now, limit)
	return orders, err
}

// CreateOrderItem creates a new order item
func (s *Store) CreateOrderItem(ctx context.Context, item *models.OrderItem) error {
	query := `
		INSERT INTO order_items (order_id, product_id, quantity, unit_price)
		VALUES ($1, $2, $3, $4)
		RETURNING id`

	return s.db.GetContext(ctx, &item.ID, query,
		item.OrderID, item.ProductID, item.Quantity, item.UnitPrice)
}

// GetOrderItemsByOrderID retrieves all items for an order
func (s *Store) GetOrderItemsByOrderID(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	var items []models.OrderItem
	err := s.db.SelectContext(ctx, &items,
		"SELECT * FROM order_items WHERE order_id = $1", orderID)
	return items, err
}
