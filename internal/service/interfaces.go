package service

import (
	"context"
	"time"

	"github.com/kingwillyo/BellBuy-sub001/internal/models"
)

// OrderStore is the persistence surface the order services need. It is
// implemented by *store.Store and by in-memory fakes in tests.
type OrderStore interface {
	CreateOrder(ctx context.Context, order *models.Order) error
	GetOrderByID(ctx context.Context, id int64) (*models.Order, error)
	GetOrderByIdempotencyKey(ctx context.Context, key string) (*models.Order, error)
	UpdateOrderStatus(ctx context.Context, orderID int64, from, to models.OrderStatus) (bool, error)
	UpdatePaymentStatus(ctx context.Context, orderID int64, from, to models.PaymentStatus) (bool, error)
	SetVerificationCode(ctx context.Context, orderID int64, code string, expiresAt time.Time) error
	CompleteOrder(ctx context.Context, orderID int64, from []models.OrderStatus) (bool, error)
	ListOrdersByBuyer(ctx context.Context, buyerID string) ([]models.Order, error)
	ListOrdersBySeller(ctx context.Context, sellerID string) ([]models.Order, error)
	ListPendingPastDeadline(ctx context.Context, now time.Time, limit int) ([]models.Order, error)
	CreateOrderItem(ctx context.Context, item *models.OrderItem) error
	GetOrderItemsByOrderID(ctx context.Context, orderID int64) ([]models.OrderItem, error)
	GetProductsByIDs(ctx context.Context, ids []int64) ([]models.Product, error)
}

// OrderCache is the fast-path surface backed by Redis: per-order
// in-flight mutation locks and the checkout idempotency lookup. The lock
// holds the at-most-one-in-flight-mutation-per-order invariant; the
// idempotency entries front the database's unique-key check.
type OrderCache interface {
	AcquireOrderLock(ctx context.Context, orderID int64, ttl time.Duration) (bool, error)
	ReleaseOrderLock(ctx context.Context, orderID int64) error
	SetIdempotencyKey(ctx context.Context, key string, orderID int64, ttl time.Duration) error
	GetIdempotentOrderID(ctx context.Context, key string) (int64, error)
}

// EventSink receives the domain events raised by order mutations.
type EventSink interface {
	PublishOrderChanged(ctx context.Context, event *models.OrderChangedEvent) error
	PublishOrderCompleted(ctx context.Context, event *models.OrderCompletedEvent) error
	PublishNotification(ctx context.Context, event *models.NotificationEvent) error
}

// VerifyRequest is the payload of the remote verification function.
type VerifyRequest struct {
	VerificationCode string `json:"verification_code"`
	OrderID          int64  `json:"order_id"`
	SellerID         string `json:"seller_id"`
}

// VerifyResult is the verification function's response. On success the
// function has already triggered the escrow payout.
type VerifyResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Verifier validates a delivery verification code authoritatively.
type Verifier interface {
	Verify(ctx context.Context, req VerifyRequest) (*VerifyResult, error)
}

// PaymentGateway triggers escrow movements at the payment collaborator.
// Refunds are requested here and confirmed asynchronously via
// PaymentRefunded events; no money moves inside this service.
type PaymentGateway interface {
	RequestRefund(ctx context.Context, orderID int64, amount int64, reason string) error
}
