package models

import (
	"fmt"
	"time"
)

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusConfirmed  OrderStatus = "confirmed"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusRejected   OrderStatus = "rejected"
	OrderStatusCompleted  OrderStatus = "completed"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

// orderTransitions is the directed graph of legal status changes.
// completed is reachable from every post-confirmation status because
// delivery verification short-circuits the intermediate shipping states.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusConfirmed, OrderStatusRejected, OrderStatusCancelled},
	OrderStatusConfirmed:  {OrderStatusProcessing, OrderStatusCompleted},
	OrderStatusProcessing: {OrderStatusShipped, OrderStatusCompleted},
	OrderStatusShipped:    {OrderStatusCompleted},
	OrderStatusRejected:   {},
	OrderStatusCompleted:  {},
	OrderStatusCancelled:  {},
}

// ParseOrderStatus maps a raw database/request value to a known status,
// rejecting anything unrecognized.
func ParseOrderStatus(s string) (OrderStatus, error) {
	status := OrderStatus(s)
	if _, ok := orderTransitions[status]; !ok {
		return "", fmt.Errorf("unknown order status: %q", s)
	}
	return status, nil
}

// Terminal reports whether no further transition is permitted.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusRejected || s == OrderStatusCompleted || s == OrderStatusCancelled
}

// CanTransitionTo reports whether next is directly reachable from s.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// PaymentStatus is the escrow state of the buyer's payment.
type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

func ParsePaymentStatus(s string) (PaymentStatus, error) {
	switch status := PaymentStatus(s); status {
	case PaymentStatusPending, PaymentStatusPaid, PaymentStatusRefunded:
		return status, nil
	}
	return "", fmt.Errorf("unknown payment status: %q", s)
}

// DeliveryMethod is how the buyer receives the goods.
type DeliveryMethod string

const (
	DeliveryMethodPickup  DeliveryMethod = "pickup"
	DeliveryMethodShipped DeliveryMethod = "shipped"
)

func ParseDeliveryMethod(s string) (DeliveryMethod, error) {
	switch method := DeliveryMethod(s); method {
	case DeliveryMethodPickup, DeliveryMethodShipped:
		return method, nil
	}
	return "", fmt.Errorf("unknown delivery method: %q", s)
}

// Product represents a marketplace listing
type Product struct {
	ID        int64     `db:"id" json:"id"`
	SellerID  string    `db:"seller_id" json:"seller_id"`
	Name      string    `db:"name" json:"name"`
	Price     int64     `db:"price" json:"price"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Order represents a buyer-seller order. Monetary amounts are in minor
// currency units. The verification code is populated only while the order
// is escrow-paid and awaiting delivery confirmation, and is cleared on
// completion.
type Order struct {
	ID                    int64          `db:"id" json:"id"`
	BuyerID               string         `db:"buyer_id" json:"buyer_id"`
	SellerID              string         `db:"seller_id" json:"seller_id"`
	Status                OrderStatus    `db:"status" json:"status"`
	PaymentStatus         PaymentStatus  `db:"payment_status" json:"payment_status"`
	DeliveryMethod        DeliveryMethod `db:"delivery_method" json:"delivery_method"`
	ShippingFee           int64          `db:"shipping_fee" json:"shipping_fee"`
	PlatformFee           int64          `db:"platform_fee" json:"platform_fee"`
	TotalAmount           int64          `db:"total_amount" json:"total_amount"`
	VerificationCode      string         `db:"verification_code" json:"-"`
	VerificationExpiresAt *time.Time     `db:"verification_expires_at" json:"verification_expires_at,omitempty"`
	ConfirmationDeadline  time.Time      `db:"confirmation_deadline" json:"confirmation_deadline"`
	IdempotencyKey        string         `db:"idempotency_key" json:"idempotency_key,omitempty"`
	CreatedAt             time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time      `db:"updated_at" json:"updated_at"`
}

// VerificationOpen reports whether the order is in a state where a
// verification code may exist (escrow paid, not yet completed).
func (o *Order) VerificationOpen() bool {
	switch o.Status {
	case OrderStatusConfirmed, OrderStatusProcessing, OrderStatusShipped:
		return o.PaymentStatus == PaymentStatusPaid
	}
	return false
}

// OrderItem represents a product line in an order
type OrderItem struct {
	ID        int64 `db:"id" json:"id"`
	OrderID   int64 `db:"order_id" json:"order_id"`
	ProductID int64 `db:"product_id" json:"product_id"`
	Quantity  int   `db:"quantity" json:"quantity"`
	UnitPrice int64 `db:"unit_price" json:"unit_price"`
}
