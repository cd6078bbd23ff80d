package models

import "time"

// Event types
const (
	EventTypeOrderCreated     = "ORDER_CREATED"
	EventTypeOrderChanged     = "ORDER_CHANGED"
	EventTypeOrderCompleted   = "ORDER_COMPLETED"
	EventTypePaymentSucceeded = "PAYMENT_SUCCEEDED"
	EventTypePaymentRefunded  = "PAYMENT_REFUNDED"
	EventTypeRefundRequested  = "REFUND_REQUESTED"
	EventTypeNotification     = "NOTIFICATION"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderChangedEvent is published on every order mutation. Subscribers
// treat it as a refetch signal for the parties involved, not as an
// authoritative snapshot.
type OrderChangedEvent struct {
	BaseEvent
	OrderID       int64         `json:"order_id"`
	BuyerID       string        `json:"buyer_id"`
	SellerID      string        `json:"seller_id"`
	Status        OrderStatus   `json:"status"`
	PaymentStatus PaymentStatus `json:"payment_status"`
}

// OrderCompletedEvent is published when verification succeeds and the
// order reaches its final state.
type OrderCompletedEvent struct {
	BaseEvent
	OrderID  int64  `json:"order_id"`
	BuyerID  string `json:"buyer_id"`
	SellerID string `json:"seller_id"`
	Amount   int64  `json:"amount"`
}

// PaymentSucceededEvent is published by the payment collaborator when the
// buyer's payment lands in escrow.
type PaymentSucceededEvent struct {
	BaseEvent
	OrderID      int64  `json:"order_id"`
	Amount       int64  `json:"amount"`
	ProviderTxID string `json:"provider_tx_id,omitempty"`
}

// PaymentRefundedEvent is published by the payment collaborator once a
// requested refund has been processed.
type PaymentRefundedEvent struct {
	BaseEvent
	OrderID int64  `json:"order_id"`
	Amount  int64  `json:"amount"`
	Reason  string `json:"reason,omitempty"`
}

// NotificationEvent carries a user-facing notification for delivery by
// the push/notification collaborator.
type NotificationEvent struct {
	BaseEvent
	UserID  string `json:"user_id"`
	OrderID int64  `json:"order_id"`
	Title   string `json:"title"`
	Body    string `json:"body"`
}
