package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/kingwillyo/BellBuy-sub001/internal/auth"
	"github.com/kingwillyo/BellBuy-sub001/internal/models"
	"github.com/kingwillyo/BellBuy-sub001/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrInvalidOrder wraps checkout validation failures.
var ErrInvalidOrder = errors.New("invalid order request")

// OrderService owns the order lifecycle: checkout, seller confirmation
// with its pickup branch, rejection, cancellation and the generic
// status transitions. Every mutation takes the per-order in-flight lock
// and goes through a status-guarded update, so stale or concurrent
// transitions lose instead of clobbering state.
type OrderService struct {
	store    OrderStore
	cache    OrderCache
	events   EventSink
	payments PaymentGateway
	logger   *zap.Logger

	confirmationWindow time.Duration
	verificationTTL    time.Duration
	platformFeeBps     int64
	lockTTL            time.Duration
}

// NewOrderService creates a new order service
func NewOrderService(
	store OrderStore,
	cache OrderCache,
	events EventSink,
	payments PaymentGateway,
	confirmationWindow time.Duration,
	verificationTTL time.Duration,
	platformFeeBps int64,
) *OrderService {
	return &OrderService{
		store:              store,
		cache:              cache,
		events:             events,
		payments:           payments,
		logger:             util.NamedLogger("orders"),
		confirmationWindow: confirmationWindow,
		verificationTTL:    verificationTTL,
		platformFeeBps:     platformFeeBps,
		lockTTL:            30 * time.Second,
	}
}

// CheckoutRequest represents a buyer's request to create an order
type CheckoutRequest struct {
	Items          []CheckoutItem `json:"items" binding:"required,min=1"`
	DeliveryMethod string         `json:"delivery_method" binding:"required"`
	ShippingFee    int64          `json:"shipping_fee"`
	TotalAmount    int64          `json:"total_amount" binding:"required"`
	IdempotencyKey string         `json:"idempotency_key,omitempty"`
}

// CheckoutItem represents an item in a checkout request
type CheckoutItem struct {
	ProductID int64 `json:"product_id" binding:"required"`
	Quantity  int   `json:"quantity" binding:"required,min=1"`
}

// CheckoutResponse represents the created (or replayed) order
type CheckoutResponse struct {
	OrderID int64              `json:"order_id"`
	Status  models.OrderStatus `json:"status"`
}

// Checkout creates a new pending order for the caller as buyer. The total
// is recomputed from product prices plus fees and must match what the
// client displayed; a mismatch rejects the order.
func (s *OrderService) Checkout(ctx context.Context, caller auth.Caller, req *CheckoutRequest) (*CheckoutResponse, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.Checkout")
	defer span.End()

	if req.IdempotencyKey == "" {
		req.IdempotencyKey = uuid.New().String()
	}

	if resp, err := s.replayCheckout(ctx, req.IdempotencyKey); err != nil || resp != nil {
		return resp, err
	}

	method, err := models.ParseDeliveryMethod(req.DeliveryMethod)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOrder, err)
	}
	if req.ShippingFee < 0 {
		return nil, fmt.Errorf("%w: shipping fee must be non-negative", ErrInvalidOrder)
	}

	products, err := s.validateItems(ctx, req.Items)
	if err != nil {
		util.OrdersFailedTotal.WithLabelValues("invalid_items").Inc()
		return nil, err
	}

	sellerID := ""
	for _, p := range products {
		if sellerID == "" {
			sellerID = p.SellerID
		} else if sellerID != p.SellerID {
			return nil, fmt.Errorf("%w: items belong to different sellers", ErrInvalidOrder)
		}
	}
	if sellerID == caller.UserID {
		return nil, fmt.Errorf("%w: cannot buy your own listing", ErrInvalidOrder)
	}

	subtotal := s.calculateSubtotal(req.Items, products)
	platformFee := subtotal * s.platformFeeBps / 10000
	total := subtotal + req.ShippingFee + platformFee
	if req.TotalAmount != total {
		util.OrdersFailedTotal.WithLabelValues("total_mismatch").Inc()
		return nil, fmt.Errorf("%w: total amount mismatch: got %d, want %d", ErrInvalidOrder, req.TotalAmount, total)
	}

	order := &models.Order{
		BuyerID:              caller.UserID,
		SellerID:             sellerID,
		Status:               models.OrderStatusPending,
		PaymentStatus:        models.PaymentStatusPending,
		DeliveryMethod:       method,
		ShippingFee:          req.ShippingFee,
		PlatformFee:          platformFee,
		TotalAmount:          total,
		ConfirmationDeadline: time.Now().Add(s.confirmationWindow),
		IdempotencyKey:       req.IdempotencyKey,
	}

	if err := s.store.CreateOrder(ctx, order); err != nil {
		util.OrdersFailedTotal.WithLabelValues("db_error").Inc()
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	for _, item := range req.Items {
		product := products[item.ProductID]
		orderItem := &models.OrderItem{
			OrderID:   order.ID,
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: product.Price,
		}
		if err := s.store.CreateOrderItem(ctx, orderItem); err != nil {
			return nil, fmt.Errorf("failed to create order item: %w", err)
		}
	}

	if err := s.cache.SetIdempotencyKey(ctx, req.IdempotencyKey, order.ID, idempotencyTTL); err != nil {
		s.logger.Warn("Failed to cache idempotency key",
			zap.String("idempotency_key", req.IdempotencyKey), zap.Error(err))
	}

	util.OrdersCreatedTotal.Inc()
	s.logger.Info("Order created",
		zap.Int64("order_id", order.ID),
		zap.String("buyer_id", order.BuyerID),
		zap.String("seller_id", order.SellerID),
		zap.Int64("total", order.TotalAmount))

	s.publishOrderChanged(ctx, order)
	return &CheckoutResponse{OrderID: order.ID, Status: order.Status}, nil
}

// idempotencyTTL bounds how long a checkout key stays in the cache. The
// database unique column remains the backstop after eviction.
const idempotencyTTL = 24 * time.Hour

// replayCheckout returns the previously created order for an idempotency
// key, or nil when the key is unseen. The cache is consulted first; a
// miss falls through to the database.
func (s *OrderService) replayCheckout(ctx context.Context, key string) (*CheckoutResponse, error) {
	if id, err := s.cache.GetIdempotentOrderID(ctx, key); err != nil {
		s.logger.Warn("Idempotency cache lookup failed",
			zap.String("idempotency_key", key), zap.Error(err))
	} else if id != 0 {
		order, err := s.store.GetOrderByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to load replayed order: %w", err)
		}
		s.logger.Info("Duplicate checkout detected",
			zap.String("idempotency_key", key),
			zap.Int64("order_id", order.ID))
		return &CheckoutResponse{OrderID: order.ID, Status: order.Status}, nil
	}

	existing, err := s.store.GetOrderByIdempotencyKey(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to check idempotency: %w", err)
	}
	if existing == nil {
		return nil, nil
	}
	s.logger.Info("Duplicate checkout detected",
		zap.String("idempotency_key", key),
		zap.Int64("order_id", existing.ID))
	return &CheckoutResponse{OrderID: existing.ID, Status: existing.Status}, nil
}

// validateItems resolves product rows for every requested item
func (s *OrderService) validateItems(ctx context.Context, items []CheckoutItem) (map[int64]*models.Product, error) {
	productIDs := make([]int64, len(items))
	for i, item := range items {
		if item.Quantity < 1 {
			return nil, fmt.Errorf("%w: quantity must be positive", ErrInvalidOrder)
		}
		productIDs[i] = item.ProductID
	}

	products, err := s.store.GetProductsByIDs(ctx, productIDs)
	if err != nil {
		return nil, err
	}
	if len(products) != len(items) {
		return nil, fmt.Errorf("%w: some products not found", ErrInvalidOrder)
	}

	productMap := make(map[int64]*models.Product, len(products))
	for i := range products {
		productMap[products[i].ID] = &products[i]
	}
	return productMap, nil
}

func (s *OrderService) calculateSubtotal(items []CheckoutItem, products map[int64]*models.Product) int64 {
	var total int64
	for _, item := range items {
		total += products[item.ProductID].Price * int64(item.Quantity)
	}
	return total
}

// ConfirmOutcome is the result of a seller confirmation attempt. When the
// order carries a shipping fee the seller must first complete the pickup
// confirmation step; the order stays pending until then.
type ConfirmOutcome struct {
	Confirmed          bool                    `json:"confirmed"`
	PickupConfirmation *PickupConfirmationStep `json:"pickup_confirmation,omitempty"`
}

// PickupConfirmationStep tells the client where to collect the physical
// handoff confirmation before the order can be confirmed.
type PickupConfirmationStep struct {
	OrderID string `json:"order_id"`
}

// ConfirmOrder is the seller's acceptance of a pending order. Orders with
// a shipping fee route through the pickup-confirmation step without any
// state change; fee-free orders transition directly to confirmed.
func (s *OrderService) ConfirmOrder(ctx context.Context, caller auth.Caller, orderID int64) (*ConfirmOutcome, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.ConfirmOrder")
	defer span.End()

	var outcome *ConfirmOutcome
	err := s.withOrderLock(ctx, orderID, func() error {
		order, err := s.store.GetOrderByID(ctx, orderID)
		if err != nil {
			return err
		}
		if order.SellerID != caller.UserID {
			return ErrNotSeller
		}
		if order.Status != models.OrderStatusPending {
			return invalidTransition(string(order.Status), string(models.OrderStatusConfirmed))
		}

		if order.ShippingFee > 0 {
			outcome = &ConfirmOutcome{
				PickupConfirmation: &PickupConfirmationStep{
					OrderID: strconv.FormatInt(order.ID, 10),
				},
			}
			return nil
		}

		if err := s.confirm(ctx, order); err != nil {
			return err
		}
		outcome = &ConfirmOutcome{Confirmed: true}
		return nil
	})
	return outcome, err
}

// ConfirmPickup completes the pickup-confirmation step for an order that
// was routed there by ConfirmOrder.
func (s *OrderService) ConfirmPickup(ctx context.Context, caller auth.Caller, orderID int64) error {
	ctx, span := util.StartSpan(ctx, "OrderService.ConfirmPickup")
	defer span.End()

	return s.withOrderLock(ctx, orderID, func() error {
		order, err := s.store.GetOrderByID(ctx, orderID)
		if err != nil {
			return err
		}
		if order.SellerID != caller.UserID {
			return ErrNotSeller
		}
		if order.Status != models.OrderStatusPending {
			return invalidTransition(string(order.Status), string(models.OrderStatusConfirmed))
		}
		return s.confirm(ctx, order)
	})
}

// confirm performs the pending -> confirmed transition and issues a
// verification code if escrow is already funded.
func (s *OrderService) confirm(ctx context.Context, order *models.Order) error {
	ok, err := s.store.UpdateOrderStatus(ctx, order.ID, models.OrderStatusPending, models.OrderStatusConfirmed)
	if err != nil {
		return fmt.Errorf("failed to confirm order: %w", err)
	}
	if !ok {
		return invalidTransition(string(order.Status), string(models.OrderStatusConfirmed))
	}
	order.Status = models.OrderStatusConfirmed

	util.OrdersConfirmedTotal.Inc()
	s.logger.Info("Order confirmed", zap.Int64("order_id", order.ID))

	if order.PaymentStatus == models.PaymentStatusPaid && order.VerificationCode == "" {
		if err := s.issueVerificationCode(ctx, order); err != nil {
			s.logger.Error("Failed to issue verification code",
				zap.Int64("order_id", order.ID), zap.Error(err))
		}
	}

	s.publishOrderChanged(ctx, order)
	return nil
}

// RejectOrder is the seller's refusal of a pending order. Escrowed funds
// are refunded through the payment collaborator.
func (s *OrderService) RejectOrder(ctx context.Context, caller auth.Caller, orderID int64) error {
	ctx, span := util.StartSpan(ctx, "OrderService.RejectOrder")
	defer span.End()

	return s.withOrderLock(ctx, orderID, func() error {
		order, err := s.store.GetOrderByID(ctx, orderID)
		if err != nil {
			return err
		}
		if order.SellerID != caller.UserID {
			return ErrNotSeller
		}
		if !order.Status.CanTransitionTo(models.OrderStatusRejected) {
			return invalidTransition(string(order.Status), string(models.OrderStatusRejected))
		}

		ok, err := s.store.UpdateOrderStatus(ctx, order.ID, models.OrderStatusPending, models.OrderStatusRejected)
		if err != nil {
			return fmt.Errorf("failed to reject order: %w", err)
		}
		if !ok {
			return invalidTransition(string(order.Status), string(models.OrderStatusRejected))
		}
		order.Status = models.OrderStatusRejected

		util.OrdersRejectedTotal.Inc()
		s.logger.Info("Order rejected", zap.Int64("order_id", order.ID))

		s.refundIfEscrowed(ctx, order, "order_rejected")
		s.publishOrderChanged(ctx, order)
		s.notify(ctx, order.BuyerID, order.ID, "Order rejected",
			"The seller declined your order. Any payment will be refunded.")
		return nil
	})
}

// CancelOrder withdraws a pending order. Either party may cancel.
func (s *OrderService) CancelOrder(ctx context.Context, caller auth.Caller, orderID int64) error {
	ctx, span := util.StartSpan(ctx, "OrderService.CancelOrder")
	defer span.End()

	return s.withOrderLock(ctx, orderID, func() error {
		order, err := s.store.GetOrderByID(ctx, orderID)
		if err != nil {
			return err
		}
		if order.BuyerID != caller.UserID && order.SellerID != caller.UserID {
			return ErrNotParticipant
		}
		if !order.Status.CanTransitionTo(models.OrderStatusCancelled) {
			return invalidTransition(string(order.Status), string(models.OrderStatusCancelled))
		}

		ok, err := s.store.UpdateOrderStatus(ctx, order.ID, models.OrderStatusPending, models.OrderStatusCancelled)
		if err != nil {
			return fmt.Errorf("failed to cancel order: %w", err)
		}
		if !ok {
			return invalidTransition(string(order.Status), string(models.OrderStatusCancelled))
		}
		order.Status = models.OrderStatusCancelled

		util.OrdersCancelledTotal.WithLabelValues("requested").Inc()
		s.logger.Info("Order cancelled",
			zap.Int64("order_id", order.ID),
			zap.String("by", caller.UserID))

		s.refundIfEscrowed(ctx, order, "order_cancelled")
		s.publishOrderChanged(ctx, order)
		return nil
	})
}

// UpdateStatus performs a generic seller-driven transition guarded by the
// status graph (e.g. confirmed -> processing -> shipped). Completion is
// not reachable here: the only path to completed is delivery
// verification, which releases escrow and invalidates the code.
func (s *OrderService) UpdateStatus(ctx context.Context, caller auth.Caller, orderID int64, newStatus models.OrderStatus) error {
	ctx, span := util.StartSpan(ctx, "OrderService.UpdateStatus")
	defer span.End()

	return s.withOrderLock(ctx, orderID, func() error {
		order, err := s.store.GetOrderByID(ctx, orderID)
		if err != nil {
			return err
		}
		if order.SellerID != caller.UserID {
			return ErrNotSeller
		}
		if newStatus == models.OrderStatusCompleted {
			return invalidTransition(string(order.Status), string(newStatus))
		}
		if !order.Status.CanTransitionTo(newStatus) {
			return invalidTransition(string(order.Status), string(newStatus))
		}

		ok, err := s.store.UpdateOrderStatus(ctx, order.ID, order.Status, newStatus)
		if err != nil {
			return fmt.Errorf("failed to update order status: %w", err)
		}
		if !ok {
			return invalidTransition(string(order.Status), string(newStatus))
		}
		order.Status = newStatus

		s.logger.Info("Order status updated",
			zap.Int64("order_id", order.ID),
			zap.String("status", string(newStatus)))
		s.publishOrderChanged(ctx, order)
		return nil
	})
}

// HandlePaymentSucceeded reacts to the payment collaborator reporting that
// the buyer's payment landed in escrow. The guarded update makes redelivery
// of the same event a no-op.
func (s *OrderService) HandlePaymentSucceeded(ctx context.Context, event *models.PaymentSucceededEvent) error {
	ctx, span := util.StartSpan(ctx, "OrderService.HandlePaymentSucceeded")
	defer span.End()

	ok, err := s.store.UpdatePaymentStatus(ctx, event.OrderID,
		models.PaymentStatusPending, models.PaymentStatusPaid)
	if err != nil {
		return fmt.Errorf("failed to mark order paid: %w", err)
	}
	if !ok {
		s.logger.Info("Payment event already applied", zap.Int64("order_id", event.OrderID))
		return nil
	}

	util.PaymentsEscrowedTotal.Inc()
	s.logger.Info("Payment escrowed",
		zap.Int64("order_id", event.OrderID),
		zap.Int64("amount", event.Amount))

	order, err := s.store.GetOrderByID(ctx, event.OrderID)
	if err != nil {
		return err
	}

	if order.VerificationOpen() && order.VerificationCode == "" {
		if err := s.issueVerificationCode(ctx, order); err != nil {
			s.logger.Error("Failed to issue verification code",
				zap.Int64("order_id", order.ID), zap.Error(err))
		}
	}

	s.publishOrderChanged(ctx, order)
	return nil
}

// HandlePaymentRefunded reacts to a refund completing at the collaborator.
func (s *OrderService) HandlePaymentRefunded(ctx context.Context, event *models.PaymentRefundedEvent) error {
	ctx, span := util.StartSpan(ctx, "OrderService.HandlePaymentRefunded")
	defer span.End()

	ok, err := s.store.UpdatePaymentStatus(ctx, event.OrderID,
		models.PaymentStatusPaid, models.PaymentStatusRefunded)
	if err != nil {
		return fmt.Errorf("failed to mark order refunded: %w", err)
	}
	if !ok {
		s.logger.Info("Refund event already applied", zap.Int64("order_id", event.OrderID))
		return nil
	}

	order, err := s.store.GetOrderByID(ctx, event.OrderID)
	if err != nil {
		return err
	}
	s.publishOrderChanged(ctx, order)
	return nil
}

// AutoCancelExpired cancels pending orders whose confirmation deadline has
// passed, refunding escrow where funded. Returns the number of orders
// cancelled.
func (s *OrderService) AutoCancelExpired(ctx context.Context, limit int) (int, error) {
	orders, err := s.store.ListPendingPastDeadline(ctx, time.Now(), limit)
	if err != nil {
		return 0, fmt.Errorf("failed to list expired orders: %w", err)
	}

	cancelled := 0
	for i := range orders {
		order := &orders[i]
		err := s.withOrderLock(ctx, order.ID, func() error {
			ok, err := s.store.UpdateOrderStatus(ctx, order.ID,
				models.OrderStatusPending, models.OrderStatusCancelled)
			if err != nil {
				return err
			}
			if !ok {
				return nil
			}
			order.Status = models.OrderStatusCancelled
			cancelled++

			util.OrdersCancelledTotal.WithLabelValues("deadline").Inc()
			s.logger.Info("Order auto-cancelled past confirmation deadline",
				zap.Int64("order_id", order.ID))

			s.refundIfEscrowed(ctx, order, "confirmation_deadline")
			s.publishOrderChanged(ctx, order)
			s.notify(ctx, order.BuyerID, order.ID, "Order cancelled",
				"The seller did not confirm your order in time. Any payment will be refunded.")
			return nil
		})
		if err != nil {
			s.logger.Error("Failed to auto-cancel order",
				zap.Int64("order_id", order.ID), zap.Error(err))
		}
	}
	return cancelled, nil
}

// GetOrder retrieves an order with its items; restricted to participants.
func (s *OrderService) GetOrder(ctx context.Context, caller auth.Caller, orderID int64) (*models.Order, []models.OrderItem, error) {
	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}
	if order.BuyerID != caller.UserID && order.SellerID != caller.UserID {
		return nil, nil, ErrNotParticipant
	}

	items, err := s.store.GetOrderItemsByOrderID(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}
	return order, items, nil
}

// ListOrders retrieves the caller's orders, as buyer or as seller.
func (s *OrderService) ListOrders(ctx context.Context, caller auth.Caller, role string) ([]models.Order, error) {
	switch role {
	case "seller":
		return s.store.ListOrdersBySeller(ctx, caller.UserID)
	case "", "buyer":
		return s.store.ListOrdersByBuyer(ctx, caller.UserID)
	}
	return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidOrder, role)
}

// issueVerificationCode generates and stores the delivery code the buyer
// hands to the seller at delivery time.
func (s *OrderService) issueVerificationCode(ctx context.Context, order *models.Order) error {
	code, err := GenerateCode()
	if err != nil {
		return err
	}
	expiresAt := time.Now().Add(s.verificationTTL)
	if err := s.store.SetVerificationCode(ctx, order.ID, code, expiresAt); err != nil {
		return fmt.Errorf("failed to store verification code: %w", err)
	}
	order.VerificationCode = code
	s.logger.Info("Verification code issued",
		zap.Int64("order_id", order.ID),
		zap.Time("expires_at", expiresAt))

	s.notify(ctx, order.BuyerID, order.ID, "Delivery code ready",
		fmt.Sprintf("Your delivery code is %s. Share it with the seller only when you receive your item.", code))
	return nil
}

// withOrderLock serializes mutations per order. Lock contention fails
// fast with ErrOrderBusy rather than queueing.
func (s *OrderService) withOrderLock(ctx context.Context, orderID int64, fn func() error) error {
	acquired, err := s.cache.AcquireOrderLock(ctx, orderID, s.lockTTL)
	if err != nil {
		return fmt.Errorf("failed to acquire order lock: %w", err)
	}
	if !acquired {
		return ErrOrderBusy
	}
	defer func() {
		if err := s.cache.ReleaseOrderLock(ctx, orderID); err != nil {
			s.logger.Warn("Failed to release order lock",
				zap.Int64("order_id", orderID), zap.Error(err))
		}
	}()

	return fn()
}

func (s *OrderService) refundIfEscrowed(ctx context.Context, order *models.Order, reason string) {
	if order.PaymentStatus != models.PaymentStatusPaid {
		return
	}
	if err := s.payments.RequestRefund(ctx, order.ID, order.TotalAmount, reason); err != nil {
		s.logger.Error("Failed to request refund",
			zap.Int64("order_id", order.ID), zap.Error(err))
		return
	}
	util.RefundsRequestedTotal.Inc()
}

func (s *OrderService) publishOrderChanged(ctx context.Context, order *models.Order) {
	event := &models.OrderChangedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOrderChanged,
			Timestamp: time.Now(),
		},
		OrderID:       order.ID,
		BuyerID:       order.BuyerID,
		SellerID:      order.SellerID,
		Status:        order.Status,
		PaymentStatus: order.PaymentStatus,
	}
	if err := s.events.PublishOrderChanged(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderChanged event",
			zap.Int64("order_id", order.ID), zap.Error(err))
	}
}

func (s *OrderService) notify(ctx context.Context, userID string, orderID int64, title, body string) {
	event := &models.NotificationEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeNotification,
			Timestamp: time.Now(),
		},
		UserID:  userID,
		OrderID: orderID,
		Title:   title,
		Body:    body,
	}
	if err := s.events.PublishNotification(ctx, event); err != nil {
		s.logger.Error("Failed to publish notification",
			zap.Int64("order_id", orderID), zap.Error(err))
	}
}
