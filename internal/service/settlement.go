package service

import (
	"context"
	"time"

	"github.com/kingwillyo/BellBuy-sub001/internal/models"
	"github.com/kingwillyo/BellBuy-sub001/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SettlementService applies the consequences of a successful delivery
// verification. The verifier has already released the escrow payout; this
// service finalizes the order, notifies the seller exactly once, and
// announces the change. It holds no state and moves no money.
type SettlementService struct {
	store  OrderStore
	events EventSink
	logger *zap.Logger
}

// NewSettlementService creates a new settlement service
func NewSettlementService(store OrderStore, events EventSink) *SettlementService {
	return &SettlementService{
		store:  store,
		events: events,
		logger: util.NamedLogger("settlement"),
	}
}

// verifiableStatuses are the statuses an order may hold at the moment
// verification succeeds; completion short-circuits from any of them.
var verifiableStatuses = []models.OrderStatus{
	models.OrderStatusConfirmed,
	models.OrderStatusProcessing,
	models.OrderStatusShipped,
}

// OnVerificationSuccess finalizes a verified order. The guarded update
// invalidates the code and admits exactly one completion per order; a
// replay finds the order already completed and fails with
// ErrInvalidTransition.
func (s *SettlementService) OnVerificationSuccess(ctx context.Context, order *models.Order) error {
	ctx, span := util.StartSpan(ctx, "SettlementService.OnVerificationSuccess")
	defer span.End()

	ok, err := s.store.CompleteOrder(ctx, order.ID, verifiableStatuses)
	if err != nil {
		return err
	}
	if !ok {
		return invalidTransition(string(order.Status), string(models.OrderStatusCompleted))
	}
	order.Status = models.OrderStatusCompleted
	order.VerificationCode = ""

	util.OrdersCompletedTotal.Inc()
	s.logger.Info("Order completed, escrow released",
		zap.Int64("order_id", order.ID),
		zap.Int64("amount", order.TotalAmount))

	now := time.Now()
	notification := &models.NotificationEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeNotification,
			Timestamp: now,
		},
		UserID:  order.SellerID,
		OrderID: order.ID,
		Title:   "Payment released",
		Body:    "Delivery confirmed. Your payout is on its way.",
	}
	if err := s.events.PublishNotification(ctx, notification); err != nil {
		s.logger.Error("Failed to publish settlement notification",
			zap.Int64("order_id", order.ID), zap.Error(err))
	}

	completed := &models.OrderCompletedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOrderCompleted,
			Timestamp: now,
		},
		OrderID:  order.ID,
		BuyerID:  order.BuyerID,
		SellerID: order.SellerID,
		Amount:   order.TotalAmount,
	}
	if err := s.events.PublishOrderCompleted(ctx, completed); err != nil {
		s.logger.Error("Failed to publish OrderCompleted event",
			zap.Int64("order_id", order.ID), zap.Error(err))
	}

	changed := &models.OrderChangedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOrderChanged,
			Timestamp: now,
		},
		OrderID:       order.ID,
		BuyerID:       order.BuyerID,
		SellerID:      order.SellerID,
		Status:        order.Status,
		PaymentStatus: order.PaymentStatus,
	}
	if err := s.events.PublishOrderChanged(ctx, changed); err != nil {
		s.logger.Error("Failed to publish OrderChanged event",
			zap.Int64("order_id", order.ID), zap.Error(err))
	}

	return nil
}
