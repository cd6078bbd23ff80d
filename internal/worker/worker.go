package worker

import (
	"context"
	"time"

	"github.com/kingwillyo/BellBuy-sub001/internal/broker"
	"github.com/kingwillyo/BellBuy-sub001/internal/realtime"
	"github.com/kingwillyo/BellBuy-sub001/internal/service"
	"github.com/kingwillyo/BellBuy-sub001/internal/util"

	"go.uber.org/zap"
)

// EventWorker consumes order-topic events: payment outcomes from the
// payment collaborator feed the lifecycle, and order changes feed the
// realtime hub.
type EventWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	logger       *zap.Logger
}

// NewEventWorker creates a new event worker
func NewEventWorker(consumer *broker.Consumer, orders *service.OrderService, hub *realtime.Hub) *EventWorker {
	eventHandler := broker.NewEventHandler()
	eventHandler.OnPaymentSucceeded(orders.HandlePaymentSucceeded)
	eventHandler.OnPaymentRefunded(orders.HandlePaymentRefunded)
	eventHandler.OnOrderChanged(hub.HandleOrderChanged)

	return &EventWorker{
		consumer:     consumer,
		eventHandler: eventHandler,
		logger:       util.NamedLogger("event-worker"),
	}
}

// Start starts the worker
func (w *EventWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting event worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *EventWorker) Stop() error {
	w.logger.Info("Stopping event worker")
	return w.consumer.Close()
}

// DeadlineWorker sweeps pending orders past their confirmation deadline
// and cancels them.
type DeadlineWorker struct {
	orders    *service.OrderService
	interval  time.Duration
	batchSize int
	logger    *zap.Logger
}

// NewDeadlineWorker creates a new deadline worker
func NewDeadlineWorker(orders *service.OrderService, interval time.Duration) *DeadlineWorker {
	return &DeadlineWorker{
		orders:    orders,
		interval:  interval,
		batchSize: 50,
		logger:    util.NamedLogger("deadline-worker"),
	}
}

// Start runs the sweep loop until the context is cancelled
func (w *DeadlineWorker) Start(ctx context.Context) {
	w.logger.Info("Starting deadline worker", zap.Duration("interval", w.interval))
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Deadline worker stopped")
			return
		case <-ticker.C:
			cancelled, err := w.orders.AutoCancelExpired(ctx, w.batchSize)
			if err != nil {
				w.logger.Error("Deadline sweep failed", zap.Error(err))
				continue
			}
			if cancelled > 0 {
				w.logger.Info("Expired orders cancelled", zap.Int("count", cancelled))
			}
		}
	}
}
