package realtime

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/kingwillyo/BellBuy-sub001/internal/models"
	"github.com/kingwillyo/BellBuy-sub001/internal/util"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Signal is what subscribers receive when one of their orders changes.
// It is a refetch trigger, not an authoritative order snapshot: clients
// re-query the order list on receipt.
type Signal struct {
	OrderID       int64                `json:"order_id"`
	Status        models.OrderStatus   `json:"status"`
	PaymentStatus models.PaymentStatus `json:"payment_status"`
}

type subscriber struct {
	userID string
	ch     chan Signal
}

// Hub fans order change events out to connected websocket clients,
// filtered by user id. A slow client drops signals rather than blocking
// the fan-out; a dropped signal only costs an extra refetch.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[*subscriber]struct{}
	logger *zap.Logger
}

// NewHub creates a new realtime hub
func NewHub() *Hub {
	return &Hub{
		subs:   make(map[string]map[*subscriber]struct{}),
		logger: util.NamedLogger("realtime"),
	}
}

// HandleOrderChanged forwards a change event to the buyer's and seller's
// subscribers. Wired as a broker event handler.
func (h *Hub) HandleOrderChanged(ctx context.Context, event *models.OrderChangedEvent) error {
	signal := Signal{
		OrderID:       event.OrderID,
		Status:        event.Status,
		PaymentStatus: event.PaymentStatus,
	}
	h.broadcast(event.BuyerID, signal)
	if event.SellerID != event.BuyerID {
		h.broadcast(event.SellerID, signal)
	}
	return nil
}

func (h *Hub) broadcast(userID string, signal Signal) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs[userID] {
		select {
		case sub.ch <- signal:
		default:
			h.logger.Warn("Dropping signal for slow subscriber",
				zap.String("user_id", userID),
				zap.Int64("order_id", signal.OrderID))
		}
	}
}

func (h *Hub) subscribe(userID string) *subscriber {
	sub := &subscriber{
		userID: userID,
		ch:     make(chan Signal, 16),
	}
	h.mu.Lock()
	if h.subs[userID] == nil {
		h.subs[userID] = make(map[*subscriber]struct{})
	}
	h.subs[userID][sub] = struct{}{}
	h.mu.Unlock()
	return sub
}

func (h *Hub) unsubscribe(sub *subscriber) {
	h.mu.Lock()
	if set, ok := h.subs[sub.userID]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(h.subs, sub.userID)
		}
	}
	h.mu.Unlock()
	close(sub.ch)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
)

// ServeWS upgrades the connection and streams change signals for the
// given user until the client disconnects.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, userID string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Websocket upgrade failed", zap.Error(err))
		return
	}

	sub := h.subscribe(userID)
	h.logger.Info("Realtime subscriber connected", zap.String("user_id", userID))

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		h.unsubscribe(sub)
		conn.Close()
		h.logger.Info("Realtime subscriber disconnected", zap.String("user_id", userID))
	}()

	for {
		select {
		case <-done:
			return
		case signal := <-sub.ch:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(signal); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
