package realtime

import (
	"context"
	"testing"

	"github.com/kingwillyo/BellBuy-sub001/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubSignalsBothParties(t *testing.T) {
	hub := NewHub()
	buyer := hub.subscribe("buyer-1")
	seller := hub.subscribe("seller-1")
	other := hub.subscribe("bystander")
	defer hub.unsubscribe(buyer)
	defer hub.unsubscribe(seller)
	defer hub.unsubscribe(other)

	event := &models.OrderChangedEvent{
		OrderID:       42,
		BuyerID:       "buyer-1",
		SellerID:      "seller-1",
		Status:        models.OrderStatusConfirmed,
		PaymentStatus: models.PaymentStatusPaid,
	}
	require.NoError(t, hub.HandleOrderChanged(context.Background(), event))

	for _, sub := range []*subscriber{buyer, seller} {
		select {
		case signal := <-sub.ch:
			assert.Equal(t, int64(42), signal.OrderID)
			assert.Equal(t, models.OrderStatusConfirmed, signal.Status)
		default:
			t.Fatalf("subscriber %s received no signal", sub.userID)
		}
	}

	select {
	case <-other.ch:
		t.Fatal("bystander must not receive signals for others' orders")
	default:
	}
}

func TestHubDropsSignalsForSlowSubscribers(t *testing.T) {
	hub := NewHub()
	sub := hub.subscribe("buyer-1")
	defer hub.unsubscribe(sub)

	event := &models.OrderChangedEvent{OrderID: 1, BuyerID: "buyer-1", SellerID: "seller-1"}
	for i := 0; i < cap(sub.ch)+10; i++ {
		require.NoError(t, hub.HandleOrderChanged(context.Background(), event))
	}

	// The channel is full but the hub never blocked.
	assert.Equal(t, cap(sub.ch), len(sub.ch))
}

func TestHubUnsubscribeRemovesUser(t *testing.T) {
	hub := NewHub()
	sub := hub.subscribe("buyer-1")
	hub.unsubscribe(sub)

	hub.mu.RLock()
	defer hub.mu.RUnlock()
	assert.NotContains(t, hub.subs, "buyer-1")
}
