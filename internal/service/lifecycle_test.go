package service

import (
	"context"
	"testing"
	"time"

	"github.com/kingwillyo/BellBuy-sub001/internal/auth"
	"github.com/kingwillyo/BellBuy-sub001/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pendingOrder(id int64, shippingFee int64) *models.Order {
	return &models.Order{
		ID:                   id,
		BuyerID:              "buyer-1",
		SellerID:             "seller-1",
		Status:               models.OrderStatusPending,
		PaymentStatus:        models.PaymentStatusPending,
		DeliveryMethod:       models.DeliveryMethodPickup,
		ShippingFee:          shippingFee,
		TotalAmount:          5000,
		ConfirmationDeadline: time.Now().Add(24 * time.Hour),
	}
}

func TestConfirmOrderWithShippingFeeRoutesToPickupConfirmation(t *testing.T) {
	st := newFakeStore()
	st.addOrder(pendingOrder(101, 1500))
	svc := newTestOrderService(st, newFakeCache(), &fakeEvents{}, &fakePayments{})

	outcome, err := svc.ConfirmOrder(context.Background(), auth.Caller{UserID: "seller-1"}, 101)
	require.NoError(t, err)

	require.NotNil(t, outcome.PickupConfirmation)
	assert.Equal(t, "101", outcome.PickupConfirmation.OrderID)
	assert.False(t, outcome.Confirmed)

	// No transition happens until the pickup step completes.
	assert.Equal(t, models.OrderStatusPending, st.order(101).Status)
	assert.Zero(t, st.statusUpdates)
}

func TestConfirmOrderWithoutShippingFeeConfirmsDirectly(t *testing.T) {
	st := newFakeStore()
	st.addOrder(pendingOrder(102, 0))
	svc := newTestOrderService(st, newFakeCache(), &fakeEvents{}, &fakePayments{})

	outcome, err := svc.ConfirmOrder(context.Background(), auth.Caller{UserID: "seller-1"}, 102)
	require.NoError(t, err)

	assert.True(t, outcome.Confirmed)
	assert.Nil(t, outcome.PickupConfirmation)
	assert.Equal(t, models.OrderStatusConfirmed, st.order(102).Status)
	assert.Equal(t, 1, st.statusUpdates)
}

func TestConfirmPickupCompletesTheConfirmation(t *testing.T) {
	st := newFakeStore()
	st.addOrder(pendingOrder(101, 1500))
	svc := newTestOrderService(st, newFakeCache(), &fakeEvents{}, &fakePayments{})

	_, err := svc.ConfirmOrder(context.Background(), auth.Caller{UserID: "seller-1"}, 101)
	require.NoError(t, err)
	require.Equal(t, models.OrderStatusPending, st.order(101).Status)

	err = svc.ConfirmPickup(context.Background(), auth.Caller{UserID: "seller-1"}, 101)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusConfirmed, st.order(101).Status)
}

func TestConfirmOrderRequiresSeller(t *testing.T) {
	st := newFakeStore()
	st.addOrder(pendingOrder(1, 0))
	svc := newTestOrderService(st, newFakeCache(), &fakeEvents{}, &fakePayments{})

	_, err := svc.ConfirmOrder(context.Background(), auth.Caller{UserID: "buyer-1"}, 1)
	assert.ErrorIs(t, err, ErrNotSeller)
	assert.Equal(t, models.OrderStatusPending, st.order(1).Status)
}

func TestConfirmIssuesVerificationCodeWhenEscrowed(t *testing.T) {
	st := newFakeStore()
	order := pendingOrder(7, 0)
	order.PaymentStatus = models.PaymentStatusPaid
	st.addOrder(order)
	ev := &fakeEvents{}
	svc := newTestOrderService(st, newFakeCache(), ev, &fakePayments{})

	_, err := svc.ConfirmOrder(context.Background(), auth.Caller{UserID: "seller-1"}, 7)
	require.NoError(t, err)

	got := st.order(7)
	assert.Equal(t, models.OrderStatusConfirmed, got.Status)
	assert.True(t, ValidCodeFormat(got.VerificationCode))
	assert.NotNil(t, got.VerificationExpiresAt)

	// The buyer has to learn the code somewhere: the notification body
	// carries it.
	require.Len(t, ev.notifications, 1)
	assert.Equal(t, "buyer-1", ev.notifications[0].UserID)
	assert.Contains(t, ev.notifications[0].Body, got.VerificationCode)
}

func TestRejectOrderIsNotIdempotent(t *testing.T) {
	st := newFakeStore()
	st.addOrder(pendingOrder(5, 0))
	svc := newTestOrderService(st, newFakeCache(), &fakeEvents{}, &fakePayments{})
	seller := auth.Caller{UserID: "seller-1"}

	require.NoError(t, svc.RejectOrder(context.Background(), seller, 5))
	assert.Equal(t, models.OrderStatusRejected, st.order(5).Status)

	// A second rejection must fail loudly, not silently succeed.
	err := svc.RejectOrder(context.Background(), seller, 5)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestRejectOrderRefundsEscrowedPayment(t *testing.T) {
	st := newFakeStore()
	order := pendingOrder(9, 0)
	order.PaymentStatus = models.PaymentStatusPaid
	st.addOrder(order)
	pay := &fakePayments{}
	ev := &fakeEvents{}
	svc := newTestOrderService(st, newFakeCache(), ev, pay)

	require.NoError(t, svc.RejectOrder(context.Background(), auth.Caller{UserID: "seller-1"}, 9))
	assert.Equal(t, []int64{9}, pay.refunds)
	require.Len(t, ev.notifications, 1)
	assert.Equal(t, "buyer-1", ev.notifications[0].UserID)
}

func TestCancelOrderAllowsEitherParty(t *testing.T) {
	for _, caller := range []string{"buyer-1", "seller-1"} {
		st := newFakeStore()
		st.addOrder(pendingOrder(3, 0))
		svc := newTestOrderService(st, newFakeCache(), &fakeEvents{}, &fakePayments{})

		err := svc.CancelOrder(context.Background(), auth.Caller{UserID: caller}, 3)
		require.NoError(t, err, "caller %s", caller)
		assert.Equal(t, models.OrderStatusCancelled, st.order(3).Status)
	}
}

func TestCancelOrderRejectsStrangers(t *testing.T) {
	st := newFakeStore()
	st.addOrder(pendingOrder(3, 0))
	svc := newTestOrderService(st, newFakeCache(), &fakeEvents{}, &fakePayments{})

	err := svc.CancelOrder(context.Background(), auth.Caller{UserID: "someone-else"}, 3)
	assert.ErrorIs(t, err, ErrNotParticipant)
}

func TestTerminalStatesNeverRegress(t *testing.T) {
	terminals := []models.OrderStatus{
		models.OrderStatusCompleted,
		models.OrderStatusRejected,
		models.OrderStatusCancelled,
	}
	targets := []models.OrderStatus{
		models.OrderStatusPending,
		models.OrderStatusConfirmed,
		models.OrderStatusProcessing,
		models.OrderStatusShipped,
		models.OrderStatusCompleted,
	}
	seller := auth.Caller{UserID: "seller-1"}

	for _, terminal := range terminals {
		for _, target := range targets {
			st := newFakeStore()
			order := pendingOrder(1, 0)
			order.Status = terminal
			st.addOrder(order)
			svc := newTestOrderService(st, newFakeCache(), &fakeEvents{}, &fakePayments{})

			err := svc.UpdateStatus(context.Background(), seller, 1, target)
			assert.ErrorIs(t, err, ErrInvalidTransition, "%s -> %s", terminal, target)
			assert.Equal(t, terminal, st.order(1).Status)
		}
	}
}

func TestUpdateStatusFollowsGraph(t *testing.T) {
	seller := auth.Caller{UserID: "seller-1"}

	st := newFakeStore()
	order := pendingOrder(1, 0)
	order.Status = models.OrderStatusConfirmed
	st.addOrder(order)
	svc := newTestOrderService(st, newFakeCache(), &fakeEvents{}, &fakePayments{})

	require.NoError(t, svc.UpdateStatus(context.Background(), seller, 1, models.OrderStatusProcessing))
	require.NoError(t, svc.UpdateStatus(context.Background(), seller, 1, models.OrderStatusShipped))
	assert.Equal(t, models.OrderStatusShipped, st.order(1).Status)

	// Going back is not in the graph.
	err := svc.UpdateStatus(context.Background(), seller, 1, models.OrderStatusProcessing)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestUpdateStatusCannotCompleteOrders(t *testing.T) {
	seller := auth.Caller{UserID: "seller-1"}

	for _, from := range []models.OrderStatus{
		models.OrderStatusConfirmed,
		models.OrderStatusProcessing,
		models.OrderStatusShipped,
	} {
		st := newFakeStore()
		order := pendingOrder(1, 0)
		order.Status = from
		order.PaymentStatus = models.PaymentStatusPaid
		order.VerificationCode = "482913"
		st.addOrder(order)
		ev := &fakeEvents{}
		svc := newTestOrderService(st, newFakeCache(), ev, &fakePayments{})

		err := svc.UpdateStatus(context.Background(), seller, 1, models.OrderStatusCompleted)
		assert.ErrorIs(t, err, ErrInvalidTransition, "from %s", from)

		// The order is untouched and the code still works: completion only
		// happens through verification, which releases the escrow.
		got := st.order(1)
		assert.Equal(t, from, got.Status)
		assert.Equal(t, "482913", got.VerificationCode)
		assert.Empty(t, ev.completed)
	}
}

func TestInFlightLockRejectsConcurrentMutation(t *testing.T) {
	st := newFakeStore()
	st.addOrder(pendingOrder(4, 0))
	lk := newFakeCache()
	svc := newTestOrderService(st, lk, &fakeEvents{}, &fakePayments{})

	held, err := lk.AcquireOrderLock(context.Background(), 4, time.Minute)
	require.NoError(t, err)
	require.True(t, held)

	_, err = svc.ConfirmOrder(context.Background(), auth.Caller{UserID: "seller-1"}, 4)
	assert.ErrorIs(t, err, ErrOrderBusy)
}

func TestCheckoutComputesAndValidatesTotal(t *testing.T) {
	st := newFakeStore()
	st.addProduct(models.Product{ID: 1, SellerID: "seller-1", Name: "calc textbook", Price: 1000})
	st.addProduct(models.Product{ID: 2, SellerID: "seller-1", Name: "desk lamp", Price: 500})
	ev := &fakeEvents{}
	svc := newTestOrderService(st, newFakeCache(), ev, &fakePayments{})
	buyer := auth.Caller{UserID: "buyer-1"}

	req := &CheckoutRequest{
		Items: []CheckoutItem{
			{ProductID: 1, Quantity: 2},
			{ProductID: 2, Quantity: 1},
		},
		DeliveryMethod: "shipped",
		ShippingFee:    200,
		// subtotal 2500 + shipping 200 + 5% platform fee 125
		TotalAmount: 2825,
	}

	resp, err := svc.Checkout(context.Background(), buyer, req)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPending, resp.Status)

	order := st.order(resp.OrderID)
	assert.Equal(t, int64(2825), order.TotalAmount)
	assert.Equal(t, int64(125), order.PlatformFee)
	assert.Equal(t, models.PaymentStatusPending, order.PaymentStatus)
	assert.Equal(t, "seller-1", order.SellerID)
	assert.Len(t, ev.changed, 1)

	items, err := st.GetOrderItemsByOrderID(context.Background(), resp.OrderID)
	require.NoError(t, err)
	assert.Len(t, items, 2)
}

func TestCheckoutRejectsTotalMismatch(t *testing.T) {
	st := newFakeStore()
	st.addProduct(models.Product{ID: 1, SellerID: "seller-1", Price: 1000})
	svc := newTestOrderService(st, newFakeCache(), &fakeEvents{}, &fakePayments{})

	req := &CheckoutRequest{
		Items:          []CheckoutItem{{ProductID: 1, Quantity: 1}},
		DeliveryMethod: "pickup",
		TotalAmount:    999,
	}
	_, err := svc.Checkout(context.Background(), auth.Caller{UserID: "buyer-1"}, req)
	assert.ErrorIs(t, err, ErrInvalidOrder)
}

func TestCheckoutRejectsBuyingOwnListing(t *testing.T) {
	st := newFakeStore()
	st.addProduct(models.Product{ID: 1, SellerID: "seller-1", Price: 1000})
	svc := newTestOrderService(st, newFakeCache(), &fakeEvents{}, &fakePayments{})

	req := &CheckoutRequest{
		Items:          []CheckoutItem{{ProductID: 1, Quantity: 1}},
		DeliveryMethod: "pickup",
		TotalAmount:    1050,
	}
	_, err := svc.Checkout(context.Background(), auth.Caller{UserID: "seller-1"}, req)
	assert.ErrorIs(t, err, ErrInvalidOrder)
}

func TestCheckoutReplaysIdempotencyKey(t *testing.T) {
	st := newFakeStore()
	st.addProduct(models.Product{ID: 1, SellerID: "seller-1", Price: 1000})
	svc := newTestOrderService(st, newFakeCache(), &fakeEvents{}, &fakePayments{})
	buyer := auth.Caller{UserID: "buyer-1"}

	req := &CheckoutRequest{
		Items:          []CheckoutItem{{ProductID: 1, Quantity: 1}},
		DeliveryMethod: "pickup",
		TotalAmount:    1050,
		IdempotencyKey: "checkout-abc",
	}

	first, err := svc.Checkout(context.Background(), buyer, req)
	require.NoError(t, err)

	second, err := svc.Checkout(context.Background(), buyer, req)
	require.NoError(t, err)
	assert.Equal(t, first.OrderID, second.OrderID)
}

func TestCheckoutReplaySurvivesCacheEviction(t *testing.T) {
	st := newFakeStore()
	st.addProduct(models.Product{ID: 1, SellerID: "seller-1", Price: 1000})
	buyer := auth.Caller{UserID: "buyer-1"}

	req := &CheckoutRequest{
		Items:          []CheckoutItem{{ProductID: 1, Quantity: 1}},
		DeliveryMethod: "pickup",
		TotalAmount:    1050,
		IdempotencyKey: "checkout-def",
	}

	first, err := newTestOrderService(st, newFakeCache(), &fakeEvents{}, &fakePayments{}).
		Checkout(context.Background(), buyer, req)
	require.NoError(t, err)

	// Fresh cache simulates an evicted idempotency entry; the database
	// unique column still catches the replay.
	second, err := newTestOrderService(st, newFakeCache(), &fakeEvents{}, &fakePayments{}).
		Checkout(context.Background(), buyer, req)
	require.NoError(t, err)
	assert.Equal(t, first.OrderID, second.OrderID)
}

func TestHandlePaymentSucceededIssuesCodeForConfirmedOrder(t *testing.T) {
	st := newFakeStore()
	order := pendingOrder(11, 0)
	order.Status = models.OrderStatusConfirmed
	st.addOrder(order)
	svc := newTestOrderService(st, newFakeCache(), &fakeEvents{}, &fakePayments{})

	event := &models.PaymentSucceededEvent{OrderID: 11, Amount: 5000}
	require.NoError(t, svc.HandlePaymentSucceeded(context.Background(), event))

	got := st.order(11)
	assert.Equal(t, models.PaymentStatusPaid, got.PaymentStatus)
	assert.True(t, ValidCodeFormat(got.VerificationCode))
}

func TestHandlePaymentSucceededIsIdempotent(t *testing.T) {
	st := newFakeStore()
	st.addOrder(pendingOrder(11, 0))
	ev := &fakeEvents{}
	svc := newTestOrderService(st, newFakeCache(), ev, &fakePayments{})

	event := &models.PaymentSucceededEvent{OrderID: 11, Amount: 5000}
	require.NoError(t, svc.HandlePaymentSucceeded(context.Background(), event))
	require.NoError(t, svc.HandlePaymentSucceeded(context.Background(), event))

	assert.Equal(t, models.PaymentStatusPaid, st.order(11).PaymentStatus)
	assert.Len(t, ev.changed, 1)
}

func TestAutoCancelExpiredSweepsPastDeadline(t *testing.T) {
	st := newFakeStore()

	expired := pendingOrder(20, 0)
	expired.PaymentStatus = models.PaymentStatusPaid
	expired.ConfirmationDeadline = time.Now().Add(-time.Hour)
	st.addOrder(expired)

	fresh := pendingOrder(21, 0)
	st.addOrder(fresh)

	pay := &fakePayments{}
	svc := newTestOrderService(st, newFakeCache(), &fakeEvents{}, pay)

	cancelled, err := svc.AutoCancelExpired(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, cancelled)
	assert.Equal(t, models.OrderStatusCancelled, st.order(20).Status)
	assert.Equal(t, models.OrderStatusPending, st.order(21).Status)
	assert.Equal(t, []int64{20}, pay.refunds)
}
