package service

import (
	"context"
	"sync"
	"time"

	"github.com/kingwillyo/BellBuy-sub001/internal/models"
	"github.com/kingwillyo/BellBuy-sub001/internal/store"
)

// fakeStore is an in-memory OrderStore with the same guard semantics as
// the SQL store: status updates only apply when the current value matches.
type fakeStore struct {
	mu            sync.Mutex
	orders        map[int64]*models.Order
	items         map[int64][]models.OrderItem
	products      map[int64]models.Product
	nextID        int64
	statusUpdates int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		orders:   make(map[int64]*models.Order),
		items:    make(map[int64][]models.OrderItem),
		products: make(map[int64]models.Product),
		nextID:   1000,
	}
}

func (f *fakeStore) addOrder(o *models.Order) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *o
	f.orders[o.ID] = &cp
}

func (f *fakeStore) addProduct(p models.Product) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.products[p.ID] = p
}

func (f *fakeStore) order(id int64) models.Order {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.orders[id]
}

func (f *fakeStore) CreateOrder(ctx context.Context, order *models.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	order.ID = f.nextID
	order.CreatedAt = time.Now()
	order.UpdatedAt = order.CreatedAt
	cp := *order
	f.orders[order.ID] = &cp
	return nil
}

func (f *fakeStore) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[id]
	if !ok {
		return nil, store.ErrOrderNotFound
	}
	cp := *o
	return &cp, nil
}

func (f *fakeStore) GetOrderByIdempotencyKey(ctx context.Context, key string) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, o := range f.orders {
		if o.IdempotencyKey == key {
			cp := *o
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) UpdateOrderStatus(ctx context.Context, orderID int64, from, to models.OrderStatus) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusUpdates++
	o, ok := f.orders[orderID]
	if !ok || o.Status != from {
		return false, nil
	}
	o.Status = to
	o.UpdatedAt = time.Now()
	return true, nil
}

func (f *fakeStore) UpdatePaymentStatus(ctx context.Context, orderID int64, from, to models.PaymentStatus) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[orderID]
	if !ok || o.PaymentStatus != from {
		return false, nil
	}
	o.PaymentStatus = to
	o.UpdatedAt = time.Now()
	return true, nil
}

func (f *fakeStore) SetVerificationCode(ctx context.Context, orderID int64, code string, expiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[orderID]
	if !ok {
		return store.ErrOrderNotFound
	}
	o.VerificationCode = code
	o.VerificationExpiresAt = &expiresAt
	return nil
}

func (f *fakeStore) CompleteOrder(ctx context.Context, orderID int64, from []models.OrderStatus) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[orderID]
	if !ok {
		return false, nil
	}
	eligible := false
	for _, s := range from {
		if o.Status == s {
			eligible = true
			break
		}
	}
	if !eligible {
		return false, nil
	}
	o.Status = models.OrderStatusCompleted
	o.VerificationCode = ""
	o.VerificationExpiresAt = nil
	o.UpdatedAt = time.Now()
	return true, nil
}

func (f *fakeStore) ListOrdersByBuyer(ctx context.Context, buyerID string) ([]models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Order
	for _, o := range f.orders {
		if o.BuyerID == buyerID {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (f *fakeStore) ListOrdersBySeller(ctx context.Context, sellerID string) ([]models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Order
	for _, o := range f.orders {
		if o.SellerID == sellerID {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (f *fakeStore) ListPendingPastDeadline(ctx context.Context, now time.Time, limit int) ([]models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Order
	for _, o := range f.orders {
		if o.Status == models.OrderStatusPending && o.ConfirmationDeadline.Before(now) {
			out = append(out, *o)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (f *fakeStore) CreateOrderItem(ctx context.Context, item *models.OrderItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	item.ID = f.nextID
	f.items[item.OrderID] = append(f.items[item.OrderID], *item)
	return nil
}

func (f *fakeStore) GetOrderItemsByOrderID(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.items[orderID], nil
}

func (f *fakeStore) GetProductsByIDs(ctx context.Context, ids []int64) ([]models.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Product
	for _, id := range ids {
		if p, ok := f.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

// fakeCache tracks held order locks and idempotency keys in memory
type fakeCache struct {
	mu       sync.Mutex
	held     map[int64]bool
	idemKeys map[string]int64
}

func newFakeCache() *fakeCache {
	return &fakeCache{
		held:     make(map[int64]bool),
		idemKeys: make(map[string]int64),
	}
}

func (l *fakeCache) AcquireOrderLock(ctx context.Context, orderID int64, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[orderID] {
		return false, nil
	}
	l.held[orderID] = true
	return true, nil
}

func (l *fakeCache) ReleaseOrderLock(ctx context.Context, orderID int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, orderID)
	return nil
}

func (l *fakeCache) SetIdempotencyKey(ctx context.Context, key string, orderID int64, ttl time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.idemKeys[key] = orderID
	return nil
}

func (l *fakeCache) GetIdempotentOrderID(ctx context.Context, key string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.idemKeys[key], nil
}

// fakeEvents records published events
type fakeEvents struct {
	mu            sync.Mutex
	changed       []*models.OrderChangedEvent
	completed     []*models.OrderCompletedEvent
	notifications []*models.NotificationEvent
}

func (e *fakeEvents) PublishOrderChanged(ctx context.Context, event *models.OrderChangedEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.changed = append(e.changed, event)
	return nil
}

func (e *fakeEvents) PublishOrderCompleted(ctx context.Context, event *models.OrderCompletedEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.completed = append(e.completed, event)
	return nil
}

func (e *fakeEvents) PublishNotification(ctx context.Context, event *models.NotificationEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.notifications = append(e.notifications, event)
	return nil
}

// fakeVerifier returns a canned result and records calls
type fakeVerifier struct {
	result  *VerifyResult
	err     error
	calls   int
	lastReq VerifyRequest
}

func (v *fakeVerifier) Verify(ctx context.Context, req VerifyRequest) (*VerifyResult, error) {
	v.calls++
	v.lastReq = req
	if v.err != nil {
		return nil, v.err
	}
	return v.result, nil
}

// fakePayments records refund requests
type fakePayments struct {
	refunds []int64
}

func (p *fakePayments) RequestRefund(ctx context.Context, orderID int64, amount int64, reason string) error {
	p.refunds = append(p.refunds, orderID)
	return nil
}

func newTestOrderService(st *fakeStore, ca *fakeCache, ev *fakeEvents, pay *fakePayments) *OrderService {
	return NewOrderService(st, ca, ev, pay, 24*time.Hour, time.Hour, 500)
}
