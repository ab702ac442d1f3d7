package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/fjod/coffee-store/internal/cache"
	"github.com/fjod/coffee-store/internal/domain"
	"github.com/fjod/coffee-store/internal/gateway"
	"github.com/fjod/coffee-store/internal/repository"
)

// fakeStore is an in-memory stand-in for repository.Repository. InTx holds
// the lock for the whole callback and restores a snapshot on error.
type fakeStore struct {
	mu        sync.Mutex
	nextID    int64
	varieties map[int64]domain.Variety
	cartIDs   map[int64]int64
	lines     map[int64]map[int64]int // userID -> varietyID -> quantity
	orders    map[int64]*domain.Order
	invoices  map[string]*domain.Invoice
	outbox    []*domain.OutboxEvent

	calls          int
	invoiceUpdates int
	createErr      error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		varieties: map[int64]domain.Variety{},
		cartIDs:   map[int64]int64{},
		lines:     map[int64]map[int64]int{},
		orders:    map[int64]*domain.Order{},
		invoices:  map[string]*domain.Invoice{},
	}
}

func (s *fakeStore) addVariety(v domain.Variety) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.varieties[v.ID] = v
}

func (s *fakeStore) stock(id int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.varieties[id].Stock
}

func (s *fakeStore) orderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}

func (s *fakeStore) outboxTypes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var types []string
	for _, e := range s.outbox {
		types = append(types, e.EventType)
	}
	return types
}

func (s *fakeStore) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *fakeStore) GetCart(_ context.Context, userID int64) (*domain.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.cart(userID)
}

func (s *fakeStore) cart(userID int64) (*domain.Cart, error) {
	cartID, ok := s.cartIDs[userID]
	if !ok {
		return nil, repository.ErrCartNotFound
	}
	cart := &domain.Cart{ID: cartID, UserID: userID, Items: []domain.CartItem{}}
	ids := make([]int64, 0, len(s.lines[userID]))
	for id := range s.lines[userID] {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		cart.Items = append(cart.Items, domain.CartItem{
			CartID:    cartID,
			VarietyID: id,
			Quantity:  s.lines[userID][id],
			Variety:   s.varieties[id],
		})
	}
	return cart, nil
}

func (s *fakeStore) CreateCart(_ context.Context, userID int64) (*domain.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if _, ok := s.cartIDs[userID]; !ok {
		s.cartIDs[userID] = s.id()
		s.lines[userID] = map[int64]int{}
	}
	return s.cart(userID)
}

func (s *fakeStore) userOf(cartID int64) (int64, bool) {
	for userID, id := range s.cartIDs {
		if id == cartID {
			return userID, true
		}
	}
	return 0, false
}

func (s *fakeStore) AddItem(_ context.Context, cartID, varietyID int64, quantity int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	userID, ok := s.userOf(cartID)
	if !ok {
		return repository.ErrCartNotFound
	}
	s.lines[userID][varietyID] += quantity
	return nil
}

func (s *fakeStore) RemoveItem(_ context.Context, cartID, varietyID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if userID, ok := s.userOf(cartID); ok {
		delete(s.lines[userID], varietyID)
	}
	return nil
}

func (s *fakeStore) GetVariety(_ context.Context, id int64) (*domain.Variety, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	v, ok := s.varieties[id]
	if !ok {
		return nil, repository.ErrVarietyNotFound
	}
	return &v, nil
}

func (s *fakeStore) CreateOrderWithInvoice(_ context.Context, order *domain.Order, invoice *domain.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.createErr != nil {
		return s.createErr
	}
	if _, dup := s.invoices[invoice.TransactionID]; dup {
		return repository.ErrDuplicateTransaction
	}
	for _, item := range order.Items {
		if s.varieties[item.VarietyID].Stock < item.Quantity {
			return &repository.StockError{VarietyID: item.VarietyID, Requested: item.Quantity}
		}
	}
	for _, item := range order.Items {
		v := s.varieties[item.VarietyID]
		v.Stock -= item.Quantity
		s.varieties[item.VarietyID] = v
	}

	order.ID = s.id()
	order.CreatedAt = time.Now()
	for i := range order.Items {
		order.Items[i].ID = s.id()
		order.Items[i].OrderID = order.ID
	}
	invoice.ID = s.id()
	invoice.OrderID = order.ID

	o := *order
	o.Items = append([]domain.OrderItem(nil), order.Items...)
	s.orders[o.ID] = &o
	inv := *invoice
	s.invoices[inv.TransactionID] = &inv
	return nil
}

func (s *fakeStore) GetOrder(_ context.Context, id int64) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.order(id)
}

func (s *fakeStore) order(id int64) (*domain.Order, error) {
	o, ok := s.orders[id]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	cp := *o
	cp.Items = append([]domain.OrderItem(nil), o.Items...)
	return &cp, nil
}

func (s *fakeStore) ListOrders(_ context.Context, filter domain.OrderFilter, page int) ([]*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	all := s.filterOrders(filter)
	start := domain.Offset(page)
	if start >= len(all) {
		return []*domain.Order{}, nil
	}
	end := start + domain.PageSize
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], nil
}

func (s *fakeStore) filterOrders(filter domain.OrderFilter) []*domain.Order {
	var out []*domain.Order
	for id := range s.orders {
		o, _ := s.order(id)
		if filter.Status != nil && o.Status != *filter.Status {
			continue
		}
		if filter.UserID != nil && o.UserID != *filter.UserID {
			continue
		}
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}

func (s *fakeStore) CountOrders(_ context.Context, filter domain.OrderFilter) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return len(s.filterOrders(filter)), nil
}

func (s *fakeStore) FindInvoiceByTransactionID(_ context.Context, transactionID string) (*domain.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	inv, ok := s.invoices[transactionID]
	if !ok {
		return nil, repository.ErrInvoiceNotFound
	}
	cp := *inv
	return &cp, nil
}

func (s *fakeStore) FindInvoiceByOrderID(_ context.Context, orderID int64) (*domain.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	for _, inv := range s.invoices {
		if inv.OrderID == orderID {
			cp := *inv
			return &cp, nil
		}
	}
	return nil, repository.ErrInvoiceNotFound
}

func (s *fakeStore) GetInvoice(_ context.Context, id int64) (*domain.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	for _, inv := range s.invoices {
		if inv.ID == id {
			cp := *inv
			cp.Order, _ = s.order(inv.OrderID)
			return &cp, nil
		}
	}
	return nil, repository.ErrInvoiceNotFound
}

func (s *fakeStore) invoicesWhere(match func(*domain.Invoice) bool) []*domain.Invoice {
	var out []*domain.Invoice
	for _, inv := range s.invoices {
		if match(inv) {
			cp := *inv
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *fakeStore) ListInvoices(_ context.Context, filter domain.InvoiceFilter, _ int) ([]*domain.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.invoicesWhere(func(inv *domain.Invoice) bool {
		return filter.Status == nil || inv.Status == *filter.Status
	}), nil
}

func (s *fakeStore) CountInvoices(ctx context.Context, filter domain.InvoiceFilter) (int, error) {
	list, err := s.ListInvoices(ctx, filter, 1)
	return len(list), err
}

func (s *fakeStore) RecentPaidInvoices(_ context.Context, limit int) ([]*domain.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	out := s.invoicesWhere(func(inv *domain.Invoice) bool { return inv.Status == domain.StatusPaid })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *fakeStore) ListStalePending(_ context.Context, createdBefore time.Time, limit int) ([]*domain.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	out := s.invoicesWhere(func(inv *domain.Invoice) bool {
		return inv.Status == domain.StatusPending && inv.Date.Before(createdBefore)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *fakeStore) InTx(ctx context.Context, fn func(tx repository.PaymentTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	snap := s.snapshot()
	if err := fn(&fakeTx{s: s}); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

type storeSnapshot struct {
	varieties map[int64]domain.Variety
	lines     map[int64]map[int64]int
	orders    map[int64]domain.Order
	invoices  map[string]domain.Invoice
	outbox    int
	updates   int
}

func (s *fakeStore) snapshot() storeSnapshot {
	snap := storeSnapshot{
		varieties: map[int64]domain.Variety{},
		lines:     map[int64]map[int64]int{},
		orders:    map[int64]domain.Order{},
		invoices:  map[string]domain.Invoice{},
		outbox:    len(s.outbox),
		updates:   s.invoiceUpdates,
	}
	for k, v := range s.varieties {
		snap.varieties[k] = v
	}
	for u, m := range s.lines {
		snap.lines[u] = map[int64]int{}
		for k, v := range m {
			snap.lines[u][k] = v
		}
	}
	for k, v := range s.orders {
		snap.orders[k] = *v
	}
	for k, v := range s.invoices {
		snap.invoices[k] = *v
	}
	return snap
}

func (s *fakeStore) restore(snap storeSnapshot) {
	s.varieties = snap.varieties
	s.lines = snap.lines
	s.orders = map[int64]*domain.Order{}
	for k, v := range snap.orders {
		o := v
		s.orders[k] = &o
	}
	s.invoices = map[string]*domain.Invoice{}
	for k, v := range snap.invoices {
		inv := v
		s.invoices[k] = &inv
	}
	s.outbox = s.outbox[:snap.outbox]
	s.invoiceUpdates = snap.updates
}

// fakeTx runs against the store while InTx holds its lock.
type fakeTx struct {
	s *fakeStore
}

func (t *fakeTx) UpdateInvoiceStatus(_ context.Context, transactionID string, from, to domain.Status) (*domain.Invoice, error) {
	inv, ok := t.s.invoices[transactionID]
	if !ok || inv.Status != from {
		return nil, repository.ErrStatusConflict
	}
	inv.Status = to
	t.s.invoiceUpdates++
	cp := *inv
	return &cp, nil
}

func (t *fakeTx) UpdateOrderStatus(_ context.Context, orderID int64, from, to domain.Status) error {
	o, ok := t.s.orders[orderID]
	if !ok || o.Status != from {
		return repository.ErrStatusConflict
	}
	o.Status = to
	return nil
}

func (t *fakeTx) GetOrder(_ context.Context, id int64) (*domain.Order, error) {
	return t.s.order(id)
}

func (t *fakeTx) RemovePurchasedItems(_ context.Context, userID int64, items []domain.OrderItem) (int64, error) {
	var n int64
	for _, item := range items {
		qty, ok := t.s.lines[userID][item.VarietyID]
		if !ok {
			continue
		}
		n++
		if qty <= item.Quantity {
			delete(t.s.lines[userID], item.VarietyID)
		} else {
			t.s.lines[userID][item.VarietyID] = qty - item.Quantity
		}
	}
	return n, nil
}

func (t *fakeTx) ReleaseStock(_ context.Context, items []domain.OrderItem) error {
	for _, item := range items {
		v := t.s.varieties[item.VarietyID]
		v.Stock += item.Quantity
		t.s.varieties[item.VarietyID] = v
	}
	return nil
}

func (t *fakeTx) AddOutboxEvent(_ context.Context, event *domain.OutboxEvent) error {
	event.ID = len(t.s.outbox) + 1
	t.s.outbox = append(t.s.outbox, event)
	return nil
}

// fakeGateway issues sequential session ids and records expirations.
type fakeGateway struct {
	mu        sync.Mutex
	n         int
	sessions  map[string]*gateway.Session
	requests  []gateway.SessionRequest
	expired   []string
	createErr error
	getErr    error
	expireErr error
	created   time.Time
	nextID    string
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		sessions: map[string]*gateway.Session{},
		created:  time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func (g *fakeGateway) CreateSession(_ context.Context, req gateway.SessionRequest) (*gateway.Session, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, req)
	if g.createErr != nil {
		return nil, g.createErr
	}
	g.n++
	id := g.nextID
	if id == "" {
		id = fmt.Sprintf("sess_%d", g.n)
	}
	var total int64
	for _, l := range req.Lines {
		total += l.UnitAmount * int64(l.Quantity)
	}
	s := &gateway.Session{
		ID:                 id,
		URL:                "https://checkout.example/" + id,
		AmountTotal:        total,
		Currency:           req.Currency,
		Created:            g.created,
		PaymentMethodTypes: []string{"card"},
		Status:             domain.SessionStatusOpen,
		PaymentStatus:      domain.PaymentStatusUnpaid,
	}
	g.sessions[id] = s
	cp := *s
	return &cp, nil
}

func (g *fakeGateway) setSession(id, status, paymentStatus string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	s, ok := g.sessions[id]
	if !ok {
		s = &gateway.Session{ID: id}
		g.sessions[id] = s
	}
	s.Status = status
	s.PaymentStatus = paymentStatus
}

func (g *fakeGateway) GetSession(_ context.Context, id string) (*gateway.Session, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.getErr != nil {
		return nil, g.getErr
	}
	s, ok := g.sessions[id]
	if !ok {
		return nil, gateway.ErrSessionNotFound
	}
	cp := *s
	return &cp, nil
}

func (g *fakeGateway) ExpireSession(_ context.Context, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.expireErr != nil {
		return g.expireErr
	}
	s, ok := g.sessions[id]
	if ok && s.Status != domain.SessionStatusOpen {
		return fmt.Errorf("session %s is %s and cannot be expired", id, s.Status)
	}
	g.expired = append(g.expired, id)
	if ok {
		s.Status = domain.SessionStatusExpired
	}
	return nil
}

// memCache is a map-backed cache.CartCache.
type memCache struct {
	mu      sync.Mutex
	carts   map[int64]*domain.Cart
	gets    int
	deletes int
	getErr  error
}

func newMemCache() *memCache {
	return &memCache{carts: map[int64]*domain.Cart{}}
}

func (c *memCache) Get(_ context.Context, userID int64) (*domain.Cart, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	if c.getErr != nil {
		return nil, c.getErr
	}
	cart, ok := c.carts[userID]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	return cart, nil
}

func (c *memCache) Set(_ context.Context, userID int64, cart *domain.Cart) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.carts[userID] = cart
	return nil
}

func (c *memCache) Delete(_ context.Context, userID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deletes++
	delete(c.carts, userID)
	return nil
}

func (c *memCache) has(userID int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.carts[userID]
	return ok
}

var errBoom = errors.New("boom")
