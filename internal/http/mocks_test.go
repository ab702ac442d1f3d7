package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/fjod/coffee-store/internal/domain"
	"github.com/fjod/coffee-store/internal/gateway"
	"github.com/fjod/coffee-store/internal/service"
)

var errBoom = errors.New("boom")

type CartServiceMock struct {
	cart *domain.Cart
	err  error

	userID    int64
	varietyID int64
	quantity  int
}

func (m *CartServiceMock) GetCart(ctx context.Context, userID int64) (*domain.Cart, error) {
	m.userID = userID
	return m.cart, m.err
}

func (m *CartServiceMock) CreateCart(ctx context.Context, userID int64) (*domain.Cart, error) {
	m.userID = userID
	return m.cart, m.err
}

func (m *CartServiceMock) AddItem(ctx context.Context, userID, varietyID int64, quantity int) (*domain.Cart, error) {
	m.userID, m.varietyID, m.quantity = userID, varietyID, quantity
	return m.cart, m.err
}

func (m *CartServiceMock) RemoveItem(ctx context.Context, userID, varietyID int64) (*domain.Cart, error) {
	m.userID, m.varietyID = userID, varietyID
	return m.cart, m.err
}

type CheckoutServiceMock struct {
	result  *service.CheckoutResult
	session *gateway.Session
	err     error

	req       service.CheckoutRequest
	sessionID string
}

func (m *CheckoutServiceMock) CreateCheckout(ctx context.Context, req service.CheckoutRequest) (*service.CheckoutResult, error) {
	m.req = req
	return m.result, m.err
}

func (m *CheckoutServiceMock) GetSession(ctx context.Context, userID int64, sessionID string) (*gateway.Session, error) {
	m.sessionID = sessionID
	return m.session, m.err
}

type NotificationMock struct {
	result *service.Result
	err    error

	payload   []byte
	signature string
	calls     int
}

func (m *NotificationMock) HandleNotification(ctx context.Context, payload []byte, signature string) (*service.Result, error) {
	m.calls++
	m.payload, m.signature = payload, signature
	return m.result, m.err
}

type OrderServiceMock struct {
	orders   []*domain.Order
	order    *domain.Order
	invoices []*domain.Invoice
	invoice  *domain.Invoice
	count    int
	err      error

	orderFilter   domain.OrderFilter
	invoiceFilter domain.InvoiceFilter
	page          int
	limit         int
	userID        int64
	id            int64
}

func (m *OrderServiceMock) ListOrders(ctx context.Context, filter domain.OrderFilter, page int) ([]*domain.Order, error) {
	m.orderFilter, m.page = filter, page
	return m.orders, m.err
}

func (m *OrderServiceMock) CountOrders(ctx context.Context, filter domain.OrderFilter) (int, error) {
	m.orderFilter = filter
	return m.count, m.err
}

func (m *OrderServiceMock) GetOrder(ctx context.Context, id int64) (*domain.Order, error) {
	m.id = id
	return m.order, m.err
}

func (m *OrderServiceMock) GetUserOrder(ctx context.Context, userID, id int64) (*domain.Order, error) {
	m.userID, m.id = userID, id
	return m.order, m.err
}

func (m *OrderServiceMock) CancelOrder(ctx context.Context, orderID int64) (*domain.Order, error) {
	m.id = orderID
	return m.order, m.err
}

func (m *OrderServiceMock) ListInvoices(ctx context.Context, filter domain.InvoiceFilter, page int) ([]*domain.Invoice, error) {
	m.invoiceFilter, m.page = filter, page
	return m.invoices, m.err
}

func (m *OrderServiceMock) CountInvoices(ctx context.Context, filter domain.InvoiceFilter) (int, error) {
	m.invoiceFilter = filter
	return m.count, m.err
}

func (m *OrderServiceMock) GetInvoice(ctx context.Context, id int64) (*domain.Invoice, error) {
	m.id = id
	return m.invoice, m.err
}

func (m *OrderServiceMock) RecentPaidInvoices(ctx context.Context, limit int) ([]*domain.Invoice, error) {
	m.limit = limit
	return m.invoices, m.err
}

type healthStub bool

func (h healthStub) Healthy() bool { return bool(h) }

type testServer struct {
	carts    *CartServiceMock
	checkout *CheckoutServiceMock
	notify   *NotificationMock
	orders   *OrderServiceMock
	handler  http.Handler
}

func newTestServer() *testServer {
	ts := &testServer{
		carts:    &CartServiceMock{cart: &domain.Cart{ID: 1, UserID: 42}},
		checkout: &CheckoutServiceMock{},
		notify:   &NotificationMock{},
		orders:   &OrderServiceMock{},
	}
	ts.handler = NewRouter(Handlers{
		Cart:     NewCartHandler(ts.carts, 5*time.Second),
		Payments: NewPaymentHandler(ts.checkout, ts.notify, 5*time.Second),
		Orders:   NewOrdersHandler(ts.orders, 5*time.Second),
		Health:   healthStub(true),
	}, 10*time.Second)
	return ts
}

// do sends a request as the given user. userID 0 sends no identity headers.
func (ts *testServer) do(method, target, body string, userID int64, role string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != 0 {
		req.Header.Set(headerUserID, itoa(userID))
	}
	if role != "" {
		req.Header.Set(headerRole, role)
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func withUser(ctx context.Context, userID int64, role string) context.Context {
	ctx = context.WithValue(ctx, userIDKey, userID)
	return context.WithValue(ctx, roleKey, role)
}
