package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/fjod/coffee-store/internal/domain"
	"github.com/fjod/coffee-store/internal/gateway"
	"github.com/fjod/coffee-store/internal/repository"
)

var currencyPattern = regexp.MustCompile(`^[a-z]{3}$`)

type CheckoutRequest struct {
	UserID    int64
	Currency  string
	AddressID *int64
}

type CheckoutResult struct {
	Session *gateway.Session `json:"session"`
	Order   *domain.Order    `json:"order"`
	Invoice *domain.Invoice  `json:"invoice"`
}

type CheckoutService struct {
	carts     repository.CartRepository
	varieties repository.VarietyRepository
	orders    repository.OrderRepository
	gateway   gateway.Gateway
	timeout   time.Duration
}

func NewCheckoutService(
	carts repository.CartRepository,
	varieties repository.VarietyRepository,
	orders repository.OrderRepository,
	gw gateway.Gateway,
	timeout time.Duration,
) *CheckoutService {
	return &CheckoutService{
		carts:     carts,
		varieties: varieties,
		orders:    orders,
		gateway:   gw,
		timeout:   timeout,
	}
}

// CreateCheckout opens a gateway session for the user's cart and records a
// pending order and invoice for it. The cart is left untouched; it is cleared
// once payment is confirmed.
func (s *CheckoutService) CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error) {
	currency := strings.ToLower(strings.TrimSpace(req.Currency))
	if !currencyPattern.MatchString(currency) {
		return nil, fmt.Errorf("%w: currency %q", ErrInvalidInput, req.Currency)
	}

	// always the store, never the cache
	cart, err := s.carts.GetCart(ctx, req.UserID)
	if err != nil {
		return nil, storeError(err)
	}
	if cart.IsEmpty() {
		return nil, ErrEmptyCart
	}

	for _, line := range cart.Items {
		if line.Variety.Stock < line.Quantity {
			return nil, &OutOfStockError{
				VarietyID: line.VarietyID,
				Name:      line.Variety.DisplayName(),
				Requested: line.Quantity,
				Available: line.Variety.Stock,
			}
		}
	}

	items := domain.OrderItemsFromCart(cart)
	sessionReq := gateway.SessionRequest{
		Currency:        currency,
		ClientReference: strconv.FormatInt(req.UserID, 10),
	}
	for _, item := range items {
		sessionReq.Lines = append(sessionReq.Lines, gateway.LineItem{
			Name:       item.Name,
			UnitAmount: item.UnitPrice,
			Quantity:   item.Quantity,
		})
	}

	gctx, cancel := context.WithTimeout(ctx, s.timeout)
	session, err := s.gateway.CreateSession(gctx, sessionReq)
	cancel()
	if err != nil {
		slog.ErrorContext(ctx, "create checkout session failed", "user_id", req.UserID, "error", err)
		return nil, &GatewayError{Op: "create session", Err: err}
	}

	if session.Currency != "" {
		currency = session.Currency
	}
	order := &domain.Order{
		UserID:    req.UserID,
		AddressID: req.AddressID,
		Total:     session.AmountTotal,
		Currency:  currency,
		Status:    domain.StatusPending,
		Items:     items,
	}
	invoice := &domain.Invoice{
		TransactionID: session.ID,
		Bank:          session.Bank(),
		Amount:        session.AmountTotal,
		Currency:      currency,
		Date:          session.Created,
		Status:        domain.StatusPending,
	}

	if err := s.orders.CreateOrderWithInvoice(ctx, order, invoice); err != nil {
		s.expireSession(ctx, session.ID)

		var stockErr *repository.StockError
		if errors.As(err, &stockErr) {
			return nil, s.outOfStock(ctx, cart, stockErr)
		}
		slog.ErrorContext(ctx, "persist checkout failed", "user_id", req.UserID, "transaction_id", session.ID, "error", err)
		return nil, fmt.Errorf("create order for session %s: %w", session.ID, err)
	}

	slog.InfoContext(ctx, "checkout created",
		"user_id", req.UserID,
		"order_id", order.ID,
		"transaction_id", invoice.TransactionID,
		"total", order.Total)

	return &CheckoutResult{Session: session, Order: order, Invoice: invoice}, nil
}

// GetSession returns the gateway session behind one of the user's invoices.
func (s *CheckoutService) GetSession(ctx context.Context, userID int64, sessionID string) (*gateway.Session, error) {
	invoice, err := s.orders.FindInvoiceByTransactionID(ctx, sessionID)
	if err != nil {
		return nil, storeError(err)
	}
	order, err := s.orders.GetOrder(ctx, invoice.OrderID)
	if err != nil {
		return nil, storeError(err)
	}
	if order.UserID != userID {
		return nil, fmt.Errorf("%w: session %s", ErrNotFound, sessionID)
	}

	gctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	session, err := s.gateway.GetSession(gctx, sessionID)
	if errors.Is(err, gateway.ErrSessionNotFound) {
		return nil, fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	if err != nil {
		return nil, &GatewayError{Op: "get session", Err: err}
	}
	return session, nil
}

// expireSession closes a session that will never get an order. Best effort.
func (s *CheckoutService) expireSession(ctx context.Context, sessionID string) {
	gctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()
	if err := s.gateway.ExpireSession(gctx, sessionID); err != nil {
		slog.WarnContext(ctx, "expire orphaned session failed", "transaction_id", sessionID, "error", err)
	}
}

func (s *CheckoutService) outOfStock(ctx context.Context, cart *domain.Cart, stockErr *repository.StockError) error {
	e := &OutOfStockError{VarietyID: stockErr.VarietyID, Requested: stockErr.Requested}
	if line, ok := cart.Item(stockErr.VarietyID); ok {
		e.Name = line.Variety.DisplayName()
	}
	if v, err := s.varieties.GetVariety(ctx, stockErr.VarietyID); err == nil {
		e.Available = v.Stock
	}
	return e
}
