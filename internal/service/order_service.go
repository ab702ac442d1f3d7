package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fjod/coffee-store/internal/domain"
	"github.com/fjod/coffee-store/internal/gateway"
	"github.com/fjod/coffee-store/internal/repository"
)

const (
	DefaultRecentInvoices = 5
	maxRecentInvoices     = 50
)

type statusApplier interface {
	ApplyInvoice(ctx context.Context, invoice *domain.Invoice, to domain.Status, source string) (*Result, error)
}

type OrderService struct {
	orders   repository.OrderRepository
	statuses statusApplier
	gateway  gateway.Gateway
	timeout  time.Duration
}

func NewOrderService(orders repository.OrderRepository, statuses statusApplier, gw gateway.Gateway, timeout time.Duration) *OrderService {
	return &OrderService{
		orders:   orders,
		statuses: statuses,
		gateway:  gw,
		timeout:  timeout,
	}
}

func (s *OrderService) ListOrders(ctx context.Context, filter domain.OrderFilter, page int) ([]*domain.Order, error) {
	return s.orders.ListOrders(ctx, filter, page)
}

func (s *OrderService) CountOrders(ctx context.Context, filter domain.OrderFilter) (int, error) {
	return s.orders.CountOrders(ctx, filter)
}

func (s *OrderService) GetOrder(ctx context.Context, id int64) (*domain.Order, error) {
	order, err := s.orders.GetOrder(ctx, id)
	if err != nil {
		return nil, storeError(err)
	}
	return order, nil
}

// GetUserOrder hides orders of other users behind ErrNotFound.
func (s *OrderService) GetUserOrder(ctx context.Context, userID, id int64) (*domain.Order, error) {
	order, err := s.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, fmt.Errorf("%w: order %d", ErrNotFound, id)
	}
	return order, nil
}

func (s *OrderService) ListInvoices(ctx context.Context, filter domain.InvoiceFilter, page int) ([]*domain.Invoice, error) {
	return s.orders.ListInvoices(ctx, filter, page)
}

func (s *OrderService) CountInvoices(ctx context.Context, filter domain.InvoiceFilter) (int, error) {
	return s.orders.CountInvoices(ctx, filter)
}

func (s *OrderService) GetInvoice(ctx context.Context, id int64) (*domain.Invoice, error) {
	invoice, err := s.orders.GetInvoice(ctx, id)
	if err != nil {
		return nil, storeError(err)
	}
	return invoice, nil
}

func (s *OrderService) RecentPaidInvoices(ctx context.Context, limit int) ([]*domain.Invoice, error) {
	if limit <= 0 {
		limit = DefaultRecentInvoices
	}
	if limit > maxRecentInvoices {
		limit = maxRecentInvoices
	}
	return s.orders.RecentPaidInvoices(ctx, limit)
}

// CancelOrder cancels a pending order. The gateway session is closed first:
// a session the customer already paid is settled as paid instead, and a
// session that cannot be closed leaves the order pending.
func (s *OrderService) CancelOrder(ctx context.Context, orderID int64) (*domain.Order, error) {
	invoice, err := s.orders.FindInvoiceByOrderID(ctx, orderID)
	if err != nil {
		return nil, storeError(err)
	}
	if invoice.Status != domain.StatusPending {
		return nil, &InvalidTransitionError{
			TransactionID: invoice.TransactionID,
			Current:       invoice.Status,
			Requested:     domain.StatusCanceled,
		}
	}

	if err := s.closeSession(ctx, invoice); err != nil {
		return nil, err
	}

	if _, err := s.statuses.ApplyInvoice(ctx, invoice, domain.StatusCanceled, "admin"); err != nil {
		return nil, err
	}
	return s.GetOrder(ctx, orderID)
}

// closeSession makes sure no payment can complete on the invoice's session.
func (s *OrderService) closeSession(ctx context.Context, invoice *domain.Invoice) error {
	txnID := invoice.TransactionID
	gctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	session, err := s.gateway.GetSession(gctx, txnID)
	switch {
	case errors.Is(err, gateway.ErrSessionNotFound):
		slog.WarnContext(ctx, "canceling order without gateway session", "transaction_id", txnID)
		return nil
	case err != nil:
		return &GatewayError{Op: "get session", Err: err}
	}

	switch session.Status {
	case domain.SessionStatusOpen:
		if err := s.gateway.ExpireSession(gctx, txnID); err != nil {
			return &GatewayError{Op: "expire session", Err: err}
		}
		return nil
	case domain.SessionStatusExpired:
		return nil
	}

	// complete: the customer paid, or a delayed payment is still settling
	if status, ok := domain.StatusForSession(session.Status, session.PaymentStatus); ok {
		if _, err := s.statuses.ApplyInvoice(ctx, invoice, status, "admin"); err != nil {
			return err
		}
		slog.WarnContext(ctx, "cancel refused, session already paid", "transaction_id", txnID)
		return &InvalidTransitionError{TransactionID: txnID, Current: status, Requested: domain.StatusCanceled}
	}
	slog.WarnContext(ctx, "cancel refused, payment in progress", "transaction_id", txnID, "payment_status", session.PaymentStatus)
	return fmt.Errorf("%w: %s has a payment in progress", ErrInvalidTransition, txnID)
}
