package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fjod/coffee-store/internal/domain"
	"github.com/fjod/coffee-store/internal/gateway"
	"github.com/fjod/coffee-store/internal/repository"
	"github.com/google/uuid"
)

type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeIgnored   Outcome = "ignored"
)

// Result reports what a notification or reconciliation did.
type Result struct {
	Outcome       Outcome       `json:"outcome"`
	EventType     string        `json:"eventType,omitempty"`
	TransactionID string        `json:"transactionId,omitempty"`
	Status        domain.Status `json:"status,omitempty"`
}

type EventVerifier interface {
	VerifyEvent(payload []byte, signature string) (domain.PaymentEvent, error)
}

type cartInvalidator interface {
	Invalidate(ctx context.Context, userID int64)
}

type ReconcilerConfig struct {
	// StaleAfter is how long a checkout may stay pending before the gateway is polled.
	StaleAfter     time.Duration
	GatewayTimeout time.Duration
	BatchSize      int
}

// ReconciliationService owns every Order/Invoice status transition.
type ReconciliationService struct {
	payments repository.PaymentRepository
	orders   repository.OrderRepository
	verifier EventVerifier
	gateway  gateway.Gateway
	carts    cartInvalidator
	cfg      ReconcilerConfig
	now      func() time.Time
}

func NewReconciliationService(
	payments repository.PaymentRepository,
	orders repository.OrderRepository,
	verifier EventVerifier,
	gw gateway.Gateway,
	carts cartInvalidator,
	cfg ReconcilerConfig,
) *ReconciliationService {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	return &ReconciliationService{
		payments: payments,
		orders:   orders,
		verifier: verifier,
		gateway:  gw,
		carts:    carts,
		cfg:      cfg,
		now:      time.Now,
	}
}

// HandleNotification verifies a raw gateway notification and applies the
// status it resolves to. Nothing is read or written before the signature
// checks out.
func (s *ReconciliationService) HandleNotification(ctx context.Context, payload []byte, signature string) (*Result, error) {
	event, err := s.verifier.VerifyEvent(payload, signature)
	switch {
	case errors.Is(err, gateway.ErrInvalidSignature):
		slog.WarnContext(ctx, "webhook signature rejected", "error", err)
		return nil, fmt.Errorf("%w: %w", ErrSignatureInvalid, err)
	case err != nil:
		slog.WarnContext(ctx, "webhook event rejected", "event_type", event.Type, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	status, ok := domain.StatusForEvent(event)
	if !ok {
		slog.DebugContext(ctx, "webhook event ignored", "event_id", event.ID, "event_type", event.Type)
		return &Result{Outcome: OutcomeIgnored, EventType: event.Type, TransactionID: event.SessionID}, nil
	}
	if event.SessionID == "" {
		slog.WarnContext(ctx, "webhook event without session id", "event_id", event.ID, "event_type", event.Type)
		return &Result{Outcome: OutcomeIgnored, EventType: event.Type}, nil
	}

	res, err := s.Apply(ctx, event.SessionID, status, event.Type)
	if res != nil {
		res.EventType = event.Type
	}
	return res, err
}

// Apply moves the invoice for transactionID, and its order, to status.
func (s *ReconciliationService) Apply(ctx context.Context, transactionID string, status domain.Status, source string) (*Result, error) {
	invoice, err := s.payments.FindInvoiceByTransactionID(ctx, transactionID)
	if errors.Is(err, repository.ErrInvoiceNotFound) {
		slog.WarnContext(ctx, "notification for unknown transaction", "transaction_id", transactionID, "source", source)
		return nil, fmt.Errorf("%w: %s", ErrUnknownTransaction, transactionID)
	}
	if err != nil {
		return nil, err
	}
	return s.ApplyInvoice(ctx, invoice, status, source)
}

// ApplyInvoice performs the guarded transition. Re-applying the current
// status is a duplicate; moving a terminal invoice elsewhere is an
// InvalidTransitionError and leaves it untouched.
func (s *ReconciliationService) ApplyInvoice(ctx context.Context, invoice *domain.Invoice, to domain.Status, source string) (*Result, error) {
	txnID := invoice.TransactionID
	if invoice.Status == to {
		return s.duplicate(ctx, txnID, to, source), nil
	}
	if !domain.CanTransitionTo(invoice.Status, to) {
		return nil, s.rejected(ctx, txnID, invoice.Status, to, source)
	}

	var order *domain.Order
	err := s.payments.InTx(ctx, func(tx repository.PaymentTx) error {
		updated, err := tx.UpdateInvoiceStatus(ctx, txnID, domain.StatusPending, to)
		if err != nil {
			return err
		}
		if err := tx.UpdateOrderStatus(ctx, updated.OrderID, domain.StatusPending, to); err != nil {
			return fmt.Errorf("order %d: %w", updated.OrderID, err)
		}
		order, err = tx.GetOrder(ctx, updated.OrderID)
		if err != nil {
			return err
		}

		switch {
		case to == domain.StatusPaid:
			if _, err := tx.RemovePurchasedItems(ctx, order.UserID, order.Items); err != nil {
				return err
			}
		case to.ReleasesStock():
			if err := tx.ReleaseStock(ctx, order.Items); err != nil {
				return err
			}
		}

		return tx.AddOutboxEvent(ctx, newOrderEvent(order, txnID, s.now()))
	})

	if errors.Is(err, repository.ErrStatusConflict) {
		// a concurrent delivery won; classify against what it wrote
		current, ferr := s.payments.FindInvoiceByTransactionID(ctx, txnID)
		if ferr != nil {
			return nil, ferr
		}
		switch current.Status {
		case to:
			return s.duplicate(ctx, txnID, to, source), nil
		case domain.StatusPending:
			slog.ErrorContext(ctx, "order and invoice status diverged", "transaction_id", txnID, "error", err)
			return nil, fmt.Errorf("transition %s to %s: %w", txnID, to, err)
		}
		return nil, s.rejected(ctx, txnID, current.Status, to, source)
	}
	if err != nil {
		slog.ErrorContext(ctx, "apply transition failed", "transaction_id", txnID, "status", to, "error", err)
		return nil, fmt.Errorf("transition %s to %s: %w", txnID, to, err)
	}

	if to == domain.StatusPaid {
		s.carts.Invalidate(ctx, order.UserID)
	}

	slog.InfoContext(ctx, "order status changed",
		"transaction_id", txnID,
		"order_id", order.ID,
		"user_id", order.UserID,
		"status", to,
		"source", source)
	return &Result{Outcome: OutcomeApplied, TransactionID: txnID, Status: to}, nil
}

// ReconcileStale polls the gateway for checkouts that stayed pending past
// StaleAfter and applies whatever the gateway settled. Sessions still open
// are left alone. Returns the number of transitions applied.
func (s *ReconciliationService) ReconcileStale(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.cfg.StaleAfter)
	invoices, err := s.orders.ListStalePending(ctx, cutoff, s.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("list stale checkouts: %w", err)
	}

	applied := 0
	for _, invoice := range invoices {
		if ctx.Err() != nil {
			return applied, ctx.Err()
		}

		gctx, cancel := context.WithTimeout(ctx, s.cfg.GatewayTimeout)
		session, err := s.gateway.GetSession(gctx, invoice.TransactionID)
		cancel()
		if err != nil {
			slog.WarnContext(ctx, "poll stale session failed", "transaction_id", invoice.TransactionID, "error", err)
			continue
		}

		status, ok := domain.StatusForSession(session.Status, session.PaymentStatus)
		if !ok {
			continue
		}
		res, err := s.ApplyInvoice(ctx, invoice, status, "reconcile")
		if err != nil {
			slog.WarnContext(ctx, "reconcile stale checkout failed", "transaction_id", invoice.TransactionID, "error", err)
			continue
		}
		if res.Outcome == OutcomeApplied {
			applied++
		}
	}
	return applied, nil
}

func (s *ReconciliationService) duplicate(ctx context.Context, txnID string, status domain.Status, source string) *Result {
	slog.WarnContext(ctx, "duplicate status notification", "transaction_id", txnID, "status", status, "source", source)
	return &Result{Outcome: OutcomeDuplicate, TransactionID: txnID, Status: status}
}

func (s *ReconciliationService) rejected(ctx context.Context, txnID string, current, requested domain.Status, source string) error {
	slog.WarnContext(ctx, "status transition rejected",
		"transaction_id", txnID,
		"current", current,
		"requested", requested,
		"source", source)
	return &InvalidTransitionError{TransactionID: txnID, Current: current, Requested: requested}
}

func newOrderEvent(order *domain.Order, txnID string, at time.Time) *domain.OutboxEvent {
	// OrderEvent has only plain fields; Marshal cannot fail
	payload, _ := json.Marshal(domain.OrderEvent{
		EventID:       uuid.NewString(),
		OrderID:       order.ID,
		UserID:        order.UserID,
		TransactionID: txnID,
		Status:        order.Status,
		Total:         order.Total,
		Currency:      order.Currency,
		Items:         order.Items,
		OccurredAt:    at.UTC(),
	})
	return &domain.OutboxEvent{
		AggregateId: txnID,
		EventType:   domain.EventTypeFor(order.Status),
		Payload:     payload,
	}
}
