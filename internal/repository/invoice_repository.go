package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/coffee-store/internal/domain"
)

const invoiceColumns = `id, order_id, transaction_id, bank, amount, currency, date, status`

func scanInvoice(row rowScanner) (*domain.Invoice, error) {
	inv := &domain.Invoice{}
	if err := row.Scan(&inv.ID, &inv.OrderID, &inv.TransactionID, &inv.Bank, &inv.Amount,
		&inv.Currency, &inv.Date, &inv.Status); err != nil {
		return nil, err
	}
	return inv, nil
}

func (r *Repository) findInvoice(ctx context.Context, where string, arg any) (*domain.Invoice, error) {
	inv, err := scanInvoice(r.q.QueryRowContext(ctx,
		`SELECT `+invoiceColumns+` FROM invoices WHERE `+where+` = $1`, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInvoiceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find invoice by %s: %w", where, err)
	}
	return inv, nil
}

func (r *Repository) FindInvoiceByTransactionID(ctx context.Context, transactionID string) (*domain.Invoice, error) {
	return r.findInvoice(ctx, "transaction_id", transactionID)
}

func (r *Repository) FindInvoiceByOrderID(ctx context.Context, orderID int64) (*domain.Invoice, error) {
	return r.findInvoice(ctx, "order_id", orderID)
}

// GetInvoice returns the invoice with its order and items attached.
func (r *Repository) GetInvoice(ctx context.Context, id int64) (*domain.Invoice, error) {
	inv, err := r.findInvoice(ctx, "id", id)
	if err != nil {
		return nil, err
	}
	if err := r.attachOrders(ctx, []*domain.Invoice{inv}); err != nil {
		return nil, err
	}
	return inv, nil
}

func invoiceWhere(filter domain.InvoiceFilter) *whereBuilder {
	w := &whereBuilder{}
	if filter.Status != nil {
		w.add("status = $%d", string(*filter.Status))
	}
	w.dateRange("date", filter.From, filter.To)
	return w
}

func (r *Repository) ListInvoices(ctx context.Context, filter domain.InvoiceFilter, page int) ([]*domain.Invoice, error) {
	w := invoiceWhere(filter)
	query := fmt.Sprintf(`SELECT `+invoiceColumns+` FROM invoices%s ORDER BY date DESC, id DESC LIMIT $%d OFFSET $%d`,
		w.String(), w.next(domain.PageSize), w.next(domain.Offset(page)))
	invoices, err := r.queryInvoices(ctx, query, w.args...)
	if err != nil {
		return nil, err
	}
	if err := r.attachOrders(ctx, invoices); err != nil {
		return nil, err
	}
	return invoices, nil
}

func (r *Repository) CountInvoices(ctx context.Context, filter domain.InvoiceFilter) (int, error) {
	w := invoiceWhere(filter)
	var n int
	if err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM invoices`+w.String(), w.args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count invoices: %w", err)
	}
	return n, nil
}

func (r *Repository) RecentPaidInvoices(ctx context.Context, limit int) ([]*domain.Invoice, error) {
	invoices, err := r.queryInvoices(ctx,
		`SELECT `+invoiceColumns+` FROM invoices WHERE status = $1 ORDER BY date DESC, id DESC LIMIT $2`,
		domain.StatusPaid, limit)
	if err != nil {
		return nil, err
	}
	if err := r.attachOrders(ctx, invoices); err != nil {
		return nil, err
	}
	return invoices, nil
}

// ListStalePending returns pending invoices created before the cutoff, oldest first.
func (r *Repository) ListStalePending(ctx context.Context, createdBefore time.Time, limit int) ([]*domain.Invoice, error) {
	return r.queryInvoices(ctx,
		`SELECT `+invoiceColumns+` FROM invoices WHERE status = $1 AND date < $2 ORDER BY date, id LIMIT $3`,
		domain.StatusPending, createdBefore, limit)
}

// UpdateInvoiceStatus moves the invoice for transactionID from one status to
// another and returns the updated row. It returns ErrStatusConflict when the
// invoice is no longer in from.
func (r *Repository) UpdateInvoiceStatus(ctx context.Context, transactionID string, from, to domain.Status) (*domain.Invoice, error) {
	inv, err := scanInvoice(r.q.QueryRowContext(ctx, `
		UPDATE invoices SET status = $3, updated_at = NOW()
		WHERE transaction_id = $1 AND status = $2
		RETURNING `+invoiceColumns,
		transactionID, from, to))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrStatusConflict
	}
	if err != nil {
		return nil, fmt.Errorf("update invoice status: %w", err)
	}
	return inv, nil
}

func (r *Repository) queryInvoices(ctx context.Context, query string, args ...any) ([]*domain.Invoice, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query invoices: %w", err)
	}
	defer rows.Close()

	invoices := []*domain.Invoice{}
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("scan invoice row: %w", err)
		}
		invoices = append(invoices, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate invoice rows: %w", err)
	}
	return invoices, nil
}

func (r *Repository) attachOrders(ctx context.Context, invoices []*domain.Invoice) error {
	for _, inv := range invoices {
		o, err := r.GetOrder(ctx, inv.OrderID)
		if err != nil {
			return fmt.Errorf("attach order %d: %w", inv.OrderID, err)
		}
		inv.Order = o
	}
	return nil
}
