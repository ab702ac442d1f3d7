package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fjod/coffee-store/internal/domain"
	"github.com/lib/pq"
)

const orderColumns = `id, user_id, address_id, total, currency, status, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	o := &domain.Order{}
	var addressID sql.NullInt64
	if err := row.Scan(&o.ID, &o.UserID, &addressID, &o.Total, &o.Currency, &o.Status,
		&o.CreatedAt, &o.UpdatedAt); err != nil {
		return nil, err
	}
	if addressID.Valid {
		o.AddressID = &addressID.Int64
	}
	return o, nil
}

// CreateOrderWithInvoice writes the order, its items and the invoice, and
// reserves stock for every item, all in one transaction. On success the
// generated ids and timestamps are set on order and invoice.
func (r *Repository) CreateOrderWithInvoice(ctx context.Context, order *domain.Order, invoice *domain.Invoice) error {
	return r.withTx(ctx, func(q querier) error {
		var addressID sql.NullInt64
		if order.AddressID != nil {
			addressID = sql.NullInt64{Int64: *order.AddressID, Valid: true}
		}
		err := q.QueryRowContext(ctx, `
			INSERT INTO orders (user_id, address_id, total, currency, status)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id, created_at, updated_at`,
			order.UserID, addressID, order.Total, order.Currency, order.Status,
		).Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert order: %w", err)
		}

		if err := reserveStock(ctx, q, order.Items); err != nil {
			return err
		}

		for i := range order.Items {
			item := &order.Items[i]
			item.OrderID = order.ID
			if err := q.QueryRowContext(ctx, `
				INSERT INTO order_items (order_id, variety_id, name, quantity, unit_price)
				VALUES ($1, $2, $3, $4, $5)
				RETURNING id`,
				item.OrderID, item.VarietyID, item.Name, item.Quantity, item.UnitPrice,
			).Scan(&item.ID); err != nil {
				return fmt.Errorf("insert order item: %w", err)
			}
		}

		invoice.OrderID = order.ID
		err = q.QueryRowContext(ctx, `
			INSERT INTO invoices (order_id, transaction_id, bank, amount, currency, date, status)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING id`,
			invoice.OrderID, invoice.TransactionID, invoice.Bank, invoice.Amount,
			invoice.Currency, invoice.Date, invoice.Status,
		).Scan(&invoice.ID)
		if err != nil {
			var pqErr *pq.Error
			if errors.As(err, &pqErr) && pqErr.Code == "23505" {
				return ErrDuplicateTransaction
			}
			return fmt.Errorf("insert invoice: %w", err)
		}
		return nil
	})
}

func (r *Repository) GetOrder(ctx context.Context, id int64) (*domain.Order, error) {
	o, err := scanOrder(r.q.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if err := r.loadItems(ctx, []*domain.Order{o}); err != nil {
		return nil, err
	}
	return o, nil
}

func orderWhere(filter domain.OrderFilter) *whereBuilder {
	w := &whereBuilder{}
	if filter.Status != nil {
		w.add("status = $%d", string(*filter.Status))
	}
	if filter.UserID != nil {
		w.add("user_id = $%d", *filter.UserID)
	}
	w.dateRange("created_at", filter.From, filter.To)
	return w
}

// ListOrders returns one page of orders, newest first.
func (r *Repository) ListOrders(ctx context.Context, filter domain.OrderFilter, page int) ([]*domain.Order, error) {
	w := orderWhere(filter)
	query := fmt.Sprintf(`SELECT `+orderColumns+` FROM orders%s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		w.String(), w.next(domain.PageSize), w.next(domain.Offset(page)))

	rows, err := r.q.QueryContext(ctx, query, w.args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := []*domain.Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order rows: %w", err)
	}

	if err := r.loadItems(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *Repository) CountOrders(ctx context.Context, filter domain.OrderFilter) (int, error) {
	w := orderWhere(filter)
	var n int
	if err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders`+w.String(), w.args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count orders: %w", err)
	}
	return n, nil
}

// UpdateOrderStatus moves an order from one status to another. It returns
// ErrStatusConflict when the order is no longer in from.
func (r *Repository) UpdateOrderStatus(ctx context.Context, orderID int64, from, to domain.Status) error {
	res, err := r.q.ExecContext(ctx,
		`UPDATE orders SET status = $3, updated_at = NOW() WHERE id = $1 AND status = $2`,
		orderID, from, to)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	if n == 0 {
		return ErrStatusConflict
	}
	return nil
}

// loadItems fills Items for every order with a single query.
func (r *Repository) loadItems(ctx context.Context, orders []*domain.Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(orders))
	byID := make(map[int64]*domain.Order, len(orders))
	for _, o := range orders {
		o.Items = []domain.OrderItem{}
		ids = append(ids, o.ID)
		byID[o.ID] = o
	}

	rows, err := r.q.QueryContext(ctx, `
		SELECT id, order_id, variety_id, name, quantity, unit_price
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY id`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("load order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(&item.ID, &item.OrderID, &item.VarietyID, &item.Name,
			&item.Quantity, &item.UnitPrice); err != nil {
			return fmt.Errorf("scan order item: %w", err)
		}
		if o, ok := byID[item.OrderID]; ok {
			o.Items = append(o.Items, item)
		}
	}
	return rows.Err()
}
