package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/fjod/coffee-store/internal/domain"
)

func (r *Repository) GetVariety(ctx context.Context, id int64) (*domain.Variety, error) {
	v := &domain.Variety{}
	err := r.q.QueryRowContext(ctx, `
		SELECT v.id, v.product_id, p.name, v.name, v.price, v.stock
		FROM varieties v
		JOIN products p ON p.id = v.product_id
		WHERE v.id = $1`, id,
	).Scan(&v.ID, &v.ProductID, &v.ProductName, &v.Name, &v.Price, &v.Stock)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrVarietyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get variety: %w", err)
	}
	return v, nil
}

// reserveStock decrements stock only when enough is available. Items are
// locked in variety id order so concurrent checkouts cannot deadlock.
func reserveStock(ctx context.Context, q querier, items []domain.OrderItem) error {
	for _, item := range byVariety(items) {
		res, err := q.ExecContext(ctx,
			`UPDATE varieties SET stock = stock - $1 WHERE id = $2 AND stock >= $1`,
			item.Quantity, item.VarietyID)
		if err != nil {
			return fmt.Errorf("reserve stock for variety %d: %w", item.VarietyID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("reserve stock for variety %d: %w", item.VarietyID, err)
		}
		if n == 0 {
			return &StockError{VarietyID: item.VarietyID, Requested: item.Quantity}
		}
	}
	return nil
}

// ReleaseStock puts reserved quantities back on the shelf.
func (r *Repository) ReleaseStock(ctx context.Context, items []domain.OrderItem) error {
	for _, item := range byVariety(items) {
		if _, err := r.q.ExecContext(ctx,
			`UPDATE varieties SET stock = stock + $1 WHERE id = $2`,
			item.Quantity, item.VarietyID); err != nil {
			return fmt.Errorf("release stock for variety %d: %w", item.VarietyID, err)
		}
	}
	return nil
}

func byVariety(items []domain.OrderItem) []domain.OrderItem {
	sorted := make([]domain.OrderItem, len(items))
	copy(sorted, items)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].VarietyID < sorted[j].VarietyID })
	return sorted
}
