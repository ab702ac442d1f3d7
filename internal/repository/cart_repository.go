package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fjod/coffee-store/internal/domain"
)

func (r *Repository) GetCart(ctx context.Context, userID int64) (*domain.Cart, error) {
	cart := &domain.Cart{}
	err := r.q.QueryRowContext(ctx,
		`SELECT id, user_id, created_at, updated_at FROM carts WHERE user_id = $1`,
		userID,
	).Scan(&cart.ID, &cart.UserID, &cart.CreatedAt, &cart.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCartNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get cart: %w", err)
	}

	rows, err := r.q.QueryContext(ctx, `
		SELECT ci.id, ci.cart_id, ci.variety_id, ci.quantity,
		       v.id, v.product_id, p.name, v.name, v.price, v.stock
		FROM cart_items ci
		JOIN varieties v ON v.id = ci.variety_id
		JOIN products p ON p.id = v.product_id
		WHERE ci.cart_id = $1
		ORDER BY ci.id`, cart.ID)
	if err != nil {
		return nil, fmt.Errorf("get cart items: %w", err)
	}
	defer rows.Close()

	cart.Items = []domain.CartItem{}
	for rows.Next() {
		var item domain.CartItem
		v := &item.Variety
		if err := rows.Scan(&item.ID, &item.CartID, &item.VarietyID, &item.Quantity,
			&v.ID, &v.ProductID, &v.ProductName, &v.Name, &v.Price, &v.Stock); err != nil {
			return nil, fmt.Errorf("scan cart item: %w", err)
		}
		cart.Items = append(cart.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cart items: %w", err)
	}
	return cart, nil
}

// CreateCart returns the user's cart, creating an empty one on first use.
func (r *Repository) CreateCart(ctx context.Context, userID int64) (*domain.Cart, error) {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO carts (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING`, userID)
	if err != nil {
		return nil, fmt.Errorf("create cart: %w", err)
	}
	return r.GetCart(ctx, userID)
}

// AddItem merges quantity into an existing line for the same variety.
func (r *Repository) AddItem(ctx context.Context, cartID, varietyID int64, quantity int) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO cart_items (cart_id, variety_id, quantity)
		VALUES ($1, $2, $3)
		ON CONFLICT (cart_id, variety_id)
		DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity`,
		cartID, varietyID, quantity)
	if err != nil {
		return fmt.Errorf("add cart item: %w", err)
	}
	return r.touchCart(ctx, cartID)
}

// RemoveItem is a no-op when the variety is not in the cart.
func (r *Repository) RemoveItem(ctx context.Context, cartID, varietyID int64) error {
	_, err := r.q.ExecContext(ctx,
		`DELETE FROM cart_items WHERE cart_id = $1 AND variety_id = $2`, cartID, varietyID)
	if err != nil {
		return fmt.Errorf("remove cart item: %w", err)
	}
	return r.touchCart(ctx, cartID)
}

// RemovePurchasedItems subtracts ordered quantities from the user's cart and
// drops lines that reach zero. Lines added after checkout survive.
func (r *Repository) RemovePurchasedItems(ctx context.Context, userID int64, items []domain.OrderItem) (int64, error) {
	var affected int64
	for _, item := range items {
		res, err := r.q.ExecContext(ctx, `
			DELETE FROM cart_items
			WHERE cart_id = (SELECT id FROM carts WHERE user_id = $1)
			  AND variety_id = $2 AND quantity <= $3`,
			userID, item.VarietyID, item.Quantity)
		if err != nil {
			return affected, fmt.Errorf("delete purchased item %d: %w", item.VarietyID, err)
		}
		n, _ := res.RowsAffected()
		affected += n
		if n > 0 {
			continue
		}

		res, err = r.q.ExecContext(ctx, `
			UPDATE cart_items SET quantity = quantity - $3
			WHERE cart_id = (SELECT id FROM carts WHERE user_id = $1)
			  AND variety_id = $2`,
			userID, item.VarietyID, item.Quantity)
		if err != nil {
			return affected, fmt.Errorf("decrement purchased item %d: %w", item.VarietyID, err)
		}
		n, _ = res.RowsAffected()
		affected += n
	}
	return affected, nil
}

func (r *Repository) touchCart(ctx context.Context, cartID int64) error {
	if _, err := r.q.ExecContext(ctx,
		`UPDATE carts SET updated_at = NOW() WHERE id = $1`, cartID); err != nil {
		return fmt.Errorf("touch cart: %w", err)
	}
	return nil
}
