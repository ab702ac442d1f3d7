package cache

import (
	"context"
	"errors"

	"github.com/fjod/coffee-store/internal/domain"
)

// CartCache is a read-through cache in front of the cart store. It is never
// authoritative: checkout always reads the store.
type CartCache interface {
	Get(ctx context.Context, userID int64) (*domain.Cart, error)
	Set(ctx context.Context, userID int64, cart *domain.Cart) error
	Delete(ctx context.Context, userID int64) error
}

var ErrCacheMiss = errors.New("cache miss")
