package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/fjod/coffee-store/internal/cache"
	"github.com/fjod/coffee-store/internal/domain"
	"github.com/fjod/coffee-store/internal/repository"
	"golang.org/x/sync/singleflight"
)

const (
	cacheOpTimeout = time.Second
	// cartLoadTimeout bounds a shared cache-miss load, which outlives any single caller.
	cartLoadTimeout = 5 * time.Second
	// invalidation counters are striped by user id; a collision only skips a cache fill
	invalidationStripes = 64
)

type CartService struct {
	repo        repository.CartRepository
	varieties   repository.VarietyRepository
	cache       cache.CartCache
	sfg         singleflight.Group // Prevents cache stampede
	invalidated [invalidationStripes]atomic.Uint64
}

func NewCartService(repo repository.CartRepository, varieties repository.VarietyRepository, cache cache.CartCache) *CartService {
	return &CartService{
		repo:      repo,
		varieties: varieties,
		cache:     cache,
	}
}

// GetCart serves the cart from cache when possible. Fails with ErrNotFound
// when the user has no cart.
func (s *CartService) GetCart(ctx context.Context, userID int64) (*domain.Cart, error) {
	v, err, _ := s.sfg.Do(strconv.FormatInt(userID, 10), func() (interface{}, error) {
		// shared by every coalesced caller, so not bound to the first one's request
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cartLoadTimeout)
		defer cancel()
		return s.load(ctx, userID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.Cart), nil
}

func (s *CartService) load(ctx context.Context, userID int64) (*domain.Cart, error) {
	cart, err := s.cache.Get(ctx, userID)
	if err == nil {
		return cart, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		slog.WarnContext(ctx, "cart cache get failed", "user_id", userID, "error", err)
	}

	gen := s.generation(userID)
	seen := gen.Load()
	cart, err = s.repo.GetCart(ctx, userID)
	if err != nil {
		return nil, storeError(err)
	}
	if gen.Load() != seen {
		// invalidated while loading; the cart read above may predate the change
		return cart, nil
	}

	setCtx, cancel := context.WithTimeout(ctx, cacheOpTimeout)
	defer cancel()
	if err := s.cache.Set(setCtx, userID, cart); err != nil {
		slog.WarnContext(ctx, "cart cache set failed", "user_id", userID, "error", err)
	}
	if gen.Load() != seen {
		s.deleteCached(ctx, userID)
	}
	return cart, nil
}

// CreateCart provisions the user's cart. Calling it again returns the existing cart.
func (s *CartService) CreateCart(ctx context.Context, userID int64) (*domain.Cart, error) {
	cart, err := s.repo.CreateCart(ctx, userID)
	if err != nil {
		return nil, storeError(err)
	}
	s.Invalidate(ctx, userID)
	return cart, nil
}

// AddItem adds quantity of a variety, merging into an existing line.
func (s *CartService) AddItem(ctx context.Context, userID, varietyID int64, quantity int) (*domain.Cart, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("%w: quantity must be positive", ErrInvalidInput)
	}

	variety, err := s.varieties.GetVariety(ctx, varietyID)
	if err != nil {
		return nil, storeError(err)
	}
	if variety.Stock < quantity {
		return nil, &OutOfStockError{
			VarietyID: variety.ID,
			Name:      variety.DisplayName(),
			Requested: quantity,
			Available: variety.Stock,
		}
	}

	cart, err := s.repo.GetCart(ctx, userID)
	if err != nil {
		return nil, storeError(err)
	}
	if err := s.repo.AddItem(ctx, cart.ID, varietyID, quantity); err != nil {
		slog.ErrorContext(ctx, "add cart item failed", "user_id", userID, "variety_id", varietyID, "error", err)
		return nil, err
	}

	s.Invalidate(ctx, userID)
	return s.reload(ctx, userID)
}

// RemoveItem drops the variety's line. Removing an absent variety succeeds.
func (s *CartService) RemoveItem(ctx context.Context, userID, varietyID int64) (*domain.Cart, error) {
	cart, err := s.repo.GetCart(ctx, userID)
	if err != nil {
		return nil, storeError(err)
	}
	if _, ok := cart.Item(varietyID); !ok {
		return cart, nil
	}
	if err := s.repo.RemoveItem(ctx, cart.ID, varietyID); err != nil {
		slog.ErrorContext(ctx, "remove cart item failed", "user_id", userID, "variety_id", varietyID, "error", err)
		return nil, err
	}

	s.Invalidate(ctx, userID)
	return s.reload(ctx, userID)
}

// Invalidate drops the cached cart. Failures are logged only.
func (s *CartService) Invalidate(ctx context.Context, userID int64) {
	s.generation(userID).Add(1)
	s.deleteCached(ctx, userID)
}

func (s *CartService) deleteCached(ctx context.Context, userID int64) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cacheOpTimeout)
	defer cancel()
	if err := s.cache.Delete(ctx, userID); err != nil {
		slog.WarnContext(ctx, "cart cache invalidate failed", "user_id", userID, "error", err)
	}
}

func (s *CartService) generation(userID int64) *atomic.Uint64 {
	return &s.invalidated[uint64(userID)%invalidationStripes]
}

func (s *CartService) reload(ctx context.Context, userID int64) (*domain.Cart, error) {
	cart, err := s.repo.GetCart(ctx, userID)
	if err != nil {
		return nil, storeError(err)
	}
	return cart, nil
}

// storeError maps repository lookups to the service taxonomy.
func storeError(err error) error {
	switch {
	case errors.Is(err, repository.ErrCartNotFound),
		errors.Is(err, repository.ErrVarietyNotFound),
		errors.Is(err, repository.ErrOrderNotFound),
		errors.Is(err, repository.ErrInvoiceNotFound):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	return err
}
