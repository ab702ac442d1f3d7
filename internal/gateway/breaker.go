package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"
)

type BreakerSettings struct {
	// MaxFailures is the number of consecutive failures that opens the breaker.
	MaxFailures uint32
	OpenTimeout time.Duration
}

// BreakerGateway fails fast while the wrapped gateway keeps failing.
type BreakerGateway struct {
	next Gateway
	cb   *gobreaker.CircuitBreaker[*Session]
}

func NewBreakerGateway(next Gateway, s BreakerSettings) *BreakerGateway {
	if s.MaxFailures == 0 {
		s.MaxFailures = 5
	}
	if s.OpenTimeout == 0 {
		s.OpenTimeout = 30 * time.Second
	}

	cb := gobreaker.NewCircuitBreaker[*Session](gobreaker.Settings{
		Name:        "payment-gateway",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     s.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= s.MaxFailures
		},
		// a missing session or a caller giving up says nothing about gateway health
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, ErrSessionNotFound) ||
				errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
		},
	})
	return &BreakerGateway{next: next, cb: cb}
}

func (b *BreakerGateway) CreateSession(ctx context.Context, req SessionRequest) (*Session, error) {
	return b.execute(func() (*Session, error) {
		return b.next.CreateSession(ctx, req)
	})
}

func (b *BreakerGateway) GetSession(ctx context.Context, id string) (*Session, error) {
	return b.execute(func() (*Session, error) {
		return b.next.GetSession(ctx, id)
	})
}

func (b *BreakerGateway) ExpireSession(ctx context.Context, id string) error {
	_, err := b.execute(func() (*Session, error) {
		return nil, b.next.ExpireSession(ctx, id)
	})
	return err
}

func (b *BreakerGateway) execute(fn func() (*Session, error)) (*Session, error) {
	s, err := b.cb.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return s, err
}
