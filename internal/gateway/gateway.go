// Package gateway is the outbound port to the hosted payment processor and
// the verifier for its signed webhook notifications.
package gateway

import (
	"context"
	"errors"
	"time"
)

var (
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrMalformedEvent   = errors.New("malformed webhook event")
	ErrSessionNotFound  = errors.New("checkout session not found")
	ErrUnavailable      = errors.New("payment gateway unavailable")
)

type LineItem struct {
	Name       string
	UnitAmount int64
	Quantity   int
}

type SessionRequest struct {
	Currency string
	Lines    []LineItem
	// ClientReference is echoed back by the gateway on the session.
	ClientReference string
}

// Session is the subset of a gateway checkout session the store relies on.
type Session struct {
	ID                 string    `json:"id"`
	URL                string    `json:"url,omitempty"`
	ClientSecret       string    `json:"clientSecret,omitempty"`
	AmountTotal        int64     `json:"amountTotal"`
	Currency           string    `json:"currency"`
	Created            time.Time `json:"created"`
	PaymentMethodTypes []string  `json:"paymentMethodTypes"`
	Status             string    `json:"status"`
	PaymentStatus      string    `json:"paymentStatus"`
}

// Bank is the payment-method label recorded on the invoice.
func (s *Session) Bank() string {
	if len(s.PaymentMethodTypes) == 0 {
		return ""
	}
	return s.PaymentMethodTypes[0]
}

type Gateway interface {
	CreateSession(ctx context.Context, req SessionRequest) (*Session, error)
	GetSession(ctx context.Context, id string) (*Session, error)
	ExpireSession(ctx context.Context, id string) error
}
