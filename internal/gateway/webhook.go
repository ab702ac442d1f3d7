package gateway

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/fjod/coffee-store/internal/domain"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
)

// WebhookVerifier authenticates gateway notifications against the endpoint secret.
type WebhookVerifier struct {
	secret string
}

func NewWebhookVerifier(secret string) *WebhookVerifier {
	return &WebhookVerifier{secret: secret}
}

// VerifyEvent checks the signature over the exact payload bytes and only then
// decodes the event.
func (v *WebhookVerifier) VerifyEvent(payload []byte, signature string) (domain.PaymentEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, v.secret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return domain.PaymentEvent{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	pe := domain.PaymentEvent{
		ID:      event.ID,
		Type:    string(event.Type),
		Created: time.Unix(event.Created, 0).UTC(),
	}
	if !strings.HasPrefix(pe.Type, "checkout.session.") {
		return pe, nil
	}
	if event.Data == nil {
		return pe, fmt.Errorf("%w: %s has no data", ErrMalformedEvent, pe.Type)
	}

	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return pe, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	pe.SessionID = session.ID
	pe.PaymentStatus = string(session.PaymentStatus)
	return pe, nil
}
