package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/fjod/coffee-store/internal/domain"
	"github.com/fjod/coffee-store/internal/gateway"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76/webhook"
)

const testWebhookSecret = "whsec_service_test"

type harness struct {
	store    *fakeStore
	gw       *fakeGateway
	cache    *memCache
	carts    *CartService
	checkout *CheckoutService
	recon    *ReconciliationService
	orders   *OrderService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store: newFakeStore(),
		gw:    newFakeGateway(),
		cache: newMemCache(),
	}
	h.carts = NewCartService(h.store, h.store, h.cache)
	h.checkout = NewCheckoutService(h.store, h.store, h.store, h.gw, time.Second)
	h.recon = NewReconciliationService(h.store, h.store, gateway.NewWebhookVerifier(testWebhookSecret), h.gw, h.carts,
		ReconcilerConfig{StaleAfter: 25 * time.Hour, GatewayTimeout: time.Second})
	h.orders = NewOrderService(h.store, h.recon, h.gw, time.Second)
	return h
}

// withCart provisions userID's cart holding qty of a fresh variety.
func (h *harness) withCart(t *testing.T, userID int64, v domain.Variety, qty int) {
	t.Helper()
	ctx := context.Background()
	h.store.addVariety(v)
	_, err := h.carts.CreateCart(ctx, userID)
	require.NoError(t, err)
	if qty > 0 {
		_, err = h.carts.AddItem(ctx, userID, v.ID, qty)
		require.NoError(t, err)
	}
}

func (h *harness) checkoutFor(t *testing.T, userID int64) *CheckoutResult {
	t.Helper()
	res, err := h.checkout.CreateCheckout(context.Background(), CheckoutRequest{UserID: userID, Currency: "usd"})
	require.NoError(t, err)
	return res
}

func sessionEvent(eventType, sessionID, paymentStatus string) []byte {
	return []byte(fmt.Sprintf(`{
		"id": "evt_%s",
		"object": "event",
		"created": 1700000000,
		"type": %q,
		"data": {"object": {"id": %q, "object": "checkout.session", "payment_status": %q}}
	}`, sessionID, eventType, sessionID, paymentStatus))
}

func signed(payload []byte) string {
	return webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    testWebhookSecret,
		Timestamp: time.Now(),
	}).Header
}

func (h *harness) deliver(eventType, sessionID, paymentStatus string) (*Result, error) {
	payload := sessionEvent(eventType, sessionID, paymentStatus)
	return h.recon.HandleNotification(context.Background(), payload, signed(payload))
}

var coffee = domain.Variety{ID: 7, ProductID: 1, ProductName: "Colombia", Name: "250g", Price: 500, Stock: 3}
