package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
)

const sessionPlaceholder = "{CHECKOUT_SESSION_ID}"

type StripeConfig struct {
	SecretKey string
	// FrontURL is the storefront base; the success page is FrontURL + "/pagos/exitoso".
	FrontURL string
	Timeout  time.Duration
	// APIURL overrides the Stripe API endpoint. Empty means the public API.
	APIURL string
	// PaymentMethodTypes pins the methods a session offers; the first one is
	// recorded as the invoice bank. Defaults to card.
	PaymentMethodTypes []string
}

type StripeGateway struct {
	sc             *client.API
	returnURL      string
	paymentMethods []string
}

func NewStripeGateway(cfg StripeConfig) *StripeGateway {
	httpClient := &http.Client{Timeout: cfg.Timeout}
	backendCfg := &stripe.BackendConfig{
		HTTPClient:        httpClient,
		MaxNetworkRetries: stripe.Int64(1),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelWarn},
	}
	if cfg.APIURL != "" {
		backendCfg.URL = stripe.String(cfg.APIURL)
		backendCfg.MaxNetworkRetries = stripe.Int64(0)
	}

	sc := &client.API{}
	sc.Init(cfg.SecretKey, &stripe.Backends{
		API:     stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg),
		Connect: stripe.GetBackendWithConfig(stripe.ConnectBackend, backendCfg),
		Uploads: stripe.GetBackendWithConfig(stripe.UploadsBackend, backendCfg),
	})

	methods := cfg.PaymentMethodTypes
	if len(methods) == 0 {
		methods = []string{"card"}
	}

	return &StripeGateway{
		sc:             sc,
		returnURL:      cfg.FrontURL + "/pagos/exitoso?session_id=" + sessionPlaceholder,
		paymentMethods: methods,
	}
}

func (g *StripeGateway) CreateSession(ctx context.Context, req SessionRequest) (*Session, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		UIMode:             stripe.String(string(stripe.CheckoutSessionUIModeEmbedded)),
		ReturnURL:          stripe.String(g.returnURL),
		PaymentMethodTypes: stripe.StringSlice(g.paymentMethods),
	}
	if req.ClientReference != "" {
		params.ClientReferenceID = stripe.String(req.ClientReference)
	}
	for _, line := range req.Lines {
		params.LineItems = append(params.LineItems, &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency: stripe.String(req.Currency),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(line.Name),
				},
				UnitAmount: stripe.Int64(line.UnitAmount),
			},
			Quantity: stripe.Int64(int64(line.Quantity)),
		})
	}
	params.Context = ctx

	s, err := g.sc.CheckoutSessions.New(params)
	if err != nil {
		return nil, mapStripeError("create session", err)
	}
	return toSession(s), nil
}

func (g *StripeGateway) GetSession(ctx context.Context, id string) (*Session, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx

	s, err := g.sc.CheckoutSessions.Get(id, params)
	if err != nil {
		return nil, mapStripeError("get session", err)
	}
	return toSession(s), nil
}

func (g *StripeGateway) ExpireSession(ctx context.Context, id string) error {
	params := &stripe.CheckoutSessionExpireParams{}
	params.Context = ctx

	if _, err := g.sc.CheckoutSessions.Expire(id, params); err != nil {
		return mapStripeError("expire session", err)
	}
	return nil
}

func toSession(s *stripe.CheckoutSession) *Session {
	return &Session{
		ID:                 s.ID,
		URL:                s.URL,
		ClientSecret:       s.ClientSecret,
		AmountTotal:        s.AmountTotal,
		Currency:           string(s.Currency),
		Created:            time.Unix(s.Created, 0).UTC(),
		PaymentMethodTypes: s.PaymentMethodTypes,
		Status:             string(s.Status),
		PaymentStatus:      string(s.PaymentStatus),
	}
}

func mapStripeError(op string, err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) && stripeErr.HTTPStatusCode == http.StatusNotFound {
		return fmt.Errorf("stripe %s: %w", op, ErrSessionNotFound)
	}
	return fmt.Errorf("stripe %s: %w", op, err)
}
