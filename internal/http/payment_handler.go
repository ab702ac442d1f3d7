package http

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/fjod/coffee-store/internal/gateway"
	"github.com/fjod/coffee-store/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

// maxWebhookBody caps the notification payload read into memory.
const maxWebhookBody = 64 << 10

const signatureHeader = "Stripe-Signature"

type CheckoutService interface {
	CreateCheckout(ctx context.Context, req service.CheckoutRequest) (*service.CheckoutResult, error)
	GetSession(ctx context.Context, userID int64, sessionID string) (*gateway.Session, error)
}

type NotificationHandler interface {
	HandleNotification(ctx context.Context, payload []byte, signature string) (*service.Result, error)
}

type PaymentHandler struct {
	checkout      CheckoutService
	notifications NotificationHandler
	timeout       time.Duration
}

func NewPaymentHandler(checkout CheckoutService, notifications NotificationHandler, timeout time.Duration) *PaymentHandler {
	return &PaymentHandler{
		checkout:      checkout,
		notifications: notifications,
		timeout:       timeout,
	}
}

type CreateCheckoutRequest struct {
	Currency  string `json:"currency"`
	AddressID *int64 `json:"addressId,omitempty"`
}

type CreateCheckoutResponse struct {
	SessionID    string `json:"sessionId"`
	ClientSecret string `json:"clientSecret,omitempty"`
	URL          string `json:"url,omitempty"`
	OrderID      int64  `json:"orderId"`
	InvoiceID    int64  `json:"invoiceId"`
	Total        int64  `json:"total"`
	Currency     string `json:"currency"`
}

// CreateCheckoutSession handles POST /api/payments/create-checkout-session
func (h *PaymentHandler) CreateCheckoutSession(w http.ResponseWriter, r *http.Request) {
	userID := getUserIDFromContext(r.Context())
	if userID == 0 {
		respondError(w, r, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	var req CreateCheckoutRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Currency) == "" {
		respondError(w, r, http.StatusBadRequest, "invalid_request", "currency is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	res, err := h.checkout.CreateCheckout(ctx, service.CheckoutRequest{
		UserID:    userID,
		Currency:  req.Currency,
		AddressID: req.AddressID,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	respondJSON(w, r, http.StatusCreated, CreateCheckoutResponse{
		SessionID:    res.Session.ID,
		ClientSecret: res.Session.ClientSecret,
		URL:          res.Session.URL,
		OrderID:      res.Order.ID,
		InvoiceID:    res.Invoice.ID,
		Total:        res.Order.Total,
		Currency:     res.Order.Currency,
	})
}

// GetSession handles GET /api/payments/{session_id}
func (h *PaymentHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	userID := getUserIDFromContext(r.Context())
	if userID == 0 {
		respondError(w, r, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	sessionID := chi.URLParam(r, "session_id")
	if sessionID == "" {
		respondError(w, r, http.StatusBadRequest, "invalid_request", "session id is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	sess, err := h.checkout.GetSession(ctx, userID, sessionID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	respondJSON(w, r, http.StatusOK, sess)
}

// Webhook handles POST /api/payments/webhook. The body must reach the
// verifier byte for byte, so it is read raw rather than decoded.
func (h *PaymentHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, r, http.StatusRequestEntityTooLarge, "payload_too_large", "payload too large")
			return
		}
		respondError(w, r, http.StatusBadRequest, "invalid_request", "unreadable body")
		return
	}

	res, err := h.notifications.HandleNotification(r.Context(), payload, r.Header.Get(signatureHeader))
	switch {
	case err == nil:
		respondJSON(w, r, http.StatusOK, res)
	case errors.Is(err, service.ErrSignatureInvalid):
		respondError(w, r, http.StatusBadRequest, "invalid_signature", "invalid signature")
	case errors.Is(err, service.ErrInvalidInput):
		respondError(w, r, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, service.ErrUnknownTransaction):
		respondError(w, r, http.StatusNotFound, "unknown_transaction", "unknown transaction")
	case errors.Is(err, service.ErrInvalidTransition):
		// A late event for a settled checkout must not be retried by the gateway.
		slog.WarnContext(r.Context(), "webhook acknowledged without effect", "error", err)
		respondJSON(w, r, http.StatusOK, map[string]string{"outcome": "rejected"})
	default:
		slog.ErrorContext(r.Context(), "webhook processing failed", "error", err)
		respondError(w, r, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
