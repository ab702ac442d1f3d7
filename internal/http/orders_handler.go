package http

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/fjod/coffee-store/internal/domain"
	"github.com/fjod/coffee-store/internal/service"
)

type OrderService interface {
	ListOrders(ctx context.Context, filter domain.OrderFilter, page int) ([]*domain.Order, error)
	CountOrders(ctx context.Context, filter domain.OrderFilter) (int, error)
	GetOrder(ctx context.Context, id int64) (*domain.Order, error)
	GetUserOrder(ctx context.Context, userID, id int64) (*domain.Order, error)
	CancelOrder(ctx context.Context, orderID int64) (*domain.Order, error)
	ListInvoices(ctx context.Context, filter domain.InvoiceFilter, page int) ([]*domain.Invoice, error)
	CountInvoices(ctx context.Context, filter domain.InvoiceFilter) (int, error)
	GetInvoice(ctx context.Context, id int64) (*domain.Invoice, error)
	RecentPaidInvoices(ctx context.Context, limit int) ([]*domain.Invoice, error)
}

type OrdersHandler struct {
	orders  OrderService
	timeout time.Duration
}

func NewOrdersHandler(orders OrderService, timeout time.Duration) *OrdersHandler {
	return &OrdersHandler{
		orders:  orders,
		timeout: timeout,
	}
}

type CountResponse struct {
	Count int `json:"count"`
}

// ListMyOrders handles GET /api/orders
func (h *OrdersHandler) ListMyOrders(w http.ResponseWriter, r *http.Request) {
	userID := getUserIDFromContext(r.Context())
	if userID == 0 {
		respondError(w, r, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	page, err := pageParam(r)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	status, err := statusParam(r)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	h.listOrders(w, r, domain.OrderFilter{Status: status, UserID: &userID}, page)
}

// GetMyOrder handles GET /api/orders/{id}
func (h *OrdersHandler) GetMyOrder(w http.ResponseWriter, r *http.Request) {
	userID := getUserIDFromContext(r.Context())
	if userID == 0 {
		respondError(w, r, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	id, err := idParam(r, "id")
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	order, err := h.orders.GetUserOrder(ctx, userID, id)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	respondJSON(w, r, http.StatusOK, order)
}

// ListOrders handles GET /api/admin/orders
func (h *OrdersHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	page, err := pageParam(r)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	filter, err := orderFilter(r)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	h.listOrders(w, r, filter, page)
}

// CountOrders handles GET /api/admin/orders/count
func (h *OrdersHandler) CountOrders(w http.ResponseWriter, r *http.Request) {
	filter, err := orderFilter(r)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	n, err := h.orders.CountOrders(ctx, filter)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	respondJSON(w, r, http.StatusOK, CountResponse{Count: n})
}

// GetOrder handles GET /api/admin/orders/{id}
func (h *OrdersHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	order, err := h.orders.GetOrder(ctx, id)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	respondJSON(w, r, http.StatusOK, order)
}

// CancelOrder handles POST /api/admin/orders/{id}/cancel
func (h *OrdersHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	order, err := h.orders.CancelOrder(ctx, id)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	respondJSON(w, r, http.StatusOK, order)
}

// ListInvoices handles GET /api/admin/invoices
func (h *OrdersHandler) ListInvoices(w http.ResponseWriter, r *http.Request) {
	page, err := pageParam(r)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	filter, err := invoiceFilter(r)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	invoices, err := h.orders.ListInvoices(ctx, filter, page)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	total, err := h.orders.CountInvoices(ctx, filter)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	respondJSON(w, r, http.StatusOK, PageResponse[*domain.Invoice]{
		Items:    nonNil(invoices),
		Page:     page,
		PageSize: domain.PageSize,
		Total:    total,
	})
}

// CountInvoices handles GET /api/admin/invoices/count
func (h *OrdersHandler) CountInvoices(w http.ResponseWriter, r *http.Request) {
	filter, err := invoiceFilter(r)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	n, err := h.orders.CountInvoices(ctx, filter)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	respondJSON(w, r, http.StatusOK, CountResponse{Count: n})
}

// RecentInvoices handles GET /api/admin/invoices/recent?limit=
func (h *OrdersHandler) RecentInvoices(w http.ResponseWriter, r *http.Request) {
	limit := service.DefaultRecentInvoices
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondError(w, r, http.StatusBadRequest, "invalid_request", "limit must be a positive integer")
			return
		}
		limit = n
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	invoices, err := h.orders.RecentPaidInvoices(ctx, limit)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	respondJSON(w, r, http.StatusOK, nonNil(invoices))
}

// GetInvoice handles GET /api/admin/invoices/{id}
func (h *OrdersHandler) GetInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	invoice, err := h.orders.GetInvoice(ctx, id)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	respondJSON(w, r, http.StatusOK, invoice)
}

func (h *OrdersHandler) listOrders(w http.ResponseWriter, r *http.Request, filter domain.OrderFilter, page int) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	orders, err := h.orders.ListOrders(ctx, filter, page)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	total, err := h.orders.CountOrders(ctx, filter)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	respondJSON(w, r, http.StatusOK, PageResponse[*domain.Order]{
		Items:    nonNil(orders),
		Page:     page,
		PageSize: domain.PageSize,
		Total:    total,
	})
}

// nonNil keeps empty listings encoded as [] rather than null.
func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
