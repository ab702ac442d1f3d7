package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Roles allowed on /api/admin.
const (
	RoleAdmin = "admin"
	RoleSales = "sales"
)

type HealthChecker interface {
	Healthy() bool
}

type Handlers struct {
	Cart     *CartHandler
	Payments *PaymentHandler
	Orders   *OrdersHandler
	Health   HealthChecker
}

func NewRouter(h Handlers, requestTimeout time.Duration) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if h.Health != nil && !h.Health.Healthy() {
			respondJSON(w, r, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
		respondJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Route("/payments", func(r chi.Router) {
			// Signed by the gateway, not by the identity collaborator.
			r.Post("/webhook", h.Payments.Webhook)

			r.Group(func(r chi.Router) {
				r.Use(IdentityMiddleware)
				r.Post("/create-checkout-session", h.Payments.CreateCheckoutSession)
				r.Get("/{session_id}", h.Payments.GetSession)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.Compress(5))
			r.Use(IdentityMiddleware)

			r.Route("/cart", func(r chi.Router) {
				r.Post("/init", h.Cart.InitCart)
				r.Get("/", h.Cart.GetCart)
				r.Post("/", h.Cart.AddItem)
				r.Delete("/", h.Cart.RemoveItem)
			})

			r.Route("/orders", func(r chi.Router) {
				r.Get("/", h.Orders.ListMyOrders)
				r.Get("/{id}", h.Orders.GetMyOrder)
			})

			r.Route("/admin", func(r chi.Router) {
				r.Use(RequireRole(RoleAdmin, RoleSales))

				r.Route("/orders", func(r chi.Router) {
					r.Get("/", h.Orders.ListOrders)
					r.Get("/count", h.Orders.CountOrders)
					r.Get("/{id}", h.Orders.GetOrder)
					r.Post("/{id}/cancel", h.Orders.CancelOrder)
				})
				r.Route("/invoices", func(r chi.Router) {
					r.Get("/", h.Orders.ListInvoices)
					r.Get("/count", h.Orders.CountInvoices)
					r.Get("/recent", h.Orders.RecentInvoices)
					r.Get("/{id}", h.Orders.GetInvoice)
				})
			})
		})
	})

	return r
}
