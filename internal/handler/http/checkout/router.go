package checkout_http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"checkout/internal/app/checkout"
)

// RegisterRoutes mounts the storefront payment API. The limiter guards the
// endpoints that create gateway payments.
func RegisterRoutes(r chi.Router, s *checkout.Service, limiter func(http.Handler) http.Handler, l *zap.Logger) {
	handler := NewCheckoutHandler(s, l.With(zap.String("component", "CheckoutHTTPHandler")))

	r.Group(func(r chi.Router) {
		r.Use(limiter)
		r.Post("/api/pix-payment", handler.CreatePixPaymentHandler)
		r.Post("/api/card-payment", handler.CreateCardPaymentHandler)
	})

	r.Get("/api/payment-status", handler.PaymentStatusHandler)
	r.Post("/api/payment-status", handler.PaymentStatusHandler)
	r.Get("/api/payments", handler.ListPaymentsHandler)
	r.Get("/api/payments/recent", handler.RecentPaymentsHandler)
}
