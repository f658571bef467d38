package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// BookingAPI is everything the reservation routes need.
type BookingAPI interface {
	HoldProposer
	ReservationApprover
	PaymentCapturer
	ReservationCanceller
	PaymentRefunder
	ReservationGetter
}

type AccountAPI interface {
	ConsentSetter
	PaymentMethodStorer
}

type RouterConfig struct {
	Booking        BookingAPI
	Accounts       AccountAPI
	Audit          AuditLister
	AllowedOrigins []string
	Logger         *slog.Logger
	// HealthCheck is optional; when set, /health reports 503 on error.
	HealthCheck func(context.Context) error
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(cfg.Logger))
	r.Use(middleware.Recoverer)
	r.Use(CORS(cfg.AllowedOrigins))

	r.NotFound(NotFoundHandler().ServeHTTP)
	r.MethodNotAllowed(MethodNotAllowedHandler().ServeHTTP)

	r.Get("/health", HealthHandler(cfg.HealthCheck))

	r.Route("/reservations", func(r chi.Router) {
		r.Post("/hold", HandleProposeHold(cfg.Booking))
		r.Get("/{reservationID}", HandleGetReservation(cfg.Booking))
		r.Post("/{reservationID}/approve", HandleApprove(cfg.Booking))
		r.Post("/{reservationID}/capture", HandleCapture(cfg.Booking))
		r.Post("/{reservationID}/cancel", HandleCancel(cfg.Booking))
		r.Post("/{reservationID}/refund", HandleRefund(cfg.Booking))
	})

	r.Get("/audit", HandleListAudit(cfg.Audit))
	r.Post("/consents", HandleSetConsent(cfg.Accounts))
	r.Post("/payment-methods", HandleStorePaymentMethod(cfg.Accounts))

	return r
}
