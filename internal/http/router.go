package http

import (
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"handshake-backend/internal/handlers"
	"handshake-backend/internal/middleware"
)

// Handlers groups everything the router dispatches to
type Handlers struct {
	Webhook      *handlers.WebhookHandler
	Payment      *handlers.PaymentHandler
	Cash         *handlers.CashHandler
	Agreement    *handlers.AgreementHandler
	Notification *handlers.NotificationHandler
	Health       *handlers.HealthHandler
}

func NewRouter(hs Handlers, authMiddleware *middleware.AuthMiddleware) *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.MetricsMiddleware)

	// Public: health, metrics and the gateway callback (authenticated by signature, not JWT)
	r.HandleFunc("/health", hs.Health.BasicHealth).Methods("GET")
	r.HandleFunc("/health/ready", hs.Health.ReadinessHealth).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")
	r.HandleFunc("/webhook", hs.Webhook.HandleNotification).Methods("POST")

	api := r.PathPrefix("/api").Subrouter()
	api.Use(authMiddleware.Authenticate)

	// Agreements
	api.HandleFunc("/agreements", hs.Agreement.CreateAgreement).Methods("POST")
	api.HandleFunc("/agreements/{id}", hs.Agreement.GetAgreement).Methods("GET")
	api.HandleFunc("/agreements/{id}/penalty-terms", hs.Agreement.SetPenaltyTerms).Methods("PUT")
	api.HandleFunc("/agreements/{id}/penalty-terms/accept", hs.Agreement.AcceptPenaltyTerms).Methods("POST")
	api.HandleFunc("/agreements/{id}/approve", hs.Agreement.Approve).Methods("POST")
	api.HandleFunc("/agreements/{id}/reject", hs.Agreement.Reject).Methods("POST")
	api.HandleFunc("/agreements/{id}/payments", hs.Agreement.ListPayments).Methods("GET")

	// Payments
	api.HandleFunc("/agreements/{id}/payments", hs.Payment.CreatePayment).Methods("POST")
	api.HandleFunc("/payments/{id}/receipt", hs.Payment.GetReceipt).Methods("GET")

	// Cash
	api.HandleFunc("/agreements/{id}/cash", hs.Cash.DeclareCash).Methods("POST")
	api.HandleFunc("/payments/{id}/confirm-cash", hs.Cash.ConfirmCash).Methods("POST")
	api.HandleFunc("/payments/{id}/dispute-cash", hs.Cash.DisputeCash).Methods("POST")

	// Notifications
	api.HandleFunc("/notifications", hs.Notification.ListNotifications).Methods("GET")
	api.HandleFunc("/notifications/ws", hs.Notification.StreamNotifications).Methods("GET")

	return r
}
