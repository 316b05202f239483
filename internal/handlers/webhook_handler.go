package handlers

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"

	"handshake-backend/internal/metrics"
	"handshake-backend/internal/services"
)

// maxNotificationBytes bounds a gateway notification body
const maxNotificationBytes = 16 << 10

// WebhookProcessor applies one gateway notification
type WebhookProcessor interface {
	Process(ctx context.Context, n services.Notification) (string, error)
}

type WebhookHandler struct {
	processor  WebhookProcessor
	trustProxy bool // Take the client address from X-Forwarded-For
	log        *logrus.Entry
}

func NewWebhookHandler(processor WebhookProcessor, trustProxy bool, logger *logrus.Logger) *WebhookHandler {
	return &WebhookHandler{
		processor:  processor,
		trustProxy: trustProxy,
		log:        logger.WithField("component", "webhook_handler"),
	}
}

// HandleNotification receives the gateway's instant transaction notification.
// 200 tells the gateway to stop; 4xx are permanent rejections; 5xx ask it to retry.
// POST /webhook
func (h *WebhookHandler) HandleNotification(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxNotificationBytes))
	if err != nil {
		metrics.WebhookOutcomes.WithLabelValues("rejected_body").Inc()
		http.Error(w, "Failed to read body", http.StatusBadRequest)
		return
	}

	form, err := url.ParseQuery(string(body))
	if err != nil {
		metrics.WebhookOutcomes.WithLabelValues("rejected_body").Inc()
		http.Error(w, "Malformed form body", http.StatusBadRequest)
		return
	}

	outcome, err := h.processor.Process(r.Context(), services.Notification{
		Form:       form,
		RawBody:    body,
		RemoteAddr: h.clientIP(r),
	})
	if err != nil {
		outcome = services.OutcomeFor(err)
		metrics.WebhookOutcomes.WithLabelValues(outcome).Inc()

		status := http.StatusBadRequest
		switch {
		case services.IsTransient(err):
			status = http.StatusInternalServerError
		case errors.Is(err, services.ErrNotFound):
			status = http.StatusNotFound
		}
		h.log.WithError(err).WithFields(logrus.Fields{
			"status":       status,
			"m_payment_id": form.Get("m_payment_id"),
		}).Warn("Notification rejected")
		http.Error(w, http.StatusText(status), status)
		return
	}

	metrics.WebhookOutcomes.WithLabelValues(outcome).Inc()
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (h *WebhookHandler) clientIP(r *http.Request) string {
	if h.trustProxy {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")
			return strings.TrimSpace(first)
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
