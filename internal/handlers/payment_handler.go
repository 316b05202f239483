package handlers

import (
	"context"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"handshake-backend/internal/models"
	"handshake-backend/internal/services"
	"handshake-backend/pkg/utils"
)

var validate = validator.New()

// PaymentRequester builds signed gateway requests
type PaymentRequester interface {
	Create(ctx context.Context, in services.PaymentRequestInput) (*services.PaymentRequest, error)
}

// ReceiptRenderer renders receipts for completed payments
type ReceiptRenderer interface {
	Render(ctx context.Context, callerID, paymentID uuid.UUID) ([]byte, error)
}

type PaymentHandler struct {
	requests PaymentRequester
	receipts ReceiptRenderer
	log      *logrus.Entry
}

func NewPaymentHandler(requests PaymentRequester, receipts ReceiptRenderer, logger *logrus.Logger) *PaymentHandler {
	return &PaymentHandler{
		requests: requests,
		receipts: receipts,
		log:      logger.WithField("component", "payment_handler"),
	}
}

// CreatePayment starts a gateway payment on an agreement.
// ?mode=redirect answers 303 to the gateway, ?mode=form an auto-submitting form, default JSON.
// POST /api/agreements/{id}/payments
func (h *PaymentHandler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerID(r)
	if !ok {
		utils.Error(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	agreementID, ok := pathID(r, "id")
	if !ok {
		utils.Error(w, http.StatusBadRequest, "Invalid agreement id")
		return
	}

	var req models.CreatePaymentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		utils.Error(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := validate.Struct(&req); err != nil {
		utils.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.requests.Create(r.Context(), services.PaymentRequestInput{
		CallerID:    caller,
		AgreementID: agreementID,
		Amount:      req.Amount,
		Method:      req.Method,
	})
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	switch r.URL.Query().Get("mode") {
	case "redirect":
		http.Redirect(w, r, result.Checkout.RedirectURL(), http.StatusSeeOther)
	case "form":
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := result.Checkout.WriteForm(w); err != nil {
			h.log.WithError(err).Error("Failed to render checkout form")
		}
	default:
		utils.JSON(w, http.StatusCreated, result)
	}
}

// GetReceipt downloads the PDF receipt of a completed payment
// GET /api/payments/{id}/receipt
func (h *PaymentHandler) GetReceipt(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerID(r)
	if !ok {
		utils.Error(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	paymentID, ok := pathID(r, "id")
	if !ok {
		utils.Error(w, http.StatusBadRequest, "Invalid payment id")
		return
	}

	pdf, err := h.receipts.Render(r.Context(), caller, paymentID)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="receipt-`+paymentID.String()+`.pdf"`)
	w.WriteHeader(http.StatusOK)
	w.Write(pdf)
}
