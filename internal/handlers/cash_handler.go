package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"handshake-backend/internal/models"
	"handshake-backend/pkg/utils"
)

// CashSettler is the cash handoff workflow
type CashSettler interface {
	Declare(ctx context.Context, callerID, agreementID uuid.UUID, amount *decimal.Decimal, note string) (*models.Payment, error)
	Confirm(ctx context.Context, callerID, paymentID uuid.UUID) (*models.SettlementResult, error)
	Dispute(ctx context.Context, callerID, paymentID uuid.UUID, reason string) (*models.Payment, error)
}

type CashHandler struct {
	cash CashSettler
	log  *logrus.Entry
}

func NewCashHandler(cash CashSettler, logger *logrus.Logger) *CashHandler {
	return &CashHandler{cash: cash, log: logger.WithField("component", "cash_handler")}
}

// DeclareCash records cash handed to the supporter
// POST /api/agreements/{id}/cash
func (h *CashHandler) DeclareCash(w http.ResponseWriter, r *http.Request) {
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

	var req models.DeclareCashRequest
	if err := decodeJSON(w, r, &req); err != nil {
		utils.Error(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := validate.Struct(&req); err != nil {
		utils.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	payment, err := h.cash.Declare(r.Context(), caller, agreementID, req.Amount, req.Note)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	utils.JSON(w, http.StatusCreated, payment)
}

// ConfirmCash is the supporter confirming receipt
// POST /api/payments/{id}/confirm-cash
func (h *CashHandler) ConfirmCash(w http.ResponseWriter, r *http.Request) {
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

	result, err := h.cash.Confirm(r.Context(), caller, paymentID)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	utils.JSON(w, http.StatusOK, map[string]interface{}{
		"payment":   result.Payment,
		"agreement": result.Agreement,
	})
}

// DisputeCash is the supporter saying the cash never arrived
// POST /api/payments/{id}/dispute-cash
func (h *CashHandler) DisputeCash(w http.ResponseWriter, r *http.Request) {
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

	var req models.DisputeCashRequest
	if err := decodeJSON(w, r, &req); err != nil {
		utils.Error(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := validate.Struct(&req); err != nil {
		utils.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	payment, err := h.cash.Dispute(r.Context(), caller, paymentID, req.Reason)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	utils.JSON(w, http.StatusOK, payment)
}
