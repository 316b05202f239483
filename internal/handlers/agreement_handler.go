package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"handshake-backend/internal/models"
	"handshake-backend/pkg/utils"
)

// AgreementManager covers the agreement lifecycle around settlement
type AgreementManager interface {
	Create(ctx context.Context, callerID uuid.UUID, req *models.CreateAgreementRequest) (*models.Agreement, error)
	Get(ctx context.Context, callerID, id uuid.UUID) (*models.Agreement, error)
	ListPayments(ctx context.Context, callerID, id uuid.UUID) ([]*models.Payment, error)
	SetPenaltyTerms(ctx context.Context, callerID, id uuid.UUID, req *models.SetPenaltyTermsRequest) (*models.Agreement, error)
	AcceptPenaltyTerms(ctx context.Context, callerID, id uuid.UUID) (*models.Agreement, error)
	Approve(ctx context.Context, callerID, id uuid.UUID) (*models.Agreement, error)
	Reject(ctx context.Context, callerID, id uuid.UUID) (*models.Agreement, error)
}

type AgreementHandler struct {
	agreements AgreementManager
	log        *logrus.Entry
}

func NewAgreementHandler(agreements AgreementManager, logger *logrus.Logger) *AgreementHandler {
	return &AgreementHandler{agreements: agreements, log: logger.WithField("component", "agreement_handler")}
}

// CreateAgreement opens a handshake with the caller as requester
func (h *AgreementHandler) CreateAgreement(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerID(r)
	if !ok {
		utils.Error(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req models.CreateAgreementRequest
	if err := decodeJSON(w, r, &req); err != nil {
		utils.Error(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	agreement, err := h.agreements.Create(r.Context(), caller, &req)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	utils.JSON(w, http.StatusCreated, agreement)
}

func (h *AgreementHandler) GetAgreement(w http.ResponseWriter, r *http.Request) {
	h.withAgreement(w, r, h.agreements.Get)
}

func (h *AgreementHandler) ListPayments(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerID(r)
	if !ok {
		utils.Error(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		utils.Error(w, http.StatusBadRequest, "Invalid agreement id")
		return
	}

	payments, err := h.agreements.ListPayments(r.Context(), caller, id)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	if payments == nil {
		payments = []*models.Payment{}
	}
	utils.JSON(w, http.StatusOK, payments)
}

// SetPenaltyTerms lets the supporter attach late terms before approval
func (h *AgreementHandler) SetPenaltyTerms(w http.ResponseWriter, r *http.Request) {
	var req models.SetPenaltyTermsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		utils.Error(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := validate.Struct(&req); err != nil {
		utils.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	h.withAgreement(w, r, func(ctx context.Context, caller, id uuid.UUID) (*models.Agreement, error) {
		return h.agreements.SetPenaltyTerms(ctx, caller, id, &req)
	})
}

func (h *AgreementHandler) AcceptPenaltyTerms(w http.ResponseWriter, r *http.Request) {
	h.withAgreement(w, r, h.agreements.AcceptPenaltyTerms)
}

func (h *AgreementHandler) Approve(w http.ResponseWriter, r *http.Request) {
	h.withAgreement(w, r, h.agreements.Approve)
}

func (h *AgreementHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.withAgreement(w, r, h.agreements.Reject)
}

// withAgreement resolves caller and path id, runs op and writes the agreement back
func (h *AgreementHandler) withAgreement(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, caller, id uuid.UUID) (*models.Agreement, error)) {
	caller, ok := callerID(r)
	if !ok {
		utils.Error(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		utils.Error(w, http.StatusBadRequest, "Invalid agreement id")
		return
	}

	agreement, err := op(r.Context(), caller, id)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	utils.JSON(w, http.StatusOK, agreement)
}
