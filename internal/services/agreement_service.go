package services

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"handshake-backend/internal/models"
	"handshake-backend/internal/timeutil"
)

var validate = validator.New()

// maxPenaltyPercent caps percentage penalties
var maxPenaltyPercent = decimal.NewFromInt(100)

// openPaymentWindow is how long a pending gateway payment may still complete
const openPaymentWindow = 24 * time.Hour

// AgreementService covers the handshake lifecycle around the settlement engine
type AgreementService struct {
	store LedgerStore
	trust TrustStore
	now   func() time.Time
	log   *logrus.Entry
}

func NewAgreementService(store LedgerStore, trust TrustStore, logger *logrus.Logger) *AgreementService {
	return &AgreementService{
		store: store,
		trust: trust,
		now:   timeutil.Now,
		log:   logger.WithField("component", "agreement"),
	}
}

// Create opens a pending handshake requested by the caller
func (s *AgreementService) Create(ctx context.Context, callerID uuid.UUID, req *models.CreateAgreementRequest) (*models.Agreement, error) {
	if callerID == uuid.Nil {
		return nil, ErrUnauthenticated
	}
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	supporterID, err := uuid.Parse(req.SupporterID)
	if err != nil {
		return nil, fmt.Errorf("%w: supporter_id", ErrInvalidInput)
	}
	if supporterID == callerID {
		return nil, fmt.Errorf("%w: cannot request from yourself", ErrInvalidInput)
	}
	if req.Amount.Round(2).LessThan(minorUnit) {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInvalidAmount)
	}
	if req.TransactionFee.IsNegative() {
		return nil, fmt.Errorf("%w: transaction fee must not be negative", ErrInvalidAmount)
	}

	paybackDay, err := timeutil.ParseDate(req.PaybackDay)
	if err != nil {
		return nil, fmt.Errorf("%w: payback_day", ErrInvalidInput)
	}
	if paybackDay.Before(timeutil.StartOfDay(s.now())) {
		return nil, fmt.Errorf("%w: payback day is in the past", ErrInvalidInput)
	}

	for _, id := range []uuid.UUID{callerID, supporterID} {
		if err := s.trust.Ensure(ctx, id); err != nil {
			return nil, storeErr(err, "ensure user")
		}
	}

	a := &models.Agreement{
		ID:             uuid.New(),
		RequesterID:    callerID,
		SupporterID:    supporterID,
		Amount:         req.Amount.Round(2),
		TransactionFee: req.TransactionFee.Round(2),
		PaybackDay:     paybackDay,
		Status:         models.AgreementStatusPending,
	}
	if err := s.store.CreateAgreement(ctx, a); err != nil {
		return nil, storeErr(err, "create agreement")
	}

	s.log.WithFields(logrus.Fields{"agreement_id": a.ID, "amount": a.Amount.StringFixed(2)}).Info("Agreement created")
	return a, nil
}

// Get returns an agreement visible to the caller
func (s *AgreementService) Get(ctx context.Context, callerID, id uuid.UUID) (*models.Agreement, error) {
	if callerID == uuid.Nil {
		return nil, ErrUnauthenticated
	}
	a, err := s.store.GetAgreement(ctx, id)
	if err != nil {
		return nil, storeErr(err, "agreement")
	}
	if !a.IsParty(callerID) {
		return nil, fmt.Errorf("%w: not a party to this agreement", ErrForbidden)
	}
	return a, nil
}

// ListPayments returns all payment attempts on an agreement
func (s *AgreementService) ListPayments(ctx context.Context, callerID, id uuid.UUID) ([]*models.Payment, error) {
	a, err := s.Get(ctx, callerID, id)
	if err != nil {
		return nil, err
	}
	payments, err := s.store.ListPaymentsByAgreement(ctx, a.ID)
	if err != nil {
		return nil, storeErr(err, "payments")
	}
	return payments, nil
}

// update loads, checks and conditionally writes; a lost race is a storage conflict
func (s *AgreementService) update(ctx context.Context, callerID, id uuid.UUID, check func(a *models.Agreement) (models.AgreementPatch, error)) (*models.Agreement, error) {
	a, err := s.Get(ctx, callerID, id)
	if err != nil {
		return nil, err
	}
	patch, err := check(a)
	if err != nil {
		return nil, err
	}

	ok, err := s.store.UpdateAgreementIfVersion(ctx, a.ID, a.Version, patch)
	if err != nil {
		return nil, storeErr(err, "update agreement")
	}
	if !ok {
		return nil, fmt.Errorf("%w: agreement changed, reload and retry", ErrStorageConflict)
	}
	return s.store.GetAgreement(ctx, a.ID)
}

// SetPenaltyTerms lets the supporter propose late-payment terms while the agreement is pending.
// Any earlier acceptance is withdrawn.
func (s *AgreementService) SetPenaltyTerms(ctx context.Context, callerID, id uuid.UUID, req *models.SetPenaltyTermsRequest) (*models.Agreement, error) {
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if req.Enabled {
		if req.Type == "" {
			return nil, fmt.Errorf("%w: penalty type is required", ErrInvalidInput)
		}
		if !req.Amount.IsPositive() {
			return nil, fmt.Errorf("%w: penalty amount must be positive", ErrInvalidAmount)
		}
		if req.Type == models.PenaltyTypePercentage && req.Amount.GreaterThan(maxPenaltyPercent) {
			return nil, fmt.Errorf("%w: penalty percentage above 100", ErrInvalidAmount)
		}
	}

	return s.update(ctx, callerID, id, func(a *models.Agreement) (models.AgreementPatch, error) {
		if callerID != a.SupporterID {
			return models.AgreementPatch{}, fmt.Errorf("%w: only the supporter sets penalty terms", ErrForbidden)
		}
		if a.Status != models.AgreementStatusPending {
			return models.AgreementPatch{}, fmt.Errorf("%w: terms can only change while pending", ErrInvalidState)
		}

		terms := models.PenaltyTerms{Enabled: req.Enabled}
		if req.Enabled {
			terms.Type = req.Type
			terms.Amount = req.Amount.Round(2)
			terms.GracePeriodDays = req.GracePeriodDays
		}
		return models.AgreementPatch{Penalty: &terms}, nil
	})
}

// AcceptPenaltyTerms records the requester's acceptance of the proposed terms
func (s *AgreementService) AcceptPenaltyTerms(ctx context.Context, callerID, id uuid.UUID) (*models.Agreement, error) {
	return s.update(ctx, callerID, id, func(a *models.Agreement) (models.AgreementPatch, error) {
		if callerID != a.RequesterID {
			return models.AgreementPatch{}, fmt.Errorf("%w: only the requester accepts terms", ErrForbidden)
		}
		if a.Status != models.AgreementStatusPending {
			return models.AgreementPatch{}, fmt.Errorf("%w: agreement is %s", ErrInvalidState, a.Status)
		}
		if !a.Penalty.Enabled {
			return models.AgreementPatch{}, fmt.Errorf("%w: no penalty terms to accept", ErrInvalidState)
		}
		terms := a.Penalty
		terms.Accepted = true
		return models.AgreementPatch{Penalty: &terms}, nil
	})
}

// Approve is the supporter agreeing to fund; payment may follow later
func (s *AgreementService) Approve(ctx context.Context, callerID, id uuid.UUID) (*models.Agreement, error) {
	return s.update(ctx, callerID, id, func(a *models.Agreement) (models.AgreementPatch, error) {
		if callerID != a.SupporterID {
			return models.AgreementPatch{}, fmt.Errorf("%w: only the supporter approves", ErrForbidden)
		}
		if a.Status != models.AgreementStatusPending {
			return models.AgreementPatch{}, fmt.Errorf("%w: agreement is %s", ErrInvalidState, a.Status)
		}
		status := models.AgreementStatusApproved
		return models.AgreementPatch{Status: &status}, nil
	})
}

// Reject closes an agreement no money has moved on and none is about to
func (s *AgreementService) Reject(ctx context.Context, callerID, id uuid.UUID) (*models.Agreement, error) {
	return s.update(ctx, callerID, id, func(a *models.Agreement) (models.AgreementPatch, error) {
		if callerID != a.SupporterID {
			return models.AgreementPatch{}, fmt.Errorf("%w: only the supporter rejects", ErrForbidden)
		}
		if a.Status != models.AgreementStatusPending && a.Status != models.AgreementStatusApproved {
			return models.AgreementPatch{}, fmt.Errorf("%w: agreement is %s", ErrInvalidState, a.Status)
		}
		if !a.AmountPaid.IsZero() {
			return models.AgreementPatch{}, fmt.Errorf("%w: money has already moved", ErrInvalidState)
		}
		if err := s.checkNoOpenPayments(ctx, a.ID); err != nil {
			return models.AgreementPatch{}, err
		}
		status := models.AgreementStatusRejected
		return models.AgreementPatch{Status: &status}, nil
	})
}

// checkNoOpenPayments fails while a payment on the agreement could still complete
func (s *AgreementService) checkNoOpenPayments(ctx context.Context, agreementID uuid.UUID) error {
	payments, err := s.store.ListPaymentsByAgreement(ctx, agreementID)
	if err != nil {
		return storeErr(err, "list payments")
	}
	cutoff := s.now().Add(-openPaymentWindow)
	for _, p := range payments {
		switch {
		case p.Status == models.PaymentStatusAwaitingConfirmation:
		case p.Status == models.PaymentStatusPending && p.CreatedAt.After(cutoff):
		default:
			continue
		}
		return fmt.Errorf("%w: payment %s is still open", ErrInvalidState, p.ID)
	}
	return nil
}
