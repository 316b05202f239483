package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"handshake-backend/internal/models"
	"handshake-backend/internal/receipt"
)

// ReceiptService renders receipts for completed payments
type ReceiptService struct {
	store LedgerStore
	trust TrustStore
}

func NewReceiptService(store LedgerStore, trust TrustStore) *ReceiptService {
	return &ReceiptService{store: store, trust: trust}
}

// Render returns the PDF receipt; only the two parties may fetch it
func (s *ReceiptService) Render(ctx context.Context, callerID, paymentID uuid.UUID) ([]byte, error) {
	if callerID == uuid.Nil {
		return nil, ErrUnauthenticated
	}

	payment, err := s.store.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, storeErr(err, "payment")
	}
	agreement, err := s.store.GetAgreement(ctx, payment.AgreementID)
	if err != nil {
		return nil, storeErr(err, "agreement")
	}
	if !agreement.IsParty(callerID) {
		return nil, fmt.Errorf("%w: not a party to this agreement", ErrForbidden)
	}
	if payment.Status != models.PaymentStatusCompleted {
		return nil, fmt.Errorf("%w: payment is %s", ErrInvalidState, payment.Status)
	}

	pdf, err := receipt.Render(receipt.Data{
		Payment:   payment,
		Agreement: agreement,
		PayerName: s.displayName(ctx, payment.PayerID),
		PayeeName: s.displayName(ctx, agreement.CounterpartyOf(payment.PayerID)),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	return pdf, nil
}

func (s *ReceiptService) displayName(ctx context.Context, userID uuid.UUID) string {
	u, err := s.trust.Get(ctx, userID)
	if err != nil || u.DisplayName == "" {
		return userID.String()[:8]
	}
	return u.DisplayName
}
