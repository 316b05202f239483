package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"handshake-backend/internal/models"
	"handshake-backend/internal/timeutil"
)

// CashReferencePrefix marks transaction references of manually confirmed cash payments
const CashReferencePrefix = "cash:"

// CashSettlementService handles cash handed over outside the gateway. The requester
// declares it; it only reaches the ledger once the supporter confirms receipt.
type CashSettlementService struct {
	store    LedgerStore
	settler  *Settler
	notifier Notifier
	now      func() time.Time
	log      *logrus.Entry
}

func NewCashSettlementService(store LedgerStore, settler *Settler, notifier Notifier, logger *logrus.Logger) *CashSettlementService {
	return &CashSettlementService{
		store:    store,
		settler:  settler,
		notifier: notifier,
		now:      timeutil.Now,
		log:      logger.WithField("component", "cash_settlement"),
	}
}

// Declare records a cash repayment awaiting the supporter's confirmation.
// Fee and net are fixed now; confirmation uses the stored values.
func (s *CashSettlementService) Declare(ctx context.Context, callerID, agreementID uuid.UUID, amount *decimal.Decimal, note string) (*models.Payment, error) {
	if callerID == uuid.Nil {
		return nil, ErrUnauthenticated
	}

	agreement, err := s.store.GetAgreement(ctx, agreementID)
	if err != nil {
		return nil, storeErr(err, "agreement")
	}
	if callerID != agreement.RequesterID {
		return nil, fmt.Errorf("%w: only the requester can declare cash", ErrForbidden)
	}

	charge, _, err := Charge(agreement, callerID, amount)
	if err != nil {
		return nil, err
	}
	fee, net := s.settler.Fee(charge)

	payment := &models.Payment{
		ID:          uuid.New(),
		AgreementID: agreement.ID,
		PayerID:     callerID,
		Method:      models.PaymentMethodCash,
		Status:      models.PaymentStatusAwaitingConfirmation,
		Amount:      charge,
		Fee:         fee,
		NetAmount:   net,
		CreatedAt:   s.now(),
	}
	if err := s.store.CreatePayment(ctx, payment); err != nil {
		return nil, storeErr(err, "create payment")
	}

	s.log.WithFields(logrus.Fields{
		"payment_id":   payment.ID,
		"agreement_id": agreement.ID,
		"amount":       charge.StringFixed(2),
	}).Info("Cash payment declared")

	message := fmt.Sprintf("The requester says they handed you R%s in cash. Please confirm once received.", charge.StringFixed(2))
	if note = strings.TrimSpace(note); note != "" {
		message += " Note: " + note
	}
	s.notifier.Notify(ctx, agreement.SupporterID, models.NotificationCashConfirmationRequired,
		"Cash confirmation required", message,
		map[string]any{"payment_id": payment.ID, "agreement_id": agreement.ID, "amount": charge.StringFixed(2)})

	return payment, nil
}

// loadCash returns a cash payment still awaiting confirmation and checks the caller is its supporter
func (s *CashSettlementService) loadCash(ctx context.Context, callerID, paymentID uuid.UUID) (*models.Payment, *models.Agreement, error) {
	if callerID == uuid.Nil {
		return nil, nil, ErrUnauthenticated
	}

	payment, err := s.store.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, nil, storeErr(err, "payment")
	}
	agreement, err := s.store.GetAgreement(ctx, payment.AgreementID)
	if err != nil {
		return nil, nil, storeErr(err, "agreement")
	}

	if !agreement.IsParty(callerID) {
		return nil, nil, fmt.Errorf("%w: not a party to this agreement", ErrForbidden)
	}
	if callerID != agreement.SupporterID {
		return nil, nil, fmt.Errorf("%w: only the supporter can confirm or dispute cash", ErrForbidden)
	}
	if payment.Method != models.PaymentMethodCash {
		return nil, nil, fmt.Errorf("%w: not a cash payment", ErrInvalidState)
	}
	if payment.Status != models.PaymentStatusAwaitingConfirmation {
		return nil, nil, fmt.Errorf("%w: payment is %s", ErrInvalidState, payment.Status)
	}
	return payment, agreement, nil
}

// Confirm applies a declared cash payment to the ledger
func (s *CashSettlementService) Confirm(ctx context.Context, callerID, paymentID uuid.UUID) (*models.SettlementResult, error) {
	payment, _, err := s.loadCash(ctx, callerID, paymentID)
	if err != nil {
		return nil, err
	}

	return s.settler.Settle(ctx, SettleInput{
		Payment:        payment,
		ExpectedStatus: models.PaymentStatusAwaitingConfirmation,
		Reference:      CashReferencePrefix + payment.ID.String(),
		Gross:          payment.Amount,
		Fee:            payment.Fee,
		Net:            payment.NetAmount,
	})
}

// Dispute marks a declared cash payment as never received
func (s *CashSettlementService) Dispute(ctx context.Context, callerID, paymentID uuid.UUID, reason string) (*models.Payment, error) {
	payment, agreement, err := s.loadCash(ctx, callerID, paymentID)
	if err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, fmt.Errorf("%w: reason is required", ErrInvalidInput)
	}

	ok, err := s.store.UpdatePaymentIfStatus(ctx, payment.ID, models.PaymentStatusAwaitingConfirmation, models.PaymentPatch{
		Status:        models.PaymentStatusFailed,
		FailureReason: reason,
	})
	if err != nil {
		return nil, storeErr(err, "dispute payment")
	}
	if !ok {
		return nil, fmt.Errorf("%w: payment changed while disputing", ErrStorageConflict)
	}
	payment.Status = models.PaymentStatusFailed
	payment.FailureReason = reason

	s.log.WithField("payment_id", payment.ID).Info("Cash payment disputed")
	s.notifier.Notify(ctx, agreement.RequesterID, models.NotificationCashDisputed,
		"Cash payment disputed",
		fmt.Sprintf("Your supporter has not received the R%s cash payment: %s", payment.Amount.StringFixed(2), reason),
		map[string]any{"payment_id": payment.ID, "agreement_id": agreement.ID, "reason": reason})

	return payment, nil
}
