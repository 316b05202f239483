package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"handshake-backend/internal/models"
	"handshake-backend/internal/payfast"
	"handshake-backend/internal/timeutil"
)

// minorUnit is the smallest chargeable amount (one cent)
var minorUnit = decimal.New(1, -2)

// PaymentRequestInput is a caller's request to pay into an agreement
type PaymentRequestInput struct {
	CallerID    uuid.UUID
	AgreementID uuid.UUID
	Amount      *decimal.Decimal // Requested ceiling; nil means "everything outstanding"
	Method      string           // "card" (default) or "eft"
}

// PaymentRequest is the created payment and the signed gateway payload for it
type PaymentRequest struct {
	Payment  *models.Payment  `json:"payment"`
	Checkout *payfast.Checkout `json:"checkout"`
}

// PaymentRequestService computes the authoritative charge and signs the outbound gateway request
type PaymentRequestService struct {
	store    LedgerStore
	merchant payfast.Merchant
	notifier Notifier
	now      func() time.Time
	log      *logrus.Entry
}

func NewPaymentRequestService(store LedgerStore, merchant payfast.Merchant, notifier Notifier, logger *logrus.Logger) *PaymentRequestService {
	return &PaymentRequestService{
		store:    store,
		merchant: merchant,
		notifier: notifier,
		now:      timeutil.Now,
		log:      logger.WithField("component", "payment_request"),
	}
}

// gatewayMethod maps the API method name to the stored method and the gateway's payment_method code
func gatewayMethod(method string) (models.PaymentMethod, string, error) {
	switch method {
	case "", "card":
		return models.PaymentMethodCard, "cc", nil
	case "eft":
		return models.PaymentMethodEFT, "eft", nil
	}
	return "", "", fmt.Errorf("%w: unknown payment method %q", ErrInvalidInput, method)
}

// ItemName is the deterministic description shown on the gateway's payment page
func ItemName(agreementID uuid.UUID, funding bool) string {
	kind := "repayment"
	if funding {
		kind = "funding"
	}
	return fmt.Sprintf("Handshake %s %s", agreementID.String()[:8], kind)
}

// Charge decides what the caller pays. Funding by the supporter is principal plus fee;
// a repayment by the requester is the requested amount clamped to what is outstanding.
func Charge(a *models.Agreement, callerID uuid.UUID, requested *decimal.Decimal) (charge decimal.Decimal, funding bool, err error) {
	if !a.IsParty(callerID) {
		return decimal.Zero, false, fmt.Errorf("%w: not a party to this agreement", ErrForbidden)
	}
	if a.IsTerminal() {
		return decimal.Zero, false, fmt.Errorf("%w: agreement is %s", ErrInvalidState, a.Status)
	}

	outstanding := a.Outstanding()
	if !outstanding.IsPositive() {
		return decimal.Zero, false, fmt.Errorf("%w: nothing outstanding", ErrInvalidState)
	}

	if callerID == a.SupporterID {
		funded := a.AmountPaid.IsPositive() ||
			(a.Status != models.AgreementStatusPending && a.Status != models.AgreementStatusApproved)
		if funded {
			return decimal.Zero, false, fmt.Errorf("%w: agreement already funded", ErrInvalidState)
		}
		charge = a.Amount.Add(a.TransactionFee)
		funding = true
	} else {
		if requested != nil && requested.IsNegative() {
			return decimal.Zero, false, fmt.Errorf("%w: amount must not be negative", ErrInvalidInput)
		}
		charge = outstanding
		if requested != nil && requested.LessThan(outstanding) {
			charge = *requested
		}
	}

	charge = charge.Round(2)
	if charge.LessThan(minorUnit) {
		return decimal.Zero, false, fmt.Errorf("%w: charge %s is below the minimum", ErrInvalidAmount, charge.StringFixed(2))
	}
	return charge, funding, nil
}

// Create stores a pending payment and returns the signed payload. The payment row is written
// before the payload is returned so a fast notification always finds it.
func (s *PaymentRequestService) Create(ctx context.Context, in PaymentRequestInput) (*PaymentRequest, error) {
	if in.CallerID == uuid.Nil {
		return nil, ErrUnauthenticated
	}
	method, gatewayCode, err := gatewayMethod(in.Method)
	if err != nil {
		return nil, err
	}

	agreement, err := s.store.GetAgreement(ctx, in.AgreementID)
	if err != nil {
		return nil, storeErr(err, "agreement")
	}

	charge, funding, err := Charge(agreement, in.CallerID, in.Amount)
	if err != nil {
		return nil, err
	}

	payment := &models.Payment{
		ID:          uuid.New(),
		AgreementID: agreement.ID,
		PayerID:     in.CallerID,
		Method:      method,
		Status:      models.PaymentStatusPending,
		Amount:      charge,
		CreatedAt:   s.now(),
	}
	if err := s.store.CreatePayment(ctx, payment); err != nil {
		return nil, storeErr(err, "create payment")
	}

	checkout := s.merchant.BuildCheckout(payfast.CheckoutRequest{
		PaymentID:   payment.ID,
		AgreementID: agreement.ID,
		CallerID:    in.CallerID,
		Amount:      charge,
		ItemName:    ItemName(agreement.ID, funding),
		Method:      gatewayCode,
	})

	s.log.WithFields(logrus.Fields{
		"payment_id":   payment.ID,
		"agreement_id": agreement.ID,
		"amount":       charge.StringFixed(2),
		"funding":      funding,
	}).Info("Payment request created")

	s.notifier.Notify(ctx, agreement.CounterpartyOf(in.CallerID), models.NotificationPaymentInitiated,
		"Payment initiated",
		fmt.Sprintf("A payment of R%s has been started.", charge.StringFixed(2)),
		map[string]any{"payment_id": payment.ID, "agreement_id": agreement.ID, "amount": charge.StringFixed(2)})

	return &PaymentRequest{Payment: payment, Checkout: checkout}, nil
}
