package services

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"

	"handshake-backend/internal/cache"
	"handshake-backend/internal/models"
	"handshake-backend/internal/payfast"
)

// Webhook outcomes, also used as metric labels
const (
	OutcomeApplied   = "applied"
	OutcomeDuplicate = "duplicate"
	OutcomeFailed    = "failed_payment"
	OutcomeNoop      = "agreement_closed"
	OutcomeRefund    = "refund_required"
)

// deliveryLockTTL bounds how long one delivery may hold the per-payment lock
const deliveryLockTTL = 30 * time.Second

// amountTolerance is how far the notified gross may drift from the charged amount
var amountTolerance = minorUnit

// Notification is one inbound gateway delivery
type Notification struct {
	Form       url.Values
	RawBody    []byte
	RemoteAddr string // Client IP as resolved by the handler
}

// WebhookService authenticates gateway notifications and applies them exactly once
type WebhookService struct {
	merchantID string
	passphrase string
	allowed    []netip.Prefix

	confirmer Confirmer
	store     LedgerStore
	settler   *Settler
	guard     DeliveryGuard
	archiver  Archiver
	notifier  Notifier
	log       *logrus.Entry
}

// WebhookConfig holds the merchant identity the webhook checks against
type WebhookConfig struct {
	MerchantID   string
	Passphrase   string
	AllowedCIDRs []string // Empty disables the source address check
}

func NewWebhookService(
	cfg WebhookConfig,
	confirmer Confirmer,
	store LedgerStore,
	settler *Settler,
	guard DeliveryGuard,
	archiver Archiver,
	notifier Notifier,
	logger *logrus.Logger,
) (*WebhookService, error) {
	allowed := make([]netip.Prefix, 0, len(cfg.AllowedCIDRs))
	for _, cidr := range cfg.AllowedCIDRs {
		prefix, err := netip.ParsePrefix(cidr)
		if err != nil {
			return nil, fmt.Errorf("invalid gateway CIDR %q: %w", cidr, err)
		}
		allowed = append(allowed, prefix)
	}

	return &WebhookService{
		merchantID: cfg.MerchantID,
		passphrase: cfg.Passphrase,
		allowed:    allowed,
		confirmer:  confirmer,
		store:      store,
		settler:    settler,
		guard:      guard,
		archiver:   archiver,
		notifier:   notifier,
		log:        logger.WithField("component", "webhook"),
	}, nil
}

// Process runs one notification through the verification pipeline and applies it.
// A nil error means the gateway should get 200; IsTransient errors mean it should retry.
func (s *WebhookService) Process(ctx context.Context, n Notification) (string, error) {
	itn := payfast.ParseNotification(n.Form)

	entry := s.log.WithFields(logrus.Fields{
		"m_payment_id":  itn.PaymentID,
		"pf_payment_id": itn.Reference,
		"status":        itn.PaymentStatus,
	})

	if !s.sourceAllowed(n.RemoteAddr) {
		entry.WithField("remote_addr", n.RemoteAddr).Warn("Notification from unexpected source")
		return "", fmt.Errorf("%w: source %s not allowed", ErrForbidden, n.RemoteAddr)
	}
	if itn.MerchantID != s.merchantID {
		entry.WithField("merchant_id", itn.MerchantID).Warn("Merchant mismatch")
		return "", fmt.Errorf("%w: merchant mismatch", ErrInvalidInput)
	}
	if !payfast.Verify(itn.Params, itn.Signature, s.passphrase) {
		entry.Warn("Signature mismatch")
		return "", ErrSignatureInvalid
	}

	confirmed, err := s.confirmer.Confirm(ctx, itn.Params)
	if err != nil {
		entry.WithError(err).Warn("Gateway confirmation unavailable")
		return "", fmt.Errorf("%w: gateway confirmation failed: %v", ErrInternal, err)
	}
	if !confirmed {
		entry.Warn("Gateway did not confirm notification")
		return "", ErrGatewayUnconfirmed
	}

	v, err := itn.Validate()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	s.archive(ctx, v.PaymentID.String(), n.RawBody)

	if s.guard != nil {
		release, acquired, err := s.guard.Acquire(ctx, cache.DeliveryKeyPrefix+v.PaymentID.String(), deliveryLockTTL)
		if err != nil {
			entry.WithError(err).Warn("Delivery guard unavailable, relying on database check")
		}
		if !acquired {
			return "", fmt.Errorf("%w: delivery already in progress", ErrStorageConflict)
		}
		defer release()
	}

	payment, err := s.store.GetPayment(ctx, v.PaymentID)
	if err != nil {
		return "", storeErr(err, "payment")
	}
	if payment.AgreementID != v.AgreementID {
		return "", fmt.Errorf("%w: agreement does not match payment", ErrInvalidInput)
	}

	// Idempotency gate
	switch payment.Status {
	case models.PaymentStatusCompleted:
		if payment.TransactionReference == itn.Reference {
			entry.Info("Duplicate notification for completed payment")
			return OutcomeDuplicate, nil
		}
		entry.WithField("stored_reference", payment.TransactionReference).Warn("Completed payment notified with a different reference")
		return "", ErrDuplicateConflict
	case models.PaymentStatusFailed:
		if !v.Complete {
			return OutcomeDuplicate, nil
		}
		return "", fmt.Errorf("%w: payment already failed", ErrInvalidState)
	case models.PaymentStatusPending:
	default:
		return "", fmt.Errorf("%w: payment is %s", ErrInvalidState, payment.Status)
	}

	if !v.Complete {
		return s.markFailed(ctx, payment, itn.PaymentStatus, entry)
	}

	if v.Gross.Sub(payment.Amount).Abs().GreaterThan(amountTolerance) {
		entry.WithFields(logrus.Fields{
			"gross":   v.Gross.StringFixed(2),
			"charged": payment.Amount.StringFixed(2),
		}).Warn("Notified amount differs from charged amount")
		return "", fmt.Errorf("%w: gross %s does not match charge %s", ErrInvalidAmount, v.Gross.StringFixed(2), payment.Amount.StringFixed(2))
	}

	fee, net := s.settler.Fee(v.Gross)
	result, err := s.settler.Settle(ctx, SettleInput{
		Payment:        payment,
		ExpectedStatus: models.PaymentStatusPending,
		Reference:      itn.Reference,
		Gross:          v.Gross,
		Fee:            fee,
		Net:            net,
	})
	if err != nil {
		return "", err
	}
	if !result.Applied {
		if result.Payment.RefundRequired {
			return OutcomeRefund, nil
		}
		return OutcomeNoop, nil
	}
	return OutcomeApplied, nil
}

func (s *WebhookService) markFailed(ctx context.Context, p *models.Payment, gatewayStatus string, entry *logrus.Entry) (string, error) {
	ok, err := s.store.UpdatePaymentIfStatus(ctx, p.ID, models.PaymentStatusPending, models.PaymentPatch{
		Status:        models.PaymentStatusFailed,
		FailureReason: "gateway status " + gatewayStatus,
	})
	if err != nil {
		return "", storeErr(err, "mark payment failed")
	}
	if !ok {
		return "", fmt.Errorf("%w: payment changed while marking failed", ErrStorageConflict)
	}

	entry.Info("Payment failed at gateway")
	s.notifier.Notify(ctx, p.PayerID, models.NotificationPaymentFailed,
		"Payment failed",
		fmt.Sprintf("Your payment of R%s did not go through.", p.Amount.StringFixed(2)),
		map[string]any{"payment_id": p.ID, "agreement_id": p.AgreementID, "gateway_status": gatewayStatus})
	return OutcomeFailed, nil
}

func (s *WebhookService) sourceAllowed(remote string) bool {
	if len(s.allowed) == 0 {
		return true
	}
	addr, err := netip.ParseAddr(remote)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, prefix := range s.allowed {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

func (s *WebhookService) archive(ctx context.Context, paymentID string, body []byte) {
	if s.archiver == nil || len(body) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := s.archiver.Archive(ctx, paymentID, body); err != nil {
		s.log.WithError(err).WithField("m_payment_id", paymentID).Warn("Failed to archive notification")
	}
}

// OutcomeFor names an error for metrics
func OutcomeFor(err error) string {
	switch {
	case errors.Is(err, ErrSignatureInvalid):
		return "rejected_signature"
	case errors.Is(err, ErrGatewayUnconfirmed):
		return "rejected_unconfirmed"
	case errors.Is(err, ErrDuplicateConflict):
		return "rejected_duplicate_conflict"
	case errors.Is(err, ErrNotFound):
		return "rejected_not_found"
	case errors.Is(err, ErrForbidden):
		return "rejected_source"
	case IsTransient(err):
		return "retry"
	}
	return "rejected_invalid"
}
