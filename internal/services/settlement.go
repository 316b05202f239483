package services

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"handshake-backend/internal/metrics"
	"handshake-backend/internal/models"
	"handshake-backend/internal/timeutil"
)

// trustPenaltyPerDay is subtracted from the requester's trust score for each day late
var trustPenaltyPerDay = decimal.RequireFromString("0.5")

// Settler applies a completed payment to the ledger. Both the gateway webhook and cash
// confirmation end here.
type Settler struct {
	store    LedgerStore
	notifier Notifier
	feeRate  decimal.Decimal
	now      func() time.Time
	log      *logrus.Entry
}

func NewSettler(store LedgerStore, notifier Notifier, feeRate decimal.Decimal, logger *logrus.Logger) *Settler {
	return &Settler{
		store:    store,
		notifier: notifier,
		feeRate:  feeRate,
		now:      timeutil.Now,
		log:      logger.WithField("component", "settlement"),
	}
}

// Fee splits a gross amount into the platform fee (rounded to cents) and the net credited to the payee
func (s *Settler) Fee(gross decimal.Decimal) (fee, net decimal.Decimal) {
	fee = gross.Mul(s.feeRate).Round(2)
	return fee, gross.Sub(fee)
}

// SettleInput describes one payment being completed
type SettleInput struct {
	Payment        *models.Payment
	ExpectedStatus models.PaymentStatus
	Reference      string
	Gross          decimal.Decimal
	Fee            decimal.Decimal
	Net            decimal.Decimal
}

// Settle completes the payment and, unless the agreement is already closed, accumulates it
// and applies the lateness penalty in one transaction, then records revenue and notifies
// both parties. Everything after the settlement transaction is best-effort.
func (s *Settler) Settle(ctx context.Context, in SettleInput) (*models.SettlementResult, error) {
	p := in.Payment

	// Payback day never changes, so reading it ahead of the transaction is safe
	agreement, err := s.store.GetAgreement(ctx, p.AgreementID)
	if err != nil {
		return nil, storeErr(err, "agreement")
	}

	now := s.now()
	daysLate := timeutil.DaysLate(agreement.PaybackDay, now)
	// Only the requester's repayments are late; funding by the supporter is not
	if p.PayerID != agreement.RequesterID {
		daysLate = 0
	}

	settlement := models.Settlement{
		PaymentID:      p.ID,
		ExpectedStatus: in.ExpectedStatus,
		Reference:      in.Reference,
		Gross:          in.Gross,
		Fee:            in.Fee,
		Net:            in.Net,
		DaysLate:       daysLate,
		At:             now,
	}
	if daysLate > 0 {
		settlement.PenaltyUserID = agreement.RequesterID
		settlement.TrustPenalty = trustPenaltyPerDay.Mul(decimal.NewFromInt(int64(daysLate)))
	}

	result, err := s.store.ApplySettlement(ctx, settlement)
	if err != nil {
		return nil, storeErr(err, "apply settlement")
	}

	entry := s.log.WithFields(logrus.Fields{
		"payment_id":   p.ID,
		"agreement_id": p.AgreementID,
		"gross":        in.Gross.StringFixed(2),
	})

	if !result.Applied {
		metrics.RefundsRequired.WithLabelValues(string(p.Method)).Inc()
		entry.WithField("status", result.PriorStatus).Error("Payment captured on a closed agreement, refund required")
		s.notifyRefund(ctx, result, in.Gross)
		return result, nil
	}
	metrics.SettlementsApplied.WithLabelValues(string(p.Method)).Inc()
	entry.WithField("status", result.Agreement.Status).Info("Settlement applied")

	s.recordRevenue(ctx, p, in.Fee)
	s.notifySettled(ctx, result, in.Gross, daysLate, result.TrustScore)
	return result, nil
}

// notifyRefund tells both parties that money arrived after the agreement closed
func (s *Settler) notifyRefund(ctx context.Context, r *models.SettlementResult, gross decimal.Decimal) {
	p, a := r.Payment, r.Agreement
	payload := map[string]any{
		"payment_id":       p.ID,
		"agreement_id":     a.ID,
		"amount":           gross.StringFixed(2),
		"agreement_status": a.Status,
	}
	s.notifier.Notify(ctx, p.PayerID, models.NotificationRefundRequired,
		"Refund pending",
		fmt.Sprintf("Your payment of R%s arrived after this handshake was %s. It will be refunded.", gross.StringFixed(2), a.Status),
		payload)
	s.notifier.Notify(ctx, a.CounterpartyOf(p.PayerID), models.NotificationRefundRequired,
		"Late payment refunded",
		fmt.Sprintf("A payment of R%s arrived after this handshake was %s and will be refunded to the payer.", gross.StringFixed(2), a.Status),
		payload)
}

func (s *Settler) recordRevenue(ctx context.Context, p *models.Payment, fee decimal.Decimal) {
	if !fee.IsPositive() {
		return
	}
	err := s.store.AppendRevenueEntry(ctx, &models.RevenueEntry{
		PaymentID:   p.ID,
		AgreementID: p.AgreementID,
		Amount:      fee,
		Method:      p.Method,
	})
	if err != nil {
		// The reconciler backfills missing entries
		metrics.RevenueWriteFailures.Inc()
		s.log.WithError(err).WithField("payment_id", p.ID).Error("Failed to record platform revenue")
	}
}

func (s *Settler) notifySettled(ctx context.Context, r *models.SettlementResult, gross decimal.Decimal, daysLate int, newScore *decimal.Decimal) {
	p, a := r.Payment, r.Agreement
	payee := a.CounterpartyOf(p.PayerID)
	amount := "R" + gross.StringFixed(2)
	payload := map[string]any{
		"payment_id":   p.ID,
		"agreement_id": a.ID,
		"amount":       gross.StringFixed(2),
		"outstanding":  a.Outstanding().StringFixed(2),
		"status":       a.Status,
	}

	s.notifier.Notify(ctx, p.PayerID, models.NotificationPaymentReceived,
		"Payment successful", fmt.Sprintf("Your payment of %s was received.", amount), payload)
	s.notifier.Notify(ctx, payee, models.NotificationPaymentReceived,
		"Payment received", fmt.Sprintf("You received %s.", amount), payload)

	if p.PayerID == a.SupporterID && (r.PriorStatus == models.AgreementStatusPending || r.PriorStatus == models.AgreementStatusApproved) {
		s.notifier.Notify(ctx, a.RequesterID, models.NotificationAgreementFunded,
			"Handshake funded", "Your handshake has been funded.", payload)
	}

	if a.Status == models.AgreementStatusCompleted {
		s.notifier.Notify(ctx, a.RequesterID, models.NotificationAgreementCompleted,
			"Handshake completed", "This handshake is fully paid.", payload)
		s.notifier.Notify(ctx, a.SupporterID, models.NotificationAgreementCompleted,
			"Handshake completed", "This handshake is fully paid.", payload)
	}

	if newScore != nil {
		s.notifier.Notify(ctx, a.RequesterID, models.NotificationTrustScoreChanged,
			"Trust score updated",
			fmt.Sprintf("Your repayment was %d day(s) late. Your trust score is now %s.", daysLate, newScore.StringFixed(1)),
			map[string]any{"days_late": daysLate, "trust_score": newScore.StringFixed(2)})
	}
}
