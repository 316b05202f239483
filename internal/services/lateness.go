package services

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"handshake-backend/internal/models"
	"handshake-backend/internal/timeutil"
)

const latenessBatchSize = 500

var hundred = decimal.NewFromInt(100)

// LateFee is what the accepted penalty terms charge after daysLate days past the payback day.
// Nothing accrues without accepted terms or inside the grace period.
func LateFee(a *models.Agreement, daysLate int) decimal.Decimal {
	p := a.Penalty
	if !p.Enabled || !p.Accepted || daysLate <= p.GracePeriodDays {
		return decimal.Zero
	}
	switch p.Type {
	case models.PenaltyTypeFixed:
		return p.Amount
	case models.PenaltyTypePercentage:
		return a.Amount.Mul(p.Amount).Div(hundred).Round(2)
	}
	return decimal.Zero
}

// LatenessService runs the daily overdue sweep
type LatenessService struct {
	store    LedgerStore
	notifier Notifier
	now      func() time.Time
	log      *logrus.Entry
}

func NewLatenessService(store LedgerStore, notifier Notifier, logger *logrus.Logger) *LatenessService {
	return &LatenessService{
		store:    store,
		notifier: notifier,
		now:      timeutil.Now,
		log:      logger.WithField("component", "lateness"),
	}
}

// Sweep refreshes days_late and the accrued late fee on every overdue active agreement and
// reminds the requester. Late fees only ever grow. Returns the number of agreements updated.
func (s *LatenessService) Sweep(ctx context.Context) (int, error) {
	now := s.now()
	overdue, err := s.store.ListOverdueAgreements(ctx, timeutil.StartOfDay(now), latenessBatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to list overdue agreements: %w", err)
	}

	updated := 0
	for _, a := range overdue {
		if ctx.Err() != nil {
			return updated, ctx.Err()
		}

		daysLate := timeutil.DaysLate(a.PaybackDay, now)
		if daysLate == 0 {
			continue
		}
		lateFee := decimal.Max(a.LateFee, LateFee(a, daysLate))

		if daysLate != a.DaysLate || !lateFee.Equal(a.LateFee) {
			ok, err := s.store.UpdateAgreementIfVersion(ctx, a.ID, a.Version, models.AgreementPatch{
				DaysLate: &daysLate,
				LateFee:  &lateFee,
			})
			if err != nil {
				s.log.WithError(err).WithField("agreement_id", a.ID).Error("Failed to update lateness")
				continue
			}
			if !ok {
				// A settlement got there first; the next run picks it up
				s.log.WithField("agreement_id", a.ID).Debug("Agreement changed during sweep, skipping")
				continue
			}
			updated++
		}

		outstanding := a.Amount.Add(a.TransactionFee).Add(lateFee).Sub(a.AmountPaid)
		s.notifier.Notify(ctx, a.RequesterID, models.NotificationRepaymentOverdue,
			"Repayment overdue",
			fmt.Sprintf("Your repayment is %d day(s) overdue. R%s is outstanding.", daysLate, outstanding.StringFixed(2)),
			map[string]any{
				"agreement_id": a.ID,
				"days_late":    daysLate,
				"late_fee":     lateFee.StringFixed(2),
				"outstanding":  outstanding.StringFixed(2),
			})
	}

	s.log.WithFields(logrus.Fields{"overdue": len(overdue), "updated": updated}).Info("Lateness sweep finished")
	return updated, nil
}
