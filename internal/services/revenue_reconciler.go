package services

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"handshake-backend/internal/models"
)

const reconcileBatchSize = 500

// RevenueReconciler backfills revenue entries the settlement path failed to write
type RevenueReconciler struct {
	store LedgerStore
	log   *logrus.Entry
}

func NewRevenueReconciler(store LedgerStore, logger *logrus.Logger) *RevenueReconciler {
	return &RevenueReconciler{store: store, log: logger.WithField("component", "revenue_reconciler")}
}

// Reconcile appends the missing entries and returns how many were written
func (r *RevenueReconciler) Reconcile(ctx context.Context) (int, error) {
	missing, err := r.store.ListPaymentsMissingRevenue(ctx, reconcileBatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to list payments missing revenue: %w", err)
	}

	written := 0
	for _, p := range missing {
		if !p.Fee.IsPositive() {
			continue
		}
		err := r.store.AppendRevenueEntry(ctx, &models.RevenueEntry{
			PaymentID:   p.ID,
			AgreementID: p.AgreementID,
			Amount:      p.Fee,
			Method:      p.Method,
		})
		if err != nil {
			r.log.WithError(err).WithField("payment_id", p.ID).Warn("Revenue backfill failed")
			continue
		}
		written++
	}

	if written > 0 {
		r.log.WithField("written", written).Info("Revenue entries backfilled")
	}
	return written, nil
}
