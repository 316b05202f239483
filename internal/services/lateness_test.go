package services

import (
	"context"
	"testing"
	"time"

	"handshake-backend/internal/models"
)

func TestLateFee(t *testing.T) {
	accepted := func(typ models.PenaltyType, amount string, grace int) *models.Agreement {
		return &models.Agreement{
			Amount: d("500"),
			Penalty: models.PenaltyTerms{
				Enabled: true, Accepted: true, Type: typ, Amount: d(amount), GracePeriodDays: grace,
			},
		}
	}
	notAccepted := accepted(models.PenaltyTypeFixed, "50", 0)
	notAccepted.Penalty.Accepted = false

	tests := []struct {
		name     string
		a        *models.Agreement
		daysLate int
		want     string
	}{
		{"no terms", &models.Agreement{Amount: d("500")}, 10, "0"},
		{"terms not accepted", notAccepted, 10, "0"},
		{"inside grace period", accepted(models.PenaltyTypeFixed, "50", 3), 3, "0"},
		{"fixed after grace", accepted(models.PenaltyTypeFixed, "50", 3), 4, "50"},
		{"percentage of principal", accepted(models.PenaltyTypePercentage, "7.5", 0), 1, "37.5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := LateFee(tt.a, tt.daysLate); !got.Equal(d(tt.want)) {
				t.Errorf("LateFee = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestLatenessSweep(t *testing.T) {
	h := newHarness(t)
	svc := NewLatenessService(h.store, h.notifier, discardLogger())
	svc.now = func() time.Time { return h.now }

	overdue := h.seedAgreement(t, models.AgreementStatusActive, h.now.AddDate(0, 0, -5))
	h.store.agreements[overdue.ID].Penalty = models.PenaltyTerms{
		Enabled: true, Accepted: true, Type: models.PenaltyTypeFixed, Amount: d("40"), GracePeriodDays: 2,
	}
	current := h.seedAgreement(t, models.AgreementStatusActive, h.now.AddDate(0, 0, 5))
	pending := h.seedAgreement(t, models.AgreementStatusPending, h.now.AddDate(0, 0, -5))

	n, err := svc.Sweep(context.Background())
	if err != nil || n != 1 {
		t.Fatalf("Sweep = %d, %v", n, err)
	}

	got := h.store.agreement(t, overdue.ID)
	if got.DaysLate != 5 || !got.LateFee.Equal(d("40")) {
		t.Errorf("overdue agreement: days_late=%d late_fee=%s", got.DaysLate, got.LateFee)
	}
	if !got.TotalDue().Equal(d("565")) {
		t.Errorf("total due = %s, want 565", got.TotalDue())
	}
	if h.store.agreement(t, current.ID).DaysLate != 0 || h.store.agreement(t, pending.ID).DaysLate != 0 {
		t.Error("sweep touched agreements that are not overdue and active")
	}
	if h.notifier.count(models.NotificationRepaymentOverdue) != 1 {
		t.Error("requester not reminded")
	}

	// Running again the same day changes nothing but still reminds
	n, err = svc.Sweep(context.Background())
	if err != nil || n != 0 {
		t.Errorf("second sweep = %d, %v", n, err)
	}

	// Late fee never shrinks, even if terms are later cut
	h.store.agreements[overdue.ID].Penalty.Amount = d("10")
	h.now = h.now.AddDate(0, 0, 1)
	if _, err := svc.Sweep(context.Background()); err != nil {
		t.Fatal(err)
	}
	got = h.store.agreement(t, overdue.ID)
	if got.DaysLate != 6 || !got.LateFee.Equal(d("40")) {
		t.Errorf("after terms cut: days_late=%d late_fee=%s", got.DaysLate, got.LateFee)
	}
}
