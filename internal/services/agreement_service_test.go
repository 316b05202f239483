package services

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"handshake-backend/internal/models"
	"handshake-backend/internal/payfast"
)

func TestAgreementCreate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	newcomer := uuid.New()

	a, err := h.agreements.Create(ctx, h.requester, &models.CreateAgreementRequest{
		SupporterID:    newcomer.String(),
		Amount:         d("500"),
		TransactionFee: d("25"),
		PaybackDay:     "2026-04-10",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if a.Status != models.AgreementStatusPending || a.RequesterID != h.requester || a.SupporterID != newcomer {
		t.Errorf("unexpected agreement %+v", a)
	}
	if _, err := h.trust.Get(ctx, newcomer); err != nil {
		t.Errorf("supporter trust record not created: %v", err)
	}

	bad := []struct {
		name    string
		req     models.CreateAgreementRequest
		wantErr error
	}{
		{"missing supporter", models.CreateAgreementRequest{Amount: d("10"), PaybackDay: "2026-04-10"}, ErrInvalidInput},
		{"self", models.CreateAgreementRequest{SupporterID: h.requester.String(), Amount: d("10"), PaybackDay: "2026-04-10"}, ErrInvalidInput},
		{"zero amount", models.CreateAgreementRequest{SupporterID: newcomer.String(), PaybackDay: "2026-04-10"}, ErrInvalidAmount},
		{"negative fee", models.CreateAgreementRequest{SupporterID: newcomer.String(), Amount: d("10"), TransactionFee: d("-1"), PaybackDay: "2026-04-10"}, ErrInvalidAmount},
		{"bad date", models.CreateAgreementRequest{SupporterID: newcomer.String(), Amount: d("10"), PaybackDay: "10/04/2026"}, ErrInvalidInput},
		{"past date", models.CreateAgreementRequest{SupporterID: newcomer.String(), Amount: d("10"), PaybackDay: "2026-01-01"}, ErrInvalidInput},
	}
	for _, tt := range bad {
		t.Run(tt.name, func(t *testing.T) {
			req := tt.req
			if _, err := h.agreements.Create(ctx, h.requester, &req); !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestPenaltyTermsLifecycle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.seedAgreement(t, models.AgreementStatusPending, h.now.AddDate(0, 1, 0))

	terms := &models.SetPenaltyTermsRequest{Enabled: true, Type: models.PenaltyTypeFixed, Amount: d("50"), GracePeriodDays: 2}

	if _, err := h.agreements.SetPenaltyTerms(ctx, h.requester, a.ID, terms); !errors.Is(err, ErrForbidden) {
		t.Errorf("requester setting terms: err = %v", err)
	}
	if _, err := h.agreements.AcceptPenaltyTerms(ctx, h.requester, a.ID); !errors.Is(err, ErrInvalidState) {
		t.Errorf("accepting absent terms: err = %v", err)
	}

	got, err := h.agreements.SetPenaltyTerms(ctx, h.supporter, a.ID, terms)
	if err != nil {
		t.Fatalf("SetPenaltyTerms: %v", err)
	}
	if !got.Penalty.Enabled || got.Penalty.Accepted || !got.Penalty.Amount.Equal(d("50")) {
		t.Errorf("penalty = %+v", got.Penalty)
	}

	if _, err := h.agreements.AcceptPenaltyTerms(ctx, h.supporter, a.ID); !errors.Is(err, ErrForbidden) {
		t.Errorf("supporter accepting: err = %v", err)
	}
	got, err = h.agreements.AcceptPenaltyTerms(ctx, h.requester, a.ID)
	if err != nil {
		t.Fatalf("AcceptPenaltyTerms: %v", err)
	}
	if !got.Penalty.Accepted {
		t.Error("terms not accepted")
	}

	// Changing the terms withdraws acceptance
	terms.Amount = d("75")
	got, err = h.agreements.SetPenaltyTerms(ctx, h.supporter, a.ID, terms)
	if err != nil {
		t.Fatal(err)
	}
	if got.Penalty.Accepted {
		t.Error("acceptance survived a change of terms")
	}

	invalid := []*models.SetPenaltyTermsRequest{
		{Enabled: true, Amount: d("5")},
		{Enabled: true, Type: models.PenaltyTypeFixed},
		{Enabled: true, Type: models.PenaltyTypePercentage, Amount: d("150")},
		{Enabled: true, Type: "weekly", Amount: d("5")},
		{Enabled: true, Type: models.PenaltyTypeFixed, Amount: d("5"), GracePeriodDays: -1},
	}
	for i, req := range invalid {
		if _, err := h.agreements.SetPenaltyTerms(ctx, h.supporter, a.ID, req); err == nil {
			t.Errorf("case %d: expected error", i)
		}
	}
}

func TestAgreementApproveAndReject(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	a := h.seedAgreement(t, models.AgreementStatusPending, h.now.AddDate(0, 1, 0))
	got, err := h.agreements.Approve(ctx, h.supporter, a.ID)
	if err != nil || got.Status != models.AgreementStatusApproved {
		t.Fatalf("Approve = %v, %v", got, err)
	}
	if _, err := h.agreements.SetPenaltyTerms(ctx, h.supporter, a.ID, &models.SetPenaltyTermsRequest{}); !errors.Is(err, ErrInvalidState) {
		t.Errorf("terms after approval: err = %v", err)
	}

	got, err = h.agreements.Reject(ctx, h.supporter, a.ID)
	if err != nil || got.Status != models.AgreementStatusRejected {
		t.Fatalf("Reject = %v, %v", got, err)
	}
	if _, err := h.requests.Create(ctx, PaymentRequestInput{CallerID: h.supporter, AgreementID: a.ID}); !errors.Is(err, ErrInvalidState) {
		t.Errorf("paying a rejected agreement: err = %v", err)
	}

	funded := h.seedAgreement(t, models.AgreementStatusActive, h.now.AddDate(0, 1, 0))
	if _, err := h.agreements.Reject(ctx, h.supporter, funded.ID); !errors.Is(err, ErrInvalidState) {
		t.Errorf("rejecting an active agreement: err = %v", err)
	}
	if _, err := h.agreements.Reject(ctx, h.requester, a.ID); !errors.Is(err, ErrForbidden) {
		t.Errorf("requester rejecting: err = %v", err)
	}
}

func TestAgreementRejectWaitsForOpenPayment(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	a := h.seedAgreement(t, models.AgreementStatusApproved, h.now.AddDate(0, 1, 0))
	p := h.seedPayment(t, a, h.supporter, "525")

	if _, err := h.agreements.Reject(ctx, h.supporter, a.ID); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("reject with pending payment: err = %v", err)
	}
	if got := h.store.agreement(t, a.ID); got.Status != models.AgreementStatusApproved {
		t.Errorf("status = %s, want approved", got.Status)
	}

	// The funding payment still settles normally
	if _, err := h.webhook.Process(ctx, itn(p, payfast.StatusComplete, "pf-fund", "525.00")); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if got := h.store.agreement(t, a.ID); got.Status != models.AgreementStatusCompleted {
		t.Errorf("status = %s, want completed", got.Status)
	}
}

func TestAgreementRejectIgnoresSettledOrAbandonedPayments(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	a := h.seedAgreement(t, models.AgreementStatusApproved, h.now.AddDate(0, 1, 0))
	abandoned := h.seedPayment(t, a, h.supporter, "525")
	failed := h.seedPayment(t, a, h.supporter, "525")

	h.store.mu.Lock()
	h.store.payments[abandoned.ID].CreatedAt = h.now.Add(-2 * openPaymentWindow)
	h.store.payments[failed.ID].Status = models.PaymentStatusFailed
	h.store.mu.Unlock()

	got, err := h.agreements.Reject(ctx, h.supporter, a.ID)
	if err != nil || got.Status != models.AgreementStatusRejected {
		t.Fatalf("Reject = %v, %v", got, err)
	}
}

func TestAgreementVisibility(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.seedAgreement(t, models.AgreementStatusActive, h.now.AddDate(0, 1, 0))
	h.seedPayment(t, a, h.requester, "100")

	if _, err := h.agreements.Get(ctx, uuid.New(), a.ID); !errors.Is(err, ErrForbidden) {
		t.Errorf("stranger: err = %v", err)
	}
	if _, err := h.agreements.Get(ctx, h.requester, uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing: err = %v", err)
	}
	payments, err := h.agreements.ListPayments(ctx, h.supporter, a.ID)
	if err != nil || len(payments) != 1 {
		t.Errorf("ListPayments = %d, %v", len(payments), err)
	}
}
