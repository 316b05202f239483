package services

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"handshake-backend/internal/models"
)

func TestCashDeclareAndConfirm(t *testing.T) {
	h := newHarness(t)
	a := h.seedAgreement(t, models.AgreementStatusActive, h.now.AddDate(0, 1, 0))
	ctx := context.Background()

	p, err := h.cash.Declare(ctx, h.requester, a.ID, ptr("200"), "handed over at the taxi rank")
	if err != nil {
		t.Fatalf("Declare: %v", err)
	}
	if p.Status != models.PaymentStatusAwaitingConfirmation || p.Method != models.PaymentMethodCash {
		t.Errorf("declared payment = %s/%s", p.Status, p.Method)
	}
	// 200 * 0.035 = 7.00
	if !p.Fee.Equal(d("7")) || !p.NetAmount.Equal(d("193")) {
		t.Errorf("fee/net = %s/%s, want 7/193", p.Fee, p.NetAmount)
	}
	if got := h.store.agreement(t, a.ID); !got.AmountPaid.IsZero() {
		t.Errorf("declaration touched the ledger: amount_paid = %s", got.AmountPaid)
	}
	if h.notifier.count(models.NotificationCashConfirmationRequired) != 1 {
		t.Error("supporter not asked to confirm")
	}

	// Fee rate changes between declaration and confirmation do not matter
	h.settler.feeRate = d("0.10")

	result, err := h.cash.Confirm(ctx, h.supporter, p.ID)
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if !result.Applied || !result.Agreement.AmountPaid.Equal(d("200")) {
		t.Errorf("result = applied %v, amount_paid %s", result.Applied, result.Agreement.AmountPaid)
	}

	stored := h.store.payment(t, p.ID)
	if stored.Status != models.PaymentStatusCompleted || stored.TransactionReference != CashReferencePrefix+p.ID.String() {
		t.Errorf("payment = %s/%q", stored.Status, stored.TransactionReference)
	}
	if !stored.Fee.Equal(d("7")) {
		t.Errorf("fee recomputed at confirmation: %s", stored.Fee)
	}

	// Confirming twice is refused and changes nothing
	if _, err := h.cash.Confirm(ctx, h.supporter, p.ID); !errors.Is(err, ErrInvalidState) {
		t.Errorf("second confirm: err = %v", err)
	}
	if got := h.store.agreement(t, a.ID); !got.AmountPaid.Equal(d("200")) {
		t.Errorf("amount_paid = %s after double confirm", got.AmountPaid)
	}
}

func TestCashDeclareRules(t *testing.T) {
	h := newHarness(t)
	a := h.seedAgreement(t, models.AgreementStatusActive, h.now.AddDate(0, 1, 0))
	ctx := context.Background()

	if _, err := h.cash.Declare(ctx, h.supporter, a.ID, nil, ""); !errors.Is(err, ErrForbidden) {
		t.Errorf("supporter declaring: err = %v", err)
	}
	if _, err := h.cash.Declare(ctx, uuid.Nil, a.ID, nil, ""); !errors.Is(err, ErrUnauthenticated) {
		t.Errorf("anonymous: err = %v", err)
	}
	if _, err := h.cash.Declare(ctx, h.requester, a.ID, ptr("-3"), ""); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("negative: err = %v", err)
	}

	p, err := h.cash.Declare(ctx, h.requester, a.ID, ptr("1000"), "")
	if err != nil {
		t.Fatal(err)
	}
	if !p.Amount.Equal(d("525")) {
		t.Errorf("declared amount = %s, want clamped 525", p.Amount)
	}
}

func TestCashConfirmOnlyBySupporter(t *testing.T) {
	h := newHarness(t)
	a := h.seedAgreement(t, models.AgreementStatusActive, h.now.AddDate(0, 1, 0))
	ctx := context.Background()

	p, err := h.cash.Declare(ctx, h.requester, a.ID, ptr("100"), "")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := h.cash.Confirm(ctx, h.requester, p.ID); !errors.Is(err, ErrForbidden) {
		t.Errorf("requester confirming: err = %v", err)
	}
	if _, err := h.cash.Confirm(ctx, uuid.New(), p.ID); !errors.Is(err, ErrForbidden) {
		t.Errorf("stranger confirming: err = %v", err)
	}

	gateway := h.seedPayment(t, a, h.requester, "50")
	if _, err := h.cash.Confirm(ctx, h.supporter, gateway.ID); !errors.Is(err, ErrInvalidState) {
		t.Errorf("confirming a gateway payment: err = %v", err)
	}
}

func TestCashDispute(t *testing.T) {
	h := newHarness(t)
	a := h.seedAgreement(t, models.AgreementStatusActive, h.now.AddDate(0, 1, 0))
	ctx := context.Background()

	p, err := h.cash.Declare(ctx, h.requester, a.ID, ptr("100"), "")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := h.cash.Dispute(ctx, h.supporter, p.ID, "  "); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("blank reason: err = %v", err)
	}

	disputed, err := h.cash.Dispute(ctx, h.supporter, p.ID, "never received")
	if err != nil {
		t.Fatalf("Dispute: %v", err)
	}
	if disputed.Status != models.PaymentStatusFailed {
		t.Errorf("status = %s", disputed.Status)
	}
	if h.notifier.count(models.NotificationCashDisputed) != 1 {
		t.Error("requester not told about the dispute")
	}
	if _, err := h.cash.Confirm(ctx, h.supporter, p.ID); !errors.Is(err, ErrInvalidState) {
		t.Errorf("confirm after dispute: err = %v", err)
	}
	if got := h.store.agreement(t, a.ID); !got.AmountPaid.IsZero() {
		t.Errorf("disputed cash reached the ledger: %s", got.AmountPaid)
	}
}
