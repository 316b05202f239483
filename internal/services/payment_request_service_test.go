package services

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"handshake-backend/internal/models"
	"handshake-backend/internal/payfast"
)

func ptr(s string) *decimal.Decimal {
	v := d(s)
	return &v
}

func TestCharge(t *testing.T) {
	requester, supporter := uuid.New(), uuid.New()
	base := func(status models.AgreementStatus, paid string) *models.Agreement {
		return &models.Agreement{
			ID:             uuid.New(),
			RequesterID:    requester,
			SupporterID:    supporter,
			Amount:         d("500"),
			TransactionFee: d("25"),
			AmountPaid:     d(paid),
			Status:         status,
		}
	}

	tests := []struct {
		name        string
		agreement   *models.Agreement
		caller      uuid.UUID
		requested   *decimal.Decimal
		want        string
		wantFunding bool
		wantErr     error
	}{
		{"supporter funds principal plus fee", base(models.AgreementStatusPending, "0"), supporter, nil, "525", true, nil},
		{"supporter ignores requested amount", base(models.AgreementStatusApproved, "0"), supporter, ptr("10"), "525", true, nil},
		{"supporter cannot fund twice", base(models.AgreementStatusActive, "525"), supporter, nil, "", false, ErrInvalidState},
		{"requester pays outstanding by default", base(models.AgreementStatusActive, "300"), requester, nil, "225", false, nil},
		{"requester partial repayment", base(models.AgreementStatusActive, "300"), requester, ptr("100"), "100", false, nil},
		{"requester request clamped to outstanding", base(models.AgreementStatusActive, "300"), requester, ptr("10000"), "225", false, nil},
		{"requested amount rounded to cents", base(models.AgreementStatusActive, "300"), requester, ptr("10.005"), "10.01", false, nil},
		{"negative request", base(models.AgreementStatusActive, "300"), requester, ptr("-1"), "", false, ErrInvalidInput},
		{"below one cent", base(models.AgreementStatusActive, "300"), requester, ptr("0.004"), "", false, ErrInvalidAmount},
		{"stranger", base(models.AgreementStatusActive, "300"), uuid.New(), nil, "", false, ErrForbidden},
		{"completed agreement", base(models.AgreementStatusCompleted, "525"), requester, nil, "", false, ErrInvalidState},
		{"rejected agreement", base(models.AgreementStatusRejected, "0"), requester, nil, "", false, ErrInvalidState},
		{"nothing outstanding", base(models.AgreementStatusActive, "525"), requester, nil, "", false, ErrInvalidState},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			charge, funding, err := Charge(tt.agreement, tt.caller, tt.requested)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !charge.Equal(d(tt.want)) || funding != tt.wantFunding {
				t.Errorf("Charge = %s (funding=%v), want %s (funding=%v)", charge, funding, tt.want, tt.wantFunding)
			}
		})
	}
}

func TestChargeNeverExceedsOutstanding(t *testing.T) {
	requester := uuid.New()
	for _, paid := range []string{"0", "0.01", "100", "524.99"} {
		for _, requested := range []string{"0.01", "1", "224.99", "525", "525.01", "99999999.99"} {
			a := &models.Agreement{
				RequesterID:    requester,
				SupporterID:    uuid.New(),
				Amount:         d("500"),
				TransactionFee: d("25"),
				AmountPaid:     d(paid),
				Status:         models.AgreementStatusActive,
			}
			charge, _, err := Charge(a, requester, ptr(requested))
			if err != nil {
				t.Fatalf("paid=%s requested=%s: %v", paid, requested, err)
			}
			if charge.GreaterThan(a.Outstanding()) {
				t.Errorf("paid=%s requested=%s: charge %s exceeds outstanding %s", paid, requested, charge, a.Outstanding())
			}
		}
	}
}

func TestCreatePaymentRequest(t *testing.T) {
	h := newHarness(t)
	a := h.seedAgreement(t, models.AgreementStatusPending, h.now.AddDate(0, 1, 0))

	req, err := h.requests.Create(context.Background(), PaymentRequestInput{
		CallerID:    h.supporter,
		AgreementID: a.ID,
		Method:      "eft",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// The pending row exists before the payload is handed out
	stored := h.store.payment(t, req.Payment.ID)
	if stored.Status != models.PaymentStatusPending || !stored.Amount.Equal(d("525")) {
		t.Errorf("stored payment = %s %s", stored.Status, stored.Amount)
	}
	if stored.Method != models.PaymentMethodEFT {
		t.Errorf("method = %s", stored.Method)
	}

	f := req.Checkout.Fields
	checks := map[string]string{
		"merchant_id":    testMerchantID,
		"m_payment_id":   req.Payment.ID.String(),
		"amount":         "525.00",
		"item_name":      "Handshake " + a.ID.String()[:8] + " funding",
		"payment_method": "eft",
		"custom_str1":    a.ID.String(),
		"custom_str2":    h.supporter.String(),
		"notify_url":     "https://api.example.com/webhook",
	}
	for k, want := range checks {
		if f[k] != want {
			t.Errorf("field %s = %q, want %q", k, f[k], want)
		}
	}
	if !payfast.Verify(f, f[payfast.SignatureField], testPassphrase) {
		t.Error("checkout signature does not verify")
	}
	if req.Checkout.ProcessURL != payfast.SandboxHost+payfast.ProcessPath {
		t.Errorf("process url = %s", req.Checkout.ProcessURL)
	}
	if h.notifier.count(models.NotificationPaymentInitiated) != 1 {
		t.Error("counterparty not notified")
	}
}

func TestCreatePaymentRequestErrors(t *testing.T) {
	h := newHarness(t)
	a := h.seedAgreement(t, models.AgreementStatusActive, h.now.AddDate(0, 1, 0))

	tests := []struct {
		name    string
		in      PaymentRequestInput
		wantErr error
	}{
		{"no caller", PaymentRequestInput{AgreementID: a.ID}, ErrUnauthenticated},
		{"unknown method", PaymentRequestInput{CallerID: h.requester, AgreementID: a.ID, Method: "bitcoin"}, ErrInvalidInput},
		{"unknown agreement", PaymentRequestInput{CallerID: h.requester, AgreementID: uuid.New()}, ErrNotFound},
		{"stranger", PaymentRequestInput{CallerID: uuid.New(), AgreementID: a.ID}, ErrForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := h.requests.Create(context.Background(), tt.in); !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
	if len(h.store.payments) != 0 {
		t.Errorf("%d payments created by rejected requests", len(h.store.payments))
	}
}

func TestRequestThenWebhookRoundTrip(t *testing.T) {
	h := newHarness(t)
	a := h.seedAgreement(t, models.AgreementStatusPending, h.now.AddDate(0, 1, 0))

	req, err := h.requests.Create(context.Background(), PaymentRequestInput{CallerID: h.supporter, AgreementID: a.ID})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := h.webhook.Process(context.Background(), itn(req.Payment, payfast.StatusComplete, "pf-rt", req.Checkout.Fields["amount"])); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if got := h.store.agreement(t, a.ID); got.Status != models.AgreementStatusCompleted {
		t.Errorf("status = %s, want completed", got.Status)
	}

	// Fully funded: a second funding attempt is refused
	if _, err := h.requests.Create(context.Background(), PaymentRequestInput{CallerID: h.supporter, AgreementID: a.ID}); !errors.Is(err, ErrInvalidState) {
		t.Errorf("second funding: err = %v", err)
	}
}
