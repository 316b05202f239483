package services

import (
	"context"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"handshake-backend/internal/logging"
	"handshake-backend/internal/models"
	"handshake-backend/internal/payfast"
	"handshake-backend/internal/repositories"
)

// memStore is an in-memory LedgerStore with the same conditional-write semantics as PostgreSQL
type memStore struct {
	mu         sync.Mutex
	agreements map[uuid.UUID]*models.Agreement
	payments   map[uuid.UUID]*models.Payment
	revenue    map[uuid.UUID]*models.RevenueEntry
	trust      *memTrust // Penalised inside ApplySettlement, like the trust_scores row in the transaction

	revenueErr error
	applyErr   error // Fails ApplySettlement before anything is written
}

func newMemStore(trust *memTrust) *memStore {
	return &memStore{
		agreements: make(map[uuid.UUID]*models.Agreement),
		payments:   make(map[uuid.UUID]*models.Payment),
		revenue:    make(map[uuid.UUID]*models.RevenueEntry),
		trust:      trust,
	}
}

func (m *memStore) GetAgreement(_ context.Context, id uuid.UUID) (*models.Agreement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.agreements[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *memStore) CreateAgreement(_ context.Context, a *models.Agreement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a.Version = 1
	cp := *a
	m.agreements[a.ID] = &cp
	return nil
}

func (m *memStore) UpdateAgreementIfVersion(_ context.Context, id uuid.UUID, version int64, patch models.AgreementPatch) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.agreements[id]
	if !ok || a.Version != version || a.Status == models.AgreementStatusCompleted {
		return false, nil
	}
	if patch.Status != nil {
		a.Status = *patch.Status
	}
	if patch.LateFee != nil {
		a.LateFee = *patch.LateFee
	}
	if patch.DaysLate != nil {
		a.DaysLate = *patch.DaysLate
	}
	if patch.Penalty != nil {
		a.Penalty = *patch.Penalty
	}
	a.Version++
	return true, nil
}

func (m *memStore) ListOverdueAgreements(_ context.Context, before time.Time, _ int) ([]*models.Agreement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Agreement
	for _, a := range m.agreements {
		if a.Status == models.AgreementStatusActive && a.PaybackDay.Before(before) {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memStore) GetPayment(_ context.Context, id uuid.UUID) (*models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memStore) CreatePayment(_ context.Context, p *models.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.payments[p.ID] = &cp
	return nil
}

func (m *memStore) UpdatePaymentIfStatus(_ context.Context, id uuid.UUID, expected models.PaymentStatus, patch models.PaymentPatch) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updatePaymentLocked(id, expected, patch), nil
}

func (m *memStore) updatePaymentLocked(id uuid.UUID, expected models.PaymentStatus, patch models.PaymentPatch) bool {
	p, ok := m.payments[id]
	if !ok || p.Status != expected {
		return false
	}
	p.Status = patch.Status
	if patch.TransactionReference != "" {
		p.TransactionReference = patch.TransactionReference
	}
	if patch.Status == models.PaymentStatusCompleted {
		p.Fee = patch.Fee
		p.NetAmount = patch.NetAmount
	}
	if patch.FailureReason != "" {
		p.FailureReason = patch.FailureReason
	}
	if patch.CompletedAt != nil {
		p.CompletedAt = patch.CompletedAt
	}
	return true
}

func (m *memStore) ListPaymentsByAgreement(_ context.Context, agreementID uuid.UUID) ([]*models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Payment
	for _, p := range m.payments {
		if p.AgreementID == agreementID {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memStore) ListPaymentsMissingRevenue(_ context.Context, _ int) ([]*models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Payment
	for _, p := range m.payments {
		if _, ok := m.revenue[p.ID]; !ok && p.Status == models.PaymentStatusCompleted && !p.RefundRequired {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memStore) ApplySettlement(_ context.Context, s models.Settlement) (*models.SettlementResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.applyErr != nil {
		return nil, m.applyErr
	}

	at := s.At
	if !m.updatePaymentLocked(s.PaymentID, s.ExpectedStatus, models.PaymentPatch{
		Status:               models.PaymentStatusCompleted,
		TransactionReference: s.Reference,
		Fee:                  s.Fee,
		NetAmount:            s.Net,
		CompletedAt:          &at,
	}) {
		return nil, repositories.ErrConflict
	}
	stored := m.payments[s.PaymentID]

	a := m.agreements[stored.AgreementID]
	prior := *a
	if prior.IsTerminal() {
		stored.RefundRequired = true
	}
	p := *stored
	result := &models.SettlementResult{Payment: &p, Agreement: &prior, PriorStatus: prior.Status}
	if prior.IsTerminal() {
		return result, nil
	}

	a.AmountPaid = a.AmountPaid.Add(s.Gross)
	a.NetAmountReceived = a.NetAmountReceived.Add(s.Net)
	if s.DaysLate > a.DaysLate {
		a.DaysLate = s.DaysLate
	}
	switch {
	case a.AmountPaid.GreaterThanOrEqual(a.TotalDue()):
		a.Status = models.AgreementStatusCompleted
		a.CompletedAt = &at
	case a.Status == models.AgreementStatusPending || a.Status == models.AgreementStatusApproved:
		a.Status = models.AgreementStatusActive
	}
	a.Version++

	updated := *a
	result.Agreement = &updated
	result.Applied = true
	if s.TrustPenalty.IsPositive() && m.trust != nil {
		result.TrustScore = m.trust.penalize(s.PenaltyUserID, s.TrustPenalty)
	}
	return result, nil
}

func (m *memStore) AppendRevenueEntry(_ context.Context, e *models.RevenueEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.revenueErr != nil {
		return m.revenueErr
	}
	if _, ok := m.revenue[e.PaymentID]; !ok {
		cp := *e
		m.revenue[e.PaymentID] = &cp
	}
	return nil
}

func (m *memStore) agreement(t *testing.T, id uuid.UUID) *models.Agreement {
	t.Helper()
	a, err := m.GetAgreement(context.Background(), id)
	if err != nil {
		t.Fatalf("agreement %s: %v", id, err)
	}
	return a
}

func (m *memStore) payment(t *testing.T, id uuid.UUID) *models.Payment {
	t.Helper()
	p, err := m.GetPayment(context.Background(), id)
	if err != nil {
		t.Fatalf("payment %s: %v", id, err)
	}
	return p
}

// memTrust is an in-memory TrustStore
type memTrust struct {
	mu     sync.Mutex
	scores map[uuid.UUID]decimal.Decimal
	calls  int
}

func newMemTrust() *memTrust {
	return &memTrust{scores: make(map[uuid.UUID]decimal.Decimal)}
}

func (m *memTrust) Get(_ context.Context, userID uuid.UUID) (*models.UserTrust, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	score, ok := m.scores[userID]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return &models.UserTrust{UserID: userID, TrustScore: score}, nil
}

func (m *memTrust) Ensure(_ context.Context, userID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.scores[userID]; !ok {
		m.scores[userID] = decimal.NewFromInt(100)
	}
	return nil
}

// penalize mirrors the GREATEST(0, score - penalty) update; unknown users are left alone
func (m *memTrust) penalize(userID uuid.UUID, penalty decimal.Decimal) *decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	score, ok := m.scores[userID]
	if !ok {
		return nil
	}
	score = decimal.Max(decimal.Zero, score.Sub(penalty))
	m.scores[userID] = score
	return &score
}

func (m *memTrust) score(userID uuid.UUID) decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.scores[userID]
}

// recordingNotifier keeps every event synchronously
type recordingNotifier struct {
	mu     sync.Mutex
	events []sentEvent
}

type sentEvent struct {
	UserID uuid.UUID
	Kind   string
}

func (r *recordingNotifier) Notify(_ context.Context, userID uuid.UUID, kind, _, _ string, _ any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, sentEvent{UserID: userID, Kind: kind})
}

func (r *recordingNotifier) count(kind string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

type stubConfirmer struct {
	valid bool
	err   error
	calls atomic.Int32
}

func (c *stubConfirmer) Confirm(context.Context, map[string]string) (bool, error) {
	c.calls.Add(1)
	return c.valid, c.err
}

type stubGuard struct {
	held bool
}

func (g *stubGuard) Acquire(context.Context, string, time.Duration) (func(), bool, error) {
	return func() {}, !g.held, nil
}

type memArchive struct {
	mu     sync.Mutex
	bodies []string
}

func (a *memArchive) Archive(_ context.Context, _ string, body []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.bodies = append(a.bodies, string(body))
	return nil
}

const (
	testMerchantID = "10000100"
	testPassphrase = "jt7NOE43FZPn"
)

var testFeeRate = decimal.RequireFromString("0.035")

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// harness wires every service over the in-memory fakes with a fixed clock
type harness struct {
	store     *memStore
	trust     *memTrust
	notifier  *recordingNotifier
	confirmer *stubConfirmer
	guard     *stubGuard
	archive   *memArchive
	now       time.Time

	settler    *Settler
	webhook    *WebhookService
	requests   *PaymentRequestService
	cash       *CashSettlementService
	agreements *AgreementService

	requester uuid.UUID
	supporter uuid.UUID
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := logging.Discard()

	trust := newMemTrust()
	h := &harness{
		store:     newMemStore(trust),
		trust:     trust,
		notifier:  &recordingNotifier{},
		confirmer: &stubConfirmer{valid: true},
		guard:     &stubGuard{},
		archive:   &memArchive{},
		now:       time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
		requester: uuid.New(),
		supporter: uuid.New(),
	}
	clock := func() time.Time { return h.now }

	h.settler = NewSettler(h.store, h.notifier, testFeeRate, logger)
	h.settler.now = clock

	webhook, err := NewWebhookService(
		WebhookConfig{MerchantID: testMerchantID, Passphrase: testPassphrase},
		h.confirmer, h.store, h.settler, h.guard, h.archive, h.notifier, logger,
	)
	if err != nil {
		t.Fatalf("NewWebhookService: %v", err)
	}
	h.webhook = webhook

	h.requests = NewPaymentRequestService(h.store, payfast.Merchant{
		ID:         testMerchantID,
		Key:        "46f0cd694581a",
		Passphrase: testPassphrase,
		Host:       payfast.SandboxHost,
		ReturnURL:  "https://app.example.com/payments/return",
		CancelURL:  "https://app.example.com/payments/cancel",
		NotifyURL:  "https://api.example.com/webhook",
	}, h.notifier, logger)
	h.requests.now = clock

	h.cash = NewCashSettlementService(h.store, h.settler, h.notifier, logger)
	h.cash.now = clock

	h.agreements = NewAgreementService(h.store, h.trust, logger)
	h.agreements.now = clock

	h.trust.Ensure(context.Background(), h.requester)
	h.trust.Ensure(context.Background(), h.supporter)
	return h
}

// seedAgreement stores an agreement of 500 + 25 fee due on the given day
func (h *harness) seedAgreement(t *testing.T, status models.AgreementStatus, paybackDay time.Time) *models.Agreement {
	t.Helper()
	a := &models.Agreement{
		ID:             uuid.New(),
		RequesterID:    h.requester,
		SupporterID:    h.supporter,
		Amount:         d("500"),
		TransactionFee: d("25"),
		PaybackDay:     paybackDay,
		Status:         status,
	}
	if err := h.store.CreateAgreement(context.Background(), a); err != nil {
		t.Fatal(err)
	}
	return a
}

// seedPayment stores a pending gateway payment
func (h *harness) seedPayment(t *testing.T, a *models.Agreement, payer uuid.UUID, amount string) *models.Payment {
	t.Helper()
	p := &models.Payment{
		ID:          uuid.New(),
		AgreementID: a.ID,
		PayerID:     payer,
		Method:      models.PaymentMethodCard,
		Status:      models.PaymentStatusPending,
		Amount:      d(amount),
		CreatedAt:   h.now,
	}
	if err := h.store.CreatePayment(context.Background(), p); err != nil {
		t.Fatal(err)
	}
	return p
}

// itn builds a correctly signed notification for the payment
func itn(p *models.Payment, status, reference, gross string) Notification {
	params := map[string]string{
		"m_payment_id":   p.ID.String(),
		"pf_payment_id":  reference,
		"payment_status": status,
		"item_name":      ItemName(p.AgreementID, false),
		"amount_gross":   gross,
		"amount_fee":     "-12.08",
		"amount_net":     "512.92",
		"custom_str1":    p.AgreementID.String(),
		"custom_str2":    p.PayerID.String(),
		"merchant_id":    testMerchantID,
	}
	params[payfast.SignatureField] = payfast.Sign(params, testPassphrase)

	form := url.Values{}
	for k, v := range params {
		form.Set(k, v)
	}
	return Notification{Form: form, RawBody: []byte(form.Encode()), RemoteAddr: "197.97.145.144"}
}

func discardLogger() *logrus.Logger { return logging.Discard() }
