package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"handshake-backend/internal/models"
)

// LedgerStore is the payment ledger as the settlement services see it: payments,
// agreements, the single-transaction settlement and the revenue journal behind one value.
type LedgerStore struct {
	Agreements  *AgreementRepository
	Payments    *PaymentRepository
	Settlements *SettlementRepository
	Revenue     *RevenueRepository
}

func NewLedgerStore(db *pgxpool.Pool) *LedgerStore {
	return &LedgerStore{
		Agreements:  NewAgreementRepository(db),
		Payments:    NewPaymentRepository(db),
		Settlements: NewSettlementRepository(db),
		Revenue:     NewRevenueRepository(db),
	}
}

func (s *LedgerStore) GetAgreement(ctx context.Context, id uuid.UUID) (*models.Agreement, error) {
	return s.Agreements.Get(ctx, id)
}

func (s *LedgerStore) CreateAgreement(ctx context.Context, a *models.Agreement) error {
	return s.Agreements.Create(ctx, a)
}

func (s *LedgerStore) UpdateAgreementIfVersion(ctx context.Context, id uuid.UUID, version int64, patch models.AgreementPatch) (bool, error) {
	return s.Agreements.UpdateIfVersion(ctx, id, version, patch)
}

func (s *LedgerStore) ListOverdueAgreements(ctx context.Context, before time.Time, limit int) ([]*models.Agreement, error) {
	return s.Agreements.ListOverdue(ctx, before, limit)
}

func (s *LedgerStore) GetPayment(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	return s.Payments.Get(ctx, id)
}

func (s *LedgerStore) CreatePayment(ctx context.Context, p *models.Payment) error {
	return s.Payments.Create(ctx, p)
}

func (s *LedgerStore) UpdatePaymentIfStatus(ctx context.Context, id uuid.UUID, expected models.PaymentStatus, patch models.PaymentPatch) (bool, error) {
	return s.Payments.UpdateIfStatus(ctx, id, expected, patch)
}

func (s *LedgerStore) ListPaymentsByAgreement(ctx context.Context, agreementID uuid.UUID) ([]*models.Payment, error) {
	return s.Payments.ListByAgreement(ctx, agreementID)
}

func (s *LedgerStore) ListPaymentsMissingRevenue(ctx context.Context, limit int) ([]*models.Payment, error) {
	return s.Payments.ListMissingRevenue(ctx, limit)
}

func (s *LedgerStore) ApplySettlement(ctx context.Context, settlement models.Settlement) (*models.SettlementResult, error) {
	return s.Settlements.Apply(ctx, settlement)
}

func (s *LedgerStore) AppendRevenueEntry(ctx context.Context, e *models.RevenueEntry) error {
	return s.Revenue.Append(ctx, e)
}
