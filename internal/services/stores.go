package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"handshake-backend/internal/models"
)

// LedgerStore is the persistence the settlement engine needs. Implemented by
// repositories.LedgerStore over PostgreSQL.
type LedgerStore interface {
	GetAgreement(ctx context.Context, id uuid.UUID) (*models.Agreement, error)
	CreateAgreement(ctx context.Context, a *models.Agreement) error
	UpdateAgreementIfVersion(ctx context.Context, id uuid.UUID, version int64, patch models.AgreementPatch) (bool, error)
	ListOverdueAgreements(ctx context.Context, before time.Time, limit int) ([]*models.Agreement, error)

	GetPayment(ctx context.Context, id uuid.UUID) (*models.Payment, error)
	CreatePayment(ctx context.Context, p *models.Payment) error
	UpdatePaymentIfStatus(ctx context.Context, id uuid.UUID, expected models.PaymentStatus, patch models.PaymentPatch) (bool, error)
	ListPaymentsByAgreement(ctx context.Context, agreementID uuid.UUID) ([]*models.Payment, error)
	ListPaymentsMissingRevenue(ctx context.Context, limit int) ([]*models.Payment, error)

	// ApplySettlement completes the payment, accumulates it onto the agreement and applies
	// any trust penalty atomically. A closed agreement leaves the ledger alone and flags
	// the payment for refund.
	ApplySettlement(ctx context.Context, s models.Settlement) (*models.SettlementResult, error)
	AppendRevenueEntry(ctx context.Context, e *models.RevenueEntry) error
}

// TrustStore holds user trust scores
type TrustStore interface {
	Get(ctx context.Context, userID uuid.UUID) (*models.UserTrust, error)
	Ensure(ctx context.Context, userID uuid.UUID) error
}

// Confirmer asks the gateway whether a notification really came from it
type Confirmer interface {
	Confirm(ctx context.Context, params map[string]string) (bool, error)
}

// DeliveryGuard serializes concurrent deliveries of the same notification across instances
type DeliveryGuard interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), acquired bool, err error)
}

// Archiver keeps raw notification bodies for audit
type Archiver interface {
	Archive(ctx context.Context, paymentID string, body []byte) error
}

// Notifier is the fire-and-forget notification sink
type Notifier interface {
	Notify(ctx context.Context, userID uuid.UUID, kind, title, message string, payload any)
}
