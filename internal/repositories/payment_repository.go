package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"handshake-backend/internal/models"
)

type PaymentRepository struct {
	DB *pgxpool.Pool
}

func NewPaymentRepository(db *pgxpool.Pool) *PaymentRepository {
	return &PaymentRepository{DB: db}
}

const paymentColumns = `
	id, agreement_id, payer_id, method, status,
	amount, fee, net_amount,
	COALESCE(transaction_reference, ''), COALESCE(failure_reason, ''),
	refund_required, created_at, completed_at
`

func scanPayment(row pgx.Row) (*models.Payment, error) {
	p := &models.Payment{}
	err := row.Scan(
		&p.ID, &p.AgreementID, &p.PayerID, &p.Method, &p.Status,
		&p.Amount, &p.Fee, &p.NetAmount,
		&p.TransactionReference, &p.FailureReason,
		&p.RefundRequired, &p.CreatedAt, &p.CompletedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}
	return p, nil
}

// Create inserts a payment in whatever initial status the caller set
func (r *PaymentRepository) Create(ctx context.Context, p *models.Payment) error {
	query := `
		INSERT INTO payments (
			id, agreement_id, payer_id, method, status, amount, fee, net_amount
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`

	err := r.DB.QueryRow(ctx, query,
		p.ID, p.AgreementID, p.PayerID, p.Method, p.Status, p.Amount, p.Fee, p.NetAmount,
	).Scan(&p.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

// Get retrieves a payment by its correlator ID
func (r *PaymentRepository) Get(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	return scanPayment(r.DB.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id))
}

// UpdateIfStatus writes the patch only while the payment is still in the expected status.
// Returns false when another writer got there first.
func (r *PaymentRepository) UpdateIfStatus(ctx context.Context, id uuid.UUID, expected models.PaymentStatus, patch models.PaymentPatch) (bool, error) {
	return updatePaymentIfStatus(ctx, r.DB, id, expected, patch)
}

// execer is satisfied by both the pool and a transaction
type execer interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func updatePaymentIfStatus(ctx context.Context, db execer, id uuid.UUID, expected models.PaymentStatus, patch models.PaymentPatch) (bool, error) {
	query := `
		UPDATE payments
		SET status                = $3,
		    transaction_reference = COALESCE(NULLIF($4, ''), transaction_reference),
		    fee                   = $5,
		    net_amount            = $6,
		    failure_reason        = NULLIF($7, ''),
		    completed_at          = $8
		WHERE id = $1 AND status = $2
		RETURNING id
	`

	var updated uuid.UUID
	err := db.QueryRow(ctx, query,
		id, expected, patch.Status, patch.TransactionReference,
		patch.Fee, patch.NetAmount, patch.FailureReason, patch.CompletedAt,
	).Scan(&updated)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to update payment: %w", err)
	}
	return true, nil
}

// ListByAgreement returns an agreement's payments, newest first
func (r *PaymentRepository) ListByAgreement(ctx context.Context, agreementID uuid.UUID) ([]*models.Payment, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE agreement_id = $1
		ORDER BY created_at DESC
	`, agreementID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []*models.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

// ListMissingRevenue returns completed ledger payments that have no revenue entry yet
func (r *PaymentRepository) ListMissingRevenue(ctx context.Context, limit int) ([]*models.Payment, error) {
	if limit <= 0 {
		limit = 200
	}

	rows, err := r.DB.Query(ctx, `
		SELECT p.id, p.agreement_id, p.payer_id, p.method, p.status,
		       p.amount, p.fee, p.net_amount,
		       COALESCE(p.transaction_reference, ''), COALESCE(p.failure_reason, ''),
		       p.refund_required, p.created_at, p.completed_at
		FROM payments p
		LEFT JOIN revenue_entries re ON re.payment_id = p.id
		WHERE p.status = 'completed' AND NOT p.refund_required AND re.id IS NULL
		ORDER BY p.completed_at
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []*models.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}
