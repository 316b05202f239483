package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"handshake-backend/internal/models"
)

type AgreementRepository struct {
	DB *pgxpool.Pool
}

func NewAgreementRepository(db *pgxpool.Pool) *AgreementRepository {
	return &AgreementRepository{DB: db}
}

const agreementColumns = `
	id, requester_id, supporter_id,
	amount, transaction_fee, late_fee, amount_paid, net_amount_received,
	payback_day, days_late, status,
	penalty_enabled, COALESCE(penalty_type, ''), penalty_amount, penalty_grace_days, penalty_accepted,
	version, created_at, updated_at, completed_at
`

func scanAgreement(row pgx.Row) (*models.Agreement, error) {
	a := &models.Agreement{}
	err := row.Scan(
		&a.ID, &a.RequesterID, &a.SupporterID,
		&a.Amount, &a.TransactionFee, &a.LateFee, &a.AmountPaid, &a.NetAmountReceived,
		&a.PaybackDay, &a.DaysLate, &a.Status,
		&a.Penalty.Enabled, &a.Penalty.Type, &a.Penalty.Amount, &a.Penalty.GracePeriodDays, &a.Penalty.Accepted,
		&a.Version, &a.CreatedAt, &a.UpdatedAt, &a.CompletedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}
	return a, nil
}

// Create inserts a new pending agreement
func (r *AgreementRepository) Create(ctx context.Context, a *models.Agreement) error {
	query := `
		INSERT INTO agreements (
			id, requester_id, supporter_id, amount, transaction_fee, payback_day, status
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING version, created_at, updated_at
	`

	err := r.DB.QueryRow(ctx, query,
		a.ID, a.RequesterID, a.SupporterID, a.Amount, a.TransactionFee, a.PaybackDay, a.Status,
	).Scan(&a.Version, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create agreement: %w", err)
	}
	return nil
}

// Get retrieves an agreement by ID
func (r *AgreementRepository) Get(ctx context.Context, id uuid.UUID) (*models.Agreement, error) {
	return scanAgreement(r.DB.QueryRow(ctx, `SELECT `+agreementColumns+` FROM agreements WHERE id = $1`, id))
}

// UpdateIfVersion applies the patch only if the row still carries the expected version.
// Completed agreements are never touched.
func (r *AgreementRepository) UpdateIfVersion(ctx context.Context, id uuid.UUID, version int64, patch models.AgreementPatch) (bool, error) {
	var status *string
	if patch.Status != nil {
		s := string(*patch.Status)
		status = &s
	}

	var penaltyEnabled, penaltyAccepted *bool
	var penaltyType *string
	var penaltyAmount *decimal.Decimal
	var penaltyGrace *int
	if p := patch.Penalty; p != nil {
		penaltyEnabled = &p.Enabled
		penaltyAccepted = &p.Accepted
		t := string(p.Type)
		penaltyType = &t
		penaltyAmount = &p.Amount
		penaltyGrace = &p.GracePeriodDays
	}

	query := `
		UPDATE agreements
		SET status             = COALESCE($3, status),
		    late_fee           = COALESCE($4, late_fee),
		    days_late          = COALESCE($5, days_late),
		    penalty_enabled    = COALESCE($6, penalty_enabled),
		    penalty_type       = CASE WHEN $6::boolean IS NULL THEN penalty_type ELSE NULLIF($7::text, '') END,
		    penalty_amount     = COALESCE($8, penalty_amount),
		    penalty_grace_days = COALESCE($9, penalty_grace_days),
		    penalty_accepted   = COALESCE($10, penalty_accepted),
		    version            = version + 1,
		    updated_at         = NOW()
		WHERE id = $1 AND version = $2 AND status <> 'completed'
	`

	tag, err := r.DB.Exec(ctx, query,
		id, version, status, patch.LateFee, patch.DaysLate,
		penaltyEnabled, penaltyType, penaltyAmount, penaltyGrace, penaltyAccepted,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update agreement: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListOverdue returns active agreements whose payback day is before the given date
func (r *AgreementRepository) ListOverdue(ctx context.Context, before time.Time, limit int) ([]*models.Agreement, error) {
	if limit <= 0 {
		limit = 500
	}

	rows, err := r.DB.Query(ctx, `
		SELECT `+agreementColumns+`
		FROM agreements
		WHERE status = 'active' AND payback_day < $1
		ORDER BY payback_day
		LIMIT $2
	`, before, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var agreements []*models.Agreement
	for rows.Next() {
		a, err := scanAgreement(rows)
		if err != nil {
			return nil, err
		}
		agreements = append(agreements, a)
	}
	return agreements, rows.Err()
}
