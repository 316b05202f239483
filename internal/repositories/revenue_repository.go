package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"handshake-backend/internal/models"
)

type RevenueRepository struct {
	DB *pgxpool.Pool
}

func NewRevenueRepository(db *pgxpool.Pool) *RevenueRepository {
	return &RevenueRepository{DB: db}
}

// Append records the platform fee for a payment. A second append for the same payment is a no-op.
func (r *RevenueRepository) Append(ctx context.Context, e *models.RevenueEntry) error {
	query := `
		INSERT INTO revenue_entries (payment_id, agreement_id, amount, method)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (payment_id) DO NOTHING
	`

	if _, err := r.DB.Exec(ctx, query, e.PaymentID, e.AgreementID, e.Amount, e.Method); err != nil {
		return fmt.Errorf("failed to append revenue entry: %w", err)
	}
	return nil
}

// Total sums recorded platform revenue in [from, to)
func (r *RevenueRepository) Total(ctx context.Context, from, to time.Time) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := r.DB.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0)
		FROM revenue_entries
		WHERE created_at >= $1 AND created_at < $2
	`, from, to).Scan(&total)
	return total, err
}
