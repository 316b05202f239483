package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"handshake-backend/internal/models"
)

type TrustRepository struct {
	DB *pgxpool.Pool
}

func NewTrustRepository(db *pgxpool.Pool) *TrustRepository {
	return &TrustRepository{DB: db}
}

// Get returns the user's trust record
func (r *TrustRepository) Get(ctx context.Context, userID uuid.UUID) (*models.UserTrust, error) {
	u := &models.UserTrust{}
	err := r.DB.QueryRow(ctx, `
		SELECT id, display_name, trust_score, updated_at
		FROM users
		WHERE id = $1
	`, userID).Scan(&u.UserID, &u.DisplayName, &u.TrustScore, &u.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return u, nil
}

// applyTrustPenalty lowers the score by penalty, floored at zero. Runs inside the settlement
// transaction; a user without a trust row is skipped (nil score).
func applyTrustPenalty(ctx context.Context, db execer, userID uuid.UUID, penalty decimal.Decimal) (*decimal.Decimal, error) {
	var score decimal.Decimal
	err := db.QueryRow(ctx, `
		UPDATE users
		SET trust_score = GREATEST(0, trust_score - $2),
		    updated_at  = NOW()
		WHERE id = $1
		RETURNING trust_score
	`, userID, penalty).Scan(&score)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to apply trust penalty: %w", err)
	}
	return &score, nil
}

// Ensure creates the trust record for a user the first time they take part in an agreement
func (r *TrustRepository) Ensure(ctx context.Context, userID uuid.UUID) error {
	_, err := r.DB.Exec(ctx, `
		INSERT INTO users (id) VALUES ($1)
		ON CONFLICT (id) DO NOTHING
	`, userID)
	if err != nil {
		return fmt.Errorf("failed to ensure user: %w", err)
	}
	return nil
}
