package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"handshake-backend/internal/models"
)

// SettlementRepository runs the payment-completion and agreement-accumulation writes
// as one database transaction
type SettlementRepository struct {
	DB *pgxpool.Pool
}

func NewSettlementRepository(db *pgxpool.Pool) *SettlementRepository {
	return &SettlementRepository{DB: db}
}

// Apply completes the payment (only if still in s.ExpectedStatus) and adds its gross and net
// to the agreement with server-side increments, along with any lateness trust penalty.
// ErrConflict means the payment left the expected status before this transaction could
// claim it; nothing was written.
func (r *SettlementRepository) Apply(ctx context.Context, s models.Settlement) (*models.SettlementResult, error) {
	var result *models.SettlementResult

	err := pgx.BeginFunc(ctx, r.DB, func(tx pgx.Tx) error {
		at := s.At
		ok, err := updatePaymentIfStatus(ctx, tx, s.PaymentID, s.ExpectedStatus, models.PaymentPatch{
			Status:               models.PaymentStatusCompleted,
			TransactionReference: s.Reference,
			Fee:                  s.Fee,
			NetAmount:            s.Net,
			CompletedAt:          &at,
		})
		if err != nil {
			return err
		}
		if !ok {
			return ErrConflict
		}

		payment, err := scanPayment(tx.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, s.PaymentID))
		if err != nil {
			return err
		}

		// Row lock so concurrent settlements on the same agreement serialize here
		prior, err := scanAgreement(tx.QueryRow(ctx, `SELECT `+agreementColumns+` FROM agreements WHERE id = $1 FOR UPDATE`, payment.AgreementID))
		if err != nil {
			return err
		}

		result = &models.SettlementResult{
			Payment:     payment,
			Agreement:   prior,
			PriorStatus: prior.Status,
		}
		if prior.IsTerminal() {
			// Captured after close: keep it off the ledger and flag it for refund
			if _, err := tx.Exec(ctx, `UPDATE payments SET refund_required = TRUE WHERE id = $1`, payment.ID); err != nil {
				return err
			}
			payment.RefundRequired = true
			return nil
		}

		updated, err := scanAgreement(tx.QueryRow(ctx, `
			UPDATE agreements
			SET amount_paid         = amount_paid + $2,
			    net_amount_received = net_amount_received + $3,
			    days_late           = GREATEST(days_late, $4),
			    status = CASE
			        WHEN amount_paid + $2 >= amount + transaction_fee + late_fee THEN 'completed'
			        WHEN status IN ('pending', 'approved') THEN 'active'
			        ELSE status
			    END,
			    completed_at = CASE
			        WHEN amount_paid + $2 >= amount + transaction_fee + late_fee THEN $5
			        ELSE completed_at
			    END,
			    version    = version + 1,
			    updated_at = $5
			WHERE id = $1
			RETURNING `+agreementColumns,
			payment.AgreementID, s.Gross, s.Net, s.DaysLate, s.At,
		))
		if err != nil {
			return err
		}

		result.Agreement = updated
		result.Applied = true

		if s.TrustPenalty.IsPositive() {
			score, err := applyTrustPenalty(ctx, tx, s.PenaltyUserID, s.TrustPenalty)
			if err != nil {
				return err
			}
			result.TrustScore = score
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrConflict) || errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("settlement transaction failed: %w", err)
	}

	return result, nil
}
