package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Settlement is the atomic ledger step for one completed payment: the payment leaves
// ExpectedStatus for completed and the agreement accumulates Gross/Net, in one transaction.
type Settlement struct {
	PaymentID      uuid.UUID
	ExpectedStatus PaymentStatus
	Reference      string
	Gross          decimal.Decimal
	Fee            decimal.Decimal
	Net            decimal.Decimal
	DaysLate       int
	At             time.Time

	// Trust penalty for the late payer, written in the same transaction as the ledger change
	PenaltyUserID uuid.UUID
	TrustPenalty  decimal.Decimal
}

// SettlementResult reports what the settlement did to the agreement
type SettlementResult struct {
	Payment     *Payment
	Agreement   *Agreement       // State after the settlement
	PriorStatus AgreementStatus  // Agreement status before the settlement
	Applied     bool             // False when the agreement was already terminal
	TrustScore  *decimal.Decimal // Payer's score after a lateness penalty, nil when none applied
}

// AgreementPatch lists the fields an optimistic agreement update may set; nil means unchanged
type AgreementPatch struct {
	Status   *AgreementStatus
	LateFee  *decimal.Decimal
	DaysLate *int
	Penalty  *PenaltyTerms
}
