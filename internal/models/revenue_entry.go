package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RevenueEntry is an append-only record of the platform fee taken on a completed payment
type RevenueEntry struct {
	ID          int64           `json:"id"`
	PaymentID   uuid.UUID       `json:"payment_id"` // Unique: one entry per payment
	AgreementID uuid.UUID       `json:"agreement_id"`
	Amount      decimal.Decimal `json:"amount"`
	Method      PaymentMethod   `json:"method"`
	CreatedAt   time.Time       `json:"created_at"`
}
