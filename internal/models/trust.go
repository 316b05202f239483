package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// UserTrust is the slice of a user profile this service owns
type UserTrust struct {
	UserID      uuid.UUID       `json:"user_id"`
	DisplayName string          `json:"display_name"`
	TrustScore  decimal.Decimal `json:"trust_score"`
	UpdatedAt   time.Time       `json:"updated_at"`
}
