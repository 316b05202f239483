package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Notification types
const (
	NotificationPaymentInitiated         = "payment_initiated"
	NotificationPaymentReceived          = "payment_received"
	NotificationPaymentFailed            = "payment_failed"
	NotificationAgreementFunded          = "agreement_funded"
	NotificationAgreementCompleted       = "agreement_completed"
	NotificationCashConfirmationRequired = "cash_confirmation_required"
	NotificationCashDisputed             = "cash_disputed"
	NotificationRepaymentOverdue         = "repayment_overdue"
	NotificationTrustScoreChanged        = "trust_score_changed"
	NotificationRefundRequired           = "refund_required"
)

// Notification is an in-app message for one user
type Notification struct {
	ID        int64           `json:"id"`
	UserID    uuid.UUID       `json:"user_id"`
	Type      string          `json:"type"`
	Title     string          `json:"title"`
	Message   string          `json:"message"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Read      bool            `json:"read"`
	CreatedAt time.Time       `json:"created_at"`
}
