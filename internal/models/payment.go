package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentStatus represents the status of a single settlement attempt
type PaymentStatus string

const (
	PaymentStatusPending              PaymentStatus = "pending"
	PaymentStatusAwaitingConfirmation PaymentStatus = "awaiting_confirmation"
	PaymentStatusCompleted            PaymentStatus = "completed"
	PaymentStatusFailed               PaymentStatus = "failed"
)

// PaymentMethod is how the money moves
type PaymentMethod string

const (
	PaymentMethodCard PaymentMethod = "gateway-card"
	PaymentMethodEFT  PaymentMethod = "gateway-eft"
	PaymentMethodCash PaymentMethod = "cash"
)

// IsGateway reports whether the method settles through the external gateway
func (m PaymentMethod) IsGateway() bool {
	return m == PaymentMethodCard || m == PaymentMethodEFT
}

// Payment is one settlement attempt against an agreement.
// ID doubles as the gateway correlator (m_payment_id).
type Payment struct {
	ID          uuid.UUID     `json:"id"`
	AgreementID uuid.UUID     `json:"agreement_id"`
	PayerID     uuid.UUID     `json:"payer_id"`
	Method      PaymentMethod `json:"method"`
	Status      PaymentStatus `json:"status"`

	// Amounts
	Amount    decimal.Decimal `json:"amount"` // Authoritative charge, computed server-side
	Fee       decimal.Decimal `json:"fee"`
	NetAmount decimal.Decimal `json:"net_amount"`

	TransactionReference string `json:"transaction_reference,omitempty"` // Gateway pf_payment_id, set on completion
	FailureReason        string `json:"failure_reason,omitempty"`

	// RefundRequired marks money captured after the agreement had closed; it never reaches the ledger
	RefundRequired bool `json:"refund_required,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// PaymentPatch carries the fields written by a conditional status update
type PaymentPatch struct {
	Status               PaymentStatus
	TransactionReference string
	Fee                  decimal.Decimal
	NetAmount            decimal.Decimal
	FailureReason        string
	CompletedAt          *time.Time
}

// CreatePaymentRequest is sent by either party to start a gateway payment
type CreatePaymentRequest struct {
	Amount *decimal.Decimal `json:"amount,omitempty"` // Optional ceiling for repayments
	Method string           `json:"method" validate:"omitempty,oneof=card eft"`
}

// DeclareCashRequest is sent by the requester after handing over cash
type DeclareCashRequest struct {
	Amount *decimal.Decimal `json:"amount,omitempty"`
	Note   string           `json:"note" validate:"max=500"`
}

// DisputeCashRequest is sent by the supporter when the declared cash never arrived
type DisputeCashRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}
