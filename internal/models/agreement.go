package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AgreementStatus represents where a handshake is in its lifecycle
type AgreementStatus string

const (
	AgreementStatusPending   AgreementStatus = "pending"
	AgreementStatusApproved  AgreementStatus = "approved"
	AgreementStatusActive    AgreementStatus = "active"
	AgreementStatusCompleted AgreementStatus = "completed"
	AgreementStatusRejected  AgreementStatus = "rejected"
	AgreementStatusDefaulted AgreementStatus = "defaulted"
)

// PenaltyType selects how the late fee is derived once the grace period runs out
type PenaltyType string

const (
	PenaltyTypeFixed      PenaltyType = "fixed"
	PenaltyTypePercentage PenaltyType = "percentage"
)

// PenaltyTerms are set by the supporter and must be accepted by the requester
type PenaltyTerms struct {
	Enabled         bool            `json:"enabled"`
	Type            PenaltyType     `json:"type,omitempty"`
	Amount          decimal.Decimal `json:"amount"`            // Fixed amount, or percent of principal
	GracePeriodDays int             `json:"grace_period_days"` // Days after payback day before a fee accrues
	Accepted        bool            `json:"accepted"`
}

// Agreement is the peer-to-peer loan ("handshake") between a requester and a supporter
type Agreement struct {
	ID          uuid.UUID `json:"id"`
	RequesterID uuid.UUID `json:"requester_id"`
	SupporterID uuid.UUID `json:"supporter_id"`

	// Amounts
	Amount            decimal.Decimal `json:"amount"`
	TransactionFee    decimal.Decimal `json:"transaction_fee"`
	LateFee           decimal.Decimal `json:"late_fee"`
	AmountPaid        decimal.Decimal `json:"amount_paid"`
	NetAmountReceived decimal.Decimal `json:"net_amount_received"`

	PaybackDay time.Time       `json:"payback_day"`
	DaysLate   int             `json:"days_late"`
	Status     AgreementStatus `json:"status"`
	Penalty    PenaltyTerms    `json:"penalty"`

	// Version is bumped on every write and used for optimistic updates
	Version int64 `json:"version"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// TotalDue is principal plus all fees accrued so far
func (a *Agreement) TotalDue() decimal.Decimal {
	return a.Amount.Add(a.TransactionFee).Add(a.LateFee)
}

// Outstanding is what is still owed; it can go negative by the rounding of the last payment
func (a *Agreement) Outstanding() decimal.Decimal {
	return a.TotalDue().Sub(a.AmountPaid)
}

// IsTerminal reports whether the agreement can no longer move money
func (a *Agreement) IsTerminal() bool {
	return a.Status == AgreementStatusCompleted || a.Status == AgreementStatusRejected
}

// IsParty reports whether the user is the requester or the supporter
func (a *Agreement) IsParty(userID uuid.UUID) bool {
	return userID == a.RequesterID || userID == a.SupporterID
}

// CounterpartyOf returns the other side of the handshake
func (a *Agreement) CounterpartyOf(userID uuid.UUID) uuid.UUID {
	if userID == a.RequesterID {
		return a.SupporterID
	}
	return a.RequesterID
}

// CreateAgreementRequest is sent by the requester to open a handshake
type CreateAgreementRequest struct {
	SupporterID    string          `json:"supporter_id" validate:"required,uuid"`
	Amount         decimal.Decimal `json:"amount"`
	TransactionFee decimal.Decimal `json:"transaction_fee"`
	PaybackDay     string          `json:"payback_day" validate:"required,datetime=2006-01-02"`
}

// SetPenaltyTermsRequest is sent by the supporter while the agreement is pending
type SetPenaltyTermsRequest struct {
	Enabled         bool            `json:"enabled"`
	Type            PenaltyType     `json:"type" validate:"omitempty,oneof=fixed percentage"`
	Amount          decimal.Decimal `json:"amount"`
	GracePeriodDays int             `json:"grace_period_days" validate:"gte=0,lte=365"`
}
