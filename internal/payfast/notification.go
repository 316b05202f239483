package payfast

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Gateway payment_status values
const (
	StatusComplete  = "COMPLETE"
	StatusFailed    = "FAILED"
	StatusCancelled = "CANCELLED"
)

// ErrMalformedNotification is returned when an ITN is missing or has unusable fields
var ErrMalformedNotification = errors.New("malformed notification")

var validate = validator.New()

// Notification is an instant transaction notification posted by the gateway
type Notification struct {
	MerchantID    string `validate:"required"`
	PaymentID     string `validate:"required,uuid"` // m_payment_id, our correlator
	Reference     string `validate:"required"`      // pf_payment_id
	PaymentStatus string `validate:"required"`
	AmountGross   string `validate:"required"`
	AgreementID   string `validate:"required,uuid"` // custom_str1
	CallerID      string `validate:"omitempty,uuid"` // custom_str2
	Signature     string `validate:"required"`

	// Params holds every posted field, first value per key, in the shape used for signing
	Params map[string]string
}

// ParseNotification flattens a posted form into a Notification. It does not validate.
func ParseNotification(form url.Values) *Notification {
	params := make(map[string]string, len(form))
	for k, v := range form {
		if len(v) > 0 {
			params[k] = v[0]
		}
	}

	return &Notification{
		MerchantID:    params["merchant_id"],
		PaymentID:     params["m_payment_id"],
		Reference:     params["pf_payment_id"],
		PaymentStatus: params["payment_status"],
		AmountGross:   params["amount_gross"],
		AgreementID:   params["custom_str1"],
		CallerID:      params["custom_str2"],
		Signature:     params[SignatureField],
		Params:        params,
	}
}

// Validated holds the typed values of a notification that passed Validate
type Validated struct {
	PaymentID   uuid.UUID
	AgreementID uuid.UUID
	CallerID    uuid.UUID
	Gross       decimal.Decimal
	Complete    bool
}

// Validate checks identifiers are well-formed and the gross amount is a finite positive number
func (n *Notification) Validate() (*Validated, error) {
	if err := validate.Struct(n); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedNotification, err)
	}

	paymentID, err := uuid.Parse(n.PaymentID)
	if err != nil {
		return nil, fmt.Errorf("%w: m_payment_id: %v", ErrMalformedNotification, err)
	}
	agreementID, err := uuid.Parse(n.AgreementID)
	if err != nil {
		return nil, fmt.Errorf("%w: custom_str1: %v", ErrMalformedNotification, err)
	}

	var callerID uuid.UUID
	if n.CallerID != "" {
		callerID, err = uuid.Parse(n.CallerID)
		if err != nil {
			return nil, fmt.Errorf("%w: custom_str2: %v", ErrMalformedNotification, err)
		}
	}

	// decimal rejects NaN and Inf, so anything that parses is finite
	gross, err := decimal.NewFromString(n.AmountGross)
	if err != nil {
		return nil, fmt.Errorf("%w: amount_gross %q", ErrMalformedNotification, n.AmountGross)
	}
	if !gross.IsPositive() {
		return nil, fmt.Errorf("%w: amount_gross must be positive", ErrMalformedNotification)
	}

	return &Validated{
		PaymentID:   paymentID,
		AgreementID: agreementID,
		CallerID:    callerID,
		Gross:       gross,
		Complete:    n.PaymentStatus == StatusComplete,
	}, nil
}
