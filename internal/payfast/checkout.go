package payfast

import (
	"html/template"
	"io"
	"net/url"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Merchant is our side of the gateway contract, fixed at process start
type Merchant struct {
	ID         string
	Key        string
	Passphrase string
	Host       string // LiveHost or SandboxHost
	ReturnURL  string
	CancelURL  string
	NotifyURL  string
}

// CheckoutRequest describes one outbound charge
type CheckoutRequest struct {
	PaymentID   uuid.UUID
	AgreementID uuid.UUID
	CallerID    uuid.UUID
	Amount      decimal.Decimal
	ItemName    string
	Method      string // "cc" or "eft"
}

// Checkout is a signed field set ready to be sent to the gateway
type Checkout struct {
	ProcessURL string            `json:"process_url"`
	Fields     map[string]string `json:"fields"`
}

// BuildCheckout assembles and signs the redirect payload. Callback URLs always come
// from the merchant configuration, never from the caller.
func (m Merchant) BuildCheckout(req CheckoutRequest) *Checkout {
	fields := map[string]string{
		"merchant_id":    m.ID,
		"merchant_key":   m.Key,
		"return_url":     m.ReturnURL,
		"cancel_url":     m.CancelURL,
		"notify_url":     m.NotifyURL,
		"m_payment_id":   req.PaymentID.String(),
		"amount":         req.Amount.StringFixed(2),
		"item_name":      req.ItemName,
		"payment_method": req.Method,
		"custom_str1":    req.AgreementID.String(),
		"custom_str2":    req.CallerID.String(),
	}
	fields[SignatureField] = Sign(fields, m.Passphrase)

	return &Checkout{
		ProcessURL: strings.TrimRight(m.Host, "/") + ProcessPath,
		Fields:     fields,
	}
}

// RedirectURL renders the checkout as a GET to the process URL
func (c *Checkout) RedirectURL() string {
	return c.ProcessURL + "?" + Encode(c.Fields) + "&" + SignatureField + "=" + url.QueryEscape(c.Fields[SignatureField])
}

var formTemplate = template.Must(template.New("checkout").Parse(`<!DOCTYPE html>
<html><body onload="document.forms[0].submit()">
<form action="{{.ProcessURL}}" method="post">
{{range .Inputs}}<input type="hidden" name="{{.Name}}" value="{{.Value}}">
{{end}}<noscript><button type="submit">Continue to payment</button></noscript>
</form>
</body></html>
`))

type formInput struct {
	Name  string
	Value string
}

// WriteForm renders an auto-submitting HTML form that posts the checkout
func (c *Checkout) WriteForm(w io.Writer) error {
	names := make([]string, 0, len(c.Fields))
	for k, v := range c.Fields {
		if v != "" {
			names = append(names, k)
		}
	}
	sort.Strings(names)

	inputs := make([]formInput, 0, len(names))
	for _, k := range names {
		inputs = append(inputs, formInput{Name: k, Value: c.Fields[k]})
	}

	return formTemplate.Execute(w, struct {
		ProcessURL string
		Inputs     []formInput
	}{c.ProcessURL, inputs})
}
