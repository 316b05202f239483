package receipt

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf/v2"
	"github.com/shopspring/decimal"

	"handshake-backend/internal/models"
	"handshake-backend/internal/timeutil"
)

// Data is everything printed on a payment receipt
type Data struct {
	Payment   *models.Payment
	Agreement *models.Agreement
	PayerName string
	PayeeName string
}

// Render produces a single-page A4 PDF receipt for a completed payment
func Render(d Data) ([]byte, error) {
	if d.Payment == nil || d.Agreement == nil {
		return nil, fmt.Errorf("receipt needs a payment and its agreement")
	}
	p, a := d.Payment, d.Agreement

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 15, 15)
	pdf.AddPage()

	// Header
	pdf.SetFont("Arial", "B", 16)
	pdf.CellFormat(180, 10, "Handshake - Payment Receipt", "", 1, "C", false, 0, "")
	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(180, 6, fmt.Sprintf("Generated: %s", timeutil.Now().Format("02 Jan 2006 15:04")), "", 1, "C", false, 0, "")
	pdf.Ln(5)

	section := func(title string) {
		pdf.SetFillColor(240, 240, 240)
		pdf.SetFont("Arial", "B", 12)
		pdf.CellFormat(180, 8, title, "1", 1, "L", true, 0, "")
		pdf.SetFont("Arial", "", 11)
	}
	row := func(label, value string) {
		pdf.CellFormat(60, 7, label, "LB", 0, "L", false, 0, "")
		pdf.CellFormat(120, 7, value, "RB", 1, "L", false, 0, "")
	}

	section("Payment")
	row("Receipt no.", p.ID.String())
	row("Method", methodLabel(p.Method))
	row("Reference", p.TransactionReference)
	if p.CompletedAt != nil {
		row("Paid on", p.CompletedAt.In(timeutil.Local).Format("02 Jan 2006 15:04"))
	}
	row("Paid by", d.PayerName)
	row("Paid to", d.PayeeName)
	pdf.Ln(4)

	section("Amounts")
	row("Gross", "R "+p.Amount.StringFixed(2))
	row("Platform fee", "R "+p.Fee.StringFixed(2))
	row("Net", "R "+p.NetAmount.StringFixed(2))
	pdf.Ln(4)

	section("Agreement")
	row("Agreement", a.ID.String())
	row("Total due", "R "+a.TotalDue().StringFixed(2))
	row("Paid to date", "R "+a.AmountPaid.StringFixed(2))
	outstanding := a.Outstanding()
	if outstanding.IsNegative() {
		outstanding = decimal.Zero
	}
	row("Outstanding", "R "+outstanding.StringFixed(2))
	row("Status", string(a.Status))

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to render receipt: %w", err)
	}
	return buf.Bytes(), nil
}

func methodLabel(m models.PaymentMethod) string {
	switch m {
	case models.PaymentMethodCard:
		return "Card"
	case models.PaymentMethodEFT:
		return "Instant EFT"
	case models.PaymentMethodCash:
		return "Cash"
	}
	return string(m)
}
