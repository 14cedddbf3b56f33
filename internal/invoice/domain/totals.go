package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// LineItemInput is one billable entry as submitted by a caller. Any totals
// a client sends alongside are ignored; this calculator is the sole source
// of truth for derived amounts.
type LineItemInput struct {
	Description string
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
}

// Totals is the server-computed monetary summary of an invoice.
type Totals struct {
	Subtotal    decimal.Decimal
	VATAmount   decimal.Decimal
	Total       decimal.Decimal
	LineAmounts []decimal.Decimal
}

var oneHundred = decimal.NewFromInt(100)

// ComputeTotals derives subtotal, VAT and total from line items and a flat
// VAT rate. Pure and deterministic; every line amount is rounded to the
// currency minor unit before summing.
func ComputeTotals(items []LineItemInput, vatRate decimal.Decimal) (Totals, error) {
	if len(items) == 0 {
		return Totals{}, ErrEmptyLineItems
	}
	if vatRate.IsNegative() {
		return Totals{}, ErrInvalidVATRate
	}

	subtotal := decimal.Zero
	lineAmounts := make([]decimal.Decimal, 0, len(items))
	for _, item := range items {
		if strings.TrimSpace(item.Description) == "" {
			return Totals{}, ErrBlankDescription
		}
		if !item.Quantity.IsPositive() {
			return Totals{}, ErrInvalidQuantity
		}
		if item.UnitPrice.IsNegative() {
			return Totals{}, ErrInvalidUnitPrice
		}
		amount := item.Quantity.Mul(item.UnitPrice).Round(2)
		lineAmounts = append(lineAmounts, amount)
		subtotal = subtotal.Add(amount)
	}

	vatAmount := subtotal.Mul(vatRate).Div(oneHundred).Round(2)
	total := subtotal.Add(vatAmount).Round(2)

	return Totals{
		Subtotal:    subtotal,
		VATAmount:   vatAmount,
		Total:       total,
		LineAmounts: lineAmounts,
	}, nil
}
