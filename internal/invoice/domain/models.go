// Package domain contains the invoice aggregate, its lifecycle rules and
// the totals calculator.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// Invoice is the billing record for one period of a company's subscription.
// Monetary fields are always derived server-side: subtotal, vat_amount and
// total_amount come from ComputeTotals, amount_paid and balance_due only
// move through the reconciliation service.
type Invoice struct {
	ID                 snowflake.ID    `json:"id" gorm:"primaryKey"`
	InvoiceNumber      string          `json:"invoice_number" gorm:"type:text;not null;uniqueIndex:ux_invoices_number"`
	CompanyID          snowflake.ID    `json:"company_id" gorm:"not null;index"`
	Status             InvoiceStatus   `json:"status" gorm:"type:text;not null;default:'draft'"`
	Currency           string          `json:"currency" gorm:"type:text;not null"`
	BillingPeriodStart *time.Time      `json:"billing_period_start"`
	BillingPeriodEnd   *time.Time      `json:"billing_period_end"`
	IssueDate          time.Time       `json:"issue_date" gorm:"not null"`
	DueDate            time.Time       `json:"due_date" gorm:"not null;index"`
	VATRate            decimal.Decimal `json:"vat_rate" gorm:"type:numeric(6,2);not null"`
	Subtotal           decimal.Decimal `json:"subtotal" gorm:"type:numeric(20,2);not null"`
	VATAmount          decimal.Decimal `json:"vat_amount" gorm:"type:numeric(20,2);not null"`
	TotalAmount        decimal.Decimal `json:"total_amount" gorm:"type:numeric(20,2);not null"`
	AmountPaid         decimal.Decimal `json:"amount_paid" gorm:"type:numeric(20,2);not null"`
	BalanceDue         decimal.Decimal `json:"balance_due" gorm:"type:numeric(20,2);not null"`
	Notes              string          `json:"notes" gorm:"type:text"`
	Terms              string          `json:"terms" gorm:"type:text"`
	Version            int64           `json:"version" gorm:"not null;default:1"`
	CreatedAt          time.Time       `json:"created_at" gorm:"not null"`
	UpdatedAt          time.Time       `json:"updated_at" gorm:"not null"`

	LineItems []LineItem `json:"line_items,omitempty" gorm:"-"`
}

func (Invoice) TableName() string { return "invoices" }

// EffectiveStatus derives the status the read path reports: an unpaid
// invoice past its due date shows as overdue even before the sweep has
// persisted the flip.
func (i Invoice) EffectiveStatus(now time.Time) InvoiceStatus {
	if (i.Status == StatusPending || i.Status == StatusSent || i.Status == StatusPartiallyPaid) &&
		i.DueDate.Before(now) && i.BalanceDue.IsPositive() {
		return StatusOverdue
	}
	return i.Status
}

// LineItem is one billable entry on an invoice. Position preserves the
// insertion order for document rendering; it has no bearing on totals.
type LineItem struct {
	ID          snowflake.ID    `json:"id" gorm:"primaryKey"`
	InvoiceID   snowflake.ID    `json:"invoice_id" gorm:"not null;index"`
	Position    int             `json:"position" gorm:"not null"`
	Description string          `json:"description" gorm:"type:text;not null"`
	Quantity    decimal.Decimal `json:"quantity" gorm:"type:numeric(20,2);not null"`
	UnitPrice   decimal.Decimal `json:"unit_price" gorm:"type:numeric(20,2);not null"`
	Amount      decimal.Decimal `json:"amount" gorm:"type:numeric(20,2);not null"`
	CreatedAt   time.Time       `json:"created_at" gorm:"not null"`
}

func (LineItem) TableName() string { return "invoice_line_items" }
