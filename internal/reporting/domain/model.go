// Package domain holds the read-only dashboard projection over invoices
// and payments. Nothing here mutates state.
package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	invoicedomain "github.com/smallbiznis/docbill/internal/invoice/domain"
	"gorm.io/gorm"
)

// StatusRollup aggregates one stored invoice status.
type StatusRollup struct {
	Status      invoicedomain.InvoiceStatus `json:"status"`
	Count       int64                       `json:"count"`
	TotalAmount decimal.Decimal             `json:"total_amount"`
	AmountPaid  decimal.Decimal             `json:"amount_paid"`
	BalanceDue  decimal.Decimal             `json:"balance_due"`
}

// Summary is the dashboard snapshot for one company. Overdue figures are
// derived at read time: invoices past due with money outstanding count as
// overdue even before the sweep persists the flip.
type Summary struct {
	ByStatus         []StatusRollup  `json:"by_status"`
	TotalInvoiced    decimal.Decimal `json:"total_invoiced"`
	TotalCollected   decimal.Decimal `json:"total_collected"`
	TotalOutstanding decimal.Decimal `json:"total_outstanding"`
	OverdueCount     int64           `json:"overdue_count"`
	OverdueAmount    decimal.Decimal `json:"overdue_amount"`
}

type Service interface {
	Summary(ctx context.Context) (*Summary, error)
	ListOverdue(ctx context.Context, limit int) ([]invoicedomain.Invoice, error)
}

type Repository interface {
	Rollup(ctx context.Context, db *gorm.DB, companyID snowflake.ID) ([]StatusRollup, error)
	OverdueTotals(ctx context.Context, db *gorm.DB, companyID snowflake.ID, now time.Time) (int64, decimal.Decimal, error)
	Overdue(ctx context.Context, db *gorm.DB, companyID snowflake.ID, now time.Time, limit int) ([]invoicedomain.Invoice, error)
}
