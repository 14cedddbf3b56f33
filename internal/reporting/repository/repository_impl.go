package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	invoicedomain "github.com/smallbiznis/docbill/internal/invoice/domain"
	"github.com/smallbiznis/docbill/internal/reporting/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

// overduePredicate matches invoices that owe money past their due date,
// whether or not the sweep has already flipped them.
const overduePredicate = `balance_due > 0 AND (
	status = 'overdue' OR (status IN ('pending', 'sent', 'partially_paid') AND due_date < ?)
)`

func (r *repo) Rollup(ctx context.Context, db *gorm.DB, companyID snowflake.ID) ([]domain.StatusRollup, error) {
	var rollups []domain.StatusRollup
	err := db.WithContext(ctx).Raw(
		`SELECT status,
			COUNT(*) AS count,
			COALESCE(SUM(total_amount), 0) AS total_amount,
			COALESCE(SUM(amount_paid), 0) AS amount_paid,
			COALESCE(SUM(balance_due), 0) AS balance_due
		 FROM invoices
		 WHERE company_id = ?
		 GROUP BY status
		 ORDER BY status`,
		companyID,
	).Scan(&rollups).Error
	if err != nil {
		return nil, err
	}
	return rollups, nil
}

func (r *repo) OverdueTotals(ctx context.Context, db *gorm.DB, companyID snowflake.ID, now time.Time) (int64, decimal.Decimal, error) {
	var row struct {
		Count  int64           `gorm:"column:count"`
		Amount decimal.Decimal `gorm:"column:amount"`
	}
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(*) AS count, COALESCE(SUM(balance_due), 0) AS amount
		 FROM invoices
		 WHERE company_id = ? AND `+overduePredicate,
		companyID, now,
	).Scan(&row).Error
	if err != nil {
		return 0, decimal.Zero, err
	}
	return row.Count, row.Amount, nil
}

func (r *repo) Overdue(ctx context.Context, db *gorm.DB, companyID snowflake.ID, now time.Time, limit int) ([]invoicedomain.Invoice, error) {
	if limit <= 0 {
		limit = 100
	}
	var invoices []invoicedomain.Invoice
	err := db.WithContext(ctx).Raw(
		`SELECT id, invoice_number, company_id, status, currency,
			billing_period_start, billing_period_end, issue_date, due_date,
			vat_rate, subtotal, vat_amount, total_amount, amount_paid, balance_due,
			notes, terms, version, created_at, updated_at
		 FROM invoices
		 WHERE company_id = ? AND `+overduePredicate+`
		 ORDER BY due_date ASC, id ASC
		 LIMIT ?`,
		companyID, now, limit,
	).Scan(&invoices).Error
	if err != nil {
		return nil, err
	}
	return invoices, nil
}
