package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Repository is the persistence boundary for invoices. Every write that
// touches monetary or status columns carries the caller's expected version;
// a false return means the row moved underneath the caller.
type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, invoice *Invoice, items []LineItem) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Invoice, error)
	ListItems(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) ([]LineItem, error)
	List(ctx context.Context, db *gorm.DB, companyID snowflake.ID, req ListInvoiceRequest) ([]Invoice, error)

	// UpdateEditable rewrites the editable columns and recomputed totals.
	UpdateEditable(ctx context.Context, db *gorm.DB, invoice *Invoice, expectedVersion int64) (bool, error)
	ReplaceItems(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID, items []LineItem) error

	// Transition flips only the status column.
	Transition(ctx context.Context, db *gorm.DB, id snowflake.ID, expectedVersion int64, to InvoiceStatus, now time.Time) (bool, error)

	// ApplyPayment writes amount_paid, balance_due and the resulting status
	// in one guarded statement.
	ApplyPayment(ctx context.Context, db *gorm.DB, invoice *Invoice, expectedVersion int64, now time.Time) (bool, error)

	// SweepOverdue flips past-due unpaid invoices to overdue. Status-only
	// write; monetary columns are never touched.
	SweepOverdue(ctx context.Context, db *gorm.DB, now time.Time, batchSize int) (int64, error)
}
