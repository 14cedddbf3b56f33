package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/docbill/internal/invoice/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, invoice *domain.Invoice, items []domain.LineItem) error {
	err := db.WithContext(ctx).Exec(
		`INSERT INTO invoices (
			id, invoice_number, company_id, status, currency,
			billing_period_start, billing_period_end, issue_date, due_date,
			vat_rate, subtotal, vat_amount, total_amount, amount_paid, balance_due,
			notes, terms, version, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		invoice.ID,
		invoice.InvoiceNumber,
		invoice.CompanyID,
		invoice.Status,
		invoice.Currency,
		invoice.BillingPeriodStart,
		invoice.BillingPeriodEnd,
		invoice.IssueDate,
		invoice.DueDate,
		invoice.VATRate,
		invoice.Subtotal,
		invoice.VATAmount,
		invoice.TotalAmount,
		invoice.AmountPaid,
		invoice.BalanceDue,
		invoice.Notes,
		invoice.Terms,
		invoice.Version,
		invoice.CreatedAt,
		invoice.UpdatedAt,
	).Error
	if err != nil {
		return err
	}
	return r.insertItems(ctx, db, items)
}

func (r *repo) insertItems(ctx context.Context, db *gorm.DB, items []domain.LineItem) error {
	for _, item := range items {
		err := db.WithContext(ctx).Exec(
			`INSERT INTO invoice_line_items (
				id, invoice_id, position, description, quantity, unit_price, amount, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			item.ID,
			item.InvoiceID,
			item.Position,
			item.Description,
			item.Quantity,
			item.UnitPrice,
			item.Amount,
			item.CreatedAt,
		).Error
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Invoice, error) {
	var invoice domain.Invoice
	err := db.WithContext(ctx).Raw(
		`SELECT id, invoice_number, company_id, status, currency,
			billing_period_start, billing_period_end, issue_date, due_date,
			vat_rate, subtotal, vat_amount, total_amount, amount_paid, balance_due,
			notes, terms, version, created_at, updated_at
		 FROM invoices
		 WHERE id = ?
		 LIMIT 1`,
		id,
	).Scan(&invoice).Error
	if err != nil {
		return nil, err
	}
	if invoice.ID == 0 {
		return nil, nil
	}
	return &invoice, nil
}

func (r *repo) ListItems(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) ([]domain.LineItem, error) {
	var items []domain.LineItem
	err := db.WithContext(ctx).Raw(
		`SELECT id, invoice_id, position, description, quantity, unit_price, amount, created_at
		 FROM invoice_line_items
		 WHERE invoice_id = ?
		 ORDER BY position ASC`,
		invoiceID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, companyID snowflake.ID, req domain.ListInvoiceRequest) ([]domain.Invoice, error) {
	var invoices []domain.Invoice
	stmt := db.WithContext(ctx).
		Model(&domain.Invoice{}).
		Where("company_id = ?", companyID)

	if req.Status != nil {
		stmt = stmt.Where("status = ?", *req.Status)
	}
	if req.DueFrom != nil {
		stmt = stmt.Where("due_date >= ?", *req.DueFrom)
	}
	if req.DueTo != nil {
		stmt = stmt.Where("due_date <= ?", *req.DueTo)
	}
	if req.CreatedFrom != nil {
		stmt = stmt.Where("created_at >= ?", *req.CreatedFrom)
	}
	if req.CreatedTo != nil {
		stmt = stmt.Where("created_at <= ?", *req.CreatedTo)
	}

	err := req.Pagination.Apply(stmt).
		Order("created_at desc, id desc").
		Find(&invoices).Error
	if err != nil {
		return nil, err
	}
	return invoices, nil
}

func (r *repo) UpdateEditable(ctx context.Context, db *gorm.DB, invoice *domain.Invoice, expectedVersion int64) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE invoices
		 SET issue_date = ?, due_date = ?, vat_rate = ?,
			 subtotal = ?, vat_amount = ?, total_amount = ?, balance_due = ?,
			 notes = ?, terms = ?, version = version + 1, updated_at = ?
		 WHERE id = ? AND version = ? AND status NOT IN (?, ?)`,
		invoice.IssueDate,
		invoice.DueDate,
		invoice.VATRate,
		invoice.Subtotal,
		invoice.VATAmount,
		invoice.TotalAmount,
		invoice.BalanceDue,
		invoice.Notes,
		invoice.Terms,
		invoice.UpdatedAt,
		invoice.ID,
		expectedVersion,
		domain.StatusPaid,
		domain.StatusCancelled,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) ReplaceItems(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID, items []domain.LineItem) error {
	if err := db.WithContext(ctx).Exec(
		`DELETE FROM invoice_line_items WHERE invoice_id = ?`,
		invoiceID,
	).Error; err != nil {
		return err
	}
	return r.insertItems(ctx, db, items)
}

func (r *repo) Transition(ctx context.Context, db *gorm.DB, id snowflake.ID, expectedVersion int64, to domain.InvoiceStatus, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE invoices
		 SET status = ?, version = version + 1, updated_at = ?
		 WHERE id = ? AND version = ?`,
		to,
		now,
		id,
		expectedVersion,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) ApplyPayment(ctx context.Context, db *gorm.DB, invoice *domain.Invoice, expectedVersion int64, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE invoices
		 SET amount_paid = ?, balance_due = ?, status = ?, version = version + 1, updated_at = ?
		 WHERE id = ? AND version = ?`,
		invoice.AmountPaid,
		invoice.BalanceDue,
		invoice.Status,
		now,
		invoice.ID,
		expectedVersion,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) SweepOverdue(ctx context.Context, db *gorm.DB, now time.Time, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = 100
	}
	res := db.WithContext(ctx).Exec(
		`UPDATE invoices
		 SET status = ?, version = version + 1, updated_at = ?
		 WHERE id IN (
			SELECT id FROM invoices
			WHERE status IN (?, ?, ?)
			  AND due_date < ?
			  AND balance_due > 0
			ORDER BY due_date ASC
			LIMIT ?
		 )`,
		domain.StatusOverdue,
		now,
		domain.StatusPending,
		domain.StatusSent,
		domain.StatusPartiallyPaid,
		now,
		batchSize,
	)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}
