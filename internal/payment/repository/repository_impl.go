package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/docbill/internal/payment/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const paymentColumns = `id, invoice_id, company_id, amount, currency, method, provider,
	reference, gateway_transaction_id, status, review_required, failure_reason,
	created_at, processed_at`

func (r *repo) Insert(ctx context.Context, db *gorm.DB, payment *domain.Payment) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO payments (
			id, invoice_id, company_id, amount, currency, method, provider,
			reference, gateway_transaction_id, status, review_required, failure_reason,
			created_at, processed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		payment.ID,
		payment.InvoiceID,
		payment.CompanyID,
		payment.Amount,
		payment.Currency,
		payment.Method,
		payment.Provider,
		payment.Reference,
		payment.GatewayTransactionID,
		payment.Status,
		payment.ReviewRequired,
		payment.FailureReason,
		payment.CreatedAt,
		payment.ProcessedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Payment, error) {
	var payment domain.Payment
	err := db.WithContext(ctx).Raw(
		`SELECT `+paymentColumns+` FROM payments WHERE id = ?`, id,
	).Scan(&payment).Error
	if err != nil {
		return nil, err
	}
	if payment.ID == 0 {
		return nil, domain.ErrNotFound
	}
	return &payment, nil
}

func (r *repo) FindByReference(ctx context.Context, db *gorm.DB, reference string) (*domain.Payment, error) {
	var payment domain.Payment
	err := db.WithContext(ctx).Raw(
		`SELECT `+paymentColumns+` FROM payments WHERE reference = ?`, reference,
	).Scan(&payment).Error
	if err != nil {
		return nil, err
	}
	if payment.ID == 0 {
		return nil, domain.ErrUnknownReference
	}
	return &payment, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, companyID snowflake.ID, filter domain.ListPaymentFilter) ([]domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE company_id = ?`
	args := []any{companyID}

	if filter.InvoiceID != nil {
		query += ` AND invoice_id = ?`
		args = append(args, *filter.InvoiceID)
	}
	if filter.Status != nil {
		query += ` AND status = ?`
		args = append(args, *filter.Status)
	}
	if filter.ReviewRequired != nil {
		query += ` AND review_required = ?`
		args = append(args, *filter.ReviewRequired)
	}

	query += ` ORDER BY created_at DESC, id DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	var payments []domain.Payment
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&payments).Error; err != nil {
		return nil, err
	}
	return payments, nil
}

func (r *repo) ClaimSuccess(ctx context.Context, db *gorm.DB, id snowflake.ID, gatewayTransactionID string, processedAt time.Time) (bool, error) {
	var txnID *string
	if gatewayTransactionID != "" {
		txnID = &gatewayTransactionID
	}
	result := db.WithContext(ctx).Exec(
		`UPDATE payments
		 SET status = ?, gateway_transaction_id = ?, processed_at = ?, review_required = ?, failure_reason = ''
		 WHERE id = ? AND status = ?`,
		domain.PaymentStatusSuccess,
		txnID,
		processedAt,
		false,
		id,
		domain.PaymentStatusPending,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) MarkFailed(ctx context.Context, db *gorm.DB, id snowflake.ID, reason string, processedAt time.Time) error {
	result := db.WithContext(ctx).Exec(
		`UPDATE payments
		 SET status = ?, failure_reason = ?, processed_at = ?
		 WHERE id = ? AND status = ?`,
		domain.PaymentStatusFailed,
		reason,
		processedAt,
		id,
		domain.PaymentStatusPending,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return errors.New("payment is not pending")
	}
	return nil
}

func (r *repo) FlagForReview(ctx context.Context, db *gorm.DB, id snowflake.ID, reason string) error {
	return db.WithContext(ctx).Exec(
		`UPDATE payments SET review_required = ?, failure_reason = ? WHERE id = ?`,
		true,
		reason,
		id,
	).Error
}
