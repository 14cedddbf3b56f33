package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type ListPaymentFilter struct {
	InvoiceID      *snowflake.ID
	Status         *PaymentStatus
	ReviewRequired *bool
	Limit          int
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, payment *Payment) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Payment, error)
	FindByReference(ctx context.Context, db *gorm.DB, reference string) (*Payment, error)
	List(ctx context.Context, db *gorm.DB, companyID snowflake.ID, filter ListPaymentFilter) ([]Payment, error)

	// ClaimSuccess flips a pending payment to success. The conditional
	// update is the serialization point for concurrent confirmations: only
	// one caller observes true, every replay sees false.
	ClaimSuccess(ctx context.Context, db *gorm.DB, id snowflake.ID, gatewayTransactionID string, processedAt time.Time) (bool, error)

	MarkFailed(ctx context.Context, db *gorm.DB, id snowflake.ID, reason string, processedAt time.Time) error
	FlagForReview(ctx context.Context, db *gorm.DB, id snowflake.ID, reason string) error
}
