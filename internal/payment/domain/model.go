package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// PaymentStatus tracks one gateway session or manual receipt.
type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusSuccess  PaymentStatus = "success"
	PaymentStatusFailed   PaymentStatus = "failed"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

const (
	MethodGateway = "gateway"
	MethodManual  = "manual"
)

// Payment is one attempt to move money against an invoice. Reference is
// the idempotency key of our own gateway session; GatewayTransactionID is
// the external charge id and is unique so no two rows can ever claim the
// same charge. Amount records the expectation fixed at initialize time:
// reconciliation compares the gateway's report against it, never the other
// way around.
type Payment struct {
	ID                   snowflake.ID    `json:"id" gorm:"primaryKey"`
	InvoiceID            *snowflake.ID   `json:"invoice_id" gorm:"index"`
	CompanyID            snowflake.ID    `json:"company_id" gorm:"not null;index"`
	Amount               decimal.Decimal `json:"amount" gorm:"type:numeric(20,2);not null"`
	Currency             string          `json:"currency" gorm:"type:text;not null"`
	Method               string          `json:"method" gorm:"type:text;not null"`
	Provider             string          `json:"provider" gorm:"type:text"`
	Reference            string          `json:"reference" gorm:"type:text;not null;uniqueIndex:ux_payments_reference"`
	GatewayTransactionID *string         `json:"gateway_transaction_id" gorm:"type:text;uniqueIndex:ux_payments_gateway_txn"`
	Status               PaymentStatus   `json:"status" gorm:"type:text;not null;default:'pending'"`
	ReviewRequired       bool            `json:"review_required" gorm:"not null;default:false"`
	FailureReason        string          `json:"failure_reason" gorm:"type:text"`
	CreatedAt            time.Time       `json:"created_at" gorm:"not null"`
	ProcessedAt          *time.Time      `json:"processed_at"`
}

func (Payment) TableName() string { return "payments" }

// ApplyResult is the outcome of a reconciliation attempt. AlreadyApplied
// marks the idempotent no-op path: a replayed confirmation observed the
// previously recorded state and changed nothing.
type ApplyResult struct {
	Payment        *Payment        `json:"payment"`
	InvoiceStatus  string          `json:"invoice_status,omitempty"`
	BalanceDue     decimal.Decimal `json:"balance_due"`
	AmountPaid     decimal.Decimal `json:"amount_paid"`
	AlreadyApplied bool            `json:"already_applied"`
}
