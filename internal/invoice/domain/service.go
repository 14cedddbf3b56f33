package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/docbill/pkg/db/pagination"
)

type LineItemRequest struct {
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

type CreateInvoiceRequest struct {
	Status             InvoiceStatus     `json:"status"`
	Currency           string            `json:"currency"`
	BillingPeriodStart *time.Time        `json:"billing_period_start"`
	BillingPeriodEnd   *time.Time        `json:"billing_period_end"`
	IssueDate          time.Time         `json:"issue_date"`
	DueDate            time.Time         `json:"due_date"`
	VATRate            decimal.Decimal   `json:"vat_rate"`
	Notes              string            `json:"notes"`
	Terms              string            `json:"terms"`
	LineItems          []LineItemRequest `json:"line_items"`
}

// UpdateInvoiceRequest carries the editable fields; nil means unchanged.
type UpdateInvoiceRequest struct {
	LineItems *[]LineItemRequest `json:"line_items"`
	VATRate   *decimal.Decimal   `json:"vat_rate"`
	IssueDate *time.Time         `json:"issue_date"`
	DueDate   *time.Time         `json:"due_date"`
	Notes     *string            `json:"notes"`
	Terms     *string            `json:"terms"`
}

type ListInvoiceRequest struct {
	pagination.Pagination
	Status      *InvoiceStatus
	DueFrom     *time.Time
	DueTo       *time.Time
	CreatedFrom *time.Time
	CreatedTo   *time.Time
}

type ListInvoiceResponse struct {
	pagination.PageInfo
	Invoices []Invoice `json:"invoices"`
}

type Service interface {
	Create(ctx context.Context, req CreateInvoiceRequest) (*Invoice, error)
	GetByID(ctx context.Context, id snowflake.ID) (*Invoice, error)
	List(ctx context.Context, req ListInvoiceRequest) (ListInvoiceResponse, error)
	Update(ctx context.Context, id snowflake.ID, req UpdateInvoiceRequest) (*Invoice, error)
	Activate(ctx context.Context, id snowflake.ID) (*Invoice, error)
	MarkSent(ctx context.Context, id snowflake.ID) (*Invoice, error)
	Cancel(ctx context.Context, id snowflake.ID) (*Invoice, error)
}
