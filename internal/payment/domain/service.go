package domain

import (
	"context"
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type InitializePaymentRequest struct {
	InvoiceID   snowflake.ID    `json:"invoice_id"`
	Amount      decimal.Decimal `json:"amount"`
	CustomerRef string          `json:"customer_ref"`
}

type InitializePaymentResponse struct {
	Payment          *Payment `json:"payment"`
	AuthorizationURL string   `json:"authorization_url"`
	Reference        string   `json:"reference"`
}

// Service is the reconciliation core: it owns every mutation of a
// payment's status and of an invoice's monetary fields.
type Service interface {
	Initialize(ctx context.Context, req InitializePaymentRequest) (*InitializePaymentResponse, error)
	VerifyAndApply(ctx context.Context, reference string) (*ApplyResult, error)
	MarkPaidManually(ctx context.Context, invoiceID snowflake.ID, amount decimal.Decimal, method string) (*ApplyResult, error)
	GetByID(ctx context.Context, id snowflake.ID) (*Payment, error)
	List(ctx context.Context, filter ListPaymentFilter) ([]Payment, error)
}

// WebhookService ingests asynchronous gateway confirmations.
type WebhookService interface {
	IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) (*ApplyResult, error)
}
