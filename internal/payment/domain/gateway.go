package domain

import (
	"context"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

// VerifyStatus is the gateway's authoritative report for a reference.
type VerifyStatus string

const (
	VerifyStatusSuccess VerifyStatus = "success"
	VerifyStatusFailed  VerifyStatus = "failed"
	VerifyStatusPending VerifyStatus = "pending"
)

type InitializeRequest struct {
	Reference   string
	Amount      decimal.Decimal
	Currency    string
	CallbackURL string
	CustomerRef string
}

type InitializeResult struct {
	AuthorizationURL string `json:"authorization_url"`
	Reference        string `json:"reference"`
}

type VerifyResult struct {
	Status               VerifyStatus
	Amount               decimal.Decimal
	Currency             string
	GatewayTransactionID string
	PaidAt               *time.Time
	FailureReason        string
}

// Gateway is the outbound boundary to the external payment processor.
// Initialize opens a checkout session; Verify re-derives the authoritative
// result for a reference, since confirmation payloads are never trusted
// directly.
type Gateway interface {
	Provider() string
	Initialize(ctx context.Context, req InitializeRequest) (*InitializeResult, error)
	Verify(ctx context.Context, reference string) (*VerifyResult, error)

	// VerifyWebhook checks the provider's signature over a raw confirmation.
	VerifyWebhook(payload []byte, headers http.Header) error
	// ParseWebhookReference extracts the session reference a confirmation
	// refers to. The rest of the payload is ignored.
	ParseWebhookReference(payload []byte) (string, error)
}

// GatewayConfig carries provider credentials and endpoints.
type GatewayConfig struct {
	SecretKey     string
	WebhookSecret string
	BaseURL       string
	CallbackURL   string
}

// GatewayFactory builds a configured Gateway for its provider.
type GatewayFactory interface {
	Provider() string
	NewGateway(cfg GatewayConfig) (Gateway, error)
}
