package domain

import "errors"

var (
	ErrUnknownReference     = errors.New("unknown_reference")
	ErrAmountMismatch       = errors.New("amount_mismatch")
	ErrDuplicateTransaction = errors.New("duplicate_gateway_transaction")
	ErrInvalidAmount        = errors.New("invalid_amount")
	ErrInvoiceNotPayable    = errors.New("invoice_not_payable")
	ErrGatewayUnavailable   = errors.New("gateway_unavailable")
	ErrPaymentFailed        = errors.New("payment_failed")
	ErrPaymentPending       = errors.New("payment_pending")
	ErrInvalidProvider      = errors.New("invalid_provider")
	ErrProviderNotFound     = errors.New("provider_not_found")
	ErrInvalidSignature     = errors.New("invalid_signature")
	ErrInvalidPayload       = errors.New("invalid_payload")
	ErrInvalidConfig        = errors.New("invalid_gateway_config")
	ErrEventIgnored         = errors.New("event_ignored")
	ErrNotFound             = errors.New("payment_not_found")
)
