package paystack

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	paymentdomain "github.com/smallbiznis/docbill/internal/payment/domain"
)

const defaultBaseURL = "https://api.paystack.co"

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Provider() string {
	return "paystack"
}

func (f *Factory) NewGateway(cfg paymentdomain.GatewayConfig) (paymentdomain.Gateway, error) {
	secret := strings.TrimSpace(cfg.SecretKey)
	if secret == "" {
		return nil, paymentdomain.ErrInvalidConfig
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	webhookSecret := strings.TrimSpace(cfg.WebhookSecret)
	if webhookSecret == "" {
		// Paystack signs webhooks with the API secret key.
		webhookSecret = secret
	}

	return &Gateway{
		secretKey:     secret,
		webhookSecret: webhookSecret,
		baseURL:       baseURL,
		callbackURL:   strings.TrimSpace(cfg.CallbackURL),
		httpClient:    &http.Client{Timeout: 15 * time.Second},
	}, nil
}

type Gateway struct {
	secretKey     string
	webhookSecret string
	baseURL       string
	callbackURL   string
	httpClient    *http.Client
}

func (g *Gateway) Provider() string { return "paystack" }

type initializeBody struct {
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
	Reference   string `json:"reference"`
	CallbackURL string `json:"callback_url,omitempty"`
	Email       string `json:"email,omitempty"`
}

type initializeResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    struct {
		AuthorizationURL string `json:"authorization_url"`
		Reference        string `json:"reference"`
	} `json:"data"`
}

func (g *Gateway) Initialize(ctx context.Context, req paymentdomain.InitializeRequest) (*paymentdomain.InitializeResult, error) {
	callback := req.CallbackURL
	if callback == "" {
		callback = g.callbackURL
	}
	body, err := json.Marshal(initializeBody{
		Amount:      toMinorUnits(req.Amount),
		Currency:    strings.ToUpper(req.Currency),
		Reference:   req.Reference,
		CallbackURL: callback,
		Email:       req.CustomerRef,
	})
	if err != nil {
		return nil, err
	}

	var resp initializeResponse
	if err := g.do(ctx, http.MethodPost, "/transaction/initialize", bytes.NewReader(body), &resp); err != nil {
		return nil, err
	}
	if !resp.Status || resp.Data.AuthorizationURL == "" {
		return nil, fmt.Errorf("%w: %s", paymentdomain.ErrGatewayUnavailable, resp.Message)
	}

	return &paymentdomain.InitializeResult{
		AuthorizationURL: resp.Data.AuthorizationURL,
		Reference:        resp.Data.Reference,
	}, nil
}

type verifyResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    struct {
		ID              int64   `json:"id"`
		Status          string  `json:"status"`
		Reference       string  `json:"reference"`
		Amount          int64   `json:"amount"`
		Currency        string  `json:"currency"`
		PaidAt          *string `json:"paid_at"`
		GatewayResponse string  `json:"gateway_response"`
	} `json:"data"`
}

func (g *Gateway) Verify(ctx context.Context, reference string) (*paymentdomain.VerifyResult, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, paymentdomain.ErrUnknownReference
	}

	var resp verifyResponse
	if err := g.do(ctx, http.MethodGet, "/transaction/verify/"+reference, nil, &resp); err != nil {
		return nil, err
	}
	if !resp.Status {
		return nil, fmt.Errorf("%w: %s", paymentdomain.ErrGatewayUnavailable, resp.Message)
	}

	result := &paymentdomain.VerifyResult{
		Amount:               decimal.New(resp.Data.Amount, -2),
		Currency:             strings.ToUpper(resp.Data.Currency),
		GatewayTransactionID: fmt.Sprintf("%d", resp.Data.ID),
		FailureReason:        resp.Data.GatewayResponse,
	}
	switch strings.ToLower(resp.Data.Status) {
	case "success":
		result.Status = paymentdomain.VerifyStatusSuccess
	case "failed", "abandoned", "reversed":
		result.Status = paymentdomain.VerifyStatusFailed
	default:
		result.Status = paymentdomain.VerifyStatusPending
	}
	if resp.Data.PaidAt != nil && *resp.Data.PaidAt != "" {
		if paidAt, err := time.Parse(time.RFC3339, *resp.Data.PaidAt); err == nil {
			paidAt = paidAt.UTC()
			result.PaidAt = &paidAt
		}
	}
	return result, nil
}

// VerifyWebhook checks the x-paystack-signature header: HMAC SHA-512 of the
// raw body keyed with the webhook secret.
func (g *Gateway) VerifyWebhook(payload []byte, headers http.Header) error {
	signature := strings.TrimSpace(headers.Get("x-paystack-signature"))
	if signature == "" {
		return paymentdomain.ErrInvalidSignature
	}

	mac := hmac.New(sha512.New, []byte(g.webhookSecret))
	_, _ = mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(strings.ToLower(signature)), []byte(expected)) {
		return paymentdomain.ErrInvalidSignature
	}
	return nil
}

type webhookEvent struct {
	Event string `json:"event"`
	Data  struct {
		Reference string `json:"reference"`
	} `json:"data"`
}

func (g *Gateway) ParseWebhookReference(payload []byte) (string, error) {
	if !json.Valid(payload) {
		return "", paymentdomain.ErrInvalidPayload
	}
	var event webhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return "", paymentdomain.ErrInvalidPayload
	}

	switch strings.TrimSpace(event.Event) {
	case "charge.success", "charge.failed":
	default:
		return "", paymentdomain.ErrEventIgnored
	}

	reference := strings.TrimSpace(event.Data.Reference)
	if reference == "" {
		return "", paymentdomain.ErrInvalidPayload
	}
	return reference, nil
}

func (g *Gateway) do(ctx context.Context, method, path string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+g.secretKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", paymentdomain.ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("%w: upstream status %d", paymentdomain.ErrGatewayUnavailable, resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: %v", paymentdomain.ErrGatewayUnavailable, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: malformed response", paymentdomain.ErrGatewayUnavailable)
	}
	return nil
}

func toMinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}
