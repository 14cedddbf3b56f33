package webhook

import (
	"context"
	"net/http"
	"strings"

	paymentdomain "github.com/smallbiznis/docbill/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log     *zap.Logger
	Gateway paymentdomain.Gateway `optional:"true"`
	Svc     paymentdomain.Service
}

type Service struct {
	log     *zap.Logger
	gateway paymentdomain.Gateway
	svc     paymentdomain.Service
}

func NewService(p Params) paymentdomain.WebhookService {
	return &Service{
		log:     p.Log.Named("payment.webhook"),
		gateway: p.Gateway,
		svc:     p.Svc,
	}
}

// IngestWebhook authenticates a confirmation, extracts the reference it
// refers to, and hands it to the reconciliation path. The payload itself
// carries no trusted state beyond the reference.
func (s *Service) IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) (*paymentdomain.ApplyResult, error) {
	if s.gateway == nil {
		return nil, paymentdomain.ErrProviderNotFound
	}
	if !strings.EqualFold(strings.TrimSpace(provider), s.gateway.Provider()) {
		return nil, paymentdomain.ErrProviderNotFound
	}

	if err := s.gateway.VerifyWebhook(payload, headers); err != nil {
		s.log.Warn("rejected webhook with bad signature", zap.String("provider", provider))
		return nil, err
	}

	reference, err := s.gateway.ParseWebhookReference(payload)
	if err != nil {
		return nil, err
	}

	result, err := s.svc.VerifyAndApply(ctx, reference)
	if err != nil {
		return nil, err
	}
	s.log.Info("webhook reconciled",
		zap.String("provider", provider),
		zap.String("reference", reference),
		zap.Bool("already_applied", result.AlreadyApplied),
	)
	return result, nil
}
