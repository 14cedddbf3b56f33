package payment

import (
	"github.com/smallbiznis/docbill/internal/config"
	"github.com/smallbiznis/docbill/internal/payment/adapters"
	"github.com/smallbiznis/docbill/internal/payment/adapters/paystack"
	"github.com/smallbiznis/docbill/internal/payment/domain"
	"github.com/smallbiznis/docbill/internal/payment/repository"
	"github.com/smallbiznis/docbill/internal/payment/service"
	"github.com/smallbiznis/docbill/internal/payment/webhook"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("payment.service",
	fx.Provide(provideRegistry),
	fx.Provide(provideGateway),
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
	fx.Provide(webhook.NewService),
)

func provideRegistry() *adapters.Registry {
	return adapters.NewRegistry(
		paystack.NewFactory(),
	)
}

// provideGateway builds the configured provider's gateway. A deployment
// without payment credentials runs fine; Initialize returns
// provider_not_found until one is configured.
func provideGateway(registry *adapters.Registry, cfg config.Config, log *zap.Logger) domain.Gateway {
	provider := cfg.Payment.Provider
	if provider == "" || cfg.Payment.SecretKey == "" {
		log.Named("payment").Info("no payment provider configured")
		return nil
	}
	gateway, err := registry.NewGateway(provider, domain.GatewayConfig{
		SecretKey:     cfg.Payment.SecretKey,
		WebhookSecret: cfg.Payment.WebhookSecret,
		BaseURL:       cfg.Payment.BaseURL,
		CallbackURL:   cfg.Payment.CallbackURL,
	})
	if err != nil {
		log.Named("payment").Error("failed to build payment gateway",
			zap.String("provider", provider), zap.Error(err))
		return nil
	}
	return gateway
}
