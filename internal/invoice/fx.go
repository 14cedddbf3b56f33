package invoice

import (
	"github.com/smallbiznis/docbill/internal/invoice/repository"
	"github.com/smallbiznis/docbill/internal/invoice/service"
	"go.uber.org/fx"
)

var Module = fx.Module("invoice.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
