package invoice

import (
	"github.com/croplytics/croplytics/internal/invoice/repository"
	"github.com/croplytics/croplytics/internal/invoice/service"
	"go.uber.org/fx"
)

var Module = fx.Module("invoice.service",
	fx.Provide(
		repository.Provide,
		service.NewService,
	),
)
