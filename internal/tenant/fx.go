package tenant

import (
	"github.com/croplytics/croplytics/internal/tenant/repository"
	"github.com/croplytics/croplytics/internal/tenant/service"
	"go.uber.org/fx"
)

var Module = fx.Module("tenant.service",
	fx.Provide(
		repository.Provide,
		service.NewService,
	),
)
