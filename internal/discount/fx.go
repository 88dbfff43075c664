package discount

import (
	"github.com/croplytics/croplytics/internal/discount/repository"
	"github.com/croplytics/croplytics/internal/discount/service"
	"go.uber.org/fx"
)

var Module = fx.Module("discount.service",
	fx.Provide(
		repository.Provide,
		service.NewService,
	),
)
