package subscription

import (
	"github.com/croplytics/croplytics/internal/subscription/repository"
	"github.com/croplytics/croplytics/internal/subscription/service"
	"go.uber.org/fx"
)

var Module = fx.Module("subscription.service",
	fx.Provide(
		repository.Provide,
		service.NewService,
	),
)
