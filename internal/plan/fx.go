package plan

import (
	"github.com/croplytics/croplytics/internal/plan/repository"
	"github.com/croplytics/croplytics/internal/plan/service"
	"go.uber.org/fx"
)

var Module = fx.Module("plan.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
