package customplan

import (
	"github.com/croplytics/croplytics/internal/customplan/repository"
	"github.com/croplytics/croplytics/internal/customplan/service"
	"go.uber.org/fx"
)

var Module = fx.Module("customplan.service",
	fx.Provide(
		repository.Provide,
		service.NewService,
	),
)
