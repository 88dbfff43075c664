package modulepricing

import (
	"github.com/croplytics/croplytics/internal/modulepricing/repository"
	"github.com/croplytics/croplytics/internal/modulepricing/service"
	"go.uber.org/fx"
)

var Module = fx.Module("modulepricing.service",
	fx.Provide(
		repository.Provide,
		service.NewService,
	),
)
