package audit

import (
	"github.com/croplytics/croplytics/internal/audit/repository"
	"github.com/croplytics/croplytics/internal/audit/service"
	"go.uber.org/fx"
)

var Module = fx.Module("audit.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
