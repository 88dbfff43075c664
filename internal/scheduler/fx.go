package scheduler

import (
	"context"
	"time"

	"github.com/croplytics/croplytics/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("scheduler",
	fx.Provide(ProvideConfig),
	fx.Provide(New),
	fx.Invoke(NewScheduler),
)

func ProvideConfig(cfg config.Config) Config {
	return Config{
		RunInterval: time.Duration(cfg.SchedulerInterval) * time.Second,
		EnabledJobs: cfg.SchedulerJobs,
	}
}

func NewScheduler(lc fx.Lifecycle, cfg config.Config, sched *Scheduler) {
	if !cfg.SchedulerEnabled {
		return
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ctx, cancel := context.WithCancel(context.Background())

			go sched.RunForever(ctx)

			lc.Append(fx.Hook{
				OnStop: func(context.Context) error {
					cancel()
					return nil
				},
			})

			return nil
		},
	})
}
