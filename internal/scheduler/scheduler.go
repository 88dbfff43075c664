package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	auditdomain "github.com/croplytics/croplytics/internal/audit/domain"
	"github.com/croplytics/croplytics/internal/auditcontext"
	"github.com/croplytics/croplytics/internal/authorization"
	"github.com/croplytics/croplytics/internal/clock"
	invoicedomain "github.com/croplytics/croplytics/internal/invoice/domain"
	obsmetrics "github.com/croplytics/croplytics/internal/observability/metrics"
	subscriptiondomain "github.com/croplytics/croplytics/internal/subscription/domain"
	"github.com/oklog/ulid/v2"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrInvalidConfig = errors.New("scheduler_invalid_config")

type Params struct {
	fx.In

	Log             *zap.Logger
	Clock           clock.Clock
	SubscriptionSvc subscriptiondomain.Service
	InvoiceSvc      invoicedomain.Service
	AuthzSvc        authorization.Service
	Config          Config `optional:"true"`
}

// Scheduler drives the recurring billing sweeps: subscription renewals,
// expirations of non-renewing subscriptions, and overdue invoice marking.
type Scheduler struct {
	log             *zap.Logger
	cfg             Config
	clock           clock.Clock
	subscriptionSvc subscriptiondomain.Service
	invoiceSvc      invoicedomain.Service
	authzSvc        authorization.Service
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.Clock == nil || p.SubscriptionSvc == nil || p.InvoiceSvc == nil || p.AuthzSvc == nil {
		return nil, ErrInvalidConfig
	}
	cfg := p.Config.withDefaults()
	return &Scheduler{
		log:             p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:             cfg,
		clock:           p.Clock,
		subscriptionSvc: p.SubscriptionSvc,
		invoiceSvc:      p.InvoiceSvc,
		authzSvc:        p.AuthzSvc,
	}, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	object string,
	action string,
	fn func(ctx context.Context) (int, []error),
) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, s.cfg.JobTimeout)
	defer cancel()

	ctx = auditcontext.WithActor(ctx, string(auditdomain.ActorTypeSystem), "scheduler")
	runID := ulid.Make().String()
	log := s.log.With(
		zap.String("job", name),
		zap.String("run_id", runID),
	)
	schedMetrics := obsmetrics.Scheduler()
	schedMetrics.IncJobRun(name)

	if err := s.authzSvc.Authorize(ctx, "system", "global", object, action); err != nil {
		schedMetrics.IncJobError(name, err)
		log.Warn("job not authorized", zap.Error(err))
		return fmt.Errorf("%s: %w", name, err)
	}

	processed, itemErrs := fn(ctx)
	schedMetrics.ObserveJobDuration(name, time.Since(start))
	schedMetrics.AddBatchProcessed(name, object, processed)

	err := errors.Join(itemErrs...)
	log.Info("job finished",
		zap.Int("processed", processed),
		zap.Int("errors", len(itemErrs)),
		zap.Duration("elapsed", time.Since(start)),
	)
	if err == nil {
		return nil
	}

	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	if isTimeout {
		schedMetrics.IncJobTimeout(name)
	}
	schedMetrics.IncJobError(name, err)
	if isTimeout {
		log.Warn("job timed out",
			zap.Duration("timeout", s.cfg.JobTimeout),
			zap.Error(err),
		)
		return nil
	}

	return fmt.Errorf("%s: %w", name, err)
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error

	jobs := []struct {
		Name    string
		Enabled bool
		Run     func(context.Context) error
	}{
		{"renewals", s.isJobEnabled("renewals"), func(ctx context.Context) error {
			return s.runJob(ctx, "renewals", authorization.ObjectSubscription, authorization.ActionSubscriptionSweep, s.renewalsJob)
		}},
		{"expirations", s.isJobEnabled("expirations"), func(ctx context.Context) error {
			return s.runJob(ctx, "expirations", authorization.ObjectSubscription, authorization.ActionSubscriptionSweep, s.expirationsJob)
		}},
		{"overdue_invoices", s.isJobEnabled("overdue_invoices"), func(ctx context.Context) error {
			return s.runJob(ctx, "overdue_invoices", authorization.ObjectInvoice, authorization.ActionInvoiceSweep, s.overdueInvoicesJob)
		}},
	}

	for _, job := range jobs {
		if job.Enabled {
			err = errors.Join(err, job.Run(parent))
		}
	}

	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := s.clock.Now().Add(s.cfg.RunInterval)
	schedMetrics := obsmetrics.Scheduler()

	for {
		runLag := time.Since(nextRun)
		if runLag > 0 {
			schedMetrics.ObserveRunLoopLag(runLag)
		}
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
		nextRun = nextRun.Add(s.cfg.RunInterval)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	// An empty EnabledJobs list means every job runs.
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}

func (s *Scheduler) renewalsJob(ctx context.Context) (int, []error) {
	report, err := s.subscriptionSvc.ProcessRenewals(ctx)
	if err != nil {
		return report.Processed, append(report.Errors, err)
	}
	return report.Processed, report.Errors
}

func (s *Scheduler) expirationsJob(ctx context.Context) (int, []error) {
	report, err := s.subscriptionSvc.ProcessExpirations(ctx)
	if err != nil {
		return report.Processed, append(report.Errors, err)
	}
	return report.Processed, report.Errors
}

func (s *Scheduler) overdueInvoicesJob(ctx context.Context) (int, []error) {
	report, err := s.invoiceSvc.ProcessOverdue(ctx)
	if err != nil {
		return report.Marked, append(report.Errors, err)
	}
	return report.Marked, report.Errors
}
