package service

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/croplytics/croplytics/internal/audit/domain"
	"github.com/croplytics/croplytics/internal/clock"
	customplandomain "github.com/croplytics/croplytics/internal/customplan/domain"
	"github.com/croplytics/croplytics/internal/events"
	eventdomain "github.com/croplytics/croplytics/internal/events/domain"
	plandomain "github.com/croplytics/croplytics/internal/plan/domain"
	pricingdomain "github.com/croplytics/croplytics/internal/pricing/domain"
	subscriptiondomain "github.com/croplytics/croplytics/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	GenID         *snowflake.Node
	Clock         clock.Clock
	Repo          customplandomain.Repository
	Pricing       pricingdomain.Service
	Subscriptions subscriptiondomain.Service
	Events        events.Publisher
	Audit         auditdomain.Service
}

type Service struct {
	db            *gorm.DB
	log           *zap.Logger
	genID         *snowflake.Node
	clock         clock.Clock
	repo          customplandomain.Repository
	pricing       pricingdomain.Service
	subscriptions subscriptiondomain.Service
	events        events.Publisher
	audit         auditdomain.Service
}

func NewService(p Params) customplandomain.Service {
	return &Service{
		db:            p.DB,
		log:           p.Log.Named("customplan.service"),
		genID:         p.GenID,
		clock:         p.Clock,
		repo:          p.Repo,
		pricing:       p.Pricing,
		subscriptions: p.Subscriptions,
		events:        p.Events,
		audit:         p.Audit,
	}
}

func (s *Service) Create(ctx context.Context, req customplandomain.CreateCustomPlanRequest) (customplandomain.CustomPlan, error) {
	if req.TenantID == 0 {
		return customplandomain.CustomPlan{}, customplandomain.ErrInvalidTenant
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return customplandomain.CustomPlan{}, customplandomain.ErrInvalidName
	}
	months := req.BillingCycleMonths
	if months == 0 {
		months = 1
	}
	if _, ok := plandomain.CycleForMonths(months); !ok {
		return customplandomain.CustomPlan{}, customplandomain.ErrInvalidCycle
	}

	now := s.clock.Now()
	plan := customplandomain.CustomPlan{
		ID:                 s.genID.Generate(),
		TenantID:           req.TenantID,
		Name:               name,
		Status:             customplandomain.StatusDraft,
		BillingCycleMonths: months,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if len(req.Modules) > 0 {
		encoded, err := json.Marshal(req.Modules)
		if err != nil {
			return customplandomain.CustomPlan{}, err
		}
		plan.Modules = datatypes.JSON(encoded)
	}

	if err := s.repo.Insert(ctx, s.db, &plan); err != nil {
		return customplandomain.CustomPlan{}, err
	}

	s.log.Info("custom plan drafted",
		zap.String("custom_plan_id", plan.ID.String()),
		zap.String("tenant_id", plan.TenantID.String()),
	)
	return plan, nil
}

func (s *Service) Get(ctx context.Context, id string) (customplandomain.CustomPlan, error) {
	planID, err := parseID(id)
	if err != nil {
		return customplandomain.CustomPlan{}, err
	}

	plan, err := s.repo.FindByID(ctx, s.db, planID)
	if err != nil {
		return customplandomain.CustomPlan{}, err
	}
	if plan == nil {
		return customplandomain.CustomPlan{}, customplandomain.ErrNotFound
	}
	return *plan, nil
}

func (s *Service) List(ctx context.Context, req customplandomain.ListCustomPlansRequest) ([]customplandomain.CustomPlan, error) {
	return s.repo.List(ctx, s.db, req)
}

func (s *Service) Update(ctx context.Context, req customplandomain.UpdateCustomPlanRequest) (customplandomain.CustomPlan, error) {
	planID, err := parseID(req.ID)
	if err != nil {
		return customplandomain.CustomPlan{}, err
	}

	var result customplandomain.CustomPlan
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		plan, err := s.repo.FindByIDForUpdate(ctx, tx, planID)
		if err != nil {
			return err
		}
		if plan == nil {
			return customplandomain.ErrNotFound
		}
		if !plan.Editable() {
			return customplandomain.ErrNotEditable
		}

		if req.Name != nil {
			name := strings.TrimSpace(*req.Name)
			if name == "" {
				return customplandomain.ErrInvalidName
			}
			plan.Name = name
		}
		if req.Modules != nil {
			encoded, err := json.Marshal(req.Modules)
			if err != nil {
				return err
			}
			plan.Modules = datatypes.JSON(encoded)
			// Edits invalidate a previously computed quote.
			plan.Quote = nil
			plan.QuotedAmount = 0
		}
		if req.BillingCycleMonths != nil {
			if _, ok := plandomain.CycleForMonths(*req.BillingCycleMonths); !ok {
				return customplandomain.ErrInvalidCycle
			}
			plan.BillingCycleMonths = *req.BillingCycleMonths
		}
		plan.UpdatedAt = s.clock.Now()

		if err := s.repo.Update(ctx, tx, plan); err != nil {
			return err
		}
		result = *plan
		return nil
	})
	if err != nil {
		return customplandomain.CustomPlan{}, err
	}
	return result, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	planID, err := parseID(id)
	if err != nil {
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		plan, err := s.repo.FindByIDForUpdate(ctx, tx, planID)
		if err != nil {
			return err
		}
		if plan == nil {
			return customplandomain.ErrNotFound
		}
		if plan.Status != customplandomain.StatusDraft {
			return customplandomain.ErrNotDraft
		}
		return s.repo.Delete(ctx, tx, planID)
	})
}

func (s *Service) Submit(ctx context.Context, id string) (customplandomain.CustomPlan, error) {
	planID, err := parseID(id)
	if err != nil {
		return customplandomain.CustomPlan{}, err
	}

	var result customplandomain.CustomPlan
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		plan, err := s.repo.FindByIDForUpdate(ctx, tx, planID)
		if err != nil {
			return err
		}
		if plan == nil {
			return customplandomain.ErrNotFound
		}
		if plan.Status != customplandomain.StatusDraft {
			return customplandomain.ErrNotDraft
		}

		selections, err := decodeSelections(plan.Modules)
		if err != nil {
			return err
		}
		if len(selections) == 0 {
			return customplandomain.ErrNoModules
		}

		cycle, ok := plandomain.CycleForMonths(plan.BillingCycleMonths)
		if !ok {
			return customplandomain.ErrInvalidCycle
		}
		quote, err := s.pricing.Calculate(ctx, pricingdomain.QuoteRequest{
			TenantID:     plan.TenantID,
			Tier:         plandomain.TierCustom,
			BillingCycle: cycle,
			Selections:   selections,
		})
		if err != nil {
			return err
		}

		quoteDoc, err := quoteToMap(quote)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		plan.Status = customplandomain.StatusPendingApproval
		plan.Quote = quoteDoc
		plan.QuotedAmount = quote.FinalAmount
		plan.SubmittedAt = &now
		plan.UpdatedAt = now

		if err := s.repo.Update(ctx, tx, plan); err != nil {
			return err
		}
		result = *plan
		return nil
	})
	if err != nil {
		return customplandomain.CustomPlan{}, err
	}

	s.auditPlan(ctx, result, "custom_plan.submitted", map[string]any{
		"quoted_amount": result.QuotedAmount,
	})
	return result, nil
}

func (s *Service) Approve(ctx context.Context, id string, approver string) (customplandomain.CustomPlan, error) {
	approver = strings.TrimSpace(approver)
	if approver == "" {
		return customplandomain.CustomPlan{}, customplandomain.ErrMissingApprover
	}

	result, err := s.transition(ctx, id, customplandomain.StatusPendingApproval, func(plan *customplandomain.CustomPlan) {
		plan.Status = customplandomain.StatusApproved
		plan.ApprovedBy = &approver
		plan.RejectedReason = nil
	})
	if err != nil {
		return customplandomain.CustomPlan{}, err
	}

	s.auditPlan(ctx, result, "custom_plan.approved", map[string]any{"approved_by": approver})
	return result, nil
}

func (s *Service) Reject(ctx context.Context, id string, reason string) (customplandomain.CustomPlan, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return customplandomain.CustomPlan{}, customplandomain.ErrMissingReason
	}

	result, err := s.transition(ctx, id, customplandomain.StatusPendingApproval, func(plan *customplandomain.CustomPlan) {
		plan.Status = customplandomain.StatusRejected
		plan.RejectedReason = &reason
	})
	if err != nil {
		return customplandomain.CustomPlan{}, err
	}

	s.auditPlan(ctx, result, "custom_plan.rejected", map[string]any{"reason": reason})
	return result, nil
}

// Activate creates the tenant's subscription from an APPROVED proposal. A
// failure in subscription creation leaves the proposal APPROVED so the
// activation can be retried after the conflict is resolved.
func (s *Service) Activate(ctx context.Context, id string) (customplandomain.CustomPlan, error) {
	plan, err := s.Get(ctx, id)
	if err != nil {
		return customplandomain.CustomPlan{}, err
	}
	if plan.Status != customplandomain.StatusApproved {
		return customplandomain.CustomPlan{}, customplandomain.ErrNotApproved
	}

	snapshot := map[string]any(plan.Quote)
	if _, err := s.subscriptions.CreateCustom(ctx, subscriptiondomain.CreateCustomRequest{
		TenantID:           plan.TenantID,
		CustomPlanID:       plan.ID,
		BillingCycleMonths: plan.BillingCycleMonths,
		BasePrice:          plan.QuotedAmount,
		PricingSnapshot:    snapshot,
	}); err != nil {
		return customplandomain.CustomPlan{}, err
	}

	var result customplandomain.CustomPlan
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := s.repo.FindByIDForUpdate(ctx, tx, plan.ID)
		if err != nil {
			return err
		}
		if locked == nil {
			return customplandomain.ErrNotFound
		}

		now := s.clock.Now()
		locked.Status = customplandomain.StatusActive
		locked.ActivatedAt = &now
		locked.UpdatedAt = now

		if err := s.repo.Update(ctx, tx, locked); err != nil {
			return err
		}

		if err := s.events.Emit(ctx, tx, locked.TenantID, eventdomain.EventCustomPlanActivated, map[string]any{
			"custom_plan_id": locked.ID.String(),
			"quoted_amount":  locked.QuotedAmount,
		}, "custom_plan.activated:"+locked.ID.String()); err != nil {
			return err
		}

		result = *locked
		return nil
	})
	if err != nil {
		return customplandomain.CustomPlan{}, err
	}

	s.auditPlan(ctx, result, "custom_plan.activated", nil)
	return result, nil
}

func (s *Service) Clone(ctx context.Context, id string) (customplandomain.CustomPlan, error) {
	source, err := s.Get(ctx, id)
	if err != nil {
		return customplandomain.CustomPlan{}, err
	}

	now := s.clock.Now()
	clone := customplandomain.CustomPlan{
		ID:                 s.genID.Generate(),
		TenantID:           source.TenantID,
		Name:               source.Name + " (copy)",
		Status:             customplandomain.StatusDraft,
		Modules:            source.Modules,
		BillingCycleMonths: source.BillingCycleMonths,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.repo.Insert(ctx, s.db, &clone); err != nil {
		return customplandomain.CustomPlan{}, err
	}
	return clone, nil
}

func (s *Service) transition(ctx context.Context, id string, from customplandomain.Status, mutate func(*customplandomain.CustomPlan)) (customplandomain.CustomPlan, error) {
	planID, err := parseID(id)
	if err != nil {
		return customplandomain.CustomPlan{}, err
	}

	var result customplandomain.CustomPlan
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		plan, err := s.repo.FindByIDForUpdate(ctx, tx, planID)
		if err != nil {
			return err
		}
		if plan == nil {
			return customplandomain.ErrNotFound
		}
		if plan.Status != from {
			return customplandomain.ErrNotPending
		}

		mutate(plan)
		plan.UpdatedAt = s.clock.Now()

		if err := s.repo.Update(ctx, tx, plan); err != nil {
			return err
		}
		result = *plan
		return nil
	})
	if err != nil {
		return customplandomain.CustomPlan{}, err
	}
	return result, nil
}

func (s *Service) auditPlan(ctx context.Context, plan customplandomain.CustomPlan, action string, metadata map[string]any) {
	targetID := plan.ID.String()
	if err := s.audit.AuditLog(ctx, &plan.TenantID, string(auditdomain.ActorTypeAdmin), nil,
		action, "custom_plan", &targetID, metadata); err != nil {
		s.log.Warn("failed to write audit log",
			zap.String("action", action),
			zap.Error(err),
		)
	}
}

func decodeSelections(raw datatypes.JSON) ([]pricingdomain.ModuleSelection, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var selections []pricingdomain.ModuleSelection
	if err := json.Unmarshal(raw, &selections); err != nil {
		return nil, err
	}
	return selections, nil
}

func quoteToMap(quote pricingdomain.Quote) (datatypes.JSONMap, error) {
	encoded, err := json.Marshal(quote)
	if err != nil {
		return nil, err
	}
	doc := datatypes.JSONMap{}
	if err := json.Unmarshal(encoded, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func parseID(id string) (snowflake.ID, error) {
	raw, err := strconv.ParseInt(strings.TrimSpace(id), 10, 64)
	if err != nil || raw == 0 {
		return 0, customplandomain.ErrInvalidID
	}
	return snowflake.ID(raw), nil
}
