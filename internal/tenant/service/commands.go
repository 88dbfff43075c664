package service

import (
	"context"
	"strings"

	eventdomain "github.com/croplytics/croplytics/internal/events/domain"
	tenantdomain "github.com/croplytics/croplytics/internal/tenant/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Suspend blocks an ACTIVE tenant. Any other starting state is rejected.
func (s *Service) Suspend(ctx context.Context, id string, reason string) (tenantdomain.Tenant, error) {
	reason = strings.TrimSpace(reason)

	tenant, err := s.command(ctx, id, func(t *tenantdomain.Tenant) error {
		if t.Status() != tenantdomain.StatusActive {
			return tenantdomain.ErrIllegalState
		}
		now := s.clock.Now()
		t.StoredStatus = tenantdomain.StoredStatusFor(tenantdomain.StatusSuspended)
		t.SuspendedAt = &now
		if reason != "" {
			t.SuspensionReason = &reason
		}
		return nil
	}, eventdomain.EventTenantSuspended, map[string]any{"reason": reason})
	if err != nil {
		return tenantdomain.Tenant{}, err
	}

	s.auditTenant(ctx, tenant, "tenant.suspended", map[string]any{"reason": reason})
	return tenant, nil
}

// Activate brings a PENDING, SUSPENDED or DEACTIVATED tenant into service.
func (s *Service) Activate(ctx context.Context, id string) (tenantdomain.Tenant, error) {
	tenant, err := s.command(ctx, id, func(t *tenantdomain.Tenant) error {
		switch t.Status() {
		case tenantdomain.StatusPending, tenantdomain.StatusSuspended, tenantdomain.StatusDeactivated:
		default:
			return tenantdomain.ErrIllegalState
		}
		t.StoredStatus = tenantdomain.StoredStatusFor(tenantdomain.StatusActive)
		t.SuspendedAt = nil
		t.SuspensionReason = nil
		t.ArchivedAt = nil
		return nil
	}, eventdomain.EventTenantActivated, nil)
	if err != nil {
		return tenantdomain.Tenant{}, err
	}

	s.auditTenant(ctx, tenant, "tenant.activated", nil)
	return tenant, nil
}

// Deactivate takes an ACTIVE or SUSPENDED tenant out of service without
// archiving its data.
func (s *Service) Deactivate(ctx context.Context, id string) (tenantdomain.Tenant, error) {
	tenant, err := s.command(ctx, id, func(t *tenantdomain.Tenant) error {
		switch t.Status() {
		case tenantdomain.StatusActive, tenantdomain.StatusSuspended:
		default:
			return tenantdomain.ErrIllegalState
		}
		t.StoredStatus = tenantdomain.StoredStatusFor(tenantdomain.StatusDeactivated)
		t.ArchivedAt = nil
		return nil
	}, eventdomain.EventTenantDeactivated, nil)
	if err != nil {
		return tenantdomain.Tenant{}, err
	}

	s.auditTenant(ctx, tenant, "tenant.deactivated", nil)
	return tenant, nil
}

// Archive is allowed from any state except ARCHIVED itself.
func (s *Service) Archive(ctx context.Context, id string) (tenantdomain.Tenant, error) {
	tenant, err := s.command(ctx, id, func(t *tenantdomain.Tenant) error {
		if t.Status() == tenantdomain.StatusArchived {
			return tenantdomain.ErrIllegalState
		}
		now := s.clock.Now()
		t.StoredStatus = tenantdomain.StoredStatusFor(tenantdomain.StatusArchived)
		t.ArchivedAt = &now
		return nil
	}, eventdomain.EventTenantArchived, nil)
	if err != nil {
		return tenantdomain.Tenant{}, err
	}

	s.auditTenant(ctx, tenant, "tenant.archived", nil)
	return tenant, nil
}

func (s *Service) BulkSuspend(ctx context.Context, ids []string, reason string) []tenantdomain.BulkResult {
	results := make([]tenantdomain.BulkResult, 0, len(ids))
	for _, id := range ids {
		result := tenantdomain.BulkResult{TenantID: id, OK: true}
		if _, err := s.Suspend(ctx, id, reason); err != nil {
			result.OK = false
			result.Error = err.Error()
		}
		results = append(results, result)
	}
	return results
}

func (s *Service) BulkActivate(ctx context.Context, ids []string) []tenantdomain.BulkResult {
	results := make([]tenantdomain.BulkResult, 0, len(ids))
	for _, id := range ids {
		result := tenantdomain.BulkResult{TenantID: id, OK: true}
		if _, err := s.Activate(ctx, id); err != nil {
			result.OK = false
			result.Error = err.Error()
		}
		results = append(results, result)
	}
	return results
}

// command runs one lifecycle mutation under a row lock, then emits the
// outbox event in the same transaction.
func (s *Service) command(ctx context.Context, id string, mutate func(*tenantdomain.Tenant) error, eventType string, payload map[string]any) (tenantdomain.Tenant, error) {
	tenantID, err := parseID(id)
	if err != nil {
		return tenantdomain.Tenant{}, err
	}

	var result tenantdomain.Tenant
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		tenant, err := s.repo.FindByIDForUpdate(ctx, tx, tenantID)
		if err != nil {
			return err
		}
		if tenant == nil {
			return tenantdomain.ErrTenantNotFound
		}

		if err := mutate(tenant); err != nil {
			return err
		}
		tenant.UpdatedAt = s.clock.Now()

		if err := s.repo.Update(ctx, tx, tenant); err != nil {
			return err
		}

		if payload == nil {
			payload = map[string]any{}
		}
		payload["tenant_id"] = tenant.ID.String()
		payload["status"] = string(tenant.Status())
		if err := s.events.Emit(ctx, tx, tenant.ID, eventType, payload, ""); err != nil {
			return err
		}

		result = *tenant
		return nil
	})
	if err != nil {
		return tenantdomain.Tenant{}, err
	}

	s.log.Info("tenant state changed",
		zap.String("tenant_id", result.ID.String()),
		zap.String("status", string(result.Status())),
	)
	return result, nil
}
