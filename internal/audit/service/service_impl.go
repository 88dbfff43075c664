package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/croplytics/croplytics/internal/audit/domain"
	auditcontext "github.com/croplytics/croplytics/internal/auditcontext"
	"github.com/croplytics/croplytics/internal/tenantcontext"
	"github.com/croplytics/croplytics/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  auditdomain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  auditdomain.Repository
}

func NewService(p Params) auditdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("audit.service"),
		genID: p.GenID,
		repo:  p.Repo,
	}
}

func (s *Service) AuditLog(ctx context.Context, tenantID *snowflake.ID, actorType string, actorID *string, action string, targetType string, targetID *string, metadata map[string]any) error {
	action = strings.TrimSpace(action)
	if action == "" {
		return auditdomain.ErrInvalidAction
	}

	actorType = strings.TrimSpace(actorType)
	targetType = strings.TrimSpace(targetType)
	if targetType == "" {
		targetType = "unknown"
	}

	resolvedTenantID := s.resolveTenantID(ctx, tenantID)
	resolvedActorType, resolvedActorID := s.resolveActor(ctx, actorType, actorID)
	ipAddress := auditcontext.IPAddressFromContext(ctx)
	userAgent := auditcontext.UserAgentFromContext(ctx)

	payload := map[string]any{}
	for key, value := range metadata {
		if key == "" {
			continue
		}
		payload[key] = value
	}

	if requestID := auditcontext.RequestIDFromContext(ctx); requestID != "" {
		payload["request_id"] = requestID
	}
	if subscriptionID := auditcontext.SubscriptionIDFromContext(ctx); subscriptionID != "" {
		payload["subscription_id"] = subscriptionID
	}
	if runID := auditcontext.ProvisioningRunIDFromContext(ctx); runID != "" {
		payload["provisioning_run_id"] = runID
	}

	entry := auditdomain.AuditLog{
		ID:         s.genID.Generate(),
		TenantID:   resolvedTenantID,
		ActorType:  resolvedActorType,
		ActorID:    resolvedActorID,
		Action:     action,
		TargetType: targetType,
		TargetID:   normalizePointer(targetID),
		Metadata:   datatypes.JSONMap(payload),
		CreatedAt:  time.Now().UTC(),
	}
	if ipAddress != "" {
		entry.IPAddress = &ipAddress
	}
	if userAgent != "" {
		entry.UserAgent = &userAgent
	}

	if err := s.repo.Insert(ctx, s.db, &entry); err != nil {
		s.log.Warn("failed to write audit log", zap.String("action", action), zap.Error(err))
		return err
	}
	return nil
}

func (s *Service) List(ctx context.Context, req auditdomain.ListAuditLogRequest) (auditdomain.ListAuditLogResponse, error) {
	tenantID, ok := tenantcontext.TenantIDFromContext(ctx)
	if !ok || tenantID == 0 {
		return auditdomain.ListAuditLogResponse{}, auditdomain.ErrInvalidTenant
	}

	if req.StartAt != nil && req.EndAt != nil && req.StartAt.After(*req.EndAt) {
		return auditdomain.ListAuditLogResponse{}, auditdomain.ErrInvalidTimeRange
	}

	var cursor *auditdomain.AuditCursor
	if strings.TrimSpace(req.PageToken) != "" {
		decoded, err := pagination.DecodeCursor(req.PageToken)
		if err != nil {
			return auditdomain.ListAuditLogResponse{}, auditdomain.ErrInvalidPageToken
		}
		createdAt, err := time.Parse(time.RFC3339, decoded.CreatedAt)
		if err != nil {
			return auditdomain.ListAuditLogResponse{}, auditdomain.ErrInvalidPageToken
		}
		id, err := snowflake.ParseString(strings.TrimSpace(decoded.ID))
		if err != nil || id == 0 {
			return auditdomain.ListAuditLogResponse{}, auditdomain.ErrInvalidPageToken
		}
		cursor = &auditdomain.AuditCursor{
			ID:        id,
			CreatedAt: createdAt,
		}
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}
	if pageSize > 250 {
		pageSize = 250
	}

	items, err := s.repo.List(ctx, s.db, auditdomain.ListFilter{
		TenantID:   tenantID,
		Action:     req.Action,
		TargetType: req.TargetType,
		TargetID:   req.TargetID,
		ActorType:  req.ActorType,
		StartAt:    req.StartAt,
		EndAt:      req.EndAt,
		Cursor:     cursor,
		Limit:      pageSize,
	})
	if err != nil {
		return auditdomain.ListAuditLogResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, int32(pageSize), func(item *auditdomain.AuditLog) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        item.ID.String(),
			CreatedAt: item.CreatedAt.Format(time.RFC3339),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if pageInfo != nil && pageInfo.HasMore && len(items) > pageSize {
		items = items[:pageSize]
	}

	logs := make([]auditdomain.AuditLog, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		logs = append(logs, *item)
	}

	resp := auditdomain.ListAuditLogResponse{AuditLogs: logs}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}
	return resp, nil
}

func (s *Service) resolveTenantID(ctx context.Context, tenantID *snowflake.ID) *snowflake.ID {
	if tenantID != nil && *tenantID != 0 {
		return tenantID
	}
	resolved, ok := tenantcontext.TenantIDFromContext(ctx)
	if !ok || resolved == 0 {
		return nil
	}
	return &resolved
}

func (s *Service) resolveActor(ctx context.Context, actorType string, actorID *string) (string, *string) {
	if actorType == "" {
		if ctxType, ctxID := auditcontext.ActorFromContext(ctx); ctxType != "" {
			actorType = ctxType
			if actorID == nil || strings.TrimSpace(*actorID) == "" {
				if ctxID != "" {
					actorID = &ctxID
				}
			}
		}
	}
	if actorType == "" {
		actorType = string(auditdomain.ActorTypeSystem)
	}

	return actorType, normalizePointer(actorID)
}

func normalizePointer(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
