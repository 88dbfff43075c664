package events

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	eventdomain "github.com/croplytics/croplytics/internal/events/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Publisher records outbox rows inside the caller's transaction. A separate
// relay drains published=false rows; emitting never fails the business write
// except on storage errors.
type Publisher interface {
	Emit(ctx context.Context, tx *gorm.DB, tenantID snowflake.ID, eventType string, payload map[string]any, dedupeKey string) error
}

type Params struct {
	fx.In

	Log   *zap.Logger
	GenID *snowflake.Node
}

type publisher struct {
	log   *zap.Logger
	genID *snowflake.Node
}

func NewPublisher(p Params) Publisher {
	return &publisher{
		log:   p.Log.Named("events.publisher"),
		genID: p.GenID,
	}
}

func (p *publisher) Emit(ctx context.Context, tx *gorm.DB, tenantID snowflake.ID, eventType string, payload map[string]any, dedupeKey string) error {
	eventType = strings.TrimSpace(eventType)
	if eventType == "" {
		return nil
	}
	if payload == nil {
		payload = map[string]any{}
	}

	event := eventdomain.BillingEvent{
		ID:        p.genID.Generate(),
		TenantID:  tenantID,
		EventType: eventType,
		Payload:   datatypes.JSONMap(payload),
		CreatedAt: time.Now().UTC(),
	}
	if key := strings.TrimSpace(dedupeKey); key != "" {
		event.DedupeKey = &key
	}

	if err := tx.WithContext(ctx).Create(&event).Error; err != nil {
		p.log.Warn("failed to emit billing event",
			zap.String("event_type", eventType),
			zap.Error(err),
		)
		return err
	}
	return nil
}

var Module = fx.Module("events",
	fx.Provide(NewPublisher),
)
