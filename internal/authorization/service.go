package authorization

import (
	"context"
	"errors"
)

var (
	ErrInvalidActor  = errors.New("invalid_actor")
	ErrInvalidTenant = errors.New("invalid_tenant")
	ErrInvalidObject = errors.New("invalid_object")
	ErrInvalidAction = errors.New("invalid_action")
	ErrForbidden     = errors.New("forbidden")
)

// Service answers whether an actor may perform an action on an object
// within a tenant. Actors are "system" or "user:<id>"; tenant-less
// administrative checks pass "global" as the tenant.
type Service interface {
	Authorize(ctx context.Context, actor string, tenantID string, object string, action string) error
}
