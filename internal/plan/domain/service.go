package domain

import (
	"context"
	"errors"
)

type CreatePlanRequest struct {
	Code            string         `json:"code"`
	Name            string         `json:"name"`
	Description     *string        `json:"description,omitempty"`
	Tier            PlanTier       `json:"tier"`
	MonthlyPrice    int64          `json:"monthly_price"`
	QuarterlyPrice  int64          `json:"quarterly_price"`
	SemiAnnualPrice int64          `json:"semi_annual_price"`
	AnnualPrice     int64          `json:"annual_price"`
	MaxUsers        int            `json:"max_users"`
	MaxSensors      int            `json:"max_sensors"`
	MaxFarms        int            `json:"max_farms"`
	StorageGB       int            `json:"storage_gb"`
	Features        map[string]any `json:"features,omitempty"`
}

type UpdatePlanRequest struct {
	Name            *string        `json:"name,omitempty"`
	Description     *string        `json:"description,omitempty"`
	MonthlyPrice    *int64         `json:"monthly_price,omitempty"`
	QuarterlyPrice  *int64         `json:"quarterly_price,omitempty"`
	SemiAnnualPrice *int64         `json:"semi_annual_price,omitempty"`
	AnnualPrice     *int64         `json:"annual_price,omitempty"`
	MaxUsers        *int           `json:"max_users,omitempty"`
	MaxSensors      *int           `json:"max_sensors,omitempty"`
	MaxFarms        *int           `json:"max_farms,omitempty"`
	StorageGB       *int           `json:"storage_gb,omitempty"`
	Features        map[string]any `json:"features,omitempty"`
}

type ListPlanRequest struct {
	IncludeDeprecated bool
	Tier              string
}

type Service interface {
	Create(ctx context.Context, req CreatePlanRequest) (PlanDefinition, error)
	Update(ctx context.Context, id string, req UpdatePlanRequest) (PlanDefinition, error)
	GetByID(ctx context.Context, id string) (PlanDefinition, error)
	GetByCode(ctx context.Context, code string) (PlanDefinition, error)
	List(ctx context.Context, req ListPlanRequest) ([]PlanDefinition, error)
	Deprecate(ctx context.Context, id string) (PlanDefinition, error)
}

var (
	ErrPlanNotFound      = errors.New("plan_not_found")
	ErrInvalidPlanID     = errors.New("invalid_plan_id")
	ErrInvalidPlanCode   = errors.New("invalid_plan_code")
	ErrInvalidPlanName   = errors.New("invalid_plan_name")
	ErrInvalidTier       = errors.New("invalid_tier")
	ErrInvalidPlanPrice  = errors.New("invalid_plan_price")
	ErrDuplicatePlanCode = errors.New("duplicate_plan_code")
	ErrPlanDeprecated    = errors.New("plan_deprecated")
)
