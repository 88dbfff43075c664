// Package provisioning runs the post-creation workflow that takes a tenant
// from PENDING to ACTIVE.
package provisioning

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
)

// StepStatus tracks one step of a provisioning run.
type StepStatus string

const (
	StepPending    StepStatus = "pending"
	StepInProgress StepStatus = "in_progress"
	StepCompleted  StepStatus = "completed"
	StepFailed     StepStatus = "failed"
)

// Step names, in execution order. validate, create_schema and activate are
// mandatory; the rest may fail without sinking the run.
const (
	StepValidate        = "validate"
	StepCreateSchema    = "create_schema"
	StepSeedRoles       = "seed_roles"
	StepSeedConfig      = "seed_config"
	StepCreateAdminUser = "create_admin_user"
	StepAssignModules   = "assign_modules"
	StepActivate        = "activate"
)

type Step struct {
	Name      string     `json:"name"`
	Status    StepStatus `json:"status"`
	Error     string     `json:"error,omitempty"`
	StartedAt time.Time  `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

// Report is the full outcome of one provisioning run. Success means every
// mandatory step completed; optional failures show up in Steps but do not
// flip it.
type Report struct {
	RunID      uuid.UUID    `json:"run_id"`
	TenantID   snowflake.ID `json:"tenant_id"`
	Success    bool         `json:"success"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	Steps      []Step       `json:"steps"`
}

// Options tunes one provisioning run. AdminEmail triggers the optional
// admin-user step; Modules triggers the optional module assignment.
type Options struct {
	AdminEmail string   `json:"admin_email,omitempty"`
	AdminName  string   `json:"admin_name,omitempty"`
	Modules    []string `json:"modules,omitempty"`
}

type Service interface {
	Provision(ctx context.Context, tenantID string, opts Options) (Report, error)
}
