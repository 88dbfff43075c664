// Package schemamanager creates and seeds per-tenant database schemas.
package schemamanager

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Manager owns the per-tenant schema lifecycle. Only creation is covered;
// what lives inside the schema belongs to the application layer.
type Manager interface {
	CreateTenantSchema(ctx context.Context, tenantSlug string) error
	SeedRoles(ctx context.Context, tenantSlug string) error
	SeedConfig(ctx context.Context, tenantSlug string) error
	CreateAdminUser(ctx context.Context, tenantSlug string, id int64, email, name, passwordHash string) error
	SchemaName(tenantSlug string) string
}

var slugPattern = regexp.MustCompile(`^[a-z0-9-]+$`)

type Params struct {
	fx.In

	DB  *gorm.DB
	Log *zap.Logger
}

type manager struct {
	db  *gorm.DB
	log *zap.Logger
}

func New(p Params) Manager {
	return &manager{
		db:  p.DB,
		log: p.Log.Named("schemamanager"),
	}
}

func (m *manager) SchemaName(tenantSlug string) string {
	return "tenant_" + strings.ReplaceAll(tenantSlug, "-", "_")
}

// CreateTenantSchema provisions the schema and its baseline tables. The slug
// is validated against a strict pattern before being interpolated; schema
// names cannot be bound parameters.
func (m *manager) CreateTenantSchema(ctx context.Context, tenantSlug string) error {
	schema, err := m.schemaFor(tenantSlug)
	if err != nil {
		return err
	}

	statements := []string{
		fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %s`, schema),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.users (
			id BIGINT PRIMARY KEY,
			email TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL,
			password_hash TEXT,
			role TEXT NOT NULL DEFAULT 'member',
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`, schema),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.roles (
			id BIGINT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			permissions JSONB NOT NULL DEFAULT '[]'
		)`, schema),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.settings (
			key TEXT PRIMARY KEY,
			value JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`, schema),
	}

	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, stmt := range statements {
			if err := tx.Exec(stmt).Error; err != nil {
				return err
			}
		}
		m.log.Info("tenant schema created", zap.String("schema", schema))
		return nil
	})
}

// SeedRoles installs the default role set.
func (m *manager) SeedRoles(ctx context.Context, tenantSlug string) error {
	schema, err := m.schemaFor(tenantSlug)
	if err != nil {
		return err
	}

	roles := []struct {
		id          int64
		name        string
		permissions string
	}{
		{1, "owner", `["*"]`},
		{2, "admin", `["tenant:read","tenant:write","billing:read"]`},
		{3, "member", `["tenant:read"]`},
	}

	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, role := range roles {
			stmt := fmt.Sprintf(
				`INSERT INTO %s.roles (id, name, permissions) VALUES (?, ?, ?) ON CONFLICT (name) DO NOTHING`,
				schema,
			)
			if err := tx.Exec(stmt, role.id, role.name, role.permissions).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// SeedConfig installs the default tenant settings.
func (m *manager) SeedConfig(ctx context.Context, tenantSlug string) error {
	schema, err := m.schemaFor(tenantSlug)
	if err != nil {
		return err
	}

	settings := map[string]string{
		"timezone":        `"UTC"`,
		"locale":          `"en-US"`,
		"sensor_interval": `300`,
		"notifications":   `{"email": true, "sms": false}`,
	}

	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for key, value := range settings {
			stmt := fmt.Sprintf(
				`INSERT INTO %s.settings (key, value) VALUES (?, ?) ON CONFLICT (key) DO NOTHING`,
				schema,
			)
			if err := tx.Exec(stmt, key, value).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// CreateAdminUser inserts the initial owner account into the tenant schema.
func (m *manager) CreateAdminUser(ctx context.Context, tenantSlug string, id int64, email, name, passwordHash string) error {
	schema, err := m.schemaFor(tenantSlug)
	if err != nil {
		return err
	}

	stmt := fmt.Sprintf(
		`INSERT INTO %s.users (id, email, name, password_hash, role)
		 VALUES (?, ?, ?, ?, 'owner') ON CONFLICT (email) DO NOTHING`,
		schema,
	)
	return m.db.WithContext(ctx).Exec(stmt, id, email, name, passwordHash).Error
}

func (m *manager) schemaFor(tenantSlug string) (string, error) {
	tenantSlug = strings.TrimSpace(tenantSlug)
	if tenantSlug == "" || !slugPattern.MatchString(tenantSlug) {
		return "", fmt.Errorf("invalid tenant slug %q", tenantSlug)
	}
	return m.SchemaName(tenantSlug), nil
}

var Module = fx.Module("schemamanager",
	fx.Provide(New),
)
