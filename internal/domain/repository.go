// Package domain defines the core interfaces and types for Kestrel.
package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence.
// All methods require tenantID for strict multi-tenancy isolation.
type Repository interface {
	// Ruleset operations. Rulesets are immutable once active: SaveRuleset
	// accepts drafts only, and amendments to an active set are made by
	// saving a new draft version.
	SaveRuleset(ctx context.Context, tenantID string, rs *Ruleset) error
	GetRuleset(ctx context.Context, tenantID string, id string) (*Ruleset, error)
	GetActiveRuleset(ctx context.Context, tenantID string, key RulesetKey) (*Ruleset, error)
	ListRulesets(ctx context.Context, tenantID string, key RulesetKey) ([]*Ruleset, error)

	// PublishRuleset flips a draft to active and archives the previously
	// active ruleset for the same key, in one transaction.
	PublishRuleset(ctx context.Context, tenantID string, id string) (*Ruleset, error)

	// Validation report persistence for audit.
	SaveReport(ctx context.Context, tenantID string, report *ValidationReport) error
	GetReport(ctx context.Context, tenantID string, reportID string) (*ValidationReport, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
