// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotDraft is returned when a write targets a ruleset that has
	// already been published. Active and archived rulesets are immutable.
	ErrNotDraft = errors.New("ruleset is not a draft")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveRuleset stores a draft ruleset with tenant isolation. Re-saving an
// existing draft overwrites it; rulesets that have been published are
// immutable and reject the write.
func (r *SQLRepository) SaveRuleset(ctx context.Context, tenantID string, rs *domain.Ruleset) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if rs.Status != domain.StatusDraft {
		return fmt.Errorf("%w: only drafts can be saved", ErrNotDraft)
	}
	if err := rs.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	rules, err := json.Marshal(rs.Rules)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if rs.CreatedAt.IsZero() {
		rs.CreatedAt = now
	}
	rs.UpdatedAt = now

	query := `
		INSERT INTO rulesets (
			id, tenant_id, domain, jurisdiction, rulebook_version,
			ruleset_version, status, rules, published_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, NULL, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			domain = excluded.domain,
			jurisdiction = excluded.jurisdiction,
			rulebook_version = excluded.rulebook_version,
			ruleset_version = excluded.ruleset_version,
			rules = excluded.rules,
			updated_at = excluded.updated_at
		WHERE rulesets.status = 'draft' AND rulesets.tenant_id = excluded.tenant_id
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query),
		rs.ID, tenantID, rs.Domain, rs.Jurisdiction, rs.RulebookVersion,
		rs.RulesetVersion, rs.Status, string(rules),
		rs.CreatedAt, rs.UpdatedAt,
	)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotDraft
	}
	return nil
}

// GetRuleset retrieves a ruleset by ID with tenant isolation.
func (r *SQLRepository) GetRuleset(ctx context.Context, tenantID string, id string) (*domain.Ruleset, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := selectRuleset + ` WHERE tenant_id = ? AND id = ?`
	return r.scanRuleset(r.db.QueryRowContext(ctx, r.rebind(query), tenantID, id))
}

// GetActiveRuleset retrieves the single active ruleset for a scope key.
func (r *SQLRepository) GetActiveRuleset(ctx context.Context, tenantID string, key domain.RulesetKey) (*domain.Ruleset, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := selectRuleset + `
		WHERE tenant_id = ? AND domain = ? AND jurisdiction = ? AND status = 'active'
	`
	return r.scanRuleset(r.db.QueryRowContext(ctx, r.rebind(query), tenantID, key.Domain, key.Jurisdiction))
}

// ListRulesets retrieves every ruleset version for a scope key, newest first.
func (r *SQLRepository) ListRulesets(ctx context.Context, tenantID string, key domain.RulesetKey) ([]*domain.Ruleset, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := selectRuleset + `
		WHERE tenant_id = ? AND domain = ? AND jurisdiction = ?
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, key.Domain, key.Jurisdiction)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rulesets []*domain.Ruleset
	for rows.Next() {
		rs, err := r.scanRulesetRow(rows)
		if err != nil {
			return nil, err
		}
		rulesets = append(rulesets, rs)
	}

	return rulesets, rows.Err()
}

// PublishRuleset flips a draft to active and archives the previously active
// ruleset for the same scope in one transaction, keeping the exactly-one-
// active invariant even under concurrent publishes.
func (r *SQLRepository) PublishRuleset(ctx context.Context, tenantID string, id string) (*domain.Ruleset, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	query := selectRuleset + ` WHERE tenant_id = ? AND id = ?`
	rs, err := r.scanRuleset(tx.QueryRowContext(ctx, r.rebind(query), tenantID, id))
	if err != nil {
		return nil, err
	}
	if rs.Status != domain.StatusDraft {
		return nil, ErrNotDraft
	}

	now := time.Now().UTC()

	archive := `
		UPDATE rulesets
		SET status = 'archived', updated_at = ?
		WHERE tenant_id = ? AND domain = ? AND jurisdiction = ? AND status = 'active'
	`
	if _, err := tx.ExecContext(ctx, r.rebind(archive), now, tenantID, rs.Domain, rs.Jurisdiction); err != nil {
		return nil, err
	}

	activate := `
		UPDATE rulesets
		SET status = 'active', published_at = ?, updated_at = ?
		WHERE tenant_id = ? AND id = ? AND status = 'draft'
	`
	result, err := tx.ExecContext(ctx, r.rebind(activate), now, now, tenantID, id)
	if err != nil {
		return nil, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		// A concurrent publish won the race.
		return nil, ErrNotDraft
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	rs.Status = domain.StatusActive
	rs.PublishedAt = &now
	rs.UpdatedAt = now
	return rs, nil
}

// SaveReport stores a validation report with tenant isolation.
func (r *SQLRepository) SaveReport(ctx context.Context, tenantID string, report *domain.ValidationReport) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	violations, _ := json.Marshal(report.Violations)
	evalErrors, _ := json.Marshal(report.Errors)
	metadata, _ := json.Marshal(report.Metadata)

	query := `
		INSERT INTO validation_reports (
			id, tenant_id, document_type, domain, jurisdiction,
			ruleset_version, status, score, violations, errors,
			evaluated_at, metadata
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		report.ID, tenantID, report.DocumentType,
		report.Domain, report.Jurisdiction,
		report.RulesetVersion, report.Status, report.Score,
		string(violations), string(evalErrors),
		report.EvaluatedAt, string(metadata),
	)
	return err
}

// GetReport retrieves a validation report by ID with tenant isolation.
func (r *SQLRepository) GetReport(ctx context.Context, tenantID string, reportID string) (*domain.ValidationReport, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, document_type, domain, jurisdiction,
			   ruleset_version, status, score, violations, errors,
			   evaluated_at, metadata
		FROM validation_reports
		WHERE tenant_id = ? AND id = ?
	`

	var report domain.ValidationReport
	var violations, evalErrors, metadata string

	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, reportID).Scan(
		&report.ID, &report.TenantID, &report.DocumentType,
		&report.Domain, &report.Jurisdiction,
		&report.RulesetVersion, &report.Status, &report.Score,
		&violations, &evalErrors,
		&report.EvaluatedAt, &metadata,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	json.Unmarshal([]byte(violations), &report.Violations)
	json.Unmarshal([]byte(evalErrors), &report.Errors)
	json.Unmarshal([]byte(metadata), &report.Metadata)

	return &report, nil
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

const selectRuleset = `
	SELECT id, tenant_id, domain, jurisdiction, rulebook_version,
		   ruleset_version, status, rules, published_at, created_at, updated_at
	FROM rulesets
`

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *SQLRepository) scanRuleset(row *sql.Row) (*domain.Ruleset, error) {
	rs, err := r.scanRulesetRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rs, err
}

func (r *SQLRepository) scanRulesetRow(row rowScanner) (*domain.Ruleset, error) {
	var rs domain.Ruleset
	var rules string
	var publishedAt sql.NullTime

	err := row.Scan(
		&rs.ID, &rs.TenantID, &rs.Domain, &rs.Jurisdiction, &rs.RulebookVersion,
		&rs.RulesetVersion, &rs.Status, &rules, &publishedAt,
		&rs.CreatedAt, &rs.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if publishedAt.Valid {
		t := publishedAt.Time
		rs.PublishedAt = &t
	}
	if err := json.Unmarshal([]byte(rules), &rs.Rules); err != nil {
		return nil, fmt.Errorf("failed to parse ruleset rules: %w", err)
	}

	return &rs, nil
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	// Convert ? to $1, $2, etc.
	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
