// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/assurnet/vigil/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
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

// configurePool applies the pool settings the openers share. Zero values
// keep the database/sql defaults.
func configurePool(db *sql.DB, cfg domain.RepositoryConfig) {
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas(r.driver) {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// RecordCase upserts a fraud case for an entity. Scores below the
// persistence threshold are discarded without touching an existing case.
// Re-recording an entity overwrites its score and reopens the case.
func (r *SQLRepository) RecordCase(ctx context.Context, entityType, entityID string, score int, reason string) error {
	if entityType == "" || entityID == "" {
		return fmt.Errorf("%w: entityType and entityID are required", ErrInvalidInput)
	}

	if score < domain.CaseThreshold {
		return nil
	}

	query := `
		INSERT INTO fraud_cases (
			entity_type, entity_id, score, risk_level, reason, status, detected_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (entity_type, entity_id) DO UPDATE SET
			score = excluded.score,
			risk_level = excluded.risk_level,
			reason = excluded.reason,
			status = excluded.status,
			detected_at = excluded.detected_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		entityType, entityID, score,
		domain.CaseRiskLevel(score), reason,
		domain.CaseStatusOpen, time.Now().UTC(),
	)
	return err
}

// GetCase retrieves the fraud case for an entity.
func (r *SQLRepository) GetCase(ctx context.Context, entityType, entityID string) (*domain.FraudCase, error) {
	if entityType == "" || entityID == "" {
		return nil, fmt.Errorf("%w: entityType and entityID are required", ErrInvalidInput)
	}

	query := `
		SELECT id, entity_type, entity_id, score, risk_level, reason, status, detected_at
		FROM fraud_cases
		WHERE entity_type = ? AND entity_id = ?
	`

	var c domain.FraudCase
	err := r.db.QueryRowContext(ctx, r.rebind(query), entityType, entityID).Scan(
		&c.ID, &c.EntityType, &c.EntityID,
		&c.Score, &c.RiskLevel, &c.Reason,
		&c.Status, &c.DetectedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &c, nil
}

// ListCases retrieves fraud cases matching a filter, newest first.
func (r *SQLRepository) ListCases(ctx context.Context, filter domain.CaseFilter) ([]*domain.FraudCase, error) {
	var (
		conds []string
		args  []any
	)

	if filter.EntityType != "" {
		conds = append(conds, "entity_type = ?")
		args = append(args, filter.EntityType)
	}
	if filter.MinScore > 0 {
		conds = append(conds, "score >= ?")
		args = append(args, filter.MinScore)
	}
	if filter.Status != "" && filter.Status != domain.CaseStatusAll {
		conds = append(conds, "status = ?")
		args = append(args, filter.Status)
	}

	query := `
		SELECT id, entity_type, entity_id, score, risk_level, reason, status, detected_at
		FROM fraud_cases
	`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY detected_at DESC, id DESC"

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cases []*domain.FraudCase
	for rows.Next() {
		var c domain.FraudCase
		if err := rows.Scan(
			&c.ID, &c.EntityType, &c.EntityID,
			&c.Score, &c.RiskLevel, &c.Reason,
			&c.Status, &c.DetectedAt,
		); err != nil {
			return nil, err
		}
		cases = append(cases, &c)
	}

	return cases, rows.Err()
}

// ReviewCase marks a fraud case as reviewed. Reviewing an already reviewed
// case succeeds.
func (r *SQLRepository) ReviewCase(ctx context.Context, id int64) error {
	query := `
		UPDATE fraud_cases
		SET status = ?
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query), domain.CaseStatusReviewed, id)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

// SaveClaimRule upserts an operator-defined claim rule.
func (r *SQLRepository) SaveClaimRule(ctx context.Context, rule *domain.ClaimRule) error {
	if rule == nil || rule.ID == "" {
		return fmt.Errorf("%w: rule id is required", ErrInvalidInput)
	}
	if rule.Expression == "" {
		return fmt.Errorf("%w: rule expression is required", ErrInvalidInput)
	}

	enabled := 0
	if rule.Enabled {
		enabled = 1
	}
	now := time.Now().UTC()

	query := `
		INSERT INTO claim_rules (
			id, name, description, expression, weight, factor, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			expression = excluded.expression,
			weight = excluded.weight,
			factor = excluded.factor,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, rule.Name, rule.Description,
		rule.Expression, rule.Weight, rule.Factor,
		enabled, now, now,
	)
	return err
}

// ListClaimRules retrieves all claim rules, enabled or not. The engine
// decides which ones to load.
func (r *SQLRepository) ListClaimRules(ctx context.Context) ([]*domain.ClaimRule, error) {
	query := `
		SELECT id, name, description, expression, weight, factor, enabled
		FROM claim_rules
		ORDER BY name
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []*domain.ClaimRule
	for rows.Next() {
		var rule domain.ClaimRule
		var description, factor sql.NullString
		var enabled int

		if err := rows.Scan(
			&rule.ID, &rule.Name, &description,
			&rule.Expression, &rule.Weight, &factor,
			&enabled,
		); err != nil {
			return nil, err
		}

		rule.Description = description.String
		rule.Factor = factor.String
		rule.Enabled = enabled == 1
		rules = append(rules, &rule)
	}

	return rules, rows.Err()
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
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
