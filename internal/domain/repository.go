package domain

import (
	"context"
	"time"
)

// Repository is the persistence boundary. Fraud cases are the only state
// required to survive restarts; claim rules share the same store so they can
// be hot-reloaded into the engine.
type Repository interface {
	// Fraud case operations
	RecordCase(ctx context.Context, entityType, entityID string, score int, reason string) error
	GetCase(ctx context.Context, entityType, entityID string) (*FraudCase, error)
	ListCases(ctx context.Context, filter CaseFilter) ([]*FraudCase, error)
	ReviewCase(ctx context.Context, id int64) error

	// Claim rule operations
	SaveClaimRule(ctx context.Context, rule *ClaimRule) error
	ListClaimRules(ctx context.Context) ([]*ClaimRule, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string `json:"driver" yaml:"driver"`

	// SQLite specific
	SQLitePath string `json:"sqlitePath" yaml:"sqlite_path"`

	// PostgreSQL specific
	PostgresHost     string `json:"postgresHost" yaml:"postgres_host"`
	PostgresPort     int    `json:"postgresPort" yaml:"postgres_port"`
	PostgresUser     string `json:"postgresUser" yaml:"postgres_user"`
	PostgresPassword string `json:"-" yaml:"postgres_password"`
	PostgresDB       string `json:"postgresDb" yaml:"postgres_db"`
	PostgresSSLMode  string `json:"postgresSslMode" yaml:"postgres_ssl_mode"`

	// Connection pool settings
	MaxOpenConns    int           `json:"maxOpenConns" yaml:"max_open_conns"`
	MaxIdleConns    int           `json:"maxIdleConns" yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"connMaxLifetime" yaml:"conn_max_lifetime"`
}
