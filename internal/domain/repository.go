// Package domain defines the core interfaces and types for Underwriter.
package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence.
type Repository interface {
	// Bank settings
	SaveBankSettings(ctx context.Context, s *BankSettings) error
	GetBankSettings(ctx context.Context, code string) (*BankSettings, error)
	ListBankSettings(ctx context.Context) ([]*BankSettings, error)
	DeleteBankSettings(ctx context.Context, code string) error

	// Global settings (single row)
	SaveGlobalSettings(ctx context.Context, s *GlobalSettings) error
	GetGlobalSettings(ctx context.Context) (*GlobalSettings, error)

	// Evaluation results
	SaveEvaluation(ctx context.Context, eval *Evaluation) error
	GetEvaluation(ctx context.Context, evalID string) (*Evaluation, error)
	ListEvaluationsByRequest(ctx context.Context, requestID string) ([]*Evaluation, error)

	// Collaborator data
	SaveContract(ctx context.Context, c *Contract) error
	ListContracts(ctx context.Context, inn string) ([]Contract, error)
	SaveQuarterValue(ctx context.Context, v *QuarterValue) error
	LatestQuarterValue(ctx context.Context, inn string, code int) (*QuarterValue, error)
	SaveRegistryVerdict(ctx context.Context, v *RegistryVerdict) error
	GetRegistryVerdict(ctx context.Context, kind RegistryKind, subject string) (*RegistryVerdict, error)

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
