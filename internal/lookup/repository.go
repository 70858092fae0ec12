package lookup

import (
	"context"
	"errors"
	"time"

	"github.com/opensource-finance/underwriter/internal/domain"
	"github.com/opensource-finance/underwriter/internal/repository"
)

// RepositoryRegistry answers registry checks from stored registry entries.
// Subjects without an entry are not listed.
type RepositoryRegistry struct {
	repo domain.Repository
	now  func() time.Time
}

// NewRepositoryRegistry creates a registry checker over repo.
func NewRepositoryRegistry(repo domain.Repository) *RepositoryRegistry {
	return &RepositoryRegistry{repo: repo, now: time.Now}
}

func (r *RepositoryRegistry) Check(ctx context.Context, kind domain.RegistryKind, subject string) (*domain.RegistryVerdict, error) {
	v, err := r.repo.GetRegistryVerdict(ctx, kind, subject)
	if errors.Is(err, repository.ErrNotFound) {
		return &domain.RegistryVerdict{
			Kind:      kind,
			Subject:   subject,
			Status:    "not_found",
			CheckedAt: r.now().UTC(),
		}, nil
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}

// RepositoryFinancials serves the latest stored statement line.
type RepositoryFinancials struct {
	repo domain.Repository
}

// NewRepositoryFinancials creates a financial statements source over repo.
func NewRepositoryFinancials(repo domain.Repository) *RepositoryFinancials {
	return &RepositoryFinancials{repo: repo}
}

func (r *RepositoryFinancials) QuarterValue(ctx context.Context, inn string, code int) (float64, bool, error) {
	v, err := r.repo.LatestQuarterValue(ctx, inn, code)
	if errors.Is(err, repository.ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return v.Value, true, nil
}

// RepositoryContracts lists stored contracts.
type RepositoryContracts struct {
	repo domain.Repository
}

// NewRepositoryContracts creates a contract history over repo.
func NewRepositoryContracts(repo domain.Repository) *RepositoryContracts {
	return &RepositoryContracts{repo: repo}
}

func (r *RepositoryContracts) Contracts(ctx context.Context, inn string) ([]domain.Contract, error) {
	return r.repo.ListContracts(ctx, inn)
}

// FromRepository returns every collaborator backed by repo.
func FromRepository(repo domain.Repository) domain.Lookups {
	return domain.Lookups{
		Financials: NewRepositoryFinancials(repo),
		Contracts:  NewRepositoryContracts(repo),
		Registry:   NewRepositoryRegistry(repo),
	}
}
