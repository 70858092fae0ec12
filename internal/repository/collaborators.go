package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/opensource-finance/underwriter/internal/domain"
)

// SaveContract creates or replaces a contract.
func (r *SQLRepository) SaveContract(ctx context.Context, c *domain.Contract) error {
	if c == nil || c.ID == "" || c.INN == "" {
		return fmt.Errorf("%w: contract id and inn are required", ErrInvalidInput)
	}

	var finished sql.NullTime
	if c.FinishedAt != nil {
		finished = sql.NullTime{Time: *c.FinishedAt, Valid: true}
	}

	query := `
		INSERT INTO contracts (id, inn, number, status, amount, law, signed_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			inn = excluded.inn,
			number = excluded.number,
			status = excluded.status,
			amount = excluded.amount,
			law = excluded.law,
			signed_at = excluded.signed_at,
			finished_at = excluded.finished_at
	`
	_, err := r.db.ExecContext(ctx, r.rebind(query),
		c.ID, c.INN, c.Number, string(c.Status), c.Amount, c.Law, c.SignedAt, finished,
	)
	return err
}

// ListContracts returns a client's contracts, most recently signed first.
func (r *SQLRepository) ListContracts(ctx context.Context, inn string) ([]domain.Contract, error) {
	query := `
		SELECT id, inn, number, status, amount, law, signed_at, finished_at
		FROM contracts
		WHERE inn = ?
		ORDER BY signed_at DESC
	`
	rows, err := r.db.QueryContext(ctx, r.rebind(query), inn)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var contracts []domain.Contract
	for rows.Next() {
		var c domain.Contract
		var status string
		var finished sql.NullTime

		if err := rows.Scan(&c.ID, &c.INN, &c.Number, &status, &c.Amount, &c.Law, &c.SignedAt, &finished); err != nil {
			return nil, err
		}
		c.Status = domain.ContractStatus(status)
		if finished.Valid {
			t := finished.Time
			c.FinishedAt = &t
		}
		contracts = append(contracts, c)
	}
	return contracts, rows.Err()
}

// SaveQuarterValue creates or replaces one statement line for a quarter.
func (r *SQLRepository) SaveQuarterValue(ctx context.Context, v *domain.QuarterValue) error {
	if v == nil || v.INN == "" || v.Code <= 0 {
		return fmt.Errorf("%w: inn and code are required", ErrInvalidInput)
	}
	if v.Quarter < 1 || v.Quarter > 4 {
		return fmt.Errorf("%w: quarter must be 1..4, got %d", ErrInvalidInput, v.Quarter)
	}

	query := `
		INSERT INTO quarter_values (inn, code, year, quarter, value)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(inn, code, year, quarter) DO UPDATE SET
			value = excluded.value
	`
	_, err := r.db.ExecContext(ctx, r.rebind(query), v.INN, v.Code, v.Year, v.Quarter, v.Value)
	return err
}

// LatestQuarterValue returns the most recent reported value of a statement line.
func (r *SQLRepository) LatestQuarterValue(ctx context.Context, inn string, code int) (*domain.QuarterValue, error) {
	query := `
		SELECT inn, code, year, quarter, value
		FROM quarter_values
		WHERE inn = ? AND code = ?
		ORDER BY year DESC, quarter DESC
		LIMIT 1
	`

	var v domain.QuarterValue
	err := r.db.QueryRowContext(ctx, r.rebind(query), inn, code).Scan(&v.INN, &v.Code, &v.Year, &v.Quarter, &v.Value)
	if err != nil {
		return nil, notFound(err)
	}
	return &v, nil
}

// SaveRegistryVerdict creates or replaces the registry entry for a subject.
func (r *SQLRepository) SaveRegistryVerdict(ctx context.Context, v *domain.RegistryVerdict) error {
	if v == nil || v.Kind == "" || v.Subject == "" {
		return fmt.Errorf("%w: registry kind and subject are required", ErrInvalidInput)
	}

	details, _ := json.Marshal(v.Details)

	query := `
		INSERT INTO registry_entries (kind, subject, listed, status, details, checked_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(kind, subject) DO UPDATE SET
			listed = excluded.listed,
			status = excluded.status,
			details = excluded.details,
			checked_at = excluded.checked_at
	`
	_, err := r.db.ExecContext(ctx, r.rebind(query),
		string(v.Kind), v.Subject, boolToInt(v.Listed), v.Status, string(details), v.CheckedAt,
	)
	return err
}

// GetRegistryVerdict returns the stored entry for a subject in a registry.
func (r *SQLRepository) GetRegistryVerdict(ctx context.Context, kind domain.RegistryKind, subject string) (*domain.RegistryVerdict, error) {
	query := `
		SELECT kind, subject, listed, status, details, checked_at
		FROM registry_entries
		WHERE kind = ? AND subject = ?
	`

	var v domain.RegistryVerdict
	var k string
	var listed int
	var details sql.NullString

	err := r.db.QueryRowContext(ctx, r.rebind(query), string(kind), subject).Scan(
		&k, &v.Subject, &listed, &v.Status, &details, &v.CheckedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}

	v.Kind = domain.RegistryKind(k)
	v.Listed = listed == 1
	if details.Valid && details.String != "" {
		json.Unmarshal([]byte(details.String), &v.Details)
	}
	return &v, nil
}
