package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/opensource-finance/underwriter/internal/domain"
)

const globalSettingsID = 1

// SaveBankSettings creates or replaces a bank's settings and stamps UpdatedAt.
func (r *SQLRepository) SaveBankSettings(ctx context.Context, s *domain.BankSettings) error {
	if s == nil || s.Code == "" {
		return fmt.Errorf("%w: bank code is required", ErrInvalidInput)
	}

	rules, err := marshalRules(s.Rules)
	if err != nil {
		return fmt.Errorf("%w: bank %s rules: %v", ErrInvalidInput, s.Code, err)
	}
	s.UpdatedAt = time.Now().UTC()

	query := `
		INSERT INTO banks (code, name, enabled, use_common_rules, rules, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(code) DO UPDATE SET
			name = excluded.name,
			enabled = excluded.enabled,
			use_common_rules = excluded.use_common_rules,
			rules = excluded.rules,
			updated_at = excluded.updated_at
	`
	_, err = r.db.ExecContext(ctx, r.rebind(query),
		s.Code, s.Name, boolToInt(s.Enabled), boolToInt(s.UseCommonRules), rules, s.UpdatedAt,
	)
	return err
}

// GetBankSettings retrieves a bank's settings by code.
func (r *SQLRepository) GetBankSettings(ctx context.Context, code string) (*domain.BankSettings, error) {
	query := `
		SELECT code, name, enabled, use_common_rules, rules, updated_at
		FROM banks
		WHERE code = ?
	`
	s, err := scanBank(r.db.QueryRowContext(ctx, r.rebind(query), code))
	if err != nil {
		return nil, notFound(err)
	}
	return s, nil
}

// ListBankSettings returns every bank ordered by code.
func (r *SQLRepository) ListBankSettings(ctx context.Context) ([]*domain.BankSettings, error) {
	query := `
		SELECT code, name, enabled, use_common_rules, rules, updated_at
		FROM banks
		ORDER BY code
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var banks []*domain.BankSettings
	for rows.Next() {
		s, err := scanBank(rows)
		if err != nil {
			return nil, err
		}
		banks = append(banks, s)
	}
	return banks, rows.Err()
}

// DeleteBankSettings removes a bank.
func (r *SQLRepository) DeleteBankSettings(ctx context.Context, code string) error {
	result, err := r.db.ExecContext(ctx, r.rebind(`DELETE FROM banks WHERE code = ?`), code)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// SaveGlobalSettings replaces the global settings row and stamps UpdatedAt.
func (r *SQLRepository) SaveGlobalSettings(ctx context.Context, s *domain.GlobalSettings) error {
	if s == nil {
		return fmt.Errorf("%w: settings are required", ErrInvalidInput)
	}

	rules, err := marshalRules(s.CommonRules)
	if err != nil {
		return fmt.Errorf("%w: common rules: %v", ErrInvalidInput, err)
	}
	s.UpdatedAt = time.Now().UTC()

	query := `
		INSERT INTO scoring_globals (id, enabled, common_rules, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			enabled = excluded.enabled,
			common_rules = excluded.common_rules,
			updated_at = excluded.updated_at
	`
	_, err = r.db.ExecContext(ctx, r.rebind(query),
		globalSettingsID, boolToInt(s.Enabled), rules, s.UpdatedAt,
	)
	return err
}

// GetGlobalSettings returns ErrNotFound until settings are first saved.
func (r *SQLRepository) GetGlobalSettings(ctx context.Context) (*domain.GlobalSettings, error) {
	query := `
		SELECT enabled, common_rules, updated_at
		FROM scoring_globals
		WHERE id = ?
	`

	var s domain.GlobalSettings
	var enabled int
	var rules string

	err := r.db.QueryRowContext(ctx, r.rebind(query), globalSettingsID).Scan(&enabled, &rules, &s.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}

	s.Enabled = enabled == 1
	if err := json.Unmarshal([]byte(rules), &s.CommonRules); err != nil {
		return nil, fmt.Errorf("failed to parse common rules: %w", err)
	}
	return &s, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBank(row rowScanner) (*domain.BankSettings, error) {
	var s domain.BankSettings
	var enabled, useCommon int
	var rules string

	if err := row.Scan(&s.Code, &s.Name, &enabled, &useCommon, &rules, &s.UpdatedAt); err != nil {
		return nil, err
	}

	s.Enabled = enabled == 1
	s.UseCommonRules = useCommon == 1
	if err := json.Unmarshal([]byte(rules), &s.Rules); err != nil {
		return nil, fmt.Errorf("failed to parse rules for bank %s: %w", s.Code, err)
	}
	return &s, nil
}

func marshalRules(rules []domain.RuleConfig) (string, error) {
	if rules == nil {
		rules = []domain.RuleConfig{}
	}
	data, err := json.Marshal(rules)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
