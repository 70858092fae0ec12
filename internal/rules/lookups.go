package rules

import (
	"context"
	"fmt"

	"github.com/opensource-finance/underwriter/internal/domain"
)

// FinishedContractsScoring requires a minimum number of finished contracts,
// optionally counting only contracts of at least MinAmount.
type FinishedContractsScoring struct {
	Base
	MinCount  int     `json:"min_count"`
	MinAmount float64 `json:"min_amount"`
	Law       string  `json:"law"`
}

func (r *FinishedContractsScoring) Evaluate(ctx context.Context, env *Env) (Result, error) {
	if env.Lookups.Contracts == nil {
		return Result{}, fmt.Errorf("%w: contracts", ErrMissingCollaborator)
	}
	inn := env.clientINN()
	if inn == "" {
		return r.FailWith("Не указан ИНН клиента"), nil
	}

	contracts, err := env.Lookups.Contracts.Contracts(ctx, inn)
	if err != nil {
		return Result{}, fmt.Errorf("contract history for %s: %w", inn, err)
	}

	count := 0
	for _, c := range contracts {
		if c.Status != domain.ContractFinished || c.Amount < r.MinAmount {
			continue
		}
		if r.Law != "" && c.Law != r.Law {
			continue
		}
		count++
	}
	if count < r.MinCount {
		return r.Fail(), nil
	}
	return Success(), nil
}

// QuarterValueScoring compares the latest reported value of a financial
// statement line with a threshold. Unreported lines count as zero unless
// FailIfMissing is set.
type QuarterValueScoring struct {
	Base
	Code          int    `json:"code"`
	Operation     string `json:"operation"`
	Value         any    `json:"value"`
	FailIfMissing bool   `json:"fail_if_missing"`

	op Operator
}

func (r *QuarterValueScoring) Validate() error {
	if r.Code <= 0 {
		return fmt.Errorf("code is required")
	}
	op, err := ParseOperator(r.Operation)
	if err != nil {
		return err
	}
	r.op = op
	return nil
}

func (r *QuarterValueScoring) Evaluate(ctx context.Context, env *Env) (Result, error) {
	if env.Lookups.Financials == nil {
		return Result{}, fmt.Errorf("%w: financials", ErrMissingCollaborator)
	}
	inn := env.clientINN()
	if inn == "" {
		return r.FailWith("Не указан ИНН клиента"), nil
	}

	value, found, err := env.Lookups.Financials.QuarterValue(ctx, inn, r.Code)
	if err != nil {
		return Result{}, fmt.Errorf("quarter value %d for %s: %w", r.Code, inn, err)
	}
	if !found && r.FailIfMissing {
		return r.FailWith(fmt.Sprintf("Нет данных отчетности по строке %d", r.Code)), nil
	}

	ok, err := Compare(r.op, value, r.Value)
	if err != nil {
		return Result{}, fmt.Errorf("line %d %s: %w", r.Code, r.op, err)
	}
	if !ok {
		return r.Fail(), nil
	}
	return Success(), nil
}

// RegistryScoring fails when the client, or for person-level registries any
// listed person, appears in an external registry.
type RegistryScoring struct {
	Base
	CheckPersons bool `json:"check_persons"`

	kind domain.RegistryKind
}

func newRegistryRule(kind domain.RegistryKind, persons bool) func() Rule {
	return func() Rule {
		return &RegistryScoring{kind: kind, CheckPersons: persons}
	}
}

// Kind returns the registry the rule consults.
func (r *RegistryScoring) Kind() domain.RegistryKind { return r.kind }

func (r *RegistryScoring) Evaluate(ctx context.Context, env *Env) (Result, error) {
	checker := env.Lookups.Registry
	if checker == nil {
		return Result{}, fmt.Errorf("%w: registry", ErrMissingCollaborator)
	}

	subjects := r.subjects(env)
	if len(subjects) == 0 {
		return r.FailWith("Недостаточно данных для проверки по реестру"), nil
	}

	for _, subject := range subjects {
		verdict, err := checker.Check(ctx, r.kind, subject)
		if err != nil {
			return Result{}, fmt.Errorf("%s check for %s: %w", r.kind, subject, err)
		}
		if verdict != nil && verdict.Listed {
			return r.Fail(), nil
		}
	}
	return Success(), nil
}

func (r *RegistryScoring) subjects(env *Env) []string {
	if r.kind == domain.RegistryMassAddress {
		if p := env.Request.Profile(); p != nil && p.LegalAddress != "" {
			return []string{p.LegalAddress}
		}
		return nil
	}

	var out []string
	if inn := env.clientINN(); inn != "" {
		out = append(out, inn)
	}
	if r.CheckPersons {
		if p := env.Request.Profile(); p != nil {
			for _, person := range p.Persons {
				if person.INN != "" {
					out = append(out, person.INN)
				}
			}
		}
	}
	return out
}
