package rules

import (
	"context"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"
)

// GuaranteeTargetScoring requires every requested guarantee target to be allowed.
type GuaranteeTargetScoring struct {
	Base
	Targets []string `json:"targets"`
}

func (r *GuaranteeTargetScoring) Evaluate(_ context.Context, env *Env) (Result, error) {
	if env.Request == nil {
		return Success(), nil
	}

	var rejected []string
	for _, t := range env.Request.Targets {
		if !slices.Contains(r.Targets, t) {
			rejected = append(rejected, t)
		}
	}
	if len(rejected) > 0 {
		return r.FailWith(fmt.Sprintf("Банк не выдает гарантии с целью: %s", strings.Join(rejected, ", "))), nil
	}
	return Success(), nil
}

// GuaranteeIntervalScoring bounds the guarantee term in days.
// A zero bound is not checked.
type GuaranteeIntervalScoring struct {
	Base
	MinDays int `json:"min_days"`
	MaxDays int `json:"max_days"`
}

func (r *GuaranteeIntervalScoring) Validate() error {
	if r.MinDays < 0 || r.MaxDays < 0 || (r.MaxDays > 0 && r.MinDays > r.MaxDays) {
		return fmt.Errorf("invalid day range [%d, %d]", r.MinDays, r.MaxDays)
	}
	return nil
}

func (r *GuaranteeIntervalScoring) Evaluate(_ context.Context, env *Env) (Result, error) {
	days := intervalDays(env)
	if r.MinDays > 0 && days < r.MinDays {
		return r.FailWith(fmt.Sprintf("Срок гарантии должен быть не менее %d дн.", r.MinDays)), nil
	}
	if r.MaxDays > 0 && days > r.MaxDays {
		return r.FailWith(fmt.Sprintf("Срок гарантии должен быть не более %d дн.", r.MaxDays)), nil
	}
	return Success(), nil
}

// intervalDays prefers the explicit interval and falls back to the date range.
func intervalDays(env *Env) int {
	req := env.Request
	if req == nil {
		return 0
	}
	if req.Interval > 0 {
		return req.Interval
	}
	if req.IntervalFrom != nil && req.IntervalTo != nil {
		return int(req.IntervalTo.Sub(*req.IntervalFrom).Hours()/24) + 1
	}
	return 0
}

// AmountLimitScoring bounds the required amount. A zero bound is not checked.
type AmountLimitScoring struct {
	Base
	MinAmount float64 `json:"min_amount"`
	MaxAmount float64 `json:"max_amount"`
}

func (r *AmountLimitScoring) Evaluate(_ context.Context, env *Env) (Result, error) {
	if env.Request == nil {
		return r.Fail(), nil
	}
	amount := env.Request.RequiredAmount
	if r.MinAmount > 0 && amount < r.MinAmount {
		return r.FailWith(fmt.Sprintf("Сумма должна быть не менее %s руб.", formatAmount(r.MinAmount))), nil
	}
	if r.MaxAmount > 0 && amount > r.MaxAmount {
		return r.FailWith(fmt.Sprintf("Сумма должна быть не более %s руб.", formatAmount(r.MaxAmount))), nil
	}
	return Success(), nil
}

func formatAmount(v float64) string {
	if v == math.Trunc(v) {
		return fmt.Sprintf("%.0f", v)
	}
	return fmt.Sprintf("%.2f", v)
}

// CompanyAgeScoring requires the client to be registered at least MinMonths ago.
type CompanyAgeScoring struct {
	Base
	MinMonths int `json:"min_months"`
}

func (r *CompanyAgeScoring) Evaluate(_ context.Context, env *Env) (Result, error) {
	p := env.Request.Profile()
	if p == nil || p.RegStateDate == nil {
		return r.FailWith("Не указана дата регистрации клиента"), nil
	}
	if monthsBetween(*p.RegStateDate, env.now()) < r.MinMonths {
		return r.Fail(), nil
	}
	return Success(), nil
}

// monthsBetween counts whole calendar months from start to end.
func monthsBetween(start, end time.Time) int {
	if end.Before(start) {
		return 0
	}
	months := (end.Year()-start.Year())*12 + int(end.Month()) - int(start.Month())
	if end.Day() < start.Day() {
		months--
	}
	return months
}
