package rules

import (
	"github.com/opensource-finance/underwriter/internal/domain"
)

// Builtins returns the definitions of every rule shipped with the engine.
func Builtins() []Definition {
	return []Definition{
		{
			Name:         "AlwaysPassScoring",
			Description:  "Always passes.",
			ErrorMessage: "",
			New:          func() Rule { return &AlwaysPassScoring{} },
		},
		{
			Name:         "AlwaysFailScoring",
			Description:  "Always fails.",
			ErrorMessage: "Заявка не прошла скоринг",
			New:          func() Rule { return &AlwaysFailScoring{} },
		},
		{
			Name:         "FieldEqualScoring",
			Description:  "Compares a context field with a value or another field.",
			ErrorMessage: "Поле {field} не удовлетворяет условию {operation} {value}",
			New:          func() Rule { return &FieldEqualScoring{Operation: "="} },
		},
		{
			Name:         "RegexFieldsMatchScoring",
			Description:  "Fails when any field starts with a match of the pattern.",
			ErrorMessage: "Значение поля не допускается банком",
			New:          func() Rule { return &RegexFieldsMatchScoring{} },
		},
		{
			Name:         "RegexFieldsNotMatchScoring",
			Description:  "Fails when no field starts with a match of the pattern.",
			ErrorMessage: "Значение поля не соответствует требованиям банка",
			New:          func() Rule { return &RegexFieldsNotMatchScoring{} },
		},
		{
			Name:        "ConditionalScoring",
			Description: "If the if-branch passes, the then-branch decides; otherwise the else-branch.",
			New:         func() Rule { return &ConditionalScoring{} },
		},
		{
			Name:         "GuaranteeTargetScoring",
			Description:  "Every requested guarantee target must be allowed.",
			ErrorMessage: "Банк выдает гарантии только с целями: {targets}",
			LoanExempt:   true,
			New: func() Rule {
				return &GuaranteeTargetScoring{Targets: []string{
					domain.TargetExecution, domain.TargetParticipant, domain.TargetWarranty,
				}}
			},
		},
		{
			Name:         "GuaranteeIntervalScoring",
			Description:  "Bounds the guarantee term in days.",
			ErrorMessage: "Срок гарантии вне допустимого диапазона",
			New:          func() Rule { return &GuaranteeIntervalScoring{} },
		},
		{
			Name:         "AmountLimitScoring",
			Description:  "Bounds the required amount.",
			ErrorMessage: "Сумма вне допустимого диапазона",
			New:          func() Rule { return &AmountLimitScoring{} },
		},
		{
			Name:         "CompanyAgeScoring",
			Description:  "Requires a minimum company age in months.",
			ErrorMessage: "Срок деятельности компании менее {min_months} мес.",
			New:          func() Rule { return &CompanyAgeScoring{MinMonths: 6} },
		},
		{
			Name:         "FinishedContractsScoring",
			Description:  "Requires a minimum number of finished contracts.",
			ErrorMessage: "Требуется не менее {min_count} исполненных контрактов",
			LoanExempt:   true,
			New:          func() Rule { return &FinishedContractsScoring{MinCount: 1} },
		},
		{
			Name:         "QuarterValueScoring",
			Description:  "Compares a financial statement line with a threshold.",
			ErrorMessage: "Показатель отчетности по строке {code} не удовлетворяет требованиям банка",
			New:          func() Rule { return &QuarterValueScoring{Operation: ">=", Value: 0} },
		},
		{
			Name:         "TaxDebtScoring",
			Description:  "Fails when the client has tax arrears.",
			ErrorMessage: "У клиента имеется задолженность по налогам",
			New:          newRegistryRule(domain.RegistryTaxDebt, false),
		},
		{
			Name:         "BankruptcyScoring",
			Description:  "Fails when the client is in bankruptcy proceedings.",
			ErrorMessage: "Клиент находится в процедуре банкротства",
			New:          newRegistryRule(domain.RegistryBankruptcy, false),
		},
		{
			Name:         "DisqualifiedPersonScoring",
			Description:  "Fails when the client or a listed person is disqualified.",
			ErrorMessage: "Руководитель клиента дисквалифицирован",
			New:          newRegistryRule(domain.RegistryDisqualified, true),
		},
		{
			Name:         "TerroristScoring",
			Description:  "Fails when the client or a listed person is on the terrorist list.",
			ErrorMessage: "Клиент или его участники находятся в перечне террористов и экстремистов",
			New:          newRegistryRule(domain.RegistryTerrorist, true),
		},
		{
			Name:         "UnfairSupplierScoring",
			Description:  "Fails when the client is in the unfair suppliers registry.",
			ErrorMessage: "Клиент находится в реестре недобросовестных поставщиков",
			LoanExempt:   true,
			New:          newRegistryRule(domain.RegistryUnfairSupplier, false),
		},
		{
			Name:         "MassAddressScoring",
			Description:  "Fails when the legal address is a mass registration address.",
			ErrorMessage: "Юридический адрес клиента является адресом массовой регистрации",
			New:          newRegistryRule(domain.RegistryMassAddress, false),
		},
		{
			Name:         "ExpressionScoring",
			Description:  "Fails when a CEL expression over the context evaluates to false.",
			ErrorMessage: "Заявка не удовлетворяет условию банка",
			New:          func() Rule { return &ExpressionScoring{} },
		},
	}
}
