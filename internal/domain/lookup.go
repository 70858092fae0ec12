package domain

import (
	"context"
	"time"
)

// RegistryKind names an external registry or blacklist.
type RegistryKind string

const (
	RegistryTaxDebt        RegistryKind = "tax_debt"
	RegistryBankruptcy     RegistryKind = "bankruptcy"
	RegistryDisqualified   RegistryKind = "disqualified"
	RegistryTerrorist      RegistryKind = "terrorist"
	RegistryUnfairSupplier RegistryKind = "unfair_supplier"
	RegistryMassAddress    RegistryKind = "mass_address"
)

// RegistryKinds lists every supported registry.
var RegistryKinds = []RegistryKind{
	RegistryTaxDebt,
	RegistryBankruptcy,
	RegistryDisqualified,
	RegistryTerrorist,
	RegistryUnfairSupplier,
	RegistryMassAddress,
}

// RegistryVerdict is the answer of a registry check.
// Subject is a tax id for most registries and an address for mass_address.
type RegistryVerdict struct {
	Kind      RegistryKind   `json:"kind"`
	Subject   string         `json:"subject"`
	Listed    bool           `json:"listed"`
	Status    string         `json:"status,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	CheckedAt time.Time      `json:"checkedAt"`
}

// RegistryChecker queries registries and blacklists.
type RegistryChecker interface {
	Check(ctx context.Context, kind RegistryKind, subject string) (*RegistryVerdict, error)
}

// QuarterValue is one line item of a quarterly financial statement.
type QuarterValue struct {
	INN     string  `json:"inn"`
	Code    int     `json:"code"`
	Year    int     `json:"year"`
	Quarter int     `json:"quarter"`
	Value   float64 `json:"value"`
}

// FinancialStatements returns the latest reported value of a statement line.
// found is false when the client never reported the line.
type FinancialStatements interface {
	QuarterValue(ctx context.Context, inn string, code int) (value float64, found bool, err error)
}

// ContractStatus is the lifecycle state of an external contract.
type ContractStatus string

const (
	ContractActive   ContractStatus = "active"
	ContractFinished ContractStatus = "finished"
)

// Contract is a government contract previously executed by the client.
type Contract struct {
	ID         string         `json:"id"`
	INN        string         `json:"inn"`
	Number     string         `json:"number,omitempty"`
	Status     ContractStatus `json:"status"`
	Amount     float64        `json:"amount"`
	Law        string         `json:"law,omitempty"`
	SignedAt   time.Time      `json:"signedAt"`
	FinishedAt *time.Time     `json:"finishedAt,omitempty"`
}

// ContractHistory lists a client's external contracts.
type ContractHistory interface {
	Contracts(ctx context.Context, inn string) ([]Contract, error)
}

// Lookups bundles the collaborators rules may call into.
// Any field may be nil; rules needing a missing collaborator report a defect.
type Lookups struct {
	Financials FinancialStatements
	Contracts  ContractHistory
	Registry   RegistryChecker
}
