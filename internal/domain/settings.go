package domain

import "time"

// BankSettings holds one partner bank's underwriting configuration.
type BankSettings struct {
	Code    string `json:"code"`
	Name    string `json:"name,omitempty"`
	Enabled bool   `json:"enabled"`

	// UseCommonRules is the default for callers that do not choose explicitly.
	UseCommonRules bool `json:"useCommonRules"`

	Rules     []RuleConfig `json:"rules"`
	UpdatedAt time.Time    `json:"updatedAt,omitempty"`
}

// Bank returns the evaluation context entity for the settings.
func (s *BankSettings) Bank() *Bank {
	return &Bank{Code: s.Code, Name: s.Name}
}

// GlobalSettings holds the process-wide switch and the shared rule list.
type GlobalSettings struct {
	Enabled     bool         `json:"enabled"`
	CommonRules []RuleConfig `json:"commonRules"`
	UpdatedAt   time.Time    `json:"updatedAt,omitempty"`
}
