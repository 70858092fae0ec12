package domain

import (
	"time"
)

// Evaluation is the persisted outcome of checking one request against one or more banks.
type Evaluation struct {
	ID        string         `json:"id"`
	RequestID string         `json:"requestId"`
	Kind      ProductKind    `json:"kind"`
	Timestamp time.Time      `json:"timestamp"`
	Banks     []BankDecision `json:"banks"`

	// Allowed lists the codes of banks whose checks passed.
	Allowed []string `json:"allowed"`

	Metadata EvaluationMetadata `json:"metadata"`
}

// BankDecision is the result of Check for a single bank.
type BankDecision struct {
	BankCode     string   `json:"bankCode"`
	Passed       bool     `json:"passed"`
	Bypassed     bool     `json:"bypassed,omitempty"` // a kill switch was off
	Errors       []string `json:"errors,omitempty"`
	ErrorIndices []int    `json:"errorIndices,omitempty"`
	FirstError   string   `json:"firstError,omitempty"`
	Defect       bool     `json:"defect,omitempty"`
	ProcessMs    int64    `json:"processMs"`
}

// EvaluationMetadata contains processing information.
type EvaluationMetadata struct {
	TraceID        string `json:"traceId,omitempty"`
	TotalMs        int64  `json:"totalMs"`
	BanksEvaluated int    `json:"banksEvaluated"`
	RulesEvaluated int    `json:"rulesEvaluated"`
	EngineVersion  string `json:"engineVersion"`
}

// EvaluationResponse is the API view of an evaluation.
type EvaluationResponse struct {
	EvaluationID string             `json:"evaluationId"`
	RequestID    string             `json:"requestId"`
	Status       string             `json:"status"`
	Allowed      []string           `json:"allowed"`
	Reasons      map[string]string  `json:"reasons,omitempty"`
	Banks        []BankDecision     `json:"banks"`
	Metadata     EvaluationMetadata `json:"metadata"`
}

// API status values.
const (
	StatusEligible   = "ELIGIBLE"
	StatusIneligible = "INELIGIBLE"
)

// ToResponse converts an Evaluation to an API response.
// Reasons maps each rejecting bank to the first failure message.
func (e *Evaluation) ToResponse() *EvaluationResponse {
	status := StatusIneligible
	if len(e.Allowed) > 0 {
		status = StatusEligible
	}

	var reasons map[string]string
	for _, b := range e.Banks {
		if b.Passed {
			continue
		}
		if reasons == nil {
			reasons = make(map[string]string)
		}
		reasons[b.BankCode] = b.FirstError
	}

	allowed := e.Allowed
	if allowed == nil {
		allowed = []string{}
	}

	return &EvaluationResponse{
		EvaluationID: e.ID,
		RequestID:    e.RequestID,
		Status:       status,
		Allowed:      allowed,
		Reasons:      reasons,
		Banks:        e.Banks,
		Metadata:     e.Metadata,
	}
}
