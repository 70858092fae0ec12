package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/opensource-finance/underwriter/internal/domain"
)

// SaveEvaluation stores an evaluation result. Evaluations are immutable.
func (r *SQLRepository) SaveEvaluation(ctx context.Context, eval *domain.Evaluation) error {
	if eval == nil || eval.ID == "" {
		return fmt.Errorf("%w: evaluation id is required", ErrInvalidInput)
	}

	banks, _ := json.Marshal(eval.Banks)
	allowed := eval.Allowed
	if allowed == nil {
		allowed = []string{}
	}
	allowedJSON, _ := json.Marshal(allowed)
	metadata, _ := json.Marshal(eval.Metadata)

	query := `
		INSERT INTO evaluations (id, request_id, kind, timestamp, banks, allowed, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, r.rebind(query),
		eval.ID, eval.RequestID, string(eval.Kind), eval.Timestamp,
		string(banks), string(allowedJSON), string(metadata),
	)
	return err
}

// GetEvaluation retrieves an evaluation by ID.
func (r *SQLRepository) GetEvaluation(ctx context.Context, evalID string) (*domain.Evaluation, error) {
	query := `
		SELECT id, request_id, kind, timestamp, banks, allowed, metadata
		FROM evaluations
		WHERE id = ?
	`
	eval, err := scanEvaluation(r.db.QueryRowContext(ctx, r.rebind(query), evalID))
	if err != nil {
		return nil, notFound(err)
	}
	return eval, nil
}

// ListEvaluationsByRequest returns a request's evaluations, newest first.
func (r *SQLRepository) ListEvaluationsByRequest(ctx context.Context, requestID string) ([]*domain.Evaluation, error) {
	query := `
		SELECT id, request_id, kind, timestamp, banks, allowed, metadata
		FROM evaluations
		WHERE request_id = ?
		ORDER BY timestamp DESC
	`
	rows, err := r.db.QueryContext(ctx, r.rebind(query), requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var evals []*domain.Evaluation
	for rows.Next() {
		eval, err := scanEvaluation(rows)
		if err != nil {
			return nil, err
		}
		evals = append(evals, eval)
	}
	return evals, rows.Err()
}

func scanEvaluation(row rowScanner) (*domain.Evaluation, error) {
	var eval domain.Evaluation
	var kind, banks, allowed, metadata string

	if err := row.Scan(&eval.ID, &eval.RequestID, &kind, &eval.Timestamp, &banks, &allowed, &metadata); err != nil {
		return nil, err
	}

	eval.Kind = domain.ProductKind(kind)
	if err := json.Unmarshal([]byte(banks), &eval.Banks); err != nil {
		return nil, fmt.Errorf("failed to parse bank decisions for %s: %w", eval.ID, err)
	}
	if err := json.Unmarshal([]byte(allowed), &eval.Allowed); err != nil {
		return nil, fmt.Errorf("failed to parse allowed banks for %s: %w", eval.ID, err)
	}
	if err := json.Unmarshal([]byte(metadata), &eval.Metadata); err != nil {
		return nil, fmt.Errorf("failed to parse metadata for %s: %w", eval.ID, err)
	}
	return &eval, nil
}
