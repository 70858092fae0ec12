package rules

import "errors"

// Configuration defects. Business failures are never errors; they are Results.
var (
	ErrUnknownRule         = errors.New("unknown rule class")
	ErrDuplicateRule       = errors.New("rule class already registered")
	ErrInvalidParams       = errors.New("invalid rule parameters")
	ErrInvalidResult       = errors.New("invalid result construction")
	ErrInvalidOperator     = errors.New("invalid comparison operator")
	ErrRecursionLimit      = errors.New("rule nesting too deep")
	ErrRulePanic           = errors.New("rule panicked")
	ErrMissingCollaborator = errors.New("lookup collaborator not configured")
)
