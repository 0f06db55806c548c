package domain

import "fmt"

// Stable error codes surfaced to callers.
const (
	CodeInvalidStatusTransition = "PROPOSAL_INVALID_STATUS_TRANSITION"
	CodeProposalLocked          = "PROPOSAL_LOCKED"
	CodeConditionAlreadyDecided = "CONDITION_ALREADY_DECIDED"
	CodeContractAlreadyDecided  = "CONTRACT_ALREADY_DECIDED"
	CodeRevertNotPossible       = "REVERT_NOT_POSSIBLE"
	CodeVoteNotPossible         = "VOTE_NOT_POSSIBLE"
	CodeDeadlineEditForbidden   = "DEADLINE_EDIT_FORBIDDEN"
	CodeDeadlineOrderViolated   = "DEADLINE_ORDER_VIOLATED"
)

// TransitionError reports a denied global status transition. It is never
// retried automatically and always carries the attempted pair.
type TransitionError struct {
	From Status
	To   Status
	Code string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: status transition %s -> %s not allowed", e.Code, e.From, e.To)
}

func NewTransitionError(from, to Status) *TransitionError {
	return &TransitionError{From: from, To: to, Code: CodeInvalidStatusTransition}
}

// StateConflictError reports an operation that is illegal in the aggregate's
// current state (re-reviewing a condition, signing a decided contract,
// reverting from an unsupported state). Distinct from TransitionError.
type StateConflictError struct {
	Code    string
	Message string
}

func (e *StateConflictError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func NewStateConflict(code, format string, args ...any) *StateConflictError {
	return &StateConflictError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// NotFoundError reports a reference to a condition, task or location record
// absent from the aggregate. Idempotent absence on delete paths is silent
// success instead.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

func NewNotFound(kind, id string) *NotFoundError {
	return &NotFoundError{Kind: kind, ID: id}
}
