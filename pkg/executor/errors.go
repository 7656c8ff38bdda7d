// Package executor performs single units of work against live account
// sessions and classifies every result.
package executor

import (
	"errors"

	"github.com/beaconops/flock/pkg/persistence"
	"github.com/beaconops/flock/pkg/session"
)

// Classified execution errors. These never escape the executor as raw
// errors: callers receive an Outcome carrying the matching kind, which is
// what guarantees partial-failure isolation in batches and graph walks.
var (
	// ErrNotLoggedIn indicates the account's session has no auth signal.
	ErrNotLoggedIn = errors.New("account is not logged in")

	// ErrElementTimeout indicates the readiness wait exceeded its attempt ceiling.
	ErrElementTimeout = errors.New("page element did not become ready")

	// ErrActionRejected indicates the control was present but disabled or
	// the post-condition check showed the action did not take effect.
	ErrActionRejected = errors.New("action rejected by page")

	// ErrSession indicates navigation or script execution threw.
	ErrSession = errors.New("session operation failed")

	// ErrUnknownAction indicates an action type outside the closed set.
	ErrUnknownAction = errors.New("unknown action type")
)

// OutcomeKind is the classified result of one executor invocation.
type OutcomeKind string

const (
	OutcomeCompleted       OutcomeKind = "completed"
	OutcomeAlreadyDone     OutcomeKind = "already_done"
	OutcomeAccountNotFound OutcomeKind = "account_not_found"
	OutcomeNotLoggedIn     OutcomeKind = "not_logged_in"
	OutcomeElementTimeout  OutcomeKind = "element_timeout"
	OutcomeActionRejected  OutcomeKind = "action_rejected"
	OutcomeSessionError    OutcomeKind = "session_error"
	OutcomeUnknown         OutcomeKind = "unknown"
)

// Classify maps an execution error onto its outcome kind.
func Classify(err error) OutcomeKind {
	switch {
	case err == nil:
		return OutcomeCompleted
	case persistence.IsAccountNotFound(err):
		return OutcomeAccountNotFound
	case errors.Is(err, ErrNotLoggedIn):
		return OutcomeNotLoggedIn
	case errors.Is(err, ErrElementTimeout):
		return OutcomeElementTimeout
	case errors.Is(err, ErrActionRejected):
		return OutcomeActionRejected
	case errors.Is(err, ErrSession),
		errors.Is(err, session.ErrNoSession),
		errors.Is(err, session.ErrSurfaceClosed):
		return OutcomeSessionError
	default:
		return OutcomeUnknown
	}
}
