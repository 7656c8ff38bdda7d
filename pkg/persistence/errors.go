// Package persistence provides standardized error types for persistence operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrPostNotFound indicates a scheduled post was not found by the given identifier.
	ErrPostNotFound = errors.New("scheduled post not found")

	// ErrTaskNotFound indicates an automation task was not found by the given identifier.
	ErrTaskNotFound = errors.New("automation task not found")

	// ErrWorkflowNotFound indicates a workflow was not found by the given identifier.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrStepNotFound indicates a workflow step was not found by the given identifier.
	ErrStepNotFound = errors.New("workflow step not found")

	// ErrAccountNotFound indicates an account was not found by the given identifier.
	ErrAccountNotFound = errors.New("account not found")

	// ErrResumptionNotFound indicates a suspended run was not found by the given identifier.
	ErrResumptionNotFound = errors.New("resumption not found")

	// ErrLogNotFound indicates a log row was not found by the given identifier.
	ErrLogNotFound = errors.New("log entry not found")

	// ErrInvalidTransition indicates a status transition that the entity's
	// lifecycle does not allow (e.g. cancelling a completed post).
	ErrInvalidTransition = errors.New("invalid status transition")
)

// StoreError wraps persistence errors with operation context.
type StoreError struct {
	Op     string // Operation being performed (e.g. "MarkProcessing", "Save")
	Entity string // Entity kind (e.g. "scheduled_post", "automation_task")
	ID     string // Entity ID if applicable
	Err    error  // Underlying error
}

func (e *StoreError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s failed for %s %s: %v", e.Op, e.Entity, e.ID, e.Err)
	}

	return fmt.Sprintf("%s failed for %s: %v", e.Op, e.Entity, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for store errors.
func (e *StoreError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewStoreError creates a new store error with context.
func NewStoreError(op, entity, id string, err error) *StoreError {
	return &StoreError{
		Op:     op,
		Entity: entity,
		ID:     id,
		Err:    err,
	}
}

// IsPostNotFound checks if an error indicates a scheduled post was not found.
func IsPostNotFound(err error) bool {
	return errors.Is(err, ErrPostNotFound)
}

// IsTaskNotFound checks if an error indicates an automation task was not found.
func IsTaskNotFound(err error) bool {
	return errors.Is(err, ErrTaskNotFound)
}

// IsWorkflowNotFound checks if an error indicates a workflow was not found.
func IsWorkflowNotFound(err error) bool {
	return errors.Is(err, ErrWorkflowNotFound)
}

// IsAccountNotFound checks if an error indicates an account was not found.
func IsAccountNotFound(err error) bool {
	return errors.Is(err, ErrAccountNotFound)
}

// IsInvalidTransition checks if an error indicates a disallowed status transition.
func IsInvalidTransition(err error) bool {
	return errors.Is(err, ErrInvalidTransition)
}
