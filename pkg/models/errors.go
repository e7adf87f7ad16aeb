package models

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrValidation         = errors.New("validation failed")
	ErrWorkflowIntegrity  = errors.New("workflow integrity violated")
	ErrStepHandler        = errors.New("step handler failed")
	ErrCancelled          = errors.New("execution cancelled")
	ErrWorkflowNotFound   = errors.New("workflow not found")
	ErrRuleNotFound       = errors.New("rule not found")
	ErrExecutionNotFound  = errors.New("execution not found")
	ErrWorkflowInactive   = errors.New("workflow is inactive")
	ErrExecutionNotPaused = errors.New("execution is not paused")
	ErrExecutionFinished  = errors.New("execution already finished")
	ErrExecutionRemote    = errors.New("execution is running in another process")
)

// ValidationError carries every violation found in a rule or workflow definition.
type ValidationError struct {
	Entity     string
	ID         string
	Violations []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Entity, e.ID, strings.Join(e.Violations, "; "))
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// WorkflowIntegrityError reports a broken step graph found at run time.
type WorkflowIntegrityError struct {
	WorkflowID string
	StepID     string
	Message    string
}

func (e *WorkflowIntegrityError) Error() string {
	return fmt.Sprintf("workflow %s: step %q: %s", e.WorkflowID, e.StepID, e.Message)
}

func (e *WorkflowIntegrityError) Is(target error) bool {
	return target == ErrWorkflowIntegrity
}

// StepHandlerError wraps an error returned by, or raised while selecting, a step handler.
type StepHandlerError struct {
	StepID string
	Kind   StepKind
	Err    error
}

func (e *StepHandlerError) Error() string {
	return fmt.Sprintf("step %s (%s): %v", e.StepID, e.Kind, e.Err)
}

func (e *StepHandlerError) Unwrap() error {
	return e.Err
}

func (e *StepHandlerError) Is(target error) bool {
	return target == ErrStepHandler
}

type CancelledError struct {
	ExecutionID string
	Reason      string
}

func (e *CancelledError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("execution %s cancelled", e.ExecutionID)
	}

	return fmt.Sprintf("execution %s cancelled: %s", e.ExecutionID, e.Reason)
}

func (e *CancelledError) Is(target error) bool {
	return target == ErrCancelled
}

type WorkflowNotFoundError struct {
	ID string
}

func (e *WorkflowNotFoundError) Error() string {
	return fmt.Sprintf("workflow %q not found", e.ID)
}

func (e *WorkflowNotFoundError) Is(target error) bool {
	return target == ErrWorkflowNotFound
}

type RuleNotFoundError struct {
	ID string
}

func (e *RuleNotFoundError) Error() string {
	return fmt.Sprintf("rule %q not found", e.ID)
}

func (e *RuleNotFoundError) Is(target error) bool {
	return target == ErrRuleNotFound
}

type ExecutionNotFoundError struct {
	ID string
}

func (e *ExecutionNotFoundError) Error() string {
	return fmt.Sprintf("execution %q not found", e.ID)
}

func (e *ExecutionNotFoundError) Is(target error) bool {
	return target == ErrExecutionNotFound
}

func IsValidationError(err error) bool {
	return errors.Is(err, ErrValidation)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrWorkflowNotFound) ||
		errors.Is(err, ErrRuleNotFound) ||
		errors.Is(err, ErrExecutionNotFound)
}

func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled)
}

// IsConflict reports errors caused by the current state of a resource.
func IsConflict(err error) bool {
	return errors.Is(err, ErrWorkflowInactive) ||
		errors.Is(err, ErrExecutionNotPaused) ||
		errors.Is(err, ErrExecutionFinished) ||
		errors.Is(err, ErrExecutionRemote)
}
