package model

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors; use errors.Is to detect them.
var (
	ErrNotFound       = errors.New("gatekeep: not found")
	ErrAlreadyDecided = errors.New("gatekeep: already decided")
	ErrExpired        = errors.New("gatekeep: action expired")
	ErrAlreadyClaimed = errors.New("gatekeep: action already claimed")
	ErrNotClaimed     = errors.New("gatekeep: action not claimed")
	ErrRuleExhausted  = errors.New("gatekeep: rule exhausted")
	ErrRuleInactive   = errors.New("gatekeep: rule inactive")
	ErrMissingActor   = errors.New("gatekeep: actor is required")
	ErrReservedActor  = errors.New("gatekeep: actor is reserved for the engine")
	ErrInvalidStatus  = errors.New("gatekeep: invalid status transition")
	ErrValidation     = errors.New("gatekeep: rule validation failed")
	ErrConfiguration  = errors.New("gatekeep: configuration error")
)

// DecisionError reports why a conditional transition did not apply.
// An ErrExpired decision error also matches ErrAlreadyDecided.
type DecisionError struct {
	ActionID string
	Status   Status
	Err      error
}

func (e *DecisionError) Error() string {
	if e.Status == "" {
		return fmt.Sprintf("action %s: %v", e.ActionID, e.Err)
	}
	return fmt.Sprintf("action %s: %v (status: %s)", e.ActionID, e.Err, e.Status)
}

func (e *DecisionError) Unwrap() error { return e.Err }

func (e *DecisionError) Is(target error) bool {
	return target == ErrAlreadyDecided && e.Err == ErrExpired
}

// NewDecisionError classifies a failed transition by the observed status;
// an empty status means the action does not exist and pending means the
// action was never approved.
func NewDecisionError(actionID string, observed Status) *DecisionError {
	ret := &DecisionError{ActionID: actionID, Status: observed}
	switch observed {
	case "":
		ret.Err = ErrNotFound
	case StatusExpired:
		ret.Err = ErrExpired
	case StatusPending:
		ret.Err = ErrInvalidStatus
	default:
		ret.Err = ErrAlreadyDecided
	}
	return ret
}

// ValidationError lists risk policy violations of a rule candidate.
type ValidationError struct {
	RuleID     string
	Violations []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("rule %s: %v: %s", e.RuleID, ErrValidation, strings.Join(e.Violations, "; "))
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// ConfigurationError reports gate configuration that failed closed.
type ConfigurationError struct {
	Operation string
	Message   string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("operation %s: %s", e.Operation, e.Message)
}

func (e *ConfigurationError) Unwrap() error { return ErrConfiguration }
