package model

import (
	"encoding/json"
	"time"
)

// ExecutionResult captures the outcome of running a gated operation.
type ExecutionResult struct {
	Success bool        `json:"success"`
	Error   string      `json:"error,omitempty"`
	Payload interface{} `json:"payload,omitempty"`
}

// PendingAction is the durable record of one gated invocation attempt.
type PendingAction struct {
	ID              string                 `json:"id"`
	OperationName   string                 `json:"operationName"`
	Arguments       map[string]interface{} `json:"arguments,omitempty"`
	SealedArguments []byte                 `json:"-"`
	Status          Status                 `json:"status"`
	RequestedBy     string                 `json:"requestedBy,omitempty"`
	RequestedAt     time.Time              `json:"requestedAt"`
	ExpiresAt       time.Time              `json:"expiresAt"`
	DecidedAt       *time.Time             `json:"decidedAt,omitempty"`
	DecidedBy       string                 `json:"decidedBy,omitempty"`
	Reason          string                 `json:"reason,omitempty"`
	MatchedRuleID   string                 `json:"matchedRuleId,omitempty"`
	ClaimedBy       string                 `json:"claimedBy,omitempty"`
	ClaimedAt       *time.Time             `json:"claimedAt,omitempty"`
	ExecutedAt      *time.Time             `json:"executedAt,omitempty"`
	ExecutionResult *ExecutionResult       `json:"executionResult,omitempty"`
}

// IsOverdue returns true when a pending action passed its expiry.
func (a *PendingAction) IsOverdue(now time.Time) bool {
	return a.Status == StatusPending && a.ExpiresAt.Before(now)
}

// Clone returns a deep enough copy for store isolation.
func (a *PendingAction) Clone() *PendingAction {
	if a == nil {
		return nil
	}
	ret := *a
	if a.Arguments != nil {
		ret.Arguments = make(map[string]interface{}, len(a.Arguments))
		for k, v := range a.Arguments {
			ret.Arguments[k] = v
		}
	}
	if a.SealedArguments != nil {
		ret.SealedArguments = append([]byte(nil), a.SealedArguments...)
	}
	ret.DecidedAt = cloneTime(a.DecidedAt)
	ret.ClaimedAt = cloneTime(a.ClaimedAt)
	ret.ExecutedAt = cloneTime(a.ExecutedAt)
	if a.ExecutionResult != nil {
		result := *a.ExecutionResult
		ret.ExecutionResult = &result
	}
	return &ret
}

// Snapshot returns the JSON document form used as audit payload.
func (a *PendingAction) Snapshot() map[string]interface{} {
	return snapshot(a)
}

func snapshot(v interface{}) map[string]interface{} {
	data, err := json.Marshal(v)
	if err != nil {
		return map[string]interface{}{"error": err.Error()}
	}
	var ret map[string]interface{}
	if err = DecodeJSON(data, &ret); err != nil {
		return map[string]interface{}{"error": err.Error()}
	}
	return ret
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	ret := *t
	return &ret
}
