package dao

import (
	"context"
	"fmt"
	"time"

	"github.com/viant/gatekeep/model"
)

// Store persists pending actions, approval rules and the audit event log.
//
// Every mutating method changes state and appends its paired events in one
// transaction. Conditional updates are the only way a status or a use count
// changes. Events get their sequence number and chain hash on insert; an event
// with nil payload gets the snapshot of the entity it describes.
type Store interface {
	// CreateAction inserts a new action together with its creation event.
	CreateAction(ctx context.Context, action *model.PendingAction, event *model.ApprovalEvent) error

	// AutoApprove consumes one use of a rule and inserts the approved action
	// referencing it. It fails with ErrRuleExhausted or ErrRuleInactive when the
	// rule can no longer be used at consumption time.
	AutoApprove(ctx context.Context, consumption *Consumption) (*model.ApprovalRule, error)

	// Transition moves an action from one status to another if, and only if,
	// its current status equals From. A failed precondition returns a
	// *model.DecisionError.
	Transition(ctx context.Context, transition *Transition) (*model.PendingAction, error)

	// Claim marks an approved action as taken by an executor. Only one claim
	// can succeed per action.
	Claim(ctx context.Context, actionID, claimant string, at time.Time) (*model.PendingAction, error)

	GetAction(ctx context.Context, id string) (*model.PendingAction, error)

	ListActions(ctx context.Context, parameters ...*Parameter) ([]*model.PendingAction, error)

	// CreateRule inserts a rule, optionally revoking the rule it supersedes.
	CreateRule(ctx context.Context, write *RuleWrite) error

	// RevokeRule deactivates an active rule.
	RevokeRule(ctx context.Context, revocation *Revocation) (*model.ApprovalRule, error)

	GetRule(ctx context.Context, id string) (*model.ApprovalRule, error)

	ListRules(ctx context.Context, parameters ...*Parameter) ([]*model.ApprovalRule, error)

	// AppendEvent records an event not paired with a state change.
	AppendEvent(ctx context.Context, event *model.ApprovalEvent) error

	ListEvents(ctx context.Context, parameters ...*Parameter) ([]*model.ApprovalEvent, error)

	Close() error
}

// Transition describes a conditional status change.
type Transition struct {
	ActionID string
	From     model.Status
	To       model.Status
	Actor    string
	Reason   string
	At       time.Time
	// Result is recorded when To is executed.
	Result *model.ExecutionResult
	Event  *model.ApprovalEvent
}

// Validate checks the transition is legal before touching storage.
func (t *Transition) Validate() error {
	if t.ActionID == "" {
		return ErrInvalidID
	}
	if !model.CanTransition(t.From, t.To) {
		return fmt.Errorf("%w: %s -> %s", model.ErrInvalidStatus, t.From, t.To)
	}
	return nil
}

// Apply copies the transition effects onto action.
func (t *Transition) Apply(action *model.PendingAction) {
	action.Status = t.To
	at := t.At
	if t.To == model.StatusExecuted {
		action.ExecutedAt = &at
		action.ExecutionResult = t.Result
		return
	}
	action.DecidedAt = &at
	action.DecidedBy = t.Actor
	action.Reason = t.Reason
}

// Consumption describes an auto-approval backed by a rule.
type Consumption struct {
	RuleID string
	At     time.Time
	Action *model.PendingAction
	Event  *model.ApprovalEvent
}

// RuleWrite describes a rule insert.
type RuleWrite struct {
	Rule  *model.ApprovalRule
	Event *model.ApprovalEvent
	// Supersede revokes the amended rule in the same transaction.
	Supersede *Revocation
}

// Revocation describes a rule deactivation.
type Revocation struct {
	RuleID string
	Actor  string
	At     time.Time
	Event  *model.ApprovalEvent
}

// Apply copies the revocation effects onto rule.
func (r *Revocation) Apply(rule *model.ApprovalRule) {
	at := r.At
	rule.Active = false
	rule.RevokedAt = &at
	rule.RevokedBy = r.Actor
}

// ClassifyConsumption maps the rule observed after a failed consumption to an error.
func ClassifyConsumption(rule *model.ApprovalRule) error {
	switch {
	case rule == nil:
		return ErrNotFound
	case !rule.Active:
		return model.ErrRuleInactive
	}
	return model.ErrRuleExhausted
}

// ClassifyClaim maps the action observed after a failed claim to an error.
func ClassifyClaim(id string, action *model.PendingAction) error {
	switch {
	case action == nil:
		return model.NewDecisionError(id, "")
	case action.Status == model.StatusApproved:
		return &model.DecisionError{ActionID: id, Status: action.Status, Err: model.ErrAlreadyClaimed}
	}
	return model.NewDecisionError(id, action.Status)
}
