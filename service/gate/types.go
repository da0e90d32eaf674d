package gate

import "github.com/viant/gatekeep/model"

// Kind names the outcome of an intercepted call.
type Kind string

const (
	KindPassThrough  Kind = "pass_through"
	KindAutoApproved Kind = "auto_approved"
	KindHeld         Kind = "held"
)

// Call is one invocation of a possibly gated operation.
type Call struct {
	Operation string                 `json:"operation"`
	Arguments map[string]interface{} `json:"arguments,omitempty"`
	// Actor identifies the caller; it is never defaulted.
	Actor string `json:"actor"`
}

// Decision tells the caller whether the operation may run now.
type Decision struct {
	Kind     Kind                        `json:"kind"`
	ActionID string                      `json:"actionId"`
	RuleID   string                      `json:"ruleId,omitempty"`
	Warnings []*model.ConfigurationError `json:"warnings,omitempty"`
}

// Cleared returns true when the action is approved and may be executed.
func (d *Decision) Cleared() bool {
	return d.Kind == KindPassThrough || d.Kind == KindAutoApproved
}
