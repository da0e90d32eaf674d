package policy

import (
	"sort"
	"time"

	"github.com/viant/gatekeep/model"
)

// Policy is the compiled, read-only gate configuration.
// A nil *Policy treats every operation as unknown, so every call is gated.
type Policy struct {
	defaultTTL time.Duration
	operations map[string]*operation
}

type operation struct {
	mode      Mode
	sensitive []Argument
	redact    []string
	riskTier  model.RiskTier
	ttl       time.Duration
}

// Gating is the outcome of evaluating a call against the policy.
type Gating struct {
	Mode  Mode
	Gated bool
	// Warning is set when the configuration failed closed.
	Warning *model.ConfigurationError
}

// New compiles cfg; later changes to cfg do not affect the returned Policy.
func New(cfg *Config) (*Policy, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	ret := &Policy{defaultTTL: cfg.DefaultTTL, operations: make(map[string]*operation, len(cfg.Operations))}
	if ret.defaultTTL == 0 {
		ret.defaultTTL = DefaultTTL
	}
	for name, op := range cfg.Operations {
		compiled := &operation{mode: op.Mode, riskTier: op.RiskTier, ttl: op.TTL}
		if compiled.mode == "" {
			compiled.mode = ModeAlways
		}
		redacted := map[string]bool{}
		for _, arg := range op.Sensitive {
			defaultValue, err := model.Canonical(arg.Default)
			if err != nil {
				return nil, &model.ConfigurationError{Operation: name, Message: "invalid default of " + arg.Name + ": " + err.Error()}
			}
			compiled.sensitive = append(compiled.sensitive, Argument{Name: arg.Name, Default: defaultValue, Redact: arg.Redact})
			if arg.Redact {
				redacted[arg.Name] = true
			}
		}
		for _, argName := range op.Redact {
			redacted[argName] = true
		}
		for argName := range redacted {
			compiled.redact = append(compiled.redact, argName)
		}
		sort.Strings(compiled.redact)
		ret.operations[name] = compiled
	}
	return ret, nil
}

// Evaluate decides whether a call must go through the approval path.
// Unknown operations and conditional operations without sensitivity
// declarations fail closed to always and carry a warning.
func (p *Policy) Evaluate(operationName string, args map[string]interface{}) *Gating {
	op := p.lookup(operationName)
	if op == nil {
		return &Gating{Mode: ModeAlways, Gated: true, Warning: &model.ConfigurationError{
			Operation: operationName, Message: "unknown operation, gating always",
		}}
	}
	switch op.mode {
	case ModeNone:
		return &Gating{Mode: ModeNone}
	case ModeConditional:
		if len(op.sensitive) == 0 {
			return &Gating{Mode: ModeAlways, Gated: true, Warning: &model.ConfigurationError{
				Operation: operationName, Message: "conditional mode without sensitive arguments, gating always",
			}}
		}
		return &Gating{Mode: ModeConditional, Gated: op.isSensitiveCall(args)}
	}
	return &Gating{Mode: ModeAlways, Gated: true}
}

func (o *operation) isSensitiveCall(args map[string]interface{}) bool {
	for _, arg := range o.sensitive {
		value, ok := args[arg.Name]
		if !ok {
			continue
		}
		if !model.Equal(value, arg.Default) {
			return true
		}
	}
	return false
}

// TTL returns how long a held call of the operation waits for a decision.
func (p *Policy) TTL(operationName string) time.Duration {
	if op := p.lookup(operationName); op != nil && op.ttl > 0 {
		return op.ttl
	}
	if p == nil || p.defaultTTL == 0 {
		return DefaultTTL
	}
	return p.defaultTTL
}

// Redacted returns argument names declared for redaction.
func (p *Policy) Redacted(operationName string) []string {
	if op := p.lookup(operationName); op != nil {
		return op.redact
	}
	return nil
}

// RiskTier returns the declared tier of the operation or empty when undeclared.
func (p *Policy) RiskTier(operationName string) model.RiskTier {
	if op := p.lookup(operationName); op != nil {
		return op.riskTier
	}
	return ""
}

// Known returns true when the operation is configured.
func (p *Policy) Known(operationName string) bool {
	return p.lookup(operationName) != nil
}

// Operations returns configured operation names in sorted order.
func (p *Policy) Operations() []string {
	if p == nil {
		return nil
	}
	ret := make([]string, 0, len(p.operations))
	for name := range p.operations {
		ret = append(ret, name)
	}
	sort.Strings(ret)
	return ret
}

func (p *Policy) lookup(operationName string) *operation {
	if p == nil {
		return nil
	}
	return p.operations[operationName]
}
