package rule

import (
	"fmt"
	"strings"
	"time"

	"github.com/viant/gatekeep/model"
	"github.com/viant/gatekeep/policy"
)

var tierRank = map[model.RiskTier]int{
	model.RiskLow:      1,
	model.RiskMedium:   2,
	model.RiskHigh:     3,
	model.RiskCritical: 4,
}

// Validate checks a rule candidate against the risk policy. High and critical
// rules must be bounded by expiry or use count and carry at least one exact
// or pattern constraint; a pattern made only of '*' does not narrow anything.
// When pol declares a tier for the operation the rule may not claim a lower one.
func Validate(rule *model.ApprovalRule, pol *policy.Policy, now time.Time) error {
	var violations []string
	add := func(format string, args ...interface{}) {
		violations = append(violations, fmt.Sprintf(format, args...))
	}
	if strings.TrimSpace(rule.OperationName) == "" {
		add("operation name is required")
	}
	if !rule.RiskTier.IsValid() {
		add("invalid risk tier %q", rule.RiskTier)
	} else if declared := pol.RiskTier(rule.OperationName); declared.IsValid() && tierRank[rule.RiskTier] < tierRank[declared] {
		add("risk tier %s is below the %s tier declared for %s", rule.RiskTier, declared, rule.OperationName)
	}
	if rule.MaxUses != nil && *rule.MaxUses <= 0 {
		add("max uses must be positive")
	}
	if rule.ExpiresAt != nil && !rule.ExpiresAt.After(now) {
		add("expiry %s is not in the future", rule.ExpiresAt.Format(time.RFC3339))
	}
	for _, name := range rule.Constraints.Names() {
		constraint := rule.Constraints[name]
		if strings.TrimSpace(name) == "" {
			add("constraint argument name is required")
			continue
		}
		switch constraint.Kind {
		case model.ConstraintExact, model.ConstraintAny:
		case model.ConstraintPattern:
			if constraint.Pattern == "" {
				add("constraint %s: empty pattern", name)
			}
		default:
			add("constraint %s: unknown kind %q", name, constraint.Kind)
		}
	}
	violations = append(violations, rule.ScopeViolations()...)
	if len(violations) == 0 {
		return nil
	}
	return &model.ValidationError{RuleID: rule.ID, Violations: violations}
}
