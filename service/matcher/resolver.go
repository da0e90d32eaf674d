package matcher

import (
	"sort"
	"strings"
	"time"

	"github.com/viant/gatekeep/model"
)

// Compare returns a positive number when a outranks b, negative when b
// outranks a and zero only for the same rule id.
func Compare(a, b *model.ApprovalRule) int {
	if diff := a.Constraints.Specificity() - b.Constraints.Specificity(); diff != 0 {
		return diff
	}
	if a.HasBoundedScope() != b.HasBoundedScope() {
		if a.HasBoundedScope() {
			return 1
		}
		return -1
	}
	if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
		return c
	}
	return strings.Compare(a.ID, b.ID)
}

// Eligible returns true when the rule may auto-approve the call at now.
func Eligible(rule *model.ApprovalRule, operation string, args map[string]interface{}, now time.Time) bool {
	if rule == nil || rule.OperationName != operation {
		return false
	}
	if !rule.IsUsable(now) {
		return false
	}
	return Matches(rule.Constraints, args)
}

// Rank returns eligible rules ordered from winner to last candidate.
// The input slice is not modified.
func Rank(rules []*model.ApprovalRule, operation string, args map[string]interface{}, now time.Time) []*model.ApprovalRule {
	var ret []*model.ApprovalRule
	for _, rule := range rules {
		if Eligible(rule, operation, args, now) {
			ret = append(ret, rule)
		}
	}
	sort.SliceStable(ret, func(i, j int) bool {
		return Compare(ret[i], ret[j]) > 0
	})
	return ret
}

// Resolve returns the winning rule or nil when no rule matches.
func Resolve(rules []*model.ApprovalRule, operation string, args map[string]interface{}, now time.Time) *model.ApprovalRule {
	ranked := Rank(rules, operation, args, now)
	if len(ranked) == 0 {
		return nil
	}
	return ranked[0]
}
