package model

import (
	"fmt"
	"strings"
	"time"
)

// RiskTier classifies how dangerous an operation is.
type RiskTier string

const (
	RiskLow      RiskTier = "low"
	RiskMedium   RiskTier = "medium"
	RiskHigh     RiskTier = "high"
	RiskCritical RiskTier = "critical"
)

// IsValid returns true for a known tier.
func (t RiskTier) IsValid() bool {
	switch t {
	case RiskLow, RiskMedium, RiskHigh, RiskCritical:
		return true
	}
	return false
}

// RequiresBoundedScope returns true for tiers whose rules must be bounded and narrow.
func (t RiskTier) RequiresBoundedScope() bool {
	return t == RiskHigh || t == RiskCritical
}

// ParseRiskTier parses tier text (case-insensitive).
func ParseRiskTier(text string) (RiskTier, error) {
	t := RiskTier(strings.ToLower(strings.TrimSpace(text)))
	if !t.IsValid() {
		return "", fmt.Errorf("invalid risk tier: %q", text)
	}
	return t, nil
}

// ApprovalRule is a standing policy that can auto-approve matching calls.
type ApprovalRule struct {
	ID            string      `json:"id"`
	OperationName string      `json:"operationName"`
	Constraints   Constraints `json:"argConstraints,omitempty"`
	Description   string      `json:"description,omitempty"`
	RiskTier      RiskTier    `json:"riskTier"`
	ExpiresAt     *time.Time  `json:"expiresAt,omitempty"`
	MaxUses       *int        `json:"maxUses,omitempty"`
	UseCount      int         `json:"useCount"`
	Active        bool        `json:"active"`
	CreatedAt     time.Time   `json:"createdAt"`
	CreatedBy     string      `json:"createdBy,omitempty"`
	CreatedFrom   string      `json:"createdFrom,omitempty"`
	Supersedes    string      `json:"supersedes,omitempty"`
	RevokedAt     *time.Time  `json:"revokedAt,omitempty"`
	RevokedBy     string      `json:"revokedBy,omitempty"`
}

// HasBoundedScope returns true when expiry or a use limit is set.
func (r *ApprovalRule) HasBoundedScope() bool {
	return r.ExpiresAt != nil || r.MaxUses != nil
}

// ScopeViolations lists breaches of the tier scope invariant: high and
// critical rules need an expiry or use limit and at least one narrowing
// constraint.
func (r *ApprovalRule) ScopeViolations() []string {
	if !r.RiskTier.RequiresBoundedScope() {
		return nil
	}
	var ret []string
	if !r.HasBoundedScope() {
		ret = append(ret, fmt.Sprintf("%s tier rule requires expiry or max uses", r.RiskTier))
	}
	if r.Constraints.Narrowing() == 0 {
		ret = append(ret, fmt.Sprintf("%s tier rule requires at least one exact or pattern constraint", r.RiskTier))
	}
	return ret
}

// CheckScope returns a *ValidationError when the rule breaks the tier scope invariant.
func (r *ApprovalRule) CheckScope() error {
	if violations := r.ScopeViolations(); len(violations) > 0 {
		return &ValidationError{RuleID: r.ID, Violations: violations}
	}
	return nil
}

// IsExpired returns true once now reached the rule expiry.
func (r *ApprovalRule) IsExpired(now time.Time) bool {
	return r.ExpiresAt != nil && !now.Before(*r.ExpiresAt)
}

// IsExhausted returns true once use count reached max uses.
func (r *ApprovalRule) IsExhausted() bool {
	return r.MaxUses != nil && r.UseCount >= *r.MaxUses
}

// IsUsable returns true for active, unexpired, not exhausted rules.
func (r *ApprovalRule) IsUsable(now time.Time) bool {
	return r.Active && !r.IsExpired(now) && !r.IsExhausted()
}

// Clone returns a copy safe to mutate.
func (r *ApprovalRule) Clone() *ApprovalRule {
	if r == nil {
		return nil
	}
	ret := *r
	ret.Constraints = r.Constraints.Clone()
	ret.ExpiresAt = cloneTime(r.ExpiresAt)
	ret.RevokedAt = cloneTime(r.RevokedAt)
	if r.MaxUses != nil {
		maxUses := *r.MaxUses
		ret.MaxUses = &maxUses
	}
	return &ret
}

// Snapshot returns the JSON document form used as audit payload.
func (r *ApprovalRule) Snapshot() map[string]interface{} {
	return snapshot(r)
}
