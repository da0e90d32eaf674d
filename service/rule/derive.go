package rule

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/viant/gatekeep/model"
	"github.com/viant/gatekeep/service/dao"
	"github.com/viant/gatekeep/service/redact"
)

// Derivation carries the author supplied attributes of a derived rule.
type Derivation struct {
	RiskTier    model.RiskTier
	ExpiresAt   *time.Time
	MaxUses     *int
	Description string
}

// Derive creates a rule from an approved or executed action. Every scalar,
// non-redacted argument becomes an exact constraint; redacted and structured
// arguments are left unconstrained.
func (s *Service) Derive(ctx context.Context, actionID string, derivation *Derivation, actor string) (*model.ApprovalRule, error) {
	action, err := s.store.GetAction(ctx, actionID)
	if err != nil {
		return nil, err
	}
	if action.Status != model.StatusApproved && action.Status != model.StatusExecuted {
		return nil, &model.DecisionError{ActionID: actionID, Status: action.Status, Err: model.ErrInvalidStatus}
	}
	if derivation == nil {
		derivation = &Derivation{}
	}
	candidate := &model.ApprovalRule{
		OperationName: action.OperationName,
		Constraints:   DeriveConstraints(action.Arguments),
		Description:   derivation.Description,
		RiskTier:      derivation.RiskTier,
		ExpiresAt:     derivation.ExpiresAt,
		MaxUses:       derivation.MaxUses,
		CreatedFrom:   action.ID,
	}
	if candidate.Description == "" {
		candidate.Description = fmt.Sprintf("derived from action %s", action.ID)
	}
	return s.Create(ctx, candidate, actor)
}

// DeriveConstraints turns stored arguments into exact constraints.
func DeriveConstraints(args map[string]interface{}) model.Constraints {
	ret := model.Constraints{}
	for name, value := range args {
		if !isScalar(value) || redact.Contains(value) {
			continue
		}
		ret[name] = model.Exact(value)
	}
	return ret
}

func isScalar(value interface{}) bool {
	switch value.(type) {
	case string, bool, json.Number, float64, float32, int, int32, int64, uint, uint32, uint64:
		return true
	}
	return false
}

// Suggestion proposes a narrower constraint or a scope bound for a candidate.
type Suggestion struct {
	Argument   string            `json:"argument,omitempty"`
	Constraint *model.Constraint `json:"constraint,omitempty"`
	MaxUses    *int              `json:"maxUses,omitempty"`
	ExpiresAt  *time.Time        `json:"expiresAt,omitempty"`
	Reason     string            `json:"reason"`
}

const (
	minPrefix         = 3
	suggestedLifetime = 7 * 24 * time.Hour
	maxSuggestedUses  = 100
)

// Suggest looks at approved and executed actions of the candidate operation
// and proposes narrowing for each argument the candidate leaves open: a
// single observed value becomes an exact constraint; string values sharing a
// prefix of at least three characters become a prefix pattern. High and
// critical candidates without bounds also get scope suggestions.
func (s *Service) Suggest(ctx context.Context, candidate *model.ApprovalRule) ([]*Suggestion, error) {
	if candidate == nil || candidate.OperationName == "" {
		return nil, fmt.Errorf("candidate operation is required")
	}
	history, err := s.store.ListActions(ctx,
		dao.WithOperation(candidate.OperationName),
		dao.WithStatus(model.StatusApproved, model.StatusExecuted))
	if err != nil {
		return nil, err
	}
	observed := map[string][]interface{}{}
	for _, action := range history {
		for name, value := range action.Arguments {
			if isScalar(value) && !redact.Contains(value) {
				observed[name] = append(observed[name], value)
			}
		}
	}
	var names []string
	for name := range observed {
		if constraint, ok := candidate.Constraints[name]; ok && constraint.IsNarrowing() {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	var ret []*Suggestion
	for _, name := range names {
		if suggestion := suggest(name, observed[name]); suggestion != nil {
			ret = append(ret, suggestion)
		}
	}
	if candidate.RiskTier.RequiresBoundedScope() && !candidate.HasBoundedScope() {
		uses := len(history)
		if uses < 1 {
			uses = 1
		}
		if uses > maxSuggestedUses {
			uses = maxSuggestedUses
		}
		expiry := s.now().Add(suggestedLifetime)
		ret = append(ret, &Suggestion{
			MaxUses:   &uses,
			ExpiresAt: &expiry,
			Reason:    fmt.Sprintf("%s tier rules must be bounded; %d matching approvals observed", candidate.RiskTier, len(history)),
		})
	}
	return ret, nil
}

func suggest(name string, values []interface{}) *Suggestion {
	distinct := distinctValues(values)
	if len(distinct) == 1 {
		constraint := model.Exact(distinct[0])
		return &Suggestion{Argument: name, Constraint: &constraint,
			Reason: fmt.Sprintf("all %d approvals used the same value", len(values))}
	}
	var texts []string
	for _, value := range distinct {
		text, ok := value.(string)
		if !ok {
			return nil
		}
		texts = append(texts, text)
	}
	prefix := commonPrefix(texts)
	if len(prefix) < minPrefix {
		return nil
	}
	constraint := model.Pattern(escapeGlob(prefix) + "*")
	return &Suggestion{Argument: name, Constraint: &constraint,
		Reason: fmt.Sprintf("%d distinct values share prefix %q", len(distinct), prefix)}
}

func distinctValues(values []interface{}) []interface{} {
	var ret []interface{}
	for _, value := range values {
		seen := false
		for _, candidate := range ret {
			if model.Equal(candidate, value) {
				seen = true
				break
			}
		}
		if !seen {
			ret = append(ret, value)
		}
	}
	return ret
}

func commonPrefix(texts []string) string {
	if len(texts) == 0 {
		return ""
	}
	prefix := texts[0]
	for _, text := range texts[1:] {
		for !strings.HasPrefix(text, prefix) {
			prefix = prefix[:len(prefix)-1]
		}
	}
	for !utf8.ValidString(prefix) {
		prefix = prefix[:len(prefix)-1]
	}
	return prefix
}

func escapeGlob(text string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`)
	return replacer.Replace(text)
}
