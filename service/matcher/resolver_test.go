package matcher

import (
	"math/rand"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/viant/gatekeep/model"
)

func TestRank(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	now := base.Add(time.Hour)
	five := 5
	one := 1
	expiry := now.Add(time.Hour)
	past := now.Add(-time.Minute)

	rule := func(id string, created time.Duration, constraints model.Constraints, mutate ...func(r *model.ApprovalRule)) *model.ApprovalRule {
		ret := &model.ApprovalRule{
			ID:            id,
			OperationName: "send_message",
			Constraints:   constraints,
			RiskTier:      model.RiskLow,
			Active:        true,
			CreatedAt:     base.Add(created),
		}
		for _, fn := range mutate {
			fn(ret)
		}
		return ret
	}
	exact := model.Constraints{"recipient": model.Exact("ops@x.com")}
	both := model.Constraints{"recipient": model.Exact("ops@x.com"), "subject": model.Pattern("alert:*")}
	args := map[string]interface{}{"recipient": "ops@x.com", "subject": "alert: disk"}

	testCases := []struct {
		description string
		rules       []*model.ApprovalRule
		expect      []string
	}{
		{
			description: "specificity first",
			rules: []*model.ApprovalRule{
				rule("a", 3, exact),
				rule("b", 1, both),
				rule("c", 5, model.Constraints{"recipient": model.Any()}),
			},
			expect: []string{"b", "a", "c"},
		},
		{
			description: "bounded scope breaks specificity ties",
			rules: []*model.ApprovalRule{
				rule("a", 3, exact),
				rule("b", 1, exact, func(r *model.ApprovalRule) { r.MaxUses = &five }),
				rule("c", 0, exact, func(r *model.ApprovalRule) { r.ExpiresAt = &expiry }),
			},
			expect: []string{"b", "c", "a"},
		},
		{
			description: "recency then id",
			rules: []*model.ApprovalRule{
				rule("a", 1, exact),
				rule("b", 2, exact),
				rule("d", 2, exact),
			},
			expect: []string{"d", "b", "a"},
		},
		{
			description: "unusable and foreign rules are skipped",
			rules: []*model.ApprovalRule{
				rule("inactive", 1, both, func(r *model.ApprovalRule) { r.Active = false }),
				rule("expired", 1, both, func(r *model.ApprovalRule) { r.ExpiresAt = &past }),
				rule("exhausted", 1, both, func(r *model.ApprovalRule) { r.MaxUses = &one; r.UseCount = 1 }),
				rule("other", 1, nil, func(r *model.ApprovalRule) { r.OperationName = "delete_contact" }),
				rule("mismatch", 1, model.Constraints{"recipient": model.Exact("ceo@x.com")}),
				rule("ok", 1, exact),
			},
			expect: []string{"ok"},
		},
		{
			description: "no candidates",
			rules:       []*model.ApprovalRule{rule("other", 1, nil, func(r *model.ApprovalRule) { r.OperationName = "x" })},
			expect:      []string{},
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.description, func(t *testing.T) {
			actual := ids(Rank(testCase.rules, "send_message", args, now))
			if diff := cmp.Diff(testCase.expect, actual); diff != "" {
				t.Errorf("unexpected ranking (-want +got):\n%s", diff)
			}
		})
	}
}

func TestResolve_Deterministic(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var rules []*model.ApprovalRule
	for i, id := range []string{"r1", "r2", "r3", "r4", "r5"} {
		rules = append(rules, &model.ApprovalRule{
			ID:            id,
			OperationName: "send_message",
			Constraints:   model.Constraints{"recipient": model.Pattern("*@x.com")},
			Active:        true,
			CreatedAt:     base.Add(time.Duration(i%2) * time.Second),
		})
	}
	args := map[string]interface{}{"recipient": "ops@x.com"}
	random := rand.New(rand.NewSource(7))
	for i := 0; i < 50; i++ {
		random.Shuffle(len(rules), func(a, b int) { rules[a], rules[b] = rules[b], rules[a] })
		winner := Resolve(rules, "send_message", args, base.Add(time.Minute))
		if assert.NotNil(t, winner) {
			assert.Equal(t, "r4", winner.ID)
		}
	}
	assert.Nil(t, Resolve(rules, "send_message", map[string]interface{}{"recipient": "a@y.com"}, base))
}

func ids(rules []*model.ApprovalRule) []string {
	ret := make([]string, 0, len(rules))
	for _, r := range rules {
		ret = append(ret, r.ID)
	}
	return ret
}
