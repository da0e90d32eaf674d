package rule

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/gatekeep/model"
	"github.com/viant/gatekeep/policy"
)

func TestValidate(t *testing.T) {
	now := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	future := now.Add(time.Hour)
	past := now.Add(-time.Hour)
	three, zero := 3, 0
	pol, err := policy.New(&policy.Config{Operations: map[string]*policy.Operation{
		"wire_funds": {Mode: policy.ModeAlways, RiskTier: model.RiskHigh},
	}})
	require.NoError(t, err)

	var testCases = []struct {
		description string
		rule        *model.ApprovalRule
		violations  int
	}{
		{
			description: "low tier with no constraints",
			rule:        &model.ApprovalRule{OperationName: "send_message", RiskTier: model.RiskLow},
		},
		{
			description: "critical tier unbounded with only any",
			rule: &model.ApprovalRule{OperationName: "delete_contact", RiskTier: model.RiskCritical,
				Constraints: model.Constraints{"id": model.Any()}},
			violations: 2,
		},
		{
			description: "high tier bounded and narrow",
			rule: &model.ApprovalRule{OperationName: "delete_contact", RiskTier: model.RiskHigh, MaxUses: &three,
				Constraints: model.Constraints{"id": model.Exact(42)}},
		},
		{
			description: "high tier with expiry and pattern",
			rule: &model.ApprovalRule{OperationName: "send_message", RiskTier: model.RiskHigh, ExpiresAt: &future,
				Constraints: model.Constraints{"recipient": model.Pattern("*@x.com")}},
		},
		{
			description: "high tier wildcard-only pattern does not narrow",
			rule: &model.ApprovalRule{OperationName: "send_message", RiskTier: model.RiskHigh, ExpiresAt: &future,
				Constraints: model.Constraints{"recipient": model.Pattern("**")}},
			violations: 1,
		},
		{
			description: "high tier missing bounds",
			rule: &model.ApprovalRule{OperationName: "delete_contact", RiskTier: model.RiskHigh,
				Constraints: model.Constraints{"id": model.Exact(42)}},
			violations: 1,
		},
		{
			description: "invalid attributes",
			rule: &model.ApprovalRule{RiskTier: "extreme", MaxUses: &zero, ExpiresAt: &past,
				Constraints: model.Constraints{"a": {Kind: "regex"}, "b": model.Pattern("")}},
			violations: 6,
		},
		{
			description: "tier below declared operation tier",
			rule:        &model.ApprovalRule{OperationName: "wire_funds", RiskTier: model.RiskLow},
			violations:  1,
		},
	}
	for _, testCase := range testCases {
		err := Validate(testCase.rule, pol, now)
		if testCase.violations == 0 {
			assert.NoError(t, err, testCase.description)
			continue
		}
		var validation *model.ValidationError
		require.True(t, errors.As(err, &validation), testCase.description)
		assert.ErrorIs(t, err, model.ErrValidation, testCase.description)
		assert.Len(t, validation.Violations, testCase.violations, testCase.description)
	}
}

func TestSuggest_Values(t *testing.T) {
	var testCases = []struct {
		description string
		values      []interface{}
		expect      *model.Constraint
	}{
		{description: "single value", values: []interface{}{"ops@x.com", "ops@x.com"}, expect: constraintPtr(model.Exact("ops@x.com"))},
		{description: "numeric single value", values: []interface{}{42.0, 42.0}, expect: constraintPtr(model.Exact(42.0))},
		{description: "shared prefix", values: []interface{}{"report-2026-01", "report-2026-02"}, expect: constraintPtr(model.Pattern("report-2026-0*"))},
		{description: "prefix with glob characters escaped", values: []interface{}{"a*bc1", "a*bc2"}, expect: constraintPtr(model.Pattern(`a\*bc*`))},
		{description: "short prefix", values: []interface{}{"ab1", "ab2"}},
		{description: "mixed types", values: []interface{}{"abc", 1.0}},
	}
	for _, testCase := range testCases {
		actual := suggest("arg", testCase.values)
		if testCase.expect == nil {
			assert.Nil(t, actual, testCase.description)
			continue
		}
		require.NotNil(t, actual, testCase.description)
		assert.Equal(t, *testCase.expect, *actual.Constraint, testCase.description)
	}
}

func TestDeriveConstraints(t *testing.T) {
	actual := DeriveConstraints(map[string]interface{}{
		"id":       42.0,
		"name":     "Ada",
		"password": "[redacted]",
		"url":      "https://[redacted]@host",
		"tags":     []interface{}{"a"},
		"nothing":  nil,
	})
	assert.Equal(t, model.Constraints{"id": model.Exact(42.0), "name": model.Exact("Ada")}, actual)
}

func constraintPtr(c model.Constraint) *model.Constraint { return &c }
