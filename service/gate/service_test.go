package gate_test

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viant/gatekeep/internal/seal"
	"github.com/viant/gatekeep/model"
	"github.com/viant/gatekeep/policy"
	"github.com/viant/gatekeep/service/dao"
	"github.com/viant/gatekeep/service/dao/daotest"
	"github.com/viant/gatekeep/service/dao/memory"
	"github.com/viant/gatekeep/service/gate"
	"github.com/viant/gatekeep/service/redact"
)

var now = daotest.Base

func newPolicy(t *testing.T) *policy.Policy {
	t.Helper()
	pol, err := policy.New(&policy.Config{
		DefaultTTL: time.Hour,
		Operations: map[string]*policy.Operation{
			"list_contacts":  {Mode: policy.ModeNone},
			"delete_contact": {Mode: policy.ModeAlways, TTL: 30 * time.Minute},
			"send_message":   {Mode: policy.ModeAlways},
			"export": {Mode: policy.ModeConditional, Sensitive: []*policy.Argument{
				{Name: "scope", Default: "self"},
				{Name: "apiSecret", Redact: true},
			}},
			"broken": {Mode: policy.ModeConditional},
		},
	})
	require.NoError(t, err)
	return pol
}

func newGate(t *testing.T, store dao.Store, opts ...gate.Option) *gate.Service {
	opts = append(opts, gate.WithNow(func() time.Time { return now }))
	return gate.New(store, newPolicy(t), opts...)
}

func addRule(t *testing.T, store dao.Store, rule *model.ApprovalRule) {
	t.Helper()
	require.NoError(t, store.CreateRule(context.Background(), &dao.RuleWrite{
		Rule:  rule,
		Event: daotest.NewEvent(model.EventRuleCreated, "", rule.ID, now),
	}))
}

func TestService_Intercept(t *testing.T) {
	var testCases = []struct {
		description  string
		call         *gate.Call
		expectKind   gate.Kind
		expectStatus model.Status
		expectEvent  model.EventType
		expectTTL    time.Duration
		warning      bool
	}{
		{description: "ungated operation passes through", call: &gate.Call{Operation: "list_contacts", Actor: "agent"},
			expectKind: gate.KindPassThrough, expectStatus: model.StatusApproved, expectEvent: model.EventPassedThrough, expectTTL: time.Hour},
		{description: "always gated without rules is held", call: &gate.Call{Operation: "delete_contact", Arguments: map[string]interface{}{"id": 42}, Actor: "agent"},
			expectKind: gate.KindHeld, expectStatus: model.StatusPending, expectEvent: model.EventHeld, expectTTL: 30 * time.Minute},
		{description: "conditional with default value passes", call: &gate.Call{Operation: "export", Arguments: map[string]interface{}{"scope": "self"}, Actor: "agent"},
			expectKind: gate.KindPassThrough, expectStatus: model.StatusApproved, expectEvent: model.EventPassedThrough, expectTTL: time.Hour},
		{description: "conditional with absent argument passes", call: &gate.Call{Operation: "export", Actor: "agent"},
			expectKind: gate.KindPassThrough, expectStatus: model.StatusApproved, expectEvent: model.EventPassedThrough, expectTTL: time.Hour},
		{description: "conditional with non default value is held", call: &gate.Call{Operation: "export", Arguments: map[string]interface{}{"scope": "all"}, Actor: "agent"},
			expectKind: gate.KindHeld, expectStatus: model.StatusPending, expectEvent: model.EventHeld, expectTTL: time.Hour},
		{description: "unknown operation fails closed", call: &gate.Call{Operation: "drop_database", Actor: "agent"},
			expectKind: gate.KindHeld, expectStatus: model.StatusPending, expectEvent: model.EventHeld, expectTTL: time.Hour, warning: true},
		{description: "conditional without declarations fails closed", call: &gate.Call{Operation: "broken", Actor: "agent"},
			expectKind: gate.KindHeld, expectStatus: model.StatusPending, expectEvent: model.EventHeld, expectTTL: time.Hour, warning: true},
	}
	for _, testCase := range testCases {
		t.Run(testCase.description, func(t *testing.T) {
			ctx := context.Background()
			store := memory.New()
			decision, err := newGate(t, store).Intercept(ctx, testCase.call)
			require.NoError(t, err)
			assert.Equal(t, testCase.expectKind, decision.Kind)
			assert.Equal(t, testCase.expectKind != gate.KindHeld, decision.Cleared())
			assert.Equal(t, testCase.warning, len(decision.Warnings) > 0)

			action, err := store.GetAction(ctx, decision.ActionID)
			require.NoError(t, err)
			assert.Equal(t, testCase.expectStatus, action.Status)
			assert.Equal(t, testCase.call.Actor, action.RequestedBy)
			assert.Equal(t, now.Add(testCase.expectTTL), action.ExpiresAt)

			events, err := store.ListEvents(ctx, dao.WithActionID(decision.ActionID))
			require.NoError(t, err)
			require.Len(t, events, 1)
			assert.Equal(t, testCase.expectEvent, events[0].Type)
			if testCase.warning {
				assert.Contains(t, events[0].Reason, "configuration warning")
			}
		})
	}
}

func TestService_InterceptInvalid(t *testing.T) {
	srv := newGate(t, memory.New())
	_, err := srv.Intercept(context.Background(), &gate.Call{Operation: "delete_contact"})
	assert.ErrorIs(t, err, model.ErrMissingActor)
	_, err = srv.Intercept(context.Background(), &gate.Call{Actor: "agent"})
	assert.Error(t, err)
}

func TestService_AutoApprove(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	five := 5
	addRule(t, store, &model.ApprovalRule{
		ID: "r-ops", OperationName: "send_message", RiskTier: model.RiskLow, Active: true, CreatedAt: now.Add(-time.Hour),
		Constraints: model.Constraints{"recipient": model.Exact("ops@x.com")}, MaxUses: &five,
	})
	srv := newGate(t, store)

	decision, err := srv.Intercept(ctx, &gate.Call{Operation: "send_message", Arguments: map[string]interface{}{"recipient": "ops@x.com", "body": "deploy done"}, Actor: "agent"})
	require.NoError(t, err)
	assert.Equal(t, gate.KindAutoApproved, decision.Kind)
	assert.Equal(t, "r-ops", decision.RuleID)

	rule, err := store.GetRule(ctx, "r-ops")
	require.NoError(t, err)
	assert.Equal(t, 1, rule.UseCount)
	action, err := store.GetAction(ctx, decision.ActionID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusApproved, action.Status)
	assert.Equal(t, "r-ops", action.MatchedRuleID)
	events, err := store.ListEvents(ctx, dao.WithActionID(decision.ActionID))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, model.EventAutoApproved, events[0].Type)
	assert.Equal(t, "r-ops", events[0].RuleID)

	decision, err = srv.Intercept(ctx, &gate.Call{Operation: "send_message", Arguments: map[string]interface{}{"recipient": "ceo@x.com"}, Actor: "agent"})
	require.NoError(t, err)
	assert.Equal(t, gate.KindHeld, decision.Kind)
}

// staleRules serves a rule listing captured earlier, as another process might.
type staleRules struct {
	dao.Store
	rules []*model.ApprovalRule
}

func (s *staleRules) ListRules(context.Context, ...*dao.Parameter) ([]*model.ApprovalRule, error) {
	return s.rules, nil
}

func TestService_AutoApproveFallsBack(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	one := 1
	addRule(t, store, &model.ApprovalRule{
		ID: "r-narrow", OperationName: "send_message", RiskTier: model.RiskLow, Active: true, CreatedAt: now.Add(-time.Hour),
		Constraints: model.Constraints{"recipient": model.Exact("ops@x.com"), "channel": model.Exact("email")}, MaxUses: &one,
	})
	addRule(t, store, &model.ApprovalRule{
		ID: "r-broad", OperationName: "send_message", RiskTier: model.RiskLow, Active: true, CreatedAt: now.Add(-time.Hour),
		Constraints: model.Constraints{"recipient": model.Pattern("*@x.com")},
	})
	snapshot, err := store.ListRules(ctx)
	require.NoError(t, err)
	call := &gate.Call{Operation: "send_message", Arguments: map[string]interface{}{"recipient": "ops@x.com", "channel": "email"}, Actor: "agent"}

	first, err := newGate(t, store).Intercept(ctx, call)
	require.NoError(t, err)
	assert.Equal(t, "r-narrow", first.RuleID)

	second, err := newGate(t, &staleRules{Store: store, rules: snapshot}).Intercept(ctx, call)
	require.NoError(t, err)
	assert.Equal(t, gate.KindAutoApproved, second.Kind)
	assert.Equal(t, "r-broad", second.RuleID)

	narrow, err := store.GetRule(ctx, "r-narrow")
	require.NoError(t, err)
	assert.Equal(t, 1, narrow.UseCount)
}

func TestService_BoundedUseUnderConcurrency(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	three := 3
	addRule(t, store, &model.ApprovalRule{
		ID: "r1", OperationName: "send_message", RiskTier: model.RiskLow, Active: true, CreatedAt: now.Add(-time.Hour),
		Constraints: model.Constraints{"recipient": model.Exact("ops@x.com")}, MaxUses: &three,
	})
	srv := newGate(t, store)
	var wg sync.WaitGroup
	var mux sync.Mutex
	kinds := map[gate.Kind]int{}
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			decision, err := srv.Intercept(ctx, &gate.Call{Operation: "send_message", Arguments: map[string]interface{}{"recipient": "ops@x.com"}, Actor: "agent"})
			if !assert.NoError(t, err) {
				return
			}
			mux.Lock()
			kinds[decision.Kind]++
			mux.Unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 3, kinds[gate.KindAutoApproved])
	assert.Equal(t, 7, kinds[gate.KindHeld])
	rule, err := store.GetRule(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, 3, rule.UseCount)
}

func TestService_Redaction(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	sealer, err := seal.New(bytes.Repeat([]byte{3}, 32))
	require.NoError(t, err)
	srv := newGate(t, store, gate.WithSealer(sealer))

	decision, err := srv.Intercept(ctx, &gate.Call{
		Operation: "export",
		Arguments: map[string]interface{}{"scope": "all", "password": "s3cr3t", "apiSecret": "k-999", "note": "see https://bob:pw@host/x"},
		Actor:     "agent",
	})
	require.NoError(t, err)
	action, err := store.GetAction(ctx, decision.ActionID)
	require.NoError(t, err)
	events, err := store.ListEvents(ctx)
	require.NoError(t, err)
	persisted, err := json.Marshal(map[string]interface{}{"action": action, "events": events})
	require.NoError(t, err)
	for _, secret := range []string{"s3cr3t", "k-999", "bob:pw"} {
		assert.NotContains(t, string(persisted), secret)
	}
	require.NotEmpty(t, action.SealedArguments)
	raw, err := sealer.Open(action.SealedArguments)
	require.NoError(t, err)
	assert.Equal(t, "s3cr3t", raw["password"])
}

func TestService_RedactionFailure(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	sealer, err := seal.New(bytes.Repeat([]byte{3}, 32))
	require.NoError(t, err)
	srv := newGate(t, store, gate.WithSealer(sealer))

	var testCases = []struct {
		description string
		args        map[string]interface{}
	}{
		{description: "not a number", args: map[string]interface{}{"id": math.NaN()}},
		{description: "function value", args: map[string]interface{}{"id": 1, "callback": func() {}}},
	}
	for _, testCase := range testCases {
		decision, err := srv.Intercept(ctx, &gate.Call{Operation: "delete_contact", Arguments: testCase.args, Actor: "agent"})
		require.NoError(t, err, testCase.description)
		assert.Equal(t, gate.KindHeld, decision.Kind, testCase.description)
		action, err := store.GetAction(ctx, decision.ActionID)
		require.NoError(t, err, testCase.description)
		assert.Equal(t, redact.ErrorDocument(), action.Arguments, testCase.description)
		assert.Empty(t, action.SealedArguments, testCase.description)
		events, err := store.ListEvents(ctx, dao.WithActionID(decision.ActionID))
		require.NoError(t, err, testCase.description)
		require.Len(t, events, 1, testCase.description)
		assert.Equal(t, model.EventHeld, events[0].Type, testCase.description)
	}
}
