// Package daotest holds the behaviour every dao.Store implementation must
// share. Store packages run it from their own tests.
package daotest

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/viant/gatekeep/model"
	"github.com/viant/gatekeep/service/dao"
)

// Factory returns a fresh, empty store.
type Factory func(t *testing.T) dao.Store

// Base is the reference time used by contract tests.
var Base = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

// Run executes the contract against stores built by factory.
func Run(t *testing.T, factory Factory) {
	t.Run("action lifecycle", func(t *testing.T) { testActionLifecycle(t, factory(t)) })
	t.Run("decision errors", func(t *testing.T) { testDecisionErrors(t, factory(t)) })
	t.Run("claim", func(t *testing.T) { testClaim(t, factory(t)) })
	t.Run("at most once decision", func(t *testing.T) { testAtMostOnceDecision(t, factory(t)) })
	t.Run("approve expire race", func(t *testing.T) { testApproveExpireRace(t, factory(t)) })
	t.Run("bounded use", func(t *testing.T) { testBoundedUse(t, factory(t)) })
	t.Run("consumption errors", func(t *testing.T) { testConsumptionErrors(t, factory(t)) })
	t.Run("rule lifecycle", func(t *testing.T) { testRuleLifecycle(t, factory(t)) })
	t.Run("rule scope", func(t *testing.T) { testRuleScope(t, factory(t)) })
	t.Run("listing", func(t *testing.T) { testListing(t, factory(t)) })
	t.Run("hash chain", func(t *testing.T) { testHashChain(t, factory(t)) })
}

// NewAction returns a pending action requested at Base+offset.
func NewAction(id string, offset time.Duration) *model.PendingAction {
	requested := Base.Add(offset)
	return &model.PendingAction{
		ID:            id,
		OperationName: "delete_contact",
		Arguments:     map[string]interface{}{"id": 42.0},
		Status:        model.StatusPending,
		RequestedBy:   "agent",
		RequestedAt:   requested,
		ExpiresAt:     requested.Add(time.Hour),
	}
}

// NewRule returns an active low tier rule for send_message.
func NewRule(id string, maxUses *int) *model.ApprovalRule {
	return &model.ApprovalRule{
		ID:            id,
		OperationName: "send_message",
		Constraints:   model.Constraints{"recipient": model.Exact("ops@x.com")},
		RiskTier:      model.RiskLow,
		MaxUses:       maxUses,
		Active:        true,
		CreatedAt:     Base,
		CreatedBy:     "alice",
	}
}

// NewEvent returns an unsealed event.
func NewEvent(eventType model.EventType, actionID, ruleID string, at time.Time) *model.ApprovalEvent {
	return &model.ApprovalEvent{ActionID: actionID, RuleID: ruleID, Type: eventType, Actor: "tester", OccurredAt: at}
}

func decide(ctx context.Context, store dao.Store, id string, from, to model.Status, at time.Time) (*model.PendingAction, error) {
	return store.Transition(ctx, &dao.Transition{
		ActionID: id, From: from, To: to, Actor: "bob", Reason: "ok", At: at,
		Event: NewEvent(model.DecisionEventType(to), id, "", at),
	})
}

func testActionLifecycle(t *testing.T, store dao.Store) {
	ctx := context.Background()
	action := NewAction("a1", 0)
	require.NoError(t, store.CreateAction(ctx, action, NewEvent(model.EventHeld, "a1", "", action.RequestedAt)))
	assert.Error(t, store.CreateAction(ctx, NewAction("a1", 0), NewEvent(model.EventHeld, "a1", "", Base)))

	approved, err := decide(ctx, store, "a1", model.StatusPending, model.StatusApproved, Base.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, model.StatusApproved, approved.Status)
	assert.Equal(t, "bob", approved.DecidedBy)
	require.NotNil(t, approved.DecidedAt)
	assert.True(t, approved.DecidedAt.Equal(Base.Add(time.Minute)))

	executed, err := store.Transition(ctx, &dao.Transition{
		ActionID: "a1", From: model.StatusApproved, To: model.StatusExecuted, Actor: "executor",
		At: Base.Add(2 * time.Minute), Result: &model.ExecutionResult{Success: true, Payload: "done"},
		Event: NewEvent(model.EventExecuted, "a1", "", Base.Add(2*time.Minute)),
	})
	require.NoError(t, err)
	assert.Equal(t, model.StatusExecuted, executed.Status)
	require.NotNil(t, executed.ExecutionResult)
	assert.True(t, executed.ExecutionResult.Success)
	assert.Equal(t, "bob", executed.DecidedBy, "decision fields survive execution")

	loaded, err := store.GetAction(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusExecuted, loaded.Status)
	assert.True(t, model.Equal(map[string]interface{}{"id": 42}, loaded.Arguments), "arguments round trip")

	events, err := store.ListEvents(ctx, dao.WithActionID("a1"))
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, []model.EventType{model.EventHeld, model.EventApproved, model.EventExecuted}, eventTypes(events))
	for i := 1; i < len(events); i++ {
		assert.False(t, events[i].OccurredAt.Before(events[i-1].OccurredAt))
		assert.Greater(t, events[i].Seq, events[i-1].Seq)
	}
	assert.Equal(t, "executed", events[2].Payload["status"])

	_, err = store.GetAction(ctx, "missing")
	assert.ErrorIs(t, err, dao.ErrNotFound)
}

func testDecisionErrors(t *testing.T, store dao.Store) {
	ctx := context.Background()
	require.NoError(t, store.CreateAction(ctx, NewAction("a1", 0), NewEvent(model.EventHeld, "a1", "", Base)))
	require.NoError(t, store.CreateAction(ctx, NewAction("a2", 0), NewEvent(model.EventHeld, "a2", "", Base)))

	_, err := decide(ctx, store, "a1", model.StatusPending, model.StatusExpired, Base.Add(2*time.Hour))
	require.NoError(t, err)

	testCases := []struct {
		description string
		id          string
		from, to    model.Status
		expect      []error
	}{
		{description: "approve expired", id: "a1", from: model.StatusPending, to: model.StatusApproved, expect: []error{model.ErrExpired, model.ErrAlreadyDecided}},
		{description: "missing", id: "nope", from: model.StatusPending, to: model.StatusApproved, expect: []error{model.ErrNotFound}},
		{description: "invalid transition", id: "a2", from: model.StatusExecuted, to: model.StatusApproved, expect: []error{model.ErrInvalidStatus}},
		{description: "execute pending", id: "a2", from: model.StatusApproved, to: model.StatusExecuted, expect: []error{model.ErrInvalidStatus}},
	}
	for _, testCase := range testCases {
		t.Run(testCase.description, func(t *testing.T) {
			_, err := decide(ctx, store, testCase.id, testCase.from, testCase.to, Base.Add(3*time.Hour))
			require.Error(t, err)
			for _, expect := range testCase.expect {
				assert.ErrorIs(t, err, expect)
			}
		})
	}

	loaded, err := store.GetAction(ctx, "a2")
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, loaded.Status)
	events, err := store.ListEvents(ctx, dao.WithActionID("a1"))
	require.NoError(t, err)
	assert.Len(t, events, 2, "failed decisions emit no event")
}

func testClaim(t *testing.T, store dao.Store) {
	ctx := context.Background()
	require.NoError(t, store.CreateAction(ctx, NewAction("a1", 0), NewEvent(model.EventHeld, "a1", "", Base)))

	_, err := store.Claim(ctx, "a1", "worker-1", Base)
	assert.ErrorIs(t, err, model.ErrInvalidStatus)
	_, err = store.Claim(ctx, "missing", "worker-1", Base)
	assert.ErrorIs(t, err, model.ErrNotFound)

	_, err = decide(ctx, store, "a1", model.StatusPending, model.StatusApproved, Base)
	require.NoError(t, err)

	var wins int32
	group := errgroup.Group{}
	for i := 0; i < 6; i++ {
		worker := fmt.Sprintf("worker-%d", i)
		group.Go(func() error {
			claimed, err := store.Claim(ctx, "a1", worker, Base.Add(time.Second))
			if err == nil {
				atomic.AddInt32(&wins, 1)
				if claimed.ClaimedBy != worker {
					return fmt.Errorf("unexpected claimant %s", claimed.ClaimedBy)
				}
				return nil
			}
			if errors.Is(err, model.ErrAlreadyClaimed) {
				return nil
			}
			return err
		})
	}
	require.NoError(t, group.Wait())
	assert.EqualValues(t, 1, wins)

	events, err := store.ListEvents(ctx, dao.WithActionID("a1"))
	require.NoError(t, err)
	assert.Len(t, events, 2, "claims are not transitions")
}

func testAtMostOnceDecision(t *testing.T, store dao.Store) {
	ctx := context.Background()
	require.NoError(t, store.CreateAction(ctx, NewAction("a1", 0), NewEvent(model.EventHeld, "a1", "", Base)))

	outcomes := []model.Status{model.StatusApproved, model.StatusRejected}
	var wins int32
	group := errgroup.Group{}
	for i := 0; i < 8; i++ {
		to := outcomes[i%2]
		group.Go(func() error {
			_, err := decide(ctx, store, "a1", model.StatusPending, to, Base.Add(time.Minute))
			if err == nil {
				atomic.AddInt32(&wins, 1)
				return nil
			}
			if errors.Is(err, model.ErrAlreadyDecided) {
				return nil
			}
			return err
		})
	}
	require.NoError(t, group.Wait())
	assert.EqualValues(t, 1, wins)

	loaded, err := store.GetAction(ctx, "a1")
	require.NoError(t, err)
	assert.Contains(t, outcomes, loaded.Status)
	events, err := store.ListEvents(ctx, dao.WithActionID("a1"))
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, model.DecisionEventType(loaded.Status), events[1].Type)
}

func testApproveExpireRace(t *testing.T, store dao.Store) {
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("race-%d", i)
		require.NoError(t, store.CreateAction(ctx, NewAction(id, 0), NewEvent(model.EventHeld, id, "", Base)))
		group := errgroup.Group{}
		var wins int32
		for _, to := range []model.Status{model.StatusApproved, model.StatusExpired} {
			group.Go(func() error {
				_, err := decide(ctx, store, id, model.StatusPending, to, Base.Add(time.Hour))
				if err == nil {
					atomic.AddInt32(&wins, 1)
					return nil
				}
				if errors.Is(err, model.ErrAlreadyDecided) {
					return nil
				}
				return err
			})
		}
		require.NoError(t, group.Wait())
		assert.EqualValues(t, 1, wins)
		loaded, err := store.GetAction(ctx, id)
		require.NoError(t, err)
		assert.Contains(t, []model.Status{model.StatusApproved, model.StatusExpired}, loaded.Status)
	}
}

func testBoundedUse(t *testing.T, store dao.Store) {
	ctx := context.Background()
	maxUses := 3
	rule := NewRule("r1", &maxUses)
	require.NoError(t, store.CreateRule(ctx, &dao.RuleWrite{Rule: rule, Event: NewEvent(model.EventRuleCreated, "", "r1", Base)}))

	const callers = 10
	var wins int32
	group := errgroup.Group{}
	for i := 0; i < callers; i++ {
		id := fmt.Sprintf("auto-%d", i)
		group.Go(func() error {
			action := NewAction(id, time.Second)
			action.OperationName = "send_message"
			action.Status = model.StatusApproved
			action.MatchedRuleID = "r1"
			_, err := store.AutoApprove(ctx, &dao.Consumption{
				RuleID: "r1", At: Base.Add(time.Second), Action: action,
				Event: NewEvent(model.EventAutoApproved, id, "r1", Base.Add(time.Second)),
			})
			if err == nil {
				atomic.AddInt32(&wins, 1)
				return nil
			}
			if errors.Is(err, model.ErrRuleExhausted) {
				return nil
			}
			return err
		})
	}
	require.NoError(t, group.Wait())
	assert.EqualValues(t, maxUses, wins)

	loaded, err := store.GetRule(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, maxUses, loaded.UseCount)

	approved, err := store.ListActions(ctx, dao.WithStatus(model.StatusApproved))
	require.NoError(t, err)
	assert.Len(t, approved, maxUses, "losing consumptions leave no action behind")
	events, err := store.ListEvents(ctx, dao.WithEventType(model.EventAutoApproved))
	require.NoError(t, err)
	assert.Len(t, events, maxUses)
}

func testConsumptionErrors(t *testing.T, store dao.Store) {
	ctx := context.Background()
	expired := NewRule("expired", nil)
	expiry := Base.Add(time.Minute)
	expired.ExpiresAt = &expiry
	require.NoError(t, store.CreateRule(ctx, &dao.RuleWrite{Rule: expired, Event: NewEvent(model.EventRuleCreated, "", "expired", Base)}))
	require.NoError(t, store.CreateRule(ctx, &dao.RuleWrite{Rule: NewRule("revoked", nil), Event: NewEvent(model.EventRuleCreated, "", "revoked", Base)}))
	_, err := store.RevokeRule(ctx, &dao.Revocation{RuleID: "revoked", Actor: "alice", At: Base, Event: NewEvent(model.EventRuleRevoked, "", "revoked", Base)})
	require.NoError(t, err)

	testCases := []struct {
		description string
		ruleID      string
		expect      error
	}{
		{description: "expired", ruleID: "expired", expect: model.ErrRuleExhausted},
		{description: "revoked", ruleID: "revoked", expect: model.ErrRuleInactive},
		{description: "missing", ruleID: "missing", expect: model.ErrNotFound},
	}
	for _, testCase := range testCases {
		t.Run(testCase.description, func(t *testing.T) {
			action := NewAction("x-"+testCase.ruleID, 0)
			action.Status = model.StatusApproved
			_, err := store.AutoApprove(ctx, &dao.Consumption{
				RuleID: testCase.ruleID, At: Base.Add(time.Hour), Action: action,
				Event: NewEvent(model.EventAutoApproved, action.ID, testCase.ruleID, Base.Add(time.Hour)),
			})
			assert.ErrorIs(t, err, testCase.expect)
			_, err = store.GetAction(ctx, action.ID)
			assert.ErrorIs(t, err, dao.ErrNotFound)
		})
	}
}

func testRuleLifecycle(t *testing.T, store dao.Store) {
	ctx := context.Background()
	require.NoError(t, store.CreateRule(ctx, &dao.RuleWrite{Rule: NewRule("r1", nil), Event: NewEvent(model.EventRuleCreated, "", "r1", Base)}))

	amended := NewRule("r2", nil)
	amended.Supersedes = "r1"
	amended.CreatedAt = Base.Add(time.Minute)
	require.NoError(t, store.CreateRule(ctx, &dao.RuleWrite{
		Rule:      amended,
		Event:     NewEvent(model.EventRuleCreated, "", "r2", Base.Add(time.Minute)),
		Supersede: &dao.Revocation{RuleID: "r1", Actor: "alice", At: Base.Add(time.Minute), Event: NewEvent(model.EventRuleRevoked, "", "r1", Base.Add(time.Minute))},
	}))

	old, err := store.GetRule(ctx, "r1")
	require.NoError(t, err)
	assert.False(t, old.Active)
	assert.Equal(t, "alice", old.RevokedBy)

	again := NewRule("r3", nil)
	err = store.CreateRule(ctx, &dao.RuleWrite{
		Rule:      again,
		Event:     NewEvent(model.EventRuleCreated, "", "r3", Base.Add(2*time.Minute)),
		Supersede: &dao.Revocation{RuleID: "r1", Actor: "alice", At: Base.Add(2 * time.Minute), Event: NewEvent(model.EventRuleRevoked, "", "r1", Base.Add(2*time.Minute))},
	})
	assert.ErrorIs(t, err, model.ErrRuleInactive)
	_, err = store.GetRule(ctx, "r3")
	assert.ErrorIs(t, err, dao.ErrNotFound, "failed supersede inserts nothing")

	_, err = store.RevokeRule(ctx, &dao.Revocation{RuleID: "r1", Actor: "alice", At: Base, Event: NewEvent(model.EventRuleRevoked, "", "r1", Base)})
	assert.ErrorIs(t, err, model.ErrRuleInactive)
	_, err = store.RevokeRule(ctx, &dao.Revocation{RuleID: "nope", Actor: "alice", At: Base, Event: NewEvent(model.EventRuleRevoked, "", "nope", Base)})
	assert.ErrorIs(t, err, dao.ErrNotFound)

	active, err := store.ListRules(ctx, dao.WithActive(true))
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "r2", active[0].ID)
	assert.Equal(t, "r1", active[0].Supersedes)
	assert.Equal(t, model.Exact("ops@x.com"), active[0].Constraints["recipient"])

	events, err := store.ListEvents(ctx, dao.WithEventType(model.EventRuleCreated, model.EventRuleRevoked))
	require.NoError(t, err)
	assert.Equal(t, []model.EventType{model.EventRuleCreated, model.EventRuleRevoked, model.EventRuleCreated}, eventTypes(events))
}

func testRuleScope(t *testing.T, store dao.Store) {
	ctx := context.Background()
	three := 3
	var testCases = []struct {
		description string
		mutate      func(rule *model.ApprovalRule)
		hasError    bool
	}{
		{description: "unbounded critical", mutate: func(rule *model.ApprovalRule) { rule.RiskTier = model.RiskCritical }, hasError: true},
		{description: "high without narrowing", hasError: true, mutate: func(rule *model.ApprovalRule) {
			rule.RiskTier = model.RiskHigh
			rule.MaxUses = &three
			rule.Constraints = model.Constraints{"recipient": model.Pattern("**"), "body": model.Any()}
		}},
		{description: "bounded narrow high", mutate: func(rule *model.ApprovalRule) {
			rule.RiskTier = model.RiskHigh
			rule.MaxUses = &three
		}},
		{description: "unbounded low", mutate: func(rule *model.ApprovalRule) {}},
	}
	for i, testCase := range testCases {
		t.Run(testCase.description, func(t *testing.T) {
			rule := NewRule(fmt.Sprintf("r%d", i), nil)
			testCase.mutate(rule)
			err := store.CreateRule(ctx, &dao.RuleWrite{Rule: rule, Event: NewEvent(model.EventRuleCreated, "", rule.ID, Base)})
			_, getErr := store.GetRule(ctx, rule.ID)
			if testCase.hasError {
				assert.ErrorIs(t, err, model.ErrValidation)
				assert.ErrorIs(t, getErr, model.ErrNotFound)
				return
			}
			require.NoError(t, err)
			assert.NoError(t, getErr)
		})
	}
	events, err := store.ListEvents(ctx)
	require.NoError(t, err)
	assert.Len(t, events, 2, "rejected writes leave no event")
}

func testListing(t *testing.T, store dao.Store) {
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("a%d", i)
		action := NewAction(id, time.Duration(i)*time.Minute)
		if i%2 == 1 {
			action.OperationName = "send_message"
		}
		require.NoError(t, store.CreateAction(ctx, action, NewEvent(model.EventHeld, id, "", action.RequestedAt)))
	}
	_, err := decide(ctx, store, "a2", model.StatusPending, model.StatusRejected, Base.Add(time.Hour))
	require.NoError(t, err)

	testCases := []struct {
		description string
		parameters  []*dao.Parameter
		expect      []string
	}{
		{description: "all", expect: []string{"a0", "a1", "a2", "a3", "a4"}},
		{description: "pending", parameters: []*dao.Parameter{dao.WithStatus(model.StatusPending)}, expect: []string{"a0", "a1", "a3", "a4"}},
		{description: "overdue", parameters: []*dao.Parameter{dao.WithStatus(model.StatusPending), dao.WithExpiresBefore(Base.Add(time.Hour + 2*time.Minute))}, expect: []string{"a0", "a1"}},
		{description: "operation", parameters: []*dao.Parameter{dao.WithOperation("send_message")}, expect: []string{"a1", "a3"}},
		{description: "range", parameters: []*dao.Parameter{dao.WithFrom(Base.Add(time.Minute)), dao.WithTo(Base.Add(3 * time.Minute))}, expect: []string{"a1", "a2"}},
		{description: "limit", parameters: []*dao.Parameter{dao.WithLimit(2)}, expect: []string{"a0", "a1"}},
	}
	for _, testCase := range testCases {
		t.Run(testCase.description, func(t *testing.T) {
			actions, err := store.ListActions(ctx, testCase.parameters...)
			require.NoError(t, err)
			var ids []string
			for _, action := range actions {
				ids = append(ids, action.ID)
			}
			assert.Equal(t, testCase.expect, ids)
		})
	}

	events, err := store.ListEvents(ctx, dao.WithAfterSeq(4))
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.EqualValues(t, 5, events[0].Seq)
}

func testHashChain(t *testing.T, store dao.Store) {
	ctx := context.Background()
	require.NoError(t, store.CreateAction(ctx, NewAction("a1", 0), NewEvent(model.EventHeld, "a1", "", Base)))
	require.NoError(t, store.AppendEvent(ctx, &model.ApprovalEvent{
		Type: model.EventRuleRejected, Actor: "alice", Reason: "unbounded critical rule",
		Payload: map[string]interface{}{"violations": []string{"critical rules require bounds"}}, OccurredAt: Base,
	}))
	_, err := decide(ctx, store, "a1", model.StatusPending, model.StatusApproved, Base.Add(time.Minute))
	require.NoError(t, err)

	events, err := store.ListEvents(ctx)
	require.NoError(t, err)
	require.Len(t, events, 3)
	prev := ""
	for i, event := range events {
		assert.EqualValues(t, i+1, event.Seq)
		assert.NotEmpty(t, event.ID)
		require.NoError(t, event.Verify(prev))
		prev = event.Hash
	}
	tampered := *events[1]
	tampered.Reason = "fine"
	assert.Error(t, tampered.Verify(events[0].Hash))
}

func eventTypes(events []*model.ApprovalEvent) []model.EventType {
	var ret []model.EventType
	for _, event := range events {
		ret = append(ret, event.Type)
	}
	return ret
}
