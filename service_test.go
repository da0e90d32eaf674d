package gatekeep_test

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/viant/gatekeep"
	"github.com/viant/gatekeep/model"
	"github.com/viant/gatekeep/policy"
	"github.com/viant/gatekeep/service/dao"
	"github.com/viant/gatekeep/service/gate"
	"github.com/viant/gatekeep/service/rule"
)

type testClock struct {
	mux sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mux.Lock()
	defer c.mux.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mux.Lock()
	defer c.mux.Unlock()
	c.now = c.now.Add(d)
}

// recorder counts calls of a registered operation and keeps the last arguments.
type recorder struct {
	mux   sync.Mutex
	calls int
	last  map[string]interface{}
	err   error
}

func (r *recorder) operation(_ context.Context, args map[string]interface{}) (interface{}, error) {
	r.mux.Lock()
	defer r.mux.Unlock()
	r.calls++
	r.last = args
	if r.err != nil {
		return nil, r.err
	}
	return map[string]interface{}{"ok": true}, nil
}

func (r *recorder) count() int {
	r.mux.Lock()
	defer r.mux.Unlock()
	return r.calls
}

func testConfig() *gatekeep.Config {
	config := gatekeep.DefaultConfig()
	config.Gate = policy.Config{
		DefaultTTL: time.Hour,
		Operations: map[string]*policy.Operation{
			"list_contacts":  {Mode: policy.ModeNone},
			"send_message":   {Mode: policy.ModeAlways, RiskTier: model.RiskLow},
			"delete_contact": {Mode: policy.ModeAlways, RiskTier: model.RiskHigh},
			"login":          {Mode: policy.ModeAlways},
		},
	}
	config.Seal.Key = "0101010101010101010101010101010101010101010101010101010101010101"
	return config
}

type fixture struct {
	service *gatekeep.Service
	clock   *testClock
	ops     map[string]*recorder
}

func newFixture(t *testing.T, config *gatekeep.Config) *fixture {
	t.Helper()
	ret := &fixture{clock: &testClock{now: time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)}, ops: map[string]*recorder{}}
	options := []gatekeep.Option{
		gatekeep.WithConfig(config),
		gatekeep.WithLogger(zaptest.NewLogger(t)),
		gatekeep.WithNow(ret.clock.Now),
	}
	for _, name := range []string{"list_contacts", "send_message", "delete_contact", "login"} {
		ret.ops[name] = &recorder{}
		options = append(options, gatekeep.WithOperation(name, ret.ops[name].operation))
	}
	srv, err := gatekeep.New(context.Background(), options...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Close() })
	ret.service = srv
	return ret
}

func (f *fixture) eventTypes(t *testing.T, actionID string) []model.EventType {
	t.Helper()
	events, err := f.service.Events(context.Background(), dao.WithActionID(actionID))
	require.NoError(t, err)
	var ret []model.EventType
	for _, evt := range events {
		ret = append(ret, evt.Type)
	}
	return ret
}

func intPtr(v int) *int { return &v }

func TestService_AutoApproval(t *testing.T) {
	var testCases = []struct {
		description string
		config      func(t *testing.T) *gatekeep.Config
	}{
		{description: "memory store", config: func(t *testing.T) *gatekeep.Config { return testConfig() }},
		{description: "sqlite store", config: func(t *testing.T) *gatekeep.Config {
			config := testConfig()
			config.Store.Driver = "sqlite"
			config.Store.DSN = filepath.Join(t.TempDir(), "gatekeep.db")
			return config
		}},
	}
	for _, testCase := range testCases {
		t.Run(testCase.description, func(t *testing.T) {
			ctx := context.Background()
			f := newFixture(t, testCase.config(t))
			created, err := f.service.CreateRule(ctx, &model.ApprovalRule{
				OperationName: "send_message",
				Constraints:   model.Constraints{"recipient": model.Exact("ops@x.com")},
				RiskTier:      model.RiskLow,
				MaxUses:       intPtr(5),
			}, "alice")
			require.NoError(t, err)

			outcome, err := f.service.Invoke(ctx, &gate.Call{
				Operation: "send_message",
				Arguments: map[string]interface{}{"recipient": "ops@x.com", "body": "deploy finished"},
				Actor:     "agent",
			})
			require.NoError(t, err)
			assert.Equal(t, gate.KindAutoApproved, outcome.Decision.Kind)
			assert.Equal(t, model.StatusExecuted, outcome.Action.Status)
			assert.Equal(t, created.ID, outcome.Action.MatchedRuleID)
			require.NotNil(t, outcome.Action.ExecutionResult)
			assert.True(t, outcome.Action.ExecutionResult.Success)
			assert.Equal(t, 1, f.ops["send_message"].count())

			stored, err := f.service.GetRule(ctx, created.ID)
			require.NoError(t, err)
			assert.Equal(t, 1, stored.UseCount)
			assert.Equal(t, []model.EventType{model.EventAutoApproved, model.EventExecuted}, f.eventTypes(t, outcome.Action.ID))

			report, err := f.service.VerifyAudit(ctx)
			require.NoError(t, err)
			assert.True(t, report.Valid)
		})
	}
}

func TestService_HoldThenApprove(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, testConfig())
	outcome, err := f.service.Invoke(ctx, &gate.Call{Operation: "delete_contact", Arguments: map[string]interface{}{"id": 42}, Actor: "agent"})
	require.NoError(t, err)
	assert.Equal(t, gate.KindHeld, outcome.Decision.Kind)
	assert.Equal(t, model.StatusPending, outcome.Action.Status)
	assert.Equal(t, 0, f.ops["delete_contact"].count())

	pending, err := f.service.ListActions(ctx, dao.WithStatus(model.StatusPending))
	require.NoError(t, err)
	require.Len(t, pending, 1)

	_, err = f.service.Approve(ctx, outcome.Action.ID, "alice", "verified with owner")
	require.NoError(t, err)
	executed, err := f.service.Execute(ctx, outcome.Action.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, model.StatusExecuted, executed.Status)
	assert.Equal(t, 1, f.ops["delete_contact"].count())
	assert.True(t, model.Equal(42, f.ops["delete_contact"].last["id"]))

	_, err = f.service.Execute(ctx, outcome.Action.ID, "bob")
	assert.Error(t, err)
	assert.Equal(t, 1, f.ops["delete_contact"].count())
	_, err = f.service.Reject(ctx, outcome.Action.ID, "bob", "too late")
	assert.ErrorIs(t, err, model.ErrAlreadyDecided)

	assert.Equal(t, []model.EventType{model.EventHeld, model.EventApproved, model.EventExecuted}, f.eventTypes(t, outcome.Action.ID))
}

func TestService_PassThroughAndFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, testConfig())
	f.ops["list_contacts"].err = errors.New("backend unavailable")
	outcome, err := f.service.Invoke(ctx, &gate.Call{Operation: "list_contacts", Actor: "agent"})
	require.NoError(t, err, "execution failure is data")
	assert.Equal(t, gate.KindPassThrough, outcome.Decision.Kind)
	assert.Equal(t, model.StatusExecuted, outcome.Action.Status)
	require.NotNil(t, outcome.Action.ExecutionResult)
	assert.False(t, outcome.Action.ExecutionResult.Success)
	assert.Equal(t, "backend unavailable", outcome.Action.ExecutionResult.Error)

	snapshot, err := f.service.Metrics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, snapshot.PassedThrough)
	assert.Equal(t, 1.0, snapshot.ExecutionFailureRate)
}

func TestService_InvokeWithoutSealKey(t *testing.T) {
	ctx := context.Background()
	config := testConfig()
	config.Seal.Key = ""
	f := newFixture(t, config)
	_, err := f.service.CreateRule(ctx, &model.ApprovalRule{
		OperationName: "send_message",
		Constraints:   model.Constraints{"recipient": model.Exact("ops@x.com")},
		RiskTier:      model.RiskLow,
	}, "alice")
	require.NoError(t, err)

	var testCases = []struct {
		description string
		call        *gate.Call
		expectKind  gate.Kind
	}{
		{description: "pass-through", expectKind: gate.KindPassThrough,
			call: &gate.Call{Operation: "list_contacts", Arguments: map[string]interface{}{"api_key": "abc", "limit": 5}, Actor: "agent"}},
		{description: "auto-approved", expectKind: gate.KindAutoApproved,
			call: &gate.Call{Operation: "send_message", Arguments: map[string]interface{}{"recipient": "ops@x.com", "api_key": "abc"}, Actor: "agent"}},
	}
	for _, testCase := range testCases {
		outcome, err := f.service.Invoke(ctx, testCase.call)
		require.NoError(t, err, testCase.description)
		assert.Equal(t, testCase.expectKind, outcome.Decision.Kind, testCase.description)
		assert.Equal(t, model.StatusExecuted, outcome.Action.Status, testCase.description)
		require.NotNil(t, outcome.Action.ExecutionResult, testCase.description)
		assert.True(t, outcome.Action.ExecutionResult.Success, testCase.description)
		recorder := f.ops[testCase.call.Operation]
		assert.Equal(t, 1, recorder.count(), testCase.description)
		assert.Equal(t, "abc", recorder.last["api_key"], testCase.description)
		assert.NotEqual(t, "abc", outcome.Action.Arguments["api_key"], testCase.description)
	}
}

func TestService_ExpiryRace(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, testConfig())
	for i := 0; i < 20; i++ {
		decision, err := f.service.Intercept(ctx, &gate.Call{Operation: "delete_contact", Arguments: map[string]interface{}{"id": i}, Actor: "agent"})
		require.NoError(t, err)
		f.clock.Advance(2 * time.Hour)

		var wg sync.WaitGroup
		var approveErr error
		var swept int
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, approveErr = f.service.Approve(ctx, decision.ActionID, "alice", "")
		}()
		go func() {
			defer wg.Done()
			swept, _ = f.service.Sweep(ctx)
		}()
		wg.Wait()

		action, err := f.service.GetAction(ctx, decision.ActionID)
		require.NoError(t, err)
		if approveErr == nil {
			assert.Equal(t, 0, swept)
			assert.Equal(t, model.StatusApproved, action.Status)
		} else {
			assert.ErrorIs(t, approveErr, model.ErrAlreadyDecided)
			assert.Equal(t, 1, swept)
			assert.Equal(t, model.StatusExpired, action.Status)
		}
		assert.Len(t, f.eventTypes(t, decision.ActionID), 2)
	}
}

func TestService_RiskTierRejection(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, testConfig())
	_, err := f.service.CreateRule(ctx, &model.ApprovalRule{
		OperationName: "delete_contact",
		RiskTier:      model.RiskCritical,
		Constraints:   model.Constraints{"id": model.Any()},
	}, "alice")
	var validation *model.ValidationError
	require.ErrorAs(t, err, &validation)

	rules, err := f.service.ListRules(ctx)
	require.NoError(t, err)
	assert.Empty(t, rules)
	outcome, err := f.service.Invoke(ctx, &gate.Call{Operation: "delete_contact", Arguments: map[string]interface{}{"id": 7}, Actor: "agent"})
	require.NoError(t, err)
	assert.Equal(t, gate.KindHeld, outcome.Decision.Kind)

	rejected, err := f.service.Events(ctx, dao.WithEventType(model.EventRuleRejected))
	require.NoError(t, err)
	assert.Len(t, rejected, 1)
}

func TestService_Redaction(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, testConfig())
	outcome, err := f.service.Invoke(ctx, &gate.Call{
		Operation: "login",
		Arguments: map[string]interface{}{"user": "bob", "password": "s3cr3t"},
		Actor:     "agent",
	})
	require.NoError(t, err)
	require.Equal(t, gate.KindHeld, outcome.Decision.Kind)
	_, err = f.service.Approve(ctx, outcome.Action.ID, "alice", "token=abcdef123456 checked")
	require.NoError(t, err)
	executed, err := f.service.Execute(ctx, outcome.Action.ID, "alice")
	require.NoError(t, err)
	assert.True(t, executed.ExecutionResult.Success)
	assert.Equal(t, "s3cr3t", f.ops["login"].last["password"], "operation receives the sealed raw value")

	actions, err := f.service.ListActions(ctx)
	require.NoError(t, err)
	events, err := f.service.Events(ctx)
	require.NoError(t, err)
	persisted, err := json.Marshal(map[string]interface{}{"actions": actions, "events": events})
	require.NoError(t, err)
	assert.NotContains(t, string(persisted), "s3cr3t")
	assert.NotContains(t, string(persisted), "abcdef123456")
}

func TestService_DeriveAndSuggest(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, testConfig())
	for _, recipient := range []string{"ops@x.com", "ops@x.com"} {
		outcome, err := f.service.Invoke(ctx, &gate.Call{Operation: "send_message", Arguments: map[string]interface{}{"recipient": recipient}, Actor: "agent"})
		require.NoError(t, err)
		_, err = f.service.Approve(ctx, outcome.Action.ID, "alice", "")
		require.NoError(t, err)
	}
	suggestions, err := f.service.SuggestConstraints(ctx, &model.ApprovalRule{OperationName: "send_message", RiskTier: model.RiskLow})
	require.NoError(t, err)
	require.NotEmpty(t, suggestions)
	assert.Equal(t, "recipient", suggestions[0].Argument)

	approved, err := f.service.ListActions(ctx, dao.WithStatus(model.StatusApproved))
	require.NoError(t, err)
	derived, err := f.service.DeriveRule(ctx, approved[0].ID, &rule.Derivation{RiskTier: model.RiskLow, MaxUses: intPtr(2)}, "alice")
	require.NoError(t, err)
	assert.Equal(t, approved[0].ID, derived.CreatedFrom)

	outcome, err := f.service.Invoke(ctx, &gate.Call{Operation: "send_message", Arguments: map[string]interface{}{"recipient": "ops@x.com"}, Actor: "agent"})
	require.NoError(t, err)
	assert.Equal(t, gate.KindAutoApproved, outcome.Decision.Kind)

	revoked, err := f.service.RevokeRule(ctx, derived.ID, "alice", "no longer needed")
	require.NoError(t, err)
	assert.False(t, revoked.Active)
	outcome, err = f.service.Invoke(ctx, &gate.Call{Operation: "send_message", Arguments: map[string]interface{}{"recipient": "ops@x.com"}, Actor: "agent"})
	require.NoError(t, err)
	assert.Equal(t, gate.KindHeld, outcome.Decision.Kind)
}

func TestService_EventHandler(t *testing.T) {
	ctx := context.Background()
	var received int32
	done := make(chan struct{}, 8)
	config := testConfig()
	srv, err := gatekeep.New(ctx,
		gatekeep.WithConfig(config),
		gatekeep.WithLogger(zaptest.NewLogger(t)),
		gatekeep.WithEventHandler(func(ctx context.Context, evt *model.ApprovalEvent) error {
			atomic.AddInt32(&received, 1)
			done <- struct{}{}
			return nil
		}))
	require.NoError(t, err)
	defer srv.Close()

	_, err = srv.Intercept(ctx, &gate.Call{Operation: "delete_contact", Arguments: map[string]interface{}{"id": 1}, Actor: "agent"})
	require.NoError(t, err)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("event was not delivered")
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&received))
}

func TestService_StartStop(t *testing.T) {
	config := testConfig()
	config.Sweeper.Interval = 10 * time.Millisecond
	f := newFixture(t, config)
	ctx := context.Background()
	decision, err := f.service.Intercept(ctx, &gate.Call{Operation: "delete_contact", Arguments: map[string]interface{}{"id": 9}, Actor: "agent"})
	require.NoError(t, err)
	f.clock.Advance(2 * time.Hour)

	errCh := make(chan error, 1)
	go func() { errCh <- f.service.Start(ctx) }()
	assert.Eventually(t, func() bool {
		action, err := f.service.GetAction(ctx, decision.ActionID)
		return err == nil && action.Status == model.StatusExpired
	}, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, f.service.Close())
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("start did not return after close")
	}
}
