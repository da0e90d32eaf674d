package gatekeep

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/viant/gatekeep/internal/clock"
	"github.com/viant/gatekeep/internal/seal"
	"github.com/viant/gatekeep/logging"
	"github.com/viant/gatekeep/model"
	"github.com/viant/gatekeep/policy"
	"github.com/viant/gatekeep/service/approval"
	"github.com/viant/gatekeep/service/audit"
	"github.com/viant/gatekeep/service/dao"
	"github.com/viant/gatekeep/service/dao/memory"
	"github.com/viant/gatekeep/service/dao/sqlstore"
	"github.com/viant/gatekeep/service/event"
	"github.com/viant/gatekeep/service/executor"
	"github.com/viant/gatekeep/service/gate"
	"github.com/viant/gatekeep/service/metrics"
	"github.com/viant/gatekeep/service/redact"
	"github.com/viant/gatekeep/service/rule"
	"github.com/viant/gatekeep/service/sweeper"
	"github.com/viant/gatekeep/tracing"
	"go.uber.org/zap"
)

// Service wires the gate, the decision coordinator, the rule engine, the
// executor, the audit log and the expiry sweeper over one store.
type Service struct {
	config            *Config
	store             dao.Store
	ownsStore         bool
	policy            *policy.Policy
	registry          *executor.Registry
	logger            *zap.Logger
	now               func() time.Time
	executionListener executor.Listener
	eventOptions      []event.Option
	eventHandler      event.Handler

	events      *event.Service
	gate        *gate.Service
	coordinator *approval.Service
	rules       *rule.Service
	auditor     *audit.Service
	executor    *executor.Service
	sweeper     *sweeper.Service

	done      chan struct{}
	closeOnce sync.Once
}

// Outcome is the result of Invoke.
type Outcome struct {
	Decision *gate.Decision `json:"decision"`
	// Action is the executed action, or the pending one when held.
	Action *model.PendingAction `json:"action"`
}

// New creates a service; ctx bounds store connection and the event listener.
func New(ctx context.Context, options ...Option) (*Service, error) {
	ret := &Service{
		config:   DefaultConfig(),
		registry: executor.NewRegistry(),
		now:      clock.Now,
		done:     make(chan struct{}),
	}
	for _, option := range options {
		option(ret)
	}
	if err := ret.init(ctx); err != nil {
		ret.Close()
		return nil, err
	}
	return ret, nil
}

func (s *Service) init(ctx context.Context) (err error) {
	if err = s.config.Validate(); err != nil {
		return err
	}
	if s.logger == nil {
		if s.logger, err = logging.New(s.config.Log); err != nil {
			return err
		}
	}
	if err = tracing.Init(&s.config.Tracing); err != nil {
		return fmt.Errorf("failed to init tracing: %w", err)
	}
	if s.store == nil {
		if s.store, err = openStore(ctx, &s.config.Store); err != nil {
			return err
		}
		s.ownsStore = true
	}
	if s.policy, err = policy.New(&s.config.Gate); err != nil {
		return err
	}
	redactor, err := redact.New(s.config.Redaction)
	if err != nil {
		return err
	}
	var sealer *seal.Sealer
	if s.config.Seal.Key != "" {
		key, err := seal.ParseKey(s.config.Seal.Key)
		if err != nil {
			return err
		}
		if sealer, err = seal.New(key); err != nil {
			return err
		}
	}
	eventOptions := append([]event.Option{event.WithLogger(s.logger.Named("event"))}, s.eventOptions...)
	if s.events, err = event.New(ctx, &s.config.Events, eventOptions...); err != nil {
		return err
	}
	if s.eventHandler != nil {
		s.events.SetListener(ctx, s.eventHandler)
	}
	publisher := s.events.Publisher()

	s.coordinator = approval.New(s.store,
		approval.WithRedactor(redactor),
		approval.WithPublisher(publisher),
		approval.WithLogger(s.logger.Named("approval")),
		approval.WithNow(s.now))
	s.gate = gate.New(s.store, s.policy,
		gate.WithRedactor(redactor),
		gate.WithSealer(sealer),
		gate.WithPublisher(publisher),
		gate.WithLogger(s.logger.Named("gate")),
		gate.WithNow(s.now))
	s.rules = rule.New(s.store,
		rule.WithPolicy(s.policy),
		rule.WithRedactor(redactor),
		rule.WithPublisher(publisher),
		rule.WithLogger(s.logger.Named("rule")),
		rule.WithNow(s.now))
	s.auditor = audit.New(s.store,
		audit.WithRedactor(redactor),
		audit.WithPublisher(publisher),
		audit.WithLogger(s.logger.Named("audit")))
	s.executor = executor.New(s.registry, s.coordinator,
		executor.WithListener(s.executionListener),
		executor.WithSealer(sealer),
		executor.WithLogger(s.logger.Named("executor")))
	s.sweeper = sweeper.New(s.store, s.coordinator,
		sweeper.Config{Interval: s.config.Sweeper.Interval},
		sweeper.WithLogger(s.logger.Named("sweeper")),
		sweeper.WithNow(s.now))
	return nil
}

func openStore(ctx context.Context, cfg *sqlstore.Config) (dao.Store, error) {
	switch strings.ToLower(cfg.Driver) {
	case "", DriverMemory:
		return memory.New(), nil
	}
	return sqlstore.Open(ctx, cfg)
}

// Invoke intercepts call and, when it is cleared, runs the registered
// operation. A held call returns its pending action without running.
func (s *Service) Invoke(ctx context.Context, call *gate.Call) (*Outcome, error) {
	decision, err := s.gate.Intercept(ctx, call)
	if err != nil {
		return nil, err
	}
	ret := &Outcome{Decision: decision}
	if !decision.Cleared() {
		ret.Action, err = s.store.GetAction(ctx, decision.ActionID)
		return ret, err
	}
	ret.Action, err = s.executor.ExecuteWith(ctx, decision.ActionID, call.Actor, call.Arguments)
	return ret, err
}

// Intercept records call and returns the gate decision without running it.
func (s *Service) Intercept(ctx context.Context, call *gate.Call) (*gate.Decision, error) {
	return s.gate.Intercept(ctx, call)
}

// Execute runs an approved action at most once.
func (s *Service) Execute(ctx context.Context, actionID, actor string) (*model.PendingAction, error) {
	return s.executor.Execute(ctx, actionID, actor)
}

// ListActions returns actions matching parameters in request order.
func (s *Service) ListActions(ctx context.Context, parameters ...*dao.Parameter) ([]*model.PendingAction, error) {
	return s.store.ListActions(ctx, parameters...)
}

// GetAction returns an action by id.
func (s *Service) GetAction(ctx context.Context, id string) (*model.PendingAction, error) {
	return s.store.GetAction(ctx, id)
}

// Approve approves a pending action.
func (s *Service) Approve(ctx context.Context, id, actor, reason string) (*model.PendingAction, error) {
	return s.coordinator.Approve(ctx, id, actor, reason)
}

// Reject rejects a pending action.
func (s *Service) Reject(ctx context.Context, id, actor, reason string) (*model.PendingAction, error) {
	return s.coordinator.Reject(ctx, id, actor, reason)
}

// Decide moves a pending action to approved, rejected or expired.
func (s *Service) Decide(ctx context.Context, id string, to model.Status, actor, reason string) (*model.PendingAction, error) {
	return s.coordinator.Decide(ctx, id, to, actor, reason)
}

// Expire force-expires a pending action.
func (s *Service) Expire(ctx context.Context, id, actor, reason string) (*model.PendingAction, error) {
	if reason == "" {
		reason = "expired by operator"
	}
	return s.coordinator.Expire(ctx, id, actor, reason)
}

// Abandon records a failed execution for an approved action whose claim was
// never completed, so a crashed executor cannot leave it approved forever.
func (s *Service) Abandon(ctx context.Context, id, actor, reason string) (*model.PendingAction, error) {
	return s.coordinator.Abandon(ctx, id, actor, reason)
}

// Sweep expires every overdue pending action now.
func (s *Service) Sweep(ctx context.Context) (int, error) {
	return s.sweeper.Sweep(ctx, s.now())
}

// CreateRule validates and stores a standing rule.
func (s *Service) CreateRule(ctx context.Context, candidate *model.ApprovalRule, actor string) (*model.ApprovalRule, error) {
	return s.rules.Create(ctx, candidate, actor)
}

// ListRules returns rules matching parameters.
func (s *Service) ListRules(ctx context.Context, parameters ...*dao.Parameter) ([]*model.ApprovalRule, error) {
	return s.rules.List(ctx, parameters...)
}

// GetRule returns a rule by id.
func (s *Service) GetRule(ctx context.Context, id string) (*model.ApprovalRule, error) {
	return s.rules.Get(ctx, id)
}

// RevokeRule deactivates a rule.
func (s *Service) RevokeRule(ctx context.Context, id, actor, reason string) (*model.ApprovalRule, error) {
	return s.rules.Revoke(ctx, id, actor, reason)
}

// AmendRule replaces a rule with a validated successor.
func (s *Service) AmendRule(ctx context.Context, id string, candidate *model.ApprovalRule, actor, reason string) (*model.ApprovalRule, error) {
	return s.rules.Amend(ctx, id, candidate, actor, reason)
}

// DeriveRule creates a rule from an approved or executed action.
func (s *Service) DeriveRule(ctx context.Context, actionID string, derivation *rule.Derivation, actor string) (*model.ApprovalRule, error) {
	return s.rules.Derive(ctx, actionID, derivation, actor)
}

// SuggestConstraints proposes narrowing for candidate based on history.
func (s *Service) SuggestConstraints(ctx context.Context, candidate *model.ApprovalRule) ([]*rule.Suggestion, error) {
	return s.rules.Suggest(ctx, candidate)
}

// Metrics computes metrics over actions matching parameters.
func (s *Service) Metrics(ctx context.Context, parameters ...*dao.Parameter) (*metrics.Snapshot, error) {
	actions, err := s.store.ListActions(ctx, parameters...)
	if err != nil {
		return nil, err
	}
	return metrics.Compute(actions), nil
}

// Events returns audit events matching parameters in sequence order.
func (s *Service) Events(ctx context.Context, parameters ...*dao.Parameter) ([]*model.ApprovalEvent, error) {
	return s.auditor.List(ctx, parameters...)
}

// RecordEvent appends an event not tied to a state change, e.g. an
// operator note.
func (s *Service) RecordEvent(ctx context.Context, evt *model.ApprovalEvent) error {
	return s.auditor.Record(ctx, evt)
}

// VerifyAudit recomputes the event hash chain.
func (s *Service) VerifyAudit(ctx context.Context) (*audit.Report, error) {
	return s.auditor.Verify(ctx)
}

// Policy returns the compiled gate configuration.
func (s *Service) Policy() *policy.Policy {
	return s.policy
}

// Start runs the expiry sweeper until ctx is done or Close is called.
func (s *Service) Start(ctx context.Context) error {
	if s.config.Sweeper.Disabled {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.done:
			return nil
		}
	}
	return s.sweeper.Start(ctx)
}

// Close stops background work and closes an owned store.
func (s *Service) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		if s.sweeper != nil {
			s.sweeper.Stop()
		}
		if s.events != nil {
			s.events.Close()
		}
		if s.ownsStore && s.store != nil {
			err = s.store.Close()
		}
		if s.logger != nil {
			_ = s.logger.Sync()
		}
	})
	return err
}
