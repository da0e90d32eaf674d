// Package gate is the entry point of the engine. It decides, for every call
// of a designated operation, whether it passes through, is auto-approved by a
// standing rule or is held for a human decision. Every call leaves one
// pending action record and one audit event behind.
package gate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/viant/gatekeep/internal/clock"
	"github.com/viant/gatekeep/internal/idgen"
	"github.com/viant/gatekeep/internal/seal"
	"github.com/viant/gatekeep/model"
	"github.com/viant/gatekeep/policy"
	"github.com/viant/gatekeep/service/approval"
	"github.com/viant/gatekeep/service/dao"
	"github.com/viant/gatekeep/service/event"
	"github.com/viant/gatekeep/service/matcher"
	"github.com/viant/gatekeep/service/redact"
	"github.com/viant/gatekeep/tracing"
	"go.uber.org/zap"
)

// Service intercepts calls.
type Service struct {
	store     dao.Store
	policy    *policy.Policy
	redactor  *redact.Redactor
	sealer    *seal.Sealer
	publisher *event.Publisher
	logger    *zap.Logger
	now       func() time.Time
}

// New creates a gate over store governed by pol.
func New(store dao.Store, pol *policy.Policy, opts ...Option) *Service {
	ret := &Service{
		store:    store,
		policy:   pol,
		redactor: redact.Default(),
		logger:   zap.NewNop(),
		now:      clock.Now,
	}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

// Intercept records the call and returns its decision. Only a held decision
// requires a later approval before the operation may run.
func (s *Service) Intercept(ctx context.Context, call *Call) (decision *Decision, err error) {
	ctx, span := tracing.StartSpan(ctx, "gatekeep.intercept", tracing.KindInternal)
	defer func() {
		if decision != nil {
			span.WithAttributes(map[string]string{"decision": string(decision.Kind), "action_id": decision.ActionID, "rule_id": decision.RuleID})
		}
		tracing.EndSpan(span, err)
	}()
	if call == nil || strings.TrimSpace(call.Operation) == "" {
		return nil, fmt.Errorf("operation is required")
	}
	if call.Actor == "" {
		return nil, model.ErrMissingActor
	}
	span.WithAttributes(map[string]string{"operation": call.Operation, "actor": call.Actor})

	gating := s.policy.Evaluate(call.Operation, call.Arguments)
	decision = &Decision{}
	if gating.Warning != nil {
		decision.Warnings = append(decision.Warnings, gating.Warning)
		s.logger.Warn("gate configuration failed closed",
			zap.String("operation", call.Operation),
			zap.String("mode", string(gating.Mode)),
			zap.Error(gating.Warning))
	}
	action, err := s.newAction(call)
	if err != nil {
		return nil, err
	}
	var evt *model.ApprovalEvent
	switch {
	case !gating.Gated:
		decision.Kind = KindPassThrough
		evt, err = s.passThrough(ctx, action, call)
	default:
		var rule *model.ApprovalRule
		rule, evt, err = s.autoApprove(ctx, action, call, gating)
		switch {
		case err != nil:
		case rule != nil:
			decision.Kind = KindAutoApproved
			decision.RuleID = rule.ID
		default:
			decision.Kind = KindHeld
			evt, err = s.hold(ctx, action, call, gating)
		}
	}
	if err != nil {
		return nil, err
	}
	decision.ActionID = action.ID
	s.logger.Info("call intercepted",
		zap.String("operation", call.Operation),
		zap.String("action_id", action.ID),
		zap.String("rule_id", decision.RuleID),
		zap.String("decision", string(decision.Kind)),
		zap.String("actor", call.Actor))
	s.publisher.Publish(ctx, evt)
	return decision, nil
}

func (s *Service) newAction(call *Call) (*model.PendingAction, error) {
	now := s.now()
	ret := &model.PendingAction{
		ID:            idgen.New(),
		OperationName: call.Operation,
		Arguments:     s.redactor.Document(call.Arguments, s.policy.Redacted(call.Operation)...),
		RequestedBy:   call.Actor,
		RequestedAt:   now,
		ExpiresAt:     now.Add(s.policy.TTL(call.Operation)),
	}
	if ret.Arguments == nil {
		ret.Arguments = map[string]interface{}{}
	}
	if s.sealer != nil && redact.Contains(ret.Arguments) {
		sealed, err := s.sealer.Seal(call.Arguments)
		if err != nil {
			// the action is still recorded; it fails closed at execution
			s.logger.Warn("arguments not sealed",
				zap.String("operation", call.Operation),
				zap.String("action_id", ret.ID),
				zap.Error(err))
		} else {
			ret.SealedArguments = sealed
		}
	}
	return ret, nil
}

func (s *Service) passThrough(ctx context.Context, action *model.PendingAction, call *Call) (*model.ApprovalEvent, error) {
	decided := action.RequestedAt
	action.Status = model.StatusApproved
	action.DecidedAt = &decided
	action.DecidedBy = approval.SystemActor
	action.Reason = "operation not gated"
	evt := s.event(action, model.EventPassedThrough, call.Actor, action.Reason)
	return evt, s.store.CreateAction(ctx, action, evt)
}

// autoApprove walks the ranked matching rules and consumes the first one
// still usable at commit time. A nil rule with nil error means no rule could
// be consumed.
func (s *Service) autoApprove(ctx context.Context, action *model.PendingAction, call *Call, gating *policy.Gating) (*model.ApprovalRule, *model.ApprovalEvent, error) {
	rules, err := s.store.ListRules(ctx, dao.WithOperation(call.Operation), dao.WithActive(true))
	if err != nil {
		return nil, nil, err
	}
	for _, candidate := range matcher.Rank(rules, call.Operation, call.Arguments, action.RequestedAt) {
		approved := action.Clone()
		decided := approved.RequestedAt
		approved.Status = model.StatusApproved
		approved.DecidedAt = &decided
		approved.DecidedBy = approval.SystemActor
		approved.MatchedRuleID = candidate.ID
		approved.Reason = "auto-approved by rule " + candidate.ID
		evt := s.event(approved, model.EventAutoApproved, call.Actor, withWarning(approved.Reason, gating))
		evt.RuleID = candidate.ID
		rule, err := s.store.AutoApprove(ctx, &dao.Consumption{RuleID: candidate.ID, At: decided, Action: approved, Event: evt})
		if err == nil {
			*action = *approved
			return rule, evt, nil
		}
		if errors.Is(err, model.ErrRuleExhausted) || errors.Is(err, model.ErrRuleInactive) || errors.Is(err, model.ErrNotFound) {
			s.logger.Debug("rule no longer usable", zap.String("rule_id", candidate.ID), zap.Error(err))
			continue
		}
		return nil, nil, err
	}
	return nil, nil, nil
}

func (s *Service) hold(ctx context.Context, action *model.PendingAction, call *Call, gating *policy.Gating) (*model.ApprovalEvent, error) {
	action.Status = model.StatusPending
	evt := s.event(action, model.EventHeld, call.Actor, withWarning("awaiting approval", gating))
	return evt, s.store.CreateAction(ctx, action, evt)
}

func (s *Service) event(action *model.PendingAction, eventType model.EventType, actor, reason string) *model.ApprovalEvent {
	return &model.ApprovalEvent{
		ActionID:   action.ID,
		Type:       eventType,
		Actor:      actor,
		Reason:     s.redactor.String(reason),
		OccurredAt: action.RequestedAt,
	}
}

func withWarning(reason string, gating *policy.Gating) string {
	if gating.Warning == nil {
		return reason
	}
	return reason + "; configuration warning: " + gating.Warning.Message
}
