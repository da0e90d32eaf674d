package rule

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/viant/gatekeep/internal/clock"
	"github.com/viant/gatekeep/internal/idgen"
	"github.com/viant/gatekeep/model"
	"github.com/viant/gatekeep/policy"
	"github.com/viant/gatekeep/service/dao"
	"github.com/viant/gatekeep/service/event"
	"github.com/viant/gatekeep/service/redact"
	"go.uber.org/zap"
)

// Service authors and revokes standing rules.
type Service struct {
	store     dao.Store
	policy    *policy.Policy
	redactor  *redact.Redactor
	publisher *event.Publisher
	logger    *zap.Logger
	now       func() time.Time
}

// New creates a rule service over store.
func New(store dao.Store, opts ...Option) *Service {
	ret := &Service{
		store:    store,
		redactor: redact.Default(),
		logger:   zap.NewNop(),
		now:      clock.Now,
	}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

// Create validates and persists a new active rule authored by actor. A
// rejected candidate is not persisted; a rule_rejected event records the
// attempt and the *model.ValidationError is returned.
func (s *Service) Create(ctx context.Context, candidate *model.ApprovalRule, actor string) (*model.ApprovalRule, error) {
	rule, err := s.prepare(candidate, actor)
	if err != nil {
		return nil, err
	}
	if err = s.validate(ctx, rule, actor); err != nil {
		return nil, err
	}
	write := &dao.RuleWrite{Rule: rule, Event: s.event(model.EventRuleCreated, rule.ID, actor, rule.Description)}
	if err = s.store.CreateRule(ctx, write); err != nil {
		return nil, err
	}
	s.logger.Info("rule created",
		zap.String("rule_id", rule.ID),
		zap.String("operation", rule.OperationName),
		zap.String("risk_tier", string(rule.RiskTier)),
		zap.String("actor", actor))
	s.publisher.Publish(ctx, write.Event)
	return rule, nil
}

// Revoke deactivates a rule. Revoking an inactive rule fails with model.ErrRuleInactive.
func (s *Service) Revoke(ctx context.Context, id, actor, reason string) (*model.ApprovalRule, error) {
	if actor == "" {
		return nil, model.ErrMissingActor
	}
	revocation := s.revocation(id, actor, reason)
	rule, err := s.store.RevokeRule(ctx, revocation)
	if err != nil {
		return nil, err
	}
	s.logger.Info("rule revoked", zap.String("rule_id", id), zap.String("actor", actor))
	s.publisher.Publish(ctx, revocation.Event)
	return rule, nil
}

// Amend replaces an active rule with candidate. The candidate is validated
// like a new rule; on success it is inserted and the old rule revoked in one
// transaction.
func (s *Service) Amend(ctx context.Context, id string, candidate *model.ApprovalRule, actor, reason string) (*model.ApprovalRule, error) {
	current, err := s.store.GetRule(ctx, id)
	if err != nil {
		return nil, err
	}
	if !current.Active {
		return nil, fmt.Errorf("rule %s: %w", id, model.ErrRuleInactive)
	}
	rule, err := s.prepare(candidate, actor)
	if err != nil {
		return nil, err
	}
	if rule.OperationName == "" {
		rule.OperationName = current.OperationName
	}
	if rule.OperationName != current.OperationName {
		return nil, &model.ValidationError{RuleID: rule.ID, Violations: []string{"amendment cannot change the operation"}}
	}
	rule.Supersedes = current.ID
	rule.CreatedFrom = current.CreatedFrom
	if err = s.validate(ctx, rule, actor); err != nil {
		return nil, err
	}
	if reason == "" {
		reason = "superseded by " + rule.ID
	}
	write := &dao.RuleWrite{
		Rule:      rule,
		Event:     s.event(model.EventRuleCreated, rule.ID, actor, "supersedes "+current.ID),
		Supersede: s.revocation(current.ID, actor, reason),
	}
	if err = s.store.CreateRule(ctx, write); err != nil {
		return nil, err
	}
	s.logger.Info("rule amended", zap.String("rule_id", rule.ID), zap.String("supersedes", current.ID), zap.String("actor", actor))
	s.publisher.Publish(ctx, write.Supersede.Event, write.Event)
	return rule, nil
}

// Get returns a rule by id.
func (s *Service) Get(ctx context.Context, id string) (*model.ApprovalRule, error) {
	return s.store.GetRule(ctx, id)
}

// List returns rules matching parameters.
func (s *Service) List(ctx context.Context, parameters ...*dao.Parameter) ([]*model.ApprovalRule, error) {
	return s.store.ListRules(ctx, parameters...)
}

func (s *Service) prepare(candidate *model.ApprovalRule, actor string) (*model.ApprovalRule, error) {
	if actor == "" {
		return nil, model.ErrMissingActor
	}
	if candidate == nil {
		return nil, dao.ErrNilEntity
	}
	rule := candidate.Clone()
	if rule.ID == "" {
		rule.ID = idgen.New()
	}
	rule.OperationName = strings.TrimSpace(rule.OperationName)
	rule.Description = s.redactor.String(rule.Description)
	rule.UseCount = 0
	rule.Active = true
	rule.CreatedAt = s.now()
	rule.CreatedBy = actor
	rule.RevokedAt = nil
	rule.RevokedBy = ""
	for name, constraint := range rule.Constraints {
		if constraint.Kind != model.ConstraintExact {
			continue
		}
		value, err := model.Canonical(constraint.Value)
		if err != nil {
			return nil, &model.ValidationError{RuleID: rule.ID, Violations: []string{fmt.Sprintf("constraint %s: %v", name, err)}}
		}
		rule.Constraints[name] = model.Exact(value)
	}
	return rule, nil
}

func (s *Service) validate(ctx context.Context, rule *model.ApprovalRule, actor string) error {
	err := Validate(rule, s.policy, rule.CreatedAt)
	if err == nil {
		return nil
	}
	var validation *model.ValidationError
	if !errors.As(err, &validation) {
		return err
	}
	rejected := s.event(model.EventRuleRejected, rule.ID, actor, strings.Join(validation.Violations, "; "))
	rejected.Payload = rule.Snapshot()
	if appendErr := s.store.AppendEvent(ctx, rejected); appendErr != nil {
		return fmt.Errorf("%w (audit: %v)", err, appendErr)
	}
	s.logger.Warn("rule rejected",
		zap.String("rule_id", rule.ID),
		zap.String("operation", rule.OperationName),
		zap.String("actor", actor),
		zap.Strings("violations", validation.Violations))
	s.publisher.Publish(ctx, rejected)
	return err
}

func (s *Service) revocation(id, actor, reason string) *dao.Revocation {
	at := s.now()
	ret := &dao.Revocation{RuleID: id, Actor: actor, At: at}
	ret.Event = s.event(model.EventRuleRevoked, id, actor, reason)
	ret.Event.OccurredAt = at
	return ret
}

func (s *Service) event(eventType model.EventType, ruleID, actor, reason string) *model.ApprovalEvent {
	return &model.ApprovalEvent{
		RuleID:     ruleID,
		Type:       eventType,
		Actor:      actor,
		Reason:     s.redactor.String(reason),
		OccurredAt: s.now(),
	}
}
