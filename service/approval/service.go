package approval

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/viant/gatekeep/internal/clock"
	"github.com/viant/gatekeep/model"
	"github.com/viant/gatekeep/service/dao"
	"github.com/viant/gatekeep/service/event"
	"github.com/viant/gatekeep/service/redact"
	"go.uber.org/zap"
)

// SystemActor is the identity used for transitions the engine makes itself.
const SystemActor = "system"

// Service coordinates status transitions of pending actions.
type Service struct {
	store     dao.Store
	redactor  *redact.Redactor
	publisher *event.Publisher
	logger    *zap.Logger
	now       func() time.Time
}

// New creates a coordinator over store.
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

// Decide moves a pending action to approved, rejected or expired. A lost race
// returns a *model.DecisionError matching model.ErrAlreadyDecided. SystemActor
// is reserved for engine transitions and refused here.
func (s *Service) Decide(ctx context.Context, id string, to model.Status, actor, reason string) (*model.PendingAction, error) {
	if actor == "" {
		return nil, model.ErrMissingActor
	}
	if actor == SystemActor {
		return nil, model.ErrReservedActor
	}
	return s.decide(ctx, id, to, actor, reason)
}

// ExpireOverdue expires a pending action on behalf of the engine.
func (s *Service) ExpireOverdue(ctx context.Context, id, reason string) (*model.PendingAction, error) {
	return s.decide(ctx, id, model.StatusExpired, SystemActor, reason)
}

func (s *Service) decide(ctx context.Context, id string, to model.Status, actor, reason string) (*model.PendingAction, error) {
	if !to.IsDecision() {
		return nil, fmt.Errorf("%w: cannot decide %s", model.ErrInvalidStatus, to)
	}
	return s.transition(ctx, &dao.Transition{
		ActionID: id,
		From:     model.StatusPending,
		To:       to,
		Actor:    actor,
		Reason:   s.redactor.String(reason),
	})
}

// Approve approves a pending action.
func (s *Service) Approve(ctx context.Context, id, actor, reason string) (*model.PendingAction, error) {
	return s.Decide(ctx, id, model.StatusApproved, actor, reason)
}

// Reject rejects a pending action.
func (s *Service) Reject(ctx context.Context, id, actor, reason string) (*model.PendingAction, error) {
	return s.Decide(ctx, id, model.StatusRejected, actor, reason)
}

// Expire force-expires a pending action regardless of its TTL.
func (s *Service) Expire(ctx context.Context, id, actor, reason string) (*model.PendingAction, error) {
	return s.Decide(ctx, id, model.StatusExpired, actor, reason)
}

// Claim reserves an approved action for one executor.
func (s *Service) Claim(ctx context.Context, id, claimant string) (*model.PendingAction, error) {
	if claimant == "" {
		return nil, model.ErrMissingActor
	}
	return s.store.Claim(ctx, id, claimant, s.now())
}

// Complete records the execution outcome of an approved action. The result
// is redacted before it is persisted.
func (s *Service) Complete(ctx context.Context, id, actor string, result *model.ExecutionResult) (*model.PendingAction, error) {
	if actor == "" {
		return nil, model.ErrMissingActor
	}
	if result == nil {
		result = &model.ExecutionResult{}
	}
	redacted := &model.ExecutionResult{
		Success: result.Success,
		Error:   s.redactor.String(result.Error),
	}
	if result.Payload != nil {
		redacted.Payload = s.redactor.Value(result.Payload)
	}
	reason := "execution succeeded"
	if !redacted.Success {
		reason = "execution failed"
		if redacted.Error != "" {
			reason += ": " + redacted.Error
		}
	}
	return s.transition(ctx, &dao.Transition{
		ActionID: id,
		From:     model.StatusApproved,
		To:       model.StatusExecuted,
		Actor:    actor,
		Reason:   reason,
		Result:   redacted,
	})
}

// Abandon closes an approved action whose executor claimed it but never
// reported an outcome, e.g. after a crash. A failed execution is recorded so
// the action can never run afterwards. Unclaimed actions are refused with
// model.ErrNotClaimed; they can simply be executed.
func (s *Service) Abandon(ctx context.Context, id, actor, reason string) (*model.PendingAction, error) {
	if actor == "" {
		return nil, model.ErrMissingActor
	}
	action, err := s.store.GetAction(ctx, id)
	if err != nil {
		return nil, err
	}
	if action.Status == model.StatusApproved && action.ClaimedAt == nil {
		return nil, &model.DecisionError{ActionID: id, Status: action.Status, Err: model.ErrNotClaimed}
	}
	message := "execution abandoned"
	if reason != "" {
		message += ": " + reason
	}
	s.logger.Warn("claim abandoned",
		zap.String("action_id", id),
		zap.String("claimed_by", action.ClaimedBy),
		zap.String("actor", actor))
	return s.Complete(ctx, id, actor, &model.ExecutionResult{Success: false, Error: message})
}

// ListPending returns actions still awaiting a decision, oldest first.
func (s *Service) ListPending(ctx context.Context, parameters ...*dao.Parameter) ([]*model.PendingAction, error) {
	parameters = append(parameters, dao.WithStatus(model.StatusPending))
	return s.store.ListActions(ctx, parameters...)
}

func (s *Service) transition(ctx context.Context, transition *dao.Transition) (*model.PendingAction, error) {
	transition.At = s.now()
	transition.Event = &model.ApprovalEvent{
		ActionID:   transition.ActionID,
		Type:       model.DecisionEventType(transition.To),
		Actor:      transition.Actor,
		Reason:     transition.Reason,
		OccurredAt: transition.At,
	}
	action, err := s.store.Transition(ctx, transition)
	if err != nil {
		if errors.Is(err, model.ErrAlreadyDecided) {
			s.logger.Debug("transition lost",
				zap.String("action_id", transition.ActionID),
				zap.String("status", string(transition.To)),
				zap.String("actor", transition.Actor),
				zap.Error(err))
		}
		return nil, err
	}
	s.logger.Info("action transitioned",
		zap.String("action_id", action.ID),
		zap.String("operation", action.OperationName),
		zap.String("status", string(action.Status)),
		zap.String("actor", transition.Actor))
	s.publisher.Publish(ctx, transition.Event)
	return action, nil
}
