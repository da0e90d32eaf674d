package executor

import (
	"context"
	"fmt"

	"github.com/viant/gatekeep/internal/seal"
	"github.com/viant/gatekeep/model"
	"github.com/viant/gatekeep/service/approval"
	"github.com/viant/gatekeep/service/redact"
	"github.com/viant/gatekeep/tracing"
	"go.uber.org/zap"
)

// Listener is invoked once an action reaches executed. It only ever sees the
// persisted, redacted action.
type Listener func(action *model.PendingAction)

// Option is used to customise the executor instance.
type Option func(*Service)

// WithListener sets the listener invoked after every execution. Passing nil
// disables the callback.
func WithListener(l Listener) Option {
	return func(s *Service) { s.listener = l }
}

// WithSealer sets the sealer used to recover raw arguments of actions whose
// stored arguments were redacted.
func WithSealer(sealer *seal.Sealer) Option {
	return func(s *Service) { s.sealer = sealer }
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Service executes approved actions.
type Service struct {
	registry    *Registry
	coordinator *approval.Service
	sealer      *seal.Sealer
	listener    Listener
	logger      *zap.Logger
}

// New creates an executor.
func New(registry *Registry, coordinator *approval.Service, opts ...Option) *Service {
	ret := &Service{registry: registry, coordinator: coordinator, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

// Execute claims the approved action on behalf of actor, runs its operation
// and records the outcome. The returned action is in executed status unless
// the claim or the final transition failed, in which case an error is
// returned. A failing operation is reported in the action's execution result.
func (s *Service) Execute(ctx context.Context, actionID, actor string) (*model.PendingAction, error) {
	return s.execute(ctx, actionID, actor, nil)
}

// ExecuteWith behaves like Execute but runs the operation with args, the
// arguments the caller still holds in memory, instead of the persisted copy.
// It serves calls cleared at interception time, whose stored arguments may
// already be redacted.
func (s *Service) ExecuteWith(ctx context.Context, actionID, actor string, args map[string]interface{}) (*model.PendingAction, error) {
	if args == nil {
		args = map[string]interface{}{}
	}
	return s.execute(ctx, actionID, actor, args)
}

func (s *Service) execute(ctx context.Context, actionID, actor string, args map[string]interface{}) (action *model.PendingAction, err error) {
	ctx, span := tracing.StartSpan(ctx, "gatekeep.execute", tracing.KindInternal)
	defer func() { tracing.EndSpan(span, err) }()
	span.WithAttributes(map[string]string{"action_id": actionID})

	claimed, err := s.coordinator.Claim(ctx, actionID, actor)
	if err != nil {
		return nil, err
	}
	span.WithAttributes(map[string]string{"operation": claimed.OperationName})
	result := s.run(ctx, claimed, args)
	if action, err = s.coordinator.Complete(ctx, actionID, actor, result); err != nil {
		s.logger.Error("execution outcome not recorded",
			zap.String("action_id", actionID),
			zap.String("operation", claimed.OperationName),
			zap.Error(err))
		return nil, err
	}
	s.logger.Info("action executed",
		zap.String("action_id", action.ID),
		zap.String("operation", action.OperationName),
		zap.Bool("success", action.ExecutionResult != nil && action.ExecutionResult.Success),
		zap.String("actor", actor))
	if s.listener != nil {
		s.listener(action)
	}
	return action, nil
}

func (s *Service) run(ctx context.Context, action *model.PendingAction, args map[string]interface{}) *model.ExecutionResult {
	operation := s.registry.Lookup(action.OperationName)
	if operation == nil {
		return failure(fmt.Errorf("%w: %s", ErrOperationNotFound, action.OperationName))
	}
	if args == nil {
		var err error
		if args, err = s.arguments(action); err != nil {
			return failure(err)
		}
	}
	payload, err := invoke(ctx, operation, args)
	if err != nil {
		return &model.ExecutionResult{Success: false, Error: err.Error(), Payload: payload}
	}
	return &model.ExecutionResult{Success: true, Payload: payload}
}

// arguments returns the raw arguments of action. Stored arguments that still
// carry redaction markers are never passed to an operation.
func (s *Service) arguments(action *model.PendingAction) (map[string]interface{}, error) {
	if len(action.SealedArguments) > 0 && s.sealer != nil {
		args, err := s.sealer.Open(action.SealedArguments)
		if err != nil {
			s.logger.Warn("sealed arguments unreadable", zap.String("action_id", action.ID), zap.Error(err))
			return nil, ErrArgumentsUnavailable
		}
		return args, nil
	}
	if redact.Contains(action.Arguments) {
		return nil, ErrArgumentsUnavailable
	}
	args := make(map[string]interface{}, len(action.Arguments))
	for k, v := range action.Arguments {
		args[k] = v
	}
	return args, nil
}

func invoke(ctx context.Context, operation Operation, args map[string]interface{}) (payload interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			payload = nil
			err = fmt.Errorf("operation panicked: %v", r)
		}
	}()
	return operation(ctx, args)
}

func failure(err error) *model.ExecutionResult {
	return &model.ExecutionResult{Success: false, Error: err.Error()}
}
