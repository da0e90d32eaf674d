package event

import (
	"context"

	"github.com/viant/gatekeep/model"
	"github.com/viant/gatekeep/service/messaging"
	"go.uber.org/zap"
)

// Publisher pushes committed events onto a queue.
type Publisher struct {
	queue  messaging.Queue[model.ApprovalEvent]
	logger *zap.Logger
}

// NewPublisher creates a publisher; a nil logger disables logging.
func NewPublisher(queue messaging.Queue[model.ApprovalEvent], logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{queue: queue, logger: logger}
}

// Publish enqueues events in order. The events are already committed, so a
// failed enqueue is logged and skipped.
func (p *Publisher) Publish(ctx context.Context, events ...*model.ApprovalEvent) {
	if p == nil {
		return
	}
	for _, evt := range events {
		if evt == nil {
			continue
		}
		if err := p.queue.Publish(ctx, evt); err != nil {
			p.logger.Warn("event not published",
				zap.Int64("seq", evt.Seq),
				zap.String("event_type", string(evt.Type)),
				zap.String("action_id", evt.ActionID),
				zap.String("rule_id", evt.RuleID),
				zap.Error(err))
		}
	}
}

// Consume returns the next queued message.
func (p *Publisher) Consume(ctx context.Context) (messaging.Message[model.ApprovalEvent], error) {
	return p.queue.Consume(ctx)
}
