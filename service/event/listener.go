package event

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/viant/gatekeep/model"
	"go.uber.org/zap"
)

// Handler processes one event; an error asks the queue to redeliver it.
type Handler func(ctx context.Context, event *model.ApprovalEvent) error

// Listener drains a publisher queue into a handler on its own goroutine.
type Listener struct {
	publisher *Publisher
	handler   Handler
	logger    *zap.Logger
	cancel    context.CancelFunc
	done      chan struct{}
	once      sync.Once
}

// NewListener creates a stopped listener.
func NewListener(publisher *Publisher, handler Handler, logger *zap.Logger) *Listener {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Listener{publisher: publisher, handler: handler, logger: logger, done: make(chan struct{})}
}

// Start runs the consume loop until ctx is done or Stop is called.
func (l *Listener) Start(ctx context.Context) {
	l.once.Do(func() {
		ctx, l.cancel = context.WithCancel(ctx)
		go l.run(ctx)
	})
}

// Stop cancels the loop and waits for the in-flight handler to return.
func (l *Listener) Stop() {
	l.once.Do(func() { close(l.done) })
	if l.cancel == nil {
		return
	}
	l.cancel()
	<-l.done
}

func (l *Listener) run(ctx context.Context) {
	defer close(l.done)
	for {
		msg, err := l.publisher.Consume(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			l.logger.Warn("event consume failed", zap.Error(err))
			continue
		}
		if msg == nil {
			continue
		}
		evt := msg.T()
		if err = l.handle(ctx, evt); err != nil {
			l.logger.Warn("event handler failed",
				zap.Int64("seq", evt.Seq),
				zap.String("event_type", string(evt.Type)),
				zap.Error(err))
			err = msg.Nack(err)
		} else {
			err = msg.Ack()
		}
		if err != nil {
			l.logger.Warn("event settle failed", zap.Int64("seq", evt.Seq), zap.Error(err))
		}
	}
}

func (l *Listener) handle(ctx context.Context, evt *model.ApprovalEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	if l.handler == nil {
		return errors.New("no handler")
	}
	return l.handler(ctx, evt)
}
