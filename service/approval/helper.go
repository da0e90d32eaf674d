package approval

import (
	"context"
	"errors"
	"time"

	"github.com/viant/gatekeep/model"
	"go.uber.org/zap"
)

// DecisionFunc decides what to do with a pending action.
// Return model.StatusApproved, model.StatusRejected or model.StatusExpired
// with a reason, or an empty status to leave the action pending.
type DecisionFunc func(action *model.PendingAction) (model.Status, string)

// AutoDecider starts a goroutine that polls pending actions and applies fn to
// every one of them on behalf of actor. It returns stop; call it (or cancel
// ctx) to exit. Lost races are ignored.
func AutoDecider(ctx context.Context, svc *Service, actor string, fn DecisionFunc, interval time.Duration) (stop func()) {
	if interval <= 0 {
		interval = 20 * time.Millisecond
	}
	done := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case <-ticker.C:
				actions, err := svc.ListPending(ctx)
				if err != nil {
					svc.logger.Warn("auto decider list failed", zap.Error(err))
					continue
				}
				for _, action := range actions {
					status, reason := fn(action)
					if status == "" {
						continue
					}
					if _, err = svc.Decide(ctx, action.ID, status, actor, reason); err != nil && !errors.Is(err, model.ErrAlreadyDecided) {
						svc.logger.Warn("auto decision failed", zap.String("action_id", action.ID), zap.Error(err))
					}
				}
			}
		}
	}()
	return func() {
		close(done)
		<-exited
	}
}

// AutoApprove approves every pending action as actor.
func AutoApprove(ctx context.Context, svc *Service, actor string, interval time.Duration) func() {
	return AutoDecider(ctx, svc, actor,
		func(*model.PendingAction) (model.Status, string) { return model.StatusApproved, "" }, interval)
}

// AutoReject rejects every pending action as actor with the given reason.
func AutoReject(ctx context.Context, svc *Service, actor, reason string, interval time.Duration) func() {
	return AutoDecider(ctx, svc, actor,
		func(*model.PendingAction) (model.Status, string) { return model.StatusRejected, reason }, interval)
}
