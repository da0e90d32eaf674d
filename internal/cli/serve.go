package cli

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/viant/gatekeep"
	"github.com/viant/gatekeep/logging"
	"github.com/viant/gatekeep/model"
	"github.com/viant/gatekeep/tracing"
)

// NewSweepCommand creates the one-shot expiry sweep command.
func NewSweepCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Expire every overdue pending action once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, opts, func(ctx context.Context, srv *gatekeep.Service) (interface{}, error) {
				count, err := srv.Sweep(ctx)
				if err != nil {
					return nil, err
				}
				return fmt.Sprintf("expired %d pending action(s)", count), nil
			})
		},
	}
}

// NewServeCommand creates the long running command: it sweeps expired
// actions on the configured interval and logs committed audit events.
func NewServeCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the expiry sweeper and log audit events until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			parent := cmd.Context()
			if parent == nil {
				parent = context.Background()
			}
			ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, opts)
		},
	}
}

func serve(ctx context.Context, opts *RootOptions) error {
	config, err := opts.Config(ctx)
	if err != nil {
		return err
	}
	logger, err := logging.New(config.Log)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	srv, err := gatekeep.New(ctx,
		gatekeep.WithConfig(config),
		gatekeep.WithLogger(logger),
		gatekeep.WithEventHandler(eventLogger(logger.Named("audit"))))
	if err != nil {
		return err
	}
	defer func() { _ = tracing.Shutdown(context.Background()) }()

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return srv.Start(gctx)
	})
	group.Go(func() error {
		<-gctx.Done()
		return srv.Close()
	})
	logger.Info("gatekeep serving",
		zap.String("driver", config.Store.Driver),
		zap.Duration("sweep_interval", config.Sweeper.Interval),
		zap.Strings("operations", srv.Policy().Operations()))
	if err = group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("gatekeep stopped")
	return nil
}

func eventLogger(logger *zap.Logger) func(ctx context.Context, evt *model.ApprovalEvent) error {
	return func(ctx context.Context, evt *model.ApprovalEvent) error {
		logger.Info("audit event",
			zap.Int64("seq", evt.Seq),
			zap.String("event_type", string(evt.Type)),
			zap.String("action_id", evt.ActionID),
			zap.String("rule_id", evt.RuleID),
			zap.String("actor", evt.Actor),
			zap.String("reason", evt.Reason))
		return nil
	}
}
