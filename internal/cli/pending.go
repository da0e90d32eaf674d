package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/viant/gatekeep"
	"github.com/viant/gatekeep/internal/clock"
	"github.com/viant/gatekeep/model"
)

// NewPendingCommand creates the pending action commands.
func NewPendingCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pending",
		Short: "List, inspect and decide held actions",
	}
	cmd.AddCommand(newPendingListCommand(opts))
	cmd.AddCommand(newPendingShowCommand(opts))
	cmd.AddCommand(newDecisionCommand(opts, "approve", model.StatusApproved))
	cmd.AddCommand(newDecisionCommand(opts, "reject", model.StatusRejected))
	cmd.AddCommand(newDecisionCommand(opts, "expire", model.StatusExpired))
	cmd.AddCommand(newAbandonCommand(opts))
	return cmd
}

func newAbandonCommand(opts *RootOptions) *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "abandon ACTION_ID",
		Short: "Record a failed execution for a claimed action that never completed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := opts.Actor()
			if err != nil {
				return err
			}
			return withService(cmd, opts, func(ctx context.Context, srv *gatekeep.Service) (interface{}, error) {
				return srv.Abandon(ctx, args[0], actor, reason)
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "why the claim is abandoned")
	return cmd
}

func newPendingListCommand(opts *RootOptions) *cobra.Command {
	filter := &filterOptions{}
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List actions (pending by default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			parameters, err := filter.parameters(clock.Now())
			if err != nil {
				return err
			}
			return withService(cmd, opts, func(ctx context.Context, srv *gatekeep.Service) (interface{}, error) {
				return srv.ListActions(ctx, parameters...)
			})
		},
	}
	cmd.Flags().StringSliceVar(&filter.Statuses, "status", []string{string(model.StatusPending)}, "statuses to include")
	cmd.Flags().StringVar(&filter.Operation, "operation", "", "operation name")
	cmd.Flags().StringVar(&filter.From, "from", "", "requested at or after (RFC3339 or duration such as -24h)")
	cmd.Flags().StringVar(&filter.To, "to", "", "requested before (RFC3339 or duration)")
	cmd.Flags().IntVar(&filter.Limit, "limit", 0, "maximum number of actions")
	return cmd
}

func newPendingShowCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show ACTION_ID",
		Short: "Show an action",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, opts, func(ctx context.Context, srv *gatekeep.Service) (interface{}, error) {
				return srv.GetAction(ctx, args[0])
			})
		},
	}
}

func newDecisionCommand(opts *RootOptions, use string, status model.Status) *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   use + " ACTION_ID",
		Short: fmt.Sprintf("Move a pending action to %s", status),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := opts.Actor()
			if err != nil {
				return err
			}
			return withService(cmd, opts, func(ctx context.Context, srv *gatekeep.Service) (interface{}, error) {
				if status == model.StatusExpired {
					return srv.Expire(ctx, args[0], actor, reason)
				}
				return srv.Decide(ctx, args[0], status, actor, reason)
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "decision reason")
	return cmd
}

// withService opens the service, runs fn and prints its result.
func withService(cmd *cobra.Command, opts *RootOptions, fn func(ctx context.Context, srv *gatekeep.Service) (interface{}, error)) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	srv, err := opts.Open(ctx)
	if err != nil {
		return err
	}
	defer srv.Close()
	result, err := fn(ctx, srv)
	if err != nil {
		return err
	}
	printer := &Printer{Format: opts.Format, Writer: cmd.OutOrStdout()}
	return printer.Print(result)
}
