package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/viant/gatekeep"
	"github.com/viant/gatekeep/internal/clock"
	"github.com/viant/gatekeep/model"
	"github.com/viant/gatekeep/service/dao"
)

// NewAuditCommand creates the audit log commands.
func NewAuditCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect and verify the audit event log",
	}
	cmd.AddCommand(newAuditListCommand(opts))
	cmd.AddCommand(newAuditVerifyCommand(opts))
	return cmd
}

func newAuditListCommand(opts *RootOptions) *cobra.Command {
	var actionID, ruleID string
	var types []string
	var after int64
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List audit events in sequence order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var parameters []*dao.Parameter
			if actionID != "" {
				parameters = append(parameters, dao.WithActionID(actionID))
			}
			if ruleID != "" {
				parameters = append(parameters, dao.WithRuleID(ruleID))
			}
			if len(types) > 0 {
				var eventTypes []model.EventType
				for _, eventType := range types {
					eventTypes = append(eventTypes, model.EventType(eventType))
				}
				parameters = append(parameters, dao.WithEventType(eventTypes...))
			}
			if after > 0 {
				parameters = append(parameters, dao.WithAfterSeq(after))
			}
			if limit > 0 {
				parameters = append(parameters, dao.WithLimit(limit))
			}
			return withService(cmd, opts, func(ctx context.Context, srv *gatekeep.Service) (interface{}, error) {
				return srv.Events(ctx, parameters...)
			})
		},
	}
	cmd.Flags().StringVar(&actionID, "action", "", "action id")
	cmd.Flags().StringVar(&ruleID, "rule", "", "rule id")
	cmd.Flags().StringSliceVar(&types, "type", nil, "event types")
	cmd.Flags().Int64Var(&after, "after", 0, "only events with a greater sequence")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of events")
	return cmd
}

func newAuditVerifyCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Recompute the event hash chain",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, opts, func(ctx context.Context, srv *gatekeep.Service) (interface{}, error) {
				return srv.VerifyAudit(ctx)
			})
		},
	}
}

// NewMetricsCommand creates the metrics command.
func NewMetricsCommand(opts *RootOptions) *cobra.Command {
	filter := &filterOptions{}
	cmd := &cobra.Command{
		Use:   "metrics",
		Short: "Show pending, auto-approval, latency and failure metrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			parameters, err := filter.parameters(clock.Now())
			if err != nil {
				return err
			}
			return withService(cmd, opts, func(ctx context.Context, srv *gatekeep.Service) (interface{}, error) {
				return srv.Metrics(ctx, parameters...)
			})
		},
	}
	cmd.Flags().StringVar(&filter.Operation, "operation", "", "operation name")
	cmd.Flags().StringVar(&filter.From, "from", "", "requested at or after (RFC3339 or duration such as -24h)")
	cmd.Flags().StringVar(&filter.To, "to", "", "requested before (RFC3339 or duration)")
	return cmd
}
