package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/viant/gatekeep"
	"github.com/viant/gatekeep/internal/clock"
	"github.com/viant/gatekeep/model"
	"github.com/viant/gatekeep/service/dao"
	"github.com/viant/gatekeep/service/rule"
)

// NewRuleCommand creates the standing rule commands.
func NewRuleCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rule",
		Short: "Manage standing approval rules",
	}
	cmd.AddCommand(newRuleCreateCommand(opts))
	cmd.AddCommand(newRuleListCommand(opts))
	cmd.AddCommand(newRuleShowCommand(opts))
	cmd.AddCommand(newRuleRevokeCommand(opts))
	cmd.AddCommand(newRuleAmendCommand(opts))
	cmd.AddCommand(newRuleDeriveCommand(opts))
	cmd.AddCommand(newRuleSuggestCommand(opts))
	return cmd
}

// ruleOptions holds the flags describing a rule candidate.
type ruleOptions struct {
	Operation   string
	Constraints []string
	Tier        string
	MaxUses     int
	Expires     string
	Description string
}

func (o *ruleOptions) bind(cmd *cobra.Command, withOperation bool) {
	if withOperation {
		cmd.Flags().StringVar(&o.Operation, "operation", "", "operation name (required)")
		_ = cmd.MarkFlagRequired("operation")
	}
	cmd.Flags().StringArrayVar(&o.Constraints, "constraint", nil, "argument constraint name=exact:<value>|pattern:<glob>|any (repeatable)")
	cmd.Flags().StringVar(&o.Tier, "tier", string(model.RiskLow), "risk tier (low|medium|high|critical)")
	cmd.Flags().IntVar(&o.MaxUses, "max-uses", 0, "maximum number of auto-approvals (0 = unbounded)")
	cmd.Flags().StringVar(&o.Expires, "expires", "", "expiry as RFC3339 or duration from now, e.g. 72h")
	cmd.Flags().StringVar(&o.Description, "description", "", "rule description")
}

func (o *ruleOptions) bounds(now time.Time) (tier model.RiskTier, maxUses *int, expiresAt *time.Time, err error) {
	if tier, err = model.ParseRiskTier(o.Tier); err != nil {
		return "", nil, nil, err
	}
	if o.MaxUses > 0 {
		uses := o.MaxUses
		maxUses = &uses
	}
	if o.Expires != "" {
		expiry, err := parseTime(o.Expires, now)
		if err != nil {
			return "", nil, nil, err
		}
		expiresAt = &expiry
	}
	return tier, maxUses, expiresAt, nil
}

func (o *ruleOptions) candidate(now time.Time) (*model.ApprovalRule, error) {
	constraints, err := parseConstraints(o.Constraints)
	if err != nil {
		return nil, err
	}
	tier, maxUses, expiresAt, err := o.bounds(now)
	if err != nil {
		return nil, err
	}
	return &model.ApprovalRule{
		OperationName: o.Operation,
		Constraints:   constraints,
		RiskTier:      tier,
		MaxUses:       maxUses,
		ExpiresAt:     expiresAt,
		Description:   o.Description,
	}, nil
}

func newRuleCreateCommand(opts *RootOptions) *cobra.Command {
	candidate := &ruleOptions{}
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a standing rule",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := opts.Actor()
			if err != nil {
				return err
			}
			item, err := candidate.candidate(clock.Now())
			if err != nil {
				return err
			}
			return withService(cmd, opts, func(ctx context.Context, srv *gatekeep.Service) (interface{}, error) {
				return srv.CreateRule(ctx, item, actor)
			})
		},
	}
	candidate.bind(cmd, true)
	return cmd
}

func newRuleListCommand(opts *RootOptions) *cobra.Command {
	var operation string
	var active bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List rules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var parameters []*dao.Parameter
			if operation != "" {
				parameters = append(parameters, dao.WithOperation(operation))
			}
			if active {
				parameters = append(parameters, dao.WithActive(true))
			}
			return withService(cmd, opts, func(ctx context.Context, srv *gatekeep.Service) (interface{}, error) {
				return srv.ListRules(ctx, parameters...)
			})
		},
	}
	cmd.Flags().StringVar(&operation, "operation", "", "operation name")
	cmd.Flags().BoolVar(&active, "active", false, "only active rules")
	return cmd
}

func newRuleShowCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show RULE_ID",
		Short: "Show a rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, opts, func(ctx context.Context, srv *gatekeep.Service) (interface{}, error) {
				return srv.GetRule(ctx, args[0])
			})
		},
	}
}

func newRuleRevokeCommand(opts *RootOptions) *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "revoke RULE_ID",
		Short: "Revoke a rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := opts.Actor()
			if err != nil {
				return err
			}
			return withService(cmd, opts, func(ctx context.Context, srv *gatekeep.Service) (interface{}, error) {
				return srv.RevokeRule(ctx, args[0], actor, reason)
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "revocation reason")
	return cmd
}

func newRuleAmendCommand(opts *RootOptions) *cobra.Command {
	candidate := &ruleOptions{}
	var reason string
	cmd := &cobra.Command{
		Use:   "amend RULE_ID",
		Short: "Replace a rule with an amended successor",
		Long:  "Revokes RULE_ID and creates its successor in one step. The successor is validated like a new rule and starts with zero uses.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := opts.Actor()
			if err != nil {
				return err
			}
			item, err := candidate.candidate(clock.Now())
			if err != nil {
				return err
			}
			return withService(cmd, opts, func(ctx context.Context, srv *gatekeep.Service) (interface{}, error) {
				return srv.AmendRule(ctx, args[0], item, actor, reason)
			})
		},
	}
	candidate.bind(cmd, false)
	cmd.Flags().StringVar(&reason, "reason", "", "amendment reason")
	return cmd
}

func newRuleDeriveCommand(opts *RootOptions) *cobra.Command {
	candidate := &ruleOptions{}
	cmd := &cobra.Command{
		Use:   "derive ACTION_ID",
		Short: "Create a rule from an approved or executed action",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := opts.Actor()
			if err != nil {
				return err
			}
			tier, maxUses, expiresAt, err := candidate.bounds(clock.Now())
			if err != nil {
				return err
			}
			derivation := &rule.Derivation{RiskTier: tier, MaxUses: maxUses, ExpiresAt: expiresAt, Description: candidate.Description}
			return withService(cmd, opts, func(ctx context.Context, srv *gatekeep.Service) (interface{}, error) {
				return srv.DeriveRule(ctx, args[0], derivation, actor)
			})
		},
	}
	cmd.Flags().StringVar(&candidate.Tier, "tier", string(model.RiskLow), "risk tier (low|medium|high|critical)")
	cmd.Flags().IntVar(&candidate.MaxUses, "max-uses", 0, "maximum number of auto-approvals (0 = unbounded)")
	cmd.Flags().StringVar(&candidate.Expires, "expires", "", "expiry as RFC3339 or duration from now, e.g. 72h")
	cmd.Flags().StringVar(&candidate.Description, "description", "", "rule description")
	return cmd
}

func newRuleSuggestCommand(opts *RootOptions) *cobra.Command {
	candidate := &ruleOptions{}
	cmd := &cobra.Command{
		Use:   "suggest",
		Short: "Suggest narrower constraints for a rule candidate",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			item, err := candidate.candidate(clock.Now())
			if err != nil {
				return err
			}
			return withService(cmd, opts, func(ctx context.Context, srv *gatekeep.Service) (interface{}, error) {
				return srv.SuggestConstraints(ctx, item)
			})
		},
	}
	candidate.bind(cmd, true)
	return cmd
}
