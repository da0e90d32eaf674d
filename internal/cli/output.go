package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/viant/gatekeep/model"
	"github.com/viant/gatekeep/service/audit"
	"github.com/viant/gatekeep/service/metrics"
	"github.com/viant/gatekeep/service/rule"
)

// Printer renders command results as JSON or aligned text.
type Printer struct {
	Format string
	Writer io.Writer
}

// Print writes data in the configured format.
func (p *Printer) Print(data interface{}) error {
	if p.Format == "json" {
		encoder := json.NewEncoder(p.Writer)
		encoder.SetIndent("", "  ")
		return encoder.Encode(data)
	}
	w := tabwriter.NewWriter(p.Writer, 0, 4, 2, ' ', 0)
	switch actual := data.(type) {
	case []*model.PendingAction:
		fmt.Fprintln(w, "ID\tOPERATION\tSTATUS\tREQUESTED BY\tREQUESTED AT\tEXPIRES AT")
		for _, action := range actual {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", action.ID, action.OperationName, action.Status,
				action.RequestedBy, formatTime(action.RequestedAt), formatTime(action.ExpiresAt))
		}
	case *model.PendingAction:
		printAction(w, actual)
	case []*model.ApprovalRule:
		fmt.Fprintln(w, "ID\tOPERATION\tTIER\tACTIVE\tUSES\tEXPIRES AT\tCONSTRAINTS")
		for _, item := range actual {
			fmt.Fprintf(w, "%s\t%s\t%s\t%v\t%s\t%s\t%s\n", item.ID, item.OperationName, item.RiskTier, item.Active,
				uses(item), formatTimePtr(item.ExpiresAt), constraints(item.Constraints))
		}
	case *model.ApprovalRule:
		printRule(w, actual)
	case []*model.ApprovalEvent:
		fmt.Fprintln(w, "SEQ\tTYPE\tACTION\tRULE\tACTOR\tOCCURRED AT\tREASON")
		for _, evt := range actual {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n", evt.Seq, evt.Type, evt.ActionID, evt.RuleID, evt.Actor,
				formatTime(evt.OccurredAt), evt.Reason)
		}
	case []*rule.Suggestion:
		fmt.Fprintln(w, "ARGUMENT\tSUGGESTION\tREASON")
		for _, suggestion := range actual {
			fmt.Fprintf(w, "%s\t%s\t%s\n", suggestion.Argument, describe(suggestion), suggestion.Reason)
		}
	case *audit.Report:
		fmt.Fprintf(w, "valid:\t%v\nchecked:\t%d\nlast seq:\t%d\nlast hash:\t%s\n", actual.Valid, actual.Checked, actual.LastSeq, actual.LastHash)
		if !actual.Valid {
			fmt.Fprintf(w, "broken at:\t%d\nproblem:\t%s\n", actual.BrokenAt, actual.Problem)
		}
	case *metrics.Snapshot:
		printMetrics(w, actual)
	default:
		fmt.Fprintln(w, data)
	}
	return w.Flush()
}

func printAction(w io.Writer, action *model.PendingAction) {
	fmt.Fprintf(w, "id:\t%s\noperation:\t%s\nstatus:\t%s\n", action.ID, action.OperationName, action.Status)
	fmt.Fprintf(w, "requested by:\t%s\nrequested at:\t%s\nexpires at:\t%s\n", action.RequestedBy, formatTime(action.RequestedAt), formatTime(action.ExpiresAt))
	args, _ := json.Marshal(action.Arguments)
	fmt.Fprintf(w, "arguments:\t%s\n", args)
	if action.DecidedAt != nil {
		fmt.Fprintf(w, "decided by:\t%s\ndecided at:\t%s\nreason:\t%s\n", action.DecidedBy, formatTimePtr(action.DecidedAt), action.Reason)
	}
	if action.MatchedRuleID != "" {
		fmt.Fprintf(w, "matched rule:\t%s\n", action.MatchedRuleID)
	}
	if result := action.ExecutionResult; result != nil {
		fmt.Fprintf(w, "executed at:\t%s\nsuccess:\t%v\n", formatTimePtr(action.ExecutedAt), result.Success)
		if result.Error != "" {
			fmt.Fprintf(w, "error:\t%s\n", result.Error)
		}
	}
}

func printRule(w io.Writer, item *model.ApprovalRule) {
	fmt.Fprintf(w, "id:\t%s\noperation:\t%s\ntier:\t%s\nactive:\t%v\n", item.ID, item.OperationName, item.RiskTier, item.Active)
	fmt.Fprintf(w, "uses:\t%s\nexpires at:\t%s\nconstraints:\t%s\n", uses(item), formatTimePtr(item.ExpiresAt), constraints(item.Constraints))
	fmt.Fprintf(w, "created by:\t%s\ncreated at:\t%s\n", item.CreatedBy, formatTime(item.CreatedAt))
	if item.Description != "" {
		fmt.Fprintf(w, "description:\t%s\n", item.Description)
	}
	if item.CreatedFrom != "" {
		fmt.Fprintf(w, "derived from:\t%s\n", item.CreatedFrom)
	}
	if item.Supersedes != "" {
		fmt.Fprintf(w, "supersedes:\t%s\n", item.Supersedes)
	}
	if item.RevokedAt != nil {
		fmt.Fprintf(w, "revoked by:\t%s\nrevoked at:\t%s\n", item.RevokedBy, formatTimePtr(item.RevokedAt))
	}
}

func printMetrics(w io.Writer, snapshot *metrics.Snapshot) {
	fmt.Fprintf(w, "total:\t%d\npending:\t%d\n", snapshot.Total, snapshot.Pending)
	var statuses []string
	for status := range snapshot.ByStatus {
		statuses = append(statuses, string(status))
	}
	sort.Strings(statuses)
	for _, status := range statuses {
		fmt.Fprintf(w, "  %s:\t%d\n", status, snapshot.ByStatus[model.Status(status)])
	}
	fmt.Fprintf(w, "auto-approval rate:\t%.2f (%d of %d gated)\n", snapshot.AutoApprovalRate, snapshot.AutoApproved, snapshot.Gated)
	latency := snapshot.HumanDecisions
	fmt.Fprintf(w, "decision latency:\tp50 %s, p90 %s, p99 %s (%d decisions)\n", latency.P50, latency.P90, latency.P99, latency.Count)
	fmt.Fprintf(w, "execution failure rate:\t%.2f (%d of %d)\n", snapshot.ExecutionFailureRate, snapshot.ExecutionFailures, snapshot.Executed)
}

func describe(suggestion *rule.Suggestion) string {
	var parts []string
	if suggestion.Constraint != nil {
		parts = append(parts, suggestion.Constraint.String())
	}
	if suggestion.MaxUses != nil {
		parts = append(parts, fmt.Sprintf("max uses %d", *suggestion.MaxUses))
	}
	if suggestion.ExpiresAt != nil {
		parts = append(parts, "expires "+formatTimePtr(suggestion.ExpiresAt))
	}
	return strings.Join(parts, ", ")
}

func uses(item *model.ApprovalRule) string {
	if item.MaxUses == nil {
		return fmt.Sprintf("%d", item.UseCount)
	}
	return fmt.Sprintf("%d/%d", item.UseCount, *item.MaxUses)
}

func constraints(c model.Constraints) string {
	var parts []string
	for _, name := range c.Names() {
		parts = append(parts, name+"="+c[name].String())
	}
	return strings.Join(parts, " ")
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return formatTime(*t)
}
