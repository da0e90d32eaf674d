// Package metrics summarises pending action history for operators.
package metrics

import (
	"sort"
	"time"

	"github.com/viant/gatekeep/model"
	"github.com/viant/gatekeep/service/approval"
)

// Latency holds nearest-rank percentiles of human decision latency.
type Latency struct {
	Count int           `json:"count" yaml:"count"`
	P50   time.Duration `json:"p50" yaml:"p50"`
	P90   time.Duration `json:"p90" yaml:"p90"`
	P99   time.Duration `json:"p99" yaml:"p99"`
}

// Snapshot represents computed metrics.
type Snapshot struct {
	Total    int                  `json:"total" yaml:"total"`
	Pending  int                  `json:"pending" yaml:"pending"`
	ByStatus map[model.Status]int `json:"byStatus" yaml:"byStatus"`

	PassedThrough int `json:"passedThrough" yaml:"passedThrough"`
	Gated         int `json:"gated" yaml:"gated"`
	AutoApproved  int `json:"autoApproved" yaml:"autoApproved"`
	// AutoApprovalRate is AutoApproved divided by Gated.
	AutoApprovalRate float64 `json:"autoApprovalRate" yaml:"autoApprovalRate"`

	HumanDecisions Latency `json:"humanDecisions" yaml:"humanDecisions"`

	Executed             int     `json:"executed" yaml:"executed"`
	ExecutionFailures    int     `json:"executionFailures" yaml:"executionFailures"`
	ExecutionFailureRate float64 `json:"executionFailureRate" yaml:"executionFailureRate"`
}

// Origin tells how an action reached its decision.
type Origin string

const (
	OriginPassThrough  Origin = "pass_through"
	OriginAutoApproved Origin = "auto_approved"
	OriginHuman        Origin = "human"
	OriginSystem       Origin = "system"
	OriginUndecided    Origin = "undecided"
)

// OriginOf classifies action.
func OriginOf(action *model.PendingAction) Origin {
	switch {
	case action.MatchedRuleID != "":
		return OriginAutoApproved
	case action.DecidedAt == nil:
		return OriginUndecided
	case action.DecidedBy != approval.SystemActor:
		return OriginHuman
	case action.Status == model.StatusApproved || action.Status == model.StatusExecuted:
		return OriginPassThrough
	}
	return OriginSystem
}

// Compute aggregates actions.
func Compute(actions []*model.PendingAction) *Snapshot {
	ret := &Snapshot{ByStatus: map[model.Status]int{}}
	var latencies []time.Duration
	for _, action := range actions {
		if action == nil {
			continue
		}
		ret.Total++
		ret.ByStatus[action.Status]++
		switch OriginOf(action) {
		case OriginPassThrough:
			ret.PassedThrough++
		case OriginAutoApproved:
			ret.AutoApproved++
		case OriginHuman:
			if latency := action.DecidedAt.Sub(action.RequestedAt); latency >= 0 {
				latencies = append(latencies, latency)
			}
		}
		if action.Status == model.StatusExecuted {
			ret.Executed++
			if action.ExecutionResult == nil || !action.ExecutionResult.Success {
				ret.ExecutionFailures++
			}
		}
	}
	ret.Pending = ret.ByStatus[model.StatusPending]
	ret.Gated = ret.Total - ret.PassedThrough
	ret.AutoApprovalRate = ratio(ret.AutoApproved, ret.Gated)
	ret.ExecutionFailureRate = ratio(ret.ExecutionFailures, ret.Executed)
	ret.HumanDecisions = latency(latencies)
	return ret
}

func latency(values []time.Duration) Latency {
	ret := Latency{Count: len(values)}
	if len(values) == 0 {
		return ret
	}
	sort.Slice(values, func(i, j int) bool { return values[i] < values[j] })
	ret.P50 = percentile(values, 50)
	ret.P90 = percentile(values, 90)
	ret.P99 = percentile(values, 99)
	return ret
}

// percentile uses the nearest-rank method over sorted values.
func percentile(sorted []time.Duration, p int) time.Duration {
	rank := (p*len(sorted) + 99) / 100
	if rank < 1 {
		rank = 1
	}
	return sorted[rank-1]
}

func ratio(n, d int) float64 {
	if d == 0 {
		return 0
	}
	return float64(n) / float64(d)
}
