package dao

import (
	"time"

	"github.com/viant/gatekeep/model"
)

// Parameter names understood by List methods.
const (
	ParamStatus        = "status"
	ParamOperation     = "operation"
	ParamFrom          = "from"
	ParamTo            = "to"
	ParamActionID      = "actionId"
	ParamRuleID        = "ruleId"
	ParamEventType     = "eventType"
	ParamActive        = "active"
	ParamAfterSeq      = "afterSeq"
	ParamExpiresBefore = "expiresBefore"
	ParamLimit         = "limit"
)

type Parameter struct {
	Name  string
	Value interface{}
}

func NewParameter(name string, values ...string) *Parameter {
	if len(values) == 1 {
		return &Parameter{Name: name, Value: values[0]}
	}
	return &Parameter{Name: name, Value: values}
}

// WithStatus filters actions by one or more statuses.
func WithStatus(statuses ...model.Status) *Parameter {
	return &Parameter{Name: ParamStatus, Value: statuses}
}

// WithOperation filters actions and rules by operation name.
func WithOperation(name string) *Parameter {
	return &Parameter{Name: ParamOperation, Value: name}
}

// WithFrom keeps records at or after t (requested, created or occurred time).
func WithFrom(t time.Time) *Parameter {
	return &Parameter{Name: ParamFrom, Value: t}
}

// WithTo keeps records before t.
func WithTo(t time.Time) *Parameter {
	return &Parameter{Name: ParamTo, Value: t}
}

// WithActionID filters events by action.
func WithActionID(id string) *Parameter {
	return &Parameter{Name: ParamActionID, Value: id}
}

// WithRuleID filters events by rule.
func WithRuleID(id string) *Parameter {
	return &Parameter{Name: ParamRuleID, Value: id}
}

// WithEventType filters events by type.
func WithEventType(types ...model.EventType) *Parameter {
	return &Parameter{Name: ParamEventType, Value: types}
}

// WithActive filters rules by their active flag.
func WithActive(active bool) *Parameter {
	return &Parameter{Name: ParamActive, Value: active}
}

// WithAfterSeq keeps events with a sequence greater than seq.
func WithAfterSeq(seq int64) *Parameter {
	return &Parameter{Name: ParamAfterSeq, Value: seq}
}

// WithExpiresBefore keeps actions whose expiry is strictly before t.
func WithExpiresBefore(t time.Time) *Parameter {
	return &Parameter{Name: ParamExpiresBefore, Value: t}
}

// WithLimit caps the number of returned records.
func WithLimit(limit int) *Parameter {
	return &Parameter{Name: ParamLimit, Value: limit}
}
