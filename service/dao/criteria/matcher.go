package criteria

import (
	"time"

	"github.com/viant/gatekeep/model"
	"github.com/viant/gatekeep/service/dao"
)

// Filter is the parsed form of list parameters.
type Filter struct {
	Statuses      []model.Status
	Operation     string
	From          *time.Time
	To            *time.Time
	ActionID      string
	RuleID        string
	Types         []model.EventType
	Active        *bool
	AfterSeq      int64
	ExpiresBefore *time.Time
	Limit         int
}

// Parse converts list parameters into a Filter. Unknown names are ignored.
func Parse(parameters []*dao.Parameter) *Filter {
	ret := &Filter{}
	for _, parameter := range parameters {
		if parameter == nil {
			continue
		}
		switch parameter.Name {
		case dao.ParamStatus:
			ret.Statuses = append(ret.Statuses, statuses(parameter.Value)...)
		case dao.ParamOperation:
			ret.Operation, _ = parameter.Value.(string)
		case dao.ParamFrom:
			if t, ok := parameter.Value.(time.Time); ok {
				ret.From = &t
			}
		case dao.ParamTo:
			if t, ok := parameter.Value.(time.Time); ok {
				ret.To = &t
			}
		case dao.ParamActionID:
			ret.ActionID, _ = parameter.Value.(string)
		case dao.ParamRuleID:
			ret.RuleID, _ = parameter.Value.(string)
		case dao.ParamEventType:
			ret.Types = append(ret.Types, eventTypes(parameter.Value)...)
		case dao.ParamActive:
			if active, ok := parameter.Value.(bool); ok {
				ret.Active = &active
			}
		case dao.ParamAfterSeq:
			switch actual := parameter.Value.(type) {
			case int64:
				ret.AfterSeq = actual
			case int:
				ret.AfterSeq = int64(actual)
			}
		case dao.ParamExpiresBefore:
			if t, ok := parameter.Value.(time.Time); ok {
				ret.ExpiresBefore = &t
			}
		case dao.ParamLimit:
			ret.Limit, _ = parameter.Value.(int)
		}
	}
	return ret
}

func statuses(value interface{}) []model.Status {
	switch actual := value.(type) {
	case string:
		return []model.Status{model.Status(actual)}
	case []string:
		ret := make([]model.Status, 0, len(actual))
		for _, s := range actual {
			ret = append(ret, model.Status(s))
		}
		return ret
	case model.Status:
		return []model.Status{actual}
	case []model.Status:
		return actual
	}
	return nil
}

func eventTypes(value interface{}) []model.EventType {
	switch actual := value.(type) {
	case string:
		return []model.EventType{model.EventType(actual)}
	case []string:
		ret := make([]model.EventType, 0, len(actual))
		for _, s := range actual {
			ret = append(ret, model.EventType(s))
		}
		return ret
	case model.EventType:
		return []model.EventType{actual}
	case []model.EventType:
		return actual
	}
	return nil
}

// Action returns true when the action satisfies the filter.
func (f *Filter) Action(action *model.PendingAction) bool {
	if len(f.Statuses) > 0 && !containsStatus(f.Statuses, action.Status) {
		return false
	}
	if f.Operation != "" && f.Operation != action.OperationName {
		return false
	}
	if f.ExpiresBefore != nil && !action.ExpiresAt.Before(*f.ExpiresBefore) {
		return false
	}
	return f.inRange(action.RequestedAt)
}

// Rule returns true when the rule satisfies the filter.
func (f *Filter) Rule(rule *model.ApprovalRule) bool {
	if f.Operation != "" && f.Operation != rule.OperationName {
		return false
	}
	if f.Active != nil && *f.Active != rule.Active {
		return false
	}
	return f.inRange(rule.CreatedAt)
}

// Event returns true when the event satisfies the filter.
func (f *Filter) Event(event *model.ApprovalEvent) bool {
	if f.ActionID != "" && f.ActionID != event.ActionID {
		return false
	}
	if f.RuleID != "" && f.RuleID != event.RuleID {
		return false
	}
	if len(f.Types) > 0 && !containsType(f.Types, event.Type) {
		return false
	}
	if event.Seq <= f.AfterSeq {
		return false
	}
	return f.inRange(event.OccurredAt)
}

func (f *Filter) inRange(t time.Time) bool {
	if f.From != nil && t.Before(*f.From) {
		return false
	}
	if f.To != nil && !t.Before(*f.To) {
		return false
	}
	return true
}

func containsStatus(list []model.Status, status model.Status) bool {
	for _, candidate := range list {
		if candidate == status {
			return true
		}
	}
	return false
}

func containsType(list []model.EventType, eventType model.EventType) bool {
	for _, candidate := range list {
		if candidate == eventType {
			return true
		}
	}
	return false
}
