package matcher

import (
	"github.com/tidwall/match"
	"github.com/viant/gatekeep/model"
)

// Matches reports whether every constrained argument is present in args and
// satisfies its constraint. Arguments without a constraint are ignored, so an
// empty constraint set matches every call.
func Matches(constraints model.Constraints, args map[string]interface{}) bool {
	for name, constraint := range constraints {
		value, ok := args[name]
		if !ok {
			return false
		}
		if !Satisfies(constraint, value) {
			return false
		}
	}
	return true
}

// Satisfies evaluates a single constraint against a present value.
func Satisfies(constraint model.Constraint, value interface{}) bool {
	switch constraint.Kind {
	case model.ConstraintAny:
		return true
	case model.ConstraintExact:
		return model.Equal(constraint.Value, value)
	case model.ConstraintPattern:
		text, ok := value.(string)
		if !ok {
			return false
		}
		return match.Match(text, constraint.Pattern)
	}
	return false
}
