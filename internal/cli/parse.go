package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/viant/gatekeep/model"
	"github.com/viant/gatekeep/service/dao"
)

// parseTime accepts RFC3339 or a duration relative to now; "-24h" is one day ago.
func parseTime(text string, now time.Time) (time.Time, error) {
	text = strings.TrimSpace(text)
	if t, err := time.Parse(time.RFC3339, text); err == nil {
		return t, nil
	}
	d, err := time.ParseDuration(text)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q: expected RFC3339 or duration", text)
	}
	return now.Add(d), nil
}

// parseConstraints parses name=expr pairs, e.g. recipient=exact:ops@x.com.
func parseConstraints(pairs []string) (model.Constraints, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	ret := model.Constraints{}
	for _, pair := range pairs {
		name, expr, ok := strings.Cut(pair, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid constraint %q: expected name=exact:<value>|pattern:<glob>|any", pair)
		}
		constraint, err := model.ParseConstraint(expr)
		if err != nil {
			return nil, fmt.Errorf("argument %v: %w", name, err)
		}
		ret[name] = constraint
	}
	return ret, nil
}

// filterOptions holds the listing flags shared by commands.
type filterOptions struct {
	Statuses  []string
	Operation string
	From      string
	To        string
	Limit     int
}

func (f *filterOptions) parameters(now time.Time) ([]*dao.Parameter, error) {
	var ret []*dao.Parameter
	if len(f.Statuses) > 0 {
		var statuses []model.Status
		for _, text := range f.Statuses {
			status, err := model.ParseStatus(text)
			if err != nil {
				return nil, err
			}
			statuses = append(statuses, status)
		}
		ret = append(ret, dao.WithStatus(statuses...))
	}
	if f.Operation != "" {
		ret = append(ret, dao.WithOperation(f.Operation))
	}
	if f.From != "" {
		from, err := parseTime(f.From, now)
		if err != nil {
			return nil, err
		}
		ret = append(ret, dao.WithFrom(from))
	}
	if f.To != "" {
		to, err := parseTime(f.To, now)
		if err != nil {
			return nil, err
		}
		ret = append(ret, dao.WithTo(to))
	}
	if f.Limit > 0 {
		ret = append(ret, dao.WithLimit(f.Limit))
	}
	return ret, nil
}
