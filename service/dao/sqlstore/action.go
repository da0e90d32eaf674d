package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/viant/gatekeep/model"
	"github.com/viant/gatekeep/service/dao"
	"github.com/viant/gatekeep/service/dao/criteria"
)

const actionColumns = `id, operation_name, arguments, sealed_arguments, status, requested_by, requested_at,
	expires_at, decided_at, decided_by, reason, matched_rule_id, claimed_by, claimed_at, executed_at, execution_result`

type scanner interface {
	Scan(dest ...interface{}) error
}

func (s *Store) CreateAction(ctx context.Context, action *model.PendingAction, event *model.ApprovalEvent) error {
	if action == nil || event == nil {
		return dao.ErrNilEntity
	}
	if action.ID == "" {
		return dao.ErrInvalidID
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if err := s.insertAction(ctx, tx, action); err != nil {
			return err
		}
		return s.appendEvent(ctx, tx, event, action.Snapshot())
	})
}

func (s *Store) AutoApprove(ctx context.Context, consumption *dao.Consumption) (*model.ApprovalRule, error) {
	if consumption == nil || consumption.Action == nil || consumption.Event == nil {
		return nil, dao.ErrNilEntity
	}
	var ret *model.ApprovalRule
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		affected, err := s.exec(ctx, tx, `UPDATE approval_rules SET use_count = use_count + 1
			WHERE id = ? AND active = 1
			AND (max_uses IS NULL OR use_count < max_uses)
			AND (expires_at IS NULL OR expires_at > ?)`, consumption.RuleID, toNanos(consumption.At))
		if err != nil {
			return fmt.Errorf("consume rule %s: %w", consumption.RuleID, err)
		}
		if affected == 0 {
			rule, err := s.loadRule(ctx, tx, consumption.RuleID)
			if err != nil && !errors.Is(err, dao.ErrNotFound) {
				return err
			}
			return dao.ClassifyConsumption(rule)
		}
		if err = s.insertAction(ctx, tx, consumption.Action); err != nil {
			return err
		}
		if err = s.appendEvent(ctx, tx, consumption.Event, consumption.Action.Snapshot()); err != nil {
			return err
		}
		ret, err = s.loadRule(ctx, tx, consumption.RuleID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return ret, nil
}

func (s *Store) Transition(ctx context.Context, transition *dao.Transition) (*model.PendingAction, error) {
	if err := transition.Validate(); err != nil {
		return nil, err
	}
	if transition.Event == nil {
		return nil, dao.ErrNilEntity
	}
	var ret *model.PendingAction
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var affected int64
		var err error
		if transition.To == model.StatusExecuted {
			result, mErr := marshalJSON(transition.Result)
			if mErr != nil {
				return mErr
			}
			affected, err = s.exec(ctx, tx, `UPDATE pending_actions SET status = ?, executed_at = ?, execution_result = ?
				WHERE id = ? AND status = ?`,
				string(transition.To), toNanos(transition.At), result, transition.ActionID, string(transition.From))
		} else {
			affected, err = s.exec(ctx, tx, `UPDATE pending_actions SET status = ?, decided_at = ?, decided_by = ?, reason = ?
				WHERE id = ? AND status = ?`,
				string(transition.To), toNanos(transition.At), transition.Actor, transition.Reason, transition.ActionID, string(transition.From))
		}
		if err != nil {
			return fmt.Errorf("transition action %s: %w", transition.ActionID, err)
		}
		if affected == 0 {
			return model.NewDecisionError(transition.ActionID, s.status(ctx, tx, transition.ActionID))
		}
		if ret, err = s.loadAction(ctx, tx, transition.ActionID); err != nil {
			return err
		}
		return s.appendEvent(ctx, tx, transition.Event, ret.Snapshot())
	})
	if err != nil {
		return nil, err
	}
	return ret, nil
}

func (s *Store) Claim(ctx context.Context, actionID, claimant string, at time.Time) (*model.PendingAction, error) {
	var ret *model.PendingAction
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		affected, err := s.exec(ctx, tx, `UPDATE pending_actions SET claimed_by = ?, claimed_at = ?
			WHERE id = ? AND status = 'approved' AND claimed_at IS NULL`, claimant, toNanos(at), actionID)
		if err != nil {
			return fmt.Errorf("claim action %s: %w", actionID, err)
		}
		action, err := s.loadAction(ctx, tx, actionID)
		if err != nil && !errors.Is(err, dao.ErrNotFound) {
			return err
		}
		if affected == 0 {
			return dao.ClassifyClaim(actionID, action)
		}
		ret = action
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ret, nil
}

func (s *Store) GetAction(ctx context.Context, id string) (*model.PendingAction, error) {
	return s.loadAction(ctx, s.db, id)
}

func (s *Store) ListActions(ctx context.Context, parameters ...*dao.Parameter) ([]*model.PendingAction, error) {
	filter := criteria.Parse(parameters)
	var where []string
	var args []interface{}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			placeholders[i] = "?"
			args = append(args, string(status))
		}
		where = append(where, "status IN ("+strings.Join(placeholders, ", ")+")")
	}
	if filter.Operation != "" {
		where = append(where, "operation_name = ?")
		args = append(args, filter.Operation)
	}
	if filter.ExpiresBefore != nil {
		where = append(where, "expires_at < ?")
		args = append(args, toNanos(*filter.ExpiresBefore))
	}
	where, args = timeRange("requested_at", filter, where, args)
	query := "SELECT " + actionColumns + " FROM pending_actions" + whereClause(where) + " ORDER BY requested_at, id" + limitClause(filter.Limit)
	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list actions: %w", err)
	}
	defer rows.Close()
	var ret []*model.PendingAction
	for rows.Next() {
		action, err := scanAction(rows)
		if err != nil {
			return nil, err
		}
		ret = append(ret, action)
	}
	return ret, rows.Err()
}

func (s *Store) insertAction(ctx context.Context, q querier, action *model.PendingAction) error {
	arguments, err := marshalJSON(action.Arguments)
	if err != nil {
		return err
	}
	result, err := marshalJSON(action.ExecutionResult)
	if err != nil {
		return err
	}
	_, err = s.exec(ctx, q, `INSERT INTO pending_actions (`+actionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		action.ID, action.OperationName, arguments, action.SealedArguments, string(action.Status),
		action.RequestedBy, toNanos(action.RequestedAt), toNanos(action.ExpiresAt),
		nullNanos(action.DecidedAt), action.DecidedBy, action.Reason, action.MatchedRuleID,
		action.ClaimedBy, nullNanos(action.ClaimedAt), nullNanos(action.ExecutedAt), result)
	if err != nil {
		return fmt.Errorf("insert action %s: %w", action.ID, err)
	}
	return nil
}

func (s *Store) loadAction(ctx context.Context, q querier, id string) (*model.PendingAction, error) {
	row := q.QueryRowContext(ctx, s.dialect.rebind("SELECT "+actionColumns+" FROM pending_actions WHERE id = ?"), id)
	action, err := scanAction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, dao.ErrNotFound
	}
	return action, err
}

// status returns the current status or empty when the action does not exist.
func (s *Store) status(ctx context.Context, q querier, id string) model.Status {
	var status string
	if err := q.QueryRowContext(ctx, s.dialect.rebind("SELECT status FROM pending_actions WHERE id = ?"), id).Scan(&status); err != nil {
		return ""
	}
	return model.Status(status)
}

func scanAction(row scanner) (*model.PendingAction, error) {
	ret := &model.PendingAction{}
	var status string
	var arguments, result sql.NullString
	var requestedAt, expiresAt int64
	var decidedAt, claimedAt, executedAt sql.NullInt64
	var sealed []byte
	err := row.Scan(&ret.ID, &ret.OperationName, &arguments, &sealed, &status, &ret.RequestedBy, &requestedAt,
		&expiresAt, &decidedAt, &ret.DecidedBy, &ret.Reason, &ret.MatchedRuleID, &ret.ClaimedBy, &claimedAt, &executedAt, &result)
	if err != nil {
		return nil, err
	}
	ret.Status = model.Status(status)
	ret.RequestedAt = fromNanos(requestedAt)
	ret.ExpiresAt = fromNanos(expiresAt)
	ret.DecidedAt = timePtr(decidedAt)
	ret.ClaimedAt = timePtr(claimedAt)
	ret.ExecutedAt = timePtr(executedAt)
	if len(sealed) > 0 {
		ret.SealedArguments = sealed
	}
	if err = unmarshalJSON(arguments, &ret.Arguments); err != nil {
		return nil, err
	}
	if result.Valid {
		ret.ExecutionResult = &model.ExecutionResult{}
		if err = unmarshalJSON(result, ret.ExecutionResult); err != nil {
			return nil, err
		}
	}
	return ret, nil
}

func whereClause(where []string) string {
	if len(where) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(where, " AND ")
}

func limitClause(limit int) string {
	if limit <= 0 {
		return ""
	}
	return fmt.Sprintf(" LIMIT %d", limit)
}

func timeRange(column string, filter *criteria.Filter, where []string, args []interface{}) ([]string, []interface{}) {
	if filter.From != nil {
		where = append(where, column+" >= ?")
		args = append(args, toNanos(*filter.From))
	}
	if filter.To != nil {
		where = append(where, column+" < ?")
		args = append(args, toNanos(*filter.To))
	}
	return where, args
}
