package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/viant/gatekeep/model"
	"github.com/viant/gatekeep/service/dao"
	"github.com/viant/gatekeep/service/dao/criteria"
)

const ruleColumns = `id, operation_name, arg_constraints, description, risk_tier, expires_at, max_uses, use_count,
	active, created_at, created_by, created_from, supersedes, revoked_at, revoked_by`

func (s *Store) CreateRule(ctx context.Context, write *dao.RuleWrite) error {
	if write == nil || write.Rule == nil || write.Event == nil {
		return dao.ErrNilEntity
	}
	if write.Rule.ID == "" {
		return dao.ErrInvalidID
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if err := write.Rule.CheckScope(); err != nil {
			return err
		}
		if write.Supersede != nil {
			if _, err := s.revoke(ctx, tx, write.Supersede); err != nil {
				return err
			}
		}
		if err := s.insertRule(ctx, tx, write.Rule); err != nil {
			return err
		}
		return s.appendEvent(ctx, tx, write.Event, write.Rule.Snapshot())
	})
}

func (s *Store) RevokeRule(ctx context.Context, revocation *dao.Revocation) (*model.ApprovalRule, error) {
	if revocation == nil || revocation.Event == nil {
		return nil, dao.ErrNilEntity
	}
	var ret *model.ApprovalRule
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		ret, err = s.revoke(ctx, tx, revocation)
		return err
	})
	if err != nil {
		return nil, err
	}
	return ret, nil
}

func (s *Store) revoke(ctx context.Context, tx *sql.Tx, revocation *dao.Revocation) (*model.ApprovalRule, error) {
	if revocation.Event == nil {
		return nil, dao.ErrNilEntity
	}
	affected, err := s.exec(ctx, tx, `UPDATE approval_rules SET active = 0, revoked_at = ?, revoked_by = ?
		WHERE id = ? AND active = 1`, toNanos(revocation.At), revocation.Actor, revocation.RuleID)
	if err != nil {
		return nil, fmt.Errorf("revoke rule %s: %w", revocation.RuleID, err)
	}
	rule, err := s.loadRule(ctx, tx, revocation.RuleID)
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, model.ErrRuleInactive
	}
	if err = s.appendEvent(ctx, tx, revocation.Event, rule.Snapshot()); err != nil {
		return nil, err
	}
	return rule, nil
}

func (s *Store) GetRule(ctx context.Context, id string) (*model.ApprovalRule, error) {
	return s.loadRule(ctx, s.db, id)
}

func (s *Store) ListRules(ctx context.Context, parameters ...*dao.Parameter) ([]*model.ApprovalRule, error) {
	filter := criteria.Parse(parameters)
	var where []string
	var args []interface{}
	if filter.Operation != "" {
		where = append(where, "operation_name = ?")
		args = append(args, filter.Operation)
	}
	if filter.Active != nil {
		where = append(where, "active = ?")
		args = append(args, boolInt(*filter.Active))
	}
	where, args = timeRange("created_at", filter, where, args)
	query := "SELECT " + ruleColumns + " FROM approval_rules" + whereClause(where) + " ORDER BY created_at, id" + limitClause(filter.Limit)
	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	defer rows.Close()
	var ret []*model.ApprovalRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		ret = append(ret, rule)
	}
	return ret, rows.Err()
}

func (s *Store) insertRule(ctx context.Context, q querier, rule *model.ApprovalRule) error {
	constraints := rule.Constraints
	if constraints == nil {
		constraints = model.Constraints{}
	}
	data, err := json.Marshal(constraints)
	if err != nil {
		return fmt.Errorf("marshal constraints of rule %s: %w", rule.ID, err)
	}
	_, err = s.exec(ctx, q, `INSERT INTO approval_rules (`+ruleColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rule.ID, rule.OperationName, string(data), rule.Description, string(rule.RiskTier),
		nullNanos(rule.ExpiresAt), nullInt(rule.MaxUses), rule.UseCount, boolInt(rule.Active),
		toNanos(rule.CreatedAt), rule.CreatedBy, rule.CreatedFrom, rule.Supersedes,
		nullNanos(rule.RevokedAt), rule.RevokedBy)
	if err != nil {
		return fmt.Errorf("insert rule %s: %w", rule.ID, err)
	}
	return nil
}

func (s *Store) loadRule(ctx context.Context, q querier, id string) (*model.ApprovalRule, error) {
	row := q.QueryRowContext(ctx, s.dialect.rebind("SELECT "+ruleColumns+" FROM approval_rules WHERE id = ?"), id)
	rule, err := scanRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, dao.ErrNotFound
	}
	return rule, err
}

func scanRule(row scanner) (*model.ApprovalRule, error) {
	ret := &model.ApprovalRule{}
	var constraints, riskTier string
	var expiresAt, maxUses, revokedAt sql.NullInt64
	var createdAt int64
	var active int
	err := row.Scan(&ret.ID, &ret.OperationName, &constraints, &ret.Description, &riskTier, &expiresAt, &maxUses,
		&ret.UseCount, &active, &createdAt, &ret.CreatedBy, &ret.CreatedFrom, &ret.Supersedes, &revokedAt, &ret.RevokedBy)
	if err != nil {
		return nil, err
	}
	ret.RiskTier = model.RiskTier(riskTier)
	ret.ExpiresAt = timePtr(expiresAt)
	ret.MaxUses = intPtr(maxUses)
	ret.Active = active != 0
	ret.CreatedAt = fromNanos(createdAt)
	ret.RevokedAt = timePtr(revokedAt)
	if err = json.Unmarshal([]byte(constraints), &ret.Constraints); err != nil {
		return nil, fmt.Errorf("unmarshal constraints of rule %s: %w", ret.ID, err)
	}
	if len(ret.Constraints) == 0 {
		ret.Constraints = nil
	}
	return ret, nil
}
