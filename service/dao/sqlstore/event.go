package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/viant/gatekeep/internal/clock"
	"github.com/viant/gatekeep/internal/idgen"
	"github.com/viant/gatekeep/model"
	"github.com/viant/gatekeep/service/dao"
	"github.com/viant/gatekeep/service/dao/criteria"
)

const eventColumns = `seq, id, action_id, rule_id, event_type, actor, reason, payload, occurred_at, prev_hash, hash`

func (s *Store) AppendEvent(ctx context.Context, event *model.ApprovalEvent) error {
	if event == nil {
		return dao.ErrNilEntity
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return s.appendEvent(ctx, tx, event, nil)
	})
}

// appendEvent seals event after the current tail of the log and inserts it.
func (s *Store) appendEvent(ctx context.Context, tx *sql.Tx, event *model.ApprovalEvent, snapshot map[string]interface{}) error {
	if event == nil {
		return dao.ErrNilEntity
	}
	if lock := s.dialect.lockEvents(); lock != "" {
		if _, err := tx.ExecContext(ctx, lock); err != nil {
			return fmt.Errorf("lock event log: %w", err)
		}
	}
	var seq int64
	var prevHash string
	err := tx.QueryRowContext(ctx, "SELECT seq, hash FROM approval_events ORDER BY seq DESC LIMIT 1").Scan(&seq, &prevHash)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("read event log tail: %w", err)
	}
	if event.ID == "" {
		event.ID = idgen.New()
	}
	if event.Payload == nil {
		event.Payload = snapshot
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = clock.Now()
	}
	if err = event.Seal(seq+1, prevHash); err != nil {
		return err
	}
	payload, err := marshalJSON(event.Payload)
	if err != nil {
		return err
	}
	_, err = s.exec(ctx, tx, `INSERT INTO approval_events (`+eventColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.Seq, event.ID, event.ActionID, event.RuleID, string(event.Type), event.Actor, event.Reason,
		payload, toNanos(event.OccurredAt), event.PrevHash, event.Hash)
	if err != nil {
		return fmt.Errorf("insert event %s: %w", event.ID, err)
	}
	return nil
}

func (s *Store) ListEvents(ctx context.Context, parameters ...*dao.Parameter) ([]*model.ApprovalEvent, error) {
	filter := criteria.Parse(parameters)
	var where []string
	var args []interface{}
	if filter.ActionID != "" {
		where = append(where, "action_id = ?")
		args = append(args, filter.ActionID)
	}
	if filter.RuleID != "" {
		where = append(where, "rule_id = ?")
		args = append(args, filter.RuleID)
	}
	if len(filter.Types) > 0 {
		placeholders := make([]string, len(filter.Types))
		for i, eventType := range filter.Types {
			placeholders[i] = "?"
			args = append(args, string(eventType))
		}
		where = append(where, "event_type IN ("+strings.Join(placeholders, ", ")+")")
	}
	if filter.AfterSeq > 0 {
		where = append(where, "seq > ?")
		args = append(args, filter.AfterSeq)
	}
	where, args = timeRange("occurred_at", filter, where, args)
	query := "SELECT " + eventColumns + " FROM approval_events" + whereClause(where) + " ORDER BY seq" + limitClause(filter.Limit)
	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()
	var ret []*model.ApprovalEvent
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		ret = append(ret, event)
	}
	return ret, rows.Err()
}

func scanEvent(row scanner) (*model.ApprovalEvent, error) {
	ret := &model.ApprovalEvent{}
	var eventType string
	var payload sql.NullString
	var occurredAt int64
	err := row.Scan(&ret.Seq, &ret.ID, &ret.ActionID, &ret.RuleID, &eventType, &ret.Actor, &ret.Reason,
		&payload, &occurredAt, &ret.PrevHash, &ret.Hash)
	if err != nil {
		return nil, err
	}
	ret.Type = model.EventType(eventType)
	ret.OccurredAt = fromNanos(occurredAt)
	if err = unmarshalJSON(payload, &ret.Payload); err != nil {
		return nil, err
	}
	return ret, nil
}
