// Package memory provides an in-process dao.Store. A single mutex gives every
// write the same all-or-nothing behaviour the SQL store gets from
// transactions.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/viant/gatekeep/internal/clock"
	"github.com/viant/gatekeep/internal/idgen"
	"github.com/viant/gatekeep/model"
	"github.com/viant/gatekeep/service/dao"
	"github.com/viant/gatekeep/service/dao/criteria"
	"github.com/viant/gatekeep/service/dao/store"
)

// Store keeps actions, rules and events in memory.
type Store struct {
	mu       sync.Mutex
	actions  *store.MemoryStore[string, model.PendingAction]
	rules    *store.MemoryStore[string, model.ApprovalRule]
	events   []*model.ApprovalEvent
	lastHash string
}

// New creates an empty store.
func New() *Store {
	return &Store{
		actions: store.NewMemoryStore(func(a *model.PendingAction) string { return a.ID }, (*model.PendingAction).Clone),
		rules:   store.NewMemoryStore(func(r *model.ApprovalRule) string { return r.ID }, (*model.ApprovalRule).Clone),
	}
}

func (s *Store) CreateAction(_ context.Context, action *model.PendingAction, event *model.ApprovalEvent) error {
	if action == nil || event == nil {
		return dao.ErrNilEntity
	}
	if action.ID == "" {
		return dao.ErrInvalidID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.actions.Has(action.ID) {
		return dao.ErrDuplicate
	}
	sealed, err := s.prepare(event, action.Snapshot())
	if err != nil {
		return err
	}
	if err = s.actions.Insert(action); err != nil {
		return err
	}
	s.commit(sealed)
	return nil
}

func (s *Store) AutoApprove(_ context.Context, consumption *dao.Consumption) (*model.ApprovalRule, error) {
	if consumption == nil || consumption.Action == nil || consumption.Event == nil {
		return nil, dao.ErrNilEntity
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rule := s.rules.Load(consumption.RuleID)
	if rule == nil || !rule.IsUsable(consumption.At) {
		return nil, dao.ClassifyConsumption(rule)
	}
	if s.actions.Has(consumption.Action.ID) {
		return nil, dao.ErrDuplicate
	}
	rule.UseCount++
	sealed, err := s.prepare(consumption.Event, consumption.Action.Snapshot())
	if err != nil {
		return nil, err
	}
	if err = s.actions.Insert(consumption.Action); err != nil {
		return nil, err
	}
	if err = s.rules.Replace(rule); err != nil {
		return nil, err
	}
	s.commit(sealed)
	return rule, nil
}

func (s *Store) Transition(_ context.Context, transition *dao.Transition) (*model.PendingAction, error) {
	if err := transition.Validate(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	action := s.actions.Load(transition.ActionID)
	if action == nil {
		return nil, model.NewDecisionError(transition.ActionID, "")
	}
	if action.Status != transition.From {
		return nil, model.NewDecisionError(transition.ActionID, action.Status)
	}
	transition.Apply(action)
	if transition.Event == nil {
		return nil, dao.ErrNilEntity
	}
	sealed, err := s.prepare(transition.Event, action.Snapshot())
	if err != nil {
		return nil, err
	}
	if err = s.actions.Replace(action); err != nil {
		return nil, err
	}
	s.commit(sealed)
	return action, nil
}

func (s *Store) Claim(_ context.Context, actionID, claimant string, at time.Time) (*model.PendingAction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	action := s.actions.Load(actionID)
	if action == nil || action.Status != model.StatusApproved || action.ClaimedAt != nil {
		return nil, dao.ClassifyClaim(actionID, action)
	}
	action.ClaimedBy = claimant
	action.ClaimedAt = &at
	if err := s.actions.Replace(action); err != nil {
		return nil, err
	}
	return action, nil
}

func (s *Store) GetAction(_ context.Context, id string) (*model.PendingAction, error) {
	if action := s.actions.Load(id); action != nil {
		return action, nil
	}
	return nil, dao.ErrNotFound
}

func (s *Store) ListActions(_ context.Context, parameters ...*dao.Parameter) ([]*model.PendingAction, error) {
	filter := criteria.Parse(parameters)
	ret := s.actions.List(filter.Action, func(a, b *model.PendingAction) bool {
		if !a.RequestedAt.Equal(b.RequestedAt) {
			return a.RequestedAt.Before(b.RequestedAt)
		}
		return a.ID < b.ID
	})
	return limit(ret, filter.Limit), nil
}

func (s *Store) CreateRule(_ context.Context, write *dao.RuleWrite) error {
	if write == nil || write.Rule == nil || write.Event == nil {
		return dao.ErrNilEntity
	}
	if write.Rule.ID == "" {
		return dao.ErrInvalidID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := write.Rule.CheckScope(); err != nil {
		return err
	}
	if s.rules.Has(write.Rule.ID) {
		return dao.ErrDuplicate
	}
	var revoked *model.ApprovalRule
	var events []*model.ApprovalEvent
	if write.Supersede != nil {
		var err error
		if revoked, err = s.revocable(write.Supersede); err != nil {
			return err
		}
		sealed, err := s.prepare(write.Supersede.Event, revoked.Snapshot())
		if err != nil {
			return err
		}
		events = append(events, sealed)
	}
	sealed, err := s.prepare(write.Event, write.Rule.Snapshot(), events...)
	if err != nil {
		return err
	}
	events = append(events, sealed)
	if revoked != nil {
		if err = s.rules.Replace(revoked); err != nil {
			return err
		}
	}
	if err = s.rules.Insert(write.Rule); err != nil {
		return err
	}
	s.commit(events...)
	return nil
}

func (s *Store) RevokeRule(_ context.Context, revocation *dao.Revocation) (*model.ApprovalRule, error) {
	if revocation == nil || revocation.Event == nil {
		return nil, dao.ErrNilEntity
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rule, err := s.revocable(revocation)
	if err != nil {
		return nil, err
	}
	sealed, err := s.prepare(revocation.Event, rule.Snapshot())
	if err != nil {
		return nil, err
	}
	if err = s.rules.Replace(rule); err != nil {
		return nil, err
	}
	s.commit(sealed)
	return rule, nil
}

func (s *Store) revocable(revocation *dao.Revocation) (*model.ApprovalRule, error) {
	rule := s.rules.Load(revocation.RuleID)
	if rule == nil {
		return nil, dao.ErrNotFound
	}
	if !rule.Active {
		return nil, model.ErrRuleInactive
	}
	revocation.Apply(rule)
	return rule, nil
}

func (s *Store) GetRule(_ context.Context, id string) (*model.ApprovalRule, error) {
	if rule := s.rules.Load(id); rule != nil {
		return rule, nil
	}
	return nil, dao.ErrNotFound
}

func (s *Store) ListRules(_ context.Context, parameters ...*dao.Parameter) ([]*model.ApprovalRule, error) {
	filter := criteria.Parse(parameters)
	ret := s.rules.List(filter.Rule, func(a, b *model.ApprovalRule) bool {
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	return limit(ret, filter.Limit), nil
}

func (s *Store) AppendEvent(_ context.Context, event *model.ApprovalEvent) error {
	if event == nil {
		return dao.ErrNilEntity
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sealed, err := s.prepare(event, nil)
	if err != nil {
		return err
	}
	s.commit(sealed)
	return nil
}

func (s *Store) ListEvents(_ context.Context, parameters ...*dao.Parameter) ([]*model.ApprovalEvent, error) {
	filter := criteria.Parse(parameters)
	s.mu.Lock()
	var ret []*model.ApprovalEvent
	for _, event := range s.events {
		if filter.Event(event) {
			ret = append(ret, cloneEvent(event))
		}
	}
	s.mu.Unlock()
	sort.Slice(ret, func(i, j int) bool { return ret[i].Seq < ret[j].Seq })
	return limit(ret, filter.Limit), nil
}

func (s *Store) Close() error { return nil }

// prepare seals event after the current tail and after events already
// prepared by the same write. The caller's event receives the assigned
// sequence and hash.
func (s *Store) prepare(event *model.ApprovalEvent, snapshot map[string]interface{}, chain ...*model.ApprovalEvent) (*model.ApprovalEvent, error) {
	if event.ID == "" {
		event.ID = idgen.New()
	}
	if event.Payload == nil {
		event.Payload = snapshot
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = clock.Now()
	}
	seq := int64(len(s.events) + len(chain) + 1)
	prevHash := s.lastHash
	if len(chain) > 0 {
		prevHash = chain[len(chain)-1].Hash
	}
	if err := event.Seal(seq, prevHash); err != nil {
		return nil, err
	}
	return cloneEvent(event), nil
}

func (s *Store) commit(events ...*model.ApprovalEvent) {
	for _, event := range events {
		s.events = append(s.events, event)
		s.lastHash = event.Hash
	}
}

func cloneEvent(event *model.ApprovalEvent) *model.ApprovalEvent {
	ret := *event
	if event.Payload != nil {
		ret.Payload = make(map[string]interface{}, len(event.Payload))
		for k, v := range event.Payload {
			ret.Payload[k] = v
		}
	}
	return &ret
}

func limit[T any](items []T, n int) []T {
	if n > 0 && len(items) > n {
		return items[:n]
	}
	return items
}
