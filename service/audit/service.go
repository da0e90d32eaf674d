// Package audit exposes the append-only event log: recording standalone
// events, listing, and verifying the hash chain end to end.
package audit

import (
	"context"
	"fmt"

	"github.com/viant/gatekeep/model"
	"github.com/viant/gatekeep/service/dao"
	"github.com/viant/gatekeep/service/event"
	"github.com/viant/gatekeep/service/redact"
	"go.uber.org/zap"
)

const pageSize = 500

// Service reads and appends audit events.
type Service struct {
	store     dao.Store
	redactor  *redact.Redactor
	publisher *event.Publisher
	logger    *zap.Logger
}

type Option func(s *Service)

// WithRedactor sets the redactor applied to recorded reasons and payloads
func WithRedactor(redactor *redact.Redactor) Option {
	return func(s *Service) {
		if redactor != nil {
			s.redactor = redactor
		}
	}
}

// WithPublisher sets the publisher notified after a recorded event commits
func WithPublisher(publisher *event.Publisher) Option {
	return func(s *Service) { s.publisher = publisher }
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates an audit service over store.
func New(store dao.Store, opts ...Option) *Service {
	ret := &Service{store: store, redactor: redact.Default(), logger: zap.NewNop()}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

// Record appends an event that is not paired with a state change in this
// process. Reason and payload are redacted first.
func (s *Service) Record(ctx context.Context, evt *model.ApprovalEvent) error {
	if evt == nil {
		return dao.ErrNilEntity
	}
	if evt.Actor == "" {
		return model.ErrMissingActor
	}
	if evt.Type == "" {
		return fmt.Errorf("event type is required")
	}
	evt.Reason = s.redactor.String(evt.Reason)
	evt.Payload = s.redactor.Document(evt.Payload)
	if err := s.store.AppendEvent(ctx, evt); err != nil {
		return err
	}
	s.publisher.Publish(ctx, evt)
	return nil
}

// List returns events in sequence order.
func (s *Service) List(ctx context.Context, parameters ...*dao.Parameter) ([]*model.ApprovalEvent, error) {
	return s.store.ListEvents(ctx, parameters...)
}

// Report summarises a chain verification.
type Report struct {
	Valid    bool   `json:"valid"`
	Checked  int    `json:"checked"`
	LastSeq  int64  `json:"lastSeq"`
	LastHash string `json:"lastHash,omitempty"`
	// BrokenAt is the sequence of the first event failing verification.
	BrokenAt int64  `json:"brokenAt,omitempty"`
	Problem  string `json:"problem,omitempty"`
}

// Verify walks the whole log in pages and recomputes every hash link.
// A broken chain is reported, not returned as an error.
func (s *Service) Verify(ctx context.Context) (*Report, error) {
	report := &Report{Valid: true}
	for {
		events, err := s.store.ListEvents(ctx, dao.WithAfterSeq(report.LastSeq), dao.WithLimit(pageSize))
		if err != nil {
			return nil, err
		}
		for _, evt := range events {
			if err := Check(evt, report.LastSeq, report.LastHash); err != nil {
				report.Valid = false
				report.BrokenAt = evt.Seq
				report.Problem = err.Error()
				s.logger.Error("audit chain broken", zap.Int64("seq", evt.Seq), zap.Error(err))
				return report, nil
			}
			report.Checked++
			report.LastSeq = evt.Seq
			report.LastHash = evt.Hash
		}
		if len(events) < pageSize {
			return report, nil
		}
	}
}

// Check verifies evt directly follows the event with prevSeq and prevHash.
func Check(evt *model.ApprovalEvent, prevSeq int64, prevHash string) error {
	if evt.Seq != prevSeq+1 {
		return fmt.Errorf("event %d: expected sequence %d", evt.Seq, prevSeq+1)
	}
	return evt.Verify(prevHash)
}

// VerifyChain checks a contiguous slice of events starting at the log head.
func VerifyChain(events []*model.ApprovalEvent) error {
	var seq int64
	var hash string
	for _, evt := range events {
		if err := Check(evt, seq, hash); err != nil {
			return err
		}
		seq, hash = evt.Seq, evt.Hash
	}
	return nil
}
