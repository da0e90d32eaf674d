// Package sweeper expires pending actions whose TTL has passed. It runs on a
// fixed interval, decoupled from request handling, and relies on the
// coordinator's conditional transition so an action decided concurrently is
// never expired.
package sweeper

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/viant/gatekeep/internal/clock"
	"github.com/viant/gatekeep/model"
	"github.com/viant/gatekeep/service/approval"
	"github.com/viant/gatekeep/service/dao"
	"go.uber.org/zap"
)

// Reason is recorded on every expiry made by the sweeper.
const Reason = "ttl exceeded"

// Config represents sweeper configuration
type Config struct {
	// Interval is how often overdue actions are looked up
	Interval time.Duration `json:"interval,omitempty" yaml:"interval,omitempty"`
}

// DefaultConfig returns the default sweeper configuration
func DefaultConfig() Config {
	return Config{Interval: time.Minute}
}

// Service expires overdue pending actions
type Service struct {
	config      Config
	store       dao.Store
	coordinator *approval.Service
	logger      *zap.Logger
	now         func() time.Time
	shutdownCh  chan struct{}
	stopOnce    sync.Once
}

type Option func(s *Service)

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithNow overrides the time source used by Start
func WithNow(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates a sweeper
func New(store dao.Store, coordinator *approval.Service, config Config, opts ...Option) *Service {
	if config.Interval <= 0 {
		config.Interval = DefaultConfig().Interval
	}
	ret := &Service{
		config:      config,
		store:       store,
		coordinator: coordinator,
		logger:      zap.NewNop(),
		now:         clock.Now,
		shutdownCh:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

// Sweep expires every pending action with expires_at before now and returns
// how many transitions it made. Actions decided concurrently are skipped.
func (s *Service) Sweep(ctx context.Context, now time.Time) (int, error) {
	actions, err := s.store.ListActions(ctx, dao.WithStatus(model.StatusPending), dao.WithExpiresBefore(now))
	if err != nil {
		return 0, err
	}
	count := 0
	var errs []error
	for _, action := range actions {
		if !action.IsOverdue(now) {
			continue
		}
		if err = ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		_, err = s.coordinator.ExpireOverdue(ctx, action.ID, Reason)
		switch {
		case err == nil:
			count++
		case errors.Is(err, model.ErrAlreadyDecided):
		default:
			errs = append(errs, err)
		}
	}
	return count, errors.Join(errs...)
}

// Start runs Sweep every interval until ctx is done or Stop is called.
func (s *Service) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.shutdownCh:
			return nil
		case <-ticker.C:
			count, err := s.Sweep(ctx, s.now())
			if err != nil {
				s.logger.Warn("sweep failed", zap.Int("expired", count), zap.Error(err))
				continue
			}
			if count > 0 {
				s.logger.Info("expired pending actions", zap.Int("expired", count))
			}
		}
	}
}

// Stop ends a running Start loop
func (s *Service) Stop() {
	s.stopOnce.Do(func() { close(s.shutdownCh) })
}
