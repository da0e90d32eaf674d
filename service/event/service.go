package event

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/viant/afs"
	"github.com/viant/gatekeep/model"
	"github.com/viant/gatekeep/service/messaging"
	"github.com/viant/gatekeep/service/messaging/fs"
	"github.com/viant/gatekeep/service/messaging/memory"
	"go.uber.org/zap"
)

// Config selects the queue vendor backing event fan-out.
type Config struct {
	Vendor     messaging.Vendor `json:"vendor,omitempty" yaml:"vendor,omitempty"`
	Buffer     int              `json:"buffer,omitempty" yaml:"buffer,omitempty"`
	Path       string           `json:"path,omitempty" yaml:"path,omitempty"`
	MaxRetries int              `json:"maxRetries,omitempty" yaml:"maxRetries,omitempty"`
}

// DefaultConfig returns an in-memory configuration.
func DefaultConfig() *Config {
	return &Config{Vendor: messaging.VendorMemory, Buffer: 1024, MaxRetries: 3}
}

// Service owns the event queue, its publisher and at most one listener.
type Service struct {
	config    *Config
	fs        afs.Service
	custom    messaging.Queue[model.ApprovalEvent]
	logger    *zap.Logger
	publisher *Publisher
	listener  *Listener
	mux       sync.Mutex
}

// New creates the queue for config.Vendor.
func New(ctx context.Context, config *Config, opts ...Option) (*Service, error) {
	if config == nil {
		config = DefaultConfig()
	}
	ret := &Service{config: config, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(ret)
	}
	queue, err := ret.queue(ctx)
	if err != nil {
		return nil, err
	}
	ret.publisher = NewPublisher(queue, ret.logger)
	return ret, nil
}

func (s *Service) queue(ctx context.Context) (messaging.Queue[model.ApprovalEvent], error) {
	if s.custom != nil {
		return s.custom, nil
	}
	switch s.config.Vendor {
	case "", messaging.VendorMemory:
		return memory.NewQueue[model.ApprovalEvent](memory.Config{
			MaxRetries:   s.config.MaxRetries,
			RetryDelay:   100 * time.Millisecond,
			QueueBuffer:  s.config.Buffer,
			DropWhenFull: true,
		}), nil
	case messaging.VendorFS:
		if s.fs == nil {
			s.fs = afs.New()
		}
		config := fs.DefaultConfig()
		config.MaxRetries = s.config.MaxRetries
		if s.config.Path != "" {
			config.BasePath = s.config.Path
		}
		return fs.NewQueue[model.ApprovalEvent](ctx, s.fs, config)
	}
	return nil, fmt.Errorf("unsupported queue vendor: %s", s.config.Vendor)
}

// Publisher returns the post-commit publisher.
func (s *Service) Publisher() *Publisher {
	return s.publisher
}

// SetListener replaces the running listener with one calling handler.
func (s *Service) SetListener(ctx context.Context, handler Handler) {
	s.mux.Lock()
	defer s.mux.Unlock()
	if s.listener != nil {
		s.listener.Stop()
	}
	s.listener = NewListener(s.publisher, handler, s.logger)
	s.listener.Start(ctx)
}

// Close stops the listener.
func (s *Service) Close() {
	s.mux.Lock()
	defer s.mux.Unlock()
	if s.listener != nil {
		s.listener.Stop()
		s.listener = nil
	}
}
