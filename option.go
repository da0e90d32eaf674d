package gatekeep

import (
	"time"

	"github.com/viant/afs"
	"github.com/viant/gatekeep/model"
	"github.com/viant/gatekeep/service/dao"
	"github.com/viant/gatekeep/service/event"
	"github.com/viant/gatekeep/service/executor"
	"github.com/viant/gatekeep/service/messaging"
	"github.com/viant/gatekeep/tracing"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
)

// Option represents gatekeep service option
type Option func(s *Service)

// WithConfig sets the configuration; DefaultConfig is used otherwise.
func WithConfig(config *Config) Option {
	return func(s *Service) {
		if config != nil {
			s.config = config
		}
	}
}

// WithStore sets the store, overriding config.Store. The caller keeps
// ownership; Close does not close it.
func WithStore(store dao.Store) Option {
	return func(s *Service) {
		s.store = store
	}
}

// WithLogger sets the logger, overriding config.Log.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithOperation registers the callable run once a call of name is cleared.
func WithOperation(name string, operation executor.Operation) Option {
	return func(s *Service) {
		s.registry.Register(name, operation)
	}
}

// WithExecutionListener sets the listener notified after every execution.
func WithExecutionListener(listener executor.Listener) Option {
	return func(s *Service) {
		s.executionListener = listener
	}
}

// WithEventQueue sets the queue receiving committed audit events.
func WithEventQueue(queue messaging.Queue[model.ApprovalEvent]) Option {
	return func(s *Service) {
		s.eventOptions = append(s.eventOptions, event.WithQueue(queue))
	}
}

// WithEventHandler sets a listener consuming committed audit events.
func WithEventHandler(handler event.Handler) Option {
	return func(s *Service) {
		s.eventHandler = handler
	}
}

// WithFS sets the storage service used by the fs event vendor.
func WithFS(fs afs.Service) Option {
	return func(s *Service) {
		s.eventOptions = append(s.eventOptions, event.WithFS(fs))
	}
}

// WithNow overrides the clock of every component.
func WithNow(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithTracingExporter configures OpenTelemetry tracing using a custom SpanExporter. The first
// successful initialisation wins.
func WithTracingExporter(serviceName, serviceVersion string, exporter sdktrace.SpanExporter) Option {
	return func(s *Service) {
		_ = tracing.InitWithExporter(serviceName, serviceVersion, exporter)
	}
}
