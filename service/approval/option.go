package approval

import (
	"time"

	"github.com/viant/gatekeep/service/event"
	"github.com/viant/gatekeep/service/redact"
	"go.uber.org/zap"
)

type Option func(s *Service)

// WithRedactor sets the redactor applied to reasons and execution results
func WithRedactor(redactor *redact.Redactor) Option {
	return func(s *Service) {
		if redactor != nil {
			s.redactor = redactor
		}
	}
}

// WithPublisher sets the publisher notified after each committed transition
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

// WithNow overrides the time source
func WithNow(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}
