package gate

import (
	"time"

	"github.com/viant/gatekeep/internal/seal"
	"github.com/viant/gatekeep/service/event"
	"github.com/viant/gatekeep/service/redact"
	"go.uber.org/zap"
)

type Option func(s *Service)

// WithRedactor sets the redactor applied to arguments before persistence
func WithRedactor(redactor *redact.Redactor) Option {
	return func(s *Service) {
		if redactor != nil {
			s.redactor = redactor
		}
	}
}

// WithSealer keeps an encrypted copy of raw arguments for later execution
func WithSealer(sealer *seal.Sealer) Option {
	return func(s *Service) { s.sealer = sealer }
}

// WithPublisher sets the publisher notified after each committed decision
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
