package event

import (
	"github.com/viant/afs"
	"github.com/viant/gatekeep/model"
	"github.com/viant/gatekeep/service/messaging"
	"go.uber.org/zap"
)

type Option func(s *Service)

// WithLogger sets the logger used for dropped events and handler failures
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithFS sets the storage service used by the fs vendor
func WithFS(fs afs.Service) Option {
	return func(s *Service) {
		s.fs = fs
	}
}

// WithQueue replaces the vendor queue with a caller supplied one
func WithQueue(queue messaging.Queue[model.ApprovalEvent]) Option {
	return func(s *Service) {
		s.custom = queue
	}
}
