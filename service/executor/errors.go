package executor

import "errors"

var (
	ErrOperationNotFound    = errors.New("operation not registered")
	ErrArgumentsUnavailable = errors.New("arguments unavailable")
)
