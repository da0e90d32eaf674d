package idgen

import "github.com/google/uuid"

// NewFunc returns a new time-sortable identifier. Override in tests.
var NewFunc = func() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}

func New() string { return NewFunc() }
