package model

import "fmt"

// Status represents the lifecycle state of a pending action.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusExpired  Status = "expired"
	StatusExecuted Status = "executed"
)

// IsValid returns true for a known status.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusExpired, StatusExecuted:
		return true
	}
	return false
}

// IsTerminal returns true once the status has left pending.
func (s Status) IsTerminal() bool {
	return s.IsValid() && s != StatusPending
}

// IsDecision returns true for statuses a decision may move a pending action to.
func (s Status) IsDecision() bool {
	switch s {
	case StatusApproved, StatusRejected, StatusExpired:
		return true
	}
	return false
}

// CanTransition reports whether from -> to is a legal transition.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusPending:
		return to.IsDecision()
	case StatusApproved:
		return to == StatusExecuted
	}
	return false
}

// ParseStatus parses status text.
func ParseStatus(text string) (Status, error) {
	s := Status(text)
	if !s.IsValid() {
		return "", fmt.Errorf("invalid status: %q", text)
	}
	return s, nil
}
