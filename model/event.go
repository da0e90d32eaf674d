package model

import (
	"encoding/hex"
	"fmt"
	"time"

	"golang.org/x/crypto/blake2b"
)

// EventType names the transition an ApprovalEvent describes.
type EventType string

const (
	EventHeld          EventType = "held"
	EventPassedThrough EventType = "passed_through"
	EventAutoApproved  EventType = "auto_approved"
	EventApproved      EventType = "approved"
	EventRejected      EventType = "rejected"
	EventExpired       EventType = "expired"
	EventExecuted      EventType = "executed"
	EventRuleCreated   EventType = "rule_created"
	EventRuleRevoked   EventType = "rule_revoked"
	EventRuleRejected  EventType = "rule_rejected"
)

// DecisionEventType maps a decision status to its event type.
func DecisionEventType(status Status) EventType {
	switch status {
	case StatusApproved:
		return EventApproved
	case StatusRejected:
		return EventRejected
	case StatusExpired:
		return EventExpired
	case StatusExecuted:
		return EventExecuted
	}
	return EventType(status)
}

// ApprovalEvent is an immutable audit record of exactly one transition.
// Seq, PrevHash and Hash are assigned by the store on insert.
type ApprovalEvent struct {
	Seq        int64                  `json:"seq"`
	ID         string                 `json:"id"`
	ActionID   string                 `json:"actionId,omitempty"`
	RuleID     string                 `json:"ruleId,omitempty"`
	Type       EventType              `json:"eventType"`
	Actor      string                 `json:"actor"`
	Reason     string                 `json:"reason,omitempty"`
	Payload    map[string]interface{} `json:"payload,omitempty"`
	OccurredAt time.Time              `json:"occurredAt"`
	PrevHash   string                 `json:"prevHash,omitempty"`
	Hash       string                 `json:"hash,omitempty"`
}

type eventDigest struct {
	Seq        int64                  `json:"seq"`
	ID         string                 `json:"id"`
	ActionID   string                 `json:"actionId"`
	RuleID     string                 `json:"ruleId"`
	Type       EventType              `json:"eventType"`
	Actor      string                 `json:"actor"`
	Reason     string                 `json:"reason"`
	Payload    map[string]interface{} `json:"payload"`
	OccurredAt int64                  `json:"occurredAt"`
	PrevHash   string                 `json:"prevHash"`
}

// Digest computes the chained BLAKE2b-256 hash of the event.
func (e *ApprovalEvent) Digest() (string, error) {
	data, err := CanonicalJSON(&eventDigest{
		Seq:        e.Seq,
		ID:         e.ID,
		ActionID:   e.ActionID,
		RuleID:     e.RuleID,
		Type:       e.Type,
		Actor:      e.Actor,
		Reason:     e.Reason,
		Payload:    e.Payload,
		OccurredAt: e.OccurredAt.UnixNano(),
		PrevHash:   e.PrevHash,
	})
	if err != nil {
		return "", fmt.Errorf("digest event %s: %w", e.ID, err)
	}
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Seal assigns the sequence and links the event to its predecessor.
func (e *ApprovalEvent) Seal(seq int64, prevHash string) error {
	payload, err := CanonicalDocument(e.Payload)
	if err != nil {
		return fmt.Errorf("seal event %s: %w", e.ID, err)
	}
	e.Payload = payload
	e.Seq = seq
	e.PrevHash = prevHash
	e.Hash, err = e.Digest()
	return err
}

// Verify checks the event hash and its link to the predecessor hash.
func (e *ApprovalEvent) Verify(prevHash string) error {
	if e.PrevHash != prevHash {
		return fmt.Errorf("event %d: broken chain link", e.Seq)
	}
	digest, err := e.Digest()
	if err != nil {
		return err
	}
	if digest != e.Hash {
		return fmt.Errorf("event %d: hash mismatch", e.Seq)
	}
	return nil
}
