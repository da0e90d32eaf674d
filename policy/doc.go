// Package policy compiles the gate configuration: which operations are gated,
// which arguments make a call sensitive, which arguments must be redacted and
// how long held actions wait for a decision.
//
// A Policy is immutable once built and is passed to the gate by reference.
package policy
