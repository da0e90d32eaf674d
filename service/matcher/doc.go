// Package matcher evaluates standing rule constraints against call arguments
// and orders competing rules by a deterministic precedence.
//
// Precedence (highest wins): specificity, bounded scope, recency, rule id.
// The order depends only on persisted rule attributes, so every process
// ranking the same rule set picks the same winner.
package matcher
