// Package tracing wraps OpenTelemetry so gate decisions and executions can be
// recorded as spans. Callers only ever attach redacted or structural
// attributes; argument values never reach a span.
package tracing
