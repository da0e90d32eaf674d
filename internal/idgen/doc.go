// Package idgen wraps the UUID generator so that it can be stubbed in tests.
// Identifiers are UUIDv7 strings, so lexical order follows creation time;
// callers should still treat them as opaque.
package idgen
