// Package executor runs approved actions against registered operations. It
// claims the action first so only one executor invokes the operation, then
// records the outcome; operation errors and panics become a failed execution
// result instead of propagating to the caller.
package executor
