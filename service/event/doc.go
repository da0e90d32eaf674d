// Package event fans committed audit events out to listeners. Publishing
// happens after the store transaction commits and never fails the caller:
// the audit log in the store remains the source of truth.
package event
