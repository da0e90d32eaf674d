// Package rule manages standing approval rules: authorship-time risk policy
// validation, creation, revocation, amendment by supersede, derivation from a
// decided action and constraint-narrowing suggestions.
package rule
