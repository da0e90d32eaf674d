// Package approval implements the decision coordinator: the only path by which
// a pending action changes status. Every transition is a conditional write in
// the store, paired with exactly one audit event, so concurrent deciders in
// any number of processes observe a single winner.
package approval
