// Package gatekeep provides an approval gate and standing rule engine for
// designated operations, typically tool calls issued by an automated agent.
//
// Every call passes through the gate, which either lets it through, clears it
// with a matching standing rule or holds it for a human decision. All state
// changes are conditional updates in one store and each one leaves exactly one
// hash-chained audit event behind.
//
// The root package exposes the Service façade:
//
//	srv, _ := gatekeep.New(ctx,
//		gatekeep.WithConfig(config),
//		gatekeep.WithOperation("send_message", sendMessage))
//	outcome, _ := srv.Invoke(ctx, &gate.Call{Operation: "send_message", Arguments: args, Actor: "agent"})
//	if !outcome.Decision.Cleared() {
//		// wait for srv.Approve, then srv.Execute
//	}
//
// For more details see the individual sub-packages.
package gatekeep
