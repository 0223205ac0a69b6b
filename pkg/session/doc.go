// Package session implements the registration lifecycle of an endpoint.
//
// A Session moves through the following states:
//
//	Idle -> Registering -> Registered -> {Updating -> Registered}* -> Unregistering -> Unregistered
//
// Every non-terminal state has an error edge to Failed. Failed and
// Unregistered are terminal: callbacks delivered after a terminal state is
// reached are logged and ignored.
//
// # Outbound and Inbound
//
// The session drives the management protocol through a Registrar
// (Register, Renew, Unregister). The protocol layer drives the session
// back through the inbound methods OnRegistered, OnRenewed, OnUnregistered
// and OnError. Inbound methods are idempotent: a duplicate "registered"
// delivered while already Registered is a no-op.
//
// # Waiting
//
// AwaitRegistered and AwaitUnregistered block on a broadcast channel that
// is closed on every transition. They return true when the success state is
// reached and false as soon as the session fails or ctx is done.
//
// # Operation Timeout
//
// When Config.Timeout is positive, each outbound operation arms a timer.
// If the matching inbound callback has not arrived when it fires, the
// session fails with KindOperationTimeout. Timers carry the generation of
// the operation that armed them, so a timer left over from an earlier
// operation never fails a later one.
//
// # Retry
//
// The session never retries. Backoff is provided for callers that want to
// start a fresh session after a failure.
package session
