// Package scheduler runs the periodic work of a registered endpoint.
//
// Three tasks share one context:
//
//   - renewal: every RenewInterval, renew the registration if registered
//   - reporting: every TickInterval, count a tick; once ReportThreshold
//     ticks have accumulated and the session is registered, report a new
//     value and reset the count
//   - shutdown-wait: block until the session is unregistered, then cancel
//     the shared context
//
// The shared context is cancelled only after the shutdown-wait has
// returned, and cancelling interrupts every task's sleep. No task retries.
// A failed session ends Run with ErrSessionFailed.
package scheduler
