// Package engine executes query plans against federation sources and
// wraps the results in the result envelope.
//
// ARCHITECTURE:
//
// Goroutine per operator:
// Every plan node runs as its own worker goroutine. A service worker pages
// through its endpoint and pushes bindings to its output channel; join,
// left-join, union and filter workers read their children's channels and
// forward combined bindings to their parent. Closing a channel is the
// end-of-stream signal, so a worker finishes once every child channel is
// closed.
//
//	Service ─┐
//	         ├─ Join ─┐
//	Service ─┘        ├─ LeftJoin ── top stage (project, distinct, limit) ── Results()
//	Service ──────────┘
//
// Cancellation:
// Workers are started through a registry of handles. Execution.Cancel
// cancels every outstanding handle; workers stop at their next channel
// operation or remote call and close their output. A LIMIT reached by the
// top stage cancels the execution the same way.
//
// Partial failure:
// A service whose pagination ends in failure closes its stream early and
// records a SourceFailure; sibling workers are unaffected.
//
// Ordering:
// Bindings of one service follow its page order. Union and join output
// order is unspecified.
package engine
