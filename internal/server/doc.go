// Package server implements the per-client connection layer: a local
// stream socket listener, a per-connection state machine
// (NonAuthenticated -> Authenticated -> Selected -> LoggingOut),
// cooperative frame-at-a-time command dispatch, the idle timer, and
// deadlock-retried handler invocation.
//
// Two goroutines serve each connection: one blocks in wire.ReadFrame
// and dispatches commands, the other drains a subscription's
// notification channel once CreateSubscription opens one. A write
// mutex serializes both onto the same net.Conn; a true single-goroutine
// event loop multiplexing socket read, socket write back-pressure, and
// asynchronous notification delivery would need a hand-rolled reactor,
// whereas a second goroutine plus a mutex is the standard Go idiom for
// duplex connections. Ordering guarantees (one subscriber sees a single
// commit's notifications contiguously, before any later commit's) hold
// because notify.Bus delivers one batch at a time per subscriber and
// the notifier goroutine writes a whole batch before reading the next.
package server
