// Package bridge connects visual block handlers to a single device backend handler.
//
// A Bridge holds one registered Handler and a small table of debounce gates. Block
// handlers never talk to the backend directly: they call one of four entry points and
// always get back a value, never an error.
//
// Entry points:
//   - ClickAndForget / ClickAndAwait: start events ("flag clicked", "sprite clicked"),
//     guarded by the start-click debounce gate
//   - DispatchAndForget / DispatchAndAwait: every other block operation
//
// Sentinel codes:
//   - CodeDispatched (1): sent without waiting, or no handler on the click path
//   - CodeDeclined (0): no handler on the general path
//   - CodeSuppressed (-4): start event arrived while the gate was engaged
//   - CodeFault (-110): the handler panicked or its future was rejected
//
// When waiting succeeds the handler's own resolved value is returned instead of a code.
//
// Concurrency:
//   - The handler slot and the gate table are mutex guarded; the handler is always
//     invoked outside the lock on the caller's goroutine
//   - Fire-and-forget invocations therefore happen in call order, completions do not
//   - Nothing in the bridge times out. An await on a handler that never settles
//     blocks until the caller's context is done
//
// Debounce gates engage on first use and release themselves when their window
// elapses. Gates cannot be reset early.
package bridge
