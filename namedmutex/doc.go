// Package namedmutex provides a FIFO mutual-exclusion primitive keyed by arbitrary names.
//
// Each name owns a lazily created lock record holding the current grant and a queue of
// waiters. Waiters are granted strictly in arrival order, and the record is removed as soon
// as it is released with nobody waiting, so the table never holds entries for idle names.
//
// # Auto-release
//
// A Mutex built with a positive timeout arms a timer on every grant, including grants that
// transfer ownership to the next waiter. When the timer fires the grant is force-released
// and the next waiter proceeds. The superseded holder is told through Handle.Expired (and,
// inside WithLock, through cancellation of the context passed to the body) but may keep
// running concurrently with the next holder.
//
// This makes Mutex a deduplication lock, not an execution lock: it bounds how long a hung
// holder can block a name and keeps grants fair, but it does not guarantee that two bodies
// never overlap in time once a timeout has elapsed.
//
// # Quick Start
//
//	m := namedmutex.New(30 * time.Second)
//
//	err := m.WithLock(ctx, "refresh_token local", func(ctx context.Context) error {
//	    return refresh(ctx)
//	})
//
// Acquisition only fails when the caller's context ends while it is queued.
package namedmutex
