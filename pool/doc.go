// Package pool implements the pooled sandbox session manager.
//
// Sandbox environments are expensive to create (seconds), so the pool
// keeps warm sessions around and hands them out to callers whose language
// and library set match. Each language has a bounded bucket; when a bucket
// is full the least recently used session is evicted, and a background
// reaper reclaims sessions that sit idle past a timeout.
//
// The pool never holds its bookkeeping lock across a provider call.
// Session creation follows a two-phase protocol: a capacity slot is
// reserved under the lock, the environment is created unlocked, and the
// result is committed (or the reservation rolled back) under the lock
// again. This keeps concurrent Acquire calls from double-evicting or
// overshooting capacity while slow creations are in flight.
//
// The Dispatcher layers code execution on top: acquire, run with a
// timeout outside any lock, release unconditionally. A run that exceeds
// its timeout destroys the session rather than returning it, because the
// environment may be mid-write when the provider kills the process.
package pool
