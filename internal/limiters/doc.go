// Package limiters holds the login lockout limiter.
//
// [LockoutLimiter] counts failed attempts per credential identifier and locks the
// identifier for a fixed duration once the threshold is reached. Expiry is lazy: the
// first access at or after LockedUntil sees a fresh state. Backends implement
// [LockStore]; [RedisLockStore] runs the failure transition as one Lua script and
// [MemoryLockStore] serves tests.
//
// All methods are nil-safe: a nil limiter never locks.
//
// # What this package must NOT do
//
//   - Decide what a lock means for the caller. Flow functions build the user-facing result.
//   - Invoke credential checks.
package limiters
