// Package session owns per-user device sessions and the device-limit invariant.
//
// # Components
//
//   - [Store]: persistence contract keyed by (userID, deviceID). Implementations:
//     [RedisStore] (Lua admission, cluster-safe hash tags), [MemoryStore] (mutex-guarded
//     double for tests and single-process tools) and the Postgres store in session/postgres.
//   - [Manager]: the decision layer: ValidateLogin, AddSession, RemoveSession,
//     GetUserActiveSessions.
//   - [ClientIdentifierProvider]: injected capability that yields the caller's device ID.
//
// # Invariant
//
// For any user, the number of active sessions never exceeds the plan's MaxDevices.
// Admission (count + insert/reactivate) is one atomic store operation so concurrent logins
// for the same user cannot both take the last slot.
//
// # What this package must NOT do
//
//   - Generate or fingerprint device identifiers.
//   - Track sessions for unmanaged plans.
//   - Import authcore.
package session
