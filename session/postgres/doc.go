// Package postgres implements a durable session.Store on PostgreSQL.
//
// Admission runs in one transaction guarded by a transaction-scoped advisory lock on
// the user ID, so concurrent logins of the same user serialize while other users
// proceed in parallel. The schema ships as embedded goose migrations; call [Migrate]
// before first use.
package postgres
