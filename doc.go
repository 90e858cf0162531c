// Package authcore decides whether a login may proceed on a subscription streaming
// platform: how many devices a subscriber may hold at once, how repeated failed logins
// are locked out, and how request rates are bounded against a shared store.
//
// The package is designed for concurrent server workloads: Engine methods are safe to call
// from multiple goroutines after initialization through [Builder.Build].
//
// # Architecture boundaries
//
// authcore is the public surface. It exposes [Engine], [Builder], [Config] and result
// types ([LoginResult], [AuthenticateResult], [ValidateResult]). Flow orchestration,
// lock state, sliding-window limiting and audit dispatch live under internal/.
// Device sessions live in the session package so alternative stores (Postgres) can
// plug in.
//
// # What this package must NOT do
//
//   - Render pages, set cookies or route HTTP. [LoginResult.HTTPStatus] is the only
//     transport hint it produces.
//   - Perform I/O outside of Engine methods (construction via Builder is allocation-only
//     until Build).
//   - Keep process-wide mutable state. Every counter lives in an injected store.
package authcore
