// Package flows contains pure-function orchestrators for every Engine operation.
//
// Each flow function (RunLogin, RunAuthenticate, RunVerifySession, RunDisconnectDevice)
// accepts a typed dependency struct and returns results without side-effects beyond
// those dependencies. The Engine stays thin and the flows are tested with fakes.
//
// # Architecture boundaries
//
// Flow functions coordinate calls to the session manager, lock state, rate limiter,
// token manager, audit dispatcher and metrics. They do NOT own any of these resources.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import authcore (to avoid import cycles).
//   - Perform I/O directly. All I/O is mediated through dependency functions.
package flows
