// Package rate implements the sliding-window rate limiter.
//
// # Window semantics
//
// Each identifier owns a sorted log of request timestamps. A check prunes entries at
// or before now-window, counts what is left, records the current request and refreshes
// the key expiry to the window length. The request is allowed when the count taken
// before recording is below the limit, so an allowed request never leaves more than
// max entries inside the window. Denied requests are recorded too.
//
// Redis keys are "<prefix>:<identifier>" sorted sets; the whole check runs as one Lua
// script.
//
// # Failure policy
//
// The limiter fails open: when the store errors, [Limiter.Check] allows the request,
// logs a warning and sets [Result.FailedOpen].
package rate
