package rate

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Result is the outcome of a single [Limiter.Check].
type Result struct {
	Allowed   bool
	Remaining int
	// ResetAt is when the oldest in-window entry ages out and a slot frees up.
	ResetAt time.Time
	// FailedOpen is set when the store errored and the request was allowed anyway.
	FailedOpen bool
}

// RetryAfter is the wait until ResetAt, zero when allowed.
func (r Result) RetryAfter(now time.Time) time.Duration {
	if r.Allowed || !r.ResetAt.After(now) {
		return 0
	}
	return r.ResetAt.Sub(now)
}

// Option configures a [Limiter].
type Option func(*Limiter)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		if now != nil {
			l.now = now
		}
	}
}

// WithLogger sets the logger used for fail-open warnings.
func WithLogger(logger zerolog.Logger) Option {
	return func(l *Limiter) { l.logger = logger }
}

// WithFailOpenHook registers fn to run on every fail-open decision.
func WithFailOpenHook(fn func(identifier string, err error)) Option {
	return func(l *Limiter) { l.onFailOpen = fn }
}

// WithTimeout bounds each store call. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(l *Limiter) { l.timeout = d }
}

// Limiter enforces sliding-window limits against a shared [Store].
type Limiter struct {
	store      Store
	now        func() time.Time
	logger     zerolog.Logger
	onFailOpen func(identifier string, err error)
	timeout    time.Duration
}

// New creates a [Limiter] on store.
func New(store Store, opts ...Option) *Limiter {
	l := &Limiter{
		store:  store,
		now:    time.Now,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Check records a request for identifier and reports whether it fits within max
// requests per window. The error is non-nil only for invalid arguments or a caller
// context that is already done; store failures fail open.
func (l *Limiter) Check(ctx context.Context, identifier string, window time.Duration, max int) (Result, error) {
	if l == nil {
		return Result{Allowed: true}, nil
	}
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return Result{}, ErrMissingIdentifier
	}
	if window <= 0 || max <= 0 {
		return Result{}, ErrInvalidLimit
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	now := l.now()
	opCtx := ctx
	if l.timeout > 0 {
		var cancel context.CancelFunc
		opCtx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	w, err := l.store.Record(opCtx, identifier, now, window, uuid.NewString())
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		l.logger.Warn().
			Err(err).
			Str("identifier", identifier).
			Dur("window", window).
			Int("max_requests", max).
			Msg("rate limiter store unavailable, failing open")
		if l.onFailOpen != nil {
			l.onFailOpen(identifier, err)
		}
		return Result{
			Allowed:    true,
			Remaining:  max - 1,
			ResetAt:    now.Add(window),
			FailedOpen: true,
		}, nil
	}

	res := Result{
		Allowed: w.Count < max,
		ResetAt: w.Oldest.Add(window),
	}
	if res.Allowed {
		res.Remaining = max - w.Count - 1
	}
	return res, nil
}
