package flows

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/authcore/internal/limiters"
)

// AuthenticateResult is the flow-local login guard response.
type AuthenticateResult struct {
	Success           bool
	Message           string
	RemainingAttempts int
	Locked            bool
	RetryAfter        time.Duration
}

// CredentialCheck verifies the credentials presented with a login attempt.
type CredentialCheck func(ctx context.Context) (bool, error)

// AuthenticateMetrics carries metric IDs used by the guard.
type AuthenticateMetrics struct {
	Success      int
	Failure      int
	LockedReject int
	LockEngaged  int
}

// AuthenticateEvents carries audit event names used by the guard.
type AuthenticateEvents struct {
	Success      string
	Failure      string
	LockedReject string
	LockEngaged  string
}

// AuthenticateErrors carries host-level sentinel errors used by the guard.
type AuthenticateErrors struct {
	EngineNotReady     error
	MissingIdentifier  error
	StoreUnavailable   error
	AccountLocked      error
	InvalidCredentials error
}

// AuthenticateDeps captures login guard dependencies.
type AuthenticateDeps struct {
	Threshold int
	Now       func() time.Time

	LoadLockState func(context.Context, string) (limiters.LockState, error)
	RecordFailure func(context.Context, string) (limiters.LockState, error)
	ResetFailures func(context.Context, string) error

	MetricInc func(int)
	EmitAudit EmitAuditFunc
	Warn      func(string, ...any)

	Metrics AuthenticateMetrics
	Events  AuthenticateEvents
	Errors  AuthenticateErrors
}

// RunAuthenticate runs one attempt through the lockout state machine. While a lock is
// in force check is never invoked. Lock-state failures deny by returning an error.
func RunAuthenticate(ctx context.Context, identifier string, check CredentialCheck, deps AuthenticateDeps) (AuthenticateResult, error) {
	deps.Now = orNow(deps.Now)
	if deps.MetricInc == nil {
		deps.MetricInc = noopMetric
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = noopAudit
	}
	if deps.Warn == nil {
		deps.Warn = noopWarn
	}
	if deps.LoadLockState == nil || deps.RecordFailure == nil || deps.ResetFailures == nil || check == nil {
		return AuthenticateResult{}, deps.Errors.EngineNotReady
	}

	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return AuthenticateResult{}, deps.Errors.MissingIdentifier
	}
	fields := AuditFields{Identifier: identifier}

	state, err := deps.LoadLockState(ctx, identifier)
	if err != nil {
		return AuthenticateResult{}, unavailable(deps.Errors.StoreUnavailable, err)
	}

	now := deps.Now()
	if state.Locked(now) {
		retry := state.RetryAfter(now)
		deps.MetricInc(deps.Metrics.LockedReject)
		deps.EmitAudit(ctx, deps.Events.LockedReject, false, fields, deps.Errors.AccountLocked, func() map[string]string {
			return map[string]string{"retry_after_s": fmt.Sprint(seconds(retry))}
		})
		return AuthenticateResult{
			Message:    LockedMessage(retry),
			Locked:     true,
			RetryAfter: retry,
		}, nil
	}

	ok, err := check(ctx)
	if err != nil {
		return AuthenticateResult{}, err
	}
	if err := ctx.Err(); err != nil {
		return AuthenticateResult{}, err
	}

	if ok {
		if err := deps.ResetFailures(ctx, identifier); err != nil {
			deps.Warn("lockout reset failed after successful authentication", "identifier", identifier, "error", err)
		}
		deps.MetricInc(deps.Metrics.Success)
		deps.EmitAudit(ctx, deps.Events.Success, true, fields, nil, nil)
		return AuthenticateResult{
			Success:           true,
			Message:           MessageAuthenticated,
			RemainingAttempts: deps.Threshold,
		}, nil
	}

	state, err = deps.RecordFailure(ctx, identifier)
	if err != nil {
		return AuthenticateResult{}, unavailable(deps.Errors.StoreUnavailable, err)
	}

	remaining := deps.Threshold - state.AttemptCount
	if remaining < 0 {
		remaining = 0
	}
	now = deps.Now()

	if state.Locked(now) {
		retry := state.RetryAfter(now)
		deps.MetricInc(deps.Metrics.Failure)
		deps.MetricInc(deps.Metrics.LockEngaged)
		deps.EmitAudit(ctx, deps.Events.LockEngaged, false, fields, deps.Errors.AccountLocked, func() map[string]string {
			return map[string]string{
				"attempts":      fmt.Sprint(state.AttemptCount),
				"locked_until":  state.LockedUntil.UTC().Format(time.RFC3339),
				"retry_after_s": fmt.Sprint(seconds(retry)),
			}
		})
		return AuthenticateResult{
			Message:    LockedMessage(retry),
			Locked:     true,
			RetryAfter: retry,
		}, nil
	}

	deps.MetricInc(deps.Metrics.Failure)
	deps.EmitAudit(ctx, deps.Events.Failure, false, fields, deps.Errors.InvalidCredentials, func() map[string]string {
		return map[string]string{
			"attempts":  fmt.Sprint(state.AttemptCount),
			"remaining": fmt.Sprint(remaining),
		}
	})
	return AuthenticateResult{
		Message:           InvalidCredentialsMessage(remaining),
		RemainingAttempts: remaining,
	}, nil
}

func unavailable(sentinel, err error) error {
	if sentinel == nil || errors.Is(err, sentinel) {
		return err
	}
	return fmt.Errorf("%w: %v", sentinel, err)
}
