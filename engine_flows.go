package authcore

import (
	"context"

	"github.com/MrEthical07/authcore/internal/flows"
	"github.com/MrEthical07/authcore/internal/limiters"
	"github.com/MrEthical07/authcore/internal/rate"
	"github.com/MrEthical07/authcore/permission"
)

func (e *Engine) buildFlowDeps() flows.Deps {
	emit := flows.EmitAuditFunc(e.emitAudit)
	inc := func(id int) {
		if id >= 0 {
			e.metricInc(MetricID(id))
		}
	}

	auth := flows.AuthenticateDeps{
		Threshold: e.lockout.Threshold(),
		Now:       e.now,
		LoadLockState: func(ctx context.Context, identifier string) (limiters.LockState, error) {
			opCtx, cancel := e.withTimeout(ctx)
			defer cancel()
			return e.lockout.State(opCtx, identifier)
		},
		RecordFailure: func(ctx context.Context, identifier string) (limiters.LockState, error) {
			opCtx, cancel := e.withTimeout(ctx)
			defer cancel()
			return e.lockout.RecordFailure(opCtx, identifier)
		},
		ResetFailures: func(ctx context.Context, identifier string) error {
			opCtx, cancel := e.withTimeout(ctx)
			defer cancel()
			return e.lockout.Reset(opCtx, identifier)
		},
		MetricInc: inc,
		EmitAudit: emit,
		Warn:      e.warn,
		Metrics: flows.AuthenticateMetrics{
			Success:      int(MetricLoginSuccess),
			Failure:      int(MetricLoginInvalidCredentials),
			LockedReject: int(MetricLoginLockedReject),
			LockEngaged:  int(MetricAccountLocked),
		},
		Events: flows.AuthenticateEvents{
			Success:      auditEventAuthenticated,
			Failure:      auditEventLoginFailure,
			LockedReject: auditEventLoginLocked,
			LockEngaged:  auditEventAccountLocked,
		},
		Errors: flows.AuthenticateErrors{
			EngineNotReady:     ErrEngineNotReady,
			MissingIdentifier:  ErrMissingIdentifier,
			StoreUnavailable:   ErrStoreUnavailable,
			AccountLocked:      ErrAccountLocked,
			InvalidCredentials: ErrInvalidCredentials,
		},
	}

	// Login counts success once, on the login itself, so the guard's success counter
	// is suppressed inside the login flow.
	loginAuth := auth
	loginAuth.Metrics.Success = -1

	login := flows.LoginDeps{
		Now: e.now,
		Authenticate: func(ctx context.Context, identifier string, check flows.CredentialCheck) (flows.AuthenticateResult, error) {
			return flows.RunAuthenticate(ctx, identifier, check, loginAuth)
		},
		ValidateLogin:  e.sessions.ValidateLogin,
		AdmitSession:   e.sessions.AdmitSession,
		ListActive:     e.sessions.GetUserActiveSessions,
		ReleaseSession: e.sessions.RemoveSession,
		MetricInc:      inc,
		EmitAudit:      emit,
		Warn:           e.warn,
		Metrics: flows.LoginMetrics{
			Success:            int(MetricLoginSuccess),
			RateLimited:        int(MetricLoginRateLimited),
			DeviceLimit:        int(MetricDeviceLimitReached),
			DeviceLimitRace:    int(MetricDeviceLimitRace),
			SessionCreated:     int(MetricSessionCreated),
			SessionReactivated: int(MetricSessionReactivated),
		},
		Events: flows.LoginEvents{
			Success:     auditEventLoginSuccess,
			RateLimited: auditEventRateLimited,
			DeviceLimit: auditEventDeviceLimit,
		},
		Errors: flows.LoginErrors{
			EngineNotReady:      ErrEngineNotReady,
			MissingUserID:       ErrMissingUserID,
			RateLimited:         ErrLoginRateLimited,
			DeviceLimitExceeded: ErrDeviceLimitExceeded,
		},
	}
	if e.config.RateLimit.Enabled {
		window, max := e.config.RateLimit.Window, e.config.RateLimit.MaxRequests
		login.CheckRate = func(ctx context.Context, key string) (rate.Result, error) {
			return e.limiter.Check(ctx, "login:"+key, window, max)
		}
	}
	if e.tokens != nil {
		login.IssueToken = e.tokens.Issue
	}

	verify := flows.VerifyDeps{
		ListActive: e.sessions.GetUserActiveSessions,
		MetricInc:  inc,
		Metrics: flows.VerifyMetrics{
			Success: int(MetricTokenVerified),
			Invalid: int(MetricTokenInvalid),
			Revoked: int(MetricTokenRevoked),
		},
		Errors: flows.VerifyErrors{
			EngineNotReady: ErrEngineNotReady,
			TokenInvalid:   ErrTokenInvalid,
			SessionRevoked: ErrSessionRevoked,
		},
	}
	if e.tokens != nil {
		verify.ParseToken = e.tokens.Parse
	}

	disconnect := flows.DisconnectDeps{
		Allowed:       e.registry.Allowed,
		RemoveSession: e.sessions.RemoveSession,
		DescribeGrant: func(g permission.Grant) string { return permission.Describe(e.registry, g) },
		MetricInc:     inc,
		EmitAudit:     emit,
		Metrics: flows.DisconnectMetrics{
			Success: int(MetricDeviceDisconnected),
			Denied:  int(MetricDisconnectDenied),
		},
		Events: flows.DisconnectEvents{
			Success: auditEventDeviceDisconnected,
			Denied:  auditEventDisconnectDenied,
		},
		Errors: flows.DisconnectErrors{
			EngineNotReady: ErrEngineNotReady,
			Unauthorized:   ErrUnauthorized,
		},
	}

	return flows.Deps{
		Authenticate: auth,
		Login:        login,
		Verify:       verify,
		Disconnect:   disconnect,
	}
}
