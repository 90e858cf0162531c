package authcore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	internalaudit "github.com/MrEthical07/authcore/internal/audit"
	"github.com/MrEthical07/authcore/internal/flows"
	"github.com/MrEthical07/authcore/internal/limiters"
	"github.com/MrEthical07/authcore/internal/rate"
	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/permission"
	"github.com/MrEthical07/authcore/plan"
	"github.com/MrEthical07/authcore/session"
	"github.com/rs/zerolog"
)

// Engine is the authentication-concurrency core. Build it with [Builder]; all methods
// are safe for concurrent use.
type Engine struct {
	config Config
	logger zerolog.Logger
	now    func() time.Time

	sessions *session.Manager
	lockout  *limiters.LockoutLimiter
	limiter  *rate.Limiter
	tokens   *jwt.Manager

	registry *permission.Registry
	roles    *permission.RoleManager

	audit    *internalaudit.Dispatcher
	metrics  *Metrics
	flowDeps flows.Deps
}

// Login runs one attempt through the request rate limit, the login guard, the device
// limit and session admission, in that order. Denials are reported through
// [LoginResult.Status]; the error is reserved for infrastructure faults and misuse.
func (e *Engine) Login(ctx context.Context, req LoginRequest) (LoginResult, error) {
	if e == nil || e.sessions == nil {
		return LoginResult{}, ErrEngineNotReady
	}

	start := time.Now()
	defer func() {
		e.metrics.Observe(MetricLoginLatency, time.Since(start))
	}()

	rateKey := strings.TrimSpace(req.ClientIP)
	if rateKey == "" {
		rateKey = clientIPFromContext(ctx)
	}
	if req.ClientIP != "" && clientIPFromContext(ctx) == "" {
		ctx = WithClientIP(ctx, req.ClientIP)
	}

	out, err := flows.RunLogin(ctx, flows.LoginInput{
		Identifier: req.Identifier,
		UserID:     req.UserID,
		PlanType:   req.PlanType,
		RateKey:    rateKey,
		Check:      req.Check,
	}, e.flowDeps.Login)
	if err != nil {
		return LoginResult{}, storeErr(err)
	}

	return LoginResult{
		Status:             out.Status,
		Message:            out.Message,
		RemainingAttempts:  out.Authenticate.RemainingAttempts,
		RetryAfter:         out.RetryAfter,
		NeedsDisconnection: out.NeedsDisconnection,
		ActiveSessions:     out.ActiveSessions,
		Policy:             out.Policy,
		Session:            out.Session,
		Reactivated:        out.Reactivated,
		Token:              out.Token,
		TokenExpiresAt:     out.TokenExpiresAt,
	}, nil
}

// Authenticate runs the login guard alone: a locked identifier fails without calling
// check, a success clears the failure count and a failure counts toward the lock.
func (e *Engine) Authenticate(ctx context.Context, identifier string, check CredentialCheck) (AuthenticateResult, error) {
	if e == nil || e.lockout == nil {
		return AuthenticateResult{}, ErrEngineNotReady
	}
	return flows.RunAuthenticate(ctx, identifier, check, e.flowDeps.Authenticate)
}

// ValidateLogin decides, without mutating anything, whether the caller's device may hold
// a session for userID under planType.
func (e *Engine) ValidateLogin(ctx context.Context, userID string, planType plan.Tag) (ValidateResult, error) {
	if e == nil || e.sessions == nil {
		return ValidateResult{}, ErrEngineNotReady
	}
	res, err := e.sessions.ValidateLogin(ctx, userID, planType)
	return res, storeErr(err)
}

// AddSession binds the caller's device to userID, reactivating its previous session if any.
func (e *Engine) AddSession(ctx context.Context, userID string, planType plan.Tag) (Session, error) {
	if e == nil || e.sessions == nil {
		return Session{}, ErrEngineNotReady
	}
	sess, outcome, err := e.sessions.AdmitSession(ctx, userID, planType)
	if err != nil {
		return Session{}, storeErr(err)
	}
	e.countAdmission(outcome)
	return sess, nil
}

// RemoveSession deactivates the session of deviceID. It reports false when nothing
// active matched.
func (e *Engine) RemoveSession(ctx context.Context, userID, deviceID string) (bool, error) {
	if e == nil || e.sessions == nil {
		return false, ErrEngineNotReady
	}
	removed, err := e.sessions.RemoveSession(ctx, userID, deviceID)
	if err != nil {
		return false, storeErr(err)
	}
	if removed {
		e.metricInc(MetricSessionRemoved)
		e.emitAudit(ctx, auditEventSessionRemoved, true, flows.AuditFields{UserID: userID, DeviceID: deviceID}, nil, nil)
	}
	return removed, nil
}

// RemoveAllSessions deactivates every active session of userID and returns how many.
func (e *Engine) RemoveAllSessions(ctx context.Context, userID string) (int, error) {
	if e == nil || e.sessions == nil {
		return 0, ErrEngineNotReady
	}
	n, err := e.sessions.RemoveAllSessions(ctx, userID)
	if err != nil {
		return 0, storeErr(err)
	}
	e.metricInc(MetricSessionRemoveAll)
	e.emitAudit(ctx, auditEventSessionRemoveAll, true, flows.AuditFields{UserID: userID}, nil, func() map[string]string {
		return map[string]string{"removed": fmt.Sprint(n)}
	})
	return n, nil
}

// TouchSession refreshes the last activity of the caller's device session.
func (e *Engine) TouchSession(ctx context.Context, userID string) (bool, error) {
	if e == nil || e.sessions == nil {
		return false, ErrEngineNotReady
	}
	ok, err := e.sessions.TouchSession(ctx, userID)
	if err != nil {
		return false, storeErr(err)
	}
	if ok {
		e.metricInc(MetricSessionTouched)
	}
	return ok, nil
}

// GetUserActiveSessions lists the sessions counting toward userID's device limit.
func (e *Engine) GetUserActiveSessions(ctx context.Context, userID string) ([]Session, error) {
	if e == nil || e.sessions == nil {
		return nil, ErrEngineNotReady
	}
	active, err := e.sessions.GetUserActiveSessions(ctx, userID)
	return active, storeErr(err)
}

// Policy resolves the device policy of planType.
func (e *Engine) Policy(planType plan.Tag) plan.Policy {
	if e == nil || e.sessions == nil {
		return plan.Unmanaged(planType)
	}
	return e.sessions.Policy(planType)
}

// CheckRateLimit records one request for identifier in a sliding window and reports
// whether it fits within maxRequests. Store failures allow the request.
func (e *Engine) CheckRateLimit(ctx context.Context, identifier string, window time.Duration, maxRequests int) (RateLimitResult, error) {
	if e == nil || e.limiter == nil {
		return RateLimitResult{}, ErrEngineNotReady
	}
	res, err := e.limiter.Check(ctx, identifier, window, maxRequests)
	if err != nil {
		return RateLimitResult{}, err
	}
	if !res.Allowed {
		e.emitAudit(ctx, auditEventRateLimited, false, flows.AuditFields{Identifier: identifier}, ErrLoginRateLimited, func() map[string]string {
			return map[string]string{"scope": "custom", "max_requests": fmt.Sprint(maxRequests)}
		})
	}
	return res, nil
}

// LockState returns the effective lock record of identifier.
func (e *Engine) LockState(ctx context.Context, identifier string) (LockState, error) {
	if e == nil || e.lockout == nil {
		return LockState{}, ErrEngineNotReady
	}
	opCtx, cancel := e.withTimeout(ctx)
	defer cancel()
	st, err := e.lockout.State(opCtx, identifier)
	if err != nil {
		return LockState{}, lockErr(err)
	}
	return st, nil
}

// UnlockIdentifier clears the failure count and any lock of identifier.
func (e *Engine) UnlockIdentifier(ctx context.Context, identifier string) error {
	if e == nil || e.lockout == nil {
		return ErrEngineNotReady
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	opCtx, cancel := e.withTimeout(ctx)
	defer cancel()
	if err := e.lockout.Reset(opCtx, identifier); err != nil {
		return lockErr(err)
	}
	e.metricInc(MetricIdentifierUnlocked)
	e.emitAudit(ctx, auditEventIdentifierUnlocked, true, flows.AuditFields{Identifier: identifier}, nil, nil)
	return nil
}

// VerifySessionToken checks a token issued by Login and confirms its session is still
// active. Removing the session revokes the token.
func (e *Engine) VerifySessionToken(ctx context.Context, token string) (VerifiedSession, error) {
	if e == nil || e.sessions == nil {
		return VerifiedSession{}, ErrEngineNotReady
	}
	if e.tokens == nil {
		return VerifiedSession{}, ErrTokensDisabled
	}
	vs, err := flows.RunVerifySession(ctx, token, e.flowDeps.Verify)
	return vs, storeErr(err)
}

// DisconnectDevice removes a device session on behalf of actor, which must hold the
// sessions:revoke permission or the [permission.All] grant.
func (e *Engine) DisconnectDevice(ctx context.Context, actor permission.Grant, userID, deviceID string) (bool, error) {
	if e == nil || e.sessions == nil {
		return false, ErrEngineNotReady
	}
	removed, err := flows.RunDisconnectDevice(ctx, actor, userID, deviceID, e.flowDeps.Disconnect)
	return removed, storeErr(err)
}

// RoleGrant returns the grant of a role registered on the Builder.
func (e *Engine) RoleGrant(role string) (permission.Grant, bool) {
	if e == nil || e.roles == nil {
		return nil, false
	}
	return e.roles.Grant(role)
}

// Permissions returns the permission registry.
func (e *Engine) Permissions() *permission.Registry {
	if e == nil {
		return nil
	}
	return e.registry
}

// Close flushes the audit dispatcher. The Engine must not be used afterwards.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.audit.Close()
}

// Shutdown is Close bounded by ctx. Audit events still buffered when ctx ends keep
// draining in the background.
func (e *Engine) Shutdown(ctx context.Context) error {
	if e == nil {
		return nil
	}
	return e.audit.Shutdown(ctx)
}

// MetricsSnapshot copies the current counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil {
		return MetricsSnapshot{}
	}
	return e.metrics.Snapshot()
}

// AuditDropped returns how many audit events were dropped on a full buffer.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) countAdmission(outcome session.AdmitOutcome) {
	switch outcome {
	case session.AdmitCreated:
		e.metricInc(MetricSessionCreated)
	case session.AdmitReactivated:
		e.metricInc(MetricSessionReactivated)
	}
}

func (e *Engine) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, e.config.Store.OperationTimeout)
}

func (e *Engine) warn(msg string, kv ...any) {
	e.logger.Warn().Fields(kv).Msg(msg)
}

// storeErr maps session backend failures onto ErrStoreUnavailable while keeping the
// session sentinel matchable.
func storeErr(err error) error {
	if err == nil || errors.Is(err, ErrStoreUnavailable) {
		return err
	}
	if errors.Is(err, session.ErrStoreUnavailable) {
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return err
}

func lockErr(err error) error {
	if err == nil || errors.Is(err, ErrStoreUnavailable) {
		return err
	}
	if errors.Is(err, limiters.ErrLockoutUnavailable) {
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	if errors.Is(err, limiters.ErrMissingIdentifier) {
		return ErrMissingIdentifier
	}
	return err
}
