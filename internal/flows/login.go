package flows

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MrEthical07/authcore/internal/rate"
	"github.com/MrEthical07/authcore/plan"
	"github.com/MrEthical07/authcore/session"
)

// LoginStatus classifies a login outcome.
type LoginStatus string

const (
	StatusAllowed            LoginStatus = "allowed"
	StatusRateLimited        LoginStatus = "rate_limited"
	StatusLocked             LoginStatus = "locked"
	StatusInvalidCredentials LoginStatus = "invalid_credentials"
	StatusDeviceLimit        LoginStatus = "device_limit"
)

// LoginInput is one login attempt.
type LoginInput struct {
	Identifier string
	UserID     string
	PlanType   plan.Tag
	// RateKey identifies the client for per-request limiting, usually its IP.
	// Empty falls back to Identifier.
	RateKey string
	Check   CredentialCheck
}

// LoginOutcome is the flow-local login response.
type LoginOutcome struct {
	Status  LoginStatus
	Message string

	Authenticate AuthenticateResult
	RateLimit    rate.Result
	RetryAfter   time.Duration

	NeedsDisconnection bool
	ActiveSessions     []session.Session
	Policy             plan.Policy

	Session        *session.Session
	Reactivated    bool
	Token          string
	TokenExpiresAt time.Time
}

// LoginMetrics carries metric IDs used by the login flow.
type LoginMetrics struct {
	Success            int
	RateLimited        int
	DeviceLimit        int
	DeviceLimitRace    int
	SessionCreated     int
	SessionReactivated int
}

// LoginEvents carries audit event names used by the login flow.
type LoginEvents struct {
	Success     string
	RateLimited string
	DeviceLimit string
}

// LoginErrors carries host-level sentinel errors used by the login flow.
type LoginErrors struct {
	EngineNotReady      error
	MissingUserID       error
	RateLimited         error
	DeviceLimitExceeded error
}

// LoginDeps captures login orchestration dependencies.
type LoginDeps struct {
	Now func() time.Time

	// CheckRate is optional; nil disables request limiting.
	CheckRate     func(ctx context.Context, key string) (rate.Result, error)
	Authenticate  func(ctx context.Context, identifier string, check CredentialCheck) (AuthenticateResult, error)
	ValidateLogin func(ctx context.Context, userID string, planType plan.Tag) (session.ValidateResult, error)
	AdmitSession  func(ctx context.Context, userID string, planType plan.Tag) (session.Session, session.AdmitOutcome, error)
	ListActive    func(ctx context.Context, userID string) ([]session.Session, error)
	// IssueToken is optional; nil skips token issuance.
	IssueToken func(userID, deviceID, sessionID, planType string) (string, time.Time, error)
	// ReleaseSession frees a slot taken by this login when token issuance fails.
	ReleaseSession func(ctx context.Context, userID, deviceID string) (bool, error)

	MetricInc func(int)
	EmitAudit EmitAuditFunc
	Warn      func(string, ...any)

	Metrics LoginMetrics
	Events  LoginEvents
	Errors  LoginErrors
}

// RunLogin executes rate limiting, the login guard, the device check, session admission
// and token issuance in that order. The first two gates short-circuit before any session
// read. Business denials are reported through the outcome status, not the error.
func RunLogin(ctx context.Context, in LoginInput, deps LoginDeps) (LoginOutcome, error) {
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
	if deps.Authenticate == nil || deps.ValidateLogin == nil || deps.AdmitSession == nil {
		return LoginOutcome{}, deps.Errors.EngineNotReady
	}
	if strings.TrimSpace(in.UserID) == "" {
		return LoginOutcome{}, deps.Errors.MissingUserID
	}

	fields := AuditFields{Identifier: strings.TrimSpace(in.Identifier), UserID: in.UserID}

	if deps.CheckRate != nil {
		key := strings.TrimSpace(in.RateKey)
		if key == "" {
			key = fields.Identifier
		}
		res, err := deps.CheckRate(ctx, key)
		if err != nil {
			return LoginOutcome{}, err
		}
		if !res.Allowed {
			retry := res.RetryAfter(deps.Now())
			deps.MetricInc(deps.Metrics.RateLimited)
			deps.EmitAudit(ctx, deps.Events.RateLimited, false, fields, deps.Errors.RateLimited, func() map[string]string {
				return map[string]string{"scope": "login", "key": key}
			})
			return LoginOutcome{
				Status:     StatusRateLimited,
				Message:    RateLimitedMessage(retry),
				RateLimit:  res,
				RetryAfter: retry,
			}, nil
		}
	}

	auth, err := deps.Authenticate(ctx, in.Identifier, in.Check)
	if err != nil {
		return LoginOutcome{}, err
	}
	if !auth.Success {
		out := LoginOutcome{
			Status:       StatusInvalidCredentials,
			Message:      auth.Message,
			Authenticate: auth,
		}
		if auth.Locked {
			out.Status = StatusLocked
			out.RetryAfter = auth.RetryAfter
		}
		return out, nil
	}

	verdict, err := deps.ValidateLogin(ctx, in.UserID, in.PlanType)
	if err != nil {
		return LoginOutcome{}, err
	}
	fields.DeviceID = verdict.DeviceID
	if !verdict.CanLogin {
		return deviceLimit(ctx, deps, fields, auth, verdict.Policy, verdict.ActiveSessions), nil
	}

	out := LoginOutcome{
		Status:       StatusAllowed,
		Message:      MessageWelcome,
		Authenticate: auth,
		Policy:       verdict.Policy,
	}

	if !verdict.Policy.Managed() {
		deps.MetricInc(deps.Metrics.Success)
		deps.EmitAudit(ctx, deps.Events.Success, true, fields, nil, func() map[string]string {
			return map[string]string{"plan": string(in.PlanType), "managed": "false"}
		})
		return out, nil
	}

	sess, outcome, err := deps.AdmitSession(ctx, in.UserID, in.PlanType)
	if err != nil {
		if deps.Errors.DeviceLimitExceeded != nil && errors.Is(err, deps.Errors.DeviceLimitExceeded) {
			deps.MetricInc(deps.Metrics.DeviceLimitRace)
			var active []session.Session
			if deps.ListActive != nil {
				if listed, lerr := deps.ListActive(ctx, in.UserID); lerr == nil {
					active = listed
				} else {
					deps.Warn("listing active sessions after admission race failed", "user_id", in.UserID, "error", lerr)
				}
			}
			return deviceLimit(ctx, deps, fields, auth, verdict.Policy, active), nil
		}
		return LoginOutcome{}, err
	}

	fields.SessionID = sess.SessionID
	switch outcome {
	case session.AdmitCreated:
		deps.MetricInc(deps.Metrics.SessionCreated)
	case session.AdmitReactivated:
		deps.MetricInc(deps.Metrics.SessionReactivated)
		out.Reactivated = true
	}
	out.Session = &sess

	if deps.IssueToken != nil {
		token, exp, err := deps.IssueToken(sess.UserID, sess.DeviceID, sess.SessionID, string(sess.PlanType))
		if err != nil {
			// A refreshed session was active before this attempt and stays so.
			if outcome != session.AdmitRefreshed && deps.ReleaseSession != nil {
				if _, rerr := deps.ReleaseSession(ctx, sess.UserID, sess.DeviceID); rerr != nil {
					deps.Warn("releasing session after token failure failed", "user_id", sess.UserID, "device_id", sess.DeviceID, "error", rerr)
				}
			}
			return LoginOutcome{}, err
		}
		out.Token = token
		out.TokenExpiresAt = exp
	}

	deps.MetricInc(deps.Metrics.Success)
	deps.EmitAudit(ctx, deps.Events.Success, true, fields, nil, func() map[string]string {
		return map[string]string{
			"plan":    string(sess.PlanType),
			"outcome": outcome.String(),
		}
	})
	return out, nil
}

func deviceLimit(ctx context.Context, deps LoginDeps, fields AuditFields, auth AuthenticateResult, policy plan.Policy, active []session.Session) LoginOutcome {
	deps.MetricInc(deps.Metrics.DeviceLimit)
	deps.EmitAudit(ctx, deps.Events.DeviceLimit, false, fields, deps.Errors.DeviceLimitExceeded, func() map[string]string {
		return map[string]string{"plan": string(policy.Tag)}
	})
	return LoginOutcome{
		Status:             StatusDeviceLimit,
		Message:            DeviceLimitMessage(policy, len(active)),
		Authenticate:       auth,
		NeedsDisconnection: true,
		ActiveSessions:     active,
		Policy:             policy,
	}
}
