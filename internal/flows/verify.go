package flows

import (
	"context"
	"fmt"
	"time"

	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/session"
)

// VerifiedSession is the identity carried by a valid device-session token whose
// session is still active.
type VerifiedSession struct {
	UserID    string
	DeviceID  string
	SessionID string
	Plan      string
	ExpiresAt time.Time
}

// VerifyMetrics carries metric IDs used by token verification.
type VerifyMetrics struct {
	Success int
	Invalid int
	Revoked int
}

// VerifyErrors carries host-level sentinel errors used by token verification.
type VerifyErrors struct {
	EngineNotReady error
	TokenInvalid   error
	SessionRevoked error
}

// VerifyDeps captures token verification dependencies.
type VerifyDeps struct {
	ParseToken func(token string) (*jwt.SessionClaims, error)
	ListActive func(ctx context.Context, userID string) ([]session.Session, error)

	MetricInc func(int)

	Metrics VerifyMetrics
	Errors  VerifyErrors
}

// RunVerifySession parses token and confirms the session it names is still active for
// the same device. A removed or replaced session revokes the token immediately.
// Session read failures are returned as-is so the caller denies.
func RunVerifySession(ctx context.Context, token string, deps VerifyDeps) (VerifiedSession, error) {
	if deps.MetricInc == nil {
		deps.MetricInc = noopMetric
	}
	if deps.ParseToken == nil || deps.ListActive == nil {
		return VerifiedSession{}, deps.Errors.EngineNotReady
	}

	claims, err := deps.ParseToken(token)
	if err != nil {
		deps.MetricInc(deps.Metrics.Invalid)
		return VerifiedSession{}, fmt.Errorf("%w: %v", deps.Errors.TokenInvalid, err)
	}

	active, err := deps.ListActive(ctx, claims.UserID())
	if err != nil {
		return VerifiedSession{}, err
	}
	for _, sess := range active {
		if sess.DeviceID != claims.DeviceID {
			continue
		}
		if claims.SessionID != "" && sess.SessionID != claims.SessionID {
			break
		}
		deps.MetricInc(deps.Metrics.Success)
		out := VerifiedSession{
			UserID:    claims.UserID(),
			DeviceID:  claims.DeviceID,
			SessionID: sess.SessionID,
			Plan:      claims.Plan,
		}
		if claims.ExpiresAt != nil {
			out.ExpiresAt = claims.ExpiresAt.Time
		}
		return out, nil
	}

	deps.MetricInc(deps.Metrics.Revoked)
	return VerifiedSession{}, deps.Errors.SessionRevoked
}
