package authcore

import (
	"io"
	"net/http"
	"time"

	internalaudit "github.com/MrEthical07/authcore/internal/audit"
	"github.com/MrEthical07/authcore/internal/flows"
	"github.com/MrEthical07/authcore/internal/limiters"
	internalmetrics "github.com/MrEthical07/authcore/internal/metrics"
	"github.com/MrEthical07/authcore/internal/rate"
	"github.com/MrEthical07/authcore/plan"
	"github.com/MrEthical07/authcore/session"
	"github.com/rs/zerolog"
)

// CredentialCheck verifies the credentials of one login attempt. It is called at most
// once per attempt and never while the identifier is locked.
type CredentialCheck = flows.CredentialCheck

// LoginStatus classifies a [LoginResult].
type LoginStatus = flows.LoginStatus

const (
	// StatusAllowed means the login passed every gate.
	StatusAllowed = flows.StatusAllowed
	// StatusRateLimited means the client exceeded the login request rate.
	StatusRateLimited = flows.StatusRateLimited
	// StatusLocked means the identifier is locked after repeated failures.
	StatusLocked = flows.StatusLocked
	// StatusInvalidCredentials means the credential check failed.
	StatusInvalidCredentials = flows.StatusInvalidCredentials
	// StatusDeviceLimit means the plan has no free device slot.
	StatusDeviceLimit = flows.StatusDeviceLimit
)

// LoginRequest is one login attempt.
type LoginRequest struct {
	// Identifier is the credential identifier (email, username) the lockout is keyed by.
	Identifier string
	// UserID is the account the identifier resolves to.
	UserID   string
	PlanType plan.Tag
	// ClientIP keys the request rate limit. Empty falls back to [WithClientIP], then
	// to Identifier.
	ClientIP string
	Check    CredentialCheck
}

// LoginResult is the outcome of [Engine.Login]. Business denials are reported here,
// never as errors.
type LoginResult struct {
	Status            LoginStatus
	Message           string
	RemainingAttempts int
	RetryAfter        time.Duration

	// NeedsDisconnection is set with StatusDeviceLimit; ActiveSessions then lists the
	// devices the user may disconnect.
	NeedsDisconnection bool
	ActiveSessions     []Session
	Policy             plan.Policy

	// Session is nil for unmanaged plans and denied logins.
	Session        *Session
	Reactivated    bool
	Token          string
	TokenExpiresAt time.Time
}

// Allowed reports whether the login succeeded.
func (r LoginResult) Allowed() bool {
	return r.Status == StatusAllowed
}

// HTTPStatus maps the outcome to the status code a login handler should answer with.
func (r LoginResult) HTTPStatus() int {
	switch r.Status {
	case StatusAllowed:
		return http.StatusOK
	case StatusRateLimited:
		return http.StatusTooManyRequests
	case StatusInvalidCredentials:
		return http.StatusUnauthorized
	case StatusLocked, StatusDeviceLimit:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// AuthenticateResult is the outcome of [Engine.Authenticate].
type AuthenticateResult = flows.AuthenticateResult

// ValidateResult is the outcome of [Engine.ValidateLogin].
type ValidateResult = session.ValidateResult

// Session is one device session.
type Session = session.Session

// LockState is the lockout record of one credential identifier.
type LockState = limiters.LockState

// RateLimitResult is the outcome of [Engine.CheckRateLimit].
type RateLimitResult = rate.Result

// VerifiedSession is the identity behind a valid, still-active session token.
type VerifiedSession = flows.VerifiedSession

// AuditEvent is one security audit record.
type AuditEvent = internalaudit.Event

// AuditSink receives audit events from the dispatcher goroutine.
type AuditSink = internalaudit.Sink

// NoOpSink discards audit events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink forwards audit events to a buffered channel.
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink writes audit events as JSON lines.
type JSONWriterSink = internalaudit.JSONWriterSink

// LogSink writes audit events through zerolog.
type LogSink = internalaudit.LogSink

// MultiSink fans audit events out to several sinks.
type MultiSink = internalaudit.MultiSink

// NewChannelSink creates a [ChannelSink] with the given buffer.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a [JSONWriterSink] on w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

// NewLogSink creates a [LogSink] on logger.
func NewLogSink(logger zerolog.Logger) *LogSink {
	return internalaudit.NewLogSink(logger)
}

// MetricID identifies one engine counter.
type MetricID = internalmetrics.MetricID

const (
	MetricLoginSuccess            = internalmetrics.MetricLoginSuccess
	MetricLoginInvalidCredentials = internalmetrics.MetricLoginInvalidCredentials
	MetricLoginLockedReject       = internalmetrics.MetricLoginLockedReject
	MetricAccountLocked           = internalmetrics.MetricAccountLocked
	MetricLoginRateLimited        = internalmetrics.MetricLoginRateLimited
	MetricRateLimiterFailOpen     = internalmetrics.MetricRateLimiterFailOpen
	MetricDeviceLimitReached      = internalmetrics.MetricDeviceLimitReached
	MetricDeviceLimitRace         = internalmetrics.MetricDeviceLimitRace
	MetricSessionCreated          = internalmetrics.MetricSessionCreated
	MetricSessionReactivated      = internalmetrics.MetricSessionReactivated
	MetricSessionRemoved          = internalmetrics.MetricSessionRemoved
	MetricSessionRemoveAll        = internalmetrics.MetricSessionRemoveAll
	MetricSessionTouched          = internalmetrics.MetricSessionTouched
	MetricTokenVerified           = internalmetrics.MetricTokenVerified
	MetricTokenInvalid            = internalmetrics.MetricTokenInvalid
	MetricTokenRevoked            = internalmetrics.MetricTokenRevoked
	MetricDeviceDisconnected      = internalmetrics.MetricDeviceDisconnected
	MetricDisconnectDenied        = internalmetrics.MetricDisconnectDenied
	MetricIdentifierUnlocked      = internalmetrics.MetricIdentifierUnlocked
	MetricLoginLatency            = internalmetrics.MetricLoginLatency
)

// HistBucketCount is the number of login latency buckets, +Inf included.
const HistBucketCount = internalmetrics.HistBucketCount

// Metrics is the engine's lock-free counter set.
type Metrics = internalmetrics.Metrics

// MetricsSnapshot is a point-in-time copy of [Metrics].
type MetricsSnapshot = internalmetrics.Snapshot

// NewMetrics creates a counter set from cfg.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return internalmetrics.New(internalmetrics.Config{
		Enabled:                 cfg.Enabled,
		EnableLatencyHistograms: cfg.EnableLatencyHistograms,
	})
}
