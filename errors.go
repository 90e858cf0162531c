package authcore

import (
	"errors"

	"github.com/MrEthical07/authcore/session"
)

var (
	// ErrEngineNotReady is returned when the Engine was not built through [Builder.Build].
	ErrEngineNotReady = errors.New("engine not initialized")
	// ErrStoreUnavailable indicates a lock, session or token backend failure. Lock and
	// session reads fail closed with this error.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrMissingIdentifier is returned when a login identifier is empty.
	ErrMissingIdentifier = errors.New("missing login identifier")
	// ErrMissingUserID is returned when a user ID is empty.
	ErrMissingUserID = session.ErrMissingUserID
	// ErrMissingDeviceID is returned when no device identifier could be resolved.
	ErrMissingDeviceID = session.ErrMissingDeviceID
	// ErrUnmanagedPlan is returned by AddSession for plans without a device limit.
	ErrUnmanagedPlan = session.ErrUnmanagedPlan
	// ErrDeviceLimitExceeded is returned by AddSession when the plan has no free slot.
	// Login reports it as [StatusDeviceLimit] instead.
	ErrDeviceLimitExceeded = session.ErrDeviceLimitExceeded
	// ErrAccountLocked matches locked outcomes in audit events and boundary code.
	ErrAccountLocked = errors.New("account locked")
	// ErrInvalidCredentials matches failed credential checks in audit events.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrLoginRateLimited matches rate-limited logins in audit events.
	ErrLoginRateLimited = errors.New("login rate limited")
	// ErrTokenInvalid is returned when a session token fails signature or claim checks.
	ErrTokenInvalid = errors.New("invalid session token")
	// ErrSessionRevoked is returned when a valid token names a session that is no longer active.
	ErrSessionRevoked = errors.New("session revoked")
	// ErrTokensDisabled is returned by token operations when no signing key is configured.
	ErrTokensDisabled = errors.New("session tokens disabled")
	// ErrUnauthorized is returned when an actor lacks the permission for an operation.
	ErrUnauthorized = errors.New("unauthorized")
)
