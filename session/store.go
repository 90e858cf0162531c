package session

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/authcore/plan"
)

var (
	// ErrStoreUnavailable wraps infrastructure failures from a session backend.
	ErrStoreUnavailable = errors.New("session store unavailable")
	// ErrDeviceLimitExceeded is returned by admission when every device slot is taken.
	ErrDeviceLimitExceeded = errors.New("device limit exceeded")
	// ErrUnmanagedPlan is returned when a caller asks to track a session for a plan
	// without a device-limit policy.
	ErrUnmanagedPlan = errors.New("plan has no device-limit policy")
	// ErrMissingDeviceID is returned when no device identifier is available for the caller.
	ErrMissingDeviceID = errors.New("missing device identifier")
	// ErrMissingUserID is returned when userID is empty.
	ErrMissingUserID = errors.New("missing user identifier")
)

// AdmitOutcome describes what an admission did to the (userID, deviceID) row.
type AdmitOutcome uint8

const (
	// AdmitCreated inserted a new session row.
	AdmitCreated AdmitOutcome = iota + 1
	// AdmitReactivated flipped an inactive row back to active.
	AdmitReactivated
	// AdmitRefreshed touched a row that was already active.
	AdmitRefreshed
)

func (o AdmitOutcome) String() string {
	switch o {
	case AdmitCreated:
		return "created"
	case AdmitReactivated:
		return "reactivated"
	case AdmitRefreshed:
		return "refreshed"
	default:
		return "unknown"
	}
}

// Admission is the input of [Store.Admit].
type Admission struct {
	UserID     string
	DeviceID   string
	PlanType   plan.Tag
	MaxDevices int
	// SessionID is used only when a new row is created; reactivation keeps the stored ID.
	SessionID   string
	Now         time.Time
	IdleTimeout time.Duration
}

// Store persists device sessions. Every method must be safe for concurrent use and
// Admit must be atomic with respect to other Admit calls for the same user.
type Store interface {
	// Admit reactivates, refreshes or creates the (UserID, DeviceID) session if doing so
	// keeps active sessions within MaxDevices. Active sessions of other devices that are
	// idle past IdleTimeout are deactivated first. Returns ErrDeviceLimitExceeded when no
	// slot is free.
	Admit(ctx context.Context, a Admission) (Session, AdmitOutcome, error)

	// ActiveSessions returns the user's active sessions in no particular order.
	ActiveSessions(ctx context.Context, userID string) ([]Session, error)

	// Sessions returns every stored session for the user, active or not.
	Sessions(ctx context.Context, userID string) ([]Session, error)

	// Deactivate marks the session inactive. It reports false when no active session matched.
	Deactivate(ctx context.Context, userID, deviceID string) (bool, error)

	// DeactivateAll deactivates every active session of the user and returns how many changed.
	DeactivateAll(ctx context.Context, userID string) (int, error)

	// Touch refreshes LastActivity of an active session. It reports false when none matched.
	Touch(ctx context.Context, userID, deviceID string, now time.Time) (bool, error)
}
