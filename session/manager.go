package session

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/MrEthical07/authcore/plan"
	"github.com/google/uuid"
)

const defaultOperationTimeout = 250 * time.Millisecond

// Reasons reported by [Manager.ValidateLogin].
const (
	ReasonUnmanagedPlan = "plan sans limite d'appareils"
	ReasonSameDevice    = "reconnexion depuis le même appareil"
	ReasonSlotAvailable = "appareil autorisé"
	ReasonDeviceLimit   = "limite d'appareils atteinte"
)

// ManagerConfig tunes a [Manager]. Zero values fall back to defaults.
type ManagerConfig struct {
	// OperationTimeout bounds every store call. Default 250ms.
	OperationTimeout time.Duration
	// IdleTimeout evicts active sessions whose LastActivity is older than this.
	// Zero disables idle eviction.
	IdleTimeout time.Duration
	// Now is the clock. Default time.Now.
	Now func() time.Time
	// NewSessionID generates IDs for newly created rows. Default uuid v4.
	NewSessionID func() string
}

// ValidateResult is the outcome of [Manager.ValidateLogin].
type ValidateResult struct {
	CanLogin           bool
	Reason             string
	NeedsDisconnection bool
	ActiveSessions     []Session
	Policy             plan.Policy
	DeviceID           string
}

// Manager enforces the per-plan device limit on top of a [Store].
// It holds no mutable state and is safe for concurrent use.
type Manager struct {
	store   Store
	plans   *plan.Resolver
	devices ClientIdentifierProvider
	cfg     ManagerConfig
}

// NewManager wires a [Manager]. A nil resolver uses [plan.DefaultLimits]; a nil provider
// reads the device identifier from the request context.
func NewManager(store Store, plans *plan.Resolver, devices ClientIdentifierProvider, cfg ManagerConfig) *Manager {
	if plans == nil {
		plans = plan.MustResolver(plan.DefaultLimits())
	}
	if devices == nil {
		devices = ContextProvider{}
	}
	if cfg.OperationTimeout <= 0 {
		cfg.OperationTimeout = defaultOperationTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewSessionID == nil {
		cfg.NewSessionID = func() string { return uuid.NewString() }
	}
	return &Manager{store: store, plans: plans, devices: devices, cfg: cfg}
}

// Policy resolves the device policy for planType.
func (m *Manager) Policy(planType plan.Tag) plan.Policy {
	return m.plans.Resolve(planType)
}

// ValidateLogin decides whether the caller's device may hold a session for userID.
// It never mutates the store; a failed read denies by returning the error.
func (m *Manager) ValidateLogin(ctx context.Context, userID string, planType plan.Tag) (ValidateResult, error) {
	policy := m.plans.Resolve(planType)
	if !policy.Managed() {
		return ValidateResult{CanLogin: true, Reason: ReasonUnmanagedPlan, Policy: policy}, nil
	}
	if strings.TrimSpace(userID) == "" {
		return ValidateResult{}, ErrMissingUserID
	}

	deviceID, err := m.deviceID(ctx)
	if err != nil {
		return ValidateResult{}, err
	}

	active, err := m.GetUserActiveSessions(ctx, userID)
	if err != nil {
		return ValidateResult{}, err
	}

	result := ValidateResult{Policy: policy, DeviceID: deviceID, ActiveSessions: active}
	for _, sess := range active {
		if sess.DeviceID == deviceID {
			result.CanLogin = true
			result.Reason = ReasonSameDevice
			return result, nil
		}
	}

	if policy.Allows(len(active)) {
		result.CanLogin = true
		result.Reason = ReasonSlotAvailable
		return result, nil
	}

	result.Reason = ReasonDeviceLimit
	result.NeedsDisconnection = true
	return result, nil
}

// AddSession binds the caller's device to userID, reactivating an existing row for the
// same device instead of creating a duplicate.
func (m *Manager) AddSession(ctx context.Context, userID string, planType plan.Tag) (Session, error) {
	sess, _, err := m.AdmitSession(ctx, userID, planType)
	return sess, err
}

// AdmitSession is [Manager.AddSession] that also reports what happened to the row.
// It fails with [ErrUnmanagedPlan] for plans without a device policy and with
// [ErrDeviceLimitExceeded] when the last slot was taken concurrently.
func (m *Manager) AdmitSession(ctx context.Context, userID string, planType plan.Tag) (Session, AdmitOutcome, error) {
	policy := m.plans.Resolve(planType)
	if !policy.Managed() {
		return Session{}, 0, ErrUnmanagedPlan
	}
	if strings.TrimSpace(userID) == "" {
		return Session{}, 0, ErrMissingUserID
	}

	deviceID, err := m.deviceID(ctx)
	if err != nil {
		return Session{}, 0, err
	}
	if err := ctx.Err(); err != nil {
		return Session{}, 0, err
	}

	opCtx, cancel := m.withTimeout(ctx)
	defer cancel()

	return m.store.Admit(opCtx, Admission{
		UserID:      userID,
		DeviceID:    deviceID,
		PlanType:    policy.Tag,
		MaxDevices:  policy.MaxDevices,
		SessionID:   m.cfg.NewSessionID(),
		Now:         m.cfg.Now(),
		IdleTimeout: m.cfg.IdleTimeout,
	})
}

// RemoveSession deactivates the session of deviceID. It reports false when no active
// session matched. The freed slot is visible to the next ValidateLogin.
func (m *Manager) RemoveSession(ctx context.Context, userID, deviceID string) (bool, error) {
	if strings.TrimSpace(userID) == "" {
		return false, ErrMissingUserID
	}
	if strings.TrimSpace(deviceID) == "" {
		return false, ErrMissingDeviceID
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	opCtx, cancel := m.withTimeout(ctx)
	defer cancel()
	return m.store.Deactivate(opCtx, userID, deviceID)
}

// RemoveAllSessions deactivates every active session of userID.
func (m *Manager) RemoveAllSessions(ctx context.Context, userID string) (int, error) {
	if strings.TrimSpace(userID) == "" {
		return 0, ErrMissingUserID
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	opCtx, cancel := m.withTimeout(ctx)
	defer cancel()
	return m.store.DeactivateAll(opCtx, userID)
}

// TouchSession refreshes LastActivity of the caller's device session.
func (m *Manager) TouchSession(ctx context.Context, userID string) (bool, error) {
	if strings.TrimSpace(userID) == "" {
		return false, ErrMissingUserID
	}
	deviceID, err := m.deviceID(ctx)
	if err != nil {
		return false, err
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	opCtx, cancel := m.withTimeout(ctx)
	defer cancel()
	return m.store.Touch(opCtx, userID, deviceID, m.cfg.Now())
}

// GetUserActiveSessions lists active sessions of userID ordered by creation time.
// Sessions idle past IdleTimeout are left out; they are deactivated on the next admission.
func (m *Manager) GetUserActiveSessions(ctx context.Context, userID string) ([]Session, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrMissingUserID
	}

	opCtx, cancel := m.withTimeout(ctx)
	defer cancel()

	sessions, err := m.store.ActiveSessions(opCtx, userID)
	if err != nil {
		return nil, err
	}

	now := m.cfg.Now()
	active := sessions[:0]
	for _, sess := range sessions {
		if !sess.IsActive || sess.idle(now, m.cfg.IdleTimeout) {
			continue
		}
		active = append(active, sess)
	}
	sort.Slice(active, func(i, j int) bool {
		if active[i].CreatedAt.Equal(active[j].CreatedAt) {
			return active[i].DeviceID < active[j].DeviceID
		}
		return active[i].CreatedAt.Before(active[j].CreatedAt)
	})
	return active, nil
}

// DeviceID resolves the caller's device identifier through the configured provider.
func (m *Manager) DeviceID(ctx context.Context) (string, error) {
	return m.deviceID(ctx)
}

func (m *Manager) deviceID(ctx context.Context) (string, error) {
	id, err := m.devices.DeviceID(ctx)
	if err != nil {
		return "", err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return "", ErrMissingDeviceID
	}
	return id, nil
}

func (m *Manager) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, m.cfg.OperationTimeout)
}
