package flows

import (
	"context"
	"strings"

	"github.com/MrEthical07/authcore/permission"
)

// PermissionRevokeSessions is the permission required to disconnect a device.
const PermissionRevokeSessions = "sessions:revoke"

// DisconnectMetrics carries metric IDs used by forced disconnects.
type DisconnectMetrics struct {
	Success int
	Denied  int
}

// DisconnectEvents carries audit event names used by forced disconnects.
type DisconnectEvents struct {
	Success string
	Denied  string
}

// DisconnectErrors carries host-level sentinel errors used by forced disconnects.
type DisconnectErrors struct {
	EngineNotReady error
	Unauthorized   error
}

// DisconnectDeps captures forced-disconnect dependencies.
type DisconnectDeps struct {
	Allowed       func(g permission.Grant, name string) (bool, error)
	RemoveSession func(ctx context.Context, userID, deviceID string) (bool, error)
	// DescribeGrant renders the actor's grant into denial audit metadata. Optional.
	DescribeGrant func(g permission.Grant) string

	MetricInc func(int)
	EmitAudit EmitAuditFunc

	Metrics DisconnectMetrics
	Events  DisconnectEvents
	Errors  DisconnectErrors
}

// RunDisconnectDevice removes the session of deviceID on behalf of actor. actor must
// hold [PermissionRevokeSessions]. It reports whether an active session was removed.
func RunDisconnectDevice(ctx context.Context, actor permission.Grant, userID, deviceID string, deps DisconnectDeps) (bool, error) {
	if deps.MetricInc == nil {
		deps.MetricInc = noopMetric
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = noopAudit
	}
	if deps.Allowed == nil || deps.RemoveSession == nil {
		return false, deps.Errors.EngineNotReady
	}

	fields := AuditFields{UserID: strings.TrimSpace(userID), DeviceID: strings.TrimSpace(deviceID)}
	deny := func() (bool, error) {
		deps.MetricInc(deps.Metrics.Denied)
		var meta func() map[string]string
		if deps.DescribeGrant != nil {
			meta = func() map[string]string {
				return map[string]string{"grant": deps.DescribeGrant(actor), "required": PermissionRevokeSessions}
			}
		}
		deps.EmitAudit(ctx, deps.Events.Denied, false, fields, deps.Errors.Unauthorized, meta)
		return false, deps.Errors.Unauthorized
	}

	if actor == nil {
		return deny()
	}
	ok, err := deps.Allowed(actor, PermissionRevokeSessions)
	if err != nil {
		return false, err
	}
	if !ok {
		return deny()
	}

	removed, err := deps.RemoveSession(ctx, userID, deviceID)
	if err != nil {
		return false, err
	}
	if removed {
		deps.MetricInc(deps.Metrics.Success)
	}
	deps.EmitAudit(ctx, deps.Events.Success, true, fields, nil, func() map[string]string {
		if removed {
			return map[string]string{"removed": "true"}
		}
		return map[string]string{"removed": "false"}
	})
	return removed, nil
}
