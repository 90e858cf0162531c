package authcore

import (
	"context"
	"errors"

	internalaudit "github.com/MrEthical07/authcore/internal/audit"
	"github.com/MrEthical07/authcore/internal/flows"
)

const (
	auditEventLoginSuccess       = "login_success"
	auditEventLoginFailure       = "login_failure"
	auditEventLoginLocked        = "login_locked"
	auditEventAccountLocked      = "account_locked"
	auditEventAuthenticated      = "authenticated"
	auditEventRateLimited        = "rate_limit_triggered"
	auditEventDeviceLimit        = "device_limit_reached"
	auditEventSessionRemoved     = "session_removed"
	auditEventSessionRemoveAll   = "session_remove_all"
	auditEventDeviceDisconnected = "device_disconnected"
	auditEventDisconnectDenied   = "device_disconnect_denied"
	auditEventIdentifierUnlocked = "identifier_unlocked"
)

// AuditErrorCode is the stable error code recorded in [AuditEvent.Error].
type AuditErrorCode string

const (
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrAccountLocked      AuditErrorCode = "account_locked"
	auditErrRateLimited        AuditErrorCode = "rate_limited"
	auditErrDeviceLimit        AuditErrorCode = "device_limit_exceeded"
	auditErrUnauthorized       AuditErrorCode = "unauthorized"
	auditErrUnavailable        AuditErrorCode = "backend_unavailable"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	fields flows.AuditFields,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := internalaudit.NewEvent(eventType, e.now())
	event.Identifier = fields.Identifier
	event.UserID = fields.UserID
	event.DeviceID = fields.DeviceID
	event.SessionID = fields.SessionID
	event.IP = clientIPFromContext(ctx)
	event.Success = success
	event.Metadata = metadata
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrAccountLocked):
		return auditErrAccountLocked
	case errors.Is(err, ErrLoginRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrDeviceLimitExceeded):
		return auditErrDeviceLimit
	case errors.Is(err, ErrUnauthorized):
		return auditErrUnauthorized
	case errors.Is(err, ErrStoreUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
