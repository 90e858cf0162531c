package flows

import (
	"context"
	"time"
)

// AuditFields identifies who and what an audit event is about.
type AuditFields struct {
	Identifier string
	UserID     string
	DeviceID   string
	SessionID  string
}

// EmitAuditFunc forwards one audit event. meta is evaluated only when auditing is on.
type EmitAuditFunc func(ctx context.Context, eventType string, success bool, fields AuditFields, err error, meta func() map[string]string)

// Deps groups flow dependency sets. Root engine builds this once and delegates
// request methods to the matching flow implementation.
type Deps struct {
	Authenticate AuthenticateDeps
	Login        LoginDeps
	Verify       VerifyDeps
	Disconnect   DisconnectDeps
}

func noopMetric(int)                                                                       {}
func noopAudit(context.Context, string, bool, AuditFields, error, func() map[string]string) {}
func noopWarn(string, ...any)                                                              {}

func orNow(now func() time.Time) func() time.Time {
	if now == nil {
		return time.Now
	}
	return now
}
