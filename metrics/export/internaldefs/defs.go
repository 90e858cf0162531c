package internaldefs

import (
	authcore "github.com/MrEthical07/authcore"
)

// CounterDef names one engine counter for exporters.
type CounterDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

// HistogramDef names one engine histogram for exporters.
type HistogramDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in a stable order.
var CounterDefs = []CounterDef{
	{ID: authcore.MetricLoginSuccess, Name: "authcore_login_success_total", Help: "Successful logins."},
	{ID: authcore.MetricLoginInvalidCredentials, Name: "authcore_login_invalid_credentials_total", Help: "Login attempts with wrong credentials."},
	{ID: authcore.MetricLoginLockedReject, Name: "authcore_login_locked_reject_total", Help: "Login attempts rejected because the identifier is locked."},
	{ID: authcore.MetricAccountLocked, Name: "authcore_account_locked_total", Help: "Identifiers locked after reaching the failure threshold."},
	{ID: authcore.MetricLoginRateLimited, Name: "authcore_login_rate_limited_total", Help: "Login requests denied by the sliding-window limiter."},
	{ID: authcore.MetricRateLimiterFailOpen, Name: "authcore_rate_limiter_fail_open_total", Help: "Rate-limit checks allowed because the store was unavailable."},
	{ID: authcore.MetricDeviceLimitReached, Name: "authcore_device_limit_reached_total", Help: "Logins denied by the plan device limit."},
	{ID: authcore.MetricDeviceLimitRace, Name: "authcore_device_limit_race_total", Help: "Admissions that lost the last device slot to a concurrent login."},
	{ID: authcore.MetricSessionCreated, Name: "authcore_session_created_total", Help: "Device sessions created."},
	{ID: authcore.MetricSessionReactivated, Name: "authcore_session_reactivated_total", Help: "Device sessions reactivated in place."},
	{ID: authcore.MetricSessionRemoved, Name: "authcore_session_removed_total", Help: "Device sessions removed."},
	{ID: authcore.MetricSessionRemoveAll, Name: "authcore_session_remove_all_total", Help: "Disconnect-all operations."},
	{ID: authcore.MetricSessionTouched, Name: "authcore_session_touched_total", Help: "Session heartbeats."},
	{ID: authcore.MetricTokenVerified, Name: "authcore_token_verified_total", Help: "Session tokens verified against an active session."},
	{ID: authcore.MetricTokenInvalid, Name: "authcore_token_invalid_total", Help: "Session tokens that failed parsing or signature checks."},
	{ID: authcore.MetricTokenRevoked, Name: "authcore_token_revoked_total", Help: "Valid session tokens whose session is no longer active."},
	{ID: authcore.MetricDeviceDisconnected, Name: "authcore_device_disconnected_total", Help: "Devices disconnected by an authorized actor."},
	{ID: authcore.MetricDisconnectDenied, Name: "authcore_disconnect_denied_total", Help: "Disconnect requests rejected for missing permission."},
	{ID: authcore.MetricIdentifierUnlocked, Name: "authcore_identifier_unlocked_total", Help: "Identifiers unlocked by an administrator."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: authcore.MetricLoginLatency, Name: "authcore_login_latency_seconds", Help: "Login latency histogram."},
}

// HistogramUpperBounds are the finite bucket bounds in seconds; the last bucket is +Inf.
var HistogramUpperBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// HistogramBoundLabels are the "le" label values of each bucket, +Inf included.
var HistogramBoundLabels = []string{"0.005", "0.01", "0.025", "0.05", "0.1", "0.25", "0.5", "+Inf"}

// AuditDroppedName is the counter of audit events dropped on a full buffer.
const (
	AuditDroppedName = "authcore_audit_dropped_total"
	AuditDroppedHelp = "Audit events dropped because the dispatcher buffer was full."
)

// NormalizeBuckets pads or truncates raw to the fixed bucket count.
func NormalizeBuckets(raw []uint64) [authcore.HistBucketCount]uint64 {
	var out [authcore.HistBucketCount]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [authcore.HistBucketCount]uint64) [authcore.HistBucketCount]uint64 {
	var out [authcore.HistBucketCount]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
