package authcore

import "github.com/MrEthical07/authcore/internal/security"

// SecurityReport is a read-only snapshot of the engine's login and session
// posture, returned by [Engine.SecurityReport].
type SecurityReport = security.Report

// PlanReport is one managed plan inside a [SecurityReport].
type PlanReport = security.PlanReport

// SecurityReport summarizes which protections are active with the engine's
// effective configuration.
func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}

	limits := make(map[string]int, len(e.config.Plans.Limits))
	for tag, max := range e.config.Plans.Limits {
		limits[string(tag)] = max
	}

	return security.BuildReport(security.ReportInput{
		RateLimitEnabled: e.config.RateLimit.Enabled,
		RateWindow:       e.config.RateLimit.Window,
		RateMaxRequests:  e.config.RateLimit.MaxRequests,
		LockoutThreshold: e.config.Lockout.Threshold,
		LockoutDuration:  e.config.Lockout.Duration,
		PlanLimits:       limits,
		IdleTimeout:      e.config.Sessions.IdleTimeout,
		TokensEnabled:    e.config.Token.Enabled,
		SigningAlgorithm: e.config.Token.SigningMethod,
		TokenTTL:         e.config.Token.TTL,
		AuditEnabled:     e.config.Audit.Enabled,
		MetricsEnabled:   e.config.Metrics.Enabled,
		StoreTimeout:     e.config.Store.OperationTimeout,
		Permissions:      e.registry.Names(),
	})
}
