package security

import (
	"sort"
	"time"
)

// PlanReport is the device limit of one managed plan.
type PlanReport struct {
	Tag        string
	MaxDevices int
}

// Report is a read-only summary of the login and session posture of an engine.
type Report struct {
	RateLimitingActive bool
	RateWindow         time.Duration
	RateMaxRequests    int

	LockoutActive    bool
	LockoutThreshold int
	LockoutDuration  time.Duration

	DeviceLimitsActive bool
	Plans              []PlanReport
	IdleEvictionActive bool
	IdleTimeout        time.Duration

	TokensEnabled    bool
	SigningAlgorithm string
	TokenTTL         time.Duration

	AuditEnabled   bool
	MetricsEnabled bool
	StoreTimeout   time.Duration

	// Permissions lists the registered permission names in bit order.
	Permissions []string
}

// ReportInput is the flattened configuration a [Report] is built from.
type ReportInput struct {
	RateLimitEnabled bool
	RateWindow       time.Duration
	RateMaxRequests  int
	LockoutThreshold int
	LockoutDuration  time.Duration
	PlanLimits       map[string]int
	IdleTimeout      time.Duration
	TokensEnabled    bool
	SigningAlgorithm string
	TokenTTL         time.Duration
	AuditEnabled     bool
	MetricsEnabled   bool
	StoreTimeout     time.Duration
	Permissions      []string
}

// BuildReport derives the posture flags from input. Plans are sorted by tag.
func BuildReport(input ReportInput) Report {
	plans := make([]PlanReport, 0, len(input.PlanLimits))
	for tag, max := range input.PlanLimits {
		if max > 0 {
			plans = append(plans, PlanReport{Tag: tag, MaxDevices: max})
		}
	}
	sort.Slice(plans, func(i, j int) bool { return plans[i].Tag < plans[j].Tag })

	rateLimiting := input.RateLimitEnabled &&
		input.RateWindow > 0 &&
		input.RateMaxRequests > 0

	report := Report{
		RateLimitingActive: rateLimiting,
		LockoutActive:      input.LockoutThreshold > 0 && input.LockoutDuration > 0,
		LockoutThreshold:   input.LockoutThreshold,
		LockoutDuration:    input.LockoutDuration,
		DeviceLimitsActive: len(plans) > 0,
		Plans:              plans,
		IdleEvictionActive: input.IdleTimeout > 0,
		IdleTimeout:        input.IdleTimeout,
		TokensEnabled:      input.TokensEnabled,
		AuditEnabled:       input.AuditEnabled,
		MetricsEnabled:     input.MetricsEnabled,
		StoreTimeout:       input.StoreTimeout,
		Permissions:        append([]string(nil), input.Permissions...),
	}
	if rateLimiting {
		report.RateWindow = input.RateWindow
		report.RateMaxRequests = input.RateMaxRequests
	}
	if input.TokensEnabled {
		report.SigningAlgorithm = input.SigningAlgorithm
		report.TokenTTL = input.TokenTTL
	}
	return report
}
