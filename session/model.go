package session

import (
	"time"

	"github.com/MrEthical07/authcore/plan"
)

// Session is one authenticated device binding counted against a plan's device quota.
type Session struct {
	SessionID    string
	UserID       string
	DeviceID     string
	PlanType     plan.Tag
	IsActive     bool
	CreatedAt    time.Time
	LastActivity time.Time
}

// idle reports whether the session's last activity is older than timeout at now.
// A zero timeout disables idle eviction. Both instants are compared at millisecond
// precision, the resolution the Redis store keeps.
func (s Session) idle(now time.Time, timeout time.Duration) bool {
	if timeout <= 0 {
		return false
	}
	return now.Truncate(time.Millisecond).Sub(s.LastActivity.Truncate(time.Millisecond)) > timeout
}
