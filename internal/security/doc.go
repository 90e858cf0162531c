// Package security builds the posture report exposed by Engine.SecurityReport.
package security
