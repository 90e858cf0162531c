package authcore

import (
	"context"

	"github.com/MrEthical07/authcore/session"
)

type clientIPContextKey struct{}

// WithClientIP attaches the caller's IP address to ctx. Login uses it as the
// rate-limit key when [LoginRequest.ClientIP] is empty, and audit events record it.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

// WithDeviceID attaches the caller's device identifier to ctx. The default
// [session.ClientIdentifierProvider] reads it back.
func WithDeviceID(ctx context.Context, deviceID string) context.Context {
	return session.WithDeviceID(ctx, deviceID)
}

func clientIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	ip, _ := ctx.Value(clientIPContextKey{}).(string)
	return ip
}
