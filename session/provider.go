package session

import (
	"context"
	"strings"
)

// ClientIdentifierProvider yields the stable device identifier of the caller. The core
// treats the value as opaque; generating and persisting it is the client layer's job.
type ClientIdentifierProvider interface {
	DeviceID(ctx context.Context) (string, error)
}

// ProviderFunc adapts a function to [ClientIdentifierProvider].
type ProviderFunc func(ctx context.Context) (string, error)

// DeviceID implements [ClientIdentifierProvider].
func (f ProviderFunc) DeviceID(ctx context.Context) (string, error) {
	return f(ctx)
}

type deviceIDContextKey struct{}

// WithDeviceID attaches the caller's device identifier to ctx.
func WithDeviceID(ctx context.Context, deviceID string) context.Context {
	return context.WithValue(ctx, deviceIDContextKey{}, deviceID)
}

// DeviceIDFromContext returns the identifier attached with [WithDeviceID].
func DeviceIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(deviceIDContextKey{}).(string)
	return strings.TrimSpace(id)
}

// ContextProvider reads the device identifier from the request context.
type ContextProvider struct{}

// DeviceID implements [ClientIdentifierProvider].
func (ContextProvider) DeviceID(ctx context.Context) (string, error) {
	id := DeviceIDFromContext(ctx)
	if id == "" {
		return "", ErrMissingDeviceID
	}
	return id, nil
}
