package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	authcore "github.com/MrEthical07/authcore"
)

type sessionContextKey struct{}

// SessionFromContext returns the session verified by [RequireSession].
func SessionFromContext(ctx context.Context) (authcore.VerifiedSession, bool) {
	vs, ok := ctx.Value(sessionContextKey{}).(authcore.VerifiedSession)
	return vs, ok
}

// RequireSession rejects requests without a bearer token bound to a still-active
// device session. Accepted requests carry the session and its device ID in their
// context, so handlers can call Engine.TouchSession directly.
func RequireSession(engine *authcore.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			vs, err := engine.VerifySessionToken(r.Context(), token)
			if err != nil {
				http.Error(w, http.StatusText(statusFor(err)), statusFor(err))
				return
			}

			ctx := context.WithValue(r.Context(), sessionContextKey{}, vs)
			ctx = authcore.WithDeviceID(ctx, vs.DeviceID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func statusFor(err error) int {
	if errors.Is(err, authcore.ErrStoreUnavailable) {
		return http.StatusServiceUnavailable
	}
	return http.StatusUnauthorized
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}
