// Package middleware adapts authcore session tokens to net/http.
//
// [RequireSession] reads the Authorization header, calls Engine.VerifySessionToken
// and injects the verified session into the request context. Removing a device
// session revokes its token on the next request. Decisions stay in the Engine.
package middleware
