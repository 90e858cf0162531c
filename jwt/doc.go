// Package jwt issues and verifies signed device-session tokens. A token carries the
// user as subject plus the device and session it was issued for, so a verifier can
// check the session is still active before trusting it.
package jwt
