package flows

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/permission"
	"github.com/MrEthical07/authcore/plan"
	"github.com/MrEthical07/authcore/session"
)

func newTokenFixture(t *testing.T) (*loginFixture, *jwt.Manager, VerifyDeps) {
	t.Helper()
	f := newLoginFixture(t, 60)
	tokens, err := jwt.NewManager(jwt.Config{
		TTL:           time.Hour,
		SigningMethod: jwt.MethodHS256,
		PrivateKey:    []byte("0123456789abcdef0123456789abcdef"),
		Issuer:        "authcore-test",
		Now:           f.clk.Now,
	})
	if err != nil {
		t.Fatalf("jwt manager: %v", err)
	}
	f.deps.IssueToken = tokens.Issue

	deps := VerifyDeps{
		ParseToken: tokens.Parse,
		ListActive: f.manager.GetUserActiveSessions,
		MetricInc:  f.rec.inc,
		Metrics:    VerifyMetrics{Success: mVerifyOK, Invalid: mVerifyInvalid, Revoked: mVerifyRevoked},
		Errors:     VerifyErrors{EngineNotReady: errNotReady, TokenInvalid: errTokenInvalid, SessionRevoked: errRevoked},
	}
	return f, tokens, deps
}

func TestVerifySessionActive(t *testing.T) {
	f, _, deps := newTokenFixture(t)

	out, err := RunLogin(onDevice("tv"), login("u1", plan.Famille, true), f.deps)
	if err != nil || out.Token == "" {
		t.Fatalf("login: %+v err=%v", out, err)
	}

	got, err := RunVerifySession(context.Background(), out.Token, deps)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if got.UserID != "u1" || got.DeviceID != "tv" || got.SessionID != out.Session.SessionID {
		t.Fatalf("unexpected identity %+v", got)
	}
	if got.Plan != string(plan.Famille) || !got.ExpiresAt.Equal(out.TokenExpiresAt) {
		t.Fatalf("unexpected plan/expiry %+v", got)
	}
}

func TestVerifySessionRevokedByRemoval(t *testing.T) {
	f, _, deps := newTokenFixture(t)

	out, err := RunLogin(onDevice("tv"), login("u1", plan.Famille, true), f.deps)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, err := f.manager.RemoveSession(context.Background(), "u1", "tv"); err != nil {
		t.Fatalf("remove: %v", err)
	}

	if _, err := RunVerifySession(context.Background(), out.Token, deps); !errors.Is(err, errRevoked) {
		t.Fatalf("expected revoked, got %v", err)
	}
	if f.rec.counts[mVerifyRevoked] != 1 {
		t.Fatalf("expected revoked metric")
	}
}

func TestVerifySessionRejectsGarbageAndExpired(t *testing.T) {
	f, _, deps := newTokenFixture(t)

	if _, err := RunVerifySession(context.Background(), "not-a-token", deps); !errors.Is(err, errTokenInvalid) {
		t.Fatalf("expected invalid token, got %v", err)
	}

	out, err := RunLogin(onDevice("tv"), login("u1", plan.Individuel, true), f.deps)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	f.clk.Advance(2 * time.Hour)
	if _, err := RunVerifySession(context.Background(), out.Token, deps); !errors.Is(err, errTokenInvalid) {
		t.Fatalf("expected expired token to be invalid, got %v", err)
	}
}

func TestVerifySessionDetectsReplacedSession(t *testing.T) {
	f, tokens, deps := newTokenFixture(t)

	if _, err := RunLogin(onDevice("tv"), login("u1", plan.Famille, true), f.deps); err != nil {
		t.Fatalf("login: %v", err)
	}
	forged, _, err := tokens.Issue("u1", "tv", "some-other-session", string(plan.Famille))
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := RunVerifySession(context.Background(), forged, deps); !errors.Is(err, errRevoked) {
		t.Fatalf("expected mismatched session id to be revoked, got %v", err)
	}
}

func disconnectDeps(t *testing.T, m *session.Manager, rec *recorder) (DisconnectDeps, *permission.Registry) {
	t.Helper()
	reg, err := permission.NewRegistry(PermissionRevokeSessions, "sessions:read")
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	return DisconnectDeps{
		Allowed:       reg.Allowed,
		RemoveSession: m.RemoveSession,
		DescribeGrant: func(g permission.Grant) string { return permission.Describe(reg, g) },
		MetricInc:     rec.inc,
		EmitAudit:     rec.emit,
		Metrics:       DisconnectMetrics{Success: mDisconnect, Denied: mDenied},
		Events:        DisconnectEvents{Success: "device_disconnected", Denied: "device_disconnect_denied"},
		Errors:        DisconnectErrors{EngineNotReady: errNotReady, Unauthorized: errUnauthorized},
	}, reg
}

func TestDisconnectDeviceRequiresPermission(t *testing.T) {
	f := newLoginFixture(t, 60)
	deps, reg := disconnectDeps(t, f.manager, f.rec)

	if _, err := RunLogin(onDevice("tv"), login("u1", plan.Individuel, true), f.deps); err != nil {
		t.Fatalf("login: %v", err)
	}

	reader, err := reg.Subset("sessions:read")
	if err != nil {
		t.Fatalf("subset: %v", err)
	}
	if _, err := RunDisconnectDevice(context.Background(), reader, "u1", "tv", deps); !errors.Is(err, errUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if got := f.rec.lastMeta()["grant"]; got != "subset(sessions:read)" {
		t.Fatalf("expected denied grant in audit metadata, got %q", got)
	}
	if _, err := RunDisconnectDevice(context.Background(), nil, "u1", "tv", deps); !errors.Is(err, errUnauthorized) {
		t.Fatalf("expected unauthorized for nil grant, got %v", err)
	}
	if f.rec.last() != "device_disconnect_denied" {
		t.Fatalf("expected denied audit event, got %q", f.rec.last())
	}
	if meta := f.rec.lastMeta(); meta["grant"] != "none" || meta["required"] != PermissionRevokeSessions {
		t.Fatalf("unexpected denial metadata %v", meta)
	}

	revoker, _ := reg.Subset(PermissionRevokeSessions)
	removed, err := RunDisconnectDevice(context.Background(), revoker, "u1", "tv", deps)
	if err != nil || !removed {
		t.Fatalf("expected removal, got %v err=%v", removed, err)
	}

	out, err := RunLogin(onDevice("phone"), login("u1", plan.Individuel, true), f.deps)
	if err != nil || out.Status != StatusAllowed {
		t.Fatalf("freed slot should admit a new device, got %+v err=%v", out, err)
	}
}

func TestDisconnectDeviceAllGrant(t *testing.T) {
	f := newLoginFixture(t, 60)
	deps, _ := disconnectDeps(t, f.manager, f.rec)

	removed, err := RunDisconnectDevice(context.Background(), permission.All{}, "u1", "ghost", deps)
	if err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	if removed {
		t.Fatalf("nothing active should be reported as not removed")
	}
	if f.rec.counts[mDisconnect] != 0 {
		t.Fatalf("success metric must count actual removals only")
	}
}
