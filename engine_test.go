package authcore

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/authcore/permission"
	"github.com/MrEthical07/authcore/plan"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2026, 5, 4, 20, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

const testSecret = "0123456789abcdef0123456789abcdef"

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Token.Enabled = true
	cfg.Token.PrivateKey = []byte(testSecret)
	cfg.Audit.Enabled = false
	return cfg
}

func newRedisEngine(t *testing.T, cfg Config, clk *testClock) (*Engine, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	e, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithClock(clk.Now).
		WithRole("support", "sessions:revoke").
		WithRole("viewer").
		WithSuperRole("admin").
		Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	t.Cleanup(e.Close)
	return e, mr
}

func newMemoryEngine(t *testing.T, cfg Config, clk *testClock) *Engine {
	t.Helper()
	e, err := New().
		WithConfig(cfg).
		WithInMemoryStores().
		WithClock(clk.Now).
		WithSuperRole("admin").
		Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	t.Cleanup(e.Close)
	return e
}

func eachEngine(t *testing.T, cfg Config, fn func(t *testing.T, e *Engine, clk *testClock)) {
	t.Helper()
	t.Run("redis", func(t *testing.T) {
		clk := newTestClock()
		e, _ := newRedisEngine(t, cfg, clk)
		fn(t, e, clk)
	})
	t.Run("memory", func(t *testing.T) {
		clk := newTestClock()
		fn(t, newMemoryEngine(t, cfg, clk), clk)
	})
}

func device(id string) context.Context {
	return WithDeviceID(context.Background(), id)
}

func password(ok bool) CredentialCheck {
	return func(context.Context) (bool, error) { return ok, nil }
}

func loginReq(userID string, tag plan.Tag, ok bool) LoginRequest {
	return LoginRequest{
		Identifier: userID + "@example.com",
		UserID:     userID,
		PlanType:   tag,
		ClientIP:   "198.51.100.23",
		Check:      password(ok),
	}
}

func TestIndividuelSecondDeviceDenied(t *testing.T) {
	eachEngine(t, testConfig(), func(t *testing.T, e *Engine, _ *testClock) {
		ctx := context.Background()
		if _, err := e.AddSession(device("tv"), "u1", plan.Individuel); err != nil {
			t.Fatalf("add: %v", err)
		}

		res, err := e.ValidateLogin(device("phone"), "u1", plan.Individuel)
		if err != nil {
			t.Fatalf("validate: %v", err)
		}
		if res.CanLogin || !res.NeedsDisconnection {
			t.Fatalf("expected denial with disconnection prompt, got %+v", res)
		}
		if len(res.ActiveSessions) != 1 || res.ActiveSessions[0].DeviceID != "tv" {
			t.Fatalf("unexpected active sessions %+v", res.ActiveSessions)
		}

		if _, err := e.AddSession(device("phone"), "u1", plan.Individuel); !errors.Is(err, ErrDeviceLimitExceeded) {
			t.Fatalf("expected device limit from AddSession, got %v", err)
		}
		active, _ := e.GetUserActiveSessions(ctx, "u1")
		if len(active) != 1 {
			t.Fatalf("expected 1 active session, got %d", len(active))
		}
	})
}

func TestFamilleFiveDevicesSixthDenied(t *testing.T) {
	eachEngine(t, testConfig(), func(t *testing.T, e *Engine, _ *testClock) {
		for _, d := range []string{"d1", "d2", "d3", "d4", "d5"} {
			res, err := e.Login(device(d), loginReq("fam", plan.Famille, true))
			if err != nil || res.Status != StatusAllowed {
				t.Fatalf("device %s: %+v err=%v", d, res, err)
			}
		}

		res, err := e.Login(device("d6"), loginReq("fam", plan.Famille, true))
		if err != nil {
			t.Fatalf("sixth login: %v", err)
		}
		if res.Status != StatusDeviceLimit || !res.NeedsDisconnection || len(res.ActiveSessions) != 5 {
			t.Fatalf("expected sixth device denied, got %+v", res)
		}
		if res.HTTPStatus() != http.StatusForbidden {
			t.Fatalf("expected 403, got %d", res.HTTPStatus())
		}
		if !strings.Contains(res.Message, "Limite d'appareils atteinte") {
			t.Fatalf("unexpected message %q", res.Message)
		}
	})
}

func TestSameDeviceReconnectAtLimit(t *testing.T) {
	eachEngine(t, testConfig(), func(t *testing.T, e *Engine, _ *testClock) {
		first, err := e.Login(device("tv"), loginReq("u1", plan.Individuel, true))
		if err != nil || first.Status != StatusAllowed {
			t.Fatalf("first: %+v err=%v", first, err)
		}

		res, err := e.ValidateLogin(device("tv"), "u1", plan.Individuel)
		if err != nil || !res.CanLogin {
			t.Fatalf("same device must be allowed at limit: %+v err=%v", res, err)
		}

		again, err := e.Login(device("tv"), loginReq("u1", plan.Individuel, true))
		if err != nil || again.Status != StatusAllowed {
			t.Fatalf("reconnect: %+v err=%v", again, err)
		}
		if again.Session.SessionID != first.Session.SessionID {
			t.Fatalf("reconnect must keep the session, got %s vs %s", again.Session.SessionID, first.Session.SessionID)
		}
	})
}

func TestRemoveSessionFreesSlot(t *testing.T) {
	eachEngine(t, testConfig(), func(t *testing.T, e *Engine, _ *testClock) {
		ctx := context.Background()
		if _, err := e.AddSession(device("tv"), "u1", plan.Individuel); err != nil {
			t.Fatalf("add: %v", err)
		}
		if res, _ := e.ValidateLogin(device("phone"), "u1", plan.Individuel); res.CanLogin {
			t.Fatalf("expected phone denied before removal")
		}

		removed, err := e.RemoveSession(ctx, "u1", "tv")
		if err != nil || !removed {
			t.Fatalf("remove: %v %v", removed, err)
		}
		res, err := e.ValidateLogin(device("phone"), "u1", plan.Individuel)
		if err != nil || !res.CanLogin {
			t.Fatalf("expected phone allowed after removal: %+v err=%v", res, err)
		}

		removed, err = e.RemoveSession(ctx, "u1", "tv")
		if err != nil || removed {
			t.Fatalf("second removal should report false, got %v err=%v", removed, err)
		}
	})
}

func TestLockoutAfterFiveFailures(t *testing.T) {
	eachEngine(t, testConfig(), func(t *testing.T, e *Engine, clk *testClock) {
		ctx := context.Background()
		for i := 1; i <= 5; i++ {
			res, err := e.Authenticate(ctx, "alice", password(false))
			if err != nil {
				t.Fatalf("attempt %d: %v", i, err)
			}
			if res.Success {
				t.Fatalf("attempt %d unexpectedly succeeded", i)
			}
		}

		called := false
		res, err := e.Authenticate(ctx, "alice", func(context.Context) (bool, error) {
			called = true
			return true, nil
		})
		if err != nil {
			t.Fatalf("sixth attempt: %v", err)
		}
		if res.Success || !res.Locked || called {
			t.Fatalf("expected lock even with correct password, got %+v called=%v", res, called)
		}
		if !strings.Contains(res.Message, "VERROUILLÉ") || !strings.Contains(res.Message, "900 s") {
			t.Fatalf("unexpected lock message %q", res.Message)
		}

		st, err := e.LockState(ctx, "alice")
		if err != nil || !st.Locked(clk.Now()) {
			t.Fatalf("expected locked state, got %+v err=%v", st, err)
		}

		clk.Advance(15 * time.Minute)
		res, err = e.Authenticate(ctx, "alice", password(true))
		if err != nil || !res.Success {
			t.Fatalf("expected success after lock expiry, got %+v err=%v", res, err)
		}
	})
}

func TestSuccessResetsAttempts(t *testing.T) {
	eachEngine(t, testConfig(), func(t *testing.T, e *Engine, _ *testClock) {
		ctx := context.Background()
		for i := 0; i < 3; i++ {
			_, _ = e.Authenticate(ctx, "bob", password(false))
		}
		if res, err := e.Authenticate(ctx, "bob", password(true)); err != nil || !res.Success {
			t.Fatalf("success: %+v err=%v", res, err)
		}
		res, err := e.Authenticate(ctx, "bob", password(false))
		if err != nil {
			t.Fatalf("failure: %v", err)
		}
		if res.RemainingAttempts != 4 {
			t.Fatalf("expected threshold-1 remaining, got %d", res.RemainingAttempts)
		}
	})
}

func TestUnlockIdentifier(t *testing.T) {
	eachEngine(t, testConfig(), func(t *testing.T, e *Engine, _ *testClock) {
		ctx := context.Background()
		for i := 0; i < 5; i++ {
			_, _ = e.Authenticate(ctx, "carol", password(false))
		}
		if err := e.UnlockIdentifier(ctx, "carol"); err != nil {
			t.Fatalf("unlock: %v", err)
		}
		res, err := e.Authenticate(ctx, "carol", password(true))
		if err != nil || !res.Success {
			t.Fatalf("expected success after unlock, got %+v err=%v", res, err)
		}
		if err := e.UnlockIdentifier(ctx, " "); !errors.Is(err, ErrMissingIdentifier) {
			t.Fatalf("expected missing identifier, got %v", err)
		}
	})
}

func TestRateLimit61stDenied(t *testing.T) {
	eachEngine(t, testConfig(), func(t *testing.T, e *Engine, clk *testClock) {
		ctx := context.Background()
		for i := 1; i <= 60; i++ {
			res, err := e.CheckRateLimit(ctx, "203.0.113.9", time.Minute, 60)
			if err != nil || !res.Allowed {
				t.Fatalf("request %d: %+v err=%v", i, res, err)
			}
		}
		res, err := e.CheckRateLimit(ctx, "203.0.113.9", time.Minute, 60)
		if err != nil {
			t.Fatalf("61st: %v", err)
		}
		if res.Allowed || res.Remaining != 0 {
			t.Fatalf("expected 61st denied, got %+v", res)
		}

		clk.Advance(time.Minute + time.Millisecond)
		res, err = e.CheckRateLimit(ctx, "203.0.113.9", time.Minute, 60)
		if err != nil || !res.Allowed {
			t.Fatalf("expected allowed after window, got %+v err=%v", res, err)
		}
	})
}

func TestLoginRateLimitedBeforeGuard(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit.MaxRequests = 3
	eachEngine(t, cfg, func(t *testing.T, e *Engine, _ *testClock) {
		for i := 0; i < 3; i++ {
			if _, err := e.Login(device("tv"), loginReq("u1", plan.Famille, false)); err != nil {
				t.Fatalf("login %d: %v", i, err)
			}
		}
		res, err := e.Login(device("tv"), loginReq("u1", plan.Famille, false))
		if err != nil {
			t.Fatalf("rate limited login: %v", err)
		}
		if res.Status != StatusRateLimited || res.HTTPStatus() != http.StatusTooManyRequests {
			t.Fatalf("expected 429, got %+v", res)
		}

		st, err := e.LockState(context.Background(), "u1@example.com")
		if err != nil {
			t.Fatalf("lock state: %v", err)
		}
		if st.AttemptCount != 3 {
			t.Fatalf("rate-limited attempt must not reach the guard, attempts=%d", st.AttemptCount)
		}
		if e.MetricsSnapshot().Counters[MetricLoginRateLimited] != 1 {
			t.Fatalf("expected rate-limited metric")
		}
	})
}

func TestRateLimiterFailsOpen(t *testing.T) {
	var logs bytes.Buffer
	clk := newTestClock()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })

	e, err := New().
		WithConfig(testConfig()).
		WithRedis(rdb).
		WithClock(clk.Now).
		WithLogger(zerolog.New(&logs)).
		Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer e.Close()

	mr.Close()

	res, err := e.CheckRateLimit(context.Background(), "203.0.113.9", time.Minute, 1)
	if err != nil {
		t.Fatalf("fail-open must not error: %v", err)
	}
	if !res.Allowed || !res.FailedOpen {
		t.Fatalf("expected fail-open allow, got %+v", res)
	}
	if !strings.Contains(logs.String(), "failing open") {
		t.Fatalf("expected fail-open warning, got %q", logs.String())
	}
	if e.MetricsSnapshot().Counters[MetricRateLimiterFailOpen] != 1 {
		t.Fatalf("expected fail-open metric")
	}

	// Lock state cannot be read, so the guard denies.
	if _, err := e.Authenticate(context.Background(), "alice", password(true)); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected lock read to fail closed, got %v", err)
	}
	if _, err := e.ValidateLogin(device("tv"), "u1", plan.Individuel); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected session read to fail closed, got %v", err)
	}
}

func TestLoginFlowHTTPStatuses(t *testing.T) {
	eachEngine(t, testConfig(), func(t *testing.T, e *Engine, _ *testClock) {
		res, err := e.Login(device("tv"), loginReq("u1", plan.Individuel, false))
		if err != nil {
			t.Fatalf("invalid login: %v", err)
		}
		if res.Status != StatusInvalidCredentials || res.HTTPStatus() != http.StatusUnauthorized || res.RemainingAttempts != 4 {
			t.Fatalf("expected 401 with 4 remaining, got %+v", res)
		}
		if !strings.Contains(res.Message, "4 tentative(s)") {
			t.Fatalf("unexpected message %q", res.Message)
		}

		for i := 0; i < 4; i++ {
			res, _ = e.Login(device("tv"), loginReq("u1", plan.Individuel, false))
		}
		if res.Status != StatusLocked || res.HTTPStatus() != http.StatusForbidden || res.RetryAfter != 15*time.Minute {
			t.Fatalf("expected locked 403, got %+v", res)
		}

		res, err = e.Login(device("tv"), loginReq("u2", plan.Individuel, true))
		if err != nil || res.HTTPStatus() != http.StatusOK || !res.Allowed() {
			t.Fatalf("expected 200, got %+v err=%v", res, err)
		}
	})
}

func TestUnmanagedPlan(t *testing.T) {
	eachEngine(t, testConfig(), func(t *testing.T, e *Engine, _ *testClock) {
		res, err := e.ValidateLogin(device("tv"), "u1", plan.Tag("essai"))
		if err != nil || !res.CanLogin {
			t.Fatalf("unmanaged plan must be allowed: %+v err=%v", res, err)
		}
		if _, err := e.AddSession(device("tv"), "u1", plan.Tag("essai")); !errors.Is(err, ErrUnmanagedPlan) {
			t.Fatalf("expected ErrUnmanagedPlan, got %v", err)
		}
		if e.Policy("essai").Managed() || !e.Policy(" FAMILLE ").Managed() {
			t.Fatalf("unexpected policy resolution")
		}
	})
}

func TestSessionTokenRevokedOnRemoval(t *testing.T) {
	eachEngine(t, testConfig(), func(t *testing.T, e *Engine, _ *testClock) {
		ctx := context.Background()
		res, err := e.Login(device("tv"), loginReq("u1", plan.Famille, true))
		if err != nil || res.Token == "" {
			t.Fatalf("login: %+v err=%v", res, err)
		}

		vs, err := e.VerifySessionToken(ctx, res.Token)
		if err != nil {
			t.Fatalf("verify: %v", err)
		}
		if vs.UserID != "u1" || vs.DeviceID != "tv" || vs.SessionID != res.Session.SessionID {
			t.Fatalf("unexpected identity %+v", vs)
		}

		if _, err := e.RemoveSession(ctx, "u1", "tv"); err != nil {
			t.Fatalf("remove: %v", err)
		}
		if _, err := e.VerifySessionToken(ctx, res.Token); !errors.Is(err, ErrSessionRevoked) {
			t.Fatalf("expected revoked, got %v", err)
		}
		if _, err := e.VerifySessionToken(ctx, "garbage"); !errors.Is(err, ErrTokenInvalid) {
			t.Fatalf("expected invalid token, got %v", err)
		}
	})
}

func TestDisconnectDeviceByRole(t *testing.T) {
	clk := newTestClock()
	e, _ := newRedisEngine(t, testConfig(), clk)
	ctx := context.Background()

	if _, err := e.Login(device("tv"), loginReq("u1", plan.Individuel, true)); err != nil {
		t.Fatalf("login: %v", err)
	}

	viewer, ok := e.RoleGrant("viewer")
	if !ok {
		t.Fatalf("viewer role missing")
	}
	if _, err := e.DisconnectDevice(ctx, viewer, "u1", "tv"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}

	support, _ := e.RoleGrant("support")
	removed, err := e.DisconnectDevice(ctx, support, "u1", "tv")
	if err != nil || !removed {
		t.Fatalf("support disconnect: %v %v", removed, err)
	}

	if _, err := e.Login(device("phone"), loginReq("u1", plan.Individuel, true)); err != nil {
		t.Fatalf("login: %v", err)
	}
	admin, _ := e.RoleGrant("admin")
	if _, ok := admin.(permission.All); !ok {
		t.Fatalf("admin should hold the All grant, got %T", admin)
	}
	removed, err = e.DisconnectDevice(ctx, admin, "u1", "phone")
	if err != nil || !removed {
		t.Fatalf("admin disconnect: %v %v", removed, err)
	}
}

func TestTouchAndRemoveAll(t *testing.T) {
	eachEngine(t, testConfig(), func(t *testing.T, e *Engine, clk *testClock) {
		ctx := context.Background()
		for _, d := range []string{"a", "b", "c"} {
			if _, err := e.AddSession(device(d), "u1", plan.Famille); err != nil {
				t.Fatalf("add %s: %v", d, err)
			}
		}
		clk.Advance(time.Minute)
		ok, err := e.TouchSession(device("b"), "u1")
		if err != nil || !ok {
			t.Fatalf("touch: %v %v", ok, err)
		}
		active, _ := e.GetUserActiveSessions(ctx, "u1")
		for _, s := range active {
			if s.DeviceID == "b" && !s.LastActivity.Equal(clk.Now()) {
				t.Fatalf("touch did not refresh last activity: %v", s.LastActivity)
			}
		}

		n, err := e.RemoveAllSessions(ctx, "u1")
		if err != nil || n != 3 {
			t.Fatalf("remove all: %d %v", n, err)
		}
		if ok, _ := e.TouchSession(device("b"), "u1"); ok {
			t.Fatalf("touch after remove-all must report false")
		}
	})
}

func TestIdleSessionsStopCounting(t *testing.T) {
	cfg := testConfig()
	cfg.Sessions.IdleTimeout = time.Hour
	eachEngine(t, cfg, func(t *testing.T, e *Engine, clk *testClock) {
		if _, err := e.AddSession(device("tv"), "u1", plan.Individuel); err != nil {
			t.Fatalf("add: %v", err)
		}
		clk.Advance(2 * time.Hour)
		res, err := e.Login(device("phone"), loginReq("u1", plan.Individuel, true))
		if err != nil || res.Status != StatusAllowed {
			t.Fatalf("idle session should not block a new device: %+v err=%v", res, err)
		}
	})
}

func TestConcurrentLoginsRespectDeviceLimit(t *testing.T) {
	eachEngine(t, testConfig(), func(t *testing.T, e *Engine, _ *testClock) {
		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			allowed int
		)
		for i := 0; i < 25; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				req := loginReq("fam", plan.Famille, true)
				req.ClientIP = ""
				res, err := e.Login(device("dev-"+string(rune('A'+i))), req)
				if err != nil {
					t.Errorf("login %d: %v", i, err)
					return
				}
				if res.Status == StatusAllowed {
					mu.Lock()
					allowed++
					mu.Unlock()
				}
			}(i)
		}
		wg.Wait()

		if allowed != 5 {
			t.Fatalf("expected 5 admitted devices, got %d", allowed)
		}
	})
}

func TestAuditEventsEmitted(t *testing.T) {
	cfg := testConfig()
	cfg.Audit = AuditConfig{Enabled: true, BufferSize: 64}
	sink := NewChannelSink(64)

	e, err := New().
		WithConfig(cfg).
		WithInMemoryStores().
		WithAuditSink(sink).
		Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	ctx := WithClientIP(device("tv"), "192.0.2.10")
	if _, err := e.Login(ctx, loginReq("u1", plan.Individuel, false)); err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, err := e.Login(ctx, loginReq("u1", plan.Individuel, true)); err != nil {
		t.Fatalf("login: %v", err)
	}
	e.Close()

	var types []string
	for {
		select {
		case ev := <-sink.Events():
			types = append(types, ev.EventType)
			if ev.EventType == auditEventLoginFailure && ev.Error != string(auditErrInvalidCredentials) {
				t.Fatalf("failure event missing error code: %+v", ev)
			}
			if ev.EventType == auditEventLoginSuccess && (ev.SessionID == "" || ev.DeviceID != "tv") {
				t.Fatalf("success event missing session binding: %+v", ev)
			}
			continue
		default:
		}
		break
	}

	want := []string{auditEventLoginFailure, auditEventAuthenticated, auditEventLoginSuccess}
	if strings.Join(types, ",") != strings.Join(want, ",") {
		t.Fatalf("expected %v, got %v", want, types)
	}
}

func TestCancelledContextSkipsMutation(t *testing.T) {
	clk := newTestClock()
	e := newMemoryEngine(t, testConfig(), clk)

	ctx, cancel := context.WithCancel(device("tv"))
	cancel()
	if _, err := e.AddSession(ctx, "u1", plan.Individuel); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled, got %v", err)
	}
	active, _ := e.GetUserActiveSessions(context.Background(), "u1")
	if len(active) != 0 {
		t.Fatalf("cancelled request must not create a session")
	}
}

func TestNilEngine(t *testing.T) {
	var e *Engine
	if _, err := e.Login(context.Background(), LoginRequest{}); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected not ready, got %v", err)
	}
	if e.AuditDropped() != 0 {
		t.Fatalf("nil engine drops nothing")
	}
	e.Close()
	if err := e.Shutdown(context.Background()); err != nil {
		t.Fatalf("nil engine shutdown: %v", err)
	}
}
