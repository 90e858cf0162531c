package session_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrEthical07/authcore/plan"
	"github.com/MrEthical07/authcore/session"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newManagers(t *testing.T, cfg session.ManagerConfig) map[string]*session.Manager {
	t.Helper()
	redisStore, _, _ := newRedisStoreTest(t)
	return map[string]*session.Manager{
		"memory": session.NewManager(session.NewMemoryStore(), nil, nil, cfg),
		"redis":  session.NewManager(redisStore, nil, nil, cfg),
	}
}

func device(id string) context.Context {
	return session.WithDeviceID(context.Background(), id)
}

func TestIndividuelSecondDeviceDenied(t *testing.T) {
	for name, m := range newManagers(t, session.ManagerConfig{}) {
		t.Run(name, func(t *testing.T) {
			if _, err := m.AddSession(device("phone"), "u1", plan.Individuel); err != nil {
				t.Fatalf("add session: %v", err)
			}

			res, err := m.ValidateLogin(device("laptop"), "u1", plan.Individuel)
			if err != nil {
				t.Fatalf("validate: %v", err)
			}
			if res.CanLogin || !res.NeedsDisconnection {
				t.Fatalf("expected denial with disconnection prompt, got %+v", res)
			}
			if res.Reason != session.ReasonDeviceLimit {
				t.Fatalf("unexpected reason %q", res.Reason)
			}
			if len(res.ActiveSessions) != 1 || res.ActiveSessions[0].DeviceID != "phone" {
				t.Fatalf("expected the phone session in result, got %+v", res.ActiveSessions)
			}
		})
	}
}

func TestFamilleAllowsFiveDevices(t *testing.T) {
	for name, m := range newManagers(t, session.ManagerConfig{}) {
		t.Run(name, func(t *testing.T) {
			for i := 0; i < 5; i++ {
				ctx := device(fmt.Sprintf("d%d", i))
				res, err := m.ValidateLogin(ctx, "fam", plan.Famille)
				if err != nil {
					t.Fatalf("validate %d: %v", i, err)
				}
				if !res.CanLogin {
					t.Fatalf("device %d must be allowed, got %+v", i, res)
				}
				if _, err := m.AddSession(ctx, "fam", plan.Famille); err != nil {
					t.Fatalf("add %d: %v", i, err)
				}
			}

			res, err := m.ValidateLogin(device("d5"), "fam", plan.Famille)
			if err != nil {
				t.Fatalf("validate sixth: %v", err)
			}
			if res.CanLogin || !res.NeedsDisconnection || len(res.ActiveSessions) != 5 {
				t.Fatalf("sixth device must be denied, got %+v", res)
			}
			if _, err := m.AddSession(device("d5"), "fam", plan.Famille); !errors.Is(err, session.ErrDeviceLimitExceeded) {
				t.Fatalf("expected ErrDeviceLimitExceeded, got %v", err)
			}
		})
	}
}

func TestSameDeviceReconnectAtLimit(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)}
	for name, m := range newManagers(t, session.ManagerConfig{Now: clock.Now}) {
		t.Run(name, func(t *testing.T) {
			first, err := m.AddSession(device("tv"), "u1", plan.Individuel)
			if err != nil {
				t.Fatalf("add: %v", err)
			}

			clock.Advance(time.Minute)
			res, err := m.ValidateLogin(device("tv"), "u1", plan.Individuel)
			if err != nil {
				t.Fatalf("validate: %v", err)
			}
			if !res.CanLogin || res.Reason != session.ReasonSameDevice {
				t.Fatalf("same device must be allowed, got %+v", res)
			}

			again, outcome, err := m.AdmitSession(device("tv"), "u1", plan.Individuel)
			if err != nil {
				t.Fatalf("readmit: %v", err)
			}
			if outcome != session.AdmitRefreshed {
				t.Fatalf("expected refresh, got %v", outcome)
			}
			if again.SessionID != first.SessionID {
				t.Fatalf("reconnect must keep session id %q, got %q", first.SessionID, again.SessionID)
			}
			if !again.LastActivity.After(first.LastActivity) {
				t.Fatalf("reconnect must refresh last activity")
			}
		})
	}
}

func TestRemoveSessionFreesSlot(t *testing.T) {
	for name, m := range newManagers(t, session.ManagerConfig{}) {
		t.Run(name, func(t *testing.T) {
			if _, err := m.AddSession(device("old"), "u1", plan.Individuel); err != nil {
				t.Fatalf("add: %v", err)
			}
			res, err := m.ValidateLogin(device("new"), "u1", plan.Individuel)
			if err != nil || res.CanLogin {
				t.Fatalf("new device must be denied first, got %+v %v", res, err)
			}

			removed, err := m.RemoveSession(context.Background(), "u1", "old")
			if err != nil || !removed {
				t.Fatalf("remove: %v %v", removed, err)
			}

			res, err = m.ValidateLogin(device("new"), "u1", plan.Individuel)
			if err != nil {
				t.Fatalf("validate: %v", err)
			}
			if !res.CanLogin || res.Reason != session.ReasonSlotAvailable {
				t.Fatalf("freed slot must be visible immediately, got %+v", res)
			}

			removed, err = m.RemoveSession(context.Background(), "u1", "old")
			if err != nil || removed {
				t.Fatalf("second removal must report false, got %v %v", removed, err)
			}
		})
	}
}

func TestUnmanagedPlan(t *testing.T) {
	m := session.NewManager(session.NewMemoryStore(), nil, nil, session.ManagerConfig{})

	res, err := m.ValidateLogin(context.Background(), "u1", plan.Tag("premium-ultra"))
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !res.CanLogin || res.Policy.Managed() {
		t.Fatalf("unmanaged plan must always allow, got %+v", res)
	}

	if _, err := m.AddSession(device("d1"), "u1", plan.Tag("premium-ultra")); !errors.Is(err, session.ErrUnmanagedPlan) {
		t.Fatalf("expected ErrUnmanagedPlan, got %v", err)
	}
}

func TestMissingDeviceID(t *testing.T) {
	m := session.NewManager(session.NewMemoryStore(), nil, nil, session.ManagerConfig{})

	if _, err := m.ValidateLogin(context.Background(), "u1", plan.Famille); !errors.Is(err, session.ErrMissingDeviceID) {
		t.Fatalf("expected ErrMissingDeviceID, got %v", err)
	}
	if _, err := m.AddSession(device("  "), "u1", plan.Famille); !errors.Is(err, session.ErrMissingDeviceID) {
		t.Fatalf("expected ErrMissingDeviceID for blank id, got %v", err)
	}
	if _, err := m.ValidateLogin(device("d1"), "", plan.Famille); !errors.Is(err, session.ErrMissingUserID) {
		t.Fatalf("expected ErrMissingUserID, got %v", err)
	}
}

func TestCustomIdentifierProvider(t *testing.T) {
	provider := session.ProviderFunc(func(context.Context) (string, error) { return "fixed", nil })
	m := session.NewManager(session.NewMemoryStore(), nil, provider, session.ManagerConfig{})

	sess, err := m.AddSession(context.Background(), "u1", plan.Individuel)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if sess.DeviceID != "fixed" {
		t.Fatalf("expected provider device id, got %q", sess.DeviceID)
	}
}

func TestTouchAndRemoveAll(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)}
	for name, m := range newManagers(t, session.ManagerConfig{Now: clock.Now}) {
		t.Run(name, func(t *testing.T) {
			for _, d := range []string{"a", "b", "c"} {
				if _, err := m.AddSession(device(d), "u1", plan.Famille); err != nil {
					t.Fatalf("add %s: %v", d, err)
				}
			}

			clock.Advance(5 * time.Minute)
			ok, err := m.TouchSession(device("b"), "u1")
			if err != nil || !ok {
				t.Fatalf("touch: %v %v", ok, err)
			}
			active, err := m.GetUserActiveSessions(context.Background(), "u1")
			if err != nil {
				t.Fatalf("active: %v", err)
			}
			for _, s := range active {
				if s.DeviceID == "b" && !s.LastActivity.Equal(clock.Now()) {
					t.Fatalf("touch did not refresh activity: %+v", s)
				}
			}

			n, err := m.RemoveAllSessions(context.Background(), "u1")
			if err != nil || n != 3 {
				t.Fatalf("remove all: %d %v", n, err)
			}
			active, err = m.GetUserActiveSessions(context.Background(), "u1")
			if err != nil || len(active) != 0 {
				t.Fatalf("expected no active sessions, got %v %v", active, err)
			}
		})
	}
}

func TestIdleSessionsDoNotCount(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)}
	cfg := session.ManagerConfig{Now: clock.Now, IdleTimeout: time.Hour}
	for name, m := range newManagers(t, cfg) {
		t.Run(name, func(t *testing.T) {
			if _, err := m.AddSession(device("stale"), "idle-user", plan.Individuel); err != nil {
				t.Fatalf("add: %v", err)
			}
			clock.Advance(2 * time.Hour)

			res, err := m.ValidateLogin(device("fresh"), "idle-user", plan.Individuel)
			if err != nil {
				t.Fatalf("validate: %v", err)
			}
			if !res.CanLogin {
				t.Fatalf("idle session must not hold the slot, got %+v", res)
			}
			if _, err := m.AddSession(device("fresh"), "idle-user", plan.Individuel); err != nil {
				t.Fatalf("admission must evict the idle session: %v", err)
			}
		})
	}
}

func TestIdleBoundaryMatchesAdmission(t *testing.T) {
	for _, name := range []string{"memory", "redis"} {
		t.Run(name, func(t *testing.T) {
			clock := &fakeClock{now: time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)}
			m := newManagers(t, session.ManagerConfig{Now: clock.Now, IdleTimeout: 10 * time.Minute})[name]

			if _, err := m.AddSession(device("tv"), "edge-user", plan.Individuel); err != nil {
				t.Fatalf("add: %v", err)
			}

			// Under a millisecond past the timeout the session still holds its slot.
			clock.Advance(10*time.Minute + 500*time.Microsecond)
			res, err := m.ValidateLogin(device("phone"), "edge-user", plan.Individuel)
			if err != nil {
				t.Fatalf("validate: %v", err)
			}
			if res.CanLogin || len(res.ActiveSessions) != 1 {
				t.Fatalf("expected occupied slot, got %+v", res)
			}
			if _, err := m.AddSession(device("phone"), "edge-user", plan.Individuel); !errors.Is(err, session.ErrDeviceLimitExceeded) {
				t.Fatalf("admission must agree with validation, got %v", err)
			}

			clock.Advance(500 * time.Microsecond)
			res, err = m.ValidateLogin(device("phone"), "edge-user", plan.Individuel)
			if err != nil {
				t.Fatalf("validate: %v", err)
			}
			if !res.CanLogin || len(res.ActiveSessions) != 0 {
				t.Fatalf("expected free slot, got %+v", res)
			}
			if _, err := m.AddSession(device("phone"), "edge-user", plan.Individuel); err != nil {
				t.Fatalf("admission must evict the idle session: %v", err)
			}
		})
	}
}

func TestCancelledContextSkipsMutation(t *testing.T) {
	store := session.NewMemoryStore()
	m := session.NewManager(store, nil, nil, session.ManagerConfig{})

	ctx, cancel := context.WithCancel(device("d1"))
	cancel()
	if _, err := m.AddSession(ctx, "u1", plan.Famille); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	all, err := store.Sessions(context.Background(), "u1")
	if err != nil || len(all) != 0 {
		t.Fatalf("cancelled admission must not write, got %v %v", all, err)
	}
}

func TestConcurrentLoginsNeverExceedLimit(t *testing.T) {
	for name, m := range newManagers(t, session.ManagerConfig{}) {
		t.Run(name, func(t *testing.T) {
			const attempts = 30
			var (
				wg       sync.WaitGroup
				admitted atomic.Int32
			)
			for i := 0; i < attempts; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					ctx := device(fmt.Sprintf("dev-%d", i))
					res, err := m.ValidateLogin(ctx, "race", plan.Famille)
					if err != nil || !res.CanLogin {
						return
					}
					if _, err := m.AddSession(ctx, "race", plan.Famille); err == nil {
						admitted.Add(1)
					}
				}(i)
			}
			wg.Wait()

			active, err := m.GetUserActiveSessions(context.Background(), "race")
			if err != nil {
				t.Fatalf("active: %v", err)
			}
			if len(active) > 5 || int(admitted.Load()) != len(active) {
				t.Fatalf("device limit broken: admitted=%d active=%d", admitted.Load(), len(active))
			}
		})
	}
}
