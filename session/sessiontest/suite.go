// Package sessiontest holds a conformance suite shared by every [session.Store]
// implementation.
package sessiontest

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

// Factory returns a fresh, empty store. Cleanup is registered on t.
type Factory func(t *testing.T) session.Store

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func admission(userID, deviceID string, max int, at time.Time) session.Admission {
	return session.Admission{
		UserID:     userID,
		DeviceID:   deviceID,
		PlanType:   plan.Famille,
		MaxDevices: max,
		SessionID:  "sid-" + deviceID,
		Now:        at,
	}
}

// Run executes the suite against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("CreateThenRefresh", func(t *testing.T) { testCreateThenRefresh(t, newStore(t)) })
	t.Run("LimitEnforced", func(t *testing.T) { testLimitEnforced(t, newStore(t)) })
	t.Run("ReactivateKeepsSessionID", func(t *testing.T) { testReactivate(t, newStore(t)) })
	t.Run("DeactivateFreesSlot", func(t *testing.T) { testDeactivateFreesSlot(t, newStore(t)) })
	t.Run("DeactivateAll", func(t *testing.T) { testDeactivateAll(t, newStore(t)) })
	t.Run("Touch", func(t *testing.T) { testTouch(t, newStore(t)) })
	t.Run("IdleEviction", func(t *testing.T) { testIdleEviction(t, newStore(t)) })
	t.Run("UsersIsolated", func(t *testing.T) { testUsersIsolated(t, newStore(t)) })
	t.Run("ConcurrentAdmission", func(t *testing.T) { testConcurrentAdmission(t, newStore(t)) })
}

func testCreateThenRefresh(t *testing.T, store session.Store) {
	ctx := context.Background()

	sess, outcome, err := store.Admit(ctx, admission("u1", "d1", 1, base))
	if err != nil {
		t.Fatalf("admit: %v", err)
	}
	if outcome != session.AdmitCreated {
		t.Fatalf("expected created, got %v", outcome)
	}
	if !sess.IsActive || sess.SessionID != "sid-d1" || sess.PlanType != plan.Famille {
		t.Fatalf("unexpected session %+v", sess)
	}
	if !sess.CreatedAt.Equal(base) || !sess.LastActivity.Equal(base) {
		t.Fatalf("unexpected timestamps %+v", sess)
	}

	later := base.Add(time.Minute)
	a := admission("u1", "d1", 1, later)
	a.SessionID = "other"
	sess, outcome, err = store.Admit(ctx, a)
	if err != nil {
		t.Fatalf("same device admit: %v", err)
	}
	if outcome != session.AdmitRefreshed {
		t.Fatalf("expected refreshed, got %v", outcome)
	}
	if sess.SessionID != "sid-d1" || !sess.CreatedAt.Equal(base) || !sess.LastActivity.Equal(later) {
		t.Fatalf("refresh must keep identity and bump activity, got %+v", sess)
	}

	all, err := store.Sessions(ctx, "u1")
	if err != nil {
		t.Fatalf("sessions: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("same device must not duplicate rows, got %d", len(all))
	}
}

func testLimitEnforced(t *testing.T, store session.Store) {
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, _, err := store.Admit(ctx, admission("u1", fmt.Sprintf("d%d", i), 5, base)); err != nil {
			t.Fatalf("admit %d: %v", i, err)
		}
	}
	if _, _, err := store.Admit(ctx, admission("u1", "d5", 5, base)); !errors.Is(err, session.ErrDeviceLimitExceeded) {
		t.Fatalf("expected ErrDeviceLimitExceeded, got %v", err)
	}

	active, err := store.ActiveSessions(ctx, "u1")
	if err != nil {
		t.Fatalf("active: %v", err)
	}
	if len(active) != 5 {
		t.Fatalf("expected 5 active, got %d", len(active))
	}

	if _, outcome, err := store.Admit(ctx, admission("u1", "d3", 5, base)); err != nil || outcome != session.AdmitRefreshed {
		t.Fatalf("existing device at limit must refresh, got %v %v", outcome, err)
	}
}

func testReactivate(t *testing.T, store session.Store) {
	ctx := context.Background()

	if _, _, err := store.Admit(ctx, admission("u1", "d1", 1, base)); err != nil {
		t.Fatalf("admit: %v", err)
	}
	ok, err := store.Deactivate(ctx, "u1", "d1")
	if err != nil || !ok {
		t.Fatalf("deactivate: %v %v", ok, err)
	}

	a := admission("u1", "d1", 1, base.Add(time.Hour))
	a.SessionID = "fresh"
	sess, outcome, err := store.Admit(ctx, a)
	if err != nil {
		t.Fatalf("reactivate: %v", err)
	}
	if outcome != session.AdmitReactivated {
		t.Fatalf("expected reactivated, got %v", outcome)
	}
	if sess.SessionID != "sid-d1" || !sess.IsActive {
		t.Fatalf("reactivation must keep the stored row, got %+v", sess)
	}

	all, err := store.Sessions(ctx, "u1")
	if err != nil {
		t.Fatalf("sessions: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected single row, got %d", len(all))
	}
}

func testDeactivateFreesSlot(t *testing.T, store session.Store) {
	ctx := context.Background()

	if _, _, err := store.Admit(ctx, admission("u1", "d1", 1, base)); err != nil {
		t.Fatalf("admit: %v", err)
	}
	if _, _, err := store.Admit(ctx, admission("u1", "d2", 1, base)); !errors.Is(err, session.ErrDeviceLimitExceeded) {
		t.Fatalf("expected limit, got %v", err)
	}

	ok, err := store.Deactivate(ctx, "u1", "d1")
	if err != nil || !ok {
		t.Fatalf("deactivate: %v %v", ok, err)
	}
	ok, err = store.Deactivate(ctx, "u1", "d1")
	if err != nil || ok {
		t.Fatalf("second deactivate must report false, got %v %v", ok, err)
	}
	ok, err = store.Deactivate(ctx, "u1", "missing")
	if err != nil || ok {
		t.Fatalf("unknown device must report false, got %v %v", ok, err)
	}

	if _, outcome, err := store.Admit(ctx, admission("u1", "d2", 1, base)); err != nil || outcome != session.AdmitCreated {
		t.Fatalf("freed slot must admit, got %v %v", outcome, err)
	}
}

func testDeactivateAll(t *testing.T, store session.Store) {
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, _, err := store.Admit(ctx, admission("u1", fmt.Sprintf("d%d", i), 5, base)); err != nil {
			t.Fatalf("admit %d: %v", i, err)
		}
	}
	n, err := store.DeactivateAll(ctx, "u1")
	if err != nil {
		t.Fatalf("deactivate all: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 deactivated, got %d", n)
	}
	active, err := store.ActiveSessions(ctx, "u1")
	if err != nil {
		t.Fatalf("active: %v", err)
	}
	if len(active) != 0 {
		t.Fatalf("expected none active, got %d", len(active))
	}
	if n, err := store.DeactivateAll(ctx, "nobody"); err != nil || n != 0 {
		t.Fatalf("unknown user: %d %v", n, err)
	}
}

func testTouch(t *testing.T, store session.Store) {
	ctx := context.Background()

	if _, _, err := store.Admit(ctx, admission("u1", "d1", 1, base)); err != nil {
		t.Fatalf("admit: %v", err)
	}
	later := base.Add(10 * time.Minute)
	ok, err := store.Touch(ctx, "u1", "d1", later)
	if err != nil || !ok {
		t.Fatalf("touch: %v %v", ok, err)
	}
	active, err := store.ActiveSessions(ctx, "u1")
	if err != nil || len(active) != 1 {
		t.Fatalf("active: %v %v", active, err)
	}
	if !active[0].LastActivity.Equal(later) {
		t.Fatalf("expected last activity %v, got %v", later, active[0].LastActivity)
	}

	if _, err := store.Deactivate(ctx, "u1", "d1"); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	ok, err = store.Touch(ctx, "u1", "d1", later)
	if err != nil || ok {
		t.Fatalf("touching inactive session must report false, got %v %v", ok, err)
	}
}

func testIdleEviction(t *testing.T, store session.Store) {
	ctx := context.Background()

	if _, _, err := store.Admit(ctx, admission("u1", "d1", 1, base)); err != nil {
		t.Fatalf("admit: %v", err)
	}

	a := admission("u1", "d2", 1, base.Add(30*time.Minute))
	a.IdleTimeout = time.Hour
	if _, _, err := store.Admit(ctx, a); !errors.Is(err, session.ErrDeviceLimitExceeded) {
		t.Fatalf("session within idle timeout must still count, got %v", err)
	}

	a = admission("u1", "d2", 1, base.Add(2*time.Hour))
	a.IdleTimeout = time.Hour
	if _, _, err := store.Admit(ctx, a); err != nil {
		t.Fatalf("idle session must be evicted: %v", err)
	}

	active, err := store.ActiveSessions(ctx, "u1")
	if err != nil {
		t.Fatalf("active: %v", err)
	}
	if len(active) != 1 || active[0].DeviceID != "d2" {
		t.Fatalf("expected only d2 active, got %+v", active)
	}
}

func testUsersIsolated(t *testing.T, store session.Store) {
	ctx := context.Background()

	if _, _, err := store.Admit(ctx, admission("u1", "shared", 1, base)); err != nil {
		t.Fatalf("admit u1: %v", err)
	}
	if _, _, err := store.Admit(ctx, admission("u2", "shared", 1, base)); err != nil {
		t.Fatalf("admit u2: %v", err)
	}
	if _, err := store.Deactivate(ctx, "u1", "shared"); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	active, err := store.ActiveSessions(ctx, "u2")
	if err != nil || len(active) != 1 {
		t.Fatalf("u2 must be unaffected, got %v %v", active, err)
	}
}

func testConcurrentAdmission(t *testing.T, store session.Store) {
	ctx := context.Background()
	const (
		max     = 5
		devices = 40
	)

	var (
		wg       sync.WaitGroup
		admitted atomic.Int32
		denied   atomic.Int32
		failures = make(chan error, devices)
	)
	for i := 0; i < devices; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, err := store.Admit(ctx, admission("u1", fmt.Sprintf("d%d", i), max, base))
			switch {
			case err == nil:
				admitted.Add(1)
			case errors.Is(err, session.ErrDeviceLimitExceeded):
				denied.Add(1)
			default:
				failures <- err
			}
		}(i)
	}
	wg.Wait()
	close(failures)

	for err := range failures {
		t.Fatalf("unexpected admit error: %v", err)
	}
	if admitted.Load() != max {
		t.Fatalf("expected exactly %d admitted, got %d", max, admitted.Load())
	}
	if denied.Load() != devices-max {
		t.Fatalf("expected %d denied, got %d", devices-max, denied.Load())
	}
	active, err := store.ActiveSessions(ctx, "u1")
	if err != nil {
		t.Fatalf("active: %v", err)
	}
	if len(active) != max {
		t.Fatalf("active sessions exceed policy: %d", len(active))
	}
}
