package browser

import (
	"testing"
	"time"

	"github.com/trose/ice-locator-go/internal/fingerprint"
)

func TestSessionBookkeeping(t *testing.T) {
	now := time.Now()
	sess := &Session{
		ID:           "s1",
		Persona:      fingerprint.Default(),
		startTime:    now,
		lastActivity: now,
	}

	sess.RecordVisit()
	sess.RecordVisit()
	sess.RecordAction("navigate_to:https://ex.com/a")
	sess.RecordAction("click:#submit")

	if sess.PagesVisited() != 2 {
		t.Errorf("pages visited = %d, want 2", sess.PagesVisited())
	}
	actions := sess.Actions()
	if len(actions) != 2 || actions[0] != "navigate_to:https://ex.com/a" || actions[1] != "click:#submit" {
		t.Errorf("action log = %v", actions)
	}
	if sess.LastActivity().Before(now) {
		t.Error("last activity not advanced")
	}
}

func TestSessionActionsReturnsCopy(t *testing.T) {
	sess := &Session{ID: "s"}
	sess.RecordAction("one")

	actions := sess.Actions()
	actions[0] = "mutated"

	if sess.Actions()[0] != "one" {
		t.Error("Actions exposed internal slice")
	}
}

func TestSessionRestoreCounters(t *testing.T) {
	sess := &Session{ID: "s"}
	start := time.Now().Add(-time.Hour)
	actions := []string{"navigate_to:a", "fill_form:#x", "navigate_to:b"}

	sess.RestoreCounters(start, 7, actions)

	if sess.PagesVisited() != 7 {
		t.Errorf("pages visited = %d, want 7", sess.PagesVisited())
	}
	if !sess.StartTime().Equal(start) {
		t.Error("start time not restored")
	}
	restored := sess.Actions()
	for i, want := range actions {
		if restored[i] != want {
			t.Errorf("action %d = %q, want %q", i, restored[i], want)
		}
	}

	// The restored log is a copy of the caller's slice.
	actions[0] = "mutated"
	if sess.Actions()[0] != "navigate_to:a" {
		t.Error("restored actions alias the caller's slice")
	}
}

func TestSessionIdleFor(t *testing.T) {
	sess := &Session{ID: "s"}
	sess.mu.Lock()
	sess.lastActivity = time.Now().Add(-10 * time.Minute)
	sess.mu.Unlock()

	idle := sess.IdleFor(time.Now())
	if idle < 9*time.Minute || idle > 11*time.Minute {
		t.Errorf("idle = %v, want ~10m", idle)
	}
}
