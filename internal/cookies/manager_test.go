package cookies

import (
	"math/rand"
	"testing"
	"time"
)

var testNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func newTestManager(seed int64) *Manager {
	return NewManagerWithClock(rand.New(rand.NewSource(seed)), func() time.Time { return testNow })
}

func ptrTime(t time.Time) *time.Time { return &t }

func TestCategoryOf(t *testing.T) {
	future := testNow.Add(time.Hour)
	tests := []struct {
		name   string
		cookie Cookie
		want   Category
	}{
		{"session cookie", Cookie{Name: "sid", Domain: "example.com"}, CategorySession},
		{"persistent cookie", Cookie{Name: "pref", Domain: "example.com", Expires: ptrTime(future)}, CategoryPersistent},
		{"tracker by domain", Cookie{Name: "_ga", Domain: "google-analytics.com"}, CategoryTracking},
		{"tracker subdomain", Cookie{Name: "_ga", Domain: ".www.google-analytics.com", Expires: ptrTime(future)}, CategoryTracking},
		{"tracker doubleclick", Cookie{Name: "id", Domain: "ad.doubleclick.net"}, CategoryTracking},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cookie.CategoryOf(); got != tt.want {
				t.Errorf("CategoryOf() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	m := newTestManager(1)

	in := []Cookie{
		{Name: "good", Domain: "example.com", Value: "v"},
		{Name: "", Domain: "example.com"},                                    // no name
		{Name: "nodomain", Domain: ""},                                       // no domain
		{Name: "stale", Domain: "example.com", Expires: ptrTime(testNow.Add(-time.Hour))}, // past expiry
		{Name: "edge", Domain: "example.com", Expires: ptrTime(testNow)},     // expiry exactly now
		{Name: "fresh", Domain: "example.com", Expires: ptrTime(testNow.Add(time.Hour))},
	}

	out := m.Validate(in)
	if len(out) != 2 {
		t.Fatalf("Validate kept %d cookies, want 2: %+v", len(out), out)
	}
	for _, c := range out {
		if !c.LastAccess.Equal(testNow) {
			t.Errorf("cookie %q last access not updated", c.Name)
		}
	}
}

func TestExpiryExactlyNowIsExpired(t *testing.T) {
	c := Cookie{Name: "x", Domain: "example.com", Expires: ptrTime(testNow)}
	if !c.Expired(testNow) {
		t.Error("cookie with expiry exactly now must be expired")
	}
}

func TestCapExpiry(t *testing.T) {
	m := newTestManager(2)

	farFuture := testNow.Add(3 * 365 * 24 * time.Hour)
	past := testNow.Add(-time.Minute)
	ok := testNow.Add(24 * time.Hour)

	out := m.CapExpiry([]Cookie{
		{Name: "far", Domain: "d", Expires: ptrTime(farFuture)},
		{Name: "past", Domain: "d", Expires: ptrTime(past)},
		{Name: "ok", Domain: "d", Expires: ptrTime(ok)},
		{Name: "session", Domain: "d"},
	})

	maxAllowed := testNow.Add(maxPersistentLifetime)
	if out[0].Expires == nil || out[0].Expires.After(maxAllowed) {
		t.Errorf("far-future expiry not capped: %v", out[0].Expires)
	}
	if out[1].Expires != nil {
		t.Error("past expiry should convert to session cookie")
	}
	if out[2].Expires == nil || !out[2].Expires.Equal(ok) {
		t.Error("valid expiry should be untouched")
	}
	if out[3].Expires != nil {
		t.Error("session cookie should stay a session cookie")
	}
}

// TestRotateDeterministic pins the RNG so both session cookies rotate: every
// Float64 draw from this seed's first values is below the 0.10 session
// probability threshold in the iteration pattern used by Rotate.
func TestRotateDeterministic(t *testing.T) {
	var seed int64
	found := false
	// Find a seed where both rotation draws fall below 0.10. The search
	// replays the manager's exact draw sequence: a probability draw, then the
	// twelve alphabet draws regeneration consumes, then the second
	// probability draw.
	for s := int64(0); s < 100000 && !found; s++ {
		rng := rand.New(rand.NewSource(s))
		if rng.Float64() >= 0.10 {
			continue
		}
		for i := 0; i < 12; i++ {
			rng.Intn(len(alphanumeric))
		}
		if rng.Float64() < 0.10 {
			seed = s
			found = true
		}
	}
	if !found {
		t.Fatal("no suitable seed found")
	}

	m := NewManagerWithClock(rand.New(rand.NewSource(seed)), func() time.Time { return testNow })

	aged := testNow.Add(-10 * time.Minute)
	in := []Cookie{
		{Name: "sid1", Domain: "example.com", Value: "abc123def456", CreationTime: aged},
		{Name: "sid2", Domain: "example.com", Value: "zzz999yyy888", CreationTime: aged},
	}

	out := m.Rotate(in)
	if len(out) != 2 {
		t.Fatalf("Rotate returned %d cookies", len(out))
	}
	for i, c := range out {
		if c.Value == in[i].Value {
			t.Errorf("cookie %q value not rotated", c.Name)
		}
		if len(c.Value) != len(in[i].Value) {
			t.Errorf("cookie %q rotated value length %d, want %d", c.Name, len(c.Value), len(in[i].Value))
		}
		if !c.CreationTime.Equal(testNow) {
			t.Errorf("cookie %q creation time not reset", c.Name)
		}
		if !c.LastAccess.Equal(testNow) {
			t.Errorf("cookie %q last access not updated", c.Name)
		}
	}
}

func TestRotateRespectsMinimumAge(t *testing.T) {
	m := newTestManager(3)

	// A session cookie younger than the 300s minimum never rotates,
	// regardless of probability draws.
	in := []Cookie{{Name: "young", Domain: "example.com", Value: "abc123def999", CreationTime: testNow.Add(-time.Minute)}}
	for i := 0; i < 100; i++ {
		out := m.Rotate(in)
		if out[0].Value != in[0].Value {
			t.Fatal("cookie below minimum rotation age was rotated")
		}
	}
}

func TestRegenerateValuePreservesShape(t *testing.T) {
	m := newTestManager(4)

	tests := []struct {
		name  string
		value string
	}{
		{"long session id", "a1b2c3d4e5f6g7h8"},
		{"mid-length", "prefval"},
		{"short", "abc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := m.regenerateValue(tt.value)
			if len(got) != len(tt.value) {
				t.Errorf("regenerated length %d, want %d", len(got), len(tt.value))
			}
		})
	}
}

func TestRegenerateMidLengthPreservesCharClass(t *testing.T) {
	m := newTestManager(5)

	original := "ab12cd" // 6 chars, no digits-in-long rule (len < 10)
	for i := 0; i < 200; i++ {
		got := m.regenerateValue(original)
		if len(got) != len(original) {
			t.Fatalf("length changed: %q", got)
		}
		for pos := range got {
			origDigit := isDigit(original[pos])
			gotDigit := isDigit(got[pos])
			if origDigit != gotDigit {
				t.Fatalf("position %d changed class: %q -> %q", pos, original, got)
			}
		}
	}
}

func TestPrepareForSessionIdempotentWithoutRotation(t *testing.T) {
	// Probability zero path: seed chosen so no rotation draw succeeds is not
	// reliable; instead use young cookies that are below every category's
	// minimum age, where rotation can never fire.
	m := newTestManager(6)

	in := []Cookie{
		{Name: "a", Domain: "example.com", Value: "val123val456", CreationTime: testNow.Add(-time.Minute)},
		{Name: "b", Domain: "example.com", Value: "x", CreationTime: testNow.Add(-time.Minute)},
	}

	first := m.PrepareForSession(in)
	second := m.PrepareForSession(first)

	if len(first) != len(second) {
		t.Fatalf("pipeline changed cookie count: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].Name != second[i].Name || first[i].Value != second[i].Value {
			t.Errorf("cookie %d changed across idempotent runs", i)
		}
	}
}

func TestPrepareForSessionDropsExpired(t *testing.T) {
	m := newTestManager(7)

	in := []Cookie{
		{Name: "live", Domain: "example.com", Value: "v", CreationTime: testNow},
		{Name: "dead", Domain: "example.com", Value: "v", Expires: ptrTime(testNow.Add(-time.Second)), CreationTime: testNow},
	}

	out := m.PrepareForSession(in)
	if len(out) != 1 || out[0].Name != "live" {
		t.Errorf("PrepareForSession = %+v, want only the live cookie", out)
	}
}
