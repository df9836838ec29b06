package store

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/trose/ice-locator-go/internal/cookies"
	"github.com/trose/ice-locator-go/internal/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir(), 30*time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func sampleSession(id string) *PersistentSession {
	expires := time.Now().Add(time.Hour)
	return &PersistentSession{
		SessionID:    id,
		ProfileName:  "chrome-windows",
		UserAgent:    "Mozilla/5.0 (Windows NT 10.0; Win64; x64)",
		StartTime:    1700000000,
		PagesVisited: 7,
		ActionsPerformed: []string{
			"navigate_to:https://ex.com/a",
			"fill_form:#name",
			"click:#submit",
		},
		Cookies: []cookies.Cookie{
			{Name: "sid", Value: "abc123", Domain: "ex.com", Path: "/", CreationTime: time.Now(), LastAccess: time.Now()},
			{Name: "pref", Value: "dark", Domain: "ex.com", Path: "/", Expires: &expires, CreationTime: time.Now(), LastAccess: time.Now()},
			{Name: "lang", Value: "en", Domain: "ex.com", Path: "/", CreationTime: time.Now(), LastAccess: time.Now()},
		},
		LocalStorage:   map[string]string{"theme": "dark"},
		SessionStorage: map[string]string{},
		ViewportWidth:  1920,
		ViewportHeight: 1080,
		Language:       "en-US",
		Timezone:       "America/New_York",
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := newTestStore(t)

	original := sampleSession("s1")
	if !s.Save("s1", original) {
		t.Fatal("Save returned false")
	}

	// Force a disk read by clearing the cache.
	s.mu.Lock()
	s.cache = make(map[string]*PersistentSession)
	s.mu.Unlock()

	loaded, err := s.Load("s1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if loaded.SessionID != original.SessionID ||
		loaded.ProfileName != original.ProfileName ||
		loaded.PagesVisited != original.PagesVisited {
		t.Errorf("loaded session differs: %+v", loaded)
	}
	if len(loaded.ActionsPerformed) != 3 || loaded.ActionsPerformed[0] != "navigate_to:https://ex.com/a" {
		t.Errorf("action log not preserved in order: %v", loaded.ActionsPerformed)
	}
	if len(loaded.Cookies) != 3 {
		t.Errorf("cookies not preserved: %d", len(loaded.Cookies))
	}
	if loaded.LocalStorage["theme"] != "dark" {
		t.Error("local storage not preserved")
	}
}

func TestSaveWritesExpectedFileLayout(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir, 30*time.Minute)
	if err != nil {
		t.Fatal(err)
	}

	s.Save("abc", sampleSession("abc"))

	path := filepath.Join(dir, "session_abc.json")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("expected session file at %s: %v", path, err)
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("session file is not valid JSON: %v", err)
	}
	for _, field := range []string{
		"session_id", "profile_name", "user_agent", "start_time",
		"last_activity", "pages_visited", "actions_performed", "cookies",
		"local_storage", "session_storage", "viewport_width",
		"viewport_height", "language", "timezone",
	} {
		if _, ok := raw[field]; !ok {
			t.Errorf("session file missing field %q", field)
		}
	}
}

func TestLoadMissingSession(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Load("ghost"); !errors.Is(err, types.ErrSessionNotFound) {
		t.Errorf("Load missing = %v, want ErrSessionNotFound", err)
	}
}

func TestLoadExpiredSession(t *testing.T) {
	s := newTestStore(t)
	s.Save("old", sampleSession("old"))

	// Clear cache and age the file past the timeout.
	s.mu.Lock()
	s.cache = make(map[string]*PersistentSession)
	s.mu.Unlock()

	past := time.Now().Add(-time.Hour)
	if err := os.Chtimes(s.path("old"), past, past); err != nil {
		t.Fatal(err)
	}

	if _, err := s.Load("old"); !errors.Is(err, types.ErrSessionExpired) {
		t.Errorf("Load expired = %v, want ErrSessionExpired", err)
	}
}

func TestLoadSkipsCorruptFile(t *testing.T) {
	s := newTestStore(t)
	if err := os.WriteFile(s.path("broken"), []byte("{\"session_id\": \"bro"), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := s.Load("broken"); err == nil {
		t.Error("Load of a partially written file should error")
	}
}

func TestDelete(t *testing.T) {
	s := newTestStore(t)
	s.Save("gone", sampleSession("gone"))

	if err := s.Delete("gone"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Load("gone"); !errors.Is(err, types.ErrSessionNotFound) {
		t.Error("session still loadable after delete")
	}
	// Deleting again is not an error.
	if err := s.Delete("gone"); err != nil {
		t.Errorf("second Delete: %v", err)
	}
}

func TestInfoAndList(t *testing.T) {
	s := newTestStore(t)
	s.Save("a", sampleSession("a"))
	s.Save("b", sampleSession("b"))

	info := s.Info("a")
	if info == nil {
		t.Fatal("Info returned nil for existing session")
	}
	if info.SessionID != "a" || info.PagesVisited != 7 || info.ActionsCount != 3 {
		t.Errorf("Info = %+v", info)
	}
	if !info.IsActive {
		t.Error("freshly saved session should be active")
	}
	if info.Storage != "memory" {
		t.Errorf("Storage = %q, want memory", info.Storage)
	}

	if s.Info("nope") != nil {
		t.Error("Info for missing session should be nil")
	}

	list := s.List()
	if len(list) != 2 {
		t.Fatalf("List returned %d sessions, want 2", len(list))
	}
}

func TestListSkipsCorruptFiles(t *testing.T) {
	s := newTestStore(t)
	s.Save("ok", sampleSession("ok"))
	if err := os.WriteFile(s.path("bad"), []byte("not json"), 0o600); err != nil {
		t.Fatal(err)
	}

	// Only disk entries are visible once the cache is cleared.
	s.mu.Lock()
	s.cache = make(map[string]*PersistentSession)
	s.mu.Unlock()

	list := s.List()
	if len(list) != 1 || list[0].SessionID != "ok" {
		t.Errorf("List = %+v, want just the readable session", list)
	}
	if list[0].Storage != "disk" {
		t.Errorf("Storage = %q, want disk", list[0].Storage)
	}
}

func TestCleanupExpired(t *testing.T) {
	s := newTestStore(t)
	s.Save("fresh", sampleSession("fresh"))
	s.Save("stale", sampleSession("stale"))

	// Age the stale session on disk and in memory.
	past := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(s.path("stale"), past, past); err != nil {
		t.Fatal(err)
	}
	s.mu.Lock()
	s.cache["stale"].LastActivity = float64(past.UnixNano()) / float64(time.Second)
	s.mu.Unlock()

	deleted := s.CleanupExpired()
	// Both the in-memory copy and the disk file count.
	if deleted != 2 {
		t.Errorf("CleanupExpired = %d, want 2", deleted)
	}

	if _, err := os.Stat(s.path("stale")); !errors.Is(err, os.ErrNotExist) {
		t.Error("stale session file still on disk")
	}
	if _, err := os.Stat(s.path("fresh")); err != nil {
		t.Error("fresh session file should survive cleanup")
	}
}
