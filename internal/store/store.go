// Package store persists session state on disk so sessions survive process
// restarts. Each session is one JSON file; the file's mtime is the expiry
// clock. Readers tolerate files being written or deleted underneath them.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/trose/ice-locator-go/internal/cookies"
	"github.com/trose/ice-locator-go/internal/types"
)

// PersistentSession is the on-disk serialization of a session. Runtime
// handles (pages, browsers) are never persisted.
type PersistentSession struct {
	SessionID        string            `json:"session_id"`
	ProfileName      string            `json:"profile_name"`
	UserAgent        string            `json:"user_agent"`
	StartTime        float64           `json:"start_time"`
	LastActivity     float64           `json:"last_activity"`
	PagesVisited     int               `json:"pages_visited"`
	ActionsPerformed []string          `json:"actions_performed"`
	Cookies          []cookies.Cookie  `json:"cookies"`
	LocalStorage     map[string]string `json:"local_storage"`
	SessionStorage   map[string]string `json:"session_storage"`
	ViewportWidth    int               `json:"viewport_width"`
	ViewportHeight   int               `json:"viewport_height"`
	Language         string            `json:"language"`
	Timezone         string            `json:"timezone"`
}

// Store manages per-session JSON files under a base directory.
// Mutations are serialized per session id; list and info may race with
// writers and skip unreadable files.
type Store struct {
	dir     string
	timeout time.Duration
	now     func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
	cache map[string]*PersistentSession // in-memory copies of saved sessions
}

// New creates a session store rooted at dir. The directory is created if
// missing.
func New(dir string, timeout time.Duration) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}

	log.Info().
		Str("dir", dir).
		Dur("timeout", timeout).
		Msg("Session store initialized")

	return &Store{
		dir:     dir,
		timeout: timeout,
		now:     time.Now,
		locks:   make(map[string]*sync.Mutex),
		cache:   make(map[string]*PersistentSession),
	}, nil
}

// SetClock replaces the store's clock, for tests.
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

// lockFor returns the mutex serializing mutations for one session id.
func (s *Store) lockFor(sessionID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[sessionID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[sessionID] = l
	}
	return l
}

func (s *Store) path(sessionID string) string {
	return filepath.Join(s.dir, "session_"+sessionID+".json")
}

// Save writes a session to disk and the in-memory cache. Persistence errors
// are never fatal to the caller's request; Save returns false and logs.
func (s *Store) Save(sessionID string, session *PersistentSession) bool {
	lock := s.lockFor(sessionID)
	lock.Lock()
	defer lock.Unlock()

	session.LastActivity = float64(s.now().UnixNano()) / float64(time.Second)

	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		log.Error().Err(err).Str("session_id", sessionID).Msg("Failed to serialize session")
		return false
	}

	if err := os.WriteFile(s.path(sessionID), data, 0o600); err != nil {
		log.Error().Err(err).Str("session_id", sessionID).Msg("Failed to save session")
		return false
	}

	s.mu.Lock()
	s.cache[sessionID] = session
	s.mu.Unlock()

	log.Debug().Str("session_id", sessionID).Msg("Session saved")
	return true
}

// Load reads a session from the cache or disk. Returns ErrSessionNotFound
// when no live copy exists, ErrSessionExpired when the file has aged out.
func (s *Store) Load(sessionID string) (*PersistentSession, error) {
	s.mu.Lock()
	cached, ok := s.cache[sessionID]
	s.mu.Unlock()
	if ok {
		return cached, nil
	}

	path := s.path(sessionID)
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, types.ErrSessionNotFound
		}
		return nil, err
	}
	if s.expired(info.ModTime()) {
		return nil, types.ErrSessionExpired
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var session PersistentSession
	if err := json.Unmarshal(data, &session); err != nil {
		// Writers truncate-and-write, so a reader can observe a partial file.
		return nil, fmt.Errorf("session file unreadable: %w", err)
	}

	s.mu.Lock()
	s.cache[sessionID] = &session
	s.mu.Unlock()

	return &session, nil
}

// Delete removes a session from disk and memory.
func (s *Store) Delete(sessionID string) error {
	lock := s.lockFor(sessionID)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	delete(s.cache, sessionID)
	s.mu.Unlock()

	err := os.Remove(s.path(sessionID))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Error().Err(err).Str("session_id", sessionID).Msg("Failed to delete session file")
		return err
	}

	log.Debug().Str("session_id", sessionID).Msg("Session deleted")
	return nil
}

// Info returns a summary of a session without fully materializing it into
// the cache. Returns nil when the session does not exist or is unreadable.
func (s *Store) Info(sessionID string) *types.SessionSummary {
	s.mu.Lock()
	if session, ok := s.cache[sessionID]; ok {
		s.mu.Unlock()
		return s.summarize(session, "memory")
	}
	s.mu.Unlock()

	data, err := os.ReadFile(s.path(sessionID))
	if err != nil {
		return nil
	}
	var session PersistentSession
	if err := json.Unmarshal(data, &session); err != nil {
		return nil
	}
	return s.summarize(&session, "disk")
}

// List returns summaries of all known sessions, in-memory copies first,
// sorted most-recently-active first. Unreadable files are skipped.
func (s *Store) List() []types.SessionSummary {
	byID := make(map[string]types.SessionSummary)

	s.mu.Lock()
	for id, session := range s.cache {
		byID[id] = *s.summarize(session, "memory")
	}
	s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list session directory")
	}
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(name, "session_") || !strings.HasSuffix(name, ".json") {
			continue
		}
		id := strings.TrimSuffix(strings.TrimPrefix(name, "session_"), ".json")
		if _, ok := byID[id]; ok {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, name))
		if err != nil {
			continue
		}
		var session PersistentSession
		if err := json.Unmarshal(data, &session); err != nil {
			continue // partially written or corrupt, skip
		}
		byID[id] = *s.summarize(&session, "disk")
	}

	out := make([]types.SessionSummary, 0, len(byID))
	for _, summary := range byID {
		out = append(out, summary)
	}
	sortSummaries(out)
	return out
}

// CleanupExpired removes expired sessions from disk and memory, returning
// the number of deletions.
func (s *Store) CleanupExpired() int {
	deleted := 0
	now := s.now()

	s.mu.Lock()
	for id, session := range s.cache {
		lastActivity := time.Unix(0, int64(session.LastActivity*float64(time.Second)))
		if now.Sub(lastActivity) > s.timeout {
			delete(s.cache, id)
			deleted++
		}
	}
	s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		log.Error().Err(err).Msg("Failed to scan session directory for cleanup")
		return deleted
	}
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(name, "session_") || !strings.HasSuffix(name, ".json") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue // deleted underneath us
		}
		if s.expired(info.ModTime()) {
			if err := os.Remove(filepath.Join(s.dir, name)); err == nil {
				deleted++
			}
		}
	}

	if deleted > 0 {
		log.Debug().Int("deleted", deleted).Msg("Cleaned up expired sessions")
	}
	return deleted
}

func (s *Store) expired(mtime time.Time) bool {
	return s.now().Sub(mtime) > s.timeout
}

func (s *Store) summarize(session *PersistentSession, storage string) *types.SessionSummary {
	lastActivity := time.Unix(0, int64(session.LastActivity*float64(time.Second)))
	return &types.SessionSummary{
		SessionID:    session.SessionID,
		ProfileName:  session.ProfileName,
		StartTime:    session.StartTime,
		LastActivity: session.LastActivity,
		PagesVisited: session.PagesVisited,
		ActionsCount: len(session.ActionsPerformed),
		IsActive:     s.now().Sub(lastActivity) < s.timeout,
		Storage:      storage,
	}
}

// sortSummaries orders by last activity, most recent first.
func sortSummaries(summaries []types.SessionSummary) {
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].LastActivity > summaries[j].LastActivity
	})
}
