package browser

import (
	"sync"
	"time"

	"github.com/go-rod/rod"

	"github.com/trose/ice-locator-go/internal/fingerprint"
)

// Session is a named, stateful sequence of browser interactions under one
// persona. The session exclusively owns its page and action log; its live
// cookies live in the page's jar.
//
// opMu serializes browser actions: one in-flight operation per session, so
// concurrent callers cannot corrupt page state mid-navigation.
type Session struct {
	ID      string
	Persona fingerprint.Persona

	page    *rod.Page
	browser *rod.Browser // incognito context owning the page

	mu           sync.Mutex // guards the mutable fields below
	pagesVisited int
	actions      []string
	startTime    time.Time
	lastActivity time.Time

	opMu sync.Mutex
}

// Page returns the session's page.
func (s *Session) Page() *rod.Page {
	return s.page
}

// Touch updates the last-activity timestamp.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

// RecordAction appends to the ordered action log and touches the session.
func (s *Session) RecordAction(action string) {
	s.mu.Lock()
	s.actions = append(s.actions, action)
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

// RecordVisit bumps the pages-visited counter.
func (s *Session) RecordVisit() {
	s.mu.Lock()
	s.pagesVisited++
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

// PagesVisited returns the visit counter.
func (s *Session) PagesVisited() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pagesVisited
}

// Actions returns a copy of the ordered action log.
func (s *Session) Actions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.actions))
	copy(out, s.actions)
	return out
}

// StartTime returns when the session began.
func (s *Session) StartTime() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startTime
}

// LastActivity returns the last-activity timestamp.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// IdleFor reports how long the session has been inactive.
func (s *Session) IdleFor(now time.Time) time.Duration {
	return now.Sub(s.LastActivity())
}

// RestoreCounters replays persisted state into a live session: start time,
// visit counter, and the ordered action log.
func (s *Session) RestoreCounters(startTime time.Time, pagesVisited int, actions []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.startTime = startTime
	s.pagesVisited = pagesVisited
	s.actions = append([]string(nil), actions...)
	s.lastActivity = time.Now()
}

// lockOp serializes one browser operation; callers must call the returned
// unlock when the operation completes.
func (s *Session) lockOp() func() {
	s.opMu.Lock()
	return s.opMu.Unlock
}
