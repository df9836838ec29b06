package browser

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/trose/ice-locator-go/internal/store"
	"github.com/trose/ice-locator-go/internal/types"
)

// ExportSession serializes a live session for persistence: persona identity,
// counters, the action log, and the sanitized cookie jar. Runtime handles
// are left behind.
func (s *Simulator) ExportSession(ctx context.Context, sessionID string) (*store.PersistentSession, error) {
	sess, err := s.Session(sessionID)
	if err != nil {
		return nil, err
	}

	unlock := sess.lockOp()
	defer unlock()

	jar, err := s.cookies.Extract(sess.page.Context(ctx))
	if err != nil {
		log.Warn().Err(err).Str("session_id", sessionID).Msg("Cookie extraction failed during export")
		jar = nil
	}
	jar = s.cookies.Validate(jar)

	persona := sess.Persona
	return &store.PersistentSession{
		SessionID:        sessionID,
		ProfileName:      persona.Name,
		UserAgent:        persona.UserAgent,
		StartTime:        float64(sess.StartTime().UnixNano()) / float64(time.Second),
		PagesVisited:     sess.PagesVisited(),
		ActionsPerformed: sess.Actions(),
		Cookies:          jar,
		LocalStorage:     map[string]string{},
		SessionStorage:   map[string]string{},
		ViewportWidth:    persona.ViewportWidth,
		ViewportHeight:   persona.ViewportHeight,
		Language:         persona.Locale,
		Timezone:         persona.Timezone,
	}, nil
}

// RestoreSession replays persisted state into a live session: cookies run
// through the preparation pipeline before installation, and the counters and
// action log are restored in order. The session is created if missing.
func (s *Simulator) RestoreSession(ctx context.Context, sessionID string, snap *store.PersistentSession) error {
	sess, err := s.Session(sessionID)
	if err != nil {
		if sess, err = s.CreateSession(ctx, sessionID); err != nil {
			return err
		}
	}

	unlock := sess.lockOp()
	defer unlock()

	if len(snap.Cookies) > 0 {
		prepared := s.cookies.PrepareForSession(snap.Cookies)
		if err := s.cookies.Install(sess.page.Context(ctx), prepared); err != nil {
			return types.NewErrorRecord(types.KindPersistence, sessionID, err)
		}
	}

	startTime := time.Unix(0, int64(snap.StartTime*float64(time.Second)))
	sess.RestoreCounters(startTime, snap.PagesVisited, snap.ActionsPerformed)

	log.Info().
		Str("session_id", sessionID).
		Int("pages_visited", snap.PagesVisited).
		Int("cookies", len(snap.Cookies)).
		Msg("Session restored")
	return nil
}
