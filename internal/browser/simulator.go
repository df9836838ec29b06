package browser

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/trose/ice-locator-go/internal/captcha"
	"github.com/trose/ice-locator-go/internal/config"
	"github.com/trose/ice-locator-go/internal/cookies"
	"github.com/trose/ice-locator-go/internal/fingerprint"
	"github.com/trose/ice-locator-go/internal/humanize"
	"github.com/trose/ice-locator-go/internal/types"
)

// Simulator owns one long-lived browser process and the sessions running on
// it. Each session gets its own incognito context, so cookie jars never
// bleed across sessions.
type Simulator struct {
	cfg      *config.Config
	registry *fingerprint.Registry
	cookies  *cookies.Manager
	pipeline *captcha.Pipeline
	timing   *humanize.Timing
	typist   *humanize.Typist
	rng      *rand.Rand

	mu       sync.Mutex
	browser  *rod.Browser
	sessions map[string]*Session
}

// NewSimulator creates a simulator. The browser process is launched lazily
// on first use so constructing one is cheap.
func NewSimulator(cfg *config.Config, registry *fingerprint.Registry, cookieMgr *cookies.Manager, pipeline *captcha.Pipeline, rng *rand.Rand) *Simulator {
	timing := humanize.NewTiming(rng)
	return &Simulator{
		cfg:      cfg,
		registry: registry,
		cookies:  cookieMgr,
		pipeline: pipeline,
		timing:   timing,
		typist:   humanize.NewTypist(timing, rng),
		rng:      rng,
		sessions: make(map[string]*Session),
	}
}

// Initialize launches the browser process if it is not already running.
func (s *Simulator) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.browser != nil {
		return nil
	}

	browser, err := launchBrowser(s.cfg)
	if err != nil {
		return err
	}
	s.browser = browser
	return nil
}

// HasSession reports whether a session exists.
func (s *Simulator) HasSession(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sessions[id]
	return ok
}

// Session returns a live session by id.
func (s *Simulator) Session(id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, types.ErrSessionNotFound
	}
	return sess, nil
}

// SessionCount returns the number of live sessions.
func (s *Simulator) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// SessionIDs returns the ids of live sessions.
func (s *Simulator) SessionIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	return ids
}

// CreateSession opens a fresh incognito context under a newly sampled
// persona. The stealth payload is injected before any page script can run.
func (s *Simulator) CreateSession(ctx context.Context, id string) (*Session, error) {
	if err := s.Initialize(ctx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if _, exists := s.sessions[id]; exists {
		s.mu.Unlock()
		return nil, types.ErrSessionAlreadyExists
	}
	browser := s.browser
	s.mu.Unlock()

	persona := s.registry.SamplePersona()

	incognito, err := browser.Incognito()
	if err != nil {
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}

	page, err := incognito.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, fmt.Errorf("failed to create page: %w", err)
	}

	if err := s.applyPersona(page, persona); err != nil {
		_ = page.Close()
		return nil, err
	}

	now := time.Now()
	sess := &Session{
		ID:           id,
		Persona:      persona,
		page:         page,
		browser:      incognito,
		startTime:    now,
		lastActivity: now,
	}

	s.mu.Lock()
	s.sessions[id] = sess
	total := len(s.sessions)
	s.mu.Unlock()

	log.Info().
		Str("session_id", id).
		Str("persona", persona.Name).
		Int("total_sessions", total).
		Msg("Session created")

	return sess, nil
}

// applyPersona configures the page to present the persona before any
// navigation: user agent and headers, viewport, timezone, geolocation, and
// the init scripts (base stealth, then the persona payload).
func (s *Simulator) applyPersona(page *rod.Page, persona fingerprint.Persona) error {
	// Base stealth patches first, persona overrides second so persona values
	// win where both touch the same surface.
	if _, err := page.EvalOnNewDocument(stealth.JS); err != nil {
		return fmt.Errorf("failed to inject stealth script: %w", err)
	}
	payload, err := fingerprint.RenderStealthPayload(persona)
	if err != nil {
		return err
	}
	if _, err := page.EvalOnNewDocument(payload); err != nil {
		return fmt.Errorf("failed to inject persona payload: %w", err)
	}

	if err := (proto.NetworkSetUserAgentOverride{
		UserAgent:      persona.UserAgent,
		AcceptLanguage: persona.Headers["Accept-Language"],
		Platform:       persona.Platform,
	}).Call(page); err != nil {
		return fmt.Errorf("failed to set user agent: %w", err)
	}

	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             persona.ViewportWidth,
		Height:            persona.ViewportHeight,
		DeviceScaleFactor: persona.ScaleFactor,
		Mobile:            false,
	}); err != nil {
		return fmt.Errorf("failed to set viewport: %w", err)
	}

	if err := (proto.EmulationSetTimezoneOverride{
		TimezoneID: persona.Timezone,
	}).Call(page); err != nil {
		// Some builds reject uncommon zones; the persona header set still
		// holds together without the override.
		log.Warn().Err(err).Str("timezone", persona.Timezone).Msg("Timezone override failed")
	}

	lat, lon := 40.7128, -74.0060
	accuracy := float64(100)
	if err := (proto.EmulationSetGeolocationOverride{
		Latitude:  &lat,
		Longitude: &lon,
		Accuracy:  &accuracy,
	}).Call(page); err != nil {
		log.Warn().Err(err).Msg("Geolocation override failed")
	}

	headers := make([]string, 0, len(persona.Headers)*2)
	for name, value := range persona.Headers {
		headers = append(headers, name, value)
	}
	if _, err := page.SetExtraHeaders(headers); err != nil {
		return fmt.Errorf("failed to set extra headers: %w", err)
	}

	return nil
}

// CloseSession tears down a session and its browser context.
func (s *Simulator) CloseSession(ctx context.Context, id string) error {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	if ok {
		delete(s.sessions, id)
	}
	s.mu.Unlock()

	if !ok {
		return types.ErrSessionNotFound
	}

	// Wait out any in-flight operation before closing the page.
	unlock := sess.lockOp()
	defer unlock()

	if err := sess.page.Close(); err != nil {
		log.Warn().Err(err).Str("session_id", id).Msg("Error closing session page")
	}
	if sess.browser != nil {
		if err := sess.browser.Close(); err != nil {
			log.Warn().Err(err).Str("session_id", id).Msg("Error closing session browser context")
		}
	}

	log.Info().
		Str("session_id", id).
		Dur("lifetime", time.Since(sess.StartTime())).
		Msg("Session closed")
	return nil
}

// CloseIdleSessions closes sessions idle longer than the timeout, returning
// how many were closed.
func (s *Simulator) CloseIdleSessions(ctx context.Context, timeout time.Duration) int {
	now := time.Now()
	var idle []string
	s.mu.Lock()
	for id, sess := range s.sessions {
		if sess.IdleFor(now) > timeout {
			idle = append(idle, id)
		}
	}
	s.mu.Unlock()

	for _, id := range idle {
		if err := s.CloseSession(ctx, id); err != nil {
			log.Warn().Err(err).Str("session_id", id).Msg("Failed to close idle session")
		}
	}
	return len(idle)
}

// CloseAll closes every session in parallel and shuts down the browser.
func (s *Simulator) CloseAll(ctx context.Context) error {
	s.mu.Lock()
	sessions := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.sessions = make(map[string]*Session)
	browser := s.browser
	s.browser = nil
	s.mu.Unlock()

	eg := new(errgroup.Group)
	eg.SetLimit(4)
	for _, sess := range sessions {
		sess := sess
		eg.Go(func() error {
			unlock := sess.lockOp()
			defer unlock()
			if err := sess.page.Close(); err != nil {
				log.Warn().Err(err).Str("session_id", sess.ID).Msg("Error closing page during shutdown")
			}
			return nil
		})
	}
	_ = eg.Wait()

	if browser != nil {
		if err := browser.Close(); err != nil {
			log.Warn().Err(err).Msg("Error closing browser")
			return err
		}
	}
	return nil
}

// Restart tears everything down and relaunches the browser process.
func (s *Simulator) Restart(ctx context.Context) error {
	log.Info().Msg("Restarting browser")
	if err := s.CloseAll(ctx); err != nil {
		log.Warn().Err(err).Msg("Error during pre-restart teardown")
	}
	return s.Initialize(ctx)
}

// Probe is the synthetic health round-trip: create and close a throwaway
// session.
func (s *Simulator) Probe(ctx context.Context) error {
	id := fmt.Sprintf("health_check_%d", time.Now().UnixMilli())
	if _, err := s.CreateSession(ctx, id); err != nil {
		return err
	}
	return s.CloseSession(ctx, id)
}
