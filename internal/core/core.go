// Package core wires the anti-detection subsystem together and exposes the
// upstream surface: request, challenge, session persistence, and stats.
package core

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/trose/ice-locator-go/internal/browser"
	"github.com/trose/ice-locator-go/internal/captcha"
	"github.com/trose/ice-locator-go/internal/cluster"
	"github.com/trose/ice-locator-go/internal/config"
	"github.com/trose/ice-locator-go/internal/cookies"
	"github.com/trose/ice-locator-go/internal/fingerprint"
	"github.com/trose/ice-locator-go/internal/rate"
	"github.com/trose/ice-locator-go/internal/security"
	"github.com/trose/ice-locator-go/internal/store"
	"github.com/trose/ice-locator-go/internal/types"
)

// janitorInterval is how often idle sessions and expired files are purged.
const janitorInterval = time.Minute

// Core is the assembled anti-detection subsystem.
type Core struct {
	cfg       *config.Config
	scheduler *cluster.Scheduler
	governor  *rate.Governor
	pipeline  *captcha.Pipeline
	store     *store.Store
	patterns  *captcha.PatternManager

	stopCh chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

// New assembles the core from configuration. Configuration problems are
// fatal here and nowhere else.
func New(cfg *config.Config) (*Core, error) {
	patterns, err := captcha.NewPatternManager(cfg.PatternsPath, cfg.PatternsHotReload)
	if err != nil {
		return nil, types.NewErrorRecord(types.KindConfiguration, "", err)
	}

	var providers []captcha.Provider
	twoCaptcha := captcha.NewTwoCaptchaProvider(captcha.TwoCaptchaConfig{
		APIKey:  cfg.TwoCaptchaAPIKey,
		Timeout: cfg.CaptchaSolverTimeout,
	})
	capSolver := captcha.NewCapSolverProvider(captcha.CapSolverConfig{
		APIKey:  cfg.CapSolverAPIKey,
		Timeout: cfg.CaptchaSolverTimeout,
	})
	if cfg.CaptchaPrimaryProvider == "capsolver" {
		providers = []captcha.Provider{capSolver, twoCaptcha}
	} else {
		providers = []captcha.Provider{twoCaptcha, capSolver}
	}

	pipeline := captcha.NewPipeline(patterns, providers, cfg.CaptchaEnabled)

	sessionStore, err := store.New(cfg.SessionsDir(), cfg.SessionTimeout)
	if err != nil {
		patterns.Close()
		return nil, types.NewErrorRecord(types.KindConfiguration, "", err)
	}

	registry := fingerprint.NewRegistry(cfg.PersonaFamilies, rand.New(rand.NewSource(time.Now().UnixNano())))

	factory := func() cluster.Driver {
		rng := rand.New(rand.NewSource(time.Now().UnixNano()))
		return browser.NewSimulator(cfg, registry, cookies.NewManager(rng), pipeline, rng)
	}

	c := &Core{
		cfg:       cfg,
		scheduler: cluster.NewScheduler(cfg.MaxInstances, factory, rand.New(rand.NewSource(time.Now().UnixNano()))),
		governor:  rate.NewGovernor(cfg.RequestsPerMinute, cfg.BurstAllowance),
		pipeline:  pipeline,
		store:     sessionStore,
		patterns:  patterns,
		stopCh:    make(chan struct{}),
	}
	return c, nil
}

// Initialize pre-warms the cluster and starts the janitor.
func (c *Core) Initialize(ctx context.Context) error {
	if err := c.scheduler.Initialize(ctx); err != nil {
		return types.NewErrorRecord(types.KindConfiguration, "", err)
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.janitorLoop()
	}()
	return nil
}

// Request is the primary entry point: admission, navigation on a pooled
// instance, challenge inspection, and feedback into the governor.
func (c *Core) Request(ctx context.Context, sessionID, url string) (string, error) {
	if err := security.ValidateTargetURLWithContext(ctx, url); err != nil {
		return "", types.NewErrorRecord(types.KindTransient, sessionID, err)
	}

	if err := c.governor.Acquire(ctx); err != nil {
		return "", types.NewErrorRecord(types.KindTransient, sessionID, err)
	}

	html, err := c.scheduler.HandleRequest(ctx, sessionID, url)
	if err != nil {
		var record *types.ErrorRecord
		if errors.As(err, &record) && record.Kind == types.KindNoCapacity {
			// The request never reached the remote; no governor feedback.
			return "", err
		}
		c.governor.MarkError(rate.ErrorGeneral)
		return "", err
	}

	// Challenge inspection happens on every loaded page.
	solved, challenge := c.pipeline.HandleResponse(ctx, html, url, sessionID, nil)
	if !solved {
		c.governor.MarkError(rate.ErrorCaptcha)
		record := types.NewErrorRecord(types.KindCaptchaUnsolvable, sessionID, types.ErrChallengeUnsolvable)
		if challenge != nil {
			record.Detail = string(challenge.Variant) + ": " + record.Detail
		}
		return "", record
	}

	// A clean-looking page can still be a hostile denial.
	if challenge == nil {
		switch captcha.DetectHostile(html) {
		case captcha.HostileRateLimited:
			c.governor.MarkError(rate.ErrorRateLimit)
			return "", types.NewErrorRecord(types.KindRateLimited, sessionID, types.ErrRateLimited)
		case captcha.HostileBlocked:
			c.governor.MarkError(rate.ErrorBlocked)
			return "", types.NewErrorRecord(types.KindBlocked, sessionID, types.ErrBlocked)
		}
	}

	c.governor.MarkSuccess()
	return html, nil
}

// Challenge explicitly drives challenge handling for a session's page.
func (c *Core) Challenge(ctx context.Context, sessionID, variant string, maxAttempts int) (types.ChallengeResult, error) {
	inst, ok := c.scheduler.FindSession(sessionID)
	if !ok {
		return types.ChallengeResult{}, types.NewErrorRecord(types.KindTransient, sessionID, types.ErrSessionNotFound)
	}
	driver, ok := c.scheduler.Driver(inst.ID)
	if !ok {
		return types.ChallengeResult{}, types.NewErrorRecord(types.KindTransient, sessionID, types.ErrSessionNotFound)
	}
	return driver.HandleChallenge(ctx, sessionID, variant, maxAttempts), nil
}

// SaveSession persists a live session. Persistence failures are reported,
// never fatal.
func (c *Core) SaveSession(ctx context.Context, sessionID string) bool {
	inst, ok := c.scheduler.FindSession(sessionID)
	if !ok {
		log.Warn().Str("session_id", sessionID).Msg("Save requested for unknown session")
		return false
	}
	driver, ok := c.scheduler.Driver(inst.ID)
	if !ok {
		return false
	}

	snap, err := driver.ExportSession(ctx, sessionID)
	if err != nil {
		log.Error().Err(err).Str("session_id", sessionID).Msg("Session export failed")
		return false
	}
	return c.store.Save(sessionID, snap)
}

// RestoreSession loads persisted state into a live session, creating the
// session on a healthy instance when necessary.
func (c *Core) RestoreSession(ctx context.Context, sessionID string) error {
	snap, err := c.store.Load(sessionID)
	if err != nil {
		return types.NewErrorRecord(types.KindPersistence, sessionID, err)
	}

	var driver cluster.Driver
	if inst, ok := c.scheduler.FindSession(sessionID); ok {
		driver, _ = c.scheduler.Driver(inst.ID)
	} else if inst := c.scheduler.SelectHealthy(); inst != nil {
		driver, _ = c.scheduler.Driver(inst.ID)
	}
	if driver == nil {
		return types.NewErrorRecord(types.KindNoCapacity, sessionID, types.ErrNoCapacity)
	}

	if err := driver.RestoreSession(ctx, sessionID, snap); err != nil {
		return err
	}
	return nil
}

// DeleteSession removes a persisted session.
func (c *Core) DeleteSession(sessionID string) error {
	return c.store.Delete(sessionID)
}

// SessionInfo returns a summary of one persisted session.
func (c *Core) SessionInfo(sessionID string) *types.SessionSummary {
	return c.store.Info(sessionID)
}

// ListSessions returns summaries of all persisted sessions.
func (c *Core) ListSessions() []types.SessionSummary {
	return c.store.List()
}

// Stats returns the observability snapshot.
func (c *Core) Stats() types.StatsResult {
	return types.StatsResult{
		Instances:      c.scheduler.Instances(),
		Sessions:       c.scheduler.SessionCount(),
		RateMultiplier: c.governor.Multiplier(),
		Challenges:     c.pipeline.History().Stats(),
	}
}

// janitorLoop purges idle live sessions and expired session files.
func (c *Core) janitorLoop() {
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.store.CleanupExpired()
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			for _, stats := range c.scheduler.Instances() {
				if driver, ok := c.scheduler.Driver(stats.InstanceID); ok {
					driver.CloseIdleSessions(ctx, c.cfg.SessionTimeout)
				}
			}
			cancel()
		}
	}
}

// Shutdown stops the janitor and tears the cluster down.
func (c *Core) Shutdown(ctx context.Context) error {
	var err error
	c.once.Do(func() {
		close(c.stopCh)
		c.wg.Wait()
		c.patterns.Close()
		err = c.scheduler.Shutdown(ctx)
	})
	return err
}
