// Package rate provides token-bucket admission over a sliding one-minute
// window, with an adaptive multiplier driven by success/failure feedback
// from the target site.
package rate

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// window is the sliding admission window.
const window = time.Minute

// Multiplier bounds and adjustment thresholds.
const (
	multiplierMax   = 1.5
	multiplierMin   = 0.3
	multiplierFloor = 0.5 // floor for the moderate-degradation step

	minObservations   = 10
	decayObservations = 100
	decayFactor       = 0.8
)

// ErrorKind classifies a failure for feedback weighting.
type ErrorKind string

// Error kinds. Hostile-signal kinds count triple.
const (
	ErrorGeneral   ErrorKind = "general"
	ErrorRateLimit ErrorKind = "rate_limit"
	ErrorCaptcha   ErrorKind = "captcha"
	ErrorBlocked   ErrorKind = "blocked"
)

// Governor admits requests against the effective rate
// floor(requestsPerMinute * multiplier), spending burst tokens when the
// window is full and otherwise waiting for the oldest entry to age out.
type Governor struct {
	requestsPerMinute int
	burstAllowance    int

	mu           sync.Mutex
	requestTimes []time.Time
	burstUsed    int
	lastReset    time.Time

	successCount int
	errorCount   int
	multiplier   float64

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) bool
}

// NewGovernor creates a governor with the given base rate and burst budget.
func NewGovernor(requestsPerMinute, burstAllowance int) *Governor {
	return &Governor{
		requestsPerMinute: requestsPerMinute,
		burstAllowance:    burstAllowance,
		multiplier:        1.0,
		lastReset:         time.Now(),
		now:               time.Now,
		sleep:             sleepWithContext,
	}
}

// Acquire blocks until the request is admitted or the context is canceled.
func (g *Governor) Acquire(ctx context.Context) error {
	for {
		wait, ok := g.tryAdmit()
		if ok {
			return nil
		}
		log.Info().Dur("wait", wait).Msg("Rate limit reached, waiting")
		if !g.sleep(ctx, wait) {
			return ctx.Err()
		}
	}
}

// tryAdmit attempts one admission. On refusal it returns how long to wait
// before the oldest window entry ages out.
func (g *Governor) tryAdmit() (time.Duration, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	g.prune(now)

	// Burst tokens replenish once per minute.
	if now.Sub(g.lastReset) > window {
		g.burstUsed = 0
		g.lastReset = now
	}

	if len(g.requestTimes) < g.effectiveRateLocked() {
		g.requestTimes = append(g.requestTimes, now)
		return 0, true
	}

	if g.burstUsed < g.burstAllowance {
		g.burstUsed++
		g.requestTimes = append(g.requestTimes, now)
		log.Debug().Int("burst_used", g.burstUsed).Msg("Using burst allowance")
		return 0, true
	}

	oldest := g.requestTimes[0]
	wait := window - now.Sub(oldest)
	if wait < 0 {
		wait = 0
	}
	return wait, false
}

// prune drops window entries older than one minute. Callers hold g.mu.
func (g *Governor) prune(now time.Time) {
	cutoff := now.Add(-window)
	idx := 0
	for idx < len(g.requestTimes) && !g.requestTimes[idx].After(cutoff) {
		idx++
	}
	if idx > 0 {
		g.requestTimes = append(g.requestTimes[:0], g.requestTimes[idx:]...)
	}
}

// effectiveRateLocked is floor(base * multiplier). Callers hold g.mu.
func (g *Governor) effectiveRateLocked() int {
	rate := int(float64(g.requestsPerMinute) * g.multiplier)
	if rate < 1 {
		rate = 1
	}
	return rate
}

// EffectiveRate returns the current admission rate per minute.
func (g *Governor) EffectiveRate() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.effectiveRateLocked()
}

// Multiplier returns the current adaptive multiplier.
func (g *Governor) Multiplier() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.multiplier
}

// WindowCount returns the number of admissions inside the current window.
func (g *Governor) WindowCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prune(g.now())
	return len(g.requestTimes)
}

// MarkSuccess feeds a successful request into the estimator.
func (g *Governor) MarkSuccess() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.successCount++
	g.adjustLocked()
}

// MarkError feeds a failed request into the estimator. Hostile signals
// (rate_limit, captcha, blocked) weigh triple.
func (g *Governor) MarkError(kind ErrorKind) {
	g.mu.Lock()
	defer g.mu.Unlock()

	switch kind {
	case ErrorRateLimit, ErrorCaptcha, ErrorBlocked:
		g.errorCount += 3
	default:
		g.errorCount++
	}
	g.adjustLocked()
}

// adjustLocked recomputes the multiplier from the observed success rate.
// Callers hold g.mu.
func (g *Governor) adjustLocked() {
	total := g.successCount + g.errorCount
	if total < minObservations {
		return
	}

	successRate := float64(g.successCount) / float64(total)

	switch {
	case successRate > 0.9:
		g.multiplier = minFloat(multiplierMax, g.multiplier+0.1)
	case successRate > 0.7:
		// Healthy; hold the current rate.
	case successRate > 0.5:
		g.multiplier = maxFloat(multiplierFloor, g.multiplier-0.1)
	default:
		g.multiplier = maxFloat(multiplierMin, g.multiplier-0.2)
	}

	log.Debug().
		Float64("success_rate", successRate).
		Float64("multiplier", g.multiplier).
		Msg("Rate multiplier adjusted")

	// Decay old observations so the estimator stays responsive.
	if total > decayObservations {
		g.successCount = int(float64(g.successCount) * decayFactor)
		g.errorCount = int(float64(g.errorCount) * decayFactor)
	}
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

// sleepWithContext sleeps or returns false when the context is canceled.
func sleepWithContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
