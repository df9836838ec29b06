// Package humanize provides human-like timing, typing, and scrolling behavior
// for browser interactions. All delays are randomized so that repeated actions
// never produce a fixed cadence.
package humanize

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// Common errors for the humanize package.
var (
	// ErrElementNotVisible is returned when an element cannot be found or has no visible bounds.
	ErrElementNotVisible = errors.New("element not visible or has no bounds")
)

// TimingConfig contains configuration for humanized timing behavior.
type TimingConfig struct {
	// Delay before navigation (milliseconds)
	PreNavigateMinMs int
	PreNavigateMaxMs int

	// Simulated reading time after page load (milliseconds)
	ReadingMinMs int
	ReadingMaxMs int

	// Typing delays (milliseconds per character)
	TypingDelayMinMs int
	TypingDelayMaxMs int

	// Pre-click decision delay and post-click dwell (milliseconds)
	PreClickMinMs   int
	PreClickMaxMs   int
	PostClickMinMs  int
	PostClickMaxMs  int
}

// DefaultTimingConfig returns sensible defaults for human-like timing.
func DefaultTimingConfig() TimingConfig {
	return TimingConfig{
		PreNavigateMinMs: 500,
		PreNavigateMaxMs: 2000,
		ReadingMinMs:     2000,
		ReadingMaxMs:     8000,
		TypingDelayMinMs: 50,
		TypingDelayMaxMs: 150,
		PreClickMinMs:    300,
		PreClickMaxMs:    1000,
		PostClickMinMs:   500,
		PostClickMaxMs:   1500,
	}
}

// Timing provides humanized timing utilities.
type Timing struct {
	config TimingConfig
	rng    *rand.Rand
}

// NewTiming creates a new timing utility with default config.
// The RNG source is injected so tests can seed it.
func NewTiming(rng *rand.Rand) *Timing {
	return &Timing{config: DefaultTimingConfig(), rng: rng}
}

// NewTimingWithConfig creates a new timing utility with custom config.
func NewTimingWithConfig(config TimingConfig, rng *rand.Rand) *Timing {
	return &Timing{config: config, rng: rng}
}

// PreNavigateDelay returns the pause a user takes before loading a new page.
func (t *Timing) PreNavigateDelay() time.Duration {
	return t.between(t.config.PreNavigateMinMs, t.config.PreNavigateMaxMs)
}

// ReadingDelay returns a simulated reading time after a page load.
func (t *Timing) ReadingDelay() time.Duration {
	return t.between(t.config.ReadingMinMs, t.config.ReadingMaxMs)
}

// TypingDelay returns a random delay between keystrokes.
func (t *Timing) TypingDelay() time.Duration {
	return t.between(t.config.TypingDelayMinMs, t.config.TypingDelayMaxMs)
}

// PreClickDelay returns the decision pause before clicking an element.
func (t *Timing) PreClickDelay() time.Duration {
	return t.between(t.config.PreClickMinMs, t.config.PreClickMaxMs)
}

// PostClickDelay returns the dwell time after a click.
func (t *Timing) PostClickDelay() time.Duration {
	return t.between(t.config.PostClickMinMs, t.config.PostClickMaxMs)
}

// Complexity describes how heavy a JS evaluation is expected to be.
// It drives the pre- and post-execution delays.
type Complexity string

// Complexity levels.
const (
	Simple  Complexity = "simple"
	Medium  Complexity = "medium"
	Complex Complexity = "complex"
)

// EvalDelays returns the preparation and processing pauses around a JS
// evaluation of the given complexity.
func (t *Timing) EvalDelays(c Complexity) (pre, post time.Duration) {
	switch c {
	case Simple:
		return t.between(100, 500), t.between(50, 200)
	case Complex:
		return t.between(800, 2000), t.between(500, 2000)
	default: // Medium
		return t.between(300, 1000), t.between(200, 800)
	}
}

// AttemptDelay returns the pause before a challenge solve attempt.
// Later attempts wait longer, like a user growing more careful.
func (t *Timing) AttemptDelay(attempt int) time.Duration {
	return time.Duration(attempt+1) * t.between(1000, 3000)
}

// BetweenAttemptsDelay returns the pause between failed challenge attempts.
func (t *Timing) BetweenAttemptsDelay(attempt int) time.Duration {
	return time.Duration(attempt+1) * t.between(2000, 5000)
}

func (t *Timing) between(minMs, maxMs int) time.Duration {
	if maxMs <= minMs {
		return time.Duration(minMs) * time.Millisecond
	}
	ms := minMs + t.rng.Intn(maxMs-minMs+1)
	return time.Duration(ms) * time.Millisecond
}

// Chance returns true with the given probability.
func Chance(rng *rand.Rand, p float64) bool {
	return rng.Float64() < p
}

// IntBetween returns a random integer in [min, max].
func (t *Timing) IntBetween(min, max int) int {
	if max <= min {
		return min
	}
	return min + t.rng.Intn(max-min+1)
}

// RandomDuration returns a random duration between min and max milliseconds
// using the package-level random source.
func RandomDuration(minMs, maxMs int) time.Duration {
	if maxMs <= minMs {
		return time.Duration(minMs) * time.Millisecond
	}
	ms := minMs + rand.Intn(maxMs-minMs+1)
	return time.Duration(ms) * time.Millisecond
}

// sleepWithContext sleeps for the specified duration or until context is canceled.
// Returns true if the sleep completed normally, false if interrupted.
// Uses time.NewTimer instead of time.After to prevent timer leak.
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

// SleepWithContext is the exported version of sleepWithContext.
// Sleeps for the specified duration or until context is canceled.
// Returns true if the sleep completed normally, false if interrupted.
func SleepWithContext(ctx context.Context, d time.Duration) bool {
	return sleepWithContext(ctx, d)
}
