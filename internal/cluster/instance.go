// Package cluster schedules requests across a pool of browser instances
// with health scoring, weighted selection, background monitoring, and
// single-attempt failover.
package cluster

import (
	"context"
	"sync"
	"time"

	"github.com/trose/ice-locator-go/internal/store"
	"github.com/trose/ice-locator-go/internal/types"
)

// Driver is the browser-facing surface an instance schedules work onto.
// The production driver is browser.Simulator.
type Driver interface {
	HasSession(id string) bool
	Navigate(ctx context.Context, sessionID, url string) (string, error)
	HandleChallenge(ctx context.Context, sessionID, variant string, maxAttempts int) types.ChallengeResult
	ExportSession(ctx context.Context, sessionID string) (*store.PersistentSession, error)
	RestoreSession(ctx context.Context, sessionID string, snap *store.PersistentSession) error
	CloseIdleSessions(ctx context.Context, timeout time.Duration) int
	CloseAll(ctx context.Context) error
	Restart(ctx context.Context) error
	Probe(ctx context.Context) error
	SessionCount() int
}

// recencyWindow is how long the health score's recency bonus takes to decay
// to zero after last use.
const recencyWindow = 300 * time.Second

// unhealthyThreshold is the consecutive-failure count at which an instance
// stops receiving new work.
const unhealthyThreshold = 3

// Instance is one pool entry: a driver plus the scheduler's bookkeeping.
// The scheduler exclusively owns the instance set; callers outside this
// package read only an instance's ID and reach its driver through the
// scheduler by that id.
type Instance struct {
	ID     string
	driver Driver

	mu                  sync.Mutex
	available           bool
	lastUsed            time.Time
	requestCount        int64
	errorCount          int64
	consecutiveFailures int
	createdAt           time.Time
}

func newInstance(id string, driver Driver) *Instance {
	return &Instance{
		ID:        id,
		driver:    driver,
		available: true,
		createdAt: time.Now(),
	}
}

// markUsed checks the instance out.
func (i *Instance) markUsed() {
	i.mu.Lock()
	i.available = false
	i.lastUsed = time.Now()
	i.requestCount++
	i.mu.Unlock()
}

// markAvailable returns the instance to the pool.
func (i *Instance) markAvailable() {
	i.mu.Lock()
	i.available = true
	i.lastUsed = time.Now()
	i.mu.Unlock()
}

// markFailed records an error and bumps the consecutive-failure streak.
func (i *Instance) markFailed() {
	i.mu.Lock()
	i.errorCount++
	i.consecutiveFailures++
	i.mu.Unlock()
}

// markSuccessful resets the consecutive-failure streak.
func (i *Instance) markSuccessful() {
	i.mu.Lock()
	i.consecutiveFailures = 0
	i.mu.Unlock()
}

// resetCounters zeroes all bookkeeping after a restart.
func (i *Instance) resetCounters() {
	i.mu.Lock()
	i.requestCount = 0
	i.errorCount = 0
	i.consecutiveFailures = 0
	i.available = true
	i.mu.Unlock()
}

// Healthy reports whether the instance may receive new work.
func (i *Instance) Healthy() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.consecutiveFailures < unhealthyThreshold
}

// HealthScore combines success rate, failure streak, and recency into a
// [0,1] score used for weighted selection:
//
//	0.7*success_rate + 0.2*(1 - 0.1*consecutive_failures) + 0.1*recency
//
// where recency decays linearly to zero over five minutes since last use.
func (i *Instance) HealthScore(now time.Time) float64 {
	i.mu.Lock()
	defer i.mu.Unlock()

	successRate := 1.0
	if i.requestCount > 0 {
		successRate = 1.0 - float64(i.errorCount)/float64(i.requestCount)
		if successRate < 0 {
			successRate = 0
		}
	}

	failurePenalty := 1.0 - 0.1*float64(i.consecutiveFailures)
	if failurePenalty < 0 {
		failurePenalty = 0
	}

	recency := 0.0
	if !i.lastUsed.IsZero() {
		recency = 1.0 - float64(now.Sub(i.lastUsed))/float64(recencyWindow)
		if recency < 0 {
			recency = 0
		}
	}

	score := 0.7*successRate + 0.2*failurePenalty + 0.1*recency
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// snapshot returns the instance's stats under lock.
func (i *Instance) snapshot() (available bool, requests, errors int64, consecFailures int, lastUsed time.Time) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.available, i.requestCount, i.errorCount, i.consecutiveFailures, i.lastUsed
}
