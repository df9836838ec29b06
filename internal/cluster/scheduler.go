package cluster

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/trose/ice-locator-go/internal/types"
)

// Monitor cadence and thresholds.
const (
	monitorInterval   = 60 * time.Second
	probeIdleCutoff   = 30 * time.Second // skip instances used this recently
	restartAfterFails = 2                // consecutive probe failures before restart
	prewarmCount      = 3
)

// DriverFactory builds a fresh driver for a new instance.
type DriverFactory func() Driver

// Scheduler owns the instance pool. The available queue is FIFO; weighted
// selection is used for overload and failover paths.
type Scheduler struct {
	maxInstances int
	factory      DriverFactory
	rng          *rand.Rand

	mu        sync.Mutex
	instances map[string]*Instance
	available []string // FIFO of available instance ids
	seq       int

	probeFailures map[string]int

	stopCh  chan struct{}
	wg      sync.WaitGroup
	closed  bool
	started bool
}

// NewScheduler creates a scheduler; Initialize starts it.
func NewScheduler(maxInstances int, factory DriverFactory, rng *rand.Rand) *Scheduler {
	return &Scheduler{
		maxInstances:  maxInstances,
		factory:       factory,
		rng:           rng,
		instances:     make(map[string]*Instance),
		probeFailures: make(map[string]int),
		stopCh:        make(chan struct{}),
	}
}

// Initialize pre-warms min(3, maxInstances) instances and starts the
// background health monitor.
func (s *Scheduler) Initialize(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.mu.Unlock()

	warm := prewarmCount
	if s.maxInstances < warm {
		warm = s.maxInstances
	}
	for i := 0; i < warm; i++ {
		if _, err := s.createInstance(ctx); err != nil {
			return fmt.Errorf("failed to pre-warm instance %d: %w", i, err)
		}
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.monitorLoop()
	}()

	log.Info().
		Int("instances", warm).
		Int("max_instances", s.maxInstances).
		Msg("Browser cluster initialized")
	return nil
}

// createInstance builds, registers, and queues a new instance.
func (s *Scheduler) createInstance(ctx context.Context) (*Instance, error) {
	s.mu.Lock()
	s.seq++
	id := fmt.Sprintf("browser_%d_%d", s.seq, time.Now().UnixMilli())
	s.mu.Unlock()

	driver := s.factory()
	inst := newInstance(id, driver)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, types.ErrClusterClosed
	}
	s.instances[id] = inst
	s.available = append(s.available, id)
	total := len(s.instances)
	s.mu.Unlock()

	log.Debug().
		Str("instance_id", id).
		Int("total_instances", total).
		Msg("Browser instance created")
	return inst, nil
}

// Acquire pops the FIFO available queue, growing the pool up to the limit.
// At capacity with nothing available it returns ErrNoCapacity immediately;
// callers may fall back to SelectHealthy to overload a busy instance.
func (s *Scheduler) Acquire(ctx context.Context) (*Instance, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, types.ErrClusterClosed
	}
	if len(s.available) > 0 {
		id := s.available[0]
		s.available = s.available[1:]
		inst := s.instances[id]
		s.mu.Unlock()
		inst.markUsed()
		return inst, nil
	}
	atCapacity := len(s.instances) >= s.maxInstances
	s.mu.Unlock()

	if !atCapacity {
		inst, err := s.createInstance(ctx)
		if err != nil {
			return nil, err
		}
		// Take it straight off the queue.
		s.mu.Lock()
		for idx, id := range s.available {
			if id == inst.ID {
				s.available = append(s.available[:idx], s.available[idx+1:]...)
				break
			}
		}
		s.mu.Unlock()
		inst.markUsed()
		return inst, nil
	}

	return nil, types.ErrNoCapacity
}

// Release returns an instance to the available queue.
func (s *Scheduler) Release(inst *Instance) {
	if inst == nil {
		return
	}
	inst.markAvailable()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if _, exists := s.instances[inst.ID]; !exists {
		return
	}
	for _, id := range s.available {
		if id == inst.ID {
			return // already queued
		}
	}
	s.available = append(s.available, inst.ID)
}

// SelectHealthy draws a healthy instance with probability proportional to
// health score. It may return a busy instance (overload). Returns nil when
// no instance is healthy.
func (s *Scheduler) SelectHealthy(exclude ...string) *Instance {
	excluded := make(map[string]bool, len(exclude))
	for _, id := range exclude {
		excluded[id] = true
	}

	s.mu.Lock()
	candidates := make([]*Instance, 0, len(s.instances))
	for id, inst := range s.instances {
		if !excluded[id] && inst.Healthy() {
			candidates = append(candidates, inst)
		}
	}
	s.mu.Unlock()

	if len(candidates) == 0 {
		return nil
	}

	now := time.Now()
	weights := make([]float64, len(candidates))
	var total float64
	for i, inst := range candidates {
		weights[i] = inst.HealthScore(now)
		total += weights[i]
	}
	if total <= 0 {
		return candidates[s.rng.Intn(len(candidates))]
	}

	draw := s.rng.Float64() * total
	for i, w := range weights {
		draw -= w
		if draw <= 0 {
			return candidates[i]
		}
	}
	return candidates[len(candidates)-1]
}

// HandleRequest runs a navigation on a pool instance, reporting the outcome
// into its health bookkeeping. A failed request gets one failover attempt on
// a different healthy instance.
func (s *Scheduler) HandleRequest(ctx context.Context, sessionID, url string) (string, error) {
	inst, err := s.Acquire(ctx)
	if err != nil {
		// At capacity: overload a healthy instance rather than wait.
		if inst = s.SelectHealthy(); inst == nil {
			return "", types.NewErrorRecord(types.KindNoCapacity, sessionID, types.ErrNoCapacity)
		}
		inst.markUsed()
	}
	defer s.Release(inst)

	html, err := inst.driver.Navigate(ctx, sessionID, url)
	if err == nil {
		inst.markSuccessful()
		return html, nil
	}

	log.Warn().
		Err(err).
		Str("instance_id", inst.ID).
		Str("session_id", sessionID).
		Str("url", url).
		Msg("Request failed on instance, attempting failover")
	inst.markFailed()

	return s.failover(ctx, sessionID, url, inst.ID)
}

// failover retries a failed request once on a different healthy instance.
// The failed instance is left for the background monitor to judge.
func (s *Scheduler) failover(ctx context.Context, sessionID, url, failedID string) (string, error) {
	inst := s.SelectHealthy(failedID)
	if inst == nil {
		return "", types.NewErrorRecord(types.KindNoCapacity, sessionID, types.ErrNoCapacity)
	}

	inst.markUsed()
	defer s.Release(inst)

	html, err := inst.driver.Navigate(ctx, sessionID, url)
	if err != nil {
		inst.markFailed()
		record := types.NewErrorRecord(types.KindTransient, sessionID, err)
		record.InstanceID = inst.ID
		record.Attempts = 2
		return "", record
	}

	inst.markSuccessful()
	log.Info().
		Str("failed_instance", failedID).
		Str("failover_instance", inst.ID).
		Str("session_id", sessionID).
		Msg("Failover succeeded")
	return html, nil
}

// Driver returns a pool entry's driver by id.
func (s *Scheduler) Driver(id string) (Driver, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inst, ok := s.instances[id]
	if !ok {
		return nil, false
	}
	return inst.driver, true
}

// FindSession locates the instance currently holding a session.
func (s *Scheduler) FindSession(sessionID string) (*Instance, bool) {
	s.mu.Lock()
	instances := make([]*Instance, 0, len(s.instances))
	for _, inst := range s.instances {
		instances = append(instances, inst)
	}
	s.mu.Unlock()

	for _, inst := range instances {
		if inst.driver.HasSession(sessionID) {
			return inst, true
		}
	}
	return nil, false
}

// Instances returns a snapshot of all pool entries.
func (s *Scheduler) Instances() []types.InstanceStats {
	s.mu.Lock()
	instances := make([]*Instance, 0, len(s.instances))
	for _, inst := range s.instances {
		instances = append(instances, inst)
	}
	s.mu.Unlock()

	now := time.Now()
	out := make([]types.InstanceStats, 0, len(instances))
	for _, inst := range instances {
		available, requests, errors, consec, _ := inst.snapshot()
		out = append(out, types.InstanceStats{
			InstanceID:          inst.ID,
			Available:           available,
			Healthy:             inst.Healthy(),
			HealthScore:         inst.HealthScore(now),
			RequestCount:        requests,
			ErrorCount:          errors,
			ConsecutiveFailures: consec,
			Sessions:            inst.driver.SessionCount(),
		})
	}
	return out
}

// SessionCount sums live sessions across instances.
func (s *Scheduler) SessionCount() int {
	s.mu.Lock()
	instances := make([]*Instance, 0, len(s.instances))
	for _, inst := range s.instances {
		instances = append(instances, inst)
	}
	s.mu.Unlock()

	total := 0
	for _, inst := range instances {
		total += inst.driver.SessionCount()
	}
	return total
}

// monitorLoop probes idle instances every minute and restarts the ones that
// fail twice in a row.
func (s *Scheduler) monitorLoop() {
	ticker := time.NewTicker(monitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			log.Debug().Msg("Health monitor stopping")
			return
		case <-ticker.C:
			s.runHealthChecks()
		}
	}
}

// runHealthChecks is one monitor pass.
func (s *Scheduler) runHealthChecks() {
	s.mu.Lock()
	instances := make([]*Instance, 0, len(s.instances))
	for _, inst := range s.instances {
		instances = append(instances, inst)
	}
	s.mu.Unlock()

	now := time.Now()
	for _, inst := range instances {
		_, _, _, _, lastUsed := inst.snapshot()
		if !lastUsed.IsZero() && now.Sub(lastUsed) < probeIdleCutoff {
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := inst.driver.Probe(ctx)
		cancel()

		if err == nil {
			inst.markSuccessful()
			s.mu.Lock()
			s.probeFailures[inst.ID] = 0
			s.mu.Unlock()
			continue
		}

		inst.markFailed()
		s.mu.Lock()
		s.probeFailures[inst.ID]++
		failures := s.probeFailures[inst.ID]
		s.mu.Unlock()

		log.Debug().
			Err(err).
			Str("instance_id", inst.ID).
			Int("probe_failures", failures).
			Msg("Health probe failed")

		if failures >= restartAfterFails {
			s.restartInstance(inst)
		}
	}
}

// restartInstance closes all of an instance's sessions, relaunches its
// browser, and zeroes its counters.
func (s *Scheduler) restartInstance(inst *Instance) {
	log.Warn().
		Str("instance_id", inst.ID).
		Msg("Restarting unhealthy instance")

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	if err := inst.driver.Restart(ctx); err != nil {
		log.Error().
			Err(err).
			Str("instance_id", inst.ID).
			Msg("Failed to restart instance")
		return
	}

	inst.resetCounters()
	s.mu.Lock()
	s.probeFailures[inst.ID] = 0
	s.mu.Unlock()
	s.Release(inst)

	log.Info().
		Str("instance_id", inst.ID).
		Msg("Instance restarted")
}

// Shutdown cancels the monitor, closes all sessions on all instances in
// parallel, and clears the queues.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	instances := make([]*Instance, 0, len(s.instances))
	for _, inst := range s.instances {
		instances = append(instances, inst)
	}
	s.instances = make(map[string]*Instance)
	s.available = nil
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()

	eg := new(errgroup.Group)
	eg.SetLimit(4)
	for _, inst := range instances {
		inst := inst
		eg.Go(func() error {
			if err := inst.driver.CloseAll(ctx); err != nil {
				log.Warn().
					Err(err).
					Str("instance_id", inst.ID).
					Msg("Error closing instance during shutdown")
				return err
			}
			return nil
		})
	}
	err := eg.Wait()

	log.Info().Int("instances", len(instances)).Msg("Browser cluster shut down")
	return err
}
