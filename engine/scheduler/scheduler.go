// Package scheduler drives periodic run() calls against tenant engines on a
// cron schedule, for deployments that want an agenda swept on a timer
// instead of (or alongside) explicit run calls from callers. It is glue
// over the command surface, grounded on the teacher stack's automation
// package, which schedules recurring work by cron expression; the engine
// core itself never runs a background goroutine (see §5, "no suspend/async
// inside the engine loop").
package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/reteforge/engine/engine"
	"github.com/reteforge/engine/infrastructure/logging"
	"github.com/reteforge/engine/registry/tenant"
)

// Scheduler periodically calls Run on every tenant currently registered
// under a fixed cron expression. Each tick runs tenants sequentially: the
// per-tenant Engine already serializes its own commands, so there is
// nothing to gain from firing runs concurrently, and sequential ticks keep
// memory-manager eviction decisions and metrics deterministic across a
// single sweep.
type Scheduler struct {
	cron     *cron.Cron
	registry *tenant.Registry
	logger   *logging.Logger
	fireLimit int
	timeout  time.Duration
}

// New constructs a Scheduler over registry. fireLimit overrides each sweep's
// run() fire limit when positive; timeout bounds each tenant's sweep call.
func New(registry *tenant.Registry, logger *logging.Logger, fireLimit int, timeout time.Duration) *Scheduler {
	return &Scheduler{
		cron:      cron.New(),
		registry:  registry,
		logger:    logger,
		fireLimit: fireLimit,
		timeout:   timeout,
	}
}

// AddSchedule registers spec (a standard five-field cron expression) to
// trigger a sweep of every running tenant. Returns the entry id, useful for
// later removal via RemoveSchedule.
func (s *Scheduler) AddSchedule(spec string) (cron.EntryID, error) {
	return s.cron.AddFunc(spec, s.sweep)
}

// RemoveSchedule cancels a previously registered schedule.
func (s *Scheduler) RemoveSchedule(id cron.EntryID) {
	s.cron.Remove(id)
}

// Start begins firing scheduled sweeps in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the scheduler, waiting for any in-flight sweep to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Scheduler) sweep() {
	for _, key := range s.registry.Keys() {
		e, ok := s.registry.Lookup(key)
		if !ok {
			continue
		}
		s.runTenant(key, e)
	}
}

func (s *Scheduler) runTenant(key string, e *engine.Engine) {
	ctx := context.Background()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	out, err := e.Run(ctx, engine.RunOptions{FireLimit: s.fireLimit})
	if err != nil && s.logger != nil {
		s.logger.WithTenant(key).WithField("error", err).Warn("scheduled sweep run failed")
		return
	}
	if s.logger != nil && out != nil && out.Fired > 0 {
		s.logger.WithTenant(key).WithField("fired", out.Fired).Debug("scheduled sweep fired activations")
	}
}
