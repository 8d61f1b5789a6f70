// Package scheduler implements the Scheduler: a minute-aligned
// tick loop that asks each JobCoordinator whether it is due and launches due
// jobs as fire-and-forget tasks, detecting schedule drift. Grounded on the
// base codebase's internal/scheduler.Scheduler (its Stop(timeout) shape; its
// single in-flight run guard is not kept, see launchDue) generalized from one cron.Cron-driven job to N
// JobCoordinators on a hand-rolled minute ticker, because drift detection
// requires observing next_tick - now directly rather than
// delegating scheduling to robfig/cron's own loop.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/viperadnan-git/usbackup/internal/datastore"
	"github.com/viperadnan-git/usbackup/internal/jobcoordinator"
	"github.com/viperadnan-git/usbackup/internal/logger"
	"github.com/viperadnan-git/usbackup/internal/model"
)

// Scheduler owns a fixed set of JobCoordinators and drives them off a
// minute-aligned ticker.
type Scheduler struct {
	jobs  []*jobcoordinator.Coordinator
	store *datastore.Store

	wg     sync.WaitGroup
	cancel context.CancelFunc

	// BehindSchedule is closed when the loop exits because it fell behind.
	// The supervisor does not read it; it drains once Run returns.
	BehindSchedule chan struct{}
}

// New constructs a Scheduler over the given coordinators. store records
// last_scheduled_run for each tick that launches at least one job.
func New(jobs []*jobcoordinator.Coordinator, store *datastore.Store) *Scheduler {
	return &Scheduler{
		jobs:           jobs,
		store:          store,
		BehindSchedule: make(chan struct{}),
	}
}

// Run blocks, ticking once per minute and launching due jobs, until ctx is
// cancelled or the scheduler falls behind schedule (steps 1-3).
// It does not return until every launched job task has completed, matching
// "the scheduler loop is not interrupted mid-step" (cancellation).
func (s *Scheduler) Run(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	next := time.Now().Truncate(time.Minute).Add(time.Minute)

	for {
		now := time.Now()
		wait := next.Sub(now)
		if wait < 0 {
			drift := -wait
			driftMinutes := int64((drift + time.Minute - 1) / time.Minute)
			logger.Log.WithLevel(zerolog.FatalLevel).Int64("drift_minutes", driftMinutes).Msg("scheduler behind schedule, exiting loop")
			close(s.BehindSchedule)
			s.wg.Wait()
			return
		}

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-runCtx.Done():
			timer.Stop()
			s.wg.Wait()
			return
		}

		s.launchDue(runCtx, next)
		next = next.Add(time.Minute)
	}
}

// Stop cancels the scheduler's context and waits up to timeout for
// in-flight job tasks to finish.
func (s *Scheduler) Stop(timeout time.Duration) {
	if s.cancel != nil {
		s.cancel()
	}
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		logger.Log.Warn().Msg("timeout waiting for in-progress jobs to finish")
	}
}

// launchDue fires every coordinator whose schedule matches now as an
// independent fire-and-forget task; overlapping runs of the same job are
// allowed rather than skipped.
func (s *Scheduler) launchDue(ctx context.Context, now time.Time) {
	due := 0
	for _, c := range s.jobs {
		if !c.IsDue(now) {
			continue
		}
		due++
		s.wg.Add(1)
		go func(c *jobcoordinator.Coordinator) {
			defer s.wg.Done()
			if err := c.Run(ctx); err != nil {
				logger.Log.Error().Err(err).Str("job", c.Name()).Msg("job run failed to start")
			}
		}(c)
	}
	if due > 1 {
		logger.Log.Warn().Int("count", due).Msg("more than one job launched in this tick")
	}
	if due > 0 {
		if err := s.store.SetLastScheduledRun(ctx, now); err != nil {
			logger.Log.Warn().Err(err).Msg("failed to record last_scheduled_run")
		}
	}
}

// RunOnceOpts configures a one-shot run synthesized from CLI overrides
// (`run` subcommand).
type RunOnceOpts struct {
	Dest               string
	Type               model.JobType
	Replicate          string
	Limit              []string
	Exclude            []string
	RetentionPolicy    model.RetentionPolicy
	NotificationPolicy model.NotificationPolicy
	Concurrency        int
}

// JobFromOnceOpts synthesizes the one-shot model.Job the `run` subcommand
// describes, with a synthesized name of the form manual-<YYYYMMDDHHMMSS>.
func JobFromOnceOpts(opts RunOnceOpts, now time.Time) model.Job {
	jobType := opts.Type
	if jobType == "" {
		jobType = model.JobBackup
	}
	concurrency := opts.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	return model.Job{
		Name:               "manual-" + now.Format("20060102150405"),
		Type:               jobType,
		Dest:               opts.Dest,
		Replicate:          opts.Replicate,
		Limit:              opts.Limit,
		Exclude:            opts.Exclude,
		Retention:          opts.RetentionPolicy,
		NotificationPolicy: opts.NotificationPolicy,
		Concurrency:        concurrency,
	}
}
