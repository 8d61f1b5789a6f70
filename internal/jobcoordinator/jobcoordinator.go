// Package jobcoordinator implements the JobCoordinator: one
// instance per configured job, fanning a job's sources out to BackupRunner
// or ReplicationRunner under a bounded-concurrency semaphore and collecting
// their results, grounded on original_source/usbackup/services/job.py's
// run()/_semaphore_worker() pair.
package jobcoordinator

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/viperadnan-git/usbackup/internal/backupctx"
	"github.com/viperadnan-git/usbackup/internal/cleanupqueue"
	"github.com/viperadnan-git/usbackup/internal/cmdrunner"
	"github.com/viperadnan-git/usbackup/internal/cronmatcher"
	"github.com/viperadnan-git/usbackup/internal/datastore"
	"github.com/viperadnan-git/usbackup/internal/fsadapter"
	"github.com/viperadnan-git/usbackup/internal/logger"
	"github.com/viperadnan-git/usbackup/internal/model"
	"github.com/viperadnan-git/usbackup/internal/notify"
	"github.com/viperadnan-git/usbackup/internal/runner"
)

// Coordinator runs one Job's sources against its destination storage (and,
// for replication jobs, a replication-source storage) on each due tick.
type Coordinator struct {
	job      model.Job
	sources  []model.Source
	storages map[string]model.Storage
	cmd      *cmdrunner.Runner
	store    *datastore.Store
	notifier *notify.Dispatcher
}

// New constructs a Coordinator for job, given the full source list (limit
// and exclude are applied at run time, not here) and
// the storage registry resolved by name.
func New(job model.Job, sources []model.Source, storages map[string]model.Storage, cmd *cmdrunner.Runner, store *datastore.Store, notifier *notify.Dispatcher) *Coordinator {
	return &Coordinator{job: job, sources: sources, storages: storages, cmd: cmd, store: store, notifier: notifier}
}

// Name returns the job's name.
func (c *Coordinator) Name() string { return c.job.Name }

// IsDue reports whether the job's schedule matches now.
func (c *Coordinator) IsDue(now time.Time) bool {
	due, err := cronmatcher.Match(c.job.EffectiveSchedule(), now)
	if err != nil {
		logger.Log.Error().Err(err).Str("job", c.job.Name).Str("schedule", c.job.EffectiveSchedule()).Msg("invalid schedule, treating job as not due")
		return false
	}
	return due
}

// resolveSources applies limit (whitelist) then exclude (blacklist) to the
// coordinator's full source list. An empty result after
// filtering is a hard failure.
func (c *Coordinator) resolveSources() ([]model.Source, error) {
	limited := c.sources
	if len(c.job.Limit) > 0 {
		allow := make(map[string]bool, len(c.job.Limit))
		for _, name := range c.job.Limit {
			allow[name] = true
		}
		limited = nil
		for _, s := range c.sources {
			if allow[s.Name] {
				limited = append(limited, s)
			}
		}
	}

	exclude := make(map[string]bool, len(c.job.Exclude))
	for _, name := range c.job.Exclude {
		exclude[name] = true
	}

	var resolved []model.Source
	for _, s := range limited {
		if !exclude[s.Name] {
			resolved = append(resolved, s)
		}
	}

	if len(resolved) == 0 {
		return nil, fmt.Errorf("%w: job %q resolves to zero sources after limit/exclude", model.ErrConfigInvalid, c.job.Name)
	}
	return resolved, nil
}

// resolveStorages looks up the job's dest (and, for replication, replicate)
// storage by name. Missing names are a hard failure.
func (c *Coordinator) resolveStorages() (dest model.Storage, replicate model.Storage, err error) {
	dest, ok := c.storages[c.job.Dest]
	if !ok {
		return model.Storage{}, model.Storage{}, fmt.Errorf("%w: job %q references unknown dest storage %q", model.ErrConfigInvalid, c.job.Name, c.job.Dest)
	}
	if c.job.Type != model.JobReplication {
		return dest, model.Storage{}, nil
	}
	replicate, ok = c.storages[c.job.Replicate]
	if !ok {
		return model.Storage{}, model.Storage{}, fmt.Errorf("%w: job %q references unknown replicate storage %q", model.ErrConfigInvalid, c.job.Name, c.job.Replicate)
	}
	return dest, replicate, nil
}

// Run executes the full algorithm for one job tick. It returns an
// error only for the two hard-failure preconditions (source/storage
// resolution, pre-run command); runner failures never propagate here, they
// surface as failed RunResults instead.
func (c *Coordinator) Run(ctx context.Context) error {
	jobStart := time.Now()
	log := logger.With(c.job.Name, "", "", "")
	log.Info().Str("type", string(c.job.Type)).Msg("job started")

	if len(c.job.PreRunCmd) > 0 {
		if _, err := c.cmd.Exec(ctx, c.job.PreRunCmd, nil, cmdrunner.Options{}); err != nil {
			log.Error().Err(err).Strs("pre_run_cmd", c.job.PreRunCmd).Msg("pre-run command failed, aborting job")
			return fmt.Errorf("job %q pre-run command failed: %w", c.job.Name, err)
		}
	}

	sources, err := c.resolveSources()
	if err != nil {
		return err
	}

	destStorage, replicateStorage, err := c.resolveStorages()
	if err != nil {
		return err
	}

	results := c.runSources(ctx, sources, destStorage, replicateStorage)

	if len(c.job.PostRunCmd) > 0 {
		if _, err := c.cmd.Exec(ctx, c.job.PostRunCmd, nil, cmdrunner.Options{}); err != nil {
			log.Warn().Err(err).Strs("post_run_cmd", c.job.PostRunCmd).Msg("post-run command failed, job status unaffected")
		}
	}

	elapsed := time.Since(jobStart)
	c.notifier.Notify(ctx, c.job.Name, c.job.Type, results, elapsed, c.job.EffectiveNotificationPolicy())

	if c.job.Type == model.JobBackup {
		if err := c.store.RecordBackups(ctx, results); err != nil {
			log.Error().Err(err).Msg("failed to persist backup results to datastore")
		}
	}

	failed := countFailed(results)
	log.Info().Int("sources", len(results)).Int("failed", failed).Dur("elapsed", elapsed).Msg("job finished")
	return nil
}

// runSources fans out one runner per source under a semaphore of size
// job.EffectiveConcurrency(). A
// panic-free failure in one source's runner never affects its peers: each
// task only ever writes to its own results slot.
func (c *Coordinator) runSources(ctx context.Context, sources []model.Source, destStorage, replicateStorage model.Storage) []model.RunResult {
	sem := semaphore.NewWeighted(int64(c.job.EffectiveConcurrency()))
	results := make([]model.RunResult, len(sources))
	done := make(chan struct{}, len(sources))

	for i, source := range sources {
		i, source := i, source
		if err := sem.Acquire(ctx, 1); err != nil {
			results[i] = model.NewFailedResult(source.Name, time.Now(), 0, fmt.Errorf("%w: %v", model.ErrHandlerFailed, err))
			done <- struct{}{}
			continue
		}
		go func() {
			defer sem.Release(1)
			defer func() { done <- struct{}{} }()
			results[i] = c.runOneSource(ctx, source, destStorage, replicateStorage)
		}()
	}

	for range sources {
		<-done
	}
	return results
}

func (c *Coordinator) runOneSource(ctx context.Context, source model.Source, destStorage, replicateStorage model.Storage) model.RunResult {
	cleanup := cleanupqueue.New(logger.With(c.job.Name, source.Name, destStorage.Name, ""))
	fs := fsadapter.New(c.cmd)

	if c.job.Type == model.JobReplication {
		destCtx := backupctx.New(fs, destStorage, source.Name)
		srcCtx := backupctx.New(fs, replicateStorage, source.Name)
		rr := runner.NewReplication(destCtx, srcCtx, c.cmd, cleanup, source.Name, c.job.Retention, c.job.Name, destStorage.Name)
		result := rr.Run(ctx)
		c.drainIfIncomplete(cleanup, result)
		return result
	}

	bctx := backupctx.New(fs, destStorage, source.Name)
	r := runner.New(bctx, c.cmd, cleanup, source, c.job.Retention, c.job.Name, destStorage.Name)
	result := r.Run(ctx)
	c.drainIfIncomplete(cleanup, result)
	return result
}

// drainIfIncomplete defensively drains any cleanup entries a runner left
// behind (it should leave none on either exit path; this only guards
// against a future runner bug leaking an entry across source boundaries).
func (c *Coordinator) drainIfIncomplete(cleanup *cleanupqueue.Queue, result model.RunResult) {
	if cleanup.Len() == 0 {
		return
	}
	log := logger.With(c.job.Name, result.SourceName, "", "")
	log.Warn().Int("leaked_entries", cleanup.Len()).Msg("runner left cleanup entries behind, draining")
	cleanup.Drain()
}

func countFailed(results []model.RunResult) int {
	n := 0
	for _, r := range results {
		if r.Failed() {
			n++
		}
	}
	return n
}
