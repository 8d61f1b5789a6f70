// Package runner implements the per-source workflow:
// BackupRunner (handler-sequence backup) and ReplicationRunner
// (storage-to-storage sync), grounded on
// original_source/usbackup/services/backup_runner.py and
// services/replication_runner.py.
package runner

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/viperadnan-git/usbackup/internal/backupctx"
	"github.com/viperadnan-git/usbackup/internal/cleanupqueue"
	"github.com/viperadnan-git/usbackup/internal/cmdrunner"
	"github.com/viperadnan-git/usbackup/internal/fsadapter"
	"github.com/viperadnan-git/usbackup/internal/handlers"
	"github.com/viperadnan-git/usbackup/internal/logger"
	"github.com/viperadnan-git/usbackup/internal/model"
	"github.com/viperadnan-git/usbackup/internal/retention"
)

// BackupRunner runs one source's work inside one job run.
type BackupRunner struct {
	bctx        *backupctx.Context
	cmd         *cmdrunner.Runner
	cleanup     *cleanupqueue.Queue
	source      model.Source
	retention   model.RetentionPolicy
	jobName     string
	storageName string
}

// New constructs a BackupRunner for one (source, job) pairing.
func New(bctx *backupctx.Context, cmd *cmdrunner.Runner, cleanup *cleanupqueue.Queue, source model.Source, policy model.RetentionPolicy, jobName, storageName string) *BackupRunner {
	return &BackupRunner{bctx: bctx, cmd: cmd, cleanup: cleanup, source: source, retention: policy, jobName: jobName, storageName: storageName}
}

// Run executes the per-source backup workflow step by step, returning a
// RunResult that never propagates an error across the caller boundary:
// handler failures are values, not exceptions.
func (r *BackupRunner) Run(ctx context.Context) model.RunResult {
	runID := uuid.NewString()
	runStart := time.Now()
	var logBuf bytes.Buffer
	log := logger.WithBuffer(r.jobName, r.source.Name, r.storageName, runID, &logBuf)

	if r.bctx.LockExists(ctx) {
		return model.NewFailedResult(r.source.Name, runStart, time.Since(runStart), fmt.Errorf("%w: %s", model.ErrAlreadyRunning, r.source.Name))
	}
	if !r.cmd.IsReachable(ctx, r.source.Host) {
		return model.NewFailedResult(r.source.Name, runStart, time.Since(runStart), fmt.Errorf("%w: %s", model.ErrUnreachable, r.source.Host))
	}

	log.Info().Msg("backup started")

	if err := r.bctx.EnsureDestination(ctx); err != nil {
		return model.NewFailedResult(r.source.Name, runStart, time.Since(runStart), err)
	}

	prev, havePrev, err := r.bctx.LatestVersion(ctx)
	if err != nil {
		return model.NewFailedResult(r.source.Name, runStart, time.Since(runStart), err)
	}

	version, err := r.bctx.GenerateVersion(ctx, runStart)
	if err != nil {
		return model.NewFailedResult(r.source.Name, runStart, time.Since(runStart), err)
	}

	// Cleanup actions must still run after ctx is cancelled, so they use a
	// context that keeps ctx's values but not its cancellation.
	cleanupCtx := context.WithoutCancel(ctx)

	lockID := "remove-lock-" + runID
	if err := r.bctx.CreateLock(ctx); err != nil {
		return model.NewFailedResult(r.source.Name, runStart, time.Since(runStart), err)
	}
	if err := r.cleanup.Push(lockID, func() error { return r.bctx.RemoveLock(cleanupCtx) }); err != nil {
		return model.NewFailedResult(r.source.Name, runStart, time.Since(runStart), err)
	}

	rollbackID := "rollback-version-" + runID
	if err := r.cleanup.Push(rollbackID, func() error { return r.bctx.RemoveVersion(cleanupCtx, version) }); err != nil {
		return model.NewFailedResult(r.source.Name, runStart, time.Since(runStart), err)
	}

	handlerErr := r.runHandlers(ctx, log, version, prev, havePrev)

	result := model.RunResult{
		SourceName: r.source.Name,
		DestPath:   version.Path.String(),
		StartedAt:  runStart,
	}

	if handlerErr != nil {
		log.Error().Err(handlerErr).Msg("handler failed, rolling back version")
		_ = r.cleanup.Consume(rollbackID)
		_ = r.cleanup.Consume(lockID)
		result = model.NewFailedResult(r.source.Name, runStart, time.Since(runStart), handlerErr)
	} else {
		_ = r.cleanup.Pop(rollbackID)
		if err := retention.Prune(ctx, r.bctx, r.retention, time.Now()); err != nil {
			log.Warn().Err(err).Msg("retention pruning failed")
			result.ErrorKind = model.Classify(err)
			result.ErrorMsg = err.Error()
		}
		_ = r.cleanup.Consume(lockID)
	}

	result.Elapsed = time.Since(runStart)
	result.LogBuffer = logBuf.String()
	log.Info().Dur("elapsed", result.Elapsed).Msg("backup finished")
	return result
}

func (r *BackupRunner) runHandlers(ctx context.Context, log zerolog.Logger, version model.Version, prev model.Version, havePrev bool) error {
	fs := fsadapter.New(r.cmd)
	for _, spec := range r.source.Handlers {
		handlerLog := log.With().Str("handler", spec.Kind).Logger()

		dest := version.Path.Join(spec.Kind)
		if err := fs.Mkdir(ctx, dest); err != nil {
			return err
		}

		var linkDest model.PathRef
		if havePrev {
			linkDest = prev.Path.Join(spec.Kind)
			handlerLog.Info().Str("link_dest", linkDest.Path).Msg("using link-dest hint")
		}

		handler, err := handlers.New(spec.Kind, handlers.Deps{
			Source:  r.source.Host,
			Options: spec.Options,
			Fs:      fs,
			Cmd:     r.cmd,
			Cleanup: r.cleanup,
			Log:     handlerLog,
		})
		if err != nil {
			return err
		}

		handlerLog.Info().Msg("performing backup")
		if err := handler.Backup(ctx, dest, linkDest); err != nil {
			return err
		}
	}
	return nil
}
