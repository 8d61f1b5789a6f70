package runner

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/viperadnan-git/usbackup/internal/backupctx"
	"github.com/viperadnan-git/usbackup/internal/cleanupqueue"
	"github.com/viperadnan-git/usbackup/internal/cmdrunner"
	"github.com/viperadnan-git/usbackup/internal/fsadapter"
	"github.com/viperadnan-git/usbackup/internal/logger"
	"github.com/viperadnan-git/usbackup/internal/model"
	"github.com/viperadnan-git/usbackup/internal/retention"
)

// replicationRsyncOptions are the rsync flags for copying a version
// directory into the destination root: archive, hard-links, acls, xattrs,
// and delete/delete-during so the copied version directory matches its
// source. The source path has no trailing slash, so deletion is confined to
// that version directory; other entries in the destination root are kept.
var replicationRsyncOptions = []string{"--archive", "--hard-links", "--acls", "--xattrs", "--delete", "--delete-during"}

// ReplicationRunner mirrors one storage's latest version into another
// storage's root: like BackupRunner, but the "source" is a
// BackupContext over the replication-source storage rather than a live host.
type ReplicationRunner struct {
	destCtx     *backupctx.Context
	srcCtx      *backupctx.Context
	cmd         *cmdrunner.Runner
	fs          *fsadapter.Adapter
	cleanup     *cleanupqueue.Queue
	sourceName  string
	retention   model.RetentionPolicy
	jobName     string
	storageName string
}

// NewReplication constructs a ReplicationRunner copying srcCtx's latest
// version into destCtx's root.
func NewReplication(destCtx, srcCtx *backupctx.Context, cmd *cmdrunner.Runner, cleanup *cleanupqueue.Queue, sourceName string, policy model.RetentionPolicy, jobName, storageName string) *ReplicationRunner {
	return &ReplicationRunner{
		destCtx: destCtx, srcCtx: srcCtx, cmd: cmd, fs: fsadapter.New(cmd), cleanup: cleanup,
		sourceName: sourceName, retention: policy, jobName: jobName, storageName: storageName,
	}
}

// Run executes the same lifecycle as BackupRunner.Run, except the dump/
// handler-chain step is replaced by a single whole-version rsync against
// the replication source's latest version.
func (r *ReplicationRunner) Run(ctx context.Context) model.RunResult {
	runID := uuid.NewString()
	runStart := time.Now()
	var logBuf bytes.Buffer
	log := logger.WithBuffer(r.jobName, r.sourceName, r.storageName, runID, &logBuf)

	if r.destCtx.LockExists(ctx) {
		return model.NewFailedResult(r.sourceName, runStart, time.Since(runStart), fmt.Errorf("%w: %s", model.ErrAlreadyRunning, r.sourceName))
	}
	if srcHost := r.srcCtx.Root().Host; !r.cmd.IsReachable(ctx, srcHost) {
		return model.NewFailedResult(r.sourceName, runStart, time.Since(runStart), fmt.Errorf("%w: %s", model.ErrUnreachable, srcHost))
	}

	replicateVersion, ok, err := r.srcCtx.LatestVersion(ctx)
	if err != nil {
		return model.NewFailedResult(r.sourceName, runStart, time.Since(runStart), err)
	}
	if !ok {
		return model.NewFailedResult(r.sourceName, runStart, time.Since(runStart),
			fmt.Errorf("%w: no backup version found to replicate for %q", model.ErrHandlerFailed, r.sourceName))
	}

	log.Info().Msg("replication started")

	if err := r.destCtx.EnsureDestination(ctx); err != nil {
		return model.NewFailedResult(r.sourceName, runStart, time.Since(runStart), err)
	}

	lockID := "remove-lock-" + runID
	if err := r.destCtx.CreateLock(ctx); err != nil {
		return model.NewFailedResult(r.sourceName, runStart, time.Since(runStart), err)
	}
	// The lock removal must still run after ctx is cancelled.
	cleanupCtx := context.WithoutCancel(ctx)
	if err := r.cleanup.Push(lockID, func() error { return r.destCtx.RemoveLock(cleanupCtx) }); err != nil {
		return model.NewFailedResult(r.sourceName, runStart, time.Since(runStart), err)
	}

	result := model.RunResult{
		SourceName: r.sourceName,
		DestPath:   r.destCtx.Root().String(),
		StartedAt:  runStart,
	}

	_, syncErr := r.fs.Rsync(ctx, replicateVersion.Path, r.destCtx.Root(), replicationRsyncOptions)
	if syncErr != nil {
		log.Error().Err(syncErr).Msg("replication rsync failed")
		result = model.NewFailedResult(r.sourceName, runStart, time.Since(runStart), syncErr)
	} else if err := retention.Prune(ctx, r.destCtx, r.retention, time.Now()); err != nil {
		log.Warn().Err(err).Msg("retention pruning failed")
		result.ErrorKind = model.Classify(err)
		result.ErrorMsg = err.Error()
	}

	_ = r.cleanup.Consume(lockID)

	result.Elapsed = time.Since(runStart)
	result.LogBuffer = logBuf.String()
	log.Info().Dur("elapsed", result.Elapsed).Msg("replication finished")
	return result
}
