// Package supervisor implements the Supervisor: the top-level
// process lifecycle (PID file, signal handling, Starting→Running→Draining→
// Exited state machine) around the Scheduler, plus the once-mode and stats
// entry points the CLI dispatches to. Grounded on
// original_source/usbackup/manager.py's `_run_service` (PID file, signal
// handlers) and on the base codebase's `cmd/dbstash/main.go` `run()` signal
// loop, generalized from one process guarding one job to one process owning
// N JobCoordinators.
package supervisor

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/viperadnan-git/usbackup/internal/cleanupqueue"
	"github.com/viperadnan-git/usbackup/internal/cmdrunner"
	"github.com/viperadnan-git/usbackup/internal/config"
	"github.com/viperadnan-git/usbackup/internal/datastore"
	"github.com/viperadnan-git/usbackup/internal/jobcoordinator"
	"github.com/viperadnan-git/usbackup/internal/logger"
	"github.com/viperadnan-git/usbackup/internal/model"
	"github.com/viperadnan-git/usbackup/internal/notify"
	"github.com/viperadnan-git/usbackup/internal/scheduler"
)

// PIDPath returns the well-known PID file path for the current user: root
// gets the system-wide path, anyone else falls back to a path under their
// home directory.
func PIDPath() string {
	if os.Geteuid() == 0 {
		return "/var/run/usbackup.pid"
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".usbackup.pid")
}

// DatastorePath returns the well-known Datastore path for the current user,
// mirroring PIDPath's root/unprivileged split.
func DatastorePath() string {
	if os.Geteuid() == 0 {
		return "/var/opt/usbackup/usbackup.db"
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".usbackup", "usbackup.db")
}

// writePIDFile creates path exclusively, failing if it already exists.
func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("supervisor: creating PID file directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return fmt.Errorf("%w: PID file %q already exists, another instance may be running", model.ErrAlreadyRunning, path)
		}
		return fmt.Errorf("supervisor: creating PID file: %w", err)
	}
	defer f.Close()
	_, err = f.WriteString(strconv.Itoa(os.Getpid()))
	return err
}

func buildCoordinators(cfg *config.Config, store *datastore.Store, notifier *notify.Dispatcher) []*jobcoordinator.Coordinator {
	storages := cfg.StoragesByName()
	cmd := cmdrunner.New()
	coords := make([]*jobcoordinator.Coordinator, 0, len(cfg.Jobs))
	for _, job := range cfg.Jobs {
		coords = append(coords, jobcoordinator.New(job, cfg.Sources, storages, cmd, store, notifier))
	}
	return coords
}

// RunDaemon enters the daemon state machine: Starting (open datastore, write
// PID file) → Running (scheduler loop) → Draining (signal or schedule drift)
// → Exited (CleanupQueue.Drain, unconditionally).
func RunDaemon(cfg *config.Config) error {
	cleanup := cleanupqueue.New(logger.Log)
	defer cleanup.Drain()

	store, err := datastore.Open(DatastorePath())
	if err != nil {
		return err
	}
	cleanup.Push("close-datastore", func() error { return store.Close() })

	pidPath := PIDPath()
	if err := writePIDFile(pidPath); err != nil {
		return err
	}
	cleanup.Push("remove-pid", func() error { return os.Remove(pidPath) })

	ctx := context.Background()
	if err := store.SetRunning(ctx, true); err != nil {
		logger.Log.Warn().Err(err).Msg("failed to record running state")
	}
	cleanup.Push("mark-not-running", func() error { return store.SetRunning(context.Background(), false) })

	notifier, err := notify.NewDispatcher(cfg.Notifiers)
	if err != nil {
		return err
	}

	coords := buildCoordinators(cfg, store, notifier)
	sched := scheduler.New(coords, store)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer signal.Stop(sigCh)

	done := make(chan struct{})
	go func() {
		sched.Run(runCtx)
		close(done)
	}()

	logger.Log.Info().Int("jobs", len(coords)).Msg("usbackup daemon running")

	select {
	case sig := <-sigCh:
		logger.Log.Info().Str("signal", sig.String()).Msg("received shutdown signal, draining")
		cancel()
		<-done
	case <-done:
		logger.Log.Error().Msg("scheduler loop exited on its own (behind schedule), draining")
	}

	return nil
}

// RunOnce executes the CLI `run` subcommand: build a single synthesized job
// from opts, open the Datastore, record last_manual_run, and run the job
// synchronously.
func RunOnce(cfg *config.Config, opts scheduler.RunOnceOpts) error {
	store, err := datastore.Open(DatastorePath())
	if err != nil {
		return err
	}
	defer store.Close()

	notifier, err := notify.NewDispatcher(cfg.Notifiers)
	if err != nil {
		return err
	}

	job := scheduler.JobFromOnceOpts(opts, time.Now())
	if err := job.Validate(); err != nil {
		return err
	}

	storages := cfg.StoragesByName()
	coord := jobcoordinator.New(job, cfg.Sources, storages, cmdrunner.New(), store, notifier)

	ctx := context.Background()
	if err := store.SetLastManualRun(ctx, time.Now()); err != nil {
		logger.Log.Warn().Err(err).Msg("failed to record last_manual_run")
	}

	return coord.Run(ctx)
}

// Stats is the data the `stats` subcommand prints: service state and
// last-backup records.
type Stats struct {
	Running          bool                       `json:"running"`
	LastManualRun    time.Time                  `json:"last_manual_run,omitempty"`
	LastScheduledRun time.Time                  `json:"last_scheduled_run,omitempty"`
	Backups          map[string]model.RunResult `json:"backups"`
}

// ReadStats opens the Datastore (read-write, as datastore.Open always does)
// and reads the values the `stats` subcommand prints; it writes nothing.
func ReadStats() (Stats, error) {
	store, err := datastore.Open(DatastorePath())
	if err != nil {
		return Stats{}, err
	}
	defer store.Close()

	ctx := context.Background()
	running, err := store.Running(ctx)
	if err != nil {
		return Stats{}, err
	}
	lastManual, err := store.LastManualRun(ctx)
	if err != nil {
		return Stats{}, err
	}
	lastScheduled, err := store.LastScheduledRun(ctx)
	if err != nil {
		return Stats{}, err
	}
	backups, err := store.Backups(ctx)
	if err != nil {
		return Stats{}, err
	}

	return Stats{
		Running:          running,
		LastManualRun:    lastManual,
		LastScheduledRun: lastScheduled,
		Backups:          backups,
	}, nil
}

// FormatJSON renders Stats as indented JSON for `stats --json`.
func (s Stats) FormatJSON() (string, error) {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// FormatText renders Stats as human-readable lines for plain `stats`.
func (s Stats) FormatText() string {
	out := fmt.Sprintf("running: %v\n", s.Running)
	if !s.LastManualRun.IsZero() {
		out += fmt.Sprintf("last_manual_run: %s\n", s.LastManualRun.Format(time.RFC3339))
	}
	if !s.LastScheduledRun.IsZero() {
		out += fmt.Sprintf("last_scheduled_run: %s\n", s.LastScheduledRun.Format(time.RFC3339))
	}
	if len(s.Backups) == 0 {
		out += "backups: (none)\n"
		return out
	}
	out += "backups:\n"
	for name, r := range s.Backups {
		status := "ok"
		if r.Failed() {
			status = "failed: " + r.ErrorMsg
		}
		out += fmt.Sprintf("  %s: %s (elapsed %s)\n", name, status, r.Elapsed.Round(time.Second))
	}
	return out
}
