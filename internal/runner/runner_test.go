package runner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/viperadnan-git/usbackup/internal/backupctx"
	"github.com/viperadnan-git/usbackup/internal/cleanupqueue"
	"github.com/viperadnan-git/usbackup/internal/cmdrunner"
	"github.com/viperadnan-git/usbackup/internal/fsadapter"
	"github.com/viperadnan-git/usbackup/internal/model"
	"github.com/rs/zerolog"
)

func newTestBctx(t *testing.T, sourceName string) *backupctx.Context {
	t.Helper()
	fs := fsadapter.New(cmdrunner.New())
	storage := model.Storage{Name: "t1", Path: model.PathRef{
		Path: t.TempDir(), Host: model.HostEndpoint{Host: "localhost", Local: true},
	}}
	return backupctx.New(fs, storage, sourceName)
}

func newTestSource(t *testing.T, name string) model.Source {
	t.Helper()
	srcDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(srcDir, "data.txt"), []byte("payload"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return model.Source{
		Name: name,
		Host: model.HostEndpoint{Host: "localhost", Local: true},
		Handlers: []model.HandlerSpec{
			{Kind: "files", Options: map[string]any{"paths": []string{srcDir}}},
		},
	}
}

func TestBackupRunner_Run_Success(t *testing.T) {
	ctx := context.Background()
	bctx := newTestBctx(t, "source-a")
	source := newTestSource(t, "source-a")
	cleanup := cleanupqueue.New(zerolog.Nop())
	cmd := cmdrunner.New()

	r := New(bctx, cmd, cleanup, source, model.RetentionPolicy{model.BucketLast: 5}, "job-1", "t1")
	result := r.Run(ctx)

	if result.Failed() {
		t.Fatalf("Run() failed: kind=%s msg=%s", result.ErrorKind, result.ErrorMsg)
	}
	if bctx.LockExists(ctx) {
		t.Fatal("lock should be removed after successful run")
	}
	versions, err := bctx.Versions(ctx)
	if err != nil {
		t.Fatalf("Versions: %v", err)
	}
	if len(versions) != 1 {
		t.Fatalf("versions = %v, want exactly one new version", versions)
	}
}

func TestBackupRunner_Run_AlreadyRunning(t *testing.T) {
	ctx := context.Background()
	bctx := newTestBctx(t, "source-a")
	if err := bctx.EnsureDestination(ctx); err != nil {
		t.Fatalf("EnsureDestination: %v", err)
	}
	if err := bctx.CreateLock(ctx); err != nil {
		t.Fatalf("CreateLock: %v", err)
	}

	source := newTestSource(t, "source-a")
	cleanup := cleanupqueue.New(zerolog.Nop())
	r := New(bctx, cmdrunner.New(), cleanup, source, nil, "job-1", "t1")

	result := r.Run(ctx)
	if !result.Failed() || !errors.Is(result.Err(), model.ErrAlreadyRunning) {
		t.Fatalf("want ErrAlreadyRunning, got kind=%s err=%v", result.ErrorKind, result.Err())
	}

	versions, err := bctx.Versions(ctx)
	if err != nil {
		t.Fatalf("Versions: %v", err)
	}
	if len(versions) != 0 {
		t.Fatalf("AlreadyRunning path must not create a version, got %v", versions)
	}
}

func TestBackupRunner_Run_RollsBackOnHandlerFailure(t *testing.T) {
	ctx := context.Background()
	bctx := newTestBctx(t, "source-a")
	source := model.Source{
		Name: "source-a",
		Host: model.HostEndpoint{Host: "localhost", Local: true},
		Handlers: []model.HandlerSpec{
			// A files handler with no "paths" option fails to construct,
			// exercising the same rollback path as a handler runtime failure.
			{Kind: "files", Options: nil},
		},
	}
	cleanup := cleanupqueue.New(zerolog.Nop())
	r := New(bctx, cmdrunner.New(), cleanup, source, nil, "job-1", "t1")

	result := r.Run(ctx)
	if !result.Failed() {
		t.Fatal("want a failed result when the handler fails to construct")
	}
	if bctx.LockExists(ctx) {
		t.Fatal("lock must be removed even on handler failure")
	}
	versions, err := bctx.Versions(ctx)
	if err != nil {
		t.Fatalf("Versions: %v", err)
	}
	if len(versions) != 0 {
		t.Fatalf("want the partial version rolled back, got %v", versions)
	}
}

func TestReplicationRunner_Run_Success(t *testing.T) {
	ctx := context.Background()
	srcCtx := newTestBctx(t, "source-a")
	if err := srcCtx.EnsureDestination(ctx); err != nil {
		t.Fatalf("EnsureDestination(src): %v", err)
	}
	v, err := srcCtx.GenerateVersion(ctx, mustParseTime(t, "2025_01_01-00_00_00"))
	if err != nil {
		t.Fatalf("GenerateVersion: %v", err)
	}
	if err := os.WriteFile(filepath.Join(v.Path.Path, "marker.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	destCtx := newTestBctx(t, "source-a")
	cleanup := cleanupqueue.New(zerolog.Nop())
	rr := NewReplication(destCtx, srcCtx, cmdrunner.New(), cleanup, "source-a", model.RetentionPolicy{model.BucketLast: 5}, "job-2", "t2")

	result := rr.Run(ctx)
	if result.Failed() {
		t.Fatalf("Run() failed: kind=%s msg=%s", result.ErrorKind, result.ErrorMsg)
	}
	if _, err := os.Stat(filepath.Join(destCtx.Root().Path, v.Name, "marker.txt")); err != nil {
		t.Fatalf("expected replicated marker file: %v", err)
	}
}

func TestReplicationRunner_Run_NoSourceVersion(t *testing.T) {
	ctx := context.Background()
	srcCtx := newTestBctx(t, "source-a")
	if err := srcCtx.EnsureDestination(ctx); err != nil {
		t.Fatalf("EnsureDestination(src): %v", err)
	}
	destCtx := newTestBctx(t, "source-a")
	cleanup := cleanupqueue.New(zerolog.Nop())
	rr := NewReplication(destCtx, srcCtx, cmdrunner.New(), cleanup, "source-a", nil, "job-2", "t2")

	result := rr.Run(ctx)
	if !result.Failed() {
		t.Fatal("want failure when the replication source has no versions")
	}
}

func mustParseTime(t *testing.T, name string) time.Time {
	t.Helper()
	parsed, ok := model.ParseVersionName(name)
	if !ok {
		t.Fatalf("bad version name in test: %s", name)
	}
	return parsed
}
