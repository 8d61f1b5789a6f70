package retention

import (
	"context"
	"testing"
	"time"

	"github.com/viperadnan-git/usbackup/internal/backupctx"
	"github.com/viperadnan-git/usbackup/internal/cmdrunner"
	"github.com/viperadnan-git/usbackup/internal/fsadapter"
	"github.com/viperadnan-git/usbackup/internal/model"
)

func mustVersion(name string) model.Version {
	t, ok := model.ParseVersionName(name)
	if !ok {
		panic("bad version name in test: " + name)
	}
	return model.Version{Name: name, Date: t}
}

func namesOf(set map[string]bool) map[string]bool { return set }

// TestProtected_MixedBucketWindows checks last/daily/monthly buckets together
// pick up overlapping versions without double-counting a protected version.
func TestProtected_MixedBucketWindows(t *testing.T) {
	versions := []model.Version{
		mustVersion("2025_01_01-00_00_00"),
		mustVersion("2025_01_01-12_00_00"),
		mustVersion("2025_01_02-00_00_00"),
		mustVersion("2025_01_03-00_00_00"),
		mustVersion("2025_06_01-00_00_00"),
		mustVersion("2025_06_02-00_00_00"),
	}
	policy := model.RetentionPolicy{
		model.BucketLast:    2,
		model.BucketDaily:   2,
		model.BucketMonthly: 2,
	}
	now, ok := model.ParseVersionName("2025_06_02-12_00_00")
	if !ok {
		t.Fatal("bad wall clock in test")
	}

	got := Protected(versions, policy, now)
	want := map[string]bool{
		"2025_06_01-00_00_00": true,
		"2025_06_02-00_00_00": true,
		"2025_01_03-00_00_00": true,
	}
	if len(got) != len(want) {
		t.Fatalf("Protected() = %v, want %v", namesOf(got), want)
	}
	for name := range want {
		if !got[name] {
			t.Errorf("Protected() missing %q", name)
		}
	}
	for name := range got {
		if !want[name] {
			t.Errorf("Protected() has unexpected %q", name)
		}
	}
}

func TestProtected_EmptyPolicyKeepsOnlyNewest(t *testing.T) {
	versions := []model.Version{
		mustVersion("2025_01_01-00_00_00"),
		mustVersion("2025_01_02-00_00_00"),
	}
	now, _ := model.ParseVersionName("2025_01_02-00_00_01")

	got := Protected(versions, nil, now)
	if len(got) != 1 || !got["2025_01_02-00_00_00"] {
		t.Fatalf("Protected(nil policy) = %v, want only newest", got)
	}
}

func TestProtected_TieBreakLaterWins(t *testing.T) {
	versions := []model.Version{
		mustVersion("2025_01_01-00_00_00"),
		mustVersion("2025_01_01-12_00_00"),
	}
	policy := model.RetentionPolicy{model.BucketDaily: 1}
	now, _ := model.ParseVersionName("2025_01_05-00_00_00")

	got := Protected(versions, policy, now)
	if !got["2025_01_01-12_00_00"] {
		t.Fatalf("Protected() = %v, want later-same-day version retained", got)
	}
	if got["2025_01_01-00_00_00"] {
		t.Fatalf("Protected() = %v, want earlier-same-day version pruned", got)
	}
}

func TestProtected_BucketTrimsToN(t *testing.T) {
	versions := []model.Version{
		mustVersion("2025_01_01-00_00_00"),
		mustVersion("2025_01_02-00_00_00"),
		mustVersion("2025_01_03-00_00_00"),
	}
	policy := model.RetentionPolicy{model.BucketLast: 1}
	now, _ := model.ParseVersionName("2025_02_01-00_00_00")

	got := Protected(versions, policy, now)
	// "last" keeps only the newest under N=1, plus the always-protected newest
	// overall (same version here), so exactly one survives.
	if len(got) != 1 || !got["2025_01_03-00_00_00"] {
		t.Fatalf("Protected() = %v, want only the newest version", got)
	}
}

func newTestBackupContext(t *testing.T) *backupctx.Context {
	t.Helper()
	fs := fsadapter.New(cmdrunner.New())
	storage := model.Storage{Name: "t1", Path: model.PathRef{
		Path: t.TempDir(), Host: model.HostEndpoint{Host: "localhost", Local: true},
	}}
	return backupctx.New(fs, storage, "source-a")
}

func TestPrune_RemovesUnprotectedVersions(t *testing.T) {
	bctx := newTestBackupContext(t)
	ctx := context.Background()
	if err := bctx.EnsureDestination(ctx); err != nil {
		t.Fatalf("EnsureDestination: %v", err)
	}

	times := []time.Time{
		time.Date(2025, 1, 1, 0, 0, 0, 0, time.Local),
		time.Date(2025, 1, 2, 0, 0, 0, 0, time.Local),
		time.Date(2025, 1, 3, 0, 0, 0, 0, time.Local),
	}
	for _, ti := range times {
		if _, err := bctx.GenerateVersion(ctx, ti); err != nil {
			t.Fatalf("GenerateVersion(%v): %v", ti, err)
		}
	}

	policy := model.RetentionPolicy{model.BucketLast: 1}
	now := time.Date(2025, 2, 1, 0, 0, 0, 0, time.Local)
	if err := Prune(ctx, bctx, policy, now); err != nil {
		t.Fatalf("Prune: %v", err)
	}

	versions, err := bctx.Versions(ctx)
	if err != nil {
		t.Fatalf("Versions: %v", err)
	}
	if len(versions) != 1 || versions[0].Name != "2025_01_03-00_00_00" {
		t.Fatalf("versions after prune = %v, want only newest", versions)
	}
}

func TestPrune_NoVersionsIsNoop(t *testing.T) {
	bctx := newTestBackupContext(t)
	ctx := context.Background()
	if err := bctx.EnsureDestination(ctx); err != nil {
		t.Fatalf("EnsureDestination: %v", err)
	}
	if err := Prune(ctx, bctx, model.RetentionPolicy{model.BucketLast: 1}, time.Now()); err != nil {
		t.Fatalf("Prune on empty context should be a no-op, got %v", err)
	}
}

// TestPrune_Degenerate covers the degenerate case of a policy with every
// bucket disabled: Protected still keeps the newest version, so Prune keeps
// it and does not return ErrRetentionDegenerate.
func TestPrune_Degenerate(t *testing.T) {
	bctx := newTestBackupContext(t)
	ctx := context.Background()
	if err := bctx.EnsureDestination(ctx); err != nil {
		t.Fatalf("EnsureDestination: %v", err)
	}
	if _, err := bctx.GenerateVersion(ctx, time.Date(2025, 1, 1, 0, 0, 0, 0, time.Local)); err != nil {
		t.Fatalf("GenerateVersion: %v", err)
	}

	// An empty-but-non-nil policy disables every bucket, and Protected's
	// always-protect-newest rule means this path is unreachable through the
	// public Protected function; directly assert that guarantee instead.
	got := Protected([]model.Version{mustVersion("2025_01_01-00_00_00")}, model.RetentionPolicy{}, time.Now())
	if len(got) == 0 {
		t.Fatal("Protected() must never return empty when versions exist")
	}

	if err := Prune(ctx, bctx, model.RetentionPolicy{}, time.Now()); err != nil {
		t.Fatalf("Prune with empty policy should fall back to keep-newest, not degenerate: %v", err)
	}
	versions, err := bctx.Versions(ctx)
	if err != nil {
		t.Fatalf("Versions: %v", err)
	}
	if len(versions) != 1 {
		t.Fatalf("versions = %v, want the single version kept as newest", versions)
	}
}
