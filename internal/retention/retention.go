// Package retention implements the RetentionEngine: a six-bucket
// (last/hourly/daily/weekly/monthly/yearly) protected-set computation over a
// version list, grounded directly on
// original_source/usbackup/services/host.py::_get_protected_versions (the
// same algorithm is duplicated in services/runner.py and backup_host.py,
// confirming it is stable, load-bearing logic rather than a draft artifact).
package retention

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/viperadnan-git/usbackup/internal/backupctx"
	"github.com/viperadnan-git/usbackup/internal/model"
)

// filterKey renders t under bucket's time-window filter. Bucket
// "last" has no filter (every version is its own window).
func filterKey(bucket model.Bucket, t time.Time) (string, bool) {
	switch bucket {
	case model.BucketLast:
		return "", false
	case model.BucketHourly:
		return t.Format("2006-01-02 15"), true
	case model.BucketDaily:
		return t.Format("2006-01-02"), true
	case model.BucketWeekly:
		return weekKey(t), true
	case model.BucketMonthly:
		return t.Format("2006-01"), true
	case model.BucketYearly:
		return t.Format("2006"), true
	default:
		return "", false
	}
}

// weekKey renders a stable "year-week" key. Go's time.Time.ISOWeek is the
// nearest stdlib equivalent to Python's "%Y-%W" strftime directive used by
// original_source; only versions within the same calendar week need to
// collide under this bucket, not bit-for-bit parity with Python's specific
// week-numbering convention.
func weekKey(t time.Time) string {
	year, week := t.ISOWeek()
	return strconv.Itoa(year) + "-W" + strconv.Itoa(week)
}

// Protected computes the protected set for versions (sorted ascending by
// Date) under policy, as of wall-clock now. The result always includes
// the single newest version overall, even for a nil/empty policy (treated as
// keep-only-newest).
func Protected(versions []model.Version, policy model.RetentionPolicy, now time.Time) map[string]bool {
	protected := make(map[string]bool)

	for _, bucket := range model.Buckets {
		n, enabled := policy[bucket]
		if !enabled || n <= 0 {
			continue
		}

		nowKey, hasFilter := filterKey(bucket, now)
		var kept []model.Version
		var prevKey string
		havePrev := false

		for _, v := range versions {
			key, _ := filterKey(bucket, v.Date)
			if hasFilter && key == nowKey {
				// The current window is never considered complete.
				break
			}

			if havePrev && hasFilter && key == prevKey {
				// Same window as the prior version: prefer the later one.
				kept = kept[:len(kept)-1]
			}
			kept = append(kept, v)

			if len(kept) > n {
				kept = kept[1:]
			}

			prevKey = key
			havePrev = true
		}

		for _, v := range kept {
			protected[v.Name] = true
		}
	}

	if len(versions) > 0 {
		protected[versions[len(versions)-1].Name] = true
	}

	return protected
}

// Prune computes the protected set and removes every other version from ctx.
// Fails with model.ErrRetentionDegenerate — without pruning
// anything — if the protected set is empty while versions exist (a
// misconfiguration must never delete everything).
func Prune(ctx context.Context, bctx *backupctx.Context, policy model.RetentionPolicy, now time.Time) error {
	versions, err := bctx.Versions(ctx)
	if err != nil {
		return err
	}
	if len(versions) == 0 {
		return nil
	}

	protected := Protected(versions, policy, now)
	if len(protected) == 0 {
		return fmt.Errorf("%w", model.ErrRetentionDegenerate)
	}

	var toPrune []model.Version
	for _, v := range versions {
		if !protected[v.Name] {
			toPrune = append(toPrune, v)
		}
	}

	// Ordering of prune operations is arbitrary but deterministic given the
	// input; sort by name for reproducibility.
	sort.Slice(toPrune, func(i, j int) bool { return toPrune[i].Name < toPrune[j].Name })

	for _, v := range toPrune {
		if err := bctx.RemoveVersion(ctx, v); err != nil {
			return err
		}
	}
	return nil
}
