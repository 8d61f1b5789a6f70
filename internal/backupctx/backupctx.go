// Package backupctx implements the BackupContext: a per
// (source, storage) workspace rooted at <storage.path>/<source.name>,
// grounded on original_source/usbackup/services/host.py's version
// enumeration and backup.lock handling.
package backupctx

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/viperadnan-git/usbackup/internal/fsadapter"
	"github.com/viperadnan-git/usbackup/internal/model"
)

const lockFileName = "backup.lock"

// Context is a pure view over the filesystem rooted at root. It holds no
// mutable state other than an optional versions cache (invariant).
type Context struct {
	fs   *fsadapter.Adapter
	root model.PathRef

	cached     bool
	versionsCache []model.Version
}

// New constructs a Context rooted at storage.Path.Join(sourceName).
func New(fs *fsadapter.Adapter, storage model.Storage, sourceName string) *Context {
	return &Context{fs: fs, root: storage.Path.Join(sourceName)}
}

// Root returns the context's root PathRef.
func (c *Context) Root() model.PathRef { return c.root }

// EnsureDestination creates the root directory if missing.
func (c *Context) EnsureDestination(ctx context.Context) error {
	return c.fs.Mkdir(ctx, c.root)
}

// Versions returns the version list sorted ascending by date. Children whose
// names fail to parse are silently skipped. Cached for the
// lifetime of this Context once computed.
func (c *Context) Versions(ctx context.Context) ([]model.Version, error) {
	if c.cached {
		return c.versionsCache, nil
	}

	entries, err := c.fs.Ls(ctx, c.root)
	if err != nil {
		return nil, err
	}

	versions := make([]model.Version, 0, len(entries))
	for _, name := range entries {
		t, ok := model.ParseVersionName(name)
		if !ok {
			continue
		}
		versions = append(versions, model.Version{
			Name: name,
			Path: c.root.Join(name),
			Date: t,
		})
	}
	sort.Sort(model.ByDate(versions))

	c.versionsCache = versions
	c.cached = true
	return versions, nil
}

// InvalidateCache drops the cached version list, forcing the next Versions
// call to re-enumerate the filesystem. Used after Prune/GenerateVersion
// mutate the directory out from under a cached read.
func (c *Context) InvalidateCache() {
	c.cached = false
	c.versionsCache = nil
}

// LatestVersion returns the last element of Versions(), or ok=false if there
// are none.
func (c *Context) LatestVersion(ctx context.Context) (v model.Version, ok bool, err error) {
	versions, err := c.Versions(ctx)
	if err != nil {
		return model.Version{}, false, err
	}
	if len(versions) == 0 {
		return model.Version{}, false, nil
	}
	return versions[len(versions)-1], true, nil
}

// GenerateVersion reads wall-clock now, formats it per VersionTimeLayout,
// creates the directory, and returns the new Version. Fails with
// model.ErrVersionClash if the directory already exists; collisions are
// fast-failed, never retried or suffixed.
func (c *Context) GenerateVersion(ctx context.Context, now time.Time) (model.Version, error) {
	name := model.FormatVersionName(now)
	path := c.root.Join(name)

	if c.fs.Exists(ctx, path, fsadapter.ExistsAny) {
		return model.Version{}, fmt.Errorf("%w: %s", model.ErrVersionClash, path)
	}
	if err := c.fs.Mkdir(ctx, path); err != nil {
		return model.Version{}, err
	}
	c.InvalidateCache()
	return model.Version{Name: name, Path: path, Date: now}, nil
}

// RemoveVersion deletes v's directory recursively. A missing directory is
// not an error (: "logs a warning and returns success" — the
// warning is the caller's concern since this layer has no logger).
func (c *Context) RemoveVersion(ctx context.Context, v model.Version) error {
	if err := c.fs.Rm(ctx, v.Path); err != nil {
		return err
	}
	c.InvalidateCache()
	return nil
}

func (c *Context) lockPath() model.PathRef {
	return c.root.Join(lockFileName)
}

// LockExists reports whether the per-source lock file exists.
func (c *Context) LockExists(ctx context.Context) bool {
	return c.fs.Exists(ctx, c.lockPath(), fsadapter.ExistsFile)
}

// CreateLock creates the (empty) lock file.
func (c *Context) CreateLock(ctx context.Context) error {
	return c.fs.Touch(ctx, c.lockPath())
}

// RemoveLock removes the lock file.
func (c *Context) RemoveLock(ctx context.Context) error {
	return c.fs.Rm(ctx, c.lockPath())
}
