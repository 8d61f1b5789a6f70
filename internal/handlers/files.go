package handlers

import (
	"context"
	"fmt"

	"github.com/viperadnan-git/usbackup/internal/model"
)

// filesHandler rsyncs a set of absolute source paths into dest, grounded on
// original_source/usbackup/backup_handlers/files.py's incremental mode (the
// only mode this build wires; files.py's "archive"/tar mode is not exposed
// as a separate mode here, since handler options are kind-declared and
// "files" is the one kind this build fully specifies).
//
// Recognized options:
//   - "paths"    []string  absolute source paths (required, non-empty)
//   - "exclude"  []string  rsync --exclude patterns
//   - "bwlimit"  string    rsync --bwlimit value
type filesHandler struct {
	deps    Deps
	paths   []string
	exclude []string
	bwlimit string
}

func newFilesHandler(deps Deps) (Handler, error) {
	paths := stringSliceOpt(deps.Options, "paths")
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w: files handler requires a non-empty \"paths\" option", model.ErrConfigInvalid)
	}
	for _, p := range paths {
		if len(p) == 0 || p[0] != '/' {
			return nil, fmt.Errorf("%w: files handler path %q must be absolute", model.ErrConfigInvalid, p)
		}
	}

	h := &filesHandler{
		deps:    deps,
		paths:   paths,
		exclude: stringSliceOpt(deps.Options, "exclude"),
	}
	if bw, ok := deps.Options["bwlimit"].(string); ok {
		h.bwlimit = bw
	}
	return h, nil
}

// Backup rsyncs each configured source path into dest, one subdirectory per
// path basename's parent-relative layout collapsed to rsync's own relative
// mode; dest is pre-created and empty. Uses link-dest
// against the equivalent path under linkDest when available, the same
// incremental-mode hard-link trick files.py's rsync options use.
func (h *filesHandler) Backup(ctx context.Context, dest, linkDest model.PathRef) error {
	options := []string{
		"--archive", "--hard-links", "--acls", "--xattrs",
		"--delete", "--delete-during", "--relative",
	}
	for _, ex := range h.exclude {
		options = append(options, "--exclude", ex)
	}
	if h.bwlimit != "" {
		options = append(options, "--bwlimit", h.bwlimit)
	}
	if linkDest.Path != "" {
		options = append(options, "--link-dest", linkDest.Path)
	}

	for _, p := range h.paths {
		src := model.PathRef{Path: p, Host: h.deps.Source}
		if _, err := h.deps.Fs.Rsync(ctx, src, dest, options); err != nil {
			return fmt.Errorf("%w: files handler rsync of %q failed: %v", model.ErrHandlerFailed, p, err)
		}
	}
	return nil
}

func stringSliceOpt(options map[string]any, key string) []string {
	raw, ok := options[key]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
