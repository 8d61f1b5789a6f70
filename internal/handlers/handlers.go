// Package handlers implements dynamic handler dispatch: a kind-keyed
// registry of backup handler constructors, grounded on the base codebase's
// engine-registry pattern (an interface plus a kind-keyed constructor
// switch), generalized from "one engine chosen via top-level config" to
// "one handler per HandlerSpec entry in a source's ordered chain".
package handlers

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/viperadnan-git/usbackup/internal/cleanupqueue"
	"github.com/viperadnan-git/usbackup/internal/cmdrunner"
	"github.com/viperadnan-git/usbackup/internal/fsadapter"
	"github.com/viperadnan-git/usbackup/internal/model"
)

// Handler is the consumer-side contract fixes: given a pre-created
// empty dest and an optional link_dest hint, produce backup artifacts.
type Handler interface {
	Backup(ctx context.Context, dest, linkDest model.PathRef) error
}

// Deps bundles the collaborators a handler needs to construct itself.
// A handler that needs cleanup-on-failure pushes its own CleanupQueue
// entry under its own id rather than relying on a caller to do it.
type Deps struct {
	Source  model.HostEndpoint
	Options map[string]any
	Fs      *fsadapter.Adapter
	Cmd     *cmdrunner.Runner
	Cleanup *cleanupqueue.Queue
	Log     zerolog.Logger
}

// Factory constructs a Handler from Deps.
type Factory func(Deps) (Handler, error)

var registry = map[string]Factory{
	"files":         newFilesHandler,
	"mysql":         newMysqlHandler,
	"postgresql":    newPostgresqlHandler,
	"openwrt":       notImplemented("openwrt"),
	"truenas":       notImplemented("truenas"),
	"homeassistant": notImplemented("homeassistant"),
	"proxmox_vms":   notImplemented("proxmox_vms"),
	"zfs_datasets":  notImplemented("zfs_datasets"),
	"unifi":         notImplemented("unifi"),
}

// New constructs the Handler registered for kind. Unknown kinds fail with
// model.ErrConfigInvalid; config loading calls New for every source handler,
// so such errors surface at config-load time.
func New(kind string, deps Deps) (Handler, error) {
	factory, ok := registry[kind]
	if !ok {
		return nil, fmt.Errorf("%w: unknown handler kind %q", model.ErrConfigInvalid, kind)
	}
	return factory(deps)
}

// notImplemented builds a Factory whose Handler always fails with
// HandlerFailed. These kinds are registered for contract purposes only,
// proving the dispatch table covers every enumerated kind, without a real
// subprocess implementation behind them.
func notImplemented(kind string) Factory {
	return func(Deps) (Handler, error) {
		return stubHandler{kind: kind}, nil
	}
}

type stubHandler struct{ kind string }

func (s stubHandler) Backup(ctx context.Context, dest, linkDest model.PathRef) error {
	return fmt.Errorf("%w: handler kind %q has no implementation in this build", model.ErrHandlerFailed, s.kind)
}
