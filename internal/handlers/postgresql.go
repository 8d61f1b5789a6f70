package handlers

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/viperadnan-git/usbackup/internal/cmdrunner"
	"github.com/viperadnan-git/usbackup/internal/model"
)

// postgresqlHandler dumps one or more PostgreSQL instances via pg_dumpall,
// grounded on original_source/usbackup/backup_handlers/postgresql.py
// (one dump file per connection host) and the base codebase's own
// PostgreSQL dump helper (PGHOST/PGPORT/... env-var connection style).
//
// Recognized options:
//   - "hosts" []string  "[user[:pass]@]host[:port]" endpoints (required)
type postgresqlHandler struct {
	deps  Deps
	hosts []model.HostEndpoint
}

func newPostgresqlHandler(deps Deps) (Handler, error) {
	raw := stringSliceOpt(deps.Options, "hosts")
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: postgresql handler requires a non-empty \"hosts\" option", model.ErrConfigInvalid)
	}
	hosts := make([]model.HostEndpoint, 0, len(raw))
	for _, h := range raw {
		ep, err := model.ParseHostEndpoint(h)
		if err != nil {
			return nil, err
		}
		if ep.Port == 0 {
			ep.Port = 5432
		}
		hosts = append(hosts, ep)
	}
	return &postgresqlHandler{deps: deps, hosts: hosts}, nil
}

func (h *postgresqlHandler) Backup(ctx context.Context, dest, linkDest model.PathRef) error {
	for _, conn := range h.hosts {
		dumpPath := dest.Join("database_" + conn.Host + ".sql")

		env := append(os.Environ(),
			"PGHOST="+conn.Host,
			"PGPORT="+strconv.Itoa(conn.Port),
			"PGPASSWORD="+conn.Password,
		)
		argv := []string{"pg_dumpall"}
		if conn.User != "" {
			argv = append(argv, "--username="+conn.User)
		}
		argv = append(argv, "--file="+dumpPath.Path)

		if _, err := h.deps.Cmd.Exec(ctx, argv, nil, cmdrunner.Options{Env: env}); err != nil {
			return fmt.Errorf("%w: postgresql handler dumping %q: %v", model.ErrHandlerFailed, conn.Host, err)
		}
	}
	return nil
}
