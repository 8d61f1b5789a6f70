package handlers

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/viperadnan-git/usbackup/internal/cmdrunner"
	"github.com/viperadnan-git/usbackup/internal/model"
)

// mysqlHandler dumps one or more MySQL/MariaDB instances via mysqldump,
// grounded on original_source/usbackup/backup_handlers/mysql.py (per-host
// SHOW DATABASES enumeration, one mysqldump per database) and the base
// codebase's own mysqldump flag construction, adapted from "one engine
// configured globally" to "N connection hosts, each a dump target".
//
// Recognized options:
//   - "hosts" []string  "[user[:pass]@]host[:port]" endpoints (required)
type mysqlHandler struct {
	deps  Deps
	hosts []model.HostEndpoint
}

func newMysqlHandler(deps Deps) (Handler, error) {
	raw := stringSliceOpt(deps.Options, "hosts")
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: mysql handler requires a non-empty \"hosts\" option", model.ErrConfigInvalid)
	}
	hosts := make([]model.HostEndpoint, 0, len(raw))
	for _, h := range raw {
		ep, err := model.ParseHostEndpoint(h)
		if err != nil {
			return nil, err
		}
		if ep.Port == 0 {
			ep.Port = 3306
		}
		hosts = append(hosts, ep)
	}
	return &mysqlHandler{deps: deps, hosts: hosts}, nil
}

func (h *mysqlHandler) Backup(ctx context.Context, dest, linkDest model.PathRef) error {
	for _, conn := range h.hosts {
		databases, err := h.databases(ctx, conn)
		if err != nil {
			return fmt.Errorf("%w: mysql handler listing databases on %q: %v", model.ErrHandlerFailed, conn.Host, err)
		}
		for _, db := range databases {
			if err := h.dumpDatabase(ctx, conn, db, dest); err != nil {
				return fmt.Errorf("%w: mysql handler dumping %q on %q: %v", model.ErrHandlerFailed, db, conn.Host, err)
			}
		}
	}
	return nil
}

var mysqlSystemDatabases = map[string]bool{
	"information_schema": true,
	"performance_schema": true,
	"sys":                true,
	"mysql":              true,
}

func (h *mysqlHandler) databases(ctx context.Context, conn model.HostEndpoint) ([]string, error) {
	argv := append(mysqlConnArgs("mysql", conn), "--silent", "--raw", "--execute=SHOW DATABASES")
	out, err := h.deps.Cmd.Exec(ctx, argv, nil, cmdrunner.Options{})
	if err != nil {
		return nil, err
	}
	var databases []string
	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		if line != "" && !mysqlSystemDatabases[line] {
			databases = append(databases, line)
		}
	}
	return databases, nil
}

func (h *mysqlHandler) dumpDatabase(ctx context.Context, conn model.HostEndpoint, db string, dest model.PathRef) error {
	dumpPath := dest.Join(db + ".sql")
	argv := append(mysqlConnArgs("mysqldump", conn),
		"--column-statistics=0", "--no-tablespaces", "--single-transaction",
		"--routines", "--triggers", "--lock-tables=false",
		"--result-file="+dumpPath.Path, db)
	_, err := h.deps.Cmd.Exec(ctx, argv, nil, cmdrunner.Options{})
	return err
}

func mysqlConnArgs(bin string, conn model.HostEndpoint) []string {
	args := []string{bin, "--host=" + conn.Host, "--port=" + strconv.Itoa(conn.Port)}
	if conn.User != "" {
		args = append(args, "--user="+conn.User)
	}
	if conn.Password != "" {
		args = append(args, "-p"+conn.Password)
	}
	return args
}
