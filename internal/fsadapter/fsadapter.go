// Package fsadapter implements the FsAdapter: path-addressable
// filesystem operations composed on cmdrunner, grounded on
// original_source/usbackup/libraries/fs_adapter.py (mkdir/ls/rm/touch/exists)
// and libraries/remote_sync.py (rsync/scp transfer rules).
package fsadapter

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/viperadnan-git/usbackup/internal/cmdrunner"
	"github.com/viperadnan-git/usbackup/internal/model"
)

// Adapter composes a cmdrunner.Runner into path-addressable fs operations.
type Adapter struct {
	cmd *cmdrunner.Runner
}

// New constructs an Adapter over cmd.
func New(cmd *cmdrunner.Runner) *Adapter {
	return &Adapter{cmd: cmd}
}

func (a *Adapter) exec(ctx context.Context, argv []string, endpoint model.HostEndpoint) ([]byte, error) {
	var ep *model.HostEndpoint
	if !endpoint.Local {
		ep = &endpoint
	}
	return a.cmd.Exec(ctx, argv, ep, cmdrunner.Options{})
}

// Mkdir creates path and any missing parents (`mkdir -p`).
func (a *Adapter) Mkdir(ctx context.Context, path model.PathRef) error {
	_, err := a.exec(ctx, []string{"mkdir", "-p", path.Path}, path.Host)
	return err
}

// Ls lists the direct children of path. A non-existent path returns an empty
// list rather than an error, matching original_source's fs_adapter.py.
func (a *Adapter) Ls(ctx context.Context, path model.PathRef) ([]string, error) {
	out, err := a.exec(ctx, []string{"ls", path.Path}, path.Host)
	if err != nil {
		return nil, nil
	}
	trimmed := strings.TrimRight(string(out), "\n")
	if trimmed == "" {
		return nil, nil
	}
	return strings.Split(trimmed, "\n"), nil
}

// Rm recursively removes path (`rm -rf`). A missing path is not an error.
func (a *Adapter) Rm(ctx context.Context, path model.PathRef) error {
	_, err := a.exec(ctx, []string{"rm", "-rf", path.Path}, path.Host)
	return err
}

// Touch creates an empty file at path if it does not already exist.
func (a *Adapter) Touch(ctx context.Context, path model.PathRef) error {
	_, err := a.exec(ctx, []string{"touch", path.Path}, path.Host)
	return err
}

// ExistsKind is the `test -?` flag selecting what Exists checks for.
type ExistsKind string

const (
	ExistsAny ExistsKind = "e"
	ExistsFile ExistsKind = "f"
	ExistsDir  ExistsKind = "d"
)

// Exists reports whether path exists, optionally constrained to kind.
func (a *Adapter) Exists(ctx context.Context, path model.PathRef, kind ExistsKind) bool {
	if kind == "" {
		kind = ExistsAny
	}
	_, err := a.exec(ctx, []string{"test", "-" + string(kind), path.Path}, path.Host)
	return err == nil
}

// Rsync copies src to dst with the given rsync flags, refusing remote-to-
// remote transfers (IllegalTransfer). Always appends
// `--out-format '%t %i %f' --stats`; ssh transport options for
// whichever side is remote mirror CommandRunner's own ssh-wrapping rules.
func (a *Adapter) Rsync(ctx context.Context, src, dst model.PathRef, options []string) ([]byte, error) {
	if !src.Host.Local && !dst.Host.Local {
		return nil, fmt.Errorf("%w: rsync cannot copy remote to remote", model.ErrIllegalTransfer)
	}

	argv := append([]string{"rsync"}, options...)
	argv = append(argv, "--out-format", "%t %i %f", "--stats")

	var prefix []string
	var rsh []string
	srcPath := remotePathArg(src)
	dstPath := remotePathArg(dst)

	var remote *model.HostEndpoint
	if !src.Host.Local {
		remote = &src.Host
	} else if !dst.Host.Local {
		remote = &dst.Host
	}
	if remote != nil {
		if remote.Password != "" {
			prefix = append(prefix, "sshpass", "-p", remote.Password)
		} else {
			rsh = append(rsh, "-o", "PasswordAuthentication=No", "-o", "BatchMode=yes")
		}
		if remote.Port != 0 {
			rsh = append(rsh, "-p", strconv.Itoa(remote.Port))
		}
		if len(rsh) > 0 {
			argv = append(argv, "--rsh", "ssh "+strings.Join(rsh, " "))
		}
	}

	argv = append(argv, srcPath, dstPath)
	full := append(prefix, argv...)
	return a.cmd.Exec(ctx, full, nil, cmdrunner.Options{})
}

// Scp copies src to dst via scp, refusing remote-to-remote AND local-to-local
// transfers (: "scp additionally refuses local-to-local").
func (a *Adapter) Scp(ctx context.Context, src, dst model.PathRef) ([]byte, error) {
	if !src.Host.Local && !dst.Host.Local {
		return nil, fmt.Errorf("%w: scp cannot copy remote to remote", model.ErrIllegalTransfer)
	}
	if src.Host.Local && dst.Host.Local {
		return nil, fmt.Errorf("%w: scp cannot copy local to local", model.ErrIllegalTransfer)
	}

	var prefix []string
	var opts []string
	srcPath := remotePathArg(src)
	dstPath := remotePathArg(dst)

	var remote *model.HostEndpoint
	if !src.Host.Local {
		remote = &src.Host
	} else if !dst.Host.Local {
		remote = &dst.Host
	}
	if remote.Password != "" {
		prefix = append(prefix, "sshpass", "-p", remote.Password)
	} else {
		opts = append(opts, "-o", "PasswordAuthentication=No", "-o", "BatchMode=yes")
	}
	if remote.Port != 0 {
		opts = append(opts, "-P", strconv.Itoa(remote.Port))
	}

	argv := append([]string{"scp"}, opts...)
	argv = append(argv, srcPath, dstPath)
	full := append(prefix, argv...)
	return a.cmd.Exec(ctx, full, nil, cmdrunner.Options{})
}

// remotePathArg renders a PathRef the way rsync/scp expect a remote
// endpoint argument: "[user@]host:path", or a bare path for local.
func remotePathArg(p model.PathRef) string {
	if p.Host.Local {
		return p.Path
	}
	host := p.Host.Host
	if p.Host.User != "" {
		host = p.Host.User + "@" + host
	}
	return host + ":" + p.Path
}

