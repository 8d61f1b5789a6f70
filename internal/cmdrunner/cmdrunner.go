// Package cmdrunner implements the CommandRunner: a single exec
// operation that runs locally or wraps itself in SSH transport, grounded on
// original_source/usbackup/libraries/cmd_exec.py's subprocess construction
// (sshpass/BatchMode ssh options, shlex-quoted remote argv) and on the base
// codebase's os/exec usage throughout its dump/transfer code paths.
package cmdrunner

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/viperadnan-git/usbackup/internal/model"
)

// Runner executes commands locally or over SSH.
type Runner struct{}

// New constructs a Runner.
func New() *Runner { return &Runner{} }

// Options configures one Exec call.
type Options struct {
	Stdin  []byte
	Env    []string
	Stdout interface{ Write([]byte) (int, error) } // optional streaming sink
}

// Exec runs argv, locally if endpoint is nil or endpoint.Local, otherwise
// wrapped as `[sshpass -p pass] ssh [opts] user@host exec <shell-quoted argv>`.
// It returns captured stdout; a non-zero exit produces a
// *model.ProcessError wrapping model.ErrProcessError.
func (r *Runner) Exec(ctx context.Context, argv []string, endpoint *model.HostEndpoint, opts Options) ([]byte, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("cmdrunner: empty argv")
	}

	finalArgv := argv
	if endpoint != nil && !endpoint.Local {
		finalArgv = wrapSSH(argv, *endpoint)
	}

	cmd := exec.CommandContext(ctx, finalArgv[0], finalArgv[1:]...)
	if len(opts.Env) > 0 {
		cmd.Env = opts.Env
	}
	if opts.Stdin != nil {
		cmd.Stdin = bytes.NewReader(opts.Stdin)
	}

	var stdout, stderr bytes.Buffer
	if opts.Stdout != nil {
		cmd.Stdout = opts.Stdout
	} else {
		cmd.Stdout = &stdout
	}
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		code := -1
		if exitErr, ok := err.(*exec.ExitError); ok {
			code = exitErr.ExitCode()
		}
		return nil, &model.ProcessError{Argv: finalArgv, Code: code, Stderr: stderr.String()}
	}

	return stdout.Bytes(), nil
}

// IsReachable probes endpoint by running `echo 1` against it.
func (r *Runner) IsReachable(ctx context.Context, endpoint model.HostEndpoint) bool {
	_, err := r.Exec(ctx, []string{"echo", "1"}, &endpoint, Options{})
	return err == nil
}

// wrapSSH builds the ssh-wrapped argv for a non-local endpoint, following
// original_source's gen_ssh_cmd: password auth goes through sshpass rather
// than an interactive prompt; otherwise BatchMode+PasswordAuthentication=no
// forces key-based auth to fail fast instead of hanging on a prompt.
func wrapSSH(argv []string, endpoint model.HostEndpoint) []string {
	var prefix []string
	var sshOpts []string

	if endpoint.Password != "" {
		prefix = append(prefix, "sshpass", "-p", endpoint.Password)
	} else {
		sshOpts = append(sshOpts, "-o", "PasswordAuthentication=No", "-o", "BatchMode=yes")
	}
	if endpoint.Port != 0 {
		sshOpts = append(sshOpts, "-p", strconv.Itoa(endpoint.Port))
	}

	remote := endpoint.Host
	if endpoint.User != "" {
		remote = endpoint.User + "@" + remote
	}

	out := append([]string{}, prefix...)
	out = append(out, "ssh")
	out = append(out, sshOpts...)
	out = append(out, remote, "exec")
	out = append(out, shellQuoteJoin(argv))
	return out
}

// shellQuoteJoin joins argv into a single shell-quoted string, the Go
// equivalent of Python's shlex.join used by original_source to pass the
// remote command as one argument to `ssh ... exec <arg>`.
func shellQuoteJoin(argv []string) string {
	quoted := make([]string, len(argv))
	for i, a := range argv {
		quoted[i] = shellQuote(a)
	}
	return strings.Join(quoted, " ")
}

func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	safe := true
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '_' || r == '-' || r == '.' || r == '/' || r == ':' || r == '=' || r == '@':
		default:
			safe = false
		}
		if !safe {
			break
		}
	}
	if safe {
		return s
	}
	escaped := ""
	for _, r := range s {
		if r == '\'' {
			escaped += `'"'"'`
		} else {
			escaped += string(r)
		}
	}
	return "'" + escaped + "'"
}
