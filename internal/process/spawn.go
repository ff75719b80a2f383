package process

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/user"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"syscall"

	"github.com/rodmena-limited/supervice/internal/logger"
)

// errUserSwitch marks spawn failures caused by an unresolvable user; the
// child would have exited 126 had exec been reached.
var errUserSwitch = errors.New("user switch failed")

// spawn starts a new child in a fresh session/process group with the
// configured environment, directory, credentials, and log targets. On
// success the returned channel yields the cmd.Wait result exactly once.
func (p *Process) spawn() (*exec.Cmd, chan error, error) {
	argv := p.cfg.Command
	path := argv[0]
	if !strings.Contains(path, "/") {
		resolved, err := lookPath(path, p.cfg.Environment["PATH"])
		if err != nil {
			return nil, nil, err
		}
		path = resolved
	} else if !filepath.IsAbs(path) {
		abs, err := filepath.Abs(path)
		if err == nil {
			path = abs
		}
	}

	cmd := &exec.Cmd{
		Path: path,
		Args: argv,
		Dir:  p.cfg.Directory,
		Env:  environSlice(p.cfg.Environment),
	}

	attr := sysProcAttr()
	if p.cfg.User != "" {
		cred, err := lookupCredential(p.cfg.User)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", errUserSwitch, err)
		}
		attr.Credential = cred
	}
	cmd.SysProcAttr = attr

	logCfg := logger.Config{
		StdoutPath: p.cfg.StdoutLogfile,
		StderrPath: p.cfg.StderrLogfile,
	}
	outW, errW := logCfg.Writers(p.num)
	if outW != nil {
		cmd.Stdout = outW
	}
	if errW != nil {
		cmd.Stderr = errW
	}

	if err := cmd.Start(); err != nil {
		if outW != nil {
			_ = outW.Close()
		}
		if errW != nil {
			_ = errW.Close()
		}
		return nil, nil, err
	}

	p.mu.Lock()
	p.outW = outW
	p.errW = errW
	p.mu.Unlock()

	waitCh := make(chan error, 1)
	go func() { waitCh <- cmd.Wait() }()
	return cmd, waitCh, nil
}

// lookPath resolves a bare command name against the child's PATH. The
// configured environment fully replaces the inherited one, so resolution
// deliberately does not consult the daemon's own PATH.
func lookPath(file, pathEnv string) (string, error) {
	if pathEnv == "" {
		return "", fmt.Errorf("%q: no PATH in configured environment: %w", file, exec.ErrNotFound)
	}
	for _, dir := range filepath.SplitList(pathEnv) {
		if dir == "" {
			dir = "."
		}
		candidate := filepath.Join(dir, file)
		fi, err := os.Stat(candidate)
		if err != nil || fi.IsDir() {
			continue
		}
		if fi.Mode()&0o111 != 0 {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%q: %w", file, exec.ErrNotFound)
}

// lookupCredential resolves a user name to uid, gid, and supplementary
// groups for the child's SysProcAttr.
func lookupCredential(name string) (*syscall.Credential, error) {
	u, err := user.Lookup(name)
	if err != nil {
		return nil, err
	}
	uid, err := strconv.ParseUint(u.Uid, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("uid %q: %w", u.Uid, err)
	}
	gid, err := strconv.ParseUint(u.Gid, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("gid %q: %w", u.Gid, err)
	}
	groupIDs, err := u.GroupIds()
	if err != nil {
		return nil, err
	}
	groups := make([]uint32, 0, len(groupIDs))
	for _, g := range groupIDs {
		n, err := strconv.ParseUint(g, 10, 32)
		if err != nil {
			continue
		}
		groups = append(groups, uint32(n))
	}
	return &syscall.Credential{
		Uid:    uint32(uid),
		Gid:    uint32(gid),
		Groups: groups,
	}, nil
}

// environSlice flattens the configured environment; it replaces, never
// merges with, the daemon's own environment.
func environSlice(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}
