// Package runner starts worker processes with bounded time, bounded output
// and an explicit environment, and turns what they print into structured
// font build results.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultEnv lists the variables a child process inherits from the host.
// Everything else in the host environment is withheld.
var DefaultEnv = []string{
	"PATH", "PATHEXT", "HOME", "USER", "USERPROFILE",
	"SYSTEMROOT", "WINDIR", "COMSPEC",
	"TEMP", "TMP", "TMPDIR", "APPDATA", "LOCALAPPDATA", "XDG_CACHE_HOME",
	"LANG", "LC_ALL",
	"NODE_OPTIONS", "NODE_PATH",
	"FONTBRIDGE_NODE", "npm_node_execpath",
}

// waitDelay bounds how long Wait keeps copying output after the process
// exits, in case a grandchild still holds the pipes open.
const waitDelay = 2 * time.Second

// Runner executes commands within a workspace boundary.
type Runner struct {
	Workspace string
	Timeout   time.Duration // zero means no limit
	MaxOutput int           // bytes per stream
	// KeepTail makes a capped stdout keep its last MaxOutput bytes rather
	// than its first, so that a trailing result line survives.
	KeepTail bool

	// Env names the host variables passed through; nil means DefaultEnv.
	Env []string
	// Extra variables set explicitly on top of the inherited ones.
	Extra map[string]string
}

// Run executes a command with the given argv. The first element is the
// binary name (resolved via PATH), and the rest are arguments.
// cwd is resolved relative to the workspace root and must remain within it.
// stdin may be nil; otherwise it is copied to the process and then closed.
//
// A non-nil error means the process could not be started. Any process that
// did start yields a Result, whatever its exit status.
func (r *Runner) Run(ctx context.Context, argv []string, cwd string, stdin io.Reader) (*Result, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("empty argv")
	}

	dir, err := r.resolveDir(cwd)
	if err != nil {
		return nil, err
	}

	parent := ctx
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	runID := uuid.New().String()

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = dir
	cmd.Env = r.environ()
	cmd.WaitDelay = waitDelay
	if stdin != nil {
		cmd.Stdin = stdin
	} else {
		cmd.Stdin = bytes.NewReader(nil)
	}

	maxOutput := r.MaxOutput
	var stdout, stderr bytes.Buffer
	outW := &limitWriter{buf: &stdout, limit: maxOutput, tail: r.KeepTail}
	errW := &limitWriter{buf: &stderr, limit: maxOutput}
	cmd.Stdout = outW
	cmd.Stderr = errW

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("executing %s: %w", argv[0], err)
	}
	runErr := cmd.Wait()

	res := &Result{
		RunID:     runID,
		Stdout:    stdout.Bytes(),
		Stderr:    stderr.Bytes(),
		Truncated: outW.truncated || errW.truncated,
		Duration:  time.Since(start),
	}

	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
		} else if cmd.ProcessState != nil {
			// I/O copying failed; the exit status is still known.
			res.ExitCode = cmd.ProcessState.ExitCode()
		} else {
			res.ExitCode = -1
		}
	}

	switch {
	case parent.Err() != nil:
		res.Cancelled = parent.Err()
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		res.TimedOut = true
	}

	return res, nil
}

// resolveDir resolves cwd relative to the workspace and validates it
// is within the workspace boundary.
func (r *Runner) resolveDir(cwd string) (string, error) {
	if cwd == "" {
		return r.Workspace, nil
	}
	if r.Workspace == "" {
		return filepath.Clean(cwd), nil
	}

	var dir string
	if filepath.IsAbs(cwd) {
		dir = filepath.Clean(cwd)
	} else {
		dir = filepath.Clean(filepath.Join(r.Workspace, cwd))
	}

	// Ensure dir is within workspace.
	rel, err := filepath.Rel(r.Workspace, dir)
	if err != nil {
		return "", fmt.Errorf("resolving cwd: %w", err)
	}
	if strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("cwd %q is outside workspace %q", cwd, r.Workspace)
	}
	return dir, nil
}

// environ builds the child environment from the allowlist plus Extra.
func (r *Runner) environ() []string {
	allow := r.Env
	if allow == nil {
		allow = DefaultEnv
	}

	env := make([]string, 0, len(allow)+len(r.Extra))
	seen := make(map[string]bool, len(allow))
	for _, name := range allow {
		if seen[name] {
			continue
		}
		seen[name] = true
		if v, ok := os.LookupEnv(name); ok {
			env = append(env, name+"="+v)
		}
	}

	keys := make([]string, 0, len(r.Extra))
	for k := range r.Extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+r.Extra[k])
	}
	return env
}

// limitWriter writes up to limit bytes to buf, then silently discards the
// rest. With tail set it discards the oldest bytes instead. A limit <= 0
// disables the cap.
type limitWriter struct {
	buf       *bytes.Buffer
	limit     int
	tail      bool
	truncated bool
}

func (w *limitWriter) Write(p []byte) (int, error) {
	if w.limit <= 0 {
		return w.buf.Write(p)
	}
	if w.tail {
		w.buf.Write(p)
		if over := w.buf.Len() - w.limit; over > 0 {
			w.buf.Next(over)
			w.truncated = true
		}
		return len(p), nil
	}
	remaining := w.limit - w.buf.Len()
	if remaining <= 0 {
		w.truncated = w.truncated || len(p) > 0
		return len(p), nil // discard
	}
	if len(p) > remaining {
		// Write only what fits, but report all bytes as consumed
		// to avoid short write errors from io.Copy.
		w.buf.Write(p[:remaining])
		w.truncated = true
		return len(p), nil
	}
	return w.buf.Write(p)
}
