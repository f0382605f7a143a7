package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/deixis/fontbridge/internal/fontbuild"
	"github.com/deixis/fontbridge/internal/resolver"
)

// PathResolver yields the executable, worker script and working directory
// for a run. Implemented by resolver.Resolver.
type PathResolver interface {
	Resolve(platform resolver.Platform) (resolver.Paths, error)
}

// Launcher runs one font build per call in a fresh worker process and
// reports the outcome as a fontbuild.Result. Calls are serialized: a
// second caller waits until the running worker has exited.
type Launcher struct {
	Resolver  PathResolver
	Platform  resolver.Platform
	Timeout   time.Duration
	MaxOutput int
	Env       []string          // inherited variable names; nil means DefaultEnv
	Extra     map[string]string // variables set for every worker
	Log       *zap.SugaredLogger

	initOnce sync.Once
	slot     chan struct{}
}

// Outcome describes one launch. Result is always set.
type Outcome struct {
	RunID     string
	Paths     resolver.Paths
	ExitCode  int
	Duration  time.Duration
	Truncated bool
	Result    *fontbuild.Result
}

// Run sends req to a new worker and returns its result. It never returns
// nil and never panics; every failure is a result with OK false.
func (l *Launcher) Run(ctx context.Context, req fontbuild.Request) *fontbuild.Result {
	return l.Launch(ctx, req).Result
}

// Launch is Run with the launch details attached.
func (l *Launcher) Launch(ctx context.Context, req fontbuild.Request) (out *Outcome) {
	out = &Outcome{ExitCode: -1}
	defer func() {
		if r := recover(); r != nil {
			out.Result = fontbuild.Failf("Runner crashed: %v", r)
		}
	}()

	log := l.log()

	if err := l.acquire(ctx); err != nil {
		out.Result = cancelled(err, "")
		return out
	}
	defer l.release()

	paths, err := l.Resolver.Resolve(l.Platform)
	if err != nil {
		out.Result = fontbuild.Fail(err.Error(), "")
		return out
	}
	out.Paths = paths

	payload, err := json.Marshal(req)
	if err != nil {
		out.Result = fontbuild.Failf("encoding request: %v", err)
		return out
	}

	r := &Runner{
		Workspace: paths.WorkDir,
		Timeout:   l.Timeout,
		MaxOutput: l.MaxOutput,
		KeepTail:  true,
		Env:       l.Env,
		Extra:     l.Extra,
	}

	log.Debugw("launching worker",
		"executable", paths.Executable,
		"script", paths.WorkerScript,
		"dir", paths.WorkDir,
	)
	res, err := r.Run(ctx, []string{paths.Executable, paths.WorkerScript}, "", bytes.NewReader(payload))
	if err != nil {
		log.Warnw("worker did not start", "error", err)
		out.Result = fontbuild.Fail(err.Error(), "")
		return out
	}

	out.RunID = res.RunID
	out.ExitCode = res.ExitCode
	out.Duration = res.Duration
	out.Truncated = res.Truncated

	stdout, stderr := string(res.Stdout), string(res.Stderr)
	switch {
	case res.Cancelled != nil:
		out.Result = cancelled(res.Cancelled, combined(stderr, stdout))
	case res.TimedOut:
		out.Result = fontbuild.Fail(fmt.Sprintf("Runner timed out after %s.", l.Timeout), combined(stderr, stdout))
	default:
		out.Result = Extract(stdout, stderr, res.ExitCode)
	}

	log.Infow("worker exited",
		"run_id", res.RunID,
		"exit_code", res.ExitCode,
		"duration", res.Duration,
		"truncated", res.Truncated,
		"ok", out.Result.OK,
	)
	return out
}

func (l *Launcher) acquire(ctx context.Context) error {
	l.initOnce.Do(func() { l.slot = make(chan struct{}, 1) })
	select {
	case l.slot <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Launcher) release() { <-l.slot }

func (l *Launcher) log() *zap.SugaredLogger {
	if l.Log == nil {
		return zap.NewNop().Sugar()
	}
	return l.Log
}

func cancelled(err error, stderr string) *fontbuild.Result {
	return fontbuild.Fail(fmt.Sprintf("Runner cancelled: %v.", err), stderr)
}

func combined(stderr, stdout string) string {
	return strings.TrimSpace(stderr + "\n" + stdout)
}
