// Package build dispatches font build commands from the host surfaces (CLI
// and MCP) to a sidecar worker. It is consumed by both.
package build

import (
	"context"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/deixis/fontbridge/internal/fontbuild"
	"github.com/deixis/fontbridge/internal/publish"
	"github.com/deixis/fontbridge/internal/report"
	"github.com/deixis/fontbridge/internal/resolver"
	"github.com/deixis/fontbridge/internal/runner"
	"github.com/deixis/fontbridge/internal/verify"
)

// Launcher runs one build in a worker process.
// Implemented by runner.Launcher.
type Launcher interface {
	Launch(ctx context.Context, req fontbuild.Request) *runner.Outcome
}

// Publisher uploads the outputs of a successful build.
// Implemented by publish.Publisher.
type Publisher interface {
	Publish(ctx context.Context, runID string, data *fontbuild.Data) ([]publish.Object, error)
}

// Engine holds shared dependencies for build commands.
type Engine struct {
	Launcher  Launcher
	Resolver  runner.PathResolver
	Platform  resolver.Platform
	Workspace string    // default for relative request paths; read-only once building
	Verify    bool      // parse sfnt outputs after a successful build
	Publisher Publisher // nil disables publishing
	Store     report.Store
	Log       *zap.SugaredLogger

	now func() time.Time
}

// Run builds req and returns only the result.
func (e *Engine) Run(ctx context.Context, req fontbuild.Request) *fontbuild.Result {
	return e.Build(ctx, req).Result
}

// Build runs BuildIn against the engine workspace.
func (e *Engine) Build(ctx context.Context, req fontbuild.Request) *report.Record {
	return e.BuildIn(ctx, e.Workspace, req)
}

// BuildIn normalizes and validates req, sends it to a worker, checks and
// publishes the outputs and stores the record. Relative paths in req
// resolve against workspace. A request that fails validation never reaches
// a worker. The returned record is never nil and its Result is always set.
func (e *Engine) BuildIn(ctx context.Context, workspace string, req fontbuild.Request) *report.Record {
	log := e.log()
	rec := &report.Record{
		StartedAt: e.clock(),
		Request:   fontbuild.Normalize(req),
		ExitCode:  -1,
	}

	if err := rec.Request.Validate(); err != nil {
		rec.ID = uuid.NewString()
		rec.Result = fontbuild.Fail(err.Error(), "")
		log.Infow("build rejected", "id", rec.ID, "error", err)
		e.save(rec)
		return rec
	}
	rec.Request = ResolvePaths(rec.Request, workspace)

	out := e.Launcher.Launch(ctx, rec.Request)
	rec.ID = out.RunID
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	rec.Result = out.Result
	rec.Paths = out.Paths
	rec.ExitCode = out.ExitCode
	rec.Truncated = out.Truncated

	if rec.Result.OK {
		outputs := Outputs(rec.Result.Data, rec.Paths.WorkDir)
		if e.Verify {
			rec.Checks = verify.Check(outputs)
			for _, c := range rec.Checks {
				if !c.OK() {
					rec.Warn("verify %s: %s", c.Path, c.Error)
				}
			}
		}
		if e.Publisher != nil {
			objects, err := e.Publisher.Publish(ctx, rec.ID, outputs)
			if err != nil {
				rec.Warn("publish: %v", err)
			}
			rec.Published = objects
		}
	}

	rec.Duration = e.clock().Sub(rec.StartedAt)
	for _, w := range rec.Warnings {
		log.Warnw("build warning", "id", rec.ID, "warning", w)
	}
	log.Infow("build finished", "id", rec.ID, "ok", rec.Result.OK, "duration", rec.Duration)
	e.save(rec)
	return rec
}

// Runtime reports the paths a build would use without starting a worker.
func (e *Engine) Runtime() (resolver.Paths, error) {
	return e.Resolver.Resolve(e.Platform)
}

// ResolvePaths makes the directory and config paths of req absolute
// against workspace. Workers run in the application root, not in the
// caller's directory.
func ResolvePaths(req fontbuild.Request, workspace string) fontbuild.Request {
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) || workspace == "" {
			return p
		}
		return filepath.Join(workspace, p)
	}
	req.InputDir = abs(req.InputDir)
	req.OutputDir = abs(req.OutputDir)
	req.ConfigPath = abs(req.ConfigPath)
	return req
}

// Outputs returns a copy of data whose write paths are absolute, relative
// ones being resolved against the worker directory.
func Outputs(data *fontbuild.Data, workDir string) *fontbuild.Data {
	if data == nil {
		return &fontbuild.Data{}
	}
	out := *data
	out.WriteResults = make([]fontbuild.WriteResult, len(data.WriteResults))
	for i, wr := range data.WriteResults {
		if !filepath.IsAbs(wr.WritePath) && workDir != "" {
			wr.WritePath = filepath.Join(workDir, wr.WritePath)
		}
		out.WriteResults[i] = wr
	}
	return &out
}

func (e *Engine) save(rec *report.Record) {
	if e.Store == nil {
		return
	}
	if err := e.Store.Save(rec); err != nil {
		e.log().Warnw("storing build record", "id", rec.ID, "error", err)
	}
}

func (e *Engine) clock() time.Time {
	if e.now != nil {
		return e.now()
	}
	return time.Now()
}

func (e *Engine) log() *zap.SugaredLogger {
	if e.Log == nil {
		return zap.NewNop().Sugar()
	}
	return e.Log
}
