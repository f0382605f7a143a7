package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/deixis/fontbridge"
	"github.com/deixis/fontbridge/assets"
	"github.com/deixis/fontbridge/internal/config"
	"github.com/deixis/fontbridge/internal/fantasticon"
	"github.com/deixis/fontbridge/internal/fontbuild"
	"github.com/deixis/fontbridge/internal/resolver"
	"github.com/deixis/fontbridge/internal/worker"
)

// --- worker ---

func workerCommand() *cli.Command {
	return &cli.Command{
		Name:   resolver.WorkerCommand,
		Usage:  "Run one build from a JSON request on stdin (started by the host)",
		Hidden: true,
		Action: func(c *cli.Context) error {
			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt)
			defer stop()

			var code int
			w, err := newWorker(c)
			if err != nil {
				code, _ = worker.Emit(os.Stdout, fontbuild.Fail(err.Error(), ""))
			} else {
				code = w.Run(ctx, os.Stdin, os.Stdout)
			}
			if code != 0 {
				return cli.Exit("", code)
			}
			return nil
		},
	}
}

// newWorker wires the native worker: node from the same resolver the host
// uses, and the embedded scripts installed where they can import the font
// library from the application's node_modules.
func newWorker(c *cli.Context) (*worker.Worker, error) {
	log, err := newLogger(c)
	if err != nil {
		return nil, err
	}
	log = log.Named("worker")

	loaded, err := config.Load(c.String("app-dir"))
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	cfg := loaded.Config

	node, err := cfg.Resolver(loaded.AppRoot).NodePath(resolver.Current())
	if err != nil {
		return nil, err
	}
	scripts, err := installScripts(loaded.AppRoot, log)
	if err != nil {
		return nil, err
	}

	n := &fantasticon.Node{
		Executable: node,
		ScriptDir:  scripts,
		Entry:      cfg.FantasticonEntry,
		WorkDir:    loaded.AppRoot,
		Timeout:    cfg.Timeout(),
		Log:        log.Named("node"),
	}
	return &worker.Worker{Generator: n, Modules: n, Log: log}, nil
}

// installScripts puts the scripts under <root>/node_modules/.cache so the
// bare "fantasticon" import resolves. Read-only application directories
// fall back to the user cache; fantasticon_entry must then be configured.
func installScripts(root string, log *zap.SugaredLogger) (string, error) {
	dir := filepath.Join(root, "node_modules", ".cache", "fontbridge", fontbridge.Version)
	_, err := assets.Install(dir)
	if err == nil {
		return dir, nil
	}
	log.Debugw("application directory not writable", "dir", dir, "error", err)

	cache, err := os.UserCacheDir()
	if err != nil {
		cache = os.TempDir()
	}
	dir = filepath.Join(cache, "fontbridge", fontbridge.Version)
	if _, err := assets.Install(dir); err != nil {
		return "", fmt.Errorf("installing worker scripts: %w", err)
	}
	return dir, nil
}
