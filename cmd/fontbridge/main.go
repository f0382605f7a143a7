// Command fontbridge builds icon fonts in sidecar worker processes.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sort"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/deixis/fontbridge"
	"github.com/deixis/fontbridge/assets"
	"github.com/deixis/fontbridge/internal/build"
	"github.com/deixis/fontbridge/internal/config"
	"github.com/deixis/fontbridge/internal/fontbuild"
	fbmcp "github.com/deixis/fontbridge/internal/mcp"
	"github.com/deixis/fontbridge/internal/publish"
	"github.com/deixis/fontbridge/internal/report"
	"github.com/deixis/fontbridge/internal/resolver"
	"github.com/deixis/fontbridge/internal/runner"
)

func main() {
	log.SetFlags(0)
	log.SetPrefix("fontbridge: ")

	app := &cli.App{
		Name:    "fontbridge",
		Usage:   "build icon fonts in sidecar worker processes",
		Version: fontbridge.Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "One of [debug,info,warn,error]. Logs go to stderr.",
				Value: "info",
			},
			&cli.StringFlag{
				Name:  "app-dir",
				Usage: "Directory to discover the application root and config from.",
				Value: ".",
			},
		},
		Commands: []*cli.Command{
			buildCommand(),
			workerCommand(),
			mcpCommand(),
			runtimeCommand(),
			assetsCommand(),
			{
				Name:  "version",
				Usage: "Print the version",
				Action: func(c *cli.Context) error {
					fmt.Println(fontbridge.Version)
					return nil
				},
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newLogger(c *cli.Context) (*zap.SugaredLogger, error) {
	level, err := zap.ParseAtomicLevel(c.String("log-level"))
	if err != nil {
		return nil, fmt.Errorf("parsing log level: %w", err)
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = level
	cfg.OutputPaths = []string{"stderr"}
	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("building logger: %w", err)
	}
	return logger.Sugar(), nil
}

// env is what every host command needs: config, logger and the engine
// built from them.
type env struct {
	cfg    *config.Config
	log    *zap.SugaredLogger
	engine *build.Engine
	store  *report.LRUStore
}

func newEnv(c *cli.Context) (*env, error) {
	log, err := newLogger(c)
	if err != nil {
		return nil, err
	}
	loaded, err := config.Load(c.String("app-dir"))
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	cfg := loaded.Config

	workspace, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("determining workspace: %w", err)
	}

	store, err := report.NewLRUStore(cfg.Store.Capacity, report.NewDiskStore(cfg.Store.Dir))
	if err != nil {
		return nil, fmt.Errorf("creating record store: %w", err)
	}

	paths := cfg.Resolver(loaded.AppRoot)
	engine := &build.Engine{
		Launcher: &runner.Launcher{
			Resolver:  paths,
			Platform:  resolver.Current(),
			Timeout:   cfg.Timeout(),
			MaxOutput: cfg.MaxOutputBytes(),
			Extra:     cfg.WorkerEnv(),
			Log:       log.Named("launcher"),
		},
		Resolver:  paths,
		Platform:  resolver.Current(),
		Workspace: workspace,
		Verify:    cfg.Verify,
		Store:     store,
		Log:       log.Named("engine"),
	}
	if cfg.Publish.Enabled {
		s3, err := publish.NewS3Store(cfg.Publish.S3())
		if err != nil {
			return nil, fmt.Errorf("configuring publisher: %w", err)
		}
		engine.Publisher = &publish.Publisher{
			Store:       s3,
			Concurrency: cfg.Publish.Concurrency,
			Log:         log.Named("publish"),
		}
	}

	log.Debugw("configured",
		"app_root", loaded.AppRoot,
		"runtime", cfg.Kind(),
		"packaged", cfg.Packaged,
		"timeout", cfg.Timeout(),
		"publish", cfg.Publish.Enabled,
	)
	return &env{cfg: cfg, log: log, engine: engine, store: store}, nil
}

// --- build ---

func buildCommand() *cli.Command {
	return &cli.Command{
		Name:  "build",
		Usage: "Build an icon font and print the result as JSON",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "input", Aliases: []string{"i"}, Usage: "Directory holding the SVG icons."},
			&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "Directory to write fonts and assets to."},
			&cli.StringFlag{Name: "name", Usage: "Font name."},
			&cli.StringSliceFlag{Name: "font-type", Usage: "Font format to generate; repeatable (woff2, woff, ttf, eot, svg)."},
			&cli.StringSliceFlag{Name: "asset-type", Usage: "Asset to generate; repeatable (css, scss, sass, html, json, ts)."},
			&cli.StringFlag{Name: "prefix", Usage: "CSS class prefix."},
			&cli.StringFlag{Name: "tag", Usage: "HTML tag for icons."},
			&cli.StringFlag{Name: "fonts-url", Usage: "URL stylesheets load fonts from."},
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "Config file the request overrides."},
			&cli.BoolFlag{Name: "record", Usage: "Print the full build record instead of the result."},
		},
		Action: func(c *cli.Context) error {
			e, err := newEnv(c)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt)
			defer stop()

			rec := e.engine.Build(ctx, fontbuild.Request{
				InputDir:   c.String("input"),
				OutputDir:  c.String("output"),
				Name:       c.String("name"),
				FontTypes:  c.StringSlice("font-type"),
				AssetTypes: c.StringSlice("asset-type"),
				Prefix:     c.String("prefix"),
				Tag:        c.String("tag"),
				FontsURL:   c.String("fonts-url"),
				ConfigPath: c.String("config"),
			})

			var v any = rec.Result
			if c.Bool("record") {
				v = rec
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(v); err != nil {
				return err
			}
			if !rec.Result.OK {
				return cli.Exit("", 1)
			}
			return nil
		},
	}
}

// --- mcp ---

func mcpCommand() *cli.Command {
	return &cli.Command{
		Name:  "mcp",
		Usage: "Start the MCP server",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "instructions", Usage: "Print model instructions and exit."},
			&cli.StringFlag{Name: "http", Usage: "Start an HTTP server on address (e.g. :9090) instead of stdio."},
		},
		Action: func(c *cli.Context) error {
			if c.Bool("instructions") {
				fmt.Print(fbmcp.Instructions)
				return nil
			}
			e, err := newEnv(c)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt)
			defer stop()

			server := fbmcp.NewServer(e.engine, e.store, e.log.Named("mcp"))
			if addr := c.String("http"); addr != "" {
				return serveHTTP(ctx, server, addr, e.log)
			}
			return server.Run(ctx, &mcpsdk.StdioTransport{})
		},
	}
}

func serveHTTP(ctx context.Context, server *mcpsdk.Server, addr string, log *zap.SugaredLogger) error {
	handler := mcpsdk.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcpsdk.Server { return server },
		nil,
	)

	httpServer := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	go func() {
		<-ctx.Done()
		_ = httpServer.Close()
	}()

	log.Infow("listening", "addr", addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// --- runtime ---

func runtimeCommand() *cli.Command {
	return &cli.Command{
		Name:  "runtime",
		Usage: "Print the executable, worker and directory builds would use",
		Action: func(c *cli.Context) error {
			e, err := newEnv(c)
			if err != nil {
				return err
			}
			paths, err := e.engine.Runtime()
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(struct {
				Platform string `json:"platform"`
				Runtime  string `json:"runtime"`
				resolver.Paths
			}{e.engine.Platform.String(), string(e.cfg.Kind()), paths})
		},
	}
}

// --- assets ---

func assetsCommand() *cli.Command {
	return &cli.Command{
		Name:  "assets",
		Usage: "List the embedded worker scripts, or install them with --dir",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "dir", Usage: "Directory to install the scripts into."},
		},
		Action: func(c *cli.Context) error {
			dir := c.String("dir")
			if dir == "" {
				for _, name := range assets.Names() {
					fmt.Println(name)
				}
				return nil
			}
			installed, err := assets.Install(dir)
			if err != nil {
				return err
			}
			names := make([]string, 0, len(installed))
			for name := range installed {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				fmt.Println(installed[name])
			}
			return nil
		},
	}
}
