// Package worker implements the font build worker protocol: read one JSON
// request from stdin, merge it over an optional config file, run the font
// generator and print exactly one JSON result line.
package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"maps"

	"go.uber.org/zap"

	"github.com/deixis/fontbridge/internal/fontbuild"
)

// Generator produces fonts from merged options. The options map is owned
// by the callee.
type Generator interface {
	Generate(ctx context.Context, options map[string]any) (*Generated, error)
}

// Generated is the raw output of a Generator.
type Generated struct {
	Options    json.RawMessage
	Files      []File
	Codepoints map[string]int
}

// File is one file written by the generator. Content is []byte, string or
// nil when the generator did not report it.
type File struct {
	WritePath string
	Content   any
}

type state string

const (
	readingInput   state = "reading_input"
	parsingInput   state = "parsing_input"
	loadingConfig  state = "loading_config"
	mergingOptions state = "merging_options"
	generating     state = "generating"
	emitting       state = "emitting"
)

// Worker runs a single build per process.
type Worker struct {
	Generator Generator
	Modules   ModuleLoader // nil disables executable config modules
	Log       *zap.SugaredLogger
}

// Run executes the protocol and returns the process exit status. Only the
// result line is written to stdout.
func (w *Worker) Run(ctx context.Context, stdin io.Reader, stdout io.Writer) int {
	code, err := Emit(stdout, w.build(ctx, stdin))
	if err != nil {
		w.log().Errorw("writing result", "state", emitting, "error", err)
	}
	return code
}

// Emit writes res as the single result line and returns the matching exit
// status. It is also used when a worker cannot be set up at all.
func Emit(stdout io.Writer, res *fontbuild.Result) (int, error) {
	line, err := json.Marshal(res)
	if err != nil {
		res = fontbuild.Failf("encoding result: %v", err)
		line, _ = json.Marshal(res)
	}
	line = append(line, '\n')
	if _, err := stdout.Write(line); err != nil {
		return 1, err
	}
	if !res.OK {
		return 1, nil
	}
	return 0, nil
}

func (w *Worker) build(ctx context.Context, stdin io.Reader) (res *fontbuild.Result) {
	log := w.log()
	current := readingInput
	defer func() {
		if r := recover(); r != nil {
			log.Errorw("worker panic", "state", current, "panic", r)
			res = fontbuild.Failf("%v", r)
		}
	}()
	fail := func(err error) *fontbuild.Result {
		log.Errorw("build failed", "state", current, "error", err)
		return fontbuild.Fail(err.Error(), "")
	}

	raw, err := io.ReadAll(stdin)
	if err != nil {
		return fail(fmt.Errorf("reading stdin: %w", err))
	}

	current = parsingInput
	request, err := parseRequest(raw)
	if err != nil {
		return fail(err)
	}

	current = loadingConfig
	configPath, err := stringField(request, "configPath")
	if err != nil {
		return fail(err)
	}
	config, err := loadConfig(ctx, configPath, w.Modules)
	if err != nil {
		return fail(err)
	}

	current = mergingOptions
	options := Merge(config, request)

	current = generating
	log.Debugw("generating fonts", "state", current, "options", len(options))
	if w.Generator == nil {
		return fail(fmt.Errorf("no font generator configured"))
	}
	out, err := w.Generator.Generate(ctx, options)
	if err != nil {
		return fail(err)
	}

	current = emitting
	return fontbuild.Ok(Shape(out))
}

func (w *Worker) log() *zap.SugaredLogger {
	if w.Log == nil {
		return zap.NewNop().Sugar()
	}
	return w.Log
}

// parseRequest decodes the stdin document. Blank input is an empty request.
func parseRequest(raw []byte) (map[string]any, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return map[string]any{}, nil
	}
	v, err := decodeJSON(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing request: %w", err)
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("parsing request: expected an object, got %T", v)
	}
	return m, nil
}

func stringField(m map[string]any, key string) (string, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%s must be a string, got %T", key, v)
	}
	return s, nil
}

// Merge overlays request on config one key at a time; request keys win.
// Nested objects are replaced, not merged.
func Merge(config, request map[string]any) map[string]any {
	out := make(map[string]any, len(config)+len(request))
	maps.Copy(out, config)
	maps.Copy(out, request)
	return out
}

// Shape replaces file contents by their encoded sizes.
func Shape(g *Generated) *fontbuild.Data {
	if g == nil {
		return &fontbuild.Data{}
	}
	writes := make([]fontbuild.WriteResult, 0, len(g.Files))
	for _, f := range g.Files {
		writes = append(writes, fontbuild.WriteResult{
			WritePath: f.WritePath,
			Bytes:     fontbuild.ByteSize(f.Content),
		})
	}
	return &fontbuild.Data{
		Options:      g.Options,
		WriteResults: writes,
		Codepoints:   g.Codepoints,
	}
}
