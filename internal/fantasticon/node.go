// Package fantasticon reaches the fantasticon font library from the native
// worker. The library is JavaScript, so every call runs a small embedded
// script under node and decodes the single JSON line it prints.
package fantasticon

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/deixis/fontbridge/assets"
	"github.com/deixis/fontbridge/internal/runner"
	"github.com/deixis/fontbridge/internal/worker"
)

// Node drives fantasticon through a node executable. It implements
// worker.Generator and worker.ModuleLoader.
type Node struct {
	Executable string // node binary
	ScriptDir  string // directory holding the installed assets
	Entry      string // fantasticon module entry; empty means "fantasticon"
	WorkDir    string
	Timeout    time.Duration
	MaxOutput  int // zero means unbounded; generated fonts travel base64 encoded
	Log        *zap.SugaredLogger
}

var (
	_ worker.Generator    = (*Node)(nil)
	_ worker.ModuleLoader = (*Node)(nil)
)

type generateOutput struct {
	OK           bool            `json:"ok"`
	Error        string          `json:"error"`
	Options      json.RawMessage `json:"options"`
	WriteResults []writeResult   `json:"writeResults"`
	Codepoints   map[string]int  `json:"codepoints"`
}

type writeResult struct {
	WritePath string  `json:"writePath"`
	Encoding  *string `json:"encoding"`
	Content   *string `json:"content"`
}

// Generate calls generateFonts with options and asks for glyph metadata.
func (n *Node) Generate(ctx context.Context, options map[string]any) (*worker.Generated, error) {
	payload, err := json.Marshal(options)
	if err != nil {
		return nil, fmt.Errorf("encoding options: %w", err)
	}

	var out generateOutput
	if err := n.call(ctx, assets.Generate, n.Entry, payload, &out); err != nil {
		return nil, err
	}
	if !out.OK {
		return nil, reported(out.Error)
	}

	files := make([]worker.File, 0, len(out.WriteResults))
	for _, wr := range out.WriteResults {
		content, err := wr.decode()
		if err != nil {
			return nil, fmt.Errorf("decoding %s: %w", wr.WritePath, err)
		}
		files = append(files, worker.File{WritePath: wr.WritePath, Content: content})
	}
	return &worker.Generated{
		Options:    out.Options,
		Files:      files,
		Codepoints: out.Codepoints,
	}, nil
}

func (wr writeResult) decode() (any, error) {
	if wr.Content == nil || wr.Encoding == nil {
		return nil, nil
	}
	switch *wr.Encoding {
	case "base64":
		return base64.StdEncoding.DecodeString(*wr.Content)
	case "utf8":
		return *wr.Content, nil
	default:
		return nil, fmt.Errorf("unknown content encoding %q", *wr.Encoding)
	}
}

type moduleOutput struct {
	OK     bool           `json:"ok"`
	Error  string         `json:"error"`
	Config map[string]any `json:"config"`
}

// LoadModule imports the config module at path and returns its default
// export, or the module namespace when there is none.
func (n *Node) LoadModule(ctx context.Context, path string) (map[string]any, error) {
	var out moduleOutput
	if err := n.call(ctx, assets.LoadConfig, path, nil, &out); err != nil {
		return nil, err
	}
	if !out.OK {
		return nil, reported(out.Error)
	}
	if out.Config == nil {
		return map[string]any{}, nil
	}
	return out.Config, nil
}

func reported(msg string) error {
	if msg == "" {
		return errors.New("fantasticon reported a failure without a message")
	}
	return errors.New(msg)
}

// call runs one of the embedded scripts with a single argument and decodes
// its last stdout line into v.
func (n *Node) call(ctx context.Context, script, arg string, stdin []byte, v any) error {
	log := n.Log
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	r := &runner.Runner{
		Workspace: n.WorkDir,
		Timeout:   n.Timeout,
		MaxOutput: n.MaxOutput,
		KeepTail:  true,
	}
	argv := []string{n.Executable, filepath.Join(n.ScriptDir, script)}
	if arg != "" {
		argv = append(argv, arg)
	}

	res, err := r.Run(ctx, argv, "", bytes.NewReader(stdin))
	if err != nil {
		return err
	}
	if len(res.Stderr) > 0 {
		log.Debugw("node stderr", "script", script, "stderr", string(res.Stderr))
	}
	switch {
	case res.Cancelled != nil:
		return fmt.Errorf("%s cancelled: %w", script, res.Cancelled)
	case res.TimedOut:
		return fmt.Errorf("%s timed out after %s", script, n.Timeout)
	}

	line := runner.LastLine(string(res.Stdout))
	if line == "" || json.Unmarshal([]byte(line), v) != nil {
		return fmt.Errorf("%s failed (exit %d): %s", script, res.ExitCode,
			strings.TrimSpace(string(res.Stderr)+"\n"+string(res.Stdout)))
	}
	return nil
}
