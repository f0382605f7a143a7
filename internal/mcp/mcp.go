// Package mcp provides the fontbridge MCP server, registering the font
// build tools and publishing model instructions.
package mcp

import (
	"context"
	_ "embed"
	"net/url"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/deixis/fontbridge"
	"github.com/deixis/fontbridge/internal/build"
	"github.com/deixis/fontbridge/internal/report"
)

//go:embed instructions.md
var Instructions string

// handler holds shared dependencies for all tool handlers.
type handler struct {
	engine *build.Engine
	store  report.Store
	log    *zap.SugaredLogger

	mu         sync.Mutex
	workspaces map[*mcp.ServerSession]string // client root per session
}

// workspace returns the directory relative paths of session resolve
// against: its client root, else the engine default.
func (h *handler) workspace(session *mcp.ServerSession) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ws, ok := h.workspaces[session]; ok {
		return ws
	}
	return h.engine.Workspace
}

// NewServer creates an MCP server with all fontbridge tools registered.
// Relative request paths resolve against the session's first client root,
// or the engine workspace when the client advertises none.
func NewServer(engine *build.Engine, store report.Store, log *zap.SugaredLogger) *mcp.Server {
	s, _ := newServer(engine, store, log)
	return s
}

func newServer(engine *build.Engine, store report.Store, log *zap.SugaredLogger) (*mcp.Server, *handler) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	h := &handler{engine: engine, store: store, log: log, workspaces: map[*mcp.ServerSession]string{}}

	opts := &mcp.ServerOptions{
		Instructions: Instructions,
		Capabilities: &mcp.ServerCapabilities{
			Tools: &mcp.ToolCapabilities{ListChanged: false},
		},
		InitializedHandler: func(ctx context.Context, req *mcp.InitializedRequest) {
			h.updateWorkspaceFromRoots(ctx, req.Session)
		},
	}
	s := mcp.NewServer(&mcp.Implementation{Name: "fontbridge", Version: fontbridge.Version}, opts)

	mcp.AddTool(s, &mcp.Tool{
		Name: "font_build",
		Description: `Build an icon font from a directory of SVG files.

Runs one build in a fresh worker process and waits for it to finish. inputDir and outputDir
are required; everything else falls back to the configPath file or the font library defaults.
The result lists every written file with its size and the assigned codepoints.
The build record is stored for later lookup via font_inspect.`,
	}, h.buildHandler)

	mcp.AddTool(s, &mcp.Tool{
		Name: "font_inspect",
		Description: `Show the stored record of a font_build run: request, result, worker paths,
font checks and published objects. Without run_id, lists recent run IDs.`,
	}, h.inspectHandler)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "font_runtime",
		Description: "Show which executable, worker script and directory a build would use.",
	}, h.runtimeHandler)

	return s, h
}

// updateWorkspaceFromRoots queries the client for MCP roots and records the
// first file root as the session workspace until the session ends.
func (h *handler) updateWorkspaceFromRoots(ctx context.Context, session *mcp.ServerSession) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	roots, err := session.ListRoots(ctx, &mcp.ListRootsParams{})
	if err != nil || len(roots.Roots) == 0 {
		return
	}
	u, err := url.Parse(roots.Roots[0].URI)
	if err != nil || u.Scheme != "file" {
		return
	}
	h.log.Infow("workspace from client root", "workspace", u.Path)

	h.mu.Lock()
	_, known := h.workspaces[session]
	h.workspaces[session] = u.Path
	h.mu.Unlock()

	if !known {
		go func() {
			_ = session.Wait()
			h.mu.Lock()
			delete(h.workspaces, session)
			h.mu.Unlock()
		}()
	}
}

// textResult is a helper to build a text-only tool result.
func textResult(text string) (*mcp.CallToolResult, any, error) {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}, nil, nil
}

// errorResult is a helper to build an error tool result.
func errorResult(text string) (*mcp.CallToolResult, any, error) {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
		IsError: true,
	}, nil, nil
}
