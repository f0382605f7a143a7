package mcp

import (
	"context"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap/zaptest"

	"github.com/deixis/fontbridge/internal/build"
	"github.com/deixis/fontbridge/internal/fontbuild"
	"github.com/deixis/fontbridge/internal/report"
	"github.com/deixis/fontbridge/internal/resolver"
	"github.com/deixis/fontbridge/internal/runner"
)

// scriptedLauncher answers every launch with the same outcome.
type scriptedLauncher struct {
	out   *runner.Outcome
	calls []fontbuild.Request
}

func (s *scriptedLauncher) Launch(_ context.Context, req fontbuild.Request) *runner.Outcome {
	s.calls = append(s.calls, req)
	out := *s.out
	return &out
}

type fixedResolver struct {
	paths resolver.Paths
	err   error
}

func (f fixedResolver) Resolve(resolver.Platform) (resolver.Paths, error) { return f.paths, f.err }

func okLaunch() *runner.Outcome {
	size := int64(2048)
	return &runner.Outcome{
		RunID: "run-ok",
		Paths: resolver.Paths{Executable: "/usr/bin/node", WorkerScript: "/app/assets/runner.mjs", WorkDir: "/app"},
		Result: fontbuild.Ok(&fontbuild.Data{
			WriteResults: []fontbuild.WriteResult{
				{WritePath: "/out/icons.woff2", Bytes: &size},
				{WritePath: "/out/icons.html"},
			},
			Codepoints: map[string]int{"home": 0xf101, "add": 0xf102},
		}),
	}
}

// setup creates a fontbridge MCP server + client over in-memory transports.
func setup(t *testing.T, l *scriptedLauncher, res fixedResolver) *mcp.ClientSession {
	t.Helper()
	ctx := context.Background()

	store, err := report.NewLRUStore(5, report.NewDiskStore(t.TempDir()))
	if err != nil {
		t.Fatalf("NewLRUStore: %v", err)
	}
	engine := &build.Engine{
		Launcher:  l,
		Resolver:  res,
		Platform:  resolver.Darwin,
		Workspace: "/work",
		Store:     store,
	}
	server := NewServer(engine, store, zaptest.NewLogger(t).Sugar())

	ct, st := mcp.NewInMemoryTransports()
	ss, err := server.Connect(ctx, st, nil)
	if err != nil {
		t.Fatalf("server.Connect: %v", err)
	}

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
	cs, err := client.Connect(ctx, ct, nil)
	if err != nil {
		t.Fatalf("client.Connect: %v", err)
	}

	t.Cleanup(func() {
		_ = cs.Close()
		_ = ss.Wait()
	})

	return cs
}

func callTool(t *testing.T, cs *mcp.ClientSession, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	return res
}

func resultText(r *mcp.CallToolResult) string {
	var parts []string
	for _, c := range r.Content {
		if tc, ok := c.(*mcp.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n")
}

func TestListTools(t *testing.T) {
	cs := setup(t, &scriptedLauncher{out: okLaunch()}, fixedResolver{})
	res, err := cs.ListTools(context.Background(), nil)
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}
	got := map[string]bool{}
	for _, tool := range res.Tools {
		got[tool.Name] = true
	}
	for _, want := range []string{"font_build", "font_inspect", "font_runtime"} {
		if !got[want] {
			t.Errorf("tool %s not registered", want)
		}
	}
}

// --- font_build ---

func TestFontBuild_OK(t *testing.T) {
	l := &scriptedLauncher{out: okLaunch()}
	cs := setup(t, l, fixedResolver{})

	res := callTool(t, cs, "font_build", map[string]any{
		"inputDir":  "icons",
		"outputDir": "/out",
		"fontTypes": []string{"woff2", "woff2"},
	})
	text := resultText(res)
	if res.IsError {
		t.Fatalf("unexpected error: %s", text)
	}
	for _, want := range []string{
		"Status: OK",
		"Run: run-ok",
		"/out/icons.woff2 (2048 bytes)",
		"  /out/icons.html\n",
		"Codepoints (2):",
		"add: U+F102",
		"home: U+F101",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("expected %q in output, got:\n%s", want, text)
		}
	}

	if len(l.calls) != 1 {
		t.Fatalf("launches = %d, want 1", len(l.calls))
	}
	if got := l.calls[0].InputDir; got != "/work/icons" {
		t.Errorf("InputDir = %q, want /work/icons", got)
	}
	if got := l.calls[0].FontTypes; len(got) != 1 {
		t.Errorf("FontTypes = %v, want deduplicated", got)
	}
}

func TestFontBuild_Validation(t *testing.T) {
	l := &scriptedLauncher{out: okLaunch()}
	cs := setup(t, l, fixedResolver{})

	text := resultText(callTool(t, cs, "font_build", map[string]any{"inputDir": "icons"}))
	if !strings.Contains(text, "Status: FAIL") || !strings.Contains(text, "Error: outputDir is required") {
		t.Errorf("expected validation failure, got:\n%s", text)
	}
	if len(l.calls) != 0 {
		t.Errorf("launches = %d, want 0", len(l.calls))
	}
}

func TestFontBuild_WorkerFailure(t *testing.T) {
	l := &scriptedLauncher{out: &runner.Outcome{
		RunID:    "run-bad",
		ExitCode: 1,
		Result:   fontbuild.Fail("Runner failed (exit 1).", "Error: boom\n    at generate"),
	}}
	cs := setup(t, l, fixedResolver{})

	text := resultText(callTool(t, cs, "font_build", map[string]any{"inputDir": "/in", "outputDir": "/out"}))
	for _, want := range []string{"Status: FAIL", "Run: run-bad", "Error: Runner failed (exit 1).", "Stderr:", "    Error: boom"} {
		if !strings.Contains(text, want) {
			t.Errorf("expected %q in output, got:\n%s", want, text)
		}
	}
}

func TestFontBuild_WorkspacePerSession(t *testing.T) {
	ctx := context.Background()
	l := &scriptedLauncher{out: okLaunch()}
	store, err := report.NewLRUStore(5, report.NewDiskStore(t.TempDir()))
	if err != nil {
		t.Fatalf("NewLRUStore: %v", err)
	}
	engine := &build.Engine{
		Launcher:  l,
		Resolver:  fixedResolver{},
		Platform:  resolver.Darwin,
		Workspace: "/work",
		Store:     store,
	}
	server, h := newServer(engine, store, zaptest.NewLogger(t).Sugar())

	connect := func(root string) (*mcp.ClientSession, *mcp.ServerSession) {
		t.Helper()
		ct, st := mcp.NewInMemoryTransports()
		ss, err := server.Connect(ctx, st, nil)
		if err != nil {
			t.Fatalf("server.Connect: %v", err)
		}
		client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
		if root != "" {
			client.AddRoots(&mcp.Root{URI: "file://" + root})
		}
		cs, err := client.Connect(ctx, ct, nil)
		if err != nil {
			t.Fatalf("client.Connect: %v", err)
		}
		t.Cleanup(func() {
			_ = cs.Close()
			_ = ss.Wait()
		})
		return cs, ss
	}

	csA, ssA := connect("/a")
	csB, ssB := connect("/b")
	csC, _ := connect("")
	h.updateWorkspaceFromRoots(ctx, ssA)
	h.updateWorkspaceFromRoots(ctx, ssB)

	for _, cs := range []*mcp.ClientSession{csA, csB, csC} {
		callTool(t, cs, "font_build", map[string]any{"inputDir": "icons", "outputDir": "out"})
	}
	if len(l.calls) != 3 {
		t.Fatalf("launches = %d, want 3", len(l.calls))
	}
	for i, want := range []string{"/a/icons", "/b/icons", "/work/icons"} {
		if got := l.calls[i].InputDir; got != want {
			t.Errorf("session %d: InputDir = %q, want %q", i, got, want)
		}
	}

	text := resultText(callTool(t, csA, "font_runtime", nil))
	if !strings.Contains(text, "Workspace: /a\n") {
		t.Errorf("expected session workspace /a, got:\n%s", text)
	}
	if engine.Workspace != "/work" {
		t.Errorf("engine workspace = %q, want /work", engine.Workspace)
	}
}

// --- font_inspect ---

func TestFontInspect(t *testing.T) {
	cs := setup(t, &scriptedLauncher{out: okLaunch()}, fixedResolver{})
	callTool(t, cs, "font_build", map[string]any{"inputDir": "/in", "outputDir": "/out"})

	res := callTool(t, cs, "font_inspect", map[string]any{"run_id": "run-ok"})
	text := resultText(res)
	if res.IsError {
		t.Fatalf("unexpected error: %s", text)
	}
	for _, want := range []string{`"id": "run-ok"`, `"inputDir": "/in"`, `"workDir": "/app"`, `"home": 61697`} {
		if !strings.Contains(text, want) {
			t.Errorf("expected %q in output, got:\n%s", want, text)
		}
	}
}

func TestFontInspect_ListsRecent(t *testing.T) {
	cs := setup(t, &scriptedLauncher{out: okLaunch()}, fixedResolver{})

	text := resultText(callTool(t, cs, "font_inspect", nil))
	if !strings.Contains(text, "No builds recorded yet.") {
		t.Errorf("expected empty listing, got:\n%s", text)
	}

	callTool(t, cs, "font_build", map[string]any{"inputDir": "/in", "outputDir": "/out"})
	text = resultText(callTool(t, cs, "font_inspect", nil))
	if !strings.Contains(text, "run-ok") {
		t.Errorf("expected run-ok in listing, got:\n%s", text)
	}
}

func TestFontInspect_UnknownRun(t *testing.T) {
	cs := setup(t, &scriptedLauncher{out: okLaunch()}, fixedResolver{})
	res := callTool(t, cs, "font_inspect", map[string]any{"run_id": "nope"})
	if !res.IsError {
		t.Fatalf("expected error, got:\n%s", resultText(res))
	}
	if !strings.Contains(resultText(res), "Failed to load run nope") {
		t.Errorf("unexpected message: %s", resultText(res))
	}
}

// --- font_runtime ---

func TestFontRuntime(t *testing.T) {
	cs := setup(t, &scriptedLauncher{out: okLaunch()}, fixedResolver{paths: resolver.Paths{
		Executable:   "/Applications/App.app/Contents/Resources/node/node",
		WorkerScript: "/Applications/App.app/Contents/Resources/app/assets/runner.mjs",
		WorkDir:      "/Applications/App.app/Contents/Resources/app",
	}})

	text := resultText(callTool(t, cs, "font_runtime", nil))
	for _, want := range []string{
		"Platform: darwin",
		"Executable: /Applications/App.app/Contents/Resources/node/node",
		"Worker: /Applications/App.app/Contents/Resources/app/assets/runner.mjs",
		"Workspace: /work",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("expected %q in output, got:\n%s", want, text)
		}
	}
}

func TestFontRuntime_Unsupported(t *testing.T) {
	cs := setup(t, &scriptedLauncher{out: okLaunch()}, fixedResolver{err: &resolver.UnsupportedPlatformError{Platform: resolver.Other}})
	res := callTool(t, cs, "font_runtime", nil)
	if !res.IsError {
		t.Fatalf("expected error, got:\n%s", resultText(res))
	}
	if !strings.Contains(resultText(res), "no bundled runtime for platform other") {
		t.Errorf("unexpected message: %s", resultText(res))
	}
}
