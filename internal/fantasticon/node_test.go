package fantasticon

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/deixis/fontbridge/assets"
)

// newShellNode stands /bin/sh in for node. The "scripts" it runs are shell
// scripts installed under the asset names.
func newShellNode(t *testing.T, scripts map[string]string) *Node {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
	dir := t.TempDir()
	for name, body := range scripts {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	return &Node{
		Executable: "/bin/sh",
		ScriptDir:  dir,
		WorkDir:    dir,
		Timeout:    10 * time.Second,
		Log:        zaptest.NewLogger(t).Sugar(),
	}
}

func TestGenerate(t *testing.T) {
	n := newShellNode(t, map[string]string{
		assets.Generate: `
cat > options.json
echo "$1" > entry.txt
echo "fantasticon: generating" >&2
echo '{"ok":true,"options":{"name":"icons"},"writeResults":[` +
			`{"writePath":"out/icons.ttf","encoding":"base64","content":"AAEAAAAK"},` +
			`{"writePath":"out/icons.css","encoding":"utf8","content":"é"},` +
			`{"writePath":"out/icons.svg","encoding":null,"content":null}` +
			`],"codepoints":{"home":61697}}'
`,
	})
	n.Entry = "/app/node_modules/fantasticon/dist/index.js"

	out, err := n.Generate(context.Background(), map[string]any{"inputDir": "/in", "name": "icons"})
	require.NoError(t, err)

	assert.JSONEq(t, `{"name":"icons"}`, string(out.Options))
	assert.Equal(t, map[string]int{"home": 61697}, out.Codepoints)
	require.Len(t, out.Files, 3)
	assert.Equal(t, []byte{0, 1, 0, 0, 0, 10}, out.Files[0].Content)
	assert.Equal(t, "é", out.Files[1].Content)
	assert.Nil(t, out.Files[2].Content)

	sent, err := os.ReadFile(filepath.Join(n.WorkDir, "options.json"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"inputDir":"/in","name":"icons"}`, string(sent))

	entry, err := os.ReadFile(filepath.Join(n.WorkDir, "entry.txt"))
	require.NoError(t, err)
	assert.Equal(t, n.Entry+"\n", string(entry))
}

func TestGenerate_LibraryError(t *testing.T) {
	n := newShellNode(t, map[string]string{
		assets.Generate: `
cat > /dev/null
echo '{"ok":false,"error":"Error: Invalid option fontTypes"}'
exit 1
`,
	})

	_, err := n.Generate(context.Background(), map[string]any{})
	assert.EqualError(t, err, "Error: Invalid option fontTypes")
}

func TestGenerate_Crash(t *testing.T) {
	n := newShellNode(t, map[string]string{
		assets.Generate: `
cat > /dev/null
echo "Error [ERR_MODULE_NOT_FOUND]: Cannot find package 'fantasticon'" >&2
exit 1
`,
	})

	_, err := n.Generate(context.Background(), map[string]any{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "generate.mjs failed (exit 1)")
	assert.Contains(t, err.Error(), "ERR_MODULE_NOT_FOUND")
}

func TestGenerate_BadEncoding(t *testing.T) {
	n := newShellNode(t, map[string]string{
		assets.Generate: `cat > /dev/null; echo '{"ok":true,"writeResults":[{"writePath":"x","encoding":"hex","content":"00"}]}'`,
	})

	_, err := n.Generate(context.Background(), map[string]any{})
	assert.ErrorContains(t, err, `unknown content encoding "hex"`)
}

func TestGenerate_MissingNode(t *testing.T) {
	n := newShellNode(t, nil)
	n.Executable = filepath.Join(n.WorkDir, "node")

	_, err := n.Generate(context.Background(), map[string]any{})
	assert.ErrorContains(t, err, "executing")
}

func TestLoadModule(t *testing.T) {
	n := newShellNode(t, map[string]string{
		assets.LoadConfig: `echo "{\"ok\":true,\"config\":{\"configured\":\"$1\"}}"`,
	})

	cfg, err := n.LoadModule(context.Background(), "/cfg/fantasticon.config.mjs")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"configured": "/cfg/fantasticon.config.mjs"}, cfg)
}

func TestLoadModule_Error(t *testing.T) {
	n := newShellNode(t, map[string]string{
		assets.LoadConfig: `echo '{"ok":false,"error":"SyntaxError: Unexpected token"}'; exit 1`,
	})

	_, err := n.LoadModule(context.Background(), "/cfg/broken.mjs")
	assert.EqualError(t, err, "SyntaxError: Unexpected token")
}

func TestLoadModule_NullExport(t *testing.T) {
	n := newShellNode(t, map[string]string{
		assets.LoadConfig: `echo '{"ok":true,"config":null}'`,
	})

	cfg, err := n.LoadModule(context.Background(), "/cfg/empty.mjs")
	require.NoError(t, err)
	assert.Empty(t, cfg)
}
