package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type runtimeParams struct{}

func (h *handler) runtimeHandler(ctx context.Context, req *mcp.CallToolRequest, _ runtimeParams) (*mcp.CallToolResult, any, error) {
	paths, err := h.engine.Runtime()
	if err != nil {
		return errorResult(fmt.Sprintf("Failed to resolve runtime: %v", err))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Platform: %s\n", h.engine.Platform)
	fmt.Fprintf(&b, "Executable: %s\n", paths.Executable)
	fmt.Fprintf(&b, "Worker: %s\n", paths.WorkerScript)
	fmt.Fprintf(&b, "Directory: %s\n", paths.WorkDir)
	if ws := h.workspace(req.Session); ws != "" {
		fmt.Fprintf(&b, "Workspace: %s\n", ws)
	}
	return textResult(b.String())
}
