package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type inspectParams struct {
	RunID string `json:"run_id,omitempty" jsonschema:"the run ID from a font_build result; omit to list recent runs"`
}

// recentLister is implemented by stores that keep an in-memory index.
type recentLister interface {
	Recent() []string
}

func (h *handler) inspectHandler(ctx context.Context, req *mcp.CallToolRequest, params inspectParams) (*mcp.CallToolResult, any, error) {
	if h.store == nil {
		return errorResult("No build record store is configured.")
	}
	if params.RunID == "" {
		lister, ok := h.store.(recentLister)
		if !ok {
			return errorResult("run_id is required")
		}
		ids := lister.Recent()
		if len(ids) == 0 {
			return textResult("No builds recorded yet.")
		}
		return textResult("Recent runs (newest first):\n  " + strings.Join(ids, "\n  ") + "\n")
	}

	rec, err := h.store.Load(params.RunID)
	if err != nil {
		return errorResult(fmt.Sprintf("Failed to load run %s: %v", params.RunID, err))
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return errorResult(fmt.Sprintf("Failed to encode run %s: %v", params.RunID, err))
	}
	return textResult(string(data))
}
