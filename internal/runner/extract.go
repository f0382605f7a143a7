package runner

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/deixis/fontbridge/internal/fontbuild"
)

// Extract recovers the build result from a finished worker. Only the last
// non-empty stdout line is considered; anything printed before it is
// treated as log noise. When that line is missing, is not JSON, or lacks a
// boolean "ok" field, a synthetic failure carrying the exit code and all
// captured output is returned instead.
func Extract(stdout, stderr string, exitCode int) *fontbuild.Result {
	if res, ok := parseResult(LastLine(stdout)); ok {
		return res
	}
	return fontbuild.Fail(
		fmt.Sprintf("Runner failed (exit %d).", exitCode),
		combined(stderr, stdout),
	)
}

// LastLine returns the last line of s that is not blank, trimmed.
func LastLine(s string) string {
	for s != "" {
		i := strings.LastIndexByte(s, '\n')
		line := strings.TrimSpace(s[i+1:])
		if line != "" {
			return line
		}
		if i < 0 {
			break
		}
		s = s[:i]
	}
	return ""
}

func parseResult(line string) (*fontbuild.Result, bool) {
	if line == "" {
		return nil, false
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(line), &fields); err != nil {
		return nil, false
	}
	switch string(bytes.TrimSpace(fields["ok"])) {
	case "true", "false":
	default:
		// Missing, null or not a boolean: do not trust the payload.
		return nil, false
	}

	var res fontbuild.Result
	if err := json.Unmarshal([]byte(line), &res); err != nil {
		return nil, false
	}
	if res.OK {
		return fontbuild.Ok(res.Data), true
	}
	return &res, true
}
