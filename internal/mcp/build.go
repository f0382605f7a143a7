package mcp

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/deixis/fontbridge/internal/fontbuild"
	"github.com/deixis/fontbridge/internal/report"
)

type buildParams struct {
	InputDir   string   `json:"inputDir,omitempty" jsonschema:"directory holding the SVG icons (required)"`
	OutputDir  string   `json:"outputDir,omitempty" jsonschema:"directory the font and assets are written to (required)"`
	Name       string   `json:"name,omitempty" jsonschema:"font name; defaults to the library default"`
	FontTypes  []string `json:"fontTypes,omitempty" jsonschema:"font formats to generate (e.g. woff2, woff, ttf, eot, svg)"`
	AssetTypes []string `json:"assetTypes,omitempty" jsonschema:"assets to generate (e.g. css, scss, html, json, ts)"`
	Prefix     string   `json:"prefix,omitempty" jsonschema:"CSS class prefix"`
	Tag        string   `json:"tag,omitempty" jsonschema:"HTML tag used for icons in generated assets"`
	FontsURL   string   `json:"fontsUrl,omitempty" jsonschema:"URL the generated stylesheets reference fonts from"`
	ConfigPath string   `json:"configPath,omitempty" jsonschema:"config file whose options the request overrides"`
}

func (p buildParams) request() fontbuild.Request {
	return fontbuild.Request{
		InputDir:   p.InputDir,
		OutputDir:  p.OutputDir,
		Name:       p.Name,
		FontTypes:  p.FontTypes,
		AssetTypes: p.AssetTypes,
		Prefix:     p.Prefix,
		Tag:        p.Tag,
		FontsURL:   p.FontsURL,
		ConfigPath: p.ConfigPath,
	}
}

func (h *handler) buildHandler(ctx context.Context, req *mcp.CallToolRequest, params buildParams) (*mcp.CallToolResult, any, error) {
	rec := h.engine.BuildIn(ctx, h.workspace(req.Session), params.request())
	return textResult(formatBuild(rec))
}

func formatBuild(rec *report.Record) string {
	var b strings.Builder

	res := rec.Result
	if res.OK {
		fmt.Fprintln(&b, "Status: OK")
	} else {
		fmt.Fprintln(&b, "Status: FAIL")
	}
	fmt.Fprintf(&b, "Run: %s\n", rec.ID)
	fmt.Fprintln(&b)

	if !res.OK {
		fmt.Fprintf(&b, "Error: %s\n", res.Error)
		if res.Stderr != "" {
			fmt.Fprintln(&b)
			fmt.Fprintln(&b, "Stderr:")
			for _, line := range strings.Split(strings.TrimRight(res.Stderr, "\n"), "\n") {
				fmt.Fprintf(&b, "    %s\n", line)
			}
		}
		return b.String()
	}

	fmt.Fprintln(&b, "Written:")
	for _, wr := range res.Data.WriteResults {
		if wr.Bytes != nil {
			fmt.Fprintf(&b, "  %s (%d bytes)\n", wr.WritePath, *wr.Bytes)
		} else {
			fmt.Fprintf(&b, "  %s\n", wr.WritePath)
		}
	}
	fmt.Fprintln(&b)

	names := make([]string, 0, len(res.Data.Codepoints))
	for name := range res.Data.Codepoints {
		names = append(names, name)
	}
	sort.Strings(names)
	fmt.Fprintf(&b, "Codepoints (%d):\n", len(names))
	for _, name := range names {
		fmt.Fprintf(&b, "  %s: U+%04X\n", name, res.Data.Codepoints[name])
	}

	if len(rec.Checks) > 0 {
		fmt.Fprintln(&b)
		fmt.Fprintln(&b, "Checks:")
		for _, c := range rec.Checks {
			if c.OK() {
				fmt.Fprintf(&b, "  %s: %d glyphs, family %q\n", c.Path, c.Glyphs, c.Family)
			} else {
				fmt.Fprintf(&b, "  %s: %s\n", c.Path, c.Error)
			}
		}
	}
	if len(rec.Published) > 0 {
		fmt.Fprintln(&b)
		fmt.Fprintln(&b, "Published:")
		for _, o := range rec.Published {
			fmt.Fprintf(&b, "  %s\n", o.Key)
		}
	}
	if len(rec.Warnings) > 0 {
		fmt.Fprintln(&b)
		fmt.Fprintln(&b, "Warnings:")
		for _, w := range rec.Warnings {
			fmt.Fprintf(&b, "  %s\n", w)
		}
	}
	return b.String()
}
