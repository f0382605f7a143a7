// Package verify checks the font files a build reports as written.
package verify

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/font/sfnt"

	"github.com/deixis/fontbridge/internal/fontbuild"
)

// FontCheck is the outcome of parsing one written font.
type FontCheck struct {
	Path   string `json:"path"`
	Glyphs int    `json:"glyphs,omitempty"`
	Family string `json:"family,omitempty"`
	Error  string `json:"error,omitempty"`
}

// OK reports whether the font parsed.
func (c FontCheck) OK() bool { return c.Error == "" }

// sfntExts are the outputs sfnt can read. woff and woff2 wrap their tables
// and are not checked.
var sfntExts = map[string]bool{".ttf": true, ".otf": true}

// Check inspects every .ttf/.otf entry of data. Other outputs are skipped.
// Relative write paths are read from the current directory.
func Check(data *fontbuild.Data) []FontCheck {
	if data == nil {
		return nil
	}
	var checks []FontCheck
	for _, wr := range data.WriteResults {
		if !sfntExts[strings.ToLower(filepath.Ext(wr.WritePath))] {
			continue
		}
		checks = append(checks, checkFile(wr.WritePath))
	}
	return checks
}

func checkFile(path string) FontCheck {
	check := FontCheck{Path: path}

	src, err := os.ReadFile(path)
	if err != nil {
		check.Error = err.Error()
		return check
	}
	glyphs, family, err := Inspect(src)
	if err != nil {
		check.Error = err.Error()
		return check
	}
	check.Glyphs = glyphs
	check.Family = family
	return check
}

// Inspect parses an sfnt font and returns its glyph count and family name.
// A missing name table entry is not an error.
func Inspect(src []byte) (glyphs int, family string, err error) {
	f, err := sfnt.Parse(src)
	if err != nil {
		return 0, "", fmt.Errorf("parsing font: %w", err)
	}
	family, err = f.Name(nil, sfnt.NameIDFamily)
	if err != nil && !errors.Is(err, sfnt.ErrNotFound) {
		return 0, "", fmt.Errorf("reading family name: %w", err)
	}
	return f.NumGlyphs(), family, nil
}
