package fontbuild

import (
	"fmt"
	"strings"
)

// ValidationError reports a request that must not be sent to a worker.
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s is required", e.Field)
}

// Normalize returns a copy of r with surrounding whitespace trimmed, blank
// tags removed and duplicate tags collapsed (first occurrence wins). Empty
// tag lists become nil so they are omitted on the wire and the worker
// applies its defaults.
func Normalize(r Request) Request {
	return Request{
		InputDir:   strings.TrimSpace(r.InputDir),
		OutputDir:  strings.TrimSpace(r.OutputDir),
		Name:       strings.TrimSpace(r.Name),
		FontTypes:  normalizeTags(r.FontTypes),
		AssetTypes: normalizeTags(r.AssetTypes),
		Prefix:     strings.TrimSpace(r.Prefix),
		Tag:        strings.TrimSpace(r.Tag),
		FontsURL:   strings.TrimSpace(r.FontsURL),
		ConfigPath: strings.TrimSpace(r.ConfigPath),
	}
}

func normalizeTags(tags []string) []string {
	var out []string
	seen := make(map[string]bool, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

// Validate checks the required fields of r.
func (r Request) Validate() error {
	if r.InputDir == "" {
		return &ValidationError{Field: "inputDir"}
	}
	if r.OutputDir == "" {
		return &ValidationError{Field: "outputDir"}
	}
	return nil
}
