// Package report persists build records so a finished build can be looked
// up by its run ID.
package report

import (
	"errors"
	"fmt"
	"time"

	"github.com/deixis/fontbridge/internal/fontbuild"
	"github.com/deixis/fontbridge/internal/publish"
	"github.com/deixis/fontbridge/internal/resolver"
	"github.com/deixis/fontbridge/internal/verify"
)

// ErrNotFound is returned by Load for an unknown run ID.
var ErrNotFound = errors.New("build record not found")

// Store persists and retrieves build records.
type Store interface {
	Save(rec *Record) error
	Load(id string) (*Record, error)
}

// Record is everything known about one build.
type Record struct {
	ID        string             `json:"id"`
	Request   fontbuild.Request  `json:"request"`
	Result    *fontbuild.Result  `json:"result"`
	StartedAt time.Time          `json:"started_at"`
	Duration  time.Duration      `json:"duration"`
	Paths     resolver.Paths     `json:"paths"`
	ExitCode  int                `json:"exit_code"`
	Truncated bool               `json:"truncated,omitempty"`
	Checks    []verify.FontCheck `json:"checks,omitempty"`
	Published []publish.Object   `json:"published,omitempty"`
	Warnings  []string           `json:"warnings,omitempty"`
}

// Warn records a problem that did not fail the build.
func (r *Record) Warn(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}
