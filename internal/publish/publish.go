// Package publish uploads the files of a successful build to object
// storage.
package publish

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/deixis/fontbridge/internal/fontbuild"
)

// DefaultConcurrency bounds parallel uploads when Publisher.Concurrency is
// not set.
const DefaultConcurrency = 4

// Store receives artifact bytes under a key.
type Store interface {
	Put(ctx context.Context, key string, content []byte) error
}

// Object is one uploaded artifact.
type Object struct {
	Path string `json:"path"`
	Key  string `json:"key"`
	Size int64  `json:"size"`
}

// Publisher copies written files to Store under "<runID>/<base name>".
// Write paths are read as given, relative ones from the current directory.
type Publisher struct {
	Store       Store
	Concurrency int
	Log         *zap.SugaredLogger
}

// Key returns the object key for a written file.
func Key(runID, writePath string) string {
	return strings.TrimSpace(runID) + "/" + filepath.Base(writePath)
}

// Publish uploads every write result of data. The first failure cancels
// the remaining uploads and is returned; objects are listed in write order.
func (p *Publisher) Publish(ctx context.Context, runID string, data *fontbuild.Data) ([]Object, error) {
	if strings.TrimSpace(runID) == "" {
		return nil, fmt.Errorf("run id is required")
	}
	if data == nil || len(data.WriteResults) == 0 {
		return nil, nil
	}
	log := p.Log
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	limit := p.Concurrency
	if limit <= 0 {
		limit = DefaultConcurrency
	}

	objects := make([]Object, len(data.WriteResults))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, wr := range data.WriteResults {
		g.Go(func() error {
			content, err := os.ReadFile(wr.WritePath)
			if err != nil {
				return fmt.Errorf("reading %s: %w", wr.WritePath, err)
			}
			key := Key(runID, wr.WritePath)
			if err := p.Store.Put(ctx, key, content); err != nil {
				return fmt.Errorf("uploading %s: %w", key, err)
			}
			log.Debugw("published artifact", "key", key, "size", len(content))
			objects[i] = Object{Path: wr.WritePath, Key: key, Size: int64(len(content))}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return objects, nil
}
