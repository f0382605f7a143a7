// Package assets carries the JavaScript files the font build workers run
// under node. They are embedded so that a single binary can install them
// next to a bundled runtime or into a cache directory.
package assets

import (
	"bytes"
	"embed"
	"fmt"
	"os"
	"path/filepath"
)

// Asset names.
const (
	Runner     = "runner.mjs"     // worker script for the node runtime
	Generate   = "generate.mjs"   // font library call for the native worker
	LoadConfig = "loadconfig.mjs" // config module loader for the native worker
)

//go:embed runner.mjs generate.mjs loadconfig.mjs
var files embed.FS

// Names lists every embedded asset.
func Names() []string {
	return []string{Runner, Generate, LoadConfig}
}

// Read returns the content of the named asset.
func Read(name string) ([]byte, error) {
	data, err := files.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("asset %s: %w", name, err)
	}
	return data, nil
}

// Install writes every asset into dir and returns the installed paths by
// name. Files already holding the same content are left untouched.
func Install(dir string) (map[string]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating asset directory: %w", err)
	}
	paths := make(map[string]string, len(Names()))
	for _, name := range Names() {
		data, err := Read(name)
		if err != nil {
			return nil, err
		}
		path := filepath.Join(dir, name)
		if err := writeIfChanged(path, data); err != nil {
			return nil, err
		}
		paths[name] = path
	}
	return paths, nil
}

func writeIfChanged(path string, data []byte) error {
	if cur, err := os.ReadFile(path); err == nil && bytes.Equal(cur, data) {
		return nil
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".asset-*")
	if err != nil {
		return fmt.Errorf("installing %s: %w", filepath.Base(path), err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("installing %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("installing %s: %w", filepath.Base(path), err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("installing %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("installing %s: %w", filepath.Base(path), err)
	}
	return nil
}
