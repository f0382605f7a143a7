package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ConfigLoadError reports a configPath that could not be loaded.
type ConfigLoadError struct {
	Path string // absolute
	Err  error
}

func (e *ConfigLoadError) Error() string {
	return fmt.Sprintf("Failed to load configPath: %s\n%v", e.Path, e.Err)
}

func (e *ConfigLoadError) Unwrap() error { return e.Err }

// ConfigSource yields the options object stored in a config file.
type ConfigSource interface {
	Load(ctx context.Context) (map[string]any, error)
}

// ModuleLoader evaluates an executable config module and returns its
// exported options object.
type ModuleLoader interface {
	LoadModule(ctx context.Context, path string) (map[string]any, error)
}

// JSONFile is a config stored as a JSON object.
type JSONFile struct{ Path string }

// Load implements ConfigSource.
func (f JSONFile) Load(context.Context) (map[string]any, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, err
	}
	v, err := decodeJSON(data)
	if err != nil {
		return nil, fmt.Errorf("parsing JSON: %w", err)
	}
	return asObject(v)
}

// decodeJSON decodes exactly one JSON value, keeping numbers as
// json.Number. Anything after the value other than whitespace is an error.
func decodeJSON(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("unexpected data after top-level value at offset %d", dec.InputOffset())
	}
	return v, nil
}

// YAMLFile is a config stored as a YAML mapping.
type YAMLFile struct{ Path string }

// Load implements ConfigSource.
func (f YAMLFile) Load(context.Context) (map[string]any, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, err
	}
	var v any
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("parsing YAML: %w", err)
	}
	if v == nil {
		return map[string]any{}, nil
	}
	return asObject(v)
}

// ModuleFile is a config module that has to be evaluated by a JavaScript
// runtime.
type ModuleFile struct {
	Path   string
	Loader ModuleLoader
}

// Load implements ConfigSource.
func (f ModuleFile) Load(ctx context.Context) (map[string]any, error) {
	if f.Loader == nil {
		return nil, fmt.Errorf("config modules need a JavaScript runtime; use a .json or .yaml config instead")
	}
	return f.Loader.LoadModule(ctx, f.Path)
}

// SourceFor picks the config source for path by its extension.
func SourceFor(path string, modules ModuleLoader) ConfigSource {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return JSONFile{Path: path}
	case ".yaml", ".yml":
		return YAMLFile{Path: path}
	default:
		return ModuleFile{Path: path, Loader: modules}
	}
}

// loadConfig resolves configPath and loads it. A nil map and nil error mean
// no config was requested.
func loadConfig(ctx context.Context, configPath string, modules ModuleLoader) (map[string]any, error) {
	if configPath == "" {
		return nil, nil
	}
	abs, err := filepath.Abs(configPath)
	if err != nil {
		return nil, &ConfigLoadError{Path: configPath, Err: err}
	}
	cfg, err := SourceFor(abs, modules).Load(ctx)
	if err != nil {
		return nil, &ConfigLoadError{Path: abs, Err: err}
	}
	return cfg, nil
}

func asObject(v any) (map[string]any, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("config must be an object, got %T", v)
	}
	return m, nil
}
