// Package config loads the optional .fontbridge.yaml file, the .env file
// beside it and the FONTBRIDGE_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/deixis/fontbridge/internal/publish"
	"github.com/deixis/fontbridge/internal/resolver"
)

// FileName is the config file looked up in the application root.
const FileName = ".fontbridge.yaml"

// Default values for launcher configuration.
const (
	DefaultTimeout   = 5 * time.Minute
	DefaultMaxOutput = 1 << 20 // 1 MB
)

// Environment overrides. The first four are also handed to native workers
// so they resolve the same runtime as their host.
const (
	EnvRuntime      = "FONTBRIDGE_RUNTIME"
	EnvPackaged     = "FONTBRIDGE_PACKAGED"
	EnvResources    = "FONTBRIDGE_RESOURCES"
	EnvFantasticon  = "FONTBRIDGE_FANTASTICON"
	EnvTimeout      = "FONTBRIDGE_TIMEOUT"
	EnvS3Endpoint   = "FONTBRIDGE_S3_ENDPOINT"
	EnvS3Region     = "FONTBRIDGE_S3_REGION"
	EnvS3AccessKey  = "FONTBRIDGE_S3_ACCESS_KEY"
	EnvS3SecretKey  = "FONTBRIDGE_S3_SECRET_KEY"
	EnvS3Bucket     = "FONTBRIDGE_S3_BUCKET"
	EnvS3UseSSL     = "FONTBRIDGE_S3_USE_SSL"
	defaultS3Bucket = "fontbridge-artifacts"
)

// Config holds the parsed configuration. All fields are optional; zero
// values represent defaults.
type Config struct {
	Version          int               `yaml:"version"`
	Runtime          string            `yaml:"runtime"` // "node" or "native"
	Packaged         bool              `yaml:"packaged"`
	ResourcesDir     string            `yaml:"resources_dir"`
	RawTimeout       string            `yaml:"timeout"`    // e.g. "5m", "30s"
	RawMaxOutput     int               `yaml:"max_output"` // bytes
	Env              map[string]string `yaml:"env"`        // set for every worker
	FantasticonEntry string            `yaml:"fantasticon_entry"`
	Store            StoreConfig       `yaml:"store"`
	Verify           bool              `yaml:"verify"`
	Publish          PublishConfig     `yaml:"publish"`
}

// StoreConfig controls where build records are kept.
type StoreConfig struct {
	Capacity int    `yaml:"capacity"` // in-memory records
	Dir      string `yaml:"dir"`      // empty means a temp directory
}

// PublishConfig addresses the bucket build outputs are uploaded to.
type PublishConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Endpoint    string `yaml:"endpoint"`
	Region      string `yaml:"region"`
	AccessKey   string `yaml:"access_key"`
	SecretKey   string `yaml:"secret_key"`
	Bucket      string `yaml:"bucket"`
	UseSSL      bool   `yaml:"use_ssl"`
	Concurrency int    `yaml:"concurrency"`
}

// S3 returns the store configuration for the publisher.
func (p PublishConfig) S3() publish.S3Config {
	return publish.S3Config{
		Endpoint:  p.Endpoint,
		Region:    p.Region,
		AccessKey: p.AccessKey,
		SecretKey: p.SecretKey,
		Bucket:    firstNonEmpty(p.Bucket, defaultS3Bucket),
		UseSSL:    p.UseSSL,
	}
}

// Timeout returns the configured timeout or the default.
func (c *Config) Timeout() time.Duration {
	if c.RawTimeout != "" {
		d, err := time.ParseDuration(c.RawTimeout)
		if err == nil && d > 0 {
			return d
		}
	}
	return DefaultTimeout
}

// MaxOutputBytes returns the configured max output size or the default.
func (c *Config) MaxOutputBytes() int {
	if c.RawMaxOutput > 0 {
		return c.RawMaxOutput
	}
	return DefaultMaxOutput
}

// Kind returns the configured runtime kind, node by default.
func (c *Config) Kind() resolver.Kind {
	if c.Runtime == "" {
		return resolver.Node
	}
	return resolver.Kind(c.Runtime)
}

// Resolver builds the runtime resolver for appRoot.
func (c *Config) Resolver(appRoot string) *resolver.Resolver {
	return &resolver.Resolver{
		Kind:         c.Kind(),
		Packaged:     c.Packaged,
		ResourcesDir: c.ResourcesDir,
		AppRoot:      appRoot,
	}
}

// WorkerEnv returns the variables every worker is started with: the
// configured env plus the settings a native worker needs to find node and
// the font library and to bound its own node calls.
func (c *Config) WorkerEnv() map[string]string {
	env := make(map[string]string, len(c.Env)+5)
	for k, v := range c.Env {
		env[k] = v
	}
	env[EnvRuntime] = string(c.Kind())
	env[EnvPackaged] = strconv.FormatBool(c.Packaged)
	if c.ResourcesDir != "" {
		env[EnvResources] = c.ResourcesDir
	}
	if c.FantasticonEntry != "" {
		env[EnvFantasticon] = c.FantasticonEntry
	}
	if c.RawTimeout != "" {
		env[EnvTimeout] = c.RawTimeout
	}
	return env
}

// Validate reports settings that cannot work.
func (c *Config) Validate() error {
	switch c.Kind() {
	case resolver.Node, resolver.Native:
	default:
		return fmt.Errorf("runtime must be %q or %q, got %q", resolver.Node, resolver.Native, c.Runtime)
	}
	if c.Packaged && c.ResourcesDir == "" {
		return fmt.Errorf("resources_dir is required when packaged")
	}
	if c.RawTimeout != "" {
		if _, err := time.ParseDuration(c.RawTimeout); err != nil {
			return fmt.Errorf("timeout: %w", err)
		}
	}
	return nil
}

// LoadResult holds the parsed config and the discovered application root.
type LoadResult struct {
	Config  *Config
	AppRoot string // directory containing package.json; falls back to dir
}

// Load reads .env and .fontbridge.yaml from the application root and
// applies environment overrides. The root is discovered by walking upward
// from dir looking for package.json. Missing files are not an error.
func Load(dir string) (*LoadResult, error) {
	root, err := findAppRoot(dir)
	if err != nil {
		root, err = filepath.Abs(dir)
		if err != nil {
			return nil, err
		}
	}

	// Variables already set win over .env.
	if err := godotenv.Load(filepath.Join(root, ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("reading .env: %w", err)
	}

	cfg := &Config{}
	data, err := os.ReadFile(filepath.Join(root, FileName))
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", FileName, err)
		}
	case !errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("reading %s: %w", FileName, err)
	}

	if err := applyEnv(cfg, os.Getenv); err != nil {
		return nil, err
	}
	if cfg.ResourcesDir != "" && !filepath.IsAbs(cfg.ResourcesDir) {
		cfg.ResourcesDir = filepath.Join(root, cfg.ResourcesDir)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &LoadResult{Config: cfg, AppRoot: root}, nil
}

func applyEnv(cfg *Config, getenv func(string) string) error {
	get := func(key string) string { return strings.TrimSpace(getenv(key)) }

	if v := get(EnvRuntime); v != "" {
		cfg.Runtime = v
	}
	if v := get(EnvPackaged); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvPackaged, err)
		}
		cfg.Packaged = b
	}
	cfg.ResourcesDir = firstNonEmpty(get(EnvResources), cfg.ResourcesDir)
	cfg.FantasticonEntry = firstNonEmpty(get(EnvFantasticon), cfg.FantasticonEntry)
	cfg.RawTimeout = firstNonEmpty(get(EnvTimeout), cfg.RawTimeout)

	p := &cfg.Publish
	if v := get(EnvS3Endpoint); v != "" {
		p.Endpoint = v
		p.Enabled = true
	}
	p.Region = firstNonEmpty(get(EnvS3Region), p.Region)
	p.AccessKey = firstNonEmpty(get(EnvS3AccessKey), p.AccessKey)
	p.SecretKey = firstNonEmpty(get(EnvS3SecretKey), p.SecretKey)
	p.Bucket = firstNonEmpty(get(EnvS3Bucket), p.Bucket)
	if v := get(EnvS3UseSSL); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvS3UseSSL, err)
		}
		p.UseSSL = b
	}
	return nil
}

// findAppRoot walks upward from dir looking for a directory containing
// package.json.
func findAppRoot(dir string) (string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "package.json")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("package.json not found")
		}
		dir = parent
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
