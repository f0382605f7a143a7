// Package resolver decides which executable runs the font build worker and
// which worker script it is handed, based on the packaging mode and the
// host operating system.
package resolver

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
)

// Platform is the host operating system as far as bundling is concerned.
type Platform int

const (
	Other Platform = iota
	Windows
	Darwin
)

func (p Platform) String() string {
	switch p {
	case Windows:
		return "windows"
	case Darwin:
		return "darwin"
	default:
		return "other"
	}
}

// Current returns the Platform of the running process.
func Current() Platform {
	return platformFor(runtime.GOOS)
}

func platformFor(goos string) Platform {
	switch goos {
	case "windows":
		return Windows
	case "darwin":
		return Darwin
	default:
		return Other
	}
}

// Kind selects the worker implementation.
type Kind string

const (
	// Node runs the shipped runner.mjs script with a node executable.
	Node Kind = "node"
	// Native runs this binary's worker subcommand.
	Native Kind = "native"
)

// WorkerCommand is the subcommand the native worker is started with.
const WorkerCommand = "worker"

// Environment variables consulted in development mode.
const (
	EnvNode        = "FONTBRIDGE_NODE"
	EnvNpmExecPath = "npm_node_execpath"
)

const (
	runnerScript    = "runner.mjs"
	nativeBinary    = "fontbridge"
	bundledNodeDir  = "node"
	bundledAppDir   = "app"
	bundledBinDir   = "bin"
	assetsDirectory = "assets"
)

// Paths are the resolved locations for one run. They are never mutated
// after resolution.
type Paths struct {
	Executable   string `json:"executable"`
	WorkerScript string `json:"workerScript"` // sole argument to Executable
	WorkDir      string `json:"workDir"`
}

// UnsupportedPlatformError is returned when a packaged build is asked to
// run on a platform no runtime is bundled for.
type UnsupportedPlatformError struct {
	Platform Platform
}

func (e *UnsupportedPlatformError) Error() string {
	return fmt.Sprintf("no bundled runtime for platform %s", e.Platform)
}

// Resolver computes Paths. The zero value resolves the node runtime in
// development mode against the process environment.
type Resolver struct {
	Kind         Kind
	Packaged     bool
	ResourcesDir string // bundle resource directory; used when Packaged
	AppRoot      string // application source root; used when not Packaged

	// Hooks for tests. Nil means the os/exec default.
	Getenv     func(string) string
	LookPath   func(string) (string, error)
	Executable func() (string, error)
}

// Resolve returns the paths for platform. It does not touch the
// filesystem apart from the PATH lookup of the development runtime.
func (r *Resolver) Resolve(platform Platform) (Paths, error) {
	if r.Packaged && platform == Other {
		return Paths{}, &UnsupportedPlatformError{Platform: platform}
	}

	switch r.kind() {
	case Node:
		return r.resolveNode(platform)
	case Native:
		return r.resolveNative(platform)
	default:
		return Paths{}, fmt.Errorf("unknown runtime kind %q", r.Kind)
	}
}

// NodePath returns the node executable alone. The native worker uses it to
// reach the font library.
func (r *Resolver) NodePath(platform Platform) (string, error) {
	if r.Packaged {
		if platform == Other {
			return "", &UnsupportedPlatformError{Platform: platform}
		}
		return filepath.Join(r.ResourcesDir, bundledNodeDir, exeName("node", platform)), nil
	}
	if p := r.getenv(EnvNode); p != "" {
		return p, nil
	}
	if p := r.getenv(EnvNpmExecPath); p != "" {
		return p, nil
	}
	if p, err := r.lookPath("node"); err == nil {
		return p, nil
	}
	// Let the launch fail with the runtime's own "not found" error.
	return "node", nil
}

func (r *Resolver) resolveNode(platform Platform) (Paths, error) {
	node, err := r.NodePath(platform)
	if err != nil {
		return Paths{}, err
	}
	root := r.root()
	return Paths{
		Executable:   node,
		WorkerScript: filepath.Join(root, assetsDirectory, runnerScript),
		WorkDir:      root,
	}, nil
}

func (r *Resolver) resolveNative(platform Platform) (Paths, error) {
	var exe string
	if r.Packaged {
		exe = filepath.Join(r.ResourcesDir, bundledBinDir, exeName(nativeBinary, platform))
	} else {
		self := r.Executable
		if self == nil {
			self = os.Executable
		}
		p, err := self()
		if err != nil {
			return Paths{}, fmt.Errorf("locating own executable: %w", err)
		}
		exe = p
	}
	return Paths{
		Executable:   exe,
		WorkerScript: WorkerCommand,
		WorkDir:      r.root(),
	}, nil
}

// root is the directory the worker runs in.
func (r *Resolver) root() string {
	if r.Packaged {
		return filepath.Join(r.ResourcesDir, bundledAppDir)
	}
	return r.AppRoot
}

func (r *Resolver) kind() Kind {
	if r.Kind == "" {
		return Node
	}
	return r.Kind
}

func (r *Resolver) getenv(key string) string {
	if r.Getenv != nil {
		return r.Getenv(key)
	}
	return os.Getenv(key)
}

func (r *Resolver) lookPath(name string) (string, error) {
	if r.LookPath != nil {
		return r.LookPath(name)
	}
	return exec.LookPath(name)
}

func exeName(base string, platform Platform) string {
	if platform == Windows {
		return base + ".exe"
	}
	return base
}
