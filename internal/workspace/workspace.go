package workspace

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"git.home.luguber.info/inful/plugbuild/internal/config"
	"git.home.luguber.info/inful/plugbuild/internal/errors"
	"git.home.luguber.info/inful/plugbuild/internal/logfields"
)

// Plugin describes an independently buildable unit in the workspace.
// A plugin has a Rust backend (mod.rs + Cargo.toml), a JavaScript frontend
// (index.jsx or index.js), or both. Plugin values are immutable for the
// duration of one orchestration run.
type Plugin struct {
	ID          string
	Dir         string
	HasBackend  bool
	HasFrontend bool
}

// Kind returns a human readable plugin type label.
func (p Plugin) Kind() string {
	switch {
	case p.HasBackend && p.HasFrontend:
		return "full-stack"
	case p.HasBackend:
		return "backend-only"
	default:
		return "frontend-only"
	}
}

// Workspace provides plugin discovery and artifact path resolution for a
// plugin workspace rooted at a single directory.
type Workspace struct {
	root       string
	pluginsDir string
	distDir    string
	buildDir   string
}

// New resolves the workspace layout from configuration.
func New(cfg *config.Config) (*Workspace, error) {
	root, err := cfg.Root()
	if err != nil {
		return nil, err
	}
	pluginsDir, err := cfg.PluginsPath()
	if err != nil {
		return nil, err
	}
	distDir, err := cfg.DistPath()
	if err != nil {
		return nil, err
	}
	buildDir, err := cfg.BuildPath()
	if err != nil {
		return nil, err
	}
	return &Workspace{
		root:       root,
		pluginsDir: pluginsDir,
		distDir:    distDir,
		buildDir:   buildDir,
	}, nil
}

// Root returns the absolute workspace root.
func (w *Workspace) Root() string { return w.root }

// PluginsDir returns the absolute plugins source directory.
func (w *Workspace) PluginsDir() string { return w.pluginsDir }

// DistDir returns the absolute artifact distribution directory.
func (w *Workspace) DistDir() string { return w.distDir }

// BuildDir returns the absolute build scratch directory.
func (w *Workspace) BuildDir() string { return w.buildDir }

// EnsureDirs creates the dist and build directories if missing.
func (w *Workspace) EnsureDirs() error {
	for _, dir := range []string{w.distDir, w.buildDir} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return errors.IOError(err, fmt.Sprintf("failed to create directory %s", dir))
		}
	}
	return nil
}

// Discover enumerates plugin source directories. Directories that contain
// neither a backend nor a frontend entry point are skipped with a debug log.
// Results are sorted by plugin ID for deterministic orchestration order.
func (w *Workspace) Discover() ([]Plugin, error) {
	entries, err := os.ReadDir(w.pluginsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.ConfigError(fmt.Sprintf("plugins directory not found: %s", w.pluginsDir))
		}
		return nil, errors.IOError(err, fmt.Sprintf("failed to read plugins directory %s", w.pluginsDir))
	}

	var plugins []Plugin
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		plugin, ok := w.inspect(entry.Name())
		if !ok {
			slog.Debug("Skipping non-plugin directory", logfields.Path(filepath.Join(w.pluginsDir, entry.Name())))
			continue
		}
		plugins = append(plugins, plugin)
	}

	sort.Slice(plugins, func(i, j int) bool { return plugins[i].ID < plugins[j].ID })
	return plugins, nil
}

// Find returns the named plugin or a fatal configuration error listing the
// plugins that do exist.
func (w *Workspace) Find(name string) (Plugin, error) {
	plugin, ok := w.inspect(name)
	if ok {
		return plugin, nil
	}

	plugins, err := w.Discover()
	if err != nil {
		return Plugin{}, err
	}
	known := make([]string, 0, len(plugins))
	for _, p := range plugins {
		known = append(known, p.ID)
	}
	return Plugin{}, errors.ConfigError(
		fmt.Sprintf("plugin %q not found (available: %s)", name, strings.Join(known, ", "))).
		WithContext("plugin", name)
}

// inspect checks whether pluginsDir/name is a valid plugin directory.
func (w *Workspace) inspect(name string) (Plugin, bool) {
	dir := filepath.Join(w.pluginsDir, name)
	hasBackend := fileExists(filepath.Join(dir, "mod.rs")) && fileExists(filepath.Join(dir, "Cargo.toml"))
	hasFrontend := fileExists(filepath.Join(dir, "index.jsx")) || fileExists(filepath.Join(dir, "index.js"))
	if !hasBackend && !hasFrontend {
		return Plugin{}, false
	}
	return Plugin{
		ID:          name,
		Dir:         dir,
		HasBackend:  hasBackend,
		HasFrontend: hasFrontend,
	}, true
}

// ArtifactPaths returns the absolute output artifact paths expected for a
// plugin on the current platform. All of them must exist for the plugin to
// count as built.
func (w *Workspace) ArtifactPaths(p Plugin) []string {
	return w.artifactPathsFor(p, runtime.GOOS)
}

func (w *Workspace) artifactPathsFor(p Plugin, goos string) []string {
	var paths []string
	if p.HasBackend {
		paths = append(paths, filepath.Join(w.distDir, nativeLibraryName(p.ID, goos)))
	}
	if p.HasFrontend {
		paths = append(paths, filepath.Join(w.distDir, p.ID+".js"))
	}
	return paths
}

// nativeLibraryName returns the platform library file name for a plugin's
// compiled backend.
func nativeLibraryName(id, goos string) string {
	switch goos {
	case "windows":
		return id + ".dll"
	case "darwin":
		return "lib" + id + ".dylib"
	default:
		return "lib" + id + ".so"
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
