// Package install fetches plugins from remote git repositories into the
// workspace.
package install

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	gogit "github.com/go-git/go-git/v5"
	"golang.org/x/mod/semver"

	"git.home.luguber.info/inful/plugbuild/internal/errors"
	"git.home.luguber.info/inful/plugbuild/internal/logfields"
	"git.home.luguber.info/inful/plugbuild/internal/workspace"
)

// Options control one install.
type Options struct {
	// Repo is either a full clone URL or a GitHub "user/repo" shorthand.
	Repo string
	// Force replaces an existing install regardless of version.
	Force bool
}

// InstallResult reports what was installed.
type InstallResult struct {
	PluginID string
	Version  string
	Kind     string
	Updated  bool
}

// Installer clones remote plugin repositories and copies the plugin into
// the workspace.
type Installer struct {
	ws     *workspace.Workspace
	logger *slog.Logger
}

func New(ws *workspace.Workspace) *Installer {
	return &Installer{ws: ws, logger: slog.Default()}
}

// WithLogger sets a custom logger.
func (i *Installer) WithLogger(logger *slog.Logger) *Installer {
	i.logger = logger
	return i
}

// Install shallow-clones the repository, locates the plugin root (repo root
// or first matching subdirectory), compares versions against any existing
// install, and copies the plugin in. Without Force, a same-or-older remote
// version is refused.
func (i *Installer) Install(ctx context.Context, opts Options) (*InstallResult, error) {
	url, repoName, err := resolveRepo(opts.Repo)
	if err != nil {
		return nil, err
	}

	tempDir, err := os.MkdirTemp("", "plugbuild-install-"+repoName+"-")
	if err != nil {
		return nil, errors.IOError(err, "failed to create temp directory")
	}
	defer os.RemoveAll(tempDir)

	i.logger.Info("Cloning plugin repository", logfields.URL(url))
	_, err = gogit.PlainCloneContext(ctx, tempDir, false, &gogit.CloneOptions{
		URL:   url,
		Depth: 1,
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInstall, errors.SeverityFatal,
			fmt.Sprintf("failed to clone %s", url))
	}

	pluginDir, err := findPluginRoot(tempDir)
	if err != nil {
		return nil, err
	}
	remote, err := InspectPlugin(pluginDir)
	if err != nil {
		return nil, err
	}

	targetDir := filepath.Join(i.ws.PluginsDir(), remote.ID)
	updated := false
	if _, err := os.Stat(targetDir); err == nil {
		local, localErr := InspectPlugin(targetDir)
		if localErr == nil && !opts.Force {
			if compareVersions(remote.Version, local.Version) <= 0 {
				return nil, errors.ConfigError(fmt.Sprintf(
					"plugin %s version %s is already installed (remote has %s); use --force to replace",
					remote.ID, local.Version, remote.Version))
			}
		}
		if err := os.RemoveAll(targetDir); err != nil {
			return nil, errors.IOError(err, "failed to remove existing plugin")
		}
		updated = true
	}

	if err := copyPluginTree(pluginDir, targetDir); err != nil {
		return nil, err
	}

	i.logger.Info("Plugin installed", logfields.Plugin(remote.ID),
		slog.String("version", remote.Version), logfields.Path(targetDir))
	return &InstallResult{PluginID: remote.ID, Version: remote.Version, Kind: remote.Kind, Updated: updated}, nil
}

// resolveRepo accepts "user/repo" shorthand or a full URL.
func resolveRepo(repo string) (url, name string, err error) {
	if repo == "" {
		return "", "", errors.ValidationError("repository is required")
	}
	if strings.Contains(repo, "://") || strings.HasPrefix(repo, "git@") {
		name = strings.TrimSuffix(filepath.Base(repo), ".git")
		return repo, name, nil
	}
	parts := strings.Split(repo, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", errors.ValidationError(fmt.Sprintf(
			"invalid repository format %q: expected 'username/repo' or a clone URL", repo))
	}
	return fmt.Sprintf("https://github.com/%s/%s.git", parts[0], parts[1]), parts[1], nil
}

// findPluginRoot returns the repo root when it is itself a plugin, else the
// first direct subdirectory that is one.
func findPluginRoot(dir string) (string, error) {
	if isPluginDir(dir) {
		return dir, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", errors.IOError(err, "failed to read cloned repository")
	}
	for _, entry := range entries {
		if !entry.IsDir() || entry.Name() == ".git" {
			continue
		}
		sub := filepath.Join(dir, entry.Name())
		if isPluginDir(sub) {
			return sub, nil
		}
	}
	return "", errors.ConfigError(
		"repository does not contain a plugin: expected mod.rs + Cargo.toml or index.jsx/index.js")
}

func isPluginDir(dir string) bool {
	hasBackend := fileExists(filepath.Join(dir, "mod.rs")) && fileExists(filepath.Join(dir, "Cargo.toml"))
	hasFrontend := fileExists(filepath.Join(dir, "index.jsx")) || fileExists(filepath.Join(dir, "index.js"))
	return hasBackend || hasFrontend
}

// copyPluginTree copies the plugin sources, skipping VCS metadata and
// dependency/build directories.
func copyPluginTree(src, dst string) error {
	skip := map[string]bool{".git": true, "node_modules": true, "target": true}
	return filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return errors.IOError(err, "failed to walk plugin tree")
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		if d.IsDir() {
			if skip[d.Name()] && rel != "." {
				return filepath.SkipDir
			}
			return os.MkdirAll(filepath.Join(dst, rel), 0o750)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return errors.IOError(err, "failed to copy plugin file")
		}
		return os.WriteFile(filepath.Join(dst, rel), data, 0o644)
	})
}

// compareVersions compares two version strings, returning -1, 0, or 1.
// Versions are normalized to semver form; unparseable versions compare as
// v0.0.0 so a valid remote version wins.
func compareVersions(a, b string) int {
	return semver.Compare(canonical(a), canonical(b))
}

func canonical(v string) string {
	v = strings.TrimPrefix(strings.TrimSpace(v), "v")
	if v == "" {
		return "v0.0.0"
	}
	c := semver.Canonical("v" + v)
	if c == "" {
		return "v0.0.0"
	}
	return c
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
