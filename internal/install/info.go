package install

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"git.home.luguber.info/inful/plugbuild/internal/errors"
)

// PluginInfo describes a plugin directory, local or freshly cloned.
type PluginInfo struct {
	ID      string
	Version string
	Kind    string
}

var (
	cargoNamePattern    = regexp.MustCompile(`(?m)^\s*name\s*=\s*"([^"]+)"`)
	cargoVersionPattern = regexp.MustCompile(`(?m)^\s*version\s*=\s*"([^"]+)"`)
	indexVersionPattern = regexp.MustCompile(`version\s*:\s*['"]([^'"]+)['"]`)
)

// InspectPlugin reads identity and version out of a plugin directory. The
// ID comes from the Cargo.toml package name when a backend exists, else the
// directory name. The version comes from Cargo.toml, falling back to a
// version field in the frontend entry point, falling back to 1.0.0.
func InspectPlugin(dir string) (*PluginInfo, error) {
	hasBackend := fileExists(filepath.Join(dir, "mod.rs")) && fileExists(filepath.Join(dir, "Cargo.toml"))
	hasFrontend := fileExists(filepath.Join(dir, "index.jsx")) || fileExists(filepath.Join(dir, "index.js"))
	if !hasBackend && !hasFrontend {
		return nil, errors.ConfigError(fmt.Sprintf("not a valid plugin directory: %s", dir))
	}

	info := &PluginInfo{
		ID:      filepath.Base(dir),
		Version: "1.0.0",
	}
	switch {
	case hasBackend && hasFrontend:
		info.Kind = "full-stack"
	case hasBackend:
		info.Kind = "backend-only"
	default:
		info.Kind = "frontend-only"
	}

	if hasBackend {
		if data, err := os.ReadFile(filepath.Join(dir, "Cargo.toml")); err == nil {
			if m := cargoNamePattern.FindSubmatch(data); m != nil {
				info.ID = string(m[1])
			}
			if m := cargoVersionPattern.FindSubmatch(data); m != nil {
				info.Version = string(m[1])
			}
		}
		return info, nil
	}

	for _, name := range []string{"index.jsx", "index.js"} {
		path := filepath.Join(dir, name)
		if data, err := os.ReadFile(path); err == nil {
			if m := indexVersionPattern.FindSubmatch(data); m != nil {
				info.Version = strings.TrimSpace(string(m[1]))
			}
			break
		}
	}
	return info, nil
}
