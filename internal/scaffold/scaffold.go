// Package scaffold creates new plugin source trees from templates.
package scaffold

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"git.home.luguber.info/inful/plugbuild/internal/errors"
	"git.home.luguber.info/inful/plugbuild/internal/logfields"
	"git.home.luguber.info/inful/plugbuild/internal/workspace"
)

var pluginIDPattern = regexp.MustCompile(`^[a-z][a-z0-9_-]*$`)

// Options describe the plugin to create.
type Options struct {
	ID           string
	DisplayName  string // derived from ID when empty
	Author       string
	FrontendOnly bool
}

// Create writes a new plugin directory under the workspace plugins dir.
// Full-stack plugins get a frontend entry point plus a Rust backend stub;
// frontend-only plugins get just the entry point.
func Create(ws *workspace.Workspace, opts Options) error {
	if !pluginIDPattern.MatchString(opts.ID) {
		return errors.ValidationError(fmt.Sprintf(
			"invalid plugin id %q: must start with a letter and contain only lowercase letters, digits, - and _", opts.ID))
	}

	dir := filepath.Join(ws.PluginsDir(), opts.ID)
	if _, err := os.Stat(dir); err == nil {
		return errors.ConfigError(fmt.Sprintf("plugin %s already exists at %s", opts.ID, dir))
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return errors.IOError(err, "failed to create plugin directory")
	}

	display := opts.DisplayName
	if display == "" {
		display = DisplayName(opts.ID)
	}

	files := map[string]string{
		"index.jsx": renderIndex(opts.ID, display),
	}
	if !opts.FrontendOnly {
		files["viewport.jsx"] = renderViewport(opts.ID, display)
		files["Cargo.toml"] = renderCargoToml(opts.ID)
		files["mod.rs"] = renderModRS(opts.ID, display, StructName(opts.ID), opts.Author)
		files["router.rs"] = renderRouterRS(display)
	}

	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			return errors.IOError(err, fmt.Sprintf("failed to write %s", name))
		}
	}

	kind := "full-stack"
	if opts.FrontendOnly {
		kind = "frontend-only"
	}
	slog.Info("Plugin created", logfields.Plugin(opts.ID), logfields.Path(dir), logfields.Status(kind))
	return nil
}

// DisplayName turns a plugin id like "high-scores" into "High Scores".
func DisplayName(id string) string {
	words := strings.FieldsFunc(id, func(r rune) bool { return r == '-' || r == '_' })
	return cases.Title(language.Und).String(strings.Join(words, " "))
}

// StructName turns a plugin id like "high-scores" into "HighScores".
func StructName(id string) string {
	return strings.ReplaceAll(DisplayName(id), " ", "")
}
