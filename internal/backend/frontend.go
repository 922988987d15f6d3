package backend

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"git.home.luguber.info/inful/plugbuild/internal/errors"
	"git.home.luguber.info/inful/plugbuild/internal/logfields"
	"git.home.luguber.info/inful/plugbuild/internal/workspace"
)

// bundleFrontend produces scratch/plugin.js from the plugin's entry point.
// The app ships a bundler script under app/scripts/build.js; it is run with
// bun when available, node otherwise. When the script is absent entirely
// (minimal workspaces, tests) the entry point is copied through unbundled.
func (b *Builder) bundleFrontend(ctx context.Context, plugin workspace.Plugin, scratch string) error {
	script := filepath.Join(b.ws.Root(), "app", "scripts", "build.js")
	if _, err := os.Stat(script); err != nil {
		b.logger.Warn("Frontend bundler script not found, copying entry point unbundled",
			logfields.Plugin(plugin.ID), logfields.Path(script))
		return b.copyEntryPoint(plugin, scratch)
	}

	runner, args := bundlerCommand(script, plugin.Dir, scratch)
	if err := b.runCommand(ctx, b.ws.Root(), runner, args...); err != nil {
		return errors.BackendError(err, fmt.Sprintf("frontend bundling failed for %s", plugin.ID))
	}

	if _, err := os.Stat(filepath.Join(scratch, "plugin.js")); err != nil {
		return errors.BackendError(nil, fmt.Sprintf("bundler produced no plugin.js for %s", plugin.ID))
	}
	return nil
}

// bundlerCommand prefers bun and falls back to node.
func bundlerCommand(script, pluginDir, outDir string) (string, []string) {
	if _, err := exec.LookPath("bun"); err == nil {
		return "bun", []string{"run", script, pluginDir, outDir}
	}
	return "node", []string{script, pluginDir, outDir}
}

func (b *Builder) copyEntryPoint(plugin workspace.Plugin, scratch string) error {
	for _, name := range []string{"index.jsx", "index.js"} {
		src := filepath.Join(plugin.Dir, name)
		if _, err := os.Stat(src); err == nil {
			if err := copyFile(src, filepath.Join(scratch, "plugin.js")); err != nil {
				return errors.IOError(err, "failed to copy frontend entry point")
			}
			return nil
		}
	}
	return errors.BackendError(nil, fmt.Sprintf("no frontend entry point found for %s", plugin.ID))
}
