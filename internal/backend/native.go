package backend

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"git.home.luguber.info/inful/plugbuild/internal/errors"
	"git.home.luguber.info/inful/plugbuild/internal/workspace"
)

// compileBackend builds the plugin's Rust library. The plugin sources are
// staged into scratch/rust_build as a standalone cdylib crate so the
// plugin's own directory stays pristine and cargo's target cache lives
// under the build dir, outside the fingerprinted tree.
func (b *Builder) compileBackend(ctx context.Context, plugin workspace.Plugin, scratch string) error {
	crateDir := filepath.Join(scratch, "rust_build")
	if err := b.stageCrate(plugin, crateDir); err != nil {
		return err
	}

	if err := b.runCommand(ctx, crateDir, "cargo", "build", "--release", "--lib"); err != nil {
		return errors.BackendError(err, fmt.Sprintf("cargo build failed for %s", plugin.ID))
	}

	lib := nativeLibraryName(plugin.ID)
	src := filepath.Join(crateDir, "target", "release", lib)
	if _, err := os.Stat(src); err != nil {
		return errors.BackendError(nil, fmt.Sprintf("compiled library not found: %s", src))
	}
	if err := copyFile(src, filepath.Join(scratch, lib)); err != nil {
		return errors.IOError(err, "failed to copy compiled library")
	}
	return nil
}

// stageCrate copies the plugin's Rust sources and manifest into a crate
// layout cargo can build directly: sources under src/, mod.rs renamed to
// src/lib.rs, and a [lib] cdylib section ensured in Cargo.toml.
func (b *Builder) stageCrate(plugin workspace.Plugin, crateDir string) error {
	srcDir := filepath.Join(crateDir, "src")
	if err := os.MkdirAll(srcDir, 0o750); err != nil {
		return errors.IOError(err, "failed to create rust build directory")
	}

	entries, err := os.ReadDir(plugin.Dir)
	if err != nil {
		return errors.IOError(err, "failed to read plugin directory")
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".rs") {
			continue
		}
		dst := entry.Name()
		if dst == "mod.rs" {
			dst = "lib.rs"
		}
		if err := copyFile(filepath.Join(plugin.Dir, entry.Name()), filepath.Join(srcDir, dst)); err != nil {
			return errors.IOError(err, "failed to stage rust source")
		}
	}

	manifest, err := os.ReadFile(filepath.Join(plugin.Dir, "Cargo.toml"))
	if err != nil {
		return errors.IOError(err, "failed to read Cargo.toml")
	}
	staged := ensureCdylib(string(manifest), plugin.ID)
	if err := os.WriteFile(filepath.Join(crateDir, "Cargo.toml"), []byte(staged), 0o644); err != nil {
		return errors.IOError(err, "failed to write staged Cargo.toml")
	}
	return nil
}

// ensureCdylib appends a [lib] section producing a cdylib unless the
// manifest already declares one.
func ensureCdylib(manifest, pluginID string) string {
	if strings.Contains(manifest, "[lib]") {
		return manifest
	}
	section := fmt.Sprintf("\n[lib]\nname = %q\ncrate-type = [\"cdylib\"]\npath = \"src/lib.rs\"\n", pluginID)
	return strings.TrimRight(manifest, "\n") + "\n" + section
}
