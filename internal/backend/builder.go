// Package backend invokes the external compilation toolchains: the
// JavaScript bundler for plugin frontends and cargo for Rust backends.
// The orchestrator consumes it through its Backend interface and treats
// every step as opaque.
package backend

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"

	"git.home.luguber.info/inful/plugbuild/internal/errors"
	"git.home.luguber.info/inful/plugbuild/internal/logfields"
	"git.home.luguber.info/inful/plugbuild/internal/workspace"
)

// Step names reported to the orchestrator.
const (
	StepBundleFrontend = "bundling frontend"
	StepCompileBackend = "compiling backend"
	StepInstall        = "installing artifacts"
)

// Builder compiles plugins into the workspace dist directory.
type Builder struct {
	ws      *workspace.Workspace
	logger  *slog.Logger
	verbose bool
}

// NewBuilder creates a builder for the given workspace.
func NewBuilder(ws *workspace.Workspace) *Builder {
	return &Builder{ws: ws, logger: slog.Default()}
}

// WithLogger sets a custom logger.
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithVerbose streams toolchain output to the terminal instead of
// capturing it.
func (b *Builder) WithVerbose(verbose bool) *Builder {
	b.verbose = verbose
	return b
}

// Build compiles one plugin: bundle the frontend if present, compile the
// Rust backend if present, then install the artifacts into dist. The
// scratch directory is recreated per build so stale intermediates never
// leak between runs.
func (b *Builder) Build(ctx context.Context, plugin workspace.Plugin, onStep func(step string)) error {
	scratch := filepath.Join(b.ws.BuildDir(), plugin.ID)
	if err := os.RemoveAll(scratch); err != nil {
		return errors.IOError(err, "failed to clean build directory")
	}
	if err := os.MkdirAll(scratch, 0o750); err != nil {
		return errors.IOError(err, "failed to create build directory")
	}

	if plugin.HasFrontend {
		onStep(StepBundleFrontend)
		if err := b.bundleFrontend(ctx, plugin, scratch); err != nil {
			return err
		}
	}

	if plugin.HasBackend {
		onStep(StepCompileBackend)
		if err := b.compileBackend(ctx, plugin, scratch); err != nil {
			return err
		}
	}

	onStep(StepInstall)
	if err := b.install(plugin, scratch); err != nil {
		return err
	}

	b.logger.Debug("Plugin artifacts installed", logfields.Plugin(plugin.ID), logfields.Path(b.ws.DistDir()))
	return nil
}

// install copies the built artifacts from the scratch directory into dist.
func (b *Builder) install(plugin workspace.Plugin, scratch string) error {
	if err := os.MkdirAll(b.ws.DistDir(), 0o750); err != nil {
		return errors.IOError(err, "failed to create dist directory")
	}

	if plugin.HasFrontend {
		src := filepath.Join(scratch, "plugin.js")
		dst := filepath.Join(b.ws.DistDir(), plugin.ID+".js")
		if err := copyFile(src, dst); err != nil {
			return errors.IOError(err, fmt.Sprintf("failed to install frontend bundle for %s", plugin.ID))
		}
	}

	if plugin.HasBackend {
		lib := nativeLibraryName(plugin.ID)
		src := filepath.Join(scratch, lib)
		dst := filepath.Join(b.ws.DistDir(), lib)
		if err := copyFile(src, dst); err != nil {
			return errors.IOError(err, fmt.Sprintf("failed to install library for %s", plugin.ID))
		}
	}
	return nil
}

// nativeLibraryName mirrors the artifact naming used by workspace path
// resolution.
func nativeLibraryName(id string) string {
	switch runtime.GOOS {
	case "windows":
		return id + ".dll"
	case "darwin":
		return "lib" + id + ".dylib"
	default:
		return "lib" + id + ".so"
	}
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}
