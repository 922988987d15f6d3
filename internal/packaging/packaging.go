// Package packaging turns a built workspace into a distributable app. It
// rebuilds the plugins through the orchestrator, stages or references their
// artifacts according to the plugin mode, and hands off to the external
// packager.
package packaging

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"git.home.luguber.info/inful/plugbuild/internal/config"
	"git.home.luguber.info/inful/plugbuild/internal/errors"
	"git.home.luguber.info/inful/plugbuild/internal/logfields"
	"git.home.luguber.info/inful/plugbuild/internal/orchestrator"
	"git.home.luguber.info/inful/plugbuild/internal/workspace"
)

// BuildRunner is the slice of the orchestrator the packager needs.
type BuildRunner interface {
	Run(ctx context.Context, req orchestrator.Request) (*orchestrator.Result, error)
}

// Options tunes one packaging run.
type Options struct {
	NoRebuild  bool // reuse cached artifacts, never dispatch a backend
	SkipBinary bool // keep the existing app frontend and binary
}

// Packager drives the packaging pipeline. The external installer tool is an
// opaque step behind the Runner interface.
type Packager struct {
	cfg    config.PackageConfig
	ws     *workspace.Workspace
	builds BuildRunner
	runner Runner
	logger *slog.Logger
	onStep func(step string)
}

// New creates a packager. The build runner is usually an
// orchestrator.Orchestrator.
func New(cfg config.PackageConfig, ws *workspace.Workspace, builds BuildRunner, runner Runner) *Packager {
	if runner == nil {
		runner = NewExecRunner(false)
	}
	return &Packager{
		cfg:    cfg,
		ws:     ws,
		builds: builds,
		runner: runner,
		logger: slog.Default(),
	}
}

// WithLogger sets a custom logger.
func (p *Packager) WithLogger(logger *slog.Logger) *Packager {
	p.logger = logger
	return p
}

// WithStepFunc registers a callback invoked as each pipeline stage starts.
func (p *Packager) WithStepFunc(fn func(step string)) *Packager {
	p.onStep = fn
	return p
}

// Package runs the full pipeline: plugin rebuild, app build, manifest write,
// installer creation. It returns the written manifest.
func (p *Packager) Package(ctx context.Context, opts Options) (*Manifest, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}

	appDir := filepath.Join(p.ws.Root(), "app")
	if _, err := os.Stat(filepath.Join(appDir, "Cargo.toml")); err != nil {
		return nil, errors.ConfigError("app/Cargo.toml not found: run from the workspace root")
	}

	p.step("building plugins")
	req := orchestrator.Request{Mode: orchestrator.ModeAll, Force: !opts.NoRebuild, NoRebuild: opts.NoRebuild}
	result, err := p.builds.Run(ctx, req)
	if err != nil {
		return nil, err
	}
	if !result.OverallSuccess {
		return nil, errors.BackendError(nil, fmt.Sprintf(
			"plugin build failed for %d plugin(s): cannot package", result.FailedCount))
	}

	if opts.SkipBinary {
		p.logger.Info("Skipping app binary build")
	} else {
		p.step("building app frontend")
		if err := p.runner.Run(ctx, p.ws.Root(), "bun", "run", "build:prod"); err != nil {
			return nil, errors.BackendError(err, "app frontend build failed")
		}

		p.step("compiling app binary")
		args := []string{"build", "--release"}
		if p.cfg.Locked {
			args = append(args, "--features", "locked-plugins")
		}
		if err := p.runner.Run(ctx, appDir, "cargo", args...); err != nil {
			return nil, errors.BackendError(err, "app binary build failed")
		}
	}

	p.step("writing manifest")
	manifest, err := p.writeManifest()
	if err != nil {
		return nil, err
	}

	p.step("creating installer")
	if err := p.runner.Run(ctx, appDir, "cargo", "packager", "--release"); err != nil {
		return nil, errors.BackendError(err, "installer creation failed")
	}

	p.logger.Info("Packaging complete",
		logfields.Name(p.cfg.Name),
		slog.String("version", p.cfg.Version),
		slog.Int("plugins", len(manifest.Plugins)),
		slog.Bool("locked", p.cfg.Locked))
	return manifest, nil
}

func (p *Packager) validate() error {
	if strings.TrimSpace(p.cfg.Name) == "" {
		return errors.ValidationError("package.name is required")
	}
	if strings.TrimSpace(p.cfg.Version) == "" {
		return errors.ValidationError("package.version is required")
	}
	return nil
}

func (p *Packager) step(name string) {
	p.logger.Info("Packaging step", logfields.Step(name))
	if p.onStep != nil {
		p.onStep(name)
	}
}

// Identifier returns the configured bundle identifier, deriving one from the
// app name when unset.
func (p *Packager) Identifier() string {
	if p.cfg.Identifier != "" {
		return p.cfg.Identifier
	}
	name := strings.ToLower(p.cfg.Name)
	name = strings.ReplaceAll(name, " ", "")
	name = strings.ReplaceAll(name, "-", "")
	return fmt.Sprintf("com.%s.app", name)
}
