package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/huh"

	"git.home.luguber.info/inful/plugbuild/internal/backend"
	"git.home.luguber.info/inful/plugbuild/internal/config"
	"git.home.luguber.info/inful/plugbuild/internal/fingerprint"
	"git.home.luguber.info/inful/plugbuild/internal/guard"
	"git.home.luguber.info/inful/plugbuild/internal/history"
	"git.home.luguber.info/inful/plugbuild/internal/install"
	"git.home.luguber.info/inful/plugbuild/internal/orchestrator"
	"git.home.luguber.info/inful/plugbuild/internal/packaging"
	"git.home.luguber.info/inful/plugbuild/internal/progress"
	"git.home.luguber.info/inful/plugbuild/internal/scaffold"
	"git.home.luguber.info/inful/plugbuild/internal/watch"
	"git.home.luguber.info/inful/plugbuild/internal/workspace"
)

var CLI struct {
	Config  string `short:"c" help:"Configuration file path" default:"plugbuild.yaml"`
	Verbose bool   `short:"v" help:"Enable verbose logging"`

	Build struct {
		Plugin    string `arg:"" optional:"" help:"Build a single plugin instead of all"`
		Force     bool   `short:"f" help:"Rebuild even when sources are unchanged"`
		NoRebuild bool   `help:"Never invoke build tools; all stale plugins must have cached artifacts"`
	} `cmd:"" help:"Build stale plugins"`

	List struct{} `cmd:"" help:"List workspace plugins and their build status"`

	New struct {
		ID           string `arg:"" help:"Plugin identifier (lowercase, digits, - and _)"`
		Author       string `help:"Author recorded in the plugin manifest"`
		FrontendOnly bool   `help:"Skip the Rust backend stub"`
	} `cmd:"" help:"Create a new plugin from templates"`

	Install struct {
		Repo  string `arg:"" help:"GitHub user/repo shorthand or a full clone URL"`
		Force bool   `help:"Replace an existing install regardless of version"`
	} `cmd:"" help:"Install a plugin from a remote repository"`

	Package struct {
		SkipPrompts bool   `help:"Use configured values without interactive prompts"`
		Locked      bool   `help:"Embed plugins with the binary"`
		NoRebuild   bool   `help:"Reuse cached plugin artifacts"`
		SkipBinary  bool   `help:"Keep the existing app frontend and binary"`
		Name        string `help:"Override the configured app name"`
		Version     string `help:"Override the configured app version"`
		Description string `help:"Override the configured description"`
		Author      string `help:"Override the configured author"`
	} `cmd:"" help:"Package the app for distribution"`

	Watch struct {
		MetricsAddr string `help:"Listen address for the Prometheus endpoint (overrides config)"`
	} `cmd:"" help:"Rebuild plugins automatically when sources change"`

	History struct {
		Limit int    `default:"10" help:"Number of runs to show"`
		Run   string `help:"Show per-plugin outcomes for one run ID"`
	} `cmd:"" help:"Show recorded build runs"`

	Init struct {
		Force bool `help:"Overwrite an existing configuration file"`
	} `cmd:"" help:"Write an example configuration file"`
}

func main() {
	kctx := kong.Parse(&CLI)

	logLevel := slog.LevelInfo
	if CLI.Verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch kctx.Command() {
	case "build", "build <plugin>":
		err = runBuild(ctx)
	case "list":
		err = runList()
	case "new <id>":
		err = runNew()
	case "install <repo>":
		err = runInstall(ctx)
	case "package":
		err = runPackage(ctx)
	case "watch":
		err = runWatch(ctx)
	case "history":
		err = runHistory(ctx)
	case "init":
		err = config.Init(CLI.Config, CLI.Init.Force)
	default:
		err = fmt.Errorf("unknown command: %s", kctx.Command())
	}
	if err != nil {
		slog.Error("Command failed", "error", err)
		os.Exit(1)
	}
}

func loadWorkspace() (*config.Config, *workspace.Workspace, error) {
	cfg, err := config.Load(CLI.Config)
	if err != nil {
		return nil, nil, err
	}
	ws, err := workspace.New(cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, ws, nil
}

func walkOptions(cfg *config.Config) fingerprint.WalkOptions {
	return fingerprint.WalkOptions{
		Extensions:   cfg.Build.Extensions,
		ExcludeDirs:  cfg.Build.ExcludeDirs,
		ExcludeFiles: cfg.Build.ExcludeFiles,
	}
}

// buildOrchestrator wires the full build pipeline: cache, backends, guard,
// and progress reporters. Reporters consume a bounded stream so rendering
// never blocks the run loop. The returned cleanup drains the stream and
// closes external connections; call it after the run finishes.
func buildOrchestrator(cfg *config.Config, ws *workspace.Workspace) (*orchestrator.Orchestrator, func(), error) {
	cachePath, err := cfg.CachePath()
	if err != nil {
		return nil, nil, err
	}
	cache := fingerprint.NewCache(cachePath)

	builder := backend.NewBuilder(ws).WithVerbose(CLI.Verbose)

	handlers := []orchestrator.Handler{
		progress.NewTerminalReporter(os.Stdout, cfg.Progress.Plain, cfg.Progress.Quiet).Handle,
	}
	if CLI.Verbose {
		handlers = append(handlers, progress.NewSlogReporter(slog.Default()).Handle)
	}
	closeNATS := func() {}
	if cfg.Progress.NATS.URL != "" {
		reporter, err := progress.NewNATSReporter(cfg.Progress.NATS.URL, cfg.Progress.NATS.Subject)
		if err != nil {
			slog.Warn("Progress events will not be published", "error", err)
		} else {
			handlers = append(handlers, reporter.Handle)
			closeNATS = reporter.Close
		}
	}

	bus := orchestrator.NewBus()
	stream := orchestrator.NewStream(256)
	stream.Attach(bus)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for e := range stream.Events() {
			for _, h := range handlers {
				_ = h(e)
			}
		}
	}()
	cleanup := func() {
		stream.Close()
		<-done
		if dropped := stream.Dropped(); dropped > 0 {
			slog.Warn("Progress events dropped", "count", dropped)
		}
		closeNATS()
	}

	orch := orchestrator.New(ws, cache, walkOptions(cfg), builder, bus)
	if cfg.Guard.ProcessName != "" {
		g := guard.New(guard.NewSystemOps(), cfg.Guard.ProcessName,
			cfg.Guard.GracePeriodDuration(), cfg.Guard.PollIntervalDuration())
		orch.WithGuard(g)
	}
	return orch, cleanup, nil
}

func recordHistory(ctx context.Context, cfg *config.Config, result *orchestrator.Result, started time.Time) {
	path, err := cfg.HistoryPath()
	if err != nil || path == "" {
		return
	}
	store, err := history.NewStore(path)
	if err != nil {
		slog.Warn("Build history unavailable", "error", err)
		return
	}
	defer store.Close()
	if err := store.Record(ctx, result, started); err != nil {
		slog.Warn("Failed to record build history", "error", err)
	}
}

func runBuild(ctx context.Context) error {
	cfg, ws, err := loadWorkspace()
	if err != nil {
		return err
	}
	orch, cleanup, err := buildOrchestrator(cfg, ws)
	if err != nil {
		return err
	}
	defer cleanup()

	req := orchestrator.Request{
		Mode:      orchestrator.ModeAll,
		Force:     CLI.Build.Force,
		NoRebuild: CLI.Build.NoRebuild,
	}
	if CLI.Build.Plugin != "" {
		req.Mode = orchestrator.ModeSingle
		req.PluginName = CLI.Build.Plugin
	}

	started := time.Now()
	result, err := orch.Run(ctx, req)
	if err != nil {
		return err
	}
	recordHistory(ctx, cfg, result, started)
	if !result.OverallSuccess {
		return fmt.Errorf("build finished with %d failed plugin(s)", result.FailedCount)
	}
	return nil
}

func runList() error {
	_, ws, err := loadWorkspace()
	if err != nil {
		return err
	}
	plugins, err := ws.Discover()
	if err != nil {
		return err
	}
	if len(plugins) == 0 {
		fmt.Println("No plugins found.")
		return nil
	}
	for _, plugin := range plugins {
		built := true
		for _, artifact := range ws.ArtifactPaths(plugin) {
			if _, err := os.Stat(artifact); err != nil {
				built = false
				break
			}
		}
		status := "not built"
		if built {
			status = "built"
		}
		fmt.Printf("  %-20s %-14s %s\n", plugin.ID, plugin.Kind(), status)
	}
	return nil
}

func runNew() error {
	_, ws, err := loadWorkspace()
	if err != nil {
		return err
	}
	opts := scaffold.Options{
		ID:           CLI.New.ID,
		Author:       CLI.New.Author,
		FrontendOnly: CLI.New.FrontendOnly,
	}
	if err := scaffold.Create(ws, opts); err != nil {
		return err
	}
	fmt.Printf("Created plugin %q under %s\n", CLI.New.ID, ws.PluginsDir())
	return nil
}

func runInstall(ctx context.Context) error {
	_, ws, err := loadWorkspace()
	if err != nil {
		return err
	}
	result, err := install.New(ws).Install(ctx, install.Options{
		Repo:  CLI.Install.Repo,
		Force: CLI.Install.Force,
	})
	if err != nil {
		return err
	}
	verb := "Installed"
	if result.Updated {
		verb = "Updated"
	}
	fmt.Printf("%s plugin %q version %s (%s)\n", verb, result.PluginID, result.Version, result.Kind)
	return nil
}

func runPackage(ctx context.Context) error {
	cfg, ws, err := loadWorkspace()
	if err != nil {
		return err
	}

	pkg := cfg.Package
	if CLI.Package.Name != "" {
		pkg.Name = CLI.Package.Name
	}
	if CLI.Package.Version != "" {
		pkg.Version = CLI.Package.Version
	}
	if CLI.Package.Description != "" {
		pkg.Description = CLI.Package.Description
	}
	if CLI.Package.Author != "" {
		pkg.Author = CLI.Package.Author
	}
	if CLI.Package.Locked {
		pkg.Locked = true
	}

	if !CLI.Package.SkipPrompts && !pkg.Locked {
		if err := promptPackageConfig(&pkg); err != nil {
			return err
		}
	}

	orch, cleanup, err := buildOrchestrator(cfg, ws)
	if err != nil {
		return err
	}
	defer cleanup()

	packager := packaging.New(pkg, ws, orch, packaging.NewExecRunner(CLI.Verbose)).
		WithStepFunc(func(step string) { fmt.Printf("==> %s\n", step) })

	manifest, err := packager.Package(ctx, packaging.Options{
		NoRebuild:  CLI.Package.NoRebuild,
		SkipBinary: CLI.Package.SkipBinary,
	})
	if err != nil {
		return err
	}
	fmt.Printf("Packaged %s %s with %d plugin(s)\n", manifest.Name, manifest.AppVersion, len(manifest.Plugins))
	return nil
}

// promptPackageConfig collects the distribution metadata interactively,
// pre-filled from configuration.
func promptPackageConfig(pkg *config.PackageConfig) error {
	proceed := true
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("App name").Value(&pkg.Name),
			huh.NewInput().Title("Version").Value(&pkg.Version),
			huh.NewInput().Title("Description").Value(&pkg.Description),
			huh.NewInput().Title("Author").Value(&pkg.Author),
			huh.NewInput().Title("Identifier").Value(&pkg.Identifier),
			huh.NewSelect[bool]().Title("Plugin mode").
				Options(
					huh.NewOption("Unlocked (plugins loaded from disk)", false),
					huh.NewOption("Locked (plugins embedded in binary)", true),
				).
				Value(&pkg.Locked),
			huh.NewConfirm().Title("Proceed with packaging?").Value(&proceed),
		),
	)
	if err := form.Run(); err != nil {
		return err
	}
	if !proceed {
		return fmt.Errorf("packaging cancelled")
	}
	return nil
}

func runWatch(ctx context.Context) error {
	cfg, ws, err := loadWorkspace()
	if err != nil {
		return err
	}
	orch, cleanup, err := buildOrchestrator(cfg, ws)
	if err != nil {
		return err
	}
	defer cleanup()

	metricsAddr := cfg.Watch.MetricsAddr
	if CLI.Watch.MetricsAddr != "" {
		metricsAddr = CLI.Watch.MetricsAddr
	}

	w := watch.New(ws, orch, walkOptions(cfg), watch.Options{
		Debounce:      cfg.Watch.DebounceDuration(),
		SweepInterval: cfg.Watch.SweepIntervalDuration(),
		MetricsAddr:   metricsAddr,
	})
	if metricsAddr != "" {
		w.WithMetrics(watch.NewMetrics(nil))
	}
	return w.Run(ctx)
}

func runHistory(ctx context.Context) error {
	cfg, _, err := loadWorkspace()
	if err != nil {
		return err
	}
	path, err := cfg.HistoryPath()
	if err != nil {
		return err
	}
	if path == "" {
		return fmt.Errorf("build history is disabled in configuration")
	}
	store, err := history.NewStore(path)
	if err != nil {
		return err
	}
	defer store.Close()

	if CLI.History.Run != "" {
		outcomes, err := store.Plugins(ctx, CLI.History.Run)
		if err != nil {
			return err
		}
		if len(outcomes) == 0 {
			fmt.Println("No such run.")
			return nil
		}
		for _, o := range outcomes {
			line := fmt.Sprintf("  %-20s %-10s %s", o.Plugin, o.Status, o.Reason)
			if o.Error != "" {
				line += "  " + o.Error
			}
			fmt.Println(line)
		}
		return nil
	}

	runs, err := store.Recent(ctx, CLI.History.Limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No recorded runs.")
		return nil
	}
	for _, run := range runs {
		status := "ok"
		if !run.Success {
			status = "failed"
		}
		fmt.Printf("  %s  %s  %-6s  built=%d skipped=%d failed=%d  (%s)\n",
			run.Started.Format("2006-01-02 15:04:05"), run.ID, status,
			run.Built, run.Skipped, run.Failed, run.Duration.Round(time.Millisecond))
	}
	return nil
}
