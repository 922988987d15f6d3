// Package orchestrator drives incremental plugin builds: it decides which
// plugins are stale, dispatches the external build backends for those, and
// publishes progress events along the way.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/plugbuild/internal/errors"
	"git.home.luguber.info/inful/plugbuild/internal/fingerprint"
	"git.home.luguber.info/inful/plugbuild/internal/logfields"
	"git.home.luguber.info/inful/plugbuild/internal/workspace"
)

// Mode selects which plugins participate in a run.
type Mode string

const (
	// ModeAll builds every plugin discovered in the workspace.
	ModeAll Mode = "all"

	// ModeSingle builds one named plugin.
	ModeSingle Mode = "single"
)

// Request describes one orchestration run.
type Request struct {
	Mode       Mode
	PluginName string // required for ModeSingle
	Force      bool   // bypass staleness entirely
	NoRebuild  bool   // never dispatch a backend; stale plugins must have artifacts
}

// Orchestrator coordinates staleness detection, process guarding, backend
// dispatch, and cache persistence for one run at a time.
type Orchestrator struct {
	ws       *workspace.Workspace
	cache    *fingerprint.Cache
	walkOpts fingerprint.WalkOptions
	backend  Backend
	guard    Guard // optional
	bus      *Bus
	logger   *slog.Logger
}

// New creates an orchestrator. The bus may be shared with progress
// reporters; pass a fresh one when no subscriber is interested.
func New(ws *workspace.Workspace, cache *fingerprint.Cache, walkOpts fingerprint.WalkOptions, backend Backend, bus *Bus) *Orchestrator {
	if bus == nil {
		bus = NewBus()
	}
	return &Orchestrator{
		ws:       ws,
		cache:    cache,
		walkOpts: walkOpts,
		backend:  backend,
		bus:      bus,
		logger:   slog.Default(),
	}
}

// WithGuard sets the process guard run before any build starts.
func (o *Orchestrator) WithGuard(guard Guard) *Orchestrator {
	o.guard = guard
	return o
}

// WithLogger sets a custom logger.
func (o *Orchestrator) WithLogger(logger *slog.Logger) *Orchestrator {
	o.logger = logger
	return o
}

// Bus returns the event bus subscribers attach to.
func (o *Orchestrator) Bus() *Bus { return o.bus }

// Run executes one orchestration run. Configuration problems (unknown
// plugin, unreadable workspace) abort before any task is dispatched and are
// returned as an error. Per-plugin build failures do not: they are recorded
// in the Result with OverallSuccess false.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	runID := uuid.NewString()
	logger := o.logger.With(logfields.RunID(runID))

	plugins, err := o.selectPlugins(req)
	if err != nil {
		return nil, err
	}

	tasks := make([]*Task, 0, len(plugins))
	names := make([]string, 0, len(plugins))
	for _, plugin := range plugins {
		tasks = append(tasks, newTask(plugin))
		names = append(names, plugin.ID)
	}

	o.publish(RunStarted{RunID: runID, Plugins: names, Force: req.Force})
	logger.Info("Build run started", slog.Int("plugins", len(plugins)), slog.Bool("force", req.Force))

	if err := o.ws.EnsureDirs(); err != nil {
		return nil, err
	}

	// The guard runs to completion before the first Building transition.
	// Termination failure is a warning, never an abort: the artifact write
	// may still succeed.
	if o.guard != nil {
		terminated, guardErr := o.guard.Acquire(ctx)
		if guardErr != nil {
			logger.Warn("Process guard finished with warnings", logfields.Error(guardErr))
		}
		o.publish(GuardFinished{RunID: runID, Terminated: terminated, Warning: guardErr})
	}

	if err := o.cache.Load(); err != nil {
		// Unreadable cache falls back to empty, forcing a full rebuild.
		logger.Warn("Falling back to empty build cache", logfields.Error(err))
	}

	for _, task := range tasks {
		if ctx.Err() != nil {
			break
		}
		o.runTask(ctx, runID, logger, task, req)
	}

	if err := o.cache.Save(); err != nil {
		logger.Warn("Failed to persist build cache", logfields.Error(err))
	}

	result := summarize(runID, tasks, time.Since(start))
	o.publish(RunCompleted{RunID: runID, Result: result, Duration: result.Duration})
	logger.Info("Build run finished",
		logfields.Status(fmt.Sprintf("%d built, %d skipped, %d failed", result.Built, result.SkippedCount, result.FailedCount)),
		logfields.DurationMS(float64(result.Duration.Milliseconds())))

	if ctx.Err() != nil {
		return result, errors.Wrap(ctx.Err(), errors.CategoryRuntime, errors.SeverityError, "run cancelled")
	}
	return result, nil
}

// runTask drives one plugin through the state machine. All cache mutation
// is applied per plugin; the final Save merges them atomically.
func (o *Orchestrator) runTask(ctx context.Context, runID string, logger *slog.Logger, task *Task, req Request) {
	plugin := task.Plugin
	taskLog := logger.With(logfields.Plugin(plugin.ID))

	current, err := fingerprint.Compute(plugin.Dir, o.walkOpts)
	if err != nil {
		// Unreadable source is conservatively stale rather than silently
		// skipped; the backend will surface the real problem if it persists.
		taskLog.Warn("Failed to fingerprint plugin, treating as stale", logfields.Error(err))
		current = nil
	}

	outputExists := o.artifactsExist(plugin)
	var stale bool
	var reason fingerprint.StaleReason
	if current == nil {
		stale, reason = true, fingerprint.ReasonUnreadableSource
	} else {
		stale, reason = fingerprint.NeedsBuild(current, o.cache.Get(plugin.ID), outputExists, req.Force)
	}
	task.Reason = reason

	if !stale {
		task.Status = StatusComplete
		task.Skipped = true
		o.publish(PluginSkipped{RunID: runID, Plugin: plugin.ID, Reason: reason})
		taskLog.Info("Plugin up to date, skipping", logfields.Status(string(reason)))
		return
	}

	if req.NoRebuild {
		if outputExists {
			task.Status = StatusComplete
			task.Cached = true
			o.publish(TaskCompleted{RunID: runID, Plugin: plugin.ID, Cached: true})
			taskLog.Info("Using existing artifact without rebuild", logfields.Status(string(reason)))
			return
		}
		task.Status = StatusFailed
		task.Err = errors.ConfigError(
			fmt.Sprintf("plugin %s is stale and has no built artifact; rebuild is disabled", plugin.ID))
		o.publish(TaskFailed{RunID: runID, Plugin: plugin.ID, Err: task.Err})
		return
	}

	task.Status = StatusBuilding
	task.StartedAt = time.Now()
	o.publish(TaskStarted{RunID: runID, Plugin: plugin.ID, Reason: reason})
	taskLog.Info("Building plugin", logfields.Status(string(reason)))

	buildErr := o.backend.Build(ctx, plugin, func(step string) {
		task.CurrentStep = step
		o.publish(StepStarted{RunID: runID, Plugin: plugin.ID, Step: step})
		taskLog.Debug("Build step started", logfields.Step(step))
	})
	task.Duration = time.Since(task.StartedAt)
	task.CurrentStep = ""

	if buildErr != nil {
		// The prior cache entry stays untouched so a failed build is never
		// mistaken for fresh on the next run.
		task.Status = StatusFailed
		task.Err = errors.BackendError(buildErr, fmt.Sprintf("build failed for plugin %s", plugin.ID))
		o.publish(TaskFailed{RunID: runID, Plugin: plugin.ID, Err: task.Err, Duration: task.Duration})
		taskLog.Error("Plugin build failed", logfields.Error(buildErr),
			logfields.DurationMS(float64(task.Duration.Milliseconds())))
		return
	}

	// Recompute after the build so files touched during compilation (e.g. a
	// regenerated manifest) land in the cache entry.
	rebuilt, err := fingerprint.Compute(plugin.Dir, o.walkOpts)
	if err != nil {
		taskLog.Warn("Failed to fingerprint after build, cache entry not updated", logfields.Error(err))
	} else {
		o.cache.Put(plugin.ID, rebuilt)
	}

	task.Status = StatusComplete
	o.publish(TaskCompleted{RunID: runID, Plugin: plugin.ID, Duration: task.Duration})
	taskLog.Info("Plugin built", logfields.DurationMS(float64(task.Duration.Milliseconds())))
}

func (o *Orchestrator) selectPlugins(req Request) ([]workspace.Plugin, error) {
	switch req.Mode {
	case ModeSingle:
		if req.PluginName == "" {
			return nil, errors.ConfigError("plugin name is required for a single-plugin build")
		}
		plugin, err := o.ws.Find(req.PluginName)
		if err != nil {
			return nil, err
		}
		return []workspace.Plugin{plugin}, nil
	case ModeAll, "":
		plugins, err := o.ws.Discover()
		if err != nil {
			return nil, err
		}
		if len(plugins) == 0 {
			return nil, errors.ConfigError(fmt.Sprintf("no plugins found in %s", o.ws.PluginsDir()))
		}
		return plugins, nil
	default:
		return nil, errors.ValidationError(fmt.Sprintf("unknown build mode %q", req.Mode))
	}
}

// artifactsExist reports whether every expected output artifact is present.
func (o *Orchestrator) artifactsExist(plugin workspace.Plugin) bool {
	for _, path := range o.ws.ArtifactPaths(plugin) {
		if _, err := os.Stat(path); err != nil {
			return false
		}
	}
	return true
}

func (o *Orchestrator) publish(e Event) {
	if err := o.bus.Publish(e); err != nil {
		o.logger.Warn("Event handler failed", logfields.Error(err), slog.String("event", e.Name()))
	}
}
