// Package watch rebuilds plugins automatically when their sources change.
// File system events are debounced into single rebuild runs; an optional
// periodic sweep catches changes the watcher missed, and an optional HTTP
// endpoint exposes Prometheus metrics for the loop.
package watch

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"git.home.luguber.info/inful/plugbuild/internal/errors"
	"git.home.luguber.info/inful/plugbuild/internal/fingerprint"
	"git.home.luguber.info/inful/plugbuild/internal/logfields"
	"git.home.luguber.info/inful/plugbuild/internal/orchestrator"
	"git.home.luguber.info/inful/plugbuild/internal/workspace"
)

// BuildRunner is the slice of the orchestrator the watcher needs.
type BuildRunner interface {
	Run(ctx context.Context, req orchestrator.Request) (*orchestrator.Result, error)
}

// Options tunes the watch loop.
type Options struct {
	Debounce      time.Duration // quiet window after the last relevant event
	SweepInterval time.Duration // periodic full pass; zero disables the sweep
	MetricsAddr   string        // listen address for /metrics; empty disables
}

// Watcher runs the rebuild-on-change loop. One rebuild runs at a time;
// events arriving during a rebuild coalesce into exactly one follow-up run.
type Watcher struct {
	ws      *workspace.Workspace
	builds  BuildRunner
	opts    Options
	filter  eventFilter
	metrics *Metrics
	logger  *slog.Logger

	// trigger is an always-buffered coalescing channel: at most one rebuild
	// can be pending regardless of how many events fired.
	trigger chan struct{}
}

// New creates a watcher. The walk options decide which file events count as
// source changes, mirroring what the fingerprints hash.
func New(ws *workspace.Workspace, builds BuildRunner, walkOpts fingerprint.WalkOptions, opts Options) *Watcher {
	if opts.Debounce <= 0 {
		opts.Debounce = 500 * time.Millisecond
	}
	return &Watcher{
		ws:      ws,
		builds:  builds,
		opts:    opts,
		filter:  newEventFilter(walkOpts),
		logger:  slog.Default(),
		trigger: make(chan struct{}, 1),
	}
}

// WithLogger sets a custom logger.
func (w *Watcher) WithLogger(logger *slog.Logger) *Watcher {
	w.logger = logger
	return w
}

// WithMetrics attaches a metrics recorder.
func (w *Watcher) WithMetrics(m *Metrics) *Watcher {
	w.metrics = m
	return w
}

// Run blocks until the context is cancelled. A full rebuild pass runs first
// so the workspace starts in a known-good state.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.IOError(err, "failed to create file watcher")
	}
	defer fsw.Close()

	if err := w.addWatchTree(fsw, w.ws.PluginsDir()); err != nil {
		return err
	}

	if w.opts.SweepInterval > 0 {
		sweeper, err := newSweeper(w.opts.SweepInterval, w.requestRebuild)
		if err != nil {
			return err
		}
		sweeper.Start()
		defer func() { _ = sweeper.Stop() }()
	}

	if w.opts.MetricsAddr != "" && w.metrics != nil {
		stop := w.metrics.Serve(w.opts.MetricsAddr, w.logger)
		defer stop()
	}

	w.logger.Info("Watching for plugin changes",
		logfields.Path(w.ws.PluginsDir()),
		slog.Duration("debounce", w.opts.Debounce))

	// Initial pass.
	w.rebuild(ctx)

	debounce := time.NewTimer(time.Hour)
	stopTimer(debounce)
	defer debounce.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(fsw, event, debounce)

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("File watcher error", logfields.Error(err))

		case <-debounce.C:
			w.requestRebuild()

		case <-w.trigger:
			w.rebuild(ctx)
		}
	}
}

func (w *Watcher) handleEvent(fsw *fsnotify.Watcher, event fsnotify.Event, debounce *time.Timer) {
	// New directories must join the watch set even when their creation
	// event itself is not a source change.
	if event.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if !w.filter.excludedDir(filepath.Base(event.Name)) {
				if err := w.addWatchTree(fsw, event.Name); err != nil {
					w.logger.Warn("Failed to watch new directory", logfields.Path(event.Name), logfields.Error(err))
				}
			}
		}
	}

	if !w.filter.relevant(event) {
		return
	}

	w.logger.Debug("Source change detected", logfields.Path(event.Name), slog.String("op", event.Op.String()))
	if w.metrics != nil {
		w.metrics.EventSeen()
	}
	stopTimer(debounce)
	debounce.Reset(w.opts.Debounce)
}

// requestRebuild coalesces: a pending rebuild absorbs further requests.
func (w *Watcher) requestRebuild() {
	select {
	case w.trigger <- struct{}{}:
	default:
	}
}

func (w *Watcher) rebuild(ctx context.Context) {
	start := time.Now()
	result, err := w.builds.Run(ctx, orchestrator.Request{Mode: orchestrator.ModeAll})
	elapsed := time.Since(start)

	switch {
	case err != nil:
		w.logger.Error("Rebuild pass failed", logfields.Error(err))
		if w.metrics != nil {
			w.metrics.RebuildFinished("error", elapsed)
		}
	case !result.OverallSuccess:
		w.logger.Warn("Rebuild pass finished with failures",
			slog.Int("failed", result.FailedCount), logfields.DurationMS(float64(elapsed.Milliseconds())))
		if w.metrics != nil {
			w.metrics.RebuildFinished("failed", elapsed)
		}
	default:
		w.logger.Info("Rebuild pass complete",
			slog.Int("built", result.Built), slog.Int("skipped", result.SkippedCount),
			logfields.DurationMS(float64(elapsed.Milliseconds())))
		if w.metrics != nil {
			w.metrics.RebuildFinished("success", elapsed)
		}
	}
}

// addWatchTree registers dir and every non-excluded subdirectory.
func (w *Watcher) addWatchTree(fsw *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return errors.IOError(err, "failed to walk watch tree")
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && w.filter.excludedDir(d.Name()) {
			return filepath.SkipDir
		}
		if err := fsw.Add(path); err != nil {
			return errors.IOError(err, "failed to watch directory")
		}
		return nil
	})
}

func stopTimer(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
}

// eventFilter decides which file system events count as source changes,
// using the same rules the fingerprint walk applies.
type eventFilter struct {
	exts         map[string]struct{}
	excludeDirs  map[string]struct{}
	excludeFiles map[string]struct{}
}

func newEventFilter(opts fingerprint.WalkOptions) eventFilter {
	f := eventFilter{
		exts:         make(map[string]struct{}, len(opts.Extensions)),
		excludeDirs:  make(map[string]struct{}, len(opts.ExcludeDirs)),
		excludeFiles: make(map[string]struct{}, len(opts.ExcludeFiles)),
	}
	for _, ext := range opts.Extensions {
		f.exts[strings.ToLower(ext)] = struct{}{}
	}
	for _, dir := range opts.ExcludeDirs {
		f.excludeDirs[dir] = struct{}{}
	}
	for _, name := range opts.ExcludeFiles {
		f.excludeFiles[name] = struct{}{}
	}
	return f
}

func (f eventFilter) excludedDir(name string) bool {
	_, ok := f.excludeDirs[name]
	return ok
}

func (f eventFilter) relevant(event fsnotify.Event) bool {
	if !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Write) &&
		!event.Op.Has(fsnotify.Remove) && !event.Op.Has(fsnotify.Rename) {
		return false
	}
	name := filepath.Base(event.Name)
	if _, ok := f.excludeFiles[name]; ok {
		return false
	}
	for _, part := range strings.Split(filepath.ToSlash(event.Name), "/") {
		if _, ok := f.excludeDirs[part]; ok {
			return false
		}
	}
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	if ext == "" {
		return false
	}
	_, ok := f.exts[ext]
	return ok
}
