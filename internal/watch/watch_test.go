package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/plugbuild/internal/config"
	"git.home.luguber.info/inful/plugbuild/internal/fingerprint"
	"git.home.luguber.info/inful/plugbuild/internal/orchestrator"
	"git.home.luguber.info/inful/plugbuild/internal/workspace"
)

type countingBuilds struct {
	mu   sync.Mutex
	runs int
}

func (c *countingBuilds) Run(_ context.Context, _ orchestrator.Request) (*orchestrator.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.runs++
	return &orchestrator.Result{OverallSuccess: true}, nil
}

func (c *countingBuilds) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.runs
}

func defaultWalkOpts() fingerprint.WalkOptions {
	return fingerprint.WalkOptions{
		Extensions:   config.DefaultExtensions,
		ExcludeDirs:  config.DefaultExcludeDirs,
		ExcludeFiles: config.DefaultExcludeFiles,
	}
}

func TestEventFilterRelevance(t *testing.T) {
	filter := newEventFilter(defaultWalkOpts())

	tests := []struct {
		name string
		path string
		op   fsnotify.Op
		want bool
	}{
		{"rust source write", "plugins/snake/mod.rs", fsnotify.Write, true},
		{"jsx create", "plugins/snake/index.jsx", fsnotify.Create, true},
		{"toml rename", "plugins/snake/Cargo.toml", fsnotify.Rename, true},
		{"source removed", "plugins/snake/util.ts", fsnotify.Remove, true},
		{"chmod only", "plugins/snake/mod.rs", fsnotify.Chmod, false},
		{"lock file", "plugins/snake/Cargo.lock", fsnotify.Write, false},
		{"inside target", "plugins/snake/target/debug/out.rs", fsnotify.Write, false},
		{"inside node_modules", "plugins/snake/node_modules/x/index.js", fsnotify.Write, false},
		{"unknown extension", "plugins/snake/readme.md", fsnotify.Write, false},
		{"no extension", "plugins/snake/Makefile", fsnotify.Write, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			event := fsnotify.Event{Name: filepath.FromSlash(tc.path), Op: tc.op}
			assert.Equal(t, tc.want, filter.relevant(event))
		})
	}
}

func TestEventFilterExcludedDir(t *testing.T) {
	filter := newEventFilter(defaultWalkOpts())
	assert.True(t, filter.excludedDir("node_modules"))
	assert.True(t, filter.excludedDir(".git"))
	assert.False(t, filter.excludedDir("snake"))
}

func TestRequestRebuildCoalesces(t *testing.T) {
	w := New(nil, nil, defaultWalkOpts(), Options{})

	w.requestRebuild()
	w.requestRebuild()
	w.requestRebuild()

	<-w.trigger
	select {
	case <-w.trigger:
		t.Fatal("expected pending rebuilds to coalesce into one")
	default:
	}
}

func TestWatchRebuildsOnSourceChange(t *testing.T) {
	root := t.TempDir()
	cfg, err := config.Load(filepath.Join(root, "missing.yaml"))
	require.NoError(t, err)
	cfg.Workspace.Root = root

	ws, err := workspace.New(cfg)
	require.NoError(t, err)

	pluginDir := filepath.Join(ws.PluginsDir(), "snake")
	require.NoError(t, os.MkdirAll(pluginDir, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(pluginDir, "index.js"), []byte("v1"), 0o644))

	builds := &countingBuilds{}
	w := New(ws, builds, defaultWalkOpts(), Options{Debounce: 50 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()

	// The initial pass runs unconditionally.
	require.Eventually(t, func() bool { return builds.count() >= 1 }, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(pluginDir, "index.js"), []byte("v2"), 0o644))

	require.Eventually(t, func() bool { return builds.count() >= 2 }, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop on context cancellation")
	}
}

func TestWatchIgnoresIrrelevantFiles(t *testing.T) {
	root := t.TempDir()
	cfg, err := config.Load(filepath.Join(root, "missing.yaml"))
	require.NoError(t, err)
	cfg.Workspace.Root = root

	ws, err := workspace.New(cfg)
	require.NoError(t, err)

	pluginDir := filepath.Join(ws.PluginsDir(), "snake")
	require.NoError(t, os.MkdirAll(pluginDir, 0o750))

	builds := &countingBuilds{}
	w := New(ws, builds, defaultWalkOpts(), Options{Debounce: 50 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()

	require.Eventually(t, func() bool { return builds.count() >= 1 }, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(pluginDir, "notes.md"), []byte("ignored"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(pluginDir, "Cargo.lock"), []byte("ignored"), 0o644))

	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, 1, builds.count(), "irrelevant files must not trigger rebuilds")
}

func TestMetricsRecords(t *testing.T) {
	m := NewMetrics(nil)

	m.EventSeen()
	m.RebuildFinished("success", 100*time.Millisecond)
	m.RebuildFinished("failed", 50*time.Millisecond)

	families, err := m.registry.Gather()
	require.NoError(t, err)

	byName := map[string]bool{}
	for _, mf := range families {
		byName[mf.GetName()] = true
	}
	assert.True(t, byName["plugbuild_watch_source_events_total"])
	assert.True(t, byName["plugbuild_watch_rebuilds_total"])
	assert.True(t, byName["plugbuild_watch_rebuild_duration_seconds"])
}
