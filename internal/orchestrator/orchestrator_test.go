package orchestrator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/plugbuild/internal/config"
	pkgerrors "git.home.luguber.info/inful/plugbuild/internal/errors"
	"git.home.luguber.info/inful/plugbuild/internal/fingerprint"
	"git.home.luguber.info/inful/plugbuild/internal/workspace"
)

// fakeBackend records invocations and writes the expected artifacts on
// success, like a real bundler or compiler would.
type fakeBackend struct {
	mu      sync.Mutex
	ws      *workspace.Workspace
	built   []string
	failFor map[string]error
	steps   []string
}

func newFakeBackend(ws *workspace.Workspace) *fakeBackend {
	return &fakeBackend{ws: ws, failFor: map[string]error{}}
}

func (f *fakeBackend) Build(_ context.Context, plugin workspace.Plugin, onStep func(string)) error {
	f.mu.Lock()
	f.built = append(f.built, plugin.ID)
	f.mu.Unlock()

	for _, step := range f.steps {
		onStep(step)
	}
	if err := f.failFor[plugin.ID]; err != nil {
		return err
	}
	for _, path := range f.ws.ArtifactPaths(plugin) {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return err
		}
		if err := os.WriteFile(path, []byte("artifact"), 0o644); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeBackend) invocations() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.built...)
}

type fixture struct {
	ws      *workspace.Workspace
	cache   *fingerprint.Cache
	backend *fakeBackend
	orch    *Orchestrator
	cfg     *config.Config
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	cfg, err := config.Load(filepath.Join(root, "plugbuild.yaml"))
	require.NoError(t, err)
	cfg.Workspace.Root = root

	ws, err := workspace.New(cfg)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(ws.PluginsDir(), 0o750))

	cachePath, err := cfg.CachePath()
	require.NoError(t, err)
	cache := fingerprint.NewCache(cachePath)
	backend := newFakeBackend(ws)
	walkOpts := fingerprint.WalkOptions{
		Extensions:   cfg.Build.Extensions,
		ExcludeDirs:  cfg.Build.ExcludeDirs,
		ExcludeFiles: cfg.Build.ExcludeFiles,
	}
	orch := New(ws, cache, walkOpts, backend, NewBus())
	return &fixture{ws: ws, cache: cache, backend: backend, orch: orch, cfg: cfg}
}

func (fx *fixture) addPlugin(t *testing.T, id string) {
	t.Helper()
	dir := filepath.Join(fx.ws.PluginsDir(), id)
	require.NoError(t, os.MkdirAll(dir, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "mod.rs"), []byte("fn "+id+"() {}"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Cargo.toml"), []byte("[package]\nname = \""+id+"\""), 0o644))
}

func (fx *fixture) editPlugin(t *testing.T, id string) {
	t.Helper()
	path := filepath.Join(fx.ws.PluginsDir(), id, "mod.rs")
	require.NoError(t, os.WriteFile(path, []byte("fn "+id+"() { changed() }"), 0o644))
}

func TestRunBuildsEverythingFirstTime(t *testing.T) {
	fx := newFixture(t)
	fx.addPlugin(t, "tetris")
	fx.addPlugin(t, "snake")

	result, err := fx.orch.Run(context.Background(), Request{Mode: ModeAll})
	require.NoError(t, err)

	assert.True(t, result.OverallSuccess)
	assert.Equal(t, 2, result.Built)
	assert.ElementsMatch(t, []string{"tetris", "snake"}, fx.backend.invocations())
}

func TestSecondRunIsIdempotent(t *testing.T) {
	fx := newFixture(t)
	fx.addPlugin(t, "tetris")

	_, err := fx.orch.Run(context.Background(), Request{Mode: ModeAll})
	require.NoError(t, err)

	result, err := fx.orch.Run(context.Background(), Request{Mode: ModeAll})
	require.NoError(t, err)

	// No backend invocation on the second run.
	assert.Len(t, fx.backend.invocations(), 1)
	assert.True(t, result.OverallSuccess)
	assert.Equal(t, 1, result.SkippedCount)
	assert.Equal(t, fingerprint.ReasonFresh, result.PerPlugin["tetris"].Reason)
}

func TestEditTriggersRebuildOfThatPluginOnly(t *testing.T) {
	fx := newFixture(t)
	fx.addPlugin(t, "tetris")
	fx.addPlugin(t, "snake")

	_, err := fx.orch.Run(context.Background(), Request{Mode: ModeAll})
	require.NoError(t, err)

	fx.editPlugin(t, "snake")
	result, err := fx.orch.Run(context.Background(), Request{Mode: ModeAll})
	require.NoError(t, err)

	assert.Equal(t, []string{"snake", "tetris", "snake"}, fx.backend.invocations())
	assert.Equal(t, fingerprint.ReasonFresh, result.PerPlugin["tetris"].Reason)
	assert.Equal(t, fingerprint.ReasonSourceChanged, result.PerPlugin["snake"].Reason)
}

func TestMissingArtifactTriggersRebuild(t *testing.T) {
	fx := newFixture(t)
	fx.addPlugin(t, "tetris")

	_, err := fx.orch.Run(context.Background(), Request{Mode: ModeAll})
	require.NoError(t, err)

	plugin, err := fx.ws.Find("tetris")
	require.NoError(t, err)
	for _, path := range fx.ws.ArtifactPaths(plugin) {
		require.NoError(t, os.Remove(path))
	}

	result, err := fx.orch.Run(context.Background(), Request{Mode: ModeAll})
	require.NoError(t, err)
	assert.Len(t, fx.backend.invocations(), 2)
	assert.Equal(t, fingerprint.ReasonMissingOutput, result.PerPlugin["tetris"].Reason)
}

func TestForceBypassesStaleness(t *testing.T) {
	fx := newFixture(t)
	fx.addPlugin(t, "tetris")

	_, err := fx.orch.Run(context.Background(), Request{Mode: ModeAll})
	require.NoError(t, err)
	_, err = fx.orch.Run(context.Background(), Request{Mode: ModeAll, Force: true})
	require.NoError(t, err)

	assert.Len(t, fx.backend.invocations(), 2)
}

// Workspace {A, B, C}: A is fresh, B's source changed, C's artifact is
// missing, and C's backend fails. Expected: backends dispatched for B and C
// only, A skipped, overall failure with per-plugin outcomes intact.
func TestPartialFailureIsolation(t *testing.T) {
	fx := newFixture(t)
	fx.addPlugin(t, "alpha")
	fx.addPlugin(t, "beta")
	fx.addPlugin(t, "gamma")

	_, err := fx.orch.Run(context.Background(), Request{Mode: ModeAll})
	require.NoError(t, err)

	fx.editPlugin(t, "beta")
	plugin, err := fx.ws.Find("gamma")
	require.NoError(t, err)
	for _, path := range fx.ws.ArtifactPaths(plugin) {
		require.NoError(t, os.Remove(path))
	}
	fx.backend.failFor["gamma"] = errors.New("linker exploded")

	result, err := fx.orch.Run(context.Background(), Request{Mode: ModeAll})
	require.NoError(t, err)

	assert.False(t, result.OverallSuccess)
	assert.Equal(t, []string{"alpha", "beta", "gamma", "beta", "gamma"}, fx.backend.invocations())

	assert.Equal(t, StatusComplete, result.PerPlugin["alpha"].Status)
	assert.True(t, result.PerPlugin["alpha"].Skipped)
	assert.Equal(t, StatusComplete, result.PerPlugin["beta"].Status)
	assert.Equal(t, StatusFailed, result.PerPlugin["gamma"].Status)
	assert.Contains(t, result.PerPlugin["gamma"].Error, "linker exploded")
}

func TestFailedBuildLeavesCacheUntouched(t *testing.T) {
	fx := newFixture(t)
	fx.addPlugin(t, "tetris")

	fx.backend.failFor["tetris"] = errors.New("compile error")
	_, err := fx.orch.Run(context.Background(), Request{Mode: ModeAll})
	require.NoError(t, err)

	// After the failure is fixed the plugin must rebuild, not be mistaken
	// for fresh.
	delete(fx.backend.failFor, "tetris")
	result, err := fx.orch.Run(context.Background(), Request{Mode: ModeAll})
	require.NoError(t, err)

	assert.Len(t, fx.backend.invocations(), 2)
	assert.True(t, result.OverallSuccess)
	assert.Equal(t, 1, result.Built)
}

func TestSinglePluginMode(t *testing.T) {
	fx := newFixture(t)
	fx.addPlugin(t, "tetris")
	fx.addPlugin(t, "snake")

	result, err := fx.orch.Run(context.Background(), Request{Mode: ModeSingle, PluginName: "tetris"})
	require.NoError(t, err)

	assert.Equal(t, []string{"tetris"}, fx.backend.invocations())
	assert.Len(t, result.PerPlugin, 1)
}

func TestUnknownPluginIsFatalBeforeDispatch(t *testing.T) {
	fx := newFixture(t)
	fx.addPlugin(t, "tetris")

	_, err := fx.orch.Run(context.Background(), Request{Mode: ModeSingle, PluginName: "pong"})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCategory(err, pkgerrors.CategoryConfig))
	assert.Empty(t, fx.backend.invocations())
}

func TestNoRebuildUsesExistingArtifact(t *testing.T) {
	fx := newFixture(t)
	fx.addPlugin(t, "tetris")

	_, err := fx.orch.Run(context.Background(), Request{Mode: ModeAll})
	require.NoError(t, err)

	// Stale source but artifact on disk: no-rebuild reuses it.
	fx.editPlugin(t, "tetris")
	result, err := fx.orch.Run(context.Background(), Request{Mode: ModeAll, NoRebuild: true})
	require.NoError(t, err)

	assert.Len(t, fx.backend.invocations(), 1)
	assert.True(t, result.OverallSuccess)
	assert.True(t, result.PerPlugin["tetris"].Cached)
}

func TestNoRebuildFailsWithoutArtifact(t *testing.T) {
	fx := newFixture(t)
	fx.addPlugin(t, "tetris")

	result, err := fx.orch.Run(context.Background(), Request{Mode: ModeAll, NoRebuild: true})
	require.NoError(t, err)

	assert.False(t, result.OverallSuccess)
	assert.Equal(t, StatusFailed, result.PerPlugin["tetris"].Status)
	assert.Empty(t, fx.backend.invocations())
}

func TestEventsNarrateTheRun(t *testing.T) {
	fx := newFixture(t)
	fx.addPlugin(t, "tetris")
	fx.backend.steps = []string{"frontend", "cargo"}

	var names []string
	fx.orch.Bus().SubscribeAll(func(e Event) error {
		names = append(names, e.Name())
		return nil
	})

	_, err := fx.orch.Run(context.Background(), Request{Mode: ModeAll})
	require.NoError(t, err)

	assert.Equal(t, []string{
		EventRunStarted,
		EventTaskStarted,
		EventStepStarted,
		EventStepStarted,
		EventTaskCompleted,
		EventRunCompleted,
	}, names)
}

func TestGuardRunsBeforeFirstBuild(t *testing.T) {
	fx := newFixture(t)
	fx.addPlugin(t, "tetris")

	var order []string
	fx.orch.WithGuard(guardFunc(func(context.Context) (int, error) {
		order = append(order, "guard")
		return 1, nil
	}))
	fx.orch.Bus().Subscribe(EventTaskStarted, func(Event) error {
		order = append(order, "build")
		return nil
	})

	_, err := fx.orch.Run(context.Background(), Request{Mode: ModeAll})
	require.NoError(t, err)
	assert.Equal(t, []string{"guard", "build"}, order)
}

func TestGuardWarningDoesNotBlockRun(t *testing.T) {
	fx := newFixture(t)
	fx.addPlugin(t, "tetris")

	fx.orch.WithGuard(guardFunc(func(context.Context) (int, error) {
		return 0, errors.New("one process survived")
	}))

	result, err := fx.orch.Run(context.Background(), Request{Mode: ModeAll})
	require.NoError(t, err)
	assert.True(t, result.OverallSuccess)
	assert.Len(t, fx.backend.invocations(), 1)
}

type guardFunc func(context.Context) (int, error)

func (f guardFunc) Acquire(ctx context.Context) (int, error) { return f(ctx) }
