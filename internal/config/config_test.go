package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, ".", cfg.Workspace.Root)
	assert.Equal(t, "plugins", cfg.Workspace.PluginsDir)
	assert.Equal(t, filepath.Join("app", "plugins"), cfg.Workspace.DistDir)
	assert.Equal(t, "build", cfg.Workspace.BuildDir)
	assert.Equal(t, DefaultExtensions, cfg.Build.Extensions)
	assert.Equal(t, DefaultExcludeDirs, cfg.Build.ExcludeDirs)
	assert.Contains(t, cfg.Build.ExcludeFiles, "Cargo.lock")
	assert.Equal(t, ".build_cache.json", cfg.Build.CacheFile)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plugbuild.yaml")
	raw := `workspace:
  root: /tmp/ws
  plugins_dir: mods
build:
  extensions: [rs]
guard:
  process_name: myapp
  grace_period: 2s
`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/ws", cfg.Workspace.Root)
	assert.Equal(t, "mods", cfg.Workspace.PluginsDir)
	assert.Equal(t, []string{"rs"}, cfg.Build.Extensions)
	assert.Equal(t, "myapp", cfg.Guard.ProcessName)
	assert.Equal(t, "2s", cfg.Guard.GracePeriod)
	// Sections not present in the file still get defaults.
	assert.Equal(t, "500ms", cfg.Watch.Debounce)
	assert.Equal(t, 500*time.Millisecond, cfg.Watch.DebounceDuration())
}

func TestLoadExpandsEnvironment(t *testing.T) {
	t.Setenv("PLUGBUILD_TEST_ROOT", "/srv/arcade")
	dir := t.TempDir()
	path := filepath.Join(dir, "plugbuild.yaml")
	raw := `workspace:
  root: ${PLUGBUILD_TEST_ROOT}
`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/srv/arcade", cfg.Workspace.Root)
}

func TestLoadRejectsAbsolutePluginsDir(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plugbuild.yaml")
	raw := `workspace:
  plugins_dir: /abs/plugins
`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "plugins_dir")
}

func TestLoadRejectsNATSURLWithoutSubject(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plugbuild.yaml")
	raw := `progress:
  nats:
    url: nats://localhost:4222
`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nats.subject")
}

func TestDerivedPaths(t *testing.T) {
	cfg := &Config{}
	cfg.Workspace.Root = "/ws"
	cfg.applyDefaults()

	plugins, err := cfg.PluginsPath()
	require.NoError(t, err)
	assert.Equal(t, "/ws/plugins", plugins)

	cache, err := cfg.CachePath()
	require.NoError(t, err)
	assert.Equal(t, "/ws/build/.build_cache.json", cache)

	dist, err := cfg.DistPath()
	require.NoError(t, err)
	assert.Equal(t, "/ws/app/plugins", dist)
}

func TestHistoryPathDisabled(t *testing.T) {
	disabled := false
	cfg := &Config{}
	cfg.Workspace.Root = "/ws"
	cfg.History.Enabled = &disabled
	cfg.applyDefaults()

	path, err := cfg.HistoryPath()
	require.NoError(t, err)
	assert.Empty(t, path)
}

func TestInitRefusesExistingWithoutForce(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plugbuild.yaml")
	require.NoError(t, os.WriteFile(path, []byte("workspace: {}\n"), 0o644))

	err := Init(path, false)
	require.Error(t, err)

	require.NoError(t, Init(path, true))
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "webarcade", cfg.Guard.ProcessName)
}
