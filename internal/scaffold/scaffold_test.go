package scaffold

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/plugbuild/internal/config"
	"git.home.luguber.info/inful/plugbuild/internal/errors"
	"git.home.luguber.info/inful/plugbuild/internal/workspace"
)

func newWorkspace(t *testing.T) *workspace.Workspace {
	t.Helper()
	root := t.TempDir()
	cfg, err := config.Load(filepath.Join(root, "plugbuild.yaml"))
	require.NoError(t, err)
	cfg.Workspace.Root = root
	ws, err := workspace.New(cfg)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(ws.PluginsDir(), 0o750))
	return ws
}

func TestCreateFullStackPlugin(t *testing.T) {
	ws := newWorkspace(t)
	require.NoError(t, Create(ws, Options{ID: "high-scores", Author: "ada"}))

	// The new directory must be discoverable as a full-stack plugin.
	plugin, err := ws.Find("high-scores")
	require.NoError(t, err)
	assert.True(t, plugin.HasBackend)
	assert.True(t, plugin.HasFrontend)

	mod, err := os.ReadFile(filepath.Join(plugin.Dir, "mod.rs"))
	require.NoError(t, err)
	assert.Contains(t, string(mod), "pub struct HighScores;")
	assert.Contains(t, string(mod), `author: "ada".into()`)

	index, err := os.ReadFile(filepath.Join(plugin.Dir, "index.jsx"))
	require.NoError(t, err)
	assert.Contains(t, string(index), "name: 'High Scores'")
}

func TestCreateFrontendOnlyPlugin(t *testing.T) {
	ws := newWorkspace(t)
	require.NoError(t, Create(ws, Options{ID: "snake", FrontendOnly: true}))

	plugin, err := ws.Find("snake")
	require.NoError(t, err)
	assert.False(t, plugin.HasBackend)
	assert.True(t, plugin.HasFrontend)

	_, err = os.Stat(filepath.Join(plugin.Dir, "Cargo.toml"))
	assert.True(t, os.IsNotExist(err))
}

func TestCreateRejectsInvalidIDs(t *testing.T) {
	ws := newWorkspace(t)
	for _, id := range []string{"", "Tetris", "9lives", "has space", "dot.name"} {
		err := Create(ws, Options{ID: id})
		require.Error(t, err, "id %q", id)
		assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
	}
}

func TestCreateRefusesExistingPlugin(t *testing.T) {
	ws := newWorkspace(t)
	require.NoError(t, Create(ws, Options{ID: "tetris", FrontendOnly: true}))

	err := Create(ws, Options{ID: "tetris", FrontendOnly: true})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfig))
}

func TestNameDerivation(t *testing.T) {
	assert.Equal(t, "High Scores", DisplayName("high-scores"))
	assert.Equal(t, "Save Game", DisplayName("save_game"))
	assert.Equal(t, "Tetris", DisplayName("tetris"))
	assert.Equal(t, "HighScores", StructName("high-scores"))
}
