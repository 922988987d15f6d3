package fingerprint

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testWalkOptions() WalkOptions {
	return WalkOptions{
		Extensions:   []string{"rs", "js", "jsx", "toml", "json"},
		ExcludeDirs:  []string{"target", "node_modules", ".git"},
		ExcludeFiles: []string{"Cargo.lock", "package-lock.json"},
	}
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestComputeIsDeterministic(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "mod.rs", "fn main() {}")
	writeFile(t, root, "src/lib.rs", "pub fn run() {}")
	writeFile(t, root, "Cargo.toml", "[package]")

	first, err := Compute(root, testWalkOptions())
	require.NoError(t, err)
	second, err := Compute(root, testWalkOptions())
	require.NoError(t, err)

	assert.True(t, first.Equal(second))
	assert.Equal(t, first.Summary(), second.Summary())
	assert.Len(t, first.Files, 3)
}

func TestComputeIgnoresMtime(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "mod.rs", "fn main() {}")

	first, err := Compute(root, testWalkOptions())
	require.NoError(t, err)

	// Rewrite with identical content; only the mtime moves.
	writeFile(t, root, "mod.rs", "fn main() {}")
	second, err := Compute(root, testWalkOptions())
	require.NoError(t, err)

	assert.True(t, first.Equal(second))
}

func TestComputeExcludesLockFilesAndBuildDirs(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "mod.rs", "fn main() {}")
	writeFile(t, root, "Cargo.lock", "locked")
	writeFile(t, root, "target/debug/junk.rs", "junk")
	writeFile(t, root, "node_modules/pkg/index.js", "junk")
	writeFile(t, root, "notes.md", "not in the allowlist")

	fp, err := Compute(root, testWalkOptions())
	require.NoError(t, err)

	assert.Len(t, fp.Files, 1)
	assert.Contains(t, fp.Files, "mod.rs")
}

func TestFingerprintChangesOnEdit(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "mod.rs", "fn main() {}")

	before, err := Compute(root, testWalkOptions())
	require.NoError(t, err)

	writeFile(t, root, "mod.rs", "fn main() { run() }")
	after, err := Compute(root, testWalkOptions())
	require.NoError(t, err)

	assert.False(t, before.Equal(after))
	assert.Equal(t, []string{"mod.rs"}, after.ChangedPaths(before))
}

func TestFingerprintChangesOnRename(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "board.rs", "pub struct Board;")
	writeFile(t, root, "mod.rs", "mod board;")

	before, err := Compute(root, testWalkOptions())
	require.NoError(t, err)

	// Same bytes under a new name still breaks set equality.
	require.NoError(t, os.Rename(filepath.Join(root, "board.rs"), filepath.Join(root, "grid.rs")))
	after, err := Compute(root, testWalkOptions())
	require.NoError(t, err)

	assert.False(t, before.Equal(after))
	assert.Equal(t, []string{"board.rs", "grid.rs"}, after.ChangedPaths(before))
}

func TestFingerprintChangesOnAddAndRemove(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "mod.rs", "fn main() {}")

	base, err := Compute(root, testWalkOptions())
	require.NoError(t, err)

	writeFile(t, root, "extra.rs", "pub fn extra() {}")
	added, err := Compute(root, testWalkOptions())
	require.NoError(t, err)
	assert.False(t, base.Equal(added))

	require.NoError(t, os.Remove(filepath.Join(root, "extra.rs")))
	removed, err := Compute(root, testWalkOptions())
	require.NoError(t, err)
	assert.True(t, base.Equal(removed))
}

func TestEqualNilHandling(t *testing.T) {
	fp := &Fingerprint{Files: map[string]string{"a.rs": "x"}}
	var nilFP *Fingerprint

	assert.True(t, nilFP.Equal(nil))
	assert.False(t, fp.Equal(nil))
	assert.False(t, nilFP.Equal(fp))
}
