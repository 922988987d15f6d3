// Package fingerprint provides functionality for incremental builds based on
// content hashing of plugin source trees.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"git.home.luguber.info/inful/plugbuild/internal/errors"
)

// Fingerprint captures the source state of one plugin: a content hash per
// tracked file, keyed by path relative to the plugin source root. Two
// fingerprints are equal iff the file sets match exactly, so added, removed,
// or renamed files all break equality.
type Fingerprint struct {
	Files     map[string]string `json:"files"`
	Timestamp time.Time         `json:"timestamp"`
}

// WalkOptions control which files participate in a fingerprint.
type WalkOptions struct {
	Extensions   []string // without leading dot
	ExcludeDirs  []string // directory names pruned from the walk
	ExcludeFiles []string // exact file names skipped
}

// Compute walks the plugin source tree and hashes every file whose extension
// is in the allowlist. Hashing is content based; mtimes never enter the
// digest. An unreadable file aborts the computation so callers can treat the
// plugin conservatively as stale.
func Compute(sourceRoot string, opts WalkOptions) (*Fingerprint, error) {
	extSet := make(map[string]struct{}, len(opts.Extensions))
	for _, ext := range opts.Extensions {
		extSet[strings.TrimPrefix(ext, ".")] = struct{}{}
	}
	dirSet := make(map[string]struct{}, len(opts.ExcludeDirs))
	for _, dir := range opts.ExcludeDirs {
		dirSet[dir] = struct{}{}
	}
	fileSet := make(map[string]struct{}, len(opts.ExcludeFiles))
	for _, name := range opts.ExcludeFiles {
		fileSet[name] = struct{}{}
	}

	files := make(map[string]string)
	err := filepath.WalkDir(sourceRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if _, excluded := dirSet[d.Name()]; excluded && path != sourceRoot {
				return filepath.SkipDir
			}
			return nil
		}
		if _, excluded := fileSet[d.Name()]; excluded {
			return nil
		}
		ext := strings.TrimPrefix(filepath.Ext(d.Name()), ".")
		if _, ok := extSet[ext]; !ok {
			return nil
		}

		rel, err := filepath.Rel(sourceRoot, path)
		if err != nil {
			return err
		}
		hash, err := hashFile(path)
		if err != nil {
			return err
		}
		// Forward slashes keep the cache portable across platforms.
		files[filepath.ToSlash(rel)] = hash
		return nil
	})
	if err != nil {
		return nil, errors.IOError(err, fmt.Sprintf("failed to fingerprint %s", sourceRoot))
	}

	return &Fingerprint{Files: files, Timestamp: time.Now().UTC()}, nil
}

// Equal reports whether two fingerprints describe the same source state.
// Timestamps are bookkeeping and do not participate in equality.
func (f *Fingerprint) Equal(other *Fingerprint) bool {
	if f == nil || other == nil {
		return f == other
	}
	if len(f.Files) != len(other.Files) {
		return false
	}
	for path, hash := range f.Files {
		if other.Files[path] != hash {
			return false
		}
	}
	return true
}

// ChangedPaths returns the paths added, removed, or modified relative to a
// previous fingerprint, sorted. Used for diagnostics only.
func (f *Fingerprint) ChangedPaths(prev *Fingerprint) []string {
	changed := make(map[string]struct{})
	if f != nil {
		for path, hash := range f.Files {
			if prev == nil || prev.Files[path] != hash {
				changed[path] = struct{}{}
			}
		}
	}
	if prev != nil {
		for path := range prev.Files {
			if f == nil || f.Files[path] == "" {
				changed[path] = struct{}{}
			}
		}
	}
	paths := make([]string, 0, len(changed))
	for path := range changed {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

// Summary returns a short combined hash over the file set, for log lines.
func (f *Fingerprint) Summary() string {
	if f == nil || len(f.Files) == 0 {
		return "empty"
	}
	lines := make([]string, 0, len(f.Files))
	for path, hash := range f.Files {
		lines = append(lines, path+":"+hash)
	}
	sort.Strings(lines)
	sum := sha256.Sum256([]byte(strings.Join(lines, "\n")))
	return hex.EncodeToString(sum[:])[:12]
}

func hashFile(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return "", err
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}
