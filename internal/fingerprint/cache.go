package fingerprint

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"git.home.luguber.info/inful/plugbuild/internal/errors"
	"git.home.luguber.info/inful/plugbuild/internal/logfields"
)

const cacheVersion = 1

// Cache is the persistent mapping from plugin name to the fingerprint of its
// last successful build. It is loaded once at orchestration start, mutated in
// memory as plugins build, and written back atomically.
type Cache struct {
	path   string
	logger *slog.Logger

	mu      sync.RWMutex
	entries map[string]*Fingerprint
}

// cacheFile is the on-disk shape. A version field guards against reading a
// future schema as garbage.
type cacheFile struct {
	Version int                     `json:"version"`
	Plugins map[string]*Fingerprint `json:"plugins"`
}

// NewCache creates a cache bound to the given file path. Nothing is read
// until Load.
func NewCache(path string) *Cache {
	return &Cache{
		path:    path,
		logger:  slog.Default(),
		entries: make(map[string]*Fingerprint),
	}
}

// WithLogger sets a custom logger.
func (c *Cache) WithLogger(logger *slog.Logger) *Cache {
	c.logger = logger
	return c
}

// Load reads the cache file. A missing file yields an empty cache. A corrupt
// or incompatible file is discarded with a warning, never a fatal error: the
// worst case is a full rebuild.
func (c *Cache) Load() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*Fingerprint)

	data, err := os.ReadFile(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.IOError(err, fmt.Sprintf("failed to read build cache %s", c.path))
	}

	var file cacheFile
	if err := json.Unmarshal(data, &file); err != nil {
		c.logger.Warn("Discarding corrupt build cache",
			logfields.Path(c.path), logfields.Error(err))
		return nil
	}
	if file.Version != cacheVersion {
		c.logger.Warn("Discarding build cache with unsupported version",
			logfields.Path(c.path), slog.Int("version", file.Version))
		return nil
	}
	if file.Plugins != nil {
		c.entries = file.Plugins
	}
	return nil
}

// Get returns the cached fingerprint for a plugin, or nil when none exists.
func (c *Cache) Get(plugin string) *Fingerprint {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.entries[plugin]
}

// Put records a plugin's fingerprint in memory. Save persists it.
func (c *Cache) Put(plugin string, fp *Fingerprint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[plugin] = fp
}

// Delete removes a plugin's entry, forcing a rebuild on the next run.
func (c *Cache) Delete(plugin string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, plugin)
}

// Plugins returns the plugin names present in the cache.
func (c *Cache) Plugins() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.entries))
	for name := range c.entries {
		names = append(names, name)
	}
	return names
}

// Save writes the cache to disk. The write goes to a temporary file that is
// atomically renamed over the previous one, so a crash mid-write can never
// leave a partially written cache for the next run to read.
func (c *Cache) Save() error {
	c.mu.RLock()
	file := cacheFile{Version: cacheVersion, Plugins: c.entries}
	data, err := json.MarshalIndent(file, "", "  ")
	c.mu.RUnlock()
	if err != nil {
		return errors.Wrap(err, errors.CategoryCache, errors.SeverityError, "failed to marshal build cache")
	}

	if err := os.MkdirAll(filepath.Dir(c.path), 0o750); err != nil {
		return errors.IOError(err, "failed to create cache directory")
	}

	tempPath := c.path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0o644); err != nil {
		return errors.IOError(err, "failed to write build cache to temporary file")
	}
	if err := os.Rename(tempPath, c.path); err != nil {
		return errors.IOError(err, "failed to replace build cache file")
	}
	return nil
}
