package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/plugbuild/internal/errors"
)

// Config represents the application configuration.
type Config struct {
	Workspace WorkspaceConfig `yaml:"workspace"`
	Build     BuildConfig     `yaml:"build"`
	Guard     GuardConfig     `yaml:"guard"`
	Progress  ProgressConfig  `yaml:"progress"`
	Watch     WatchConfig     `yaml:"watch"`
	Package   PackageConfig   `yaml:"package"`
	History   HistoryConfig   `yaml:"history"`
}

// WorkspaceConfig describes the on-disk layout of the plugin workspace.
type WorkspaceConfig struct {
	Root       string `yaml:"root,omitempty"`
	PluginsDir string `yaml:"plugins_dir,omitempty"` // relative to root
	DistDir    string `yaml:"dist_dir,omitempty"`    // where built artifacts are collected
	BuildDir   string `yaml:"build_dir,omitempty"`   // scratch space, holds the fingerprint cache
}

// BuildConfig controls fingerprinting and staleness detection.
type BuildConfig struct {
	Extensions   []string `yaml:"extensions,omitempty"`    // file extensions that participate in fingerprints
	ExcludeDirs  []string `yaml:"exclude_dirs,omitempty"`  // directory names skipped during the walk
	ExcludeFiles []string `yaml:"exclude_files,omitempty"` // exact file names skipped (lock files)
	CacheFile    string   `yaml:"cache_file,omitempty"`    // relative to build_dir
}

// GuardConfig controls pre-build process termination. Duration fields use
// Go duration syntax ("5s", "200ms") and are validated at load time.
type GuardConfig struct {
	ProcessName  string `yaml:"process_name,omitempty"` // host binary to stop before building
	GracePeriod  string `yaml:"grace_period,omitempty"` // wait after SIGTERM before escalating
	PollInterval string `yaml:"poll_interval,omitempty"`
}

// GracePeriodDuration returns the parsed grace period. Call after Load.
func (g GuardConfig) GracePeriodDuration() time.Duration {
	d, _ := time.ParseDuration(g.GracePeriod)
	return d
}

// PollIntervalDuration returns the parsed poll interval. Call after Load.
func (g GuardConfig) PollIntervalDuration() time.Duration {
	d, _ := time.ParseDuration(g.PollInterval)
	return d
}

// ProgressConfig controls how build progress is surfaced.
type ProgressConfig struct {
	Plain   bool       `yaml:"plain,omitempty"` // disable styled terminal output
	Quiet   bool       `yaml:"quiet,omitempty"`
	NATS    NATSConfig `yaml:"nats,omitempty"`
}

// NATSConfig enables publishing build events to a NATS subject.
type NATSConfig struct {
	URL     string `yaml:"url,omitempty"`
	Subject string `yaml:"subject,omitempty"`
}

// WatchConfig controls watch mode.
type WatchConfig struct {
	Debounce      string `yaml:"debounce,omitempty"`
	SweepInterval string `yaml:"sweep_interval,omitempty"` // periodic full staleness sweep
	MetricsAddr   string `yaml:"metrics_addr,omitempty"`   // empty disables the metrics endpoint
}

// DebounceDuration returns the parsed debounce window. Call after Load.
func (w WatchConfig) DebounceDuration() time.Duration {
	d, _ := time.ParseDuration(w.Debounce)
	return d
}

// SweepIntervalDuration returns the parsed sweep interval. Call after Load.
func (w WatchConfig) SweepIntervalDuration() time.Duration {
	d, _ := time.ParseDuration(w.SweepInterval)
	return d
}

// PackageConfig carries distribution metadata for the package command.
type PackageConfig struct {
	Name        string `yaml:"name,omitempty"`
	Version     string `yaml:"version,omitempty"`
	Description string `yaml:"description,omitempty"`
	Author      string `yaml:"author,omitempty"`
	Identifier  string `yaml:"identifier,omitempty"`
	Locked      bool   `yaml:"locked,omitempty"` // skip interactive prompts, use values as-is
}

// HistoryConfig controls the build history store.
type HistoryConfig struct {
	Path    string `yaml:"path,omitempty"` // sqlite database, relative to build_dir
	Enabled *bool  `yaml:"enabled,omitempty"`
}

// DefaultExtensions are the source extensions that participate in fingerprints.
var DefaultExtensions = []string{"rs", "jsx", "js", "ts", "tsx", "json", "toml", "css", "scss"}

// DefaultExcludeDirs are directory names skipped during fingerprint walks.
var DefaultExcludeDirs = []string{"target", "node_modules", ".git"}

// DefaultExcludeFiles are file names skipped during fingerprint walks.
var DefaultExcludeFiles = []string{"Cargo.lock", "package-lock.json", "bun.lockb", "bun.lock"}

// Load loads configuration from the specified file. A missing file is not an
// error: the zero config with defaults applied is returned so the tool works
// in a bare workspace without any setup.
func Load(configPath string) (*Config, error) {
	if err := loadEnvFile(); err != nil {
		fmt.Fprintf(os.Stderr, "Note: .env file not found or couldn't be loaded: %v\n", err)
	}

	config := &Config{}
	data, err := os.ReadFile(configPath)
	if err == nil {
		// Expand environment variables in the YAML content
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), config); err != nil {
			return nil, errors.Wrap(err, errors.CategoryConfig, errors.SeverityFatal, fmt.Sprintf("failed to parse %s", configPath))
		}
	} else if !os.IsNotExist(err) {
		return nil, errors.IOError(err, fmt.Sprintf("failed to read config file %s", configPath))
	}

	config.applyDefaults()
	if err := config.validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) applyDefaults() {
	if c.Workspace.Root == "" {
		c.Workspace.Root = "."
	}
	if c.Workspace.PluginsDir == "" {
		c.Workspace.PluginsDir = "plugins"
	}
	if c.Workspace.DistDir == "" {
		c.Workspace.DistDir = filepath.Join("app", "plugins")
	}
	if c.Workspace.BuildDir == "" {
		c.Workspace.BuildDir = "build"
	}
	if len(c.Build.Extensions) == 0 {
		c.Build.Extensions = append([]string(nil), DefaultExtensions...)
	}
	if len(c.Build.ExcludeDirs) == 0 {
		c.Build.ExcludeDirs = append([]string(nil), DefaultExcludeDirs...)
	}
	if len(c.Build.ExcludeFiles) == 0 {
		c.Build.ExcludeFiles = append([]string(nil), DefaultExcludeFiles...)
	}
	if c.Build.CacheFile == "" {
		c.Build.CacheFile = ".build_cache.json"
	}
	if c.Guard.GracePeriod == "" {
		c.Guard.GracePeriod = "5s"
	}
	if c.Guard.PollInterval == "" {
		c.Guard.PollInterval = "200ms"
	}
	if c.Watch.Debounce == "" {
		c.Watch.Debounce = "500ms"
	}
	if c.Watch.SweepInterval == "" {
		c.Watch.SweepInterval = "5m"
	}
	if c.History.Path == "" {
		c.History.Path = "history.db"
	}
}

func (c *Config) validate() error {
	if filepath.IsAbs(c.Workspace.PluginsDir) {
		return errors.ValidationError("workspace.plugins_dir must be relative to workspace.root")
	}
	if filepath.IsAbs(c.Build.CacheFile) {
		return errors.ValidationError("build.cache_file must be relative to workspace.build_dir")
	}
	for name, value := range map[string]string{
		"guard.grace_period":   c.Guard.GracePeriod,
		"guard.poll_interval":  c.Guard.PollInterval,
		"watch.debounce":       c.Watch.Debounce,
		"watch.sweep_interval": c.Watch.SweepInterval,
	} {
		d, err := time.ParseDuration(value)
		if err != nil || d <= 0 {
			return errors.ValidationError(fmt.Sprintf("%s must be a positive duration, got %q", name, value))
		}
	}
	if c.Progress.NATS.URL != "" && c.Progress.NATS.Subject == "" {
		return errors.ValidationError("progress.nats.subject is required when progress.nats.url is set")
	}
	return nil
}

// Root returns the absolute workspace root.
func (c *Config) Root() (string, error) {
	root, err := filepath.Abs(c.Workspace.Root)
	if err != nil {
		return "", errors.IOError(err, "failed to resolve workspace root")
	}
	return root, nil
}

// PluginsPath returns the absolute plugins directory.
func (c *Config) PluginsPath() (string, error) {
	root, err := c.Root()
	if err != nil {
		return "", err
	}
	return filepath.Join(root, c.Workspace.PluginsDir), nil
}

// DistPath returns the absolute artifact distribution directory.
func (c *Config) DistPath() (string, error) {
	root, err := c.Root()
	if err != nil {
		return "", err
	}
	if filepath.IsAbs(c.Workspace.DistDir) {
		return c.Workspace.DistDir, nil
	}
	return filepath.Join(root, c.Workspace.DistDir), nil
}

// BuildPath returns the absolute build scratch directory.
func (c *Config) BuildPath() (string, error) {
	root, err := c.Root()
	if err != nil {
		return "", err
	}
	if filepath.IsAbs(c.Workspace.BuildDir) {
		return c.Workspace.BuildDir, nil
	}
	return filepath.Join(root, c.Workspace.BuildDir), nil
}

// CachePath returns the absolute fingerprint cache path.
func (c *Config) CachePath() (string, error) {
	buildDir, err := c.BuildPath()
	if err != nil {
		return "", err
	}
	return filepath.Join(buildDir, c.Build.CacheFile), nil
}

// HistoryPath returns the absolute build history database path, or empty when
// history is disabled.
func (c *Config) HistoryPath() (string, error) {
	if c.History.Enabled != nil && !*c.History.Enabled {
		return "", nil
	}
	buildDir, err := c.BuildPath()
	if err != nil {
		return "", err
	}
	return filepath.Join(buildDir, c.History.Path), nil
}

// loadEnvFile loads environment variables from .env/.env.local files.
// It attempts each supported filename in order and stops at the first
// successfully parsed file. Existing process environment wins.
func loadEnvFile() error {
	envPaths := []string{".env", ".env.local"}
	for _, envPath := range envPaths {
		if _, err := os.Stat(envPath); err != nil {
			continue
		}
		if err := godotenv.Load(envPath); err == nil {
			fmt.Fprintf(os.Stderr, "Loaded environment variables from %s\n", envPath)
			return nil
		}
	}
	return fmt.Errorf("no .env file found")
}
