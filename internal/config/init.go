package config

import (
	"fmt"
	"os"
)

const exampleConfig = `# plugbuild configuration
workspace:
  root: .
  plugins_dir: plugins
  dist_dir: app/plugins
  build_dir: build

build:
  extensions: [rs, jsx, js, ts, tsx, json, toml, css, scss]
  exclude_dirs: [target, node_modules, .git]
  exclude_files: [Cargo.lock, package-lock.json, bun.lockb, bun.lock]
  cache_file: .build_cache.json

guard:
  process_name: webarcade
  grace_period: 5s
  poll_interval: 200ms

watch:
  debounce: 500ms
  sweep_interval: 5m
  # metrics_addr: :9090

# progress:
#   nats:
#     url: ${NATS_URL}
#     subject: plugbuild.events

package:
  name: MyApp
  version: 0.1.0
  author: ""
  identifier: com.example.myapp
`

// Init creates a new configuration file with example content.
func Init(configPath string, force bool) error {
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", configPath)
	}
	if err := os.WriteFile(configPath, []byte(exampleConfig), 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
