package packaging

import (
	"encoding/json"
	"os"
	"path/filepath"

	"git.home.luguber.info/inful/plugbuild/internal/errors"
)

// manifestVersion is the on-disk format version of the package manifest.
const manifestVersion = 1

// ManifestName is the file written under the build directory.
const ManifestName = "package_manifest.json"

// Manifest describes one packaged app: its metadata and the plugin artifacts
// it ships. In locked mode the artifacts are staged copies embedded with the
// binary; in unlocked mode they are references into the dist directory.
type Manifest struct {
	Version     int              `json:"version"`
	Name        string           `json:"name"`
	AppVersion  string           `json:"app_version"`
	Description string           `json:"description,omitempty"`
	Author      string           `json:"author,omitempty"`
	Identifier  string           `json:"identifier"`
	Locked      bool             `json:"locked"`
	Plugins     []ManifestPlugin `json:"plugins"`
}

// ManifestPlugin lists one plugin's shipped artifacts, slash-relative to the
// workspace root.
type ManifestPlugin struct {
	ID        string   `json:"id"`
	Kind      string   `json:"kind"`
	Artifacts []string `json:"artifacts"`
}

func (p *Packager) writeManifest() (*Manifest, error) {
	plugins, err := p.ws.Discover()
	if err != nil {
		return nil, err
	}

	manifest := &Manifest{
		Version:     manifestVersion,
		Name:        p.cfg.Name,
		AppVersion:  p.cfg.Version,
		Description: p.cfg.Description,
		Author:      p.cfg.Author,
		Identifier:  p.Identifier(),
		Locked:      p.cfg.Locked,
		Plugins:     make([]ManifestPlugin, 0, len(plugins)),
	}

	stageDir := filepath.Join(p.ws.BuildDir(), "package", "plugins")
	if p.cfg.Locked {
		if err := os.RemoveAll(stageDir); err != nil {
			return nil, errors.IOError(err, "failed to clean package staging directory")
		}
		if err := os.MkdirAll(stageDir, 0o750); err != nil {
			return nil, errors.IOError(err, "failed to create package staging directory")
		}
	}

	for _, plugin := range plugins {
		entry := ManifestPlugin{ID: plugin.ID, Kind: plugin.Kind(), Artifacts: []string{}}
		for _, artifact := range p.ws.ArtifactPaths(plugin) {
			if _, err := os.Stat(artifact); err != nil {
				continue
			}
			shipped := artifact
			if p.cfg.Locked {
				shipped = filepath.Join(stageDir, filepath.Base(artifact))
				if err := copyFile(artifact, shipped); err != nil {
					return nil, err
				}
			}
			rel, err := filepath.Rel(p.ws.Root(), shipped)
			if err != nil {
				rel = shipped
			}
			entry.Artifacts = append(entry.Artifacts, filepath.ToSlash(rel))
		}
		manifest.Plugins = append(manifest.Plugins, entry)
	}

	if err := p.save(manifest); err != nil {
		return nil, err
	}
	return manifest, nil
}

// save writes the manifest atomically via a temp file rename.
func (p *Packager) save(manifest *Manifest) error {
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return errors.IOError(err, "failed to encode package manifest")
	}
	path := filepath.Join(p.ws.BuildDir(), ManifestName)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return errors.IOError(err, "failed to create build directory")
	}
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0o644); err != nil {
		return errors.IOError(err, "failed to write package manifest")
	}
	if err := os.Rename(tempPath, path); err != nil {
		return errors.IOError(err, "failed to finalize package manifest")
	}
	return nil
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return errors.IOError(err, "failed to read artifact for staging")
	}
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return errors.IOError(err, "failed to stage artifact")
	}
	return nil
}
