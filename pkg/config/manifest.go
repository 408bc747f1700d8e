package config

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/cuemby/edgeagent/pkg/types"
)

//go:embed manifest.yaml
var defaultManifest []byte

// Manifest is the desired state applied by the update pass
type Manifest struct {
	Artifacts []types.ArtifactDescriptor `yaml:"artifacts"`
	Schedule  types.ScheduleTable        `yaml:"schedule"`
}

// LoadManifest parses the manifest at path, or the built-in manifest when
// path is empty
func LoadManifest(path string) (*Manifest, error) {
	data := defaultManifest
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read manifest: %w", err)
		}
	}
	return ParseManifest(data)
}

// ParseManifest decodes and validates a manifest document
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}

	seen := make(map[string]bool)
	for i, a := range m.Artifacts {
		if a.Name == "" || a.RemoteURL == "" || a.LocalPath == "" {
			return nil, fmt.Errorf("artifact %d: name, url and path are required", i)
		}
		if seen[a.LocalPath] {
			return nil, fmt.Errorf("artifact %s: duplicate path %s", a.Name, a.LocalPath)
		}
		seen[a.LocalPath] = true
	}
	if m.Schedule.Version < 1 {
		m.Schedule.Version = 1
	}
	return &m, nil
}
