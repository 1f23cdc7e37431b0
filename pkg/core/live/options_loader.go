package live

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	yaml "go.yaml.in/yaml/v2"
)

// LoadOptions loads conversation options from a YAML or JSON file.
// If path is empty, it attempts to read VOXKIT_CONFIG; if still empty,
// defaults are returned. Collaborator fields (dialers, storage, hooks)
// are not serializable and must be set by the caller afterwards.
func LoadOptions(path string) (*Options, error) {
	if path == "" {
		path = os.Getenv("VOXKIT_CONFIG")
	}
	if path == "" {
		return DefaultOptions(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read options: %w", err)
	}

	opts := DefaultOptions()
	ext := filepath.Ext(path)
	if ext == ".json" {
		if err := json.Unmarshal(data, opts); err != nil {
			return nil, fmt.Errorf("parse json options: %w", err)
		}
		return opts, nil
	}
	if ext == ".yaml" || ext == ".yml" {
		if err := yaml.Unmarshal(data, opts); err != nil {
			return nil, fmt.Errorf("parse yaml options: %w", err)
		}
		return opts, nil
	}

	if err := yaml.Unmarshal(data, opts); err == nil {
		return opts, nil
	}
	if err := json.Unmarshal(data, opts); err == nil {
		return opts, nil
	}

	return nil, fmt.Errorf("unsupported options format: %s", ext)
}
