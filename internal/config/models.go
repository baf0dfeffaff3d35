package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ModelEntry maps a model name to the environment variable holding its API
// key. An empty key means the adapter needs no credentials.
type ModelEntry struct {
	Name   string `yaml:"name"`
	EnvKey string `yaml:"env_key"`
}

// ModelsConfig is the on-disk model/credential key map.
type ModelsConfig struct {
	Models []ModelEntry `yaml:"models"`
}

// DefaultModelsConfig is used when no file is configured.
func DefaultModelsConfig() ModelsConfig {
	return ModelsConfig{Models: []ModelEntry{
		{Name: "mock", EnvKey: ""},
		{Name: "runway", EnvKey: "RUNWAY_API_KEY"},
	}}
}

// LoadModelsConfig reads the YAML key map from path, or returns the defaults
// when path is empty.
func LoadModelsConfig(path string) (ModelsConfig, error) {
	if path == "" {
		return DefaultModelsConfig(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return ModelsConfig{}, fmt.Errorf("op=config.models: %w", err)
	}
	var mc ModelsConfig
	if err := yaml.Unmarshal(b, &mc); err != nil {
		return ModelsConfig{}, fmt.Errorf("op=config.models: %w", err)
	}
	if len(mc.Models) == 0 {
		return ModelsConfig{}, fmt.Errorf("op=config.models: no models defined in %s", path)
	}
	return mc, nil
}
