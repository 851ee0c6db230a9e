package config

import (
	"bytes"
	"fmt"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/legout/flowerpower/internal/domain"
	"github.com/legout/flowerpower/internal/fs"
)

// identifierPattern is what PipelineRegistry.New validates pipeline names
// against (spec §4.6).
var identifierPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ValidIdentifier reports whether name is a legal pipeline identifier.
func ValidIdentifier(name string) bool { return identifierPattern.MatchString(name) }

// PipelineConfig is the persisted per-pipeline defaults document (spec §3.1):
// name, version, a default RunConfig, and node-level parameter presets.
type PipelineConfig struct {
	Name    string         `yaml:"name" json:"name"`
	Version string         `yaml:"version,omitempty" json:"version,omitempty"`
	Run     RunConfig      `yaml:"run,omitempty" json:"run,omitempty"`
	Params  map[string]any `yaml:"params,omitempty" json:"params,omitempty"`
}

// NewPipelineConfig returns the default document written by
// PipelineRegistry.New for a freshly scaffolded pipeline.
func NewPipelineConfig(name string) PipelineConfig {
	return PipelineConfig{Name: name, Version: "0.1.0", Run: NewRunConfig()}
}

// Validate checks the identifier pattern and delegates to Run.Validate.
func (c PipelineConfig) Validate() error {
	if !ValidIdentifier(c.Name) {
		return domain.NewConfigValidationError("name", "must match ^[a-zA-Z_][a-zA-Z0-9_]*$")
	}
	return c.Run.Validate()
}

// ToYAML serializes with deterministic key order.
func (c PipelineConfig) ToYAML() ([]byte, error) {
	out, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("op=config.PipelineConfig.ToYAML: %w", err)
	}
	return out, nil
}

// PipelineConfigFromYAML strict-decodes raw bytes into a PipelineConfig.
func PipelineConfigFromYAML(raw []byte) (PipelineConfig, error) {
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	var c PipelineConfig
	if err := dec.Decode(&c); err != nil {
		return PipelineConfig{}, fmt.Errorf("op=config.PipelineConfigFromYAML: %w", err)
	}
	return c, nil
}

// LoadPipelineConfigFile reads and parses <cfgDir>/pipelines/<name>.yml.
func LoadPipelineConfigFile(filesystem fs.FileSystem, path string) (PipelineConfig, error) {
	raw, err := filesystem.ReadFile(path)
	if err != nil {
		return PipelineConfig{}, fmt.Errorf("op=config.LoadPipelineConfigFile: %w", err)
	}
	return PipelineConfigFromYAML(raw)
}

// SavePipelineConfigFile writes c to path.
func SavePipelineConfigFile(filesystem fs.FileSystem, path string, c PipelineConfig) error {
	raw, err := c.ToYAML()
	if err != nil {
		return fmt.Errorf("op=config.SavePipelineConfigFile: %w", err)
	}
	if err := filesystem.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("op=config.SavePipelineConfigFile: %w", err)
	}
	return nil
}
