package config

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/legout/flowerpower/internal/fs"
)

// ToYAML serializes c with deterministic key order (yaml.v3 preserves
// struct-field declaration order on Marshal, spec §4.1 "must emit keys in
// deterministic order").
func (c RunConfig) ToYAML() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return nil, fmt.Errorf("op=config.ToYAML: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("op=config.ToYAML: %w", err)
	}
	return buf.Bytes(), nil
}

// FromYAML parses raw YAML bytes into a RunConfig, applying the legacy
// retry-field migration (spec §4.1) before strict field decoding.
func FromYAML(raw []byte) (RunConfig, []string, error) {
	migrated, warnings, err := migrateLegacyRetryFields(raw)
	if err != nil {
		return RunConfig{}, nil, fmt.Errorf("op=config.FromYAML: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(migrated))
	dec.KnownFields(true)
	var c RunConfig
	if err := dec.Decode(&c); err != nil {
		return RunConfig{}, warnings, fmt.Errorf("op=config.FromYAML: %w", err)
	}
	return c, warnings, nil
}

// LoadRunConfigFile reads path via filesystem and parses it with FromYAML.
func LoadRunConfigFile(filesystem fs.FileSystem, path string) (RunConfig, []string, error) {
	raw, err := filesystem.ReadFile(path)
	if err != nil {
		return RunConfig{}, nil, fmt.Errorf("op=config.LoadRunConfigFile: %w", err)
	}
	return FromYAML(raw)
}

// SaveRunConfigFile writes c to path via filesystem. Callers that loaded a
// config containing deprecated top-level retry fields should call this to
// rewrite the file without them, per spec §4.1's "rewritten on next save".
func SaveRunConfigFile(filesystem fs.FileSystem, path string, c RunConfig) error {
	raw, err := c.ToYAML()
	if err != nil {
		return fmt.Errorf("op=config.SaveRunConfigFile: %w", err)
	}
	if err := filesystem.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("op=config.SaveRunConfigFile: %w", err)
	}
	return nil
}

// ToDict renders c as a generic map for callers that need total, symmetric
// serialization without a concrete struct (spec §4.1 to_dict). Implemented
// via a YAML round trip so dict and YAML views never drift apart.
func (c RunConfig) ToDict() (map[string]any, error) {
	raw, err := c.ToYAML()
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("op=config.ToDict: %w", err)
	}
	if m == nil {
		m = map[string]any{}
	}
	return m, nil
}

// FromDict builds a RunConfig from a generic map (spec §4.1 from_dict).
// Unknown keys are rejected (strict) unless present in the documented
// deprecation list, matching FromYAML's behavior since both go through the
// same migration + strict-decode path.
func FromDict(m map[string]any) (RunConfig, []string, error) {
	raw, err := yaml.Marshal(m)
	if err != nil {
		return RunConfig{}, nil, fmt.Errorf("op=config.FromDict: %w", err)
	}
	return FromYAML(raw)
}

// MergeDict returns a new RunConfig with the dict's values applied on top of
// c (spec §4.1 merge_dict).
func (c RunConfig) MergeDict(m map[string]any) (RunConfig, error) {
	other, warnings, err := FromDict(m)
	if err != nil {
		return RunConfig{}, err
	}
	_ = warnings
	return c.Merge(other), nil
}
