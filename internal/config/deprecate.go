package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// legacyRetryKeys are the top-level keys that used to live directly on the
// run document before retry settings moved into the retry sub-structure
// (spec §4.1 "Deprecation migration").
var legacyRetryKeys = []string{"max_retries", "retry_delay", "jitter_factor", "retry_exceptions"}

// migrateLegacyRetryFields rewrites any of legacyRetryKeys found at the top
// level of a run document into the nested retry map, returning human-
// readable warnings for each field moved. The document must decode to a
// mapping; anything else is returned unchanged (FromYAML's strict decode
// will surface the real error).
func migrateLegacyRetryFields(raw []byte) ([]byte, []string, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return raw, nil, fmt.Errorf("op=config.migrateLegacyRetryFields: %w", err)
	}
	if len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
		return raw, nil, nil
	}
	root := doc.Content[0]

	found := map[string]*yaml.Node{}
	var keep []*yaml.Node
	var retryNode *yaml.Node
	for i := 0; i+1 < len(root.Content); i += 2 {
		key, val := root.Content[i], root.Content[i+1]
		moved := false
		for _, legacy := range legacyRetryKeys {
			if key.Value == legacy {
				found[legacy] = val
				moved = true
				break
			}
		}
		if key.Value == "retry" {
			retryNode = val
		}
		if !moved {
			keep = append(keep, key, val)
		}
	}
	if len(found) == 0 {
		return raw, nil, nil
	}

	if retryNode == nil {
		retryNode = &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		keep = append(keep, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: "retry"}, retryNode)
	}

	warnings := make([]string, 0, len(found))
	for _, legacy := range legacyRetryKeys {
		val, ok := found[legacy]
		if !ok {
			continue
		}
		retryKey := legacy
		if legacy == "max_retries" {
			retryKey = "max_retries"
		}
		retryNode.Content = append(retryNode.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: retryKey}, val)
		warnings = append(warnings, fmt.Sprintf("%s is deprecated at the top level; moved into retry.%s", legacy, retryKey))
	}

	root.Content = keep
	out, err := yaml.Marshal(&doc)
	if err != nil {
		return raw, nil, fmt.Errorf("op=config.migrateLegacyRetryFields: %w", err)
	}
	return out, warnings, nil
}
