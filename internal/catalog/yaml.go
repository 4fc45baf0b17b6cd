package catalog

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// MarshalYAML encodes the categories as an ordered YAML mapping.
func (cs Categories) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, c := range cs {
		keywords := c.Keywords
		if keywords == nil {
			keywords = []string{}
		}
		var seq yaml.Node
		if err := seq.Encode(keywords); err != nil {
			return nil, fmt.Errorf("catalog: encode %s: %w", c.Name, err)
		}
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: c.Name},
			&seq,
		)
	}
	return node, nil
}
