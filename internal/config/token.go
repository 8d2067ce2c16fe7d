package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// SaveToken replaces apavital.token in the YAML file at path, leaving the
// rest of the document (comments included) as it was.
func SaveToken(path, token string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("failed to stat config file: %w", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	if root.Kind == 0 {
		root = yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{{Kind: yaml.MappingNode, Tag: "!!map"}}}
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 || root.Content[0].Kind != yaml.MappingNode {
		return errors.New("config file is not a YAML mapping")
	}

	section := mappingChild(root.Content[0], "apavital", yaml.MappingNode)
	if section.Kind != yaml.MappingNode {
		return errors.New("apavital section is not a mapping")
	}
	value := mappingChild(section, "token", yaml.ScalarNode)
	value.Kind = yaml.ScalarNode
	value.Tag = "!!str"
	value.Value = token
	value.Style = yaml.DoubleQuotedStyle

	out, err := yaml.Marshal(&root)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, out, info.Mode().Perm()); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// mappingChild returns the value node stored under key, appending a new node
// of the given kind when the key is absent.
func mappingChild(m *yaml.Node, key string, kind yaml.Kind) *yaml.Node {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return m.Content[i+1]
		}
	}
	child := &yaml.Node{Kind: kind}
	if kind == yaml.MappingNode {
		child.Tag = "!!map"
	}
	m.Content = append(m.Content,
		&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key},
		child,
	)
	return child
}
