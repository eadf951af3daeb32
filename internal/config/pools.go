package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// PoolOverride tunes one named connection's pool beyond the adapter's
// built-in defaults (spec.md §4.2 connection pool keyed by connection
// name).
type PoolOverride struct {
	MaxOpenConns    int    `yaml:"max-open-conns,omitempty"`
	MaxIdleConns    int    `yaml:"max-idle-conns,omitempty"`
	ConnMaxLifetime string `yaml:"conn-max-lifetime,omitempty"`
	StatementTimeout string `yaml:"statement-timeout,omitempty"`
}

func (p PoolOverride) isZero() bool {
	return p.MaxOpenConns == 0 && p.MaxIdleConns == 0 && p.ConnMaxLifetime == "" && p.StatementTimeout == ""
}

// FindConfigPath walks up from the working directory looking for
// .stratum/config.yaml, the way a project-local override file is
// discovered.
func FindConfigPath() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get working directory: %w", err)
	}

	for dir := cwd; dir != filepath.Dir(dir); dir = filepath.Dir(dir) {
		configPath := filepath.Join(dir, ".stratum", "config.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath, nil
		}
	}

	return "", fmt.Errorf("no .stratum/config.yaml found in current directory or parents")
}

// GetPoolsFromYAML reads the pools section from config.yaml, keyed by
// connection name. Returns an empty map if the section doesn't exist.
func GetPoolsFromYAML(configPath string) (map[string]PoolOverride, error) {
	data, err := os.ReadFile(configPath) // #nosec G304 - config file path from caller
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]PoolOverride{}, nil
		}
		return nil, fmt.Errorf("failed to read config.yaml: %w", err)
	}

	var cfg struct {
		Pools map[string]PoolOverride `yaml:"pools"`
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config.yaml: %w", err)
	}
	if cfg.Pools == nil {
		cfg.Pools = map[string]PoolOverride{}
	}
	return cfg.Pools, nil
}

// SetPoolInYAML writes or clears one connection's pool override in
// config.yaml, preserving other sections and comments via yaml.Node
// surgery rather than a full re-marshal.
func SetPoolInYAML(configPath, connName string, override PoolOverride) error {
	data, err := os.ReadFile(configPath) // #nosec G304 - config file path from caller
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to read config.yaml: %w", err)
	}

	var root yaml.Node
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, &root); err != nil {
			return fmt.Errorf("failed to parse config.yaml: %w", err)
		}
	}

	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		root = yaml.Node{
			Kind:    yaml.DocumentNode,
			Content: []*yaml.Node{{Kind: yaml.MappingNode}},
		}
	}

	mapping := root.Content[0]
	if mapping.Kind != yaml.MappingNode {
		root.Content[0] = &yaml.Node{Kind: yaml.MappingNode}
		mapping = root.Content[0]
	}

	poolsIndex := -1
	for i := 0; i < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == "pools" {
			poolsIndex = i
			break
		}
	}

	var poolsNode *yaml.Node
	if poolsIndex >= 0 {
		poolsNode = mapping.Content[poolsIndex+1]
	} else {
		poolsNode = &yaml.Node{Kind: yaml.MappingNode}
	}

	connIndex := -1
	for i := 0; i < len(poolsNode.Content); i += 2 {
		if poolsNode.Content[i].Value == connName {
			connIndex = i
			break
		}
	}

	overrideNode := buildPoolOverrideNode(override)
	switch {
	case connIndex >= 0 && overrideNode == nil:
		poolsNode.Content = append(poolsNode.Content[:connIndex], poolsNode.Content[connIndex+2:]...)
	case connIndex >= 0:
		poolsNode.Content[connIndex+1] = overrideNode
	case overrideNode != nil:
		poolsNode.Content = append(poolsNode.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: connName}, overrideNode)
	}

	switch {
	case poolsIndex >= 0 && len(poolsNode.Content) == 0:
		mapping.Content = append(mapping.Content[:poolsIndex], mapping.Content[poolsIndex+2:]...)
	case poolsIndex >= 0:
		mapping.Content[poolsIndex+1] = poolsNode
	case len(poolsNode.Content) > 0:
		mapping.Content = append(mapping.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: "pools"}, poolsNode)
	}

	var buf strings.Builder
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(&root); err != nil {
		return fmt.Errorf("failed to encode config.yaml: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return fmt.Errorf("failed to close encoder: %w", err)
	}

	if err := os.WriteFile(configPath, []byte(buf.String()), 0600); err != nil {
		return fmt.Errorf("failed to write config.yaml: %w", err)
	}

	if v != nil {
		if err := v.ReadInConfig(); err != nil {
			_ = err // not fatal: on disk, will be picked up on next command
		}
	}

	return nil
}

func buildPoolOverrideNode(o PoolOverride) *yaml.Node {
	if o.isZero() {
		return nil
	}

	node := &yaml.Node{Kind: yaml.MappingNode}
	add := func(key, value string) {
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: key},
			&yaml.Node{Kind: yaml.ScalarNode, Value: value})
	}
	if o.MaxOpenConns != 0 {
		add("max-open-conns", fmt.Sprintf("%d", o.MaxOpenConns))
	}
	if o.MaxIdleConns != 0 {
		add("max-idle-conns", fmt.Sprintf("%d", o.MaxIdleConns))
	}
	if o.ConnMaxLifetime != "" {
		add("conn-max-lifetime", o.ConnMaxLifetime)
	}
	if o.StatementTimeout != "" {
		add("statement-timeout", o.StatementTimeout)
	}
	return node
}

// ClearPoolInYAML removes a connection's pool override entirely.
func ClearPoolInYAML(configPath, connName string) error {
	return SetPoolInYAML(configPath, connName, PoolOverride{})
}

// ListPools returns the current pool overrides from YAML.
func ListPools(configPath string) (map[string]PoolOverride, error) {
	return GetPoolsFromYAML(configPath)
}
