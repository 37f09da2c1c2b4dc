package chain

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// NetworkDefinitions models the structure of configs/networks.yaml.
type NetworkDefinitions struct {
	Networks map[string]NetworkDefinition `yaml:"networks"`
}

// NetworkDefinition describes a single network endpoint definition.
type NetworkDefinition struct {
	Type        string `yaml:"type"`
	RPCURL      string `yaml:"rpc_url"`
	Description string `yaml:"description"`
}

// LoadNetworkDefinitions parses the YAML file containing network metadata.
func LoadNetworkDefinitions(path string) (NetworkDefinitions, error) {
	if strings.TrimSpace(path) == "" {
		return NetworkDefinitions{Networks: map[string]NetworkDefinition{}}, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return NetworkDefinitions{}, fmt.Errorf("读取网络配置失败: %w", err)
	}

	var defs NetworkDefinitions
	if err := yaml.Unmarshal(content, &defs); err != nil {
		return NetworkDefinitions{}, fmt.Errorf("解析网络配置失败: %w", err)
	}
	if defs.Networks == nil {
		defs.Networks = map[string]NetworkDefinition{}
	}
	return defs, nil
}
