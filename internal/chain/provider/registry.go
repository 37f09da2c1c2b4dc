package provider

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"NearIntents/internal/chain"
	"NearIntents/internal/chain/near"
)

// Config 描述链客户端注册表的构建参数。
type Config struct {
	// NetworkConfig 指向 networks.yaml；为空时退回 RPCURL 单网络模式。
	NetworkConfig  string
	RPCURL         string
	DefaultNetwork string
	Timeout        time.Duration
}

// Registry manages a set of chain clients keyed by human readable names.
type Registry struct {
	defaultNetwork string
	clients        map[string]chain.Client
}

// NewRegistry loads network definitions and instantiates concrete clients.
func NewRegistry(cfg Config) (*Registry, error) {
	defs, err := chain.LoadNetworkDefinitions(cfg.NetworkConfig)
	if err != nil {
		return nil, err
	}

	clients := make(map[string]chain.Client)
	for name, network := range defs.Networks {
		networkType := strings.ToLower(strings.TrimSpace(network.Type))
		if networkType == "" {
			networkType = "near"
		}
		switch networkType {
		case "near":
			client, err := near.NewClient(near.Config{
				Name:    name,
				RPCURL:  network.RPCURL,
				Timeout: cfg.Timeout,
				Notes:   network.Description,
			})
			if err != nil {
				return nil, fmt.Errorf("初始化网络 %s 失败: %w", name, err)
			}
			clients[name] = client
		default:
			return nil, fmt.Errorf("网络 %s 使用了不支持的类型 %s", name, network.Type)
		}
	}

	defaultNetwork := cfg.DefaultNetwork
	if len(clients) == 0 {
		rpcURL := strings.TrimSpace(cfg.RPCURL)
		if rpcURL == "" {
			rpcURL = near.DefaultRPCURL
		}
		client, err := near.NewClient(near.Config{Name: "mainnet", RPCURL: rpcURL, Timeout: cfg.Timeout})
		if err != nil {
			return nil, err
		}
		clients["mainnet"] = client
		if defaultNetwork == "" {
			defaultNetwork = "mainnet"
		}
	}

	if defaultNetwork == "" {
		names := make([]string, 0, len(clients))
		for name := range clients {
			names = append(names, name)
		}
		sort.Strings(names)
		defaultNetwork = names[0]
	}
	if _, ok := clients[defaultNetwork]; !ok {
		return nil, fmt.Errorf("默认网络 %s 未在配置中找到", defaultNetwork)
	}

	return &Registry{defaultNetwork: defaultNetwork, clients: clients}, nil
}

// DefaultClient returns the client configured as default network.
func (r *Registry) DefaultClient() (chain.Client, error) {
	if r == nil {
		return nil, errors.New("未初始化的链客户端注册表")
	}
	client, ok := r.clients[r.defaultNetwork]
	if !ok {
		return nil, fmt.Errorf("默认网络 %s 未在注册表中", r.defaultNetwork)
	}
	return client, nil
}

// Client returns the chain client identified by name.
func (r *Registry) Client(name string) (chain.Client, bool) {
	if r == nil {
		return nil, false
	}
	client, ok := r.clients[name]
	return client, ok
}

// Networks returns the list of registered network names.
func (r *Registry) Networks() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.clients))
	for name := range r.clients {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close releases all clients managed by the registry.
func (r *Registry) Close() {
	if r == nil {
		return
	}
	for name, client := range r.clients {
		if client != nil {
			client.Close()
		}
		delete(r.clients, name)
	}
}
