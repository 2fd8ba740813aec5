package provider

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"Agentrix-Chat/internal/config"
	"Agentrix-Chat/internal/web3"
	"Agentrix-Chat/internal/web3/ethereum"
)

// Registry manages a set of chain clients keyed by the chain names offered in the wizards.
type Registry struct {
	defaultChain string
	clients      map[string]web3.Client
}

// NewRegistry loads chain definitions and instantiates concrete clients.
func NewRegistry(ctx context.Context, cfg config.Web3Config) (*Registry, error) {
	defs, err := web3.LoadChainDefinitions(cfg.ChainConfig)
	if err != nil {
		return nil, err
	}

	clients := make(map[string]web3.Client)
	for name, chain := range defs.Chains {
		chainType := strings.ToLower(strings.TrimSpace(chain.Type))
		if chainType == "" {
			chainType = "evm"
		}
		switch chainType {
		case "evm":
			client, err := ethereum.NewClient(ctx, ethereum.Config{
				Name:   name,
				RPCURL: chain.RPCURL,
				Notes:  chain.Description,
			})
			if err != nil {
				closeAll(clients)
				return nil, fmt.Errorf("初始化链 %s 失败: %w", name, err)
			}
			clients[name] = client
		default:
			closeAll(clients)
			return nil, fmt.Errorf("链 %s 使用了不支持的类型 %s", name, chain.Type)
		}
	}

	defaultChain := strings.TrimSpace(cfg.DefaultChain)
	if len(clients) == 0 && strings.TrimSpace(cfg.RPCURL) != "" {
		if defaultChain == "" {
			defaultChain = "ethereum"
		}
		client, err := ethereum.NewClient(ctx, ethereum.Config{Name: defaultChain, RPCURL: cfg.RPCURL})
		if err != nil {
			return nil, err
		}
		clients[defaultChain] = client
	}

	return newRegistry(defaultChain, clients)
}

// NewStaticRegistry builds a registry from ready-made clients, mainly for tests.
func NewStaticRegistry(defaultChain string, clients ...web3.Client) (*Registry, error) {
	byName := make(map[string]web3.Client, len(clients))
	for _, client := range clients {
		if client != nil {
			byName[client.Name()] = client
		}
	}
	return newRegistry(defaultChain, byName)
}

func newRegistry(defaultChain string, clients map[string]web3.Client) (*Registry, error) {
	if len(clients) == 0 {
		return nil, errors.New("未配置任何链的 RPC 端点")
	}
	if defaultChain == "" {
		defaultChain = sortedNames(clients)[0]
	}
	if _, ok := clients[defaultChain]; !ok {
		closeAll(clients)
		return nil, fmt.Errorf("默认链 %s 未在配置中找到", defaultChain)
	}
	return &Registry{defaultChain: defaultChain, clients: clients}, nil
}

// DefaultChain returns the name of the default chain.
func (r *Registry) DefaultChain() string {
	if r == nil {
		return ""
	}
	return r.defaultChain
}

// Client returns the chain client identified by name; an empty name selects the default chain.
func (r *Registry) Client(name string) (web3.Client, bool) {
	if r == nil {
		return nil, false
	}
	if strings.TrimSpace(name) == "" {
		name = r.defaultChain
	}
	client, ok := r.clients[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		client, ok = r.clients[name]
	}
	return client, ok
}

// Close releases all clients managed by the registry.
func (r *Registry) Close() {
	if r == nil {
		return
	}
	closeAll(r.clients)
}

// Chains returns the list of registered chain names.
func (r *Registry) Chains() []string {
	if r == nil {
		return nil
	}
	return sortedNames(r.clients)
}

func sortedNames(clients map[string]web3.Client) []string {
	names := make([]string, 0, len(clients))
	for name := range clients {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func closeAll(clients map[string]web3.Client) {
	for name, client := range clients {
		if client != nil {
			client.Close()
		}
		delete(clients, name)
	}
}
