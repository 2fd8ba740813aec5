package provider

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"Agentrix-Chat/internal/config"
	"Agentrix-Chat/internal/web3"
	"Agentrix-Chat/internal/web3/ethereum"
)

func TestNewRegistryRequiresEndpoints(t *testing.T) {
	if _, err := NewRegistry(context.Background(), config.Web3Config{}); err == nil {
		t.Fatal("expected error without endpoints")
	}
}

func TestNewRegistryRejectsUnknownChainType(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chains.yaml")
	body := "chains:\n  solana:\n    type: svm\n    rpc_url: http://127.0.0.1:8899\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write chains: %v", err)
	}
	if _, err := NewRegistry(context.Background(), config.Web3Config{ChainConfig: path}); err == nil {
		t.Fatal("expected unsupported chain type error")
	}
}

func TestNewRegistryFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chains.yaml")
	body := "chains:\n  sepolia:\n    rpc_url: http://127.0.0.1:8545\n    description: local devnet\n  base:\n    rpc_url: http://127.0.0.1:9545\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write chains: %v", err)
	}
	// rpc.DialContext over HTTP does not contact the node, so no server is needed.
	reg, err := NewRegistry(context.Background(), config.Web3Config{ChainConfig: path})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	defer reg.Close()

	if diff := cmp.Diff([]string{"base", "sepolia"}, reg.Chains()); diff != "" {
		t.Fatalf("chains mismatch (-want +got):\n%s", diff)
	}
	if reg.DefaultChain() != "base" {
		t.Fatalf("default chain = %q", reg.DefaultChain())
	}
	client, ok := reg.Client("Sepolia")
	if !ok || client.Name() != "sepolia" {
		t.Fatalf("lookup should be case-insensitive, got %v %v", client, ok)
	}
	if _, ok := reg.Client("polygon"); ok {
		t.Fatal("unexpected client for unconfigured chain")
	}
}

func TestStaticRegistryDefaultsAndLookup(t *testing.T) {
	var clients []web3.Client
	for _, name := range []string{"ethereum", "polygon"} {
		c, err := ethereum.NewClient(context.Background(), ethereum.Config{Name: name, RPCURL: "http://127.0.0.1:8545"})
		if err != nil {
			t.Fatalf("NewClient: %v", err)
		}
		clients = append(clients, c)
	}
	reg, err := NewStaticRegistry("polygon", clients...)
	if err != nil {
		t.Fatalf("NewStaticRegistry: %v", err)
	}
	defer reg.Close()
	client, ok := reg.Client("")
	if !ok || client.Name() != "polygon" {
		t.Fatalf("empty name should resolve to default chain, got %v", client)
	}

	if _, err := NewStaticRegistry("missing"); err == nil {
		t.Fatal("expected error for empty registry")
	}
}
