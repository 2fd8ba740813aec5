package issuance

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient/simulated"

	xerrors "Agentrix-Chat/internal/errors"
	"Agentrix-Chat/internal/task"
	"Agentrix-Chat/internal/web3"
	"Agentrix-Chat/internal/web3/ethereum"
	"Agentrix-Chat/internal/web3/provider"
	"Agentrix-Chat/internal/wizard"
)

// init code that returns a tiny runtime and ignores appended constructor arguments.
const simpleBytecode = "0x6027600c60003960276000f37f0102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f2060006000a100"

func newExecutor(t *testing.T, funded bool) *ChainExecutor {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	alloc := types.GenesisAlloc{}
	if funded {
		alloc[crypto.PubkeyToAddress(key.PublicKey)] = types.Account{Balance: big.NewInt(1_000_000_000_000_000_000)}
	} else {
		other, _ := crypto.GenerateKey()
		alloc[crypto.PubkeyToAddress(other.PublicKey)] = types.Account{Balance: big.NewInt(1)}
	}
	client := ethereum.NewSimulatedClient("ethereum", simulated.NewBackend(alloc))
	registry, err := provider.NewStaticRegistry("ethereum", client)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	t.Cleanup(registry.Close)
	return mustExecutor(t, registry, key)
}

func mustExecutor(t *testing.T, chains Chains, key *ecdsa.PrivateKey) *ChainExecutor {
	t.Helper()
	exec, err := NewChainExecutor(chains, key,
		WithArtifact(wizard.KindTokenIssuance, web3.Artifact{ABI: tokenABI, Bytecode: common.FromHex(simpleBytecode)}))
	if err != nil {
		t.Fatalf("NewChainExecutor: %v", err)
	}
	return exec
}

func tokenTask(chain string) *task.Task {
	return &task.Task{
		ID:         "task-1",
		WizardKind: string(wizard.KindTokenIssuance),
		Fields: map[string]any{
			"name":         "Agentrix",
			"symbol":       "AGX",
			"decimals":     float64(18),
			"total_supply": "1000000",
			"chain":        chain,
		},
	}
}

func TestChainExecutorDeploysToken(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	exec := newExecutor(t, true)

	result, err := exec.Execute(ctx, tokenTask("ethereum"))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !common.IsHexAddress(result.ContractAddress) || result.ContractAddress == (common.Address{}).Hex() {
		t.Fatalf("unexpected contract address %q", result.ContractAddress)
	}
	if result.TxHash == "" || result.ChainID != "0x539" || result.BlockNumber == "" || result.Reference != "task-1" {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestChainExecutorRejections(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cases := []struct {
		name     string
		funded   bool
		task     *task.Task
		wantCode xerrors.Code
	}{
		{name: "unknown chain", funded: true, task: tokenTask("solana"), wantCode: xerrors.CodeInvalidArgument},
		{name: "missing artifact", funded: true, task: &task.Task{ID: "nft", WizardKind: string(wizard.KindNFTCollection)}, wantCode: xerrors.CodeInvalidArgument},
		{name: "unfunded deployer", funded: false, task: tokenTask("ethereum"), wantCode: xerrors.CodeExecutorFailure},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			exec := newExecutor(t, tc.funded)
			_, err := exec.Execute(ctx, tc.task)
			if xerrors.CodeOf(err) != tc.wantCode {
				t.Fatalf("code = %s, want %s (%v)", xerrors.CodeOf(err), tc.wantCode, err)
			}
			if xerrors.RetryableError(err) {
				t.Fatalf("%s must not be retried", tc.name)
			}
		})
	}
}

func TestNewChainExecutorRequiresDependencies(t *testing.T) {
	key, _ := crypto.GenerateKey()
	if _, err := NewChainExecutor(nil, key); err == nil {
		t.Fatal("expected error without chains")
	}
	registry, _ := provider.NewStaticRegistry("x", ethereum.NewSimulatedClient("x", simulated.NewBackend(types.GenesisAlloc{})))
	defer registry.Close()
	if _, err := NewChainExecutor(registry, nil); err == nil {
		t.Fatal("expected error without key")
	}
}

func TestLoadDeployerKey(t *testing.T) {
	t.Setenv("TEST_DEPLOYER_KEY", "")
	if _, err := LoadDeployerKey("TEST_DEPLOYER_KEY"); err == nil {
		t.Fatal("expected error for unset key")
	}
	key, _ := crypto.GenerateKey()
	t.Setenv("TEST_DEPLOYER_KEY", "0x"+common.Bytes2Hex(crypto.FromECDSA(key)))
	loaded, err := LoadDeployerKey("TEST_DEPLOYER_KEY")
	if err != nil {
		t.Fatalf("LoadDeployerKey: %v", err)
	}
	if crypto.PubkeyToAddress(loaded.PublicKey) != crypto.PubkeyToAddress(key.PublicKey) {
		t.Fatal("loaded key does not match")
	}
}
