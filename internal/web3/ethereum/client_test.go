package ethereum

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient/simulated"
)

const (
	simpleContractABI = "[]"
	// init code copies a 0x27 byte runtime that emits a single log.
	simpleContractBin = "0x6027600c60003960276000f37f0102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f2060006000a100"
)

func newSimulatedClient(t *testing.T) (*Client, *bind.TransactOpts) {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	auth, err := bind.NewKeyedTransactorWithChainID(key, big.NewInt(1337))
	if err != nil {
		t.Fatalf("new transactor: %v", err)
	}
	auth.GasLimit = 1_000_000

	alloc := types.GenesisAlloc{
		auth.From: {Balance: big.NewInt(1_000_000_000_000_000_000)},
	}
	client := NewSimulatedClient("simulated", simulated.NewBackend(alloc, simulated.WithBlockGasLimit(8_000_000)))
	t.Cleanup(client.Close)
	return client, auth
}

func TestClientDeployAndSnapshot(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	client, auth := newSimulatedClient(t)

	before, err := client.FetchChainSnapshot(ctx)
	if err != nil {
		t.Fatalf("fetch snapshot: %v", err)
	}

	deployed, err := client.DeployContract(ctx, auth, simpleContractABI, common.FromHex(simpleContractBin))
	if err != nil {
		t.Fatalf("deploy contract: %v", err)
	}
	if deployed.ContractAddress == (common.Address{}) || deployed.TxHash() == "" {
		t.Fatalf("unexpected deployment: %+v", deployed)
	}

	after, err := client.FetchChainSnapshot(ctx)
	if err != nil {
		t.Fatalf("fetch snapshot: %v", err)
	}
	if after.ChainID != "0x539" || after.Name != "simulated" {
		t.Fatalf("unexpected snapshot %+v", after)
	}
	if after.BlockNumber == before.BlockNumber {
		t.Fatalf("expected block number to advance after deployment, still %s", after.BlockNumber)
	}

	balance, err := client.BalanceAt(ctx, auth.From)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.Sign() <= 0 {
		t.Fatalf("expected positive balance, got %s", balance)
	}
}

func TestClientRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	client, auth := newSimulatedClient(t)

	if _, err := client.DeployContract(ctx, nil, simpleContractABI, []byte{0x1}); err == nil {
		t.Fatal("expected error without signer")
	}
	if _, err := client.DeployContract(ctx, auth, simpleContractABI, nil); err == nil {
		t.Fatal("expected error for empty bytecode")
	}
	if _, err := client.DeployContract(ctx, auth, "{not json", []byte{0x1}); err == nil {
		t.Fatal("expected error for malformed abi")
	}

	client.Close()
	if _, err := client.FetchChainSnapshot(ctx); err == nil {
		t.Fatal("expected error after close")
	}
}
