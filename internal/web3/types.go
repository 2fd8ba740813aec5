package web3

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// ChainSnapshot represents summarized network metadata attached to issuance results.
type ChainSnapshot struct {
	Name        string
	ChainID     string
	BlockNumber string
	Notes       string
}

// DeploymentResult captures the outcome of a contract deployment request.
type DeploymentResult struct {
	ContractAddress common.Address
	Transaction     *types.Transaction
}

// TxHash returns the deployment transaction hash in hex, or "" when absent.
func (d DeploymentResult) TxHash() string {
	if d.Transaction == nil {
		return ""
	}
	return d.Transaction.Hash().Hex()
}

// Client defines the chain operations the issuance executor relies on so that
// different networks can be driven uniformly.
type Client interface {
	Name() string
	ChainID(ctx context.Context) (*big.Int, error)
	FetchChainSnapshot(ctx context.Context) (ChainSnapshot, error)
	BalanceAt(ctx context.Context, account common.Address) (*big.Int, error)
	DeployContract(ctx context.Context, auth *bind.TransactOpts, abiJSON string, bytecode []byte, params ...any) (DeploymentResult, error)
	Close()
}
