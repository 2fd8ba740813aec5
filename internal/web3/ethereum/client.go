package ethereum

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/ethclient/simulated"
	gethrpc "github.com/ethereum/go-ethereum/rpc"

	"Agentrix-Chat/internal/web3"
)

// Config describes how to construct an EVM compatible client.
type Config struct {
	Name   string
	RPCURL string
	Notes  string
}

// backend is the subset of node APIs used for deployments and snapshots.
// Both *ethclient.Client and the simulated client satisfy it.
type backend interface {
	bind.ContractBackend
	bind.DeployBackend
	ChainID(ctx context.Context) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

// Client implements the web3.Client interface for EVM compatible chains.
type Client struct {
	name    string
	notes   string
	backend backend
	// commit mines pending transactions on simulated chains.
	commit  func()
	closeFn func()

	mu      sync.Mutex
	chainID *big.Int
}

// NewClient dials the configured RPC endpoint and returns a ready-to-use client.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	rpcURL := strings.TrimSpace(cfg.RPCURL)
	if rpcURL == "" {
		return nil, errors.New("未配置以太坊 RPC 地址")
	}

	rpcClient, err := gethrpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("连接以太坊节点失败: %w", err)
	}
	eth := ethclient.NewClient(rpcClient)

	return &Client{
		name:    cfg.Name,
		notes:   cfg.Notes,
		backend: eth,
		closeFn: eth.Close,
	}, nil
}

// NewSimulatedClient wraps a go-ethereum simulated backend for testing purposes.
func NewSimulatedClient(name string, sim *simulated.Backend) *Client {
	return &Client{
		name:    name,
		notes:   "simulated backend",
		backend: sim.Client(),
		commit:  func() { sim.Commit() },
		closeFn: func() { _ = sim.Close() },
	}
}

// Name returns the registry name of the chain.
func (c *Client) Name() string {
	return c.name
}

// Close releases network connections held by the client.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closeFn != nil {
		c.closeFn()
		c.closeFn = nil
	}
	c.backend = nil
}

// ChainID returns the network chain id, cached after the first lookup.
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	b, err := c.current()
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	cached := c.chainID
	c.mu.Unlock()
	if cached != nil {
		return new(big.Int).Set(cached), nil
	}

	id, err := b.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("获取链 ID 失败: %w", err)
	}
	c.mu.Lock()
	c.chainID = new(big.Int).Set(id)
	c.mu.Unlock()
	return id, nil
}

// FetchChainSnapshot gathers lightweight metadata from the chain.
func (c *Client) FetchChainSnapshot(ctx context.Context) (web3.ChainSnapshot, error) {
	b, err := c.current()
	if err != nil {
		return web3.ChainSnapshot{}, err
	}
	chainID, err := c.ChainID(ctx)
	if err != nil {
		return web3.ChainSnapshot{}, err
	}
	blockNumber, err := b.BlockNumber(ctx)
	if err != nil {
		return web3.ChainSnapshot{}, fmt.Errorf("获取最新区块高度失败: %w", err)
	}
	return web3.ChainSnapshot{
		Name:        c.name,
		ChainID:     toHexBig(chainID),
		BlockNumber: fmt.Sprintf("0x%x", blockNumber),
		Notes:       c.notes,
	}, nil
}

// BalanceAt returns the latest balance of account in wei.
func (c *Client) BalanceAt(ctx context.Context, account common.Address) (*big.Int, error) {
	b, err := c.current()
	if err != nil {
		return nil, err
	}
	balance, err := b.BalanceAt(ctx, account, nil)
	if err != nil {
		return nil, fmt.Errorf("查询余额失败: %w", err)
	}
	return balance, nil
}

// DeployContract sends the contract creation transaction using the provided
// transact opts and bytecode, then waits until the contract code is on chain.
func (c *Client) DeployContract(ctx context.Context, auth *bind.TransactOpts, abiJSON string, bytecode []byte, params ...any) (web3.DeploymentResult, error) {
	if auth == nil {
		return web3.DeploymentResult{}, errors.New("未提供交易签名器")
	}
	if len(bytecode) == 0 {
		return web3.DeploymentResult{}, errors.New("合约字节码不能为空")
	}
	b, err := c.current()
	if err != nil {
		return web3.DeploymentResult{}, err
	}

	parsedABI, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		return web3.DeploymentResult{}, fmt.Errorf("解析 ABI 失败: %w", err)
	}

	originalCtx := auth.Context
	auth.Context = ctx
	defer func() { auth.Context = originalCtx }()

	address, tx, _, err := bind.DeployContract(auth, parsedABI, bytecode, b, params...)
	if err != nil {
		return web3.DeploymentResult{}, fmt.Errorf("部署合约失败: %w", err)
	}
	if c.commit != nil {
		c.commit()
	}

	if _, err := bind.WaitDeployed(ctx, b, tx); err != nil {
		return web3.DeploymentResult{ContractAddress: address, Transaction: tx}, fmt.Errorf("等待合约上链失败: %w", err)
	}
	return web3.DeploymentResult{ContractAddress: address, Transaction: tx}, nil
}

func (c *Client) current() (backend, error) {
	if c == nil {
		return nil, errors.New("未初始化的以太坊客户端")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.backend == nil {
		return nil, errors.New("以太坊客户端已关闭")
	}
	return c.backend, nil
}

func toHexBig(n *big.Int) string {
	if n == nil {
		return "0x0"
	}
	return "0x" + n.Text(16)
}

var _ web3.Client = (*Client)(nil)
