package issuance

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/crypto"

	xerrors "Agentrix-Chat/internal/errors"
	"Agentrix-Chat/internal/task"
	"Agentrix-Chat/internal/web3"
	"Agentrix-Chat/internal/wizard"
	"Agentrix-Chat/internal/wizard/definitions"
	"Agentrix-Chat/pkg/logger"
)

// Chains 按名称解析链客户端，*provider.Registry 满足该接口。
type Chains interface {
	Client(name string) (web3.Client, bool)
}

// ChainExecutor 实现 task.Executor：为代币与 NFT 向导部署对应的合约。
type ChainExecutor struct {
	chains    Chains
	key       *ecdsa.PrivateKey
	artifacts map[wizard.Kind]web3.Artifact
	log       *slog.Logger
}

// ExecutorOption 定义 ChainExecutor 的可选配置。
type ExecutorOption func(*ChainExecutor)

// WithArtifact 为指定向导类别配置合约产物。
func WithArtifact(kind wizard.Kind, artifact web3.Artifact) ExecutorOption {
	return func(e *ChainExecutor) {
		e.artifacts[kind] = artifact
	}
}

// NewChainExecutor 构造链上执行器。
func NewChainExecutor(chains Chains, key *ecdsa.PrivateKey, opts ...ExecutorOption) (*ChainExecutor, error) {
	if chains == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "链上执行器需要链注册表")
	}
	if key == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "链上执行器需要部署私钥")
	}
	e := &ChainExecutor{
		chains:    chains,
		key:       key,
		artifacts: make(map[wizard.Kind]web3.Artifact),
		log:       logger.Named("issuance.executor"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e, nil
}

// LoadDeployerKey 从环境变量读取十六进制私钥。
func LoadDeployerKey(envName string) (*ecdsa.PrivateKey, error) {
	raw := strings.TrimSpace(os.Getenv(envName))
	if raw == "" {
		return nil, fmt.Errorf("环境变量 %s 未设置部署私钥", envName)
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(raw, "0x"))
	if err != nil {
		return nil, fmt.Errorf("解析部署私钥失败: %w", err)
	}
	return key, nil
}

// Execute 实现 task.Executor。
func (e *ChainExecutor) Execute(ctx context.Context, t *task.Task) (task.Result, error) {
	kind := wizard.Kind(t.WizardKind)
	artifact, ok := e.artifacts[kind]
	if !ok {
		return task.Result{}, xerrors.New(xerrors.CodeInvalidArgument,
			fmt.Sprintf("未配置 %s 的合约产物", kind))
	}
	fields := wizard.Fields(t.Fields)
	chainName := fields.String(definitions.FieldChain)
	client, ok := e.chains.Client(chainName)
	if !ok {
		return task.Result{}, xerrors.New(xerrors.CodeInvalidArgument,
			fmt.Sprintf("链 %s 未配置", chainName), xerrors.WithMetadata("chain", chainName))
	}

	chainID, err := client.ChainID(ctx)
	if err != nil {
		return task.Result{}, xerrors.Wrap(xerrors.CodeNetworkFailure, err, "获取链 ID 失败")
	}
	auth, err := bind.NewKeyedTransactorWithChainID(e.key, chainID)
	if err != nil {
		return task.Result{}, xerrors.Wrap(xerrors.CodeExecutorFailure, err, "创建交易签名器失败",
			xerrors.WithRetryable(false))
	}

	balance, err := client.BalanceAt(ctx, auth.From)
	if err != nil {
		return task.Result{}, xerrors.Wrap(xerrors.CodeNetworkFailure, err, "查询部署账户余额失败")
	}
	if balance.Sign() <= 0 {
		return task.Result{}, xerrors.New(xerrors.CodeExecutorFailure, "部署账户余额不足",
			xerrors.WithRetryable(false), xerrors.WithMetadata("deployer", auth.From.Hex()))
	}

	args, err := constructorArgs(artifact.ABI, fields, auth.From)
	if err != nil {
		return task.Result{}, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "构造合约参数失败")
	}

	deployed, err := client.DeployContract(ctx, auth, artifact.ABI, artifact.Bytecode, args...)
	if err != nil {
		return task.Result{}, xerrors.Wrap(xerrors.CodeExecutorFailure, err, "部署合约失败",
			xerrors.WithMetadata("chain", client.Name()),
			xerrors.WithMetadata("tx_hash", deployed.TxHash()))
	}

	result := task.Result{
		Reference:       t.ID,
		ContractAddress: deployed.ContractAddress.Hex(),
		TxHash:          deployed.TxHash(),
		ChainID:         "0x" + chainID.Text(16),
	}
	snapshot, err := client.FetchChainSnapshot(ctx)
	if err != nil {
		e.log.WarnContext(ctx, "chain snapshot unavailable after deployment",
			slog.String("task_id", t.ID),
			slog.String("chain", client.Name()),
			slog.Any("error", err))
	} else {
		result.BlockNumber = snapshot.BlockNumber
		result.Observations = observations(client.Name(), auth.From.Hex(), snapshot.Notes)
	}
	e.log.InfoContext(ctx, "contract deployed",
		slog.String("task_id", t.ID),
		slog.String("wizard", string(kind)),
		slog.String("chain", client.Name()),
		slog.String("contract", result.ContractAddress))
	return result, nil
}

func observations(chain, deployer, notes string) string {
	parts := []string{"chain=" + chain, "deployer=" + deployer}
	if notes != "" {
		parts = append(parts, "notes="+notes)
	}
	return strings.Join(parts, "; ")
}

var _ task.Executor = (*ChainExecutor)(nil)
