package main

import (
	"context"
	"crypto/ecdsa"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient/simulated"

	"Agentrix-Chat/internal/agent"
	"Agentrix-Chat/internal/backend"
	"Agentrix-Chat/internal/backend/remote"
	"Agentrix-Chat/internal/catalog"
	"Agentrix-Chat/internal/config"
	"Agentrix-Chat/internal/issuance"
	"Agentrix-Chat/internal/llm"
	"Agentrix-Chat/internal/llm/openai"
	"Agentrix-Chat/internal/llm/pythonbridge"
	"Agentrix-Chat/internal/observability/alerting"
	storage "Agentrix-Chat/internal/storage/mysql"
	"Agentrix-Chat/internal/task"
	"Agentrix-Chat/internal/web3"
	"Agentrix-Chat/internal/web3/ethereum"
	"Agentrix-Chat/internal/web3/provider"
	"Agentrix-Chat/internal/wizard"
	"Agentrix-Chat/pkg/logger"
)

func openDatabase(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	if !cfg.UsesMySQL() {
		return nil, nil
	}
	m := cfg.Archive.MySQL
	return storage.Open(ctx, storage.Config{
		DSN:             m.DSN,
		MaxOpenConns:    m.MaxOpenConns,
		MaxIdleConns:    m.MaxIdleConns,
		ConnMaxLifetime: time.Duration(m.ConnMaxLifetime) * time.Second,
	})
}

// buildBackend 返回执行后端与商品检索协作方。
func buildBackend(cfg *config.Config) (backend.Executor, backend.Searcher, error) {
	if cfg.Backend.Mode == "remote" {
		var opts []remote.Option
		if cfg.Backend.APIKeyEnv != "" {
			opts = append(opts, remote.WithAPIKey(os.Getenv(cfg.Backend.APIKeyEnv)))
		}
		client, err := remote.NewClient(cfg.Backend.RemoteURL, opts...)
		if err != nil {
			return nil, nil, err
		}
		return client, client, nil
	}

	llmClient, err := createLLMClient(cfg)
	if err != nil {
		return nil, nil, err
	}
	opts := []agent.Option{
		agent.WithMemoryDepth(cfg.Backend.MemoryDepth),
		agent.WithSearchLimit(cfg.Catalog.MaxResults),
	}
	if cfg.Catalog.Path != "" {
		products, err := catalog.LoadStaticProvider(cfg.Catalog.Path, cfg.Catalog.MaxResults)
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, agent.WithCatalog(products))
	}
	if cfg.LLM.Provider == "openai" && cfg.LLM.OpenAI.TimeoutSeconds > 0 {
		opts = append(opts, agent.WithLLMTimeout(time.Duration(cfg.LLM.OpenAI.TimeoutSeconds)*time.Second))
	}
	ag := agent.New(llmClient, opts...)
	return ag, ag, nil
}

func createLLMClient(cfg *config.Config) (llm.Client, error) {
	switch cfg.LLM.Provider {
	case "python_bridge":
		scriptPath := pythonbridge.ResolveScriptPath(cfg.LLM.Python.WorkingDir, cfg.LLM.Python.ScriptPath)
		return pythonbridge.NewClient(cfg.LLM.Python.PythonExecutable, scriptPath, cfg.LLM.Python.WorkingDir)
	case "openai":
		apiKey := strings.TrimSpace(os.Getenv(cfg.LLM.OpenAI.APIKeyEnv))
		if apiKey == "" {
			return nil, fmt.Errorf("OpenAI provider 需要设置环境变量 %s", cfg.LLM.OpenAI.APIKeyEnv)
		}
		return openai.NewClient(openai.Config{
			APIKey:  apiKey,
			BaseURL: cfg.LLM.OpenAI.BaseURL,
			Model:   cfg.LLM.OpenAI.Model,
			Timeout: time.Duration(cfg.LLM.OpenAI.TimeoutSeconds) * time.Second,
		})
	default:
		return nil, fmt.Errorf("未知的大模型 provider: %s", cfg.LLM.Provider)
	}
}

type chainSetup struct {
	registry *provider.Registry
	key      *ecdsa.PrivateKey
}

// buildChains 连接配置的链端点；未配置时启动本地模拟链并生成临时部署账户。
func buildChains(ctx context.Context, cfg config.Web3Config) (chainSetup, error) {
	if cfg.Enabled() {
		key, err := issuance.LoadDeployerKey(cfg.DeployerKeyEnv)
		if err != nil {
			return chainSetup{}, err
		}
		registry, err := provider.NewRegistry(ctx, cfg)
		if err != nil {
			return chainSetup{}, err
		}
		return chainSetup{registry: registry, key: key}, nil
	}

	key, err := crypto.GenerateKey()
	if err != nil {
		return chainSetup{}, fmt.Errorf("生成模拟链账户失败: %w", err)
	}
	deployer := crypto.PubkeyToAddress(key.PublicKey)
	funds := new(big.Int).Exp(big.NewInt(10), big.NewInt(21), nil)
	sim := simulated.NewBackend(types.GenesisAlloc{deployer: {Balance: funds}})

	name := cfg.DefaultChain
	if name == "" {
		name = "ethereum"
	}
	registry, err := provider.NewStaticRegistry(name, ethereum.NewSimulatedClient(name, sim))
	if err != nil {
		_ = sim.Close()
		return chainSetup{}, err
	}
	logger.Named("agentrixd").Warn("未配置链端点，使用本地模拟链",
		slog.String("chain", name),
		slog.String("deployer", deployer.Hex()))
	return chainSetup{registry: registry, key: key}, nil
}

func buildChainExecutor(cfg config.Web3Config, chains chainSetup) (*issuance.ChainExecutor, error) {
	var opts []issuance.ExecutorOption
	for kind, path := range map[wizard.Kind]string{
		wizard.KindTokenIssuance: cfg.TokenArtifact,
		wizard.KindNFTCollection: cfg.NFTArtifact,
	} {
		if path == "" {
			continue
		}
		artifact, err := web3.LoadArtifact(path)
		if err != nil {
			return nil, err
		}
		opts = append(opts, issuance.WithArtifact(kind, artifact))
	}
	return issuance.NewChainExecutor(chains.registry, chains.key, opts...)
}

func buildTaskStore(cfg *config.Config, db *sql.DB) (task.Store, error) {
	switch cfg.Submission.StoreDriver {
	case "mysql":
		return task.NewMySQLStore(db)
	default:
		return task.NewMemoryStore(), nil
	}
}

func buildTaskQueue(ctx context.Context, cfg config.SubmissionConfig) (task.Queue, error) {
	switch cfg.QueueDriver {
	case "redis":
		return task.NewRedisQueue(ctx, task.RedisQueueConfig{
			Address:   cfg.Redis.Address,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			Queue:     cfg.Redis.Queue,
			BlockWait: time.Duration(cfg.Redis.WaitSeconds) * time.Second,
		})
	case "rabbitmq":
		return task.NewRabbitMQQueue(task.RabbitMQConfig{
			URL:      cfg.RabbitMQ.URL,
			Queue:    cfg.RabbitMQ.Queue,
			Prefetch: cfg.RabbitMQ.Prefetch,
			Durable:  true,
		})
	default:
		return task.NewMemoryQueue(cfg.QueueBuffer), nil
	}
}

func buildAlerts(cfg config.SubmissionConfig) alerting.Dispatcher {
	notifiers := []alerting.Notifier{alerting.LogNotifier{}}
	client := &http.Client{Timeout: time.Duration(cfg.AlertTimeoutSeconds) * time.Second}
	for _, hook := range cfg.AlertWebhooks {
		notifiers = append(notifiers, &alerting.WebhookNotifier{
			Kind:       alerting.Channel(hook.Kind),
			URL:        hook.URL,
			HTTPClient: client,
		})
	}
	return alerting.NewFanout(notifiers...)
}

func buildArchive(cfg *config.Config, db *sql.DB) (storage.Repository, error) {
	switch cfg.Archive.Driver {
	case "none":
		return nil, nil
	case "mysql":
		if db == nil {
			return nil, errors.New("MySQL 归档需要数据库连接")
		}
		return storage.NewSQLArchive(db)
	default:
		return storage.NewFileArchive(cfg.Runtime.DataDir)
	}
}
