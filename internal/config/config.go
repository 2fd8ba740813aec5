package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"Agentrix-Chat/pkg/logger"
)

// EnvConfigPath 是指定配置文件路径的环境变量。
const EnvConfigPath = "AGENTRIX_CONFIG"

// DefaultPath 是未设置环境变量时使用的配置文件路径。
const DefaultPath = "configs/agentrix.json"

// Config 描述了 Agentrix 在启动阶段需要加载的核心配置。
type Config struct {
	Server     ServerConfig     `json:"server"`
	Logging    logger.Config    `json:"logging"`
	Backend    BackendConfig    `json:"backend"`
	LLM        LLMConfig        `json:"llm"`
	Catalog    CatalogConfig    `json:"catalog"`
	Intents    IntentsConfig    `json:"intents"`
	Submission SubmissionConfig `json:"submission"`
	Web3       Web3Config       `json:"web3"`
	Archive    ArchiveConfig    `json:"archive"`
	Metrics    MetricsConfig    `json:"metrics"`
	Runtime    RuntimeConfig    `json:"runtime"`
}

// ServerConfig 控制 API 服务的监听地址等参数。
type ServerConfig struct {
	Address string `json:"address"`
}

// BackendConfig 选择执行协作方：local 使用内置 agent，remote 调用远端聊天后端。
type BackendConfig struct {
	Mode      string `json:"mode"`
	RemoteURL string `json:"remote_url"`
	APIKeyEnv string `json:"api_key_env"`
	// MemoryDepth 是本地 agent 为每个会话保留的历史轮数。
	MemoryDepth int `json:"memory_depth"`
}

// LLMConfig 用于配置大模型推理的调用方式。
type LLMConfig struct {
	Provider string             `json:"provider"`
	OpenAI   OpenAIConfig       `json:"openai"`
	Python   PythonBridgeConfig `json:"python_bridge"`
}

// OpenAIConfig 描述 Chat Completions 接口参数。
type OpenAIConfig struct {
	APIKeyEnv      string `json:"api_key_env"`
	BaseURL        string `json:"base_url"`
	Model          string `json:"model"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// PythonBridgeConfig 描述通过 Python 脚本完成推理时所需的信息。
type PythonBridgeConfig struct {
	PythonExecutable string `json:"python_executable"`
	ScriptPath       string `json:"script_path"`
	WorkingDir       string `json:"working_dir"`
}

// CatalogConfig 指向本地商品目录。
type CatalogConfig struct {
	Path       string `json:"path"`
	MaxResults int    `json:"max_results"`
}

// IntentsConfig 指向可选的 YAML 意图规则表。
type IntentsConfig struct {
	RulesPath string `json:"rules_path"`
}

// SubmissionConfig 描述向导提交任务的存储、队列与重试策略。
type SubmissionConfig struct {
	StoreDriver         string         `json:"store_driver"`
	QueueDriver         string         `json:"queue_driver"`
	MaxRetries          int            `json:"max_retries"`
	Workers             int            `json:"workers"`
	PollIntervalMillis  int            `json:"poll_interval_ms"`
	QueueBuffer         int            `json:"queue_buffer"`
	Redis               RedisConfig    `json:"redis"`
	RabbitMQ            RabbitMQConfig `json:"rabbitmq"`
	AlertWebhooks       []WebhookAlert `json:"alert_webhooks"`
	AlertTimeoutSeconds int            `json:"alert_timeout_seconds"`
}

// RedisConfig 描述 Redis 队列连接。
type RedisConfig struct {
	Address     string `json:"address"`
	Password    string `json:"password"`
	DB          int    `json:"db"`
	Queue       string `json:"queue"`
	WaitSeconds int    `json:"wait_seconds"`
}

// RabbitMQConfig 描述 RabbitMQ 队列连接。
type RabbitMQConfig struct {
	URL      string `json:"url"`
	Queue    string `json:"queue"`
	Prefetch int    `json:"prefetch"`
}

// WebhookAlert 描述一个告警 webhook。
type WebhookAlert struct {
	Kind string `json:"kind"`
	URL  string `json:"url"`
}

// Web3Config 包含访问区块链节点与部署合约所需的信息。
type Web3Config struct {
	RPCURL         string `json:"rpc_url"`
	ChainConfig    string `json:"chain_config"`
	DefaultChain   string `json:"default_chain"`
	DeployerKeyEnv string `json:"deployer_key_env"`
	TokenArtifact  string `json:"token_artifact"`
	NFTArtifact    string `json:"nft_artifact"`
}

// Enabled 报告是否配置了任何链端点。
func (w Web3Config) Enabled() bool {
	return strings.TrimSpace(w.RPCURL) != "" || strings.TrimSpace(w.ChainConfig) != ""
}

// ArchiveConfig 选择会话归档方式：none、file 或 mysql。
type ArchiveConfig struct {
	Driver string      `json:"driver"`
	MySQL  MySQLConfig `json:"mysql"`
}

// MySQLConfig 描述共享的 MySQL 连接，归档与任务存储都使用它。
type MySQLConfig struct {
	DSN             string `json:"dsn"`
	MaxOpenConns    int    `json:"max_open_conns"`
	MaxIdleConns    int    `json:"max_idle_conns"`
	ConnMaxLifetime int    `json:"conn_max_lifetime_seconds"`
}

// MetricsConfig 控制 Prometheus 指标暴露。
type MetricsConfig struct {
	Enabled   bool   `json:"enabled"`
	Namespace string `json:"namespace"`
}

// RuntimeConfig 用于放置运行时的通用参数。
type RuntimeConfig struct {
	DataDir string `json:"data_dir"`
}

// UsesMySQL 报告是否有组件需要 MySQL 连接。
func (c *Config) UsesMySQL() bool {
	return c.Archive.Driver == "mysql" || c.Submission.StoreDriver == "mysql"
}

// ResolvePath 返回配置文件路径：优先使用环境变量。
func ResolvePath() string {
	if path := strings.TrimSpace(os.Getenv(EnvConfigPath)); path != "" {
		return path
	}
	return DefaultPath
}

// Load 负责解析指定路径的 JSON 配置文件。
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("配置文件路径为空")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开配置文件失败: %w", err)
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	cfg.applyDefaults(filepath.Dir(path))
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults(baseDir string) {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Logging.Audit.Enabled && c.Logging.Audit.Path != "" {
		c.Logging.Audit.Path = resolve(baseDir, c.Logging.Audit.Path)
	}

	if c.Backend.Mode == "" {
		c.Backend.Mode = "local"
	}
	if c.Backend.MemoryDepth <= 0 {
		c.Backend.MemoryDepth = 8
	}

	if c.LLM.Provider == "" {
		c.LLM.Provider = "openai"
	}
	if c.LLM.OpenAI.APIKeyEnv == "" {
		c.LLM.OpenAI.APIKeyEnv = "OPENAI_API_KEY"
	}
	if c.LLM.Python.PythonExecutable == "" {
		c.LLM.Python.PythonExecutable = "python3"
	}
	if c.LLM.Python.WorkingDir == "" {
		c.LLM.Python.WorkingDir = baseDir
	} else {
		c.LLM.Python.WorkingDir = resolve(baseDir, c.LLM.Python.WorkingDir)
	}

	if c.Catalog.Path != "" {
		c.Catalog.Path = resolve(baseDir, c.Catalog.Path)
	}
	if c.Catalog.MaxResults <= 0 {
		c.Catalog.MaxResults = 12
	}
	if c.Intents.RulesPath != "" {
		c.Intents.RulesPath = resolve(baseDir, c.Intents.RulesPath)
	}

	s := &c.Submission
	if s.StoreDriver == "" {
		s.StoreDriver = "memory"
	}
	if s.QueueDriver == "" {
		s.QueueDriver = "memory"
	}
	if s.MaxRetries <= 0 {
		s.MaxRetries = 3
	}
	if s.Workers <= 0 {
		s.Workers = 2
	}
	if s.PollIntervalMillis <= 0 {
		s.PollIntervalMillis = 500
	}
	if s.QueueBuffer <= 0 {
		s.QueueBuffer = 64
	}
	if s.AlertTimeoutSeconds <= 0 {
		s.AlertTimeoutSeconds = 5
	}

	if c.Web3.DeployerKeyEnv == "" {
		c.Web3.DeployerKeyEnv = "AGENTRIX_DEPLOYER_KEY"
	}
	for _, p := range []*string{&c.Web3.ChainConfig, &c.Web3.TokenArtifact, &c.Web3.NFTArtifact} {
		if *p != "" {
			*p = resolve(baseDir, *p)
		}
	}

	if c.Archive.Driver == "" {
		c.Archive.Driver = "file"
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = "agentrix"
	}

	if c.Runtime.DataDir == "" {
		c.Runtime.DataDir = filepath.Join(baseDir, "data")
	} else {
		c.Runtime.DataDir = resolve(baseDir, c.Runtime.DataDir)
	}
}

func (c *Config) validate() error {
	switch c.Backend.Mode {
	case "local":
	case "remote":
		if strings.TrimSpace(c.Backend.RemoteURL) == "" {
			return errors.New("remote 后端模式需要配置 backend.remote_url")
		}
	default:
		return fmt.Errorf("不支持的后端模式 %q", c.Backend.Mode)
	}
	if err := oneOf("submission.store_driver", c.Submission.StoreDriver, "memory", "mysql"); err != nil {
		return err
	}
	if err := oneOf("submission.queue_driver", c.Submission.QueueDriver, "memory", "redis", "rabbitmq"); err != nil {
		return err
	}
	if err := oneOf("archive.driver", c.Archive.Driver, "none", "file", "mysql"); err != nil {
		return err
	}
	if c.UsesMySQL() && strings.TrimSpace(c.Archive.MySQL.DSN) == "" {
		return errors.New("使用 MySQL 时需要配置 archive.mysql.dsn")
	}
	return nil
}

func oneOf(field, value string, allowed ...string) error {
	for _, candidate := range allowed {
		if value == candidate {
			return nil
		}
	}
	return fmt.Errorf("%s 取值 %q 无效，可选: %s", field, value, strings.Join(allowed, ", "))
}

func resolve(baseDir, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}
