package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// Config 描述守护进程启动阶段需要加载的核心配置。
type Config struct {
	Server    ServerConfig    `json:"server"`
	Chain     ChainConfig     `json:"chain"`
	SolverBus SolverBusConfig `json:"solver_bus"`
	Account   AccountConfig   `json:"account"`
	Storage   StorageConfig   `json:"storage"`
	SwapQueue QueueConfig     `json:"swap_queue"`
	Knowledge KnowledgeConfig `json:"knowledge"`
	LLM       LLMConfig       `json:"llm"`
	Logger    LoggerConfig    `json:"logger"`
	Runtime   RuntimeConfig   `json:"runtime"`
}

// ServerConfig 控制 API 服务的监听地址等参数。
type ServerConfig struct {
	Address        string `json:"address"`
	MetricsAddress string `json:"metrics_address"`
}

// ChainConfig 包含访问 NEAR 节点所需的 RPC 地址与网络定义。
type ChainConfig struct {
	NetworkConfig  string `json:"network_config"`
	RPCURL         string `json:"rpc_url"`
	DefaultNetwork string `json:"default_network"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// Timeout 返回链客户端的请求超时。
func (c ChainConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// SolverBusConfig 描述求解器总线的访问方式。
type SolverBusConfig struct {
	URL            string `json:"url"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// Timeout 返回总线请求超时。
func (c SolverBusConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// AccountConfig 指向账户凭据文件。凭据绝不直接写进配置。
type AccountConfig struct {
	CredentialsFile string `json:"credentials_file"`
}

// StorageConfig 统一描述 MySQL、Redis 等后端的连接信息。
type StorageConfig struct {
	SwapStore SwapStoreConfig `json:"swap_store"`
	History   HistoryConfig   `json:"history"`
	Lock      LockConfig      `json:"lock"`
}

// SwapStoreConfig 选择换汇任务的存储驱动。
type SwapStoreConfig struct {
	Driver  string `json:"driver"`
	DSN     string `json:"dsn"`
	Retries int    `json:"retries"`
}

// HistoryConfig 选择兑换历史的存储驱动。
type HistoryConfig struct {
	Driver                 string `json:"driver"`
	DSN                    string `json:"dsn"`
	MaxOpenConns           int    `json:"max_open_conns"`
	MaxIdleConns           int    `json:"max_idle_conns"`
	ConnMaxLifetimeSeconds int    `json:"conn_max_lifetime_seconds"`
	ConnMaxIdleTimeSeconds int    `json:"conn_max_idle_time_seconds"`
}

// LockConfig 选择账户锁的实现。memory 适合单实例，redis 用于多实例部署。
type LockConfig struct {
	Driver   string `json:"driver"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// QueueConfig 描述换汇任务队列的驱动与参数。
type QueueConfig struct {
	Driver   string        `json:"driver"`
	Worker   int           `json:"worker"`
	Redis    RedisQueue    `json:"redis"`
	RabbitMQ RabbitMQQueue `json:"rabbitmq"`
}

// RedisQueue 描述 Redis 队列连接参数。
type RedisQueue struct {
	Address   string `json:"address"`
	Password  string `json:"password"`
	DB        int    `json:"db"`
	Queue     string `json:"queue"`
	BlockWait int    `json:"block_wait_seconds"`
}

// RabbitMQQueue 描述 RabbitMQ 队列连接参数。
type RabbitMQQueue struct {
	URL        string `json:"url"`
	Queue      string `json:"queue"`
	Prefetch   int    `json:"prefetch"`
	Durable    bool   `json:"durable"`
	AutoDelete bool   `json:"auto_delete"`
}

// KnowledgeConfig 指向静态资产知识库。
type KnowledgeConfig struct {
	Source     string `json:"source"`
	MaxResults int    `json:"max_results"`
}

// LLMConfig 用于配置自然语言指令解析的调用方式。
type LLMConfig struct {
	Provider string       `json:"provider"`
	OpenAI   OpenAIConfig `json:"openai"`
}

// OpenAIConfig 描述 OpenAI 兼容接口的调用参数。
type OpenAIConfig struct {
	APIKey         string `json:"api_key"`
	APIKeyEnv      string `json:"api_key_env"`
	BaseURL        string `json:"base_url"`
	Model          string `json:"model"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// Timeout 返回调用大模型的超时。
func (c OpenAIConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// LoggerConfig 控制结构化日志与审计日志的输出。
type LoggerConfig struct {
	Level       string          `json:"level"`
	Format      string          `json:"format"`
	OutputPaths []string        `json:"output_paths"`
	Audit       AuditFileConfig `json:"audit"`
}

// AuditFileConfig 描述审计日志文件的滚动策略。
type AuditFileConfig struct {
	Enabled    bool   `json:"enabled"`
	Path       string `json:"path"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
}

// RuntimeConfig 用于放置运行时的通用参数。
type RuntimeConfig struct {
	DataDir string `json:"data_dir"`
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

	return &cfg, nil
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults(baseDir string) {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}

	if c.Storage.SwapStore.Driver == "" {
		c.Storage.SwapStore.Driver = "memory"
	}
	if c.Storage.SwapStore.Retries <= 0 {
		c.Storage.SwapStore.Retries = 3
	}
	if c.Storage.History.Driver == "" {
		c.Storage.History.Driver = "memory"
	}
	if c.Storage.Lock.Driver == "" {
		c.Storage.Lock.Driver = "memory"
	}

	if c.SwapQueue.Driver == "" {
		c.SwapQueue.Driver = "memory"
	}
	if c.SwapQueue.Worker <= 0 {
		c.SwapQueue.Worker = 4
	}

	if c.LLM.Provider == "" {
		c.LLM.Provider = "openai"
	}
	if c.LLM.OpenAI.APIKeyEnv == "" {
		c.LLM.OpenAI.APIKeyEnv = "OPENAI_API_KEY"
	}

	if c.Logger.Level == "" {
		c.Logger.Level = "info"
	}
	if c.Logger.Format == "" {
		c.Logger.Format = "json"
	}

	if c.Account.CredentialsFile != "" && !filepath.IsAbs(c.Account.CredentialsFile) {
		c.Account.CredentialsFile = filepath.Join(baseDir, c.Account.CredentialsFile)
	}
	if c.Chain.NetworkConfig != "" && !filepath.IsAbs(c.Chain.NetworkConfig) {
		c.Chain.NetworkConfig = filepath.Join(baseDir, c.Chain.NetworkConfig)
	}
	if c.Knowledge.Source != "" && !filepath.IsAbs(c.Knowledge.Source) {
		c.Knowledge.Source = filepath.Join(baseDir, c.Knowledge.Source)
	}

	if c.Runtime.DataDir == "" {
		c.Runtime.DataDir = filepath.Join(baseDir, "data")
	} else if !filepath.IsAbs(c.Runtime.DataDir) {
		c.Runtime.DataDir = filepath.Join(baseDir, c.Runtime.DataDir)
	}
}
