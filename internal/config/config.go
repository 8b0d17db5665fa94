package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"FlowPilot-Chain/pkg/logger"
)

// Config 描述 FlowPilot 在启动阶段需要加载的核心配置。
type Config struct {
	Server  ServerConfig  `json:"server"`
	LLM     LLMConfig     `json:"llm"`
	Session SessionConfig `json:"session"`
	Storage StorageConfig `json:"storage"`
	Events  EventsConfig  `json:"events"`
	Bridge  BridgeConfig  `json:"bridge"`
	Web3    Web3Config    `json:"web3"`
	Engine  EngineConfig  `json:"engine"`
	Scanner ScannerConfig `json:"scanner"`
	Logging logger.Config `json:"logging"`
}

// ServerConfig 控制 API 服务的监听地址等参数。
type ServerConfig struct {
	Address string `json:"address"`
}

// LLMConfig 配置大模型调用方式。密钥优先从 api_key_env 指向的环境
// 变量读取，避免把密钥写进配置文件。
type LLMConfig struct {
	Provider       string `json:"provider"`
	APIKey         string `json:"api_key"`
	APIKeyEnv      string `json:"api_key_env"`
	BaseURL        string `json:"base_url"`
	Model          string `json:"model"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// SessionConfig 描述会话历史的存储后端。
type SessionConfig struct {
	Backend  string      `json:"backend"`
	MaxTurns int         `json:"max_turns"`
	Redis    RedisConfig `json:"redis"`
}

// RedisConfig 描述 Redis 连接参数。
type RedisConfig struct {
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// StorageConfig 描述操作审计记录的存储后端。
type StorageConfig struct {
	ActionLog ActionLogConfig `json:"action_log"`
}

// ActionLogConfig 目前支持 memory 与 mysql 两种驱动。
type ActionLogConfig struct {
	Driver string `json:"driver"`
	DSN    string `json:"dsn"`
}

// EventsConfig 描述业务事件的发布通道。
type EventsConfig struct {
	Driver string `json:"driver"`
	URL    string `json:"url"`
	Queue  string `json:"queue"`
}

// BridgeConfig 描述执行桥接服务的访问方式。
type BridgeConfig struct {
	BaseURL        string `json:"base_url"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// Web3Config 包含访问区块链节点所需的配置。
type Web3Config struct {
	RPCURL       string `json:"rpc_url"`
	ChainConfig  string `json:"chain_config"`
	DefaultChain string `json:"default_chain"`
}

// EngineConfig 控制意图确认引擎的行为参数。
type EngineConfig struct {
	ConfidenceThreshold float64 `json:"confidence_threshold"`
	PendingTTLSeconds   int     `json:"pending_ttl_seconds"`
}

// ScannerConfig 控制金库发现扫描器的参数。
type ScannerConfig struct {
	FromBlock      uint64 `json:"from_block"`
	ToBlock        uint64 `json:"to_block"`
	LookbackBlocks uint64 `json:"lookback_blocks"`
	ChunkSize      uint64 `json:"chunk_size"`
	PaceMillis     int    `json:"pace_millis"`
	Concurrency    int    `json:"concurrency"`
	OutputPath     string `json:"output_path"`
	PublishEvents  bool   `json:"publish_events"`
}

// PendingTTL 把配置的秒数转换为 Duration，未配置时返回零值由引擎取默认。
func (c EngineConfig) PendingTTL() time.Duration {
	return time.Duration(c.PendingTTLSeconds) * time.Second
}

// ResolveAPIKey 返回生效的大模型密钥：环境变量优先于配置文件。
func (c LLMConfig) ResolveAPIKey() string {
	if c.APIKeyEnv != "" {
		if value := os.Getenv(c.APIKeyEnv); value != "" {
			return value
		}
	}
	return c.APIKey
}

// Load 解析指定路径的 JSON 配置文件并补齐默认值。
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("配置文件路径为空")
	}

	content, err := os.ReadFile(path)
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

	if c.LLM.Provider == "" {
		c.LLM.Provider = "openai"
	}
	if c.LLM.APIKeyEnv == "" {
		c.LLM.APIKeyEnv = "OPENAI_API_KEY"
	}

	if c.Session.Backend == "" {
		c.Session.Backend = "memory"
	}
	if c.Session.MaxTurns <= 0 {
		c.Session.MaxTurns = 10
	}
	if c.Session.Redis.Address == "" {
		c.Session.Redis.Address = "127.0.0.1:6379"
	}

	if c.Storage.ActionLog.Driver == "" {
		c.Storage.ActionLog.Driver = "memory"
	}

	if c.Events.Driver == "" {
		c.Events.Driver = "memory"
	}

	if c.Bridge.BaseURL == "" {
		c.Bridge.BaseURL = "http://127.0.0.1:3001"
	}

	if c.Engine.ConfidenceThreshold <= 0 {
		c.Engine.ConfidenceThreshold = 0.7
	}
	if c.Engine.PendingTTLSeconds <= 0 {
		c.Engine.PendingTTLSeconds = 600
	}

	if c.Scanner.LookbackBlocks == 0 {
		c.Scanner.LookbackBlocks = 20000
	}
	if c.Scanner.ChunkSize == 0 {
		c.Scanner.ChunkSize = 10000
	}
	if c.Scanner.PaceMillis <= 0 {
		c.Scanner.PaceMillis = 100
	}
	if c.Scanner.OutputPath == "" {
		c.Scanner.OutputPath = filepath.Join(baseDir, "vault_scan_report.json")
	}

	if c.Web3.ChainConfig != "" && !filepath.IsAbs(c.Web3.ChainConfig) {
		c.Web3.ChainConfig = filepath.Join(baseDir, c.Web3.ChainConfig)
	}
}
