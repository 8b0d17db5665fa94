package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"FlowPilot-Chain/internal/api"
	"FlowPilot-Chain/internal/config"
	"FlowPilot-Chain/internal/engine"
	"FlowPilot-Chain/internal/events"
	"FlowPilot-Chain/internal/executor"
	"FlowPilot-Chain/internal/llm"
	"FlowPilot-Chain/internal/llm/openai"
	"FlowPilot-Chain/internal/session"
	"FlowPilot-Chain/internal/storage/mysql"
	"FlowPilot-Chain/internal/web3/provider"
	"FlowPilot-Chain/pkg/logger"
)

// main 是对话式加密助手守护进程的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("flowpilotd 运行失败: %v", err)
	}
}

func run(ctx context.Context) error {
	// .env 是可选的，缺失时静默跳过。
	_ = godotenv.Load()

	configPath := os.Getenv("FLOWPILOT_CONFIG")
	if configPath == "" {
		configPath = filepath.Join("configs", "flowpilot.json")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if err := logger.Init(cfg.Logging); err != nil {
		return err
	}
	defer logger.Sync()

	classifier, err := createClassifier(cfg)
	if err != nil {
		return err
	}

	store, err := createSessionStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	var bridgeOpts []executor.BridgeOption
	if strings.TrimSpace(cfg.Web3.RPCURL) != "" || strings.TrimSpace(cfg.Web3.ChainConfig) != "" {
		registry, err := provider.NewRegistry(ctx, cfg.Web3)
		if err != nil {
			return err
		}
		defer registry.Close()
		client, err := registry.DefaultClient()
		if err != nil {
			return err
		}
		bridgeOpts = append(bridgeOpts, executor.WithChainReader(client))
	}

	exec, err := executor.NewBridge(executor.BridgeConfig{
		BaseURL: cfg.Bridge.BaseURL,
		Timeout: time.Duration(cfg.Bridge.TimeoutSeconds) * time.Second,
	}, bridgeOpts...)
	if err != nil {
		return err
	}

	opts := []engine.Option{
		engine.WithConfidenceThreshold(cfg.Engine.ConfidenceThreshold),
		engine.WithPendingTTL(cfg.Engine.PendingTTL()),
	}

	publisher, err := createPublisher(cfg)
	if err != nil {
		return err
	}
	if publisher != nil {
		defer publisher.Close()
		opts = append(opts, engine.WithEventPublisher(publisher))
	}

	repo, err := createActionRepository(ctx, cfg)
	if err != nil {
		return err
	}
	if repo != nil {
		defer repo.Close()
		opts = append(opts, engine.WithActionRepository(repo))
	}

	eng := engine.New(classifier, store, exec, opts...)
	go eng.Run(ctx)

	server := api.NewServer(cfg.Server.Address, eng, store)
	logger.L().Info("flowpilotd 启动", "address", cfg.Server.Address)

	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func createClassifier(cfg *config.Config) (*llm.Classifier, error) {
	switch cfg.LLM.Provider {
	case "", "openai":
		apiKey := strings.TrimSpace(cfg.LLM.ResolveAPIKey())
		if apiKey == "" {
			return nil, errors.New("OpenAI provider 需要配置 api_key 或 api_key_env")
		}
		client, err := openai.NewClient(openai.Config{
			APIKey:  apiKey,
			BaseURL: cfg.LLM.BaseURL,
			Model:   cfg.LLM.Model,
			Timeout: time.Duration(cfg.LLM.TimeoutSeconds) * time.Second,
		})
		if err != nil {
			return nil, err
		}
		return llm.NewClassifier(client,
			llm.WithTimeout(time.Duration(cfg.LLM.TimeoutSeconds)*time.Second)), nil
	default:
		return nil, fmt.Errorf("未知的大模型 provider: %s", cfg.LLM.Provider)
	}
}

func createSessionStore(cfg *config.Config) (session.Store, error) {
	switch cfg.Session.Backend {
	case "", "memory":
		return session.NewMemoryStore(cfg.Session.MaxTurns), nil
	case "redis":
		return session.NewRedisStore(session.RedisStoreConfig{
			Address:  cfg.Session.Redis.Address,
			Password: cfg.Session.Redis.Password,
			DB:       cfg.Session.Redis.DB,
			MaxTurns: cfg.Session.MaxTurns,
		})
	default:
		return nil, fmt.Errorf("未知的会话存储后端: %s", cfg.Session.Backend)
	}
}

func createPublisher(cfg *config.Config) (events.Publisher, error) {
	switch cfg.Events.Driver {
	case "", "memory":
		return events.NewMemoryPublisher(), nil
	case "rabbitmq":
		return events.NewRabbitMQPublisher(events.RabbitMQConfig{
			URL:   cfg.Events.URL,
			Queue: cfg.Events.Queue,
		})
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("未知的事件发布驱动: %s", cfg.Events.Driver)
	}
}

func createActionRepository(ctx context.Context, cfg *config.Config) (mysql.ActionRepository, error) {
	switch cfg.Storage.ActionLog.Driver {
	case "", "memory":
		return mysql.NewMemoryActionRepository(), nil
	case "mysql":
		return mysql.NewSQLActionRepository(ctx, mysql.Config{DSN: cfg.Storage.ActionLog.DSN})
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("未知的操作记录驱动: %s", cfg.Storage.ActionLog.Driver)
	}
}
