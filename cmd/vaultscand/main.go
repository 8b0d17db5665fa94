package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"FlowPilot-Chain/internal/config"
	"FlowPilot-Chain/internal/events"
	"FlowPilot-Chain/internal/scanner"
	"FlowPilot-Chain/internal/web3/provider"
	"FlowPilot-Chain/pkg/logger"
)

// main 是 ERC-4626 金库发现扫描器的入口。扫描是一次性的：
// 连接节点、扫指定区块区间、输出 JSON 报告后退出。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("vaultscand 运行失败: %v", err)
	}
}

func run(ctx context.Context) error {
	_ = godotenv.Load()

	configPath := flag.String("config", "", "配置文件路径")
	fromBlock := flag.Uint64("from", 0, "起始区块（0 表示使用配置值）")
	toBlock := flag.Uint64("to", 0, "结束区块（0 表示使用配置值）")
	output := flag.String("output", "", "报告输出路径（- 表示标准输出）")
	flag.Parse()

	path := *configPath
	if path == "" {
		path = os.Getenv("FLOWPILOT_CONFIG")
	}
	if path == "" {
		path = filepath.Join("configs", "flowpilot.json")
	}

	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	if err := logger.Init(cfg.Logging); err != nil {
		return err
	}
	defer logger.Sync()

	// 节点连不上是扫描器唯一的致命错误。
	registry, err := provider.NewRegistry(ctx, cfg.Web3)
	if err != nil {
		return err
	}
	defer registry.Close()

	client, err := registry.DefaultClient()
	if err != nil {
		return err
	}

	opts := []scanner.Option{
		scanner.WithChunkSize(cfg.Scanner.ChunkSize),
		scanner.WithPace(time.Duration(cfg.Scanner.PaceMillis) * time.Millisecond),
	}
	if cfg.Scanner.Concurrency > 1 {
		opts = append(opts, scanner.WithConcurrency(cfg.Scanner.Concurrency))
	}
	if cfg.Scanner.PublishEvents && cfg.Events.Driver == "rabbitmq" {
		publisher, err := events.NewRabbitMQPublisher(events.RabbitMQConfig{
			URL:   cfg.Events.URL,
			Queue: cfg.Events.Queue,
		})
		if err != nil {
			return err
		}
		defer publisher.Close()
		opts = append(opts, scanner.WithEventPublisher(publisher))
	}

	from := cfg.Scanner.FromBlock
	if *fromBlock > 0 {
		from = *fromBlock
	}
	to := cfg.Scanner.ToBlock
	if *toBlock > 0 {
		to = *toBlock
	}
	// 未指定结束区块时取链上最新高度，并按回看深度推导起点。
	if to == 0 {
		snapshot, err := client.FetchChainSnapshot(ctx)
		if err != nil {
			return err
		}
		latest, err := strconv.ParseUint(strings.TrimPrefix(snapshot.BlockNumber, "0x"), 16, 64)
		if err != nil {
			return fmt.Errorf("解析最新区块高度失败: %w", err)
		}
		to = latest
		if from == 0 && to > cfg.Scanner.LookbackBlocks {
			from = to - cfg.Scanner.LookbackBlocks
		}
	}

	report, err := scanner.New(client, opts...).Scan(ctx, from, to)
	if err != nil {
		return err
	}

	sink := *output
	if sink == "" {
		sink = cfg.Scanner.OutputPath
	}
	if err := report.WriteFile(sink); err != nil {
		return err
	}

	logger.L().Info("扫描完成",
		"vaults_found", report.TotalVaultsFound,
		"from_block", report.FromBlock,
		"to_block", report.ToBlock,
		"output", sink)
	return nil
}
