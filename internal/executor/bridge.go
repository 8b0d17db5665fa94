package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const defaultBridgeTimeout = 30 * time.Second

// ChainReader 抽象只读的链上余额查询能力，由 web3 客户端实现。
type ChainReader interface {
	BalanceOf(ctx context.Context, address string) (string, error)
}

// BridgeConfig 描述交易桥接服务的访问方式。
type BridgeConfig struct {
	BaseURL string
	Timeout time.Duration
}

// Bridge 通过 HTTP 调用外部桥接服务完成真正的链上操作。
// 钱包托管与交易签名都发生在桥接服务一侧，本进程不接触私钥。
type Bridge struct {
	baseURL    string
	httpClient *http.Client
	chain      ChainReader
}

// BridgeOption 定义可选配置。
type BridgeOption func(*Bridge)

// WithChainReader 配置链上余额直读。配置后余额查询绕过桥接服务，
// 直接从 RPC 节点读取。
func WithChainReader(reader ChainReader) BridgeOption {
	return func(b *Bridge) {
		b.chain = reader
	}
}

// NewBridge 创建桥接执行器。
func NewBridge(cfg BridgeConfig, opts ...BridgeOption) (*Bridge, error) {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		return nil, errors.New("未配置桥接服务地址")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultBridgeTimeout
	}
	b := &Bridge{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b, nil
}

// Stake 实现 Executor 接口。
func (b *Bridge) Stake(ctx context.Context, amount float64, validator, userID string) (*Result, error) {
	return b.post(ctx, "/stake", map[string]any{
		"amount":    amount,
		"validator": validator,
		"user_id":   userID,
	})
}

// Swap 实现 Executor 接口。
func (b *Bridge) Swap(ctx context.Context, amount float64, fromToken, toToken, userID string, slippage float64) (*Result, error) {
	return b.post(ctx, "/swap", map[string]any{
		"amount":     amount,
		"from_token": fromToken,
		"to_token":   toToken,
		"user_id":    userID,
		"slippage":   slippage,
	})
}

// VaultDeposit 实现 Executor 接口。
func (b *Bridge) VaultDeposit(ctx context.Context, vaultAddress string, amount float64, userID string) (*Result, error) {
	return b.post(ctx, "/vault/deposit", map[string]any{
		"vault_address": vaultAddress,
		"amount":        amount,
		"user_id":       userID,
	})
}

// VaultWithdraw 实现 Executor 接口。
func (b *Bridge) VaultWithdraw(ctx context.Context, vaultAddress string, amount float64, userID string) (*Result, error) {
	return b.post(ctx, "/vault/withdraw", map[string]any{
		"vault_address": vaultAddress,
		"amount":        amount,
		"user_id":       userID,
	})
}

// VaultRedeem 实现 Executor 接口。
func (b *Bridge) VaultRedeem(ctx context.Context, vaultAddress string, shares float64, userID string) (*Result, error) {
	return b.post(ctx, "/vault/redeem", map[string]any{
		"vault_address": vaultAddress,
		"shares":        shares,
		"user_id":       userID,
	})
}

// VaultInfo 实现 Executor 接口。
func (b *Bridge) VaultInfo(ctx context.Context, vaultAddress string) (*Result, error) {
	return b.post(ctx, "/vault/info", map[string]any{
		"vault_address": vaultAddress,
	})
}

// Portfolio 实现 Executor 接口。
func (b *Bridge) Portfolio(ctx context.Context, userID string) (*Result, error) {
	return b.post(ctx, "/vault/portfolio", map[string]any{
		"user_id": userID,
	})
}

// Balance 实现 Executor 接口。配置了链上直读时优先走 RPC。
func (b *Bridge) Balance(ctx context.Context, address string) (*Result, error) {
	if b.chain != nil {
		balance, err := b.chain.BalanceOf(ctx, address)
		if err != nil {
			return nil, fmt.Errorf("链上余额查询失败: %w", err)
		}
		return &Result{
			Success: true,
			Message: fmt.Sprintf("地址 %s 的余额为 %s", address, balance),
		}, nil
	}
	return b.post(ctx, "/balance", map[string]any{
		"address": address,
	})
}

func (b *Bridge) post(ctx context.Context, path string, body map[string]any) (*Result, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("序列化桥接请求失败: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("构建桥接请求失败: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := b.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("请求桥接服务失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("桥接服务返回状态 %d", resp.StatusCode)
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("解析桥接响应失败: %w", err)
	}
	return &result, nil
}

var _ Executor = (*Bridge)(nil)
