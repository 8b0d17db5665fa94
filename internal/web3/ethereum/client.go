package ethereum

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"FlowPilot-Chain/internal/web3"

	gethcore "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/params"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
)

// Config describes how to construct an EVM compatible client.
type Config struct {
	Name         string
	RPCURL       string
	NativeSymbol string
	Notes        string
}

// Client implements the web3.Client interface for EVM compatible chains.
type Client struct {
	name         string
	notes        string
	nativeSymbol string
	rpcClient    *gethrpc.Client
	eth          *ethclient.Client
	mu           sync.Mutex
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

	symbol := strings.TrimSpace(cfg.NativeSymbol)
	if symbol == "" {
		symbol = "ETH"
	}

	return &Client{
		name:         cfg.Name,
		notes:        cfg.Notes,
		nativeSymbol: symbol,
		rpcClient:    rpcClient,
		eth:          ethclient.NewClient(rpcClient),
	}, nil
}

// Close releases network connections held by the client.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.eth != nil {
		c.eth.Close()
		c.eth = nil
	}
	if c.rpcClient != nil {
		c.rpcClient.Close()
		c.rpcClient = nil
	}
}

// FetchChainSnapshot gathers lightweight metadata from the chain.
func (c *Client) FetchChainSnapshot(ctx context.Context) (web3.ChainSnapshot, error) {
	if c == nil || c.eth == nil {
		return web3.ChainSnapshot{}, errors.New("未初始化的以太坊客户端")
	}

	chainID, err := c.eth.ChainID(ctx)
	if err != nil {
		return web3.ChainSnapshot{}, fmt.Errorf("获取链 ID 失败: %w", err)
	}
	blockNumber, err := c.eth.BlockNumber(ctx)
	if err != nil {
		return web3.ChainSnapshot{}, fmt.Errorf("获取最新区块高度失败: %w", err)
	}
	return web3.ChainSnapshot{
		ChainID:     "0x" + chainID.Text(16),
		BlockNumber: fmt.Sprintf("0x%x", blockNumber),
		Notes:       c.notes,
	}, nil
}

// BalanceOf returns the native-token balance of an address, formatted as a
// decimal amount in whole units with the chain's symbol appended.
func (c *Client) BalanceOf(ctx context.Context, address string) (string, error) {
	if c == nil || c.eth == nil {
		return "", errors.New("未初始化的以太坊客户端")
	}
	addr := strings.TrimSpace(address)
	if !common.IsHexAddress(addr) {
		return "", fmt.Errorf("无效的以太坊地址: %s", address)
	}

	balance, err := c.eth.BalanceAt(ctx, common.HexToAddress(addr), nil)
	if err != nil {
		return "", fmt.Errorf("查询余额失败: %w", err)
	}
	return formatWei(balance) + " " + c.nativeSymbol, nil
}

// FilterLogs forwards a log query to the node.
func (c *Client) FilterLogs(ctx context.Context, query gethcore.FilterQuery) ([]coretypes.Log, error) {
	if c == nil || c.eth == nil {
		return nil, errors.New("未初始化的以太坊客户端")
	}
	logs, err := c.eth.FilterLogs(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("查询事件日志失败: %w", err)
	}
	return logs, nil
}

// CallContract executes a read-only contract call.
func (c *Client) CallContract(ctx context.Context, call gethcore.CallMsg, blockNumber *big.Int) ([]byte, error) {
	if c == nil || c.eth == nil {
		return nil, errors.New("未初始化的以太坊客户端")
	}
	output, err := c.eth.CallContract(ctx, call, blockNumber)
	if err != nil {
		return nil, fmt.Errorf("合约调用失败: %w", err)
	}
	return output, nil
}

// Eth exposes the underlying ethclient for callers that need the full API,
// such as the vault scanner.
func (c *Client) Eth() *ethclient.Client {
	if c == nil {
		return nil
	}
	return c.eth
}

// formatWei renders a wei amount as a decimal ether string, trimming
// insignificant trailing zeros.
func formatWei(wei *big.Int) string {
	if wei == nil || wei.Sign() == 0 {
		return "0"
	}
	whole := new(big.Int).Div(wei, big.NewInt(params.Ether))
	frac := new(big.Int).Mod(wei, big.NewInt(params.Ether))
	if frac.Sign() == 0 {
		return whole.String()
	}
	fracText := fmt.Sprintf("%018s", frac.String())
	fracText = strings.TrimRight(fracText, "0")
	return whole.String() + "." + fracText
}
