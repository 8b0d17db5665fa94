package executor

import "context"

// Result 汇总一次链上操作的执行结果。失败以数据形式返回，
// success=false 加上人类可读的 message，而不是抛出异常。
type Result struct {
	Success bool   `json:"success"`
	TxHash  string `json:"transaction_hash,omitempty"`
	Message string `json:"message"`
}

// Executor 定义执行具体加密操作的统一接口，每种动作一个方法。
// 引擎把它视为可替换的协作方，测试中使用桩实现。
type Executor interface {
	Stake(ctx context.Context, amount float64, validator, userID string) (*Result, error)
	Swap(ctx context.Context, amount float64, fromToken, toToken, userID string, slippage float64) (*Result, error)
	VaultDeposit(ctx context.Context, vaultAddress string, amount float64, userID string) (*Result, error)
	VaultWithdraw(ctx context.Context, vaultAddress string, amount float64, userID string) (*Result, error)
	VaultRedeem(ctx context.Context, vaultAddress string, shares float64, userID string) (*Result, error)
	VaultInfo(ctx context.Context, vaultAddress string) (*Result, error)
	Portfolio(ctx context.Context, userID string) (*Result, error)
	Balance(ctx context.Context, address string) (*Result, error)
}
