package web3

import (
	"context"
	"math/big"

	gethcore "github.com/ethereum/go-ethereum"
	coretypes "github.com/ethereum/go-ethereum/core/types"
)

// ChainSnapshot represents summarized network metadata for health reporting.
type ChainSnapshot struct {
	ChainID     string
	BlockNumber string
	Notes       string
}

// Client defines the read surface the assistant needs from a chain: balance
// lookups for the conversational flow, and log filtering plus contract calls
// for vault discovery. Implementations for different networks plug in here.
type Client interface {
	FetchChainSnapshot(ctx context.Context) (ChainSnapshot, error)
	BalanceOf(ctx context.Context, address string) (string, error)
	FilterLogs(ctx context.Context, query gethcore.FilterQuery) ([]coretypes.Log, error)
	CallContract(ctx context.Context, call gethcore.CallMsg, blockNumber *big.Int) ([]byte, error)
	Close()
}
