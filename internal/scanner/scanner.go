package scanner

import (
	"context"
	"log/slog"
	"math/big"
	"sort"
	"sync"
	"time"

	gethcore "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	xerrors "FlowPilot-Chain/internal/errors"
	"FlowPilot-Chain/internal/events"
	"FlowPilot-Chain/pkg/logger"
)

// LogFilterer is the slice of the chain API needed for log retrieval.
// *ethclient.Client satisfies it, as does the web3.Client abstraction.
type LogFilterer interface {
	FilterLogs(ctx context.Context, query gethcore.FilterQuery) ([]coretypes.Log, error)
}

// ContractCaller is the slice of the chain API needed for read-only calls.
type ContractCaller interface {
	CallContract(ctx context.Context, call gethcore.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// ChainReader combines the two capabilities the scanner depends on.
type ChainReader interface {
	LogFilterer
	ContractCaller
}

// Event signatures whose emitters are treated as vault candidates: the
// standard ERC-4626 pair, the generic ERC-20 Transfer, and the simplified
// single-argument deposit/withdraw variants some vaults emit instead.
var eventTopics = []struct {
	name  string
	topic common.Hash
}{
	{"Deposit", crypto.Keccak256Hash([]byte("Deposit(address,address,uint256,uint256)"))},
	{"Withdraw", crypto.Keccak256Hash([]byte("Withdraw(address,address,address,uint256,uint256)"))},
	{"Transfer", crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))},
	{"SimpleDeposit", crypto.Keccak256Hash([]byte("Deposit(address,uint256)"))},
	{"SimpleWithdraw", crypto.Keccak256Hash([]byte("Withdraw(address,uint256)"))},
}

// Scanner discovers ERC-4626 vault contracts in a block range by collecting
// event emitters and probing each candidate against the standard's minimum
// read surface. Discovery is best-effort: individual chunk or probe failures
// are skipped, never fatal.
type Scanner struct {
	chain     ChainReader
	publisher events.Publisher

	chunkSize   uint64
	pace        time.Duration
	concurrency int

	paceMu   sync.Mutex
	lastCall time.Time

	log *slog.Logger
}

// Option configures optional scanner behaviour.
type Option func(*Scanner)

// WithChunkSize sets the block-range size of each log query.
func WithChunkSize(size uint64) Option {
	return func(s *Scanner) {
		if size > 0 {
			s.chunkSize = size
		}
	}
}

// WithPace sets the minimum delay between consecutive provider calls.
func WithPace(pace time.Duration) Option {
	return func(s *Scanner) {
		if pace >= 0 {
			s.pace = pace
		}
	}
}

// WithConcurrency bounds how many candidates are probed in parallel.
func WithConcurrency(workers int) Option {
	return func(s *Scanner) {
		if workers > 0 {
			s.concurrency = workers
		}
	}
}

// WithEventPublisher publishes a vault_discovered event per accepted vault.
func WithEventPublisher(publisher events.Publisher) Option {
	return func(s *Scanner) {
		s.publisher = publisher
	}
}

// New creates a Scanner over the given chain reader.
func New(chain ChainReader, opts ...Option) *Scanner {
	s := &Scanner{
		chain:       chain,
		chunkSize:   10000,
		pace:        100 * time.Millisecond,
		concurrency: 1,
		log:         logger.Named("scanner"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Scan discovers vaults between fromBlock and toBlock inclusive and returns
// the structured report. An error is returned only for invalid input; chain
// hiccups degrade to partial results.
func (s *Scanner) Scan(ctx context.Context, fromBlock, toBlock uint64) (*Report, error) {
	if s.chain == nil {
		return nil, xerrors.New(xerrors.CodeScanFailure, "扫描器缺少链客户端",
			xerrors.WithSeverity(xerrors.SeverityCritical))
	}
	if fromBlock > toBlock {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "起始区块不能大于结束区块")
	}

	candidates := s.collectCandidates(ctx, fromBlock, toBlock)
	s.log.Info("候选合约收集完成",
		slog.Uint64("from_block", fromBlock),
		slog.Uint64("to_block", toBlock),
		slog.Int("candidates", len(candidates)))

	vaults := s.probeCandidates(ctx, candidates)
	sort.Slice(vaults, func(i, j int) bool { return vaults[i].Address < vaults[j].Address })

	report := &Report{
		ScanTimestamp:    time.Now().Format("2006-01-02 15:04:05"),
		FromBlock:        fromBlock,
		ToBlock:          toBlock,
		TotalVaultsFound: len(vaults),
		Vaults:           vaults,
	}

	if s.publisher != nil {
		for _, vault := range vaults {
			event := events.Event{
				Type:       events.TypeVaultDiscovered,
				Success:    true,
				Metadata:   map[string]any{"address": vault.Address, "symbol": vault.Symbol},
				OccurredAt: time.Now(),
			}
			if err := s.publisher.Publish(ctx, event); err != nil {
				s.log.Warn("发布金库发现事件失败",
					slog.String("address", vault.Address), slog.Any("error", err))
			}
		}
	}

	return report, nil
}

// collectCandidates walks the block range in chunks and gathers the deduped
// set of addresses that emitted any of the watched events.
func (s *Scanner) collectCandidates(ctx context.Context, fromBlock, toBlock uint64) []common.Address {
	seen := make(map[common.Address]struct{})

	start := fromBlock
	for {
		end := start + s.chunkSize - 1
		if end > toBlock || end < start {
			end = toBlock
		}
		for _, event := range eventTopics {
			if ctx.Err() != nil {
				break
			}
			logs := s.fetchLogs(ctx, start, end, event.topic, event.name)
			for _, entry := range logs {
				seen[entry.Address] = struct{}{}
			}
		}
		if ctx.Err() != nil {
			break
		}
		// Stepping past toBlock near MaxUint64 would wrap, so
		// terminate on the remaining distance instead.
		if toBlock-end < 1 {
			break
		}
		start = end + 1
	}

	candidates := make([]common.Address, 0, len(seen))
	for addr := range seen {
		candidates = append(candidates, addr)
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Hex() < candidates[j].Hex()
	})
	return candidates
}

// fetchLogs queries one chunk for one topic. If the provider rejects the
// topic-filtered query it falls back to fetching all logs in the chunk and
// filtering client-side; a failure after fallback is swallowed.
func (s *Scanner) fetchLogs(ctx context.Context, fromBlock, toBlock uint64, topic common.Hash, name string) []coretypes.Log {
	query := gethcore.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Topics:    [][]common.Hash{{topic}},
	}

	s.throttle()
	logs, err := s.chain.FilterLogs(ctx, query)
	if err == nil {
		return logs
	}

	s.log.Debug("主题过滤查询被拒绝，回退到客户端过滤",
		slog.String("event", name),
		slog.Uint64("from_block", fromBlock),
		slog.Uint64("to_block", toBlock),
		slog.Any("error", err))

	s.throttle()
	all, err := s.chain.FilterLogs(ctx, gethcore.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
	})
	if err != nil {
		s.log.Warn("日志查询失败，跳过该区块段",
			slog.String("event", name),
			slog.Uint64("from_block", fromBlock),
			slog.Uint64("to_block", toBlock),
			slog.Any("error", err))
		return nil
	}

	var filtered []coretypes.Log
	for _, entry := range all {
		if len(entry.Topics) > 0 && entry.Topics[0] == topic {
			filtered = append(filtered, entry)
		}
	}
	return filtered
}

// probeCandidates checks every candidate against the ERC-4626 read surface,
// optionally across a bounded worker pool. Pacing is preserved through the
// shared throttle gate.
func (s *Scanner) probeCandidates(ctx context.Context, candidates []common.Address) []VaultRecord {
	if len(candidates) == 0 {
		return nil
	}

	workers := s.concurrency
	if workers > len(candidates) {
		workers = len(candidates)
	}
	if workers <= 1 {
		vaults := make([]VaultRecord, 0)
		for _, addr := range candidates {
			if ctx.Err() != nil {
				break
			}
			if record, ok := s.probe(ctx, addr); ok {
				vaults = append(vaults, record)
			}
		}
		return vaults
	}

	var (
		mu     sync.Mutex
		vaults []VaultRecord
		wg     sync.WaitGroup
	)
	work := make(chan common.Address)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for addr := range work {
				if ctx.Err() != nil {
					continue
				}
				if record, ok := s.probe(ctx, addr); ok {
					mu.Lock()
					vaults = append(vaults, record)
					mu.Unlock()
				}
			}
		}()
	}
	for _, addr := range candidates {
		work <- addr
	}
	close(work)
	wg.Wait()
	return vaults
}

// throttle enforces the configured minimum interval between provider calls,
// shared across all workers.
func (s *Scanner) throttle() {
	if s.pace <= 0 {
		return
	}
	s.paceMu.Lock()
	elapsed := time.Since(s.lastCall)
	if elapsed < s.pace {
		time.Sleep(s.pace - elapsed)
	}
	s.lastCall = time.Now()
	s.paceMu.Unlock()
}
