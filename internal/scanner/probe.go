package scanner

import (
	"context"
	"log/slog"
	"math"
	"math/big"
	"strings"

	gethcore "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Minimal ABI covering the critical ERC-4626 read methods plus the
// informational ERC-20 surface. Probing calls each method individually so a
// contract that implements only part of the surface still yields data.
const vaultABIJSON = `[
	{"inputs":[],"name":"asset","outputs":[{"type":"address"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"totalAssets","outputs":[{"type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"type":"uint256","name":"shares"}],"name":"convertToAssets","outputs":[{"type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"type":"uint256","name":"assets"}],"name":"convertToShares","outputs":[{"type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"name","outputs":[{"type":"string"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"symbol","outputs":[{"type":"string"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"decimals","outputs":[{"type":"uint8"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"totalSupply","outputs":[{"type":"uint256"}],"stateMutability":"view","type":"function"}
]`

var vaultABI = mustParseABI(vaultABIJSON)

// probeConvertValue is the small amount used to exercise the conversion
// methods, matching one unit of a six-decimal token.
var probeConvertValue = big.NewInt(1_000_000)

func mustParseABI(definition string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(definition))
	if err != nil {
		panic(err)
	}
	return parsed
}

// probe checks one candidate against the ERC-4626 surface. A candidate is
// accepted iff both asset() and totalAssets() answer; every other method is
// informational and its failure is tolerated.
func (s *Scanner) probe(ctx context.Context, address common.Address) (VaultRecord, bool) {
	record := VaultRecord{Address: address.Hex()}

	var asset common.Address
	hasAsset := s.attempt(ctx, address, "asset", &asset)

	totalAssets := new(big.Int)
	hasTotalAssets := s.attempt(ctx, address, "totalAssets", totalAssets)

	if !hasAsset || !hasTotalAssets {
		return VaultRecord{}, false
	}

	// Conversion methods are probed for interface coverage; their results
	// are not part of the report.
	s.attempt(ctx, address, "convertToAssets", new(big.Int), probeConvertValue)
	s.attempt(ctx, address, "convertToShares", new(big.Int), probeConvertValue)

	record.Asset = asset.Hex()
	record.TotalAssets = totalAssets.String()
	record.TotalAssetsFormatted = formatUnits(totalAssets)

	var name string
	if s.attempt(ctx, address, "name", &name) {
		record.Name = name
	}
	var symbol string
	if s.attempt(ctx, address, "symbol", &symbol) {
		record.Symbol = symbol
	}
	var decimals uint8
	if s.attempt(ctx, address, "decimals", &decimals) {
		record.Decimals = &decimals
	}

	totalSupply := new(big.Int)
	if s.attempt(ctx, address, "totalSupply", totalSupply) {
		record.TotalSupply = totalSupply.String()
		record.TotalSupplyFormatted = formatUnits(totalSupply)
		if price, ok := sharePrice(totalAssets, totalSupply); ok {
			record.SharePrice = &price
		}
	}

	s.probeAsset(ctx, asset, &record)

	s.log.Debug("接受金库", slog.String("address", record.Address), slog.String("symbol", record.Symbol))
	return record, true
}

// probeAsset performs the secondary probe of the underlying asset contract
// for its own name/symbol/decimals. Failures leave the fields absent.
func (s *Scanner) probeAsset(ctx context.Context, asset common.Address, record *VaultRecord) {
	var name string
	if s.attempt(ctx, asset, "name", &name) {
		record.AssetName = name
	}
	var symbol string
	if s.attempt(ctx, asset, "symbol", &symbol) {
		record.AssetSymbol = symbol
	}
	var decimals uint8
	if s.attempt(ctx, asset, "decimals", &decimals) {
		record.AssetDecimals = &decimals
	}
}

// attempt is the uniform probing combinator: pack the call, execute it, and
// unpack the single return value into out. Any failure (revert, empty
// return, decode mismatch) reports false without propagating.
func (s *Scanner) attempt(ctx context.Context, address common.Address, method string, out any, args ...any) bool {
	input, err := vaultABI.Pack(method, args...)
	if err != nil {
		return false
	}

	s.throttle()
	output, err := s.chain.CallContract(ctx, gethcore.CallMsg{To: &address, Data: input}, nil)
	if err != nil || len(output) == 0 {
		return false
	}

	values, err := vaultABI.Unpack(method, output)
	if err != nil || len(values) == 0 {
		return false
	}
	return assign(out, values[0])
}

// assign copies a decoded ABI value into the typed destination.
func assign(out, value any) bool {
	switch dst := out.(type) {
	case *common.Address:
		v, ok := value.(common.Address)
		if !ok {
			return false
		}
		*dst = v
	case *big.Int:
		v, ok := value.(*big.Int)
		if !ok || v == nil {
			return false
		}
		dst.Set(v)
	case *string:
		v, ok := value.(string)
		if !ok {
			return false
		}
		*dst = v
	case *uint8:
		v, ok := value.(uint8)
		if !ok {
			return false
		}
		*dst = v
	default:
		return false
	}
	return true
}

// sharePrice computes totalAssets/totalSupply as a float. It reports false
// when totalSupply is zero or the quotient is not a finite number, so the
// field can be omitted instead of leaking NaN/Inf into the report.
func sharePrice(totalAssets, totalSupply *big.Int) (float64, bool) {
	if totalSupply == nil || totalSupply.Sign() <= 0 {
		return 0, false
	}
	quotient := new(big.Float).Quo(
		new(big.Float).SetInt(totalAssets),
		new(big.Float).SetInt(totalSupply),
	)
	price, _ := quotient.Float64()
	if math.IsNaN(price) || math.IsInf(price, 0) {
		return 0, false
	}
	return price, true
}

// formatUnits renders a raw 18-decimal amount as a human-scaled decimal
// string, trimming insignificant trailing zeros.
func formatUnits(raw *big.Int) string {
	if raw == nil || raw.Sign() == 0 {
		return "0"
	}
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	whole := new(big.Int).Quo(raw, scale)
	frac := new(big.Int).Rem(raw, scale)
	if frac.Sign() == 0 {
		return whole.String()
	}
	fracText := strings.TrimRight(
		strings.Repeat("0", 18-len(frac.String()))+frac.String(), "0")
	return whole.String() + "." + fracText
}
