package scanner

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// VaultRecord describes one contract confirmed to implement the minimum
// ERC-4626 read surface. Optional fields are omitted when the corresponding
// probe failed; SharePrice is present only when totalSupply is positive.
type VaultRecord struct {
	Address              string   `json:"address"`
	Name                 string   `json:"name,omitempty"`
	Symbol               string   `json:"symbol,omitempty"`
	Decimals             *uint8   `json:"decimals,omitempty"`
	Asset                string   `json:"asset"`
	AssetName            string   `json:"asset_name,omitempty"`
	AssetSymbol          string   `json:"asset_symbol,omitempty"`
	AssetDecimals        *uint8   `json:"asset_decimals,omitempty"`
	TotalAssets          string   `json:"total_assets"`
	TotalSupply          string   `json:"total_supply,omitempty"`
	TotalAssetsFormatted string   `json:"total_assets_formatted,omitempty"`
	TotalSupplyFormatted string   `json:"total_supply_formatted,omitempty"`
	SharePrice           *float64 `json:"share_price,omitempty"`
}

// Report is the scanner's sole externally visible output.
type Report struct {
	ScanTimestamp    string        `json:"scan_timestamp"`
	FromBlock        uint64        `json:"from_block"`
	ToBlock          uint64        `json:"to_block"`
	TotalVaultsFound int           `json:"total_vaults_found"`
	Vaults           []VaultRecord `json:"vaults"`
}

// WriteJSON renders the report as indented JSON to the given sink.
func (r *Report) WriteJSON(w io.Writer) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(r); err != nil {
		return fmt.Errorf("序列化扫描报告失败: %w", err)
	}
	return nil
}

// WriteFile writes the report to a file path, or to stdout when the path is
// "-" or empty.
func (r *Report) WriteFile(path string) error {
	if path == "" || path == "-" {
		return r.WriteJSON(os.Stdout)
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("创建报告文件失败: %w", err)
	}
	defer file.Close()
	return r.WriteJSON(file)
}
