package web3

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadChainDefinitions(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chains.yaml")
	content := `chains:
  flow-evm:
    type: evm
    rpc_url: https://mainnet.evm.nodes.onflow.org/
    native_symbol: FLOW
    description: Flow EVM mainnet
  ethereum:
    type: evm
    rpc_url: https://eth.llamarpc.com
    native_symbol: ETH
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	defs, err := LoadChainDefinitions(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(defs.Chains) != 2 {
		t.Fatalf("expected 2 chains, got %d", len(defs.Chains))
	}

	flow, ok := defs.Chains["flow-evm"]
	if !ok {
		t.Fatalf("flow-evm chain missing")
	}
	if flow.Type != "evm" || flow.NativeSymbol != "FLOW" {
		t.Fatalf("unexpected definition %+v", flow)
	}
	if flow.RPCURL != "https://mainnet.evm.nodes.onflow.org/" {
		t.Fatalf("unexpected rpc url %q", flow.RPCURL)
	}
}

func TestLoadChainDefinitionsEmptyPath(t *testing.T) {
	defs, err := LoadChainDefinitions("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if defs.Chains == nil || len(defs.Chains) != 0 {
		t.Fatalf("expected empty chain set, got %+v", defs.Chains)
	}
}

func TestLoadChainDefinitionsMissingFile(t *testing.T) {
	if _, err := LoadChainDefinitions(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestLoadChainDefinitionsMalformed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(path, []byte("chains: [not a map"), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	if _, err := LoadChainDefinitions(path); err == nil {
		t.Fatalf("expected error for malformed yaml")
	}
}
