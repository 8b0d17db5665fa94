package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "flowpilot.json")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `{}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Address != ":8080" {
		t.Fatalf("unexpected server address %q", cfg.Server.Address)
	}
	if cfg.LLM.Provider != "openai" || cfg.LLM.APIKeyEnv != "OPENAI_API_KEY" {
		t.Fatalf("unexpected llm defaults %+v", cfg.LLM)
	}
	if cfg.Session.Backend != "memory" || cfg.Session.MaxTurns != 10 {
		t.Fatalf("unexpected session defaults %+v", cfg.Session)
	}
	if cfg.Engine.ConfidenceThreshold != 0.7 {
		t.Fatalf("unexpected threshold %v", cfg.Engine.ConfidenceThreshold)
	}
	if cfg.Engine.PendingTTL() != 10*time.Minute {
		t.Fatalf("unexpected pending ttl %v", cfg.Engine.PendingTTL())
	}
	if cfg.Scanner.ChunkSize != 10000 || cfg.Scanner.LookbackBlocks != 20000 {
		t.Fatalf("unexpected scanner defaults %+v", cfg.Scanner)
	}
	if cfg.Bridge.BaseURL != "http://127.0.0.1:3001" {
		t.Fatalf("unexpected bridge default %q", cfg.Bridge.BaseURL)
	}
}

func TestLoadOverrides(t *testing.T) {
	path := writeConfig(t, `{
		"server": {"address": ":9090"},
		"session": {"backend": "redis", "max_turns": 6},
		"engine": {"confidence_threshold": 0.85, "pending_ttl_seconds": 120},
		"web3": {"chain_config": "chains.yaml"}
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Address != ":9090" {
		t.Fatalf("unexpected address %q", cfg.Server.Address)
	}
	if cfg.Session.Backend != "redis" || cfg.Session.MaxTurns != 6 {
		t.Fatalf("unexpected session %+v", cfg.Session)
	}
	if cfg.Engine.PendingTTL() != 2*time.Minute {
		t.Fatalf("unexpected ttl %v", cfg.Engine.PendingTTL())
	}
	// 相对路径的链配置应被换算成相对配置文件所在目录的绝对路径。
	if !filepath.IsAbs(cfg.Web3.ChainConfig) {
		t.Fatalf("chain config still relative: %q", cfg.Web3.ChainConfig)
	}
	if filepath.Base(cfg.Web3.ChainConfig) != "chains.yaml" {
		t.Fatalf("unexpected chain config %q", cfg.Web3.ChainConfig)
	}
}

func TestLoadRejectsBadInput(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Fatalf("expected error for empty path")
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatalf("expected error for missing file")
	}
	path := writeConfig(t, `{not json`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for malformed json")
	}
}

func TestResolveAPIKeyPrefersEnv(t *testing.T) {
	t.Setenv("FLOWPILOT_TEST_KEY", "from-env")
	llm := LLMConfig{APIKey: "from-file", APIKeyEnv: "FLOWPILOT_TEST_KEY"}
	if got := llm.ResolveAPIKey(); got != "from-env" {
		t.Fatalf("expected env value, got %q", got)
	}

	llm.APIKeyEnv = "FLOWPILOT_TEST_KEY_UNSET"
	if got := llm.ResolveAPIKey(); got != "from-file" {
		t.Fatalf("expected file value, got %q", got)
	}
}
