package executor

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNewBridgeValidation(t *testing.T) {
	if _, err := NewBridge(BridgeConfig{}); err == nil {
		t.Fatalf("expected error when base url is missing")
	}
}

func TestStakePostsToBridge(t *testing.T) {
	var captured struct {
		Path string
		Body map[string]any
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured.Path = r.URL.Path
		defer r.Body.Close()
		if err := json.NewDecoder(r.Body).Decode(&captured.Body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(Result{Success: true, TxHash: "0xdead", Message: "质押成功"})
	}))
	defer srv.Close()

	bridge, err := NewBridge(BridgeConfig{BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	result, err := bridge.Stake(context.Background(), 150, "blocto", "u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if captured.Path != "/stake" {
		t.Fatalf("unexpected path %q", captured.Path)
	}
	if captured.Body["amount"] != 150.0 || captured.Body["validator"] != "blocto" {
		t.Fatalf("unexpected body %+v", captured.Body)
	}
	if !result.Success || result.TxHash != "0xdead" {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestBridgeFailureResultPassedThrough(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(Result{Success: false, Message: "余额不足"})
	}))
	defer srv.Close()

	bridge, err := NewBridge(BridgeConfig{BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	result, err := bridge.Swap(context.Background(), 10, "flow", "usdc", "u1", 0.5)
	if err != nil {
		t.Fatalf("4xx with body must not be a transport error: %v", err)
	}
	if result.Success || result.Message != "余额不足" {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestBridgeServerErrorIsTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	bridge, err := NewBridge(BridgeConfig{BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := bridge.VaultDeposit(context.Background(), "0xvault", 10, "u1"); err == nil {
		t.Fatalf("5xx must surface as error")
	}
}

type fakeReader struct {
	balance string
	err     error
}

func (f *fakeReader) BalanceOf(_ context.Context, _ string) (string, error) {
	return f.balance, f.err
}

func TestBalancePrefersChainReader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("bridge must not be called when a chain reader is configured")
	}))
	defer srv.Close()

	bridge, err := NewBridge(BridgeConfig{BaseURL: srv.URL},
		WithChainReader(&fakeReader{balance: "12.5 FLOW"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	result, err := bridge.Balance(context.Background(), "0xabc12345")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Success || !strings.Contains(result.Message, "12.5 FLOW") {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestBalanceChainReaderError(t *testing.T) {
	bridge, err := NewBridge(BridgeConfig{BaseURL: "http://127.0.0.1:0"},
		WithChainReader(&fakeReader{err: errors.New("节点不可达")}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := bridge.Balance(context.Background(), "0xabc12345"); err == nil {
		t.Fatalf("chain reader failure must surface as error")
	}
}
