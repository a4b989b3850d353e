package ethrpc

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

// rpcHandler answers every JSON-RPC method from a fixed result map.
func rpcHandler(t *testing.T, results map[string]interface{}) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}

		result, ok := results[req.Method]
		if !ok {
			t.Errorf("unexpected method %s", req.Method)
		}

		resp := map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result":  result,
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}
}

func TestHTTPClient_GasPrice(t *testing.T) {
	server := httptest.NewServer(rpcHandler(t, map[string]interface{}{
		"eth_gasPrice": "0x6fc23ac00",
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL)
	price, err := client.GasPrice(context.Background())
	if err != nil {
		t.Fatalf("GasPrice: %v", err)
	}
	if price.Cmp(big.NewInt(30_000_000_000)) != 0 {
		t.Errorf("GasPrice = %v, want 30000000000", price)
	}
}

func TestHTTPClient_BlockNumber(t *testing.T) {
	server := httptest.NewServer(rpcHandler(t, map[string]interface{}{
		"eth_blockNumber": "0x1312d00",
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL)
	number, err := client.BlockNumber(context.Background())
	if err != nil {
		t.Fatalf("BlockNumber: %v", err)
	}
	if number != 20_000_000 {
		t.Errorf("BlockNumber = %d, want 20000000", number)
	}
}

func TestHTTPClient_LatestBlock(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Method != "eth_getBlockByNumber" {
			t.Errorf("expected eth_getBlockByNumber, got %s", req.Method)
		}
		if len(req.Params) != 2 || req.Params[0] != "latest" || req.Params[1] != false {
			t.Errorf("unexpected params %v", req.Params)
		}

		resp := map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result": map[string]interface{}{
				"number":        "0x1312d00",
				"hash":          "0xblockhash",
				"parentHash":    "0xparent",
				"timestamp":     "0x665aa100",
				"gasUsed":       "0xe4e1c0",
				"gasLimit":      "0x1c9c380",
				"baseFeePerGas": "0x6fc23ac00",
				"transactions":  []string{"0xt1", "0xt2"},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL)
	block, err := client.LatestBlock(context.Background())
	if err != nil {
		t.Fatalf("LatestBlock: %v", err)
	}
	if block == nil {
		t.Fatal("expected block, got nil")
	}
	if block.Number != 20_000_000 {
		t.Errorf("Number = %d, want 20000000", block.Number)
	}
	if block.TxCount != 2 {
		t.Errorf("TxCount = %d, want 2", block.TxCount)
	}
}

func TestHTTPClient_BlockByNumber_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		// Hex-encoded block number in params.
		if req.Params[0] != "0x64" {
			t.Errorf("expected params[0] 0x64, got %v", req.Params[0])
		}
		w.Header().Set("Content-Type", "application/json")
		if _, err := w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":null}`)); err != nil {
			t.Fatalf("write response: %v", err)
		}
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL)
	block, err := client.BlockByNumber(context.Background(), 100)
	if err != nil {
		t.Fatalf("BlockByNumber: %v", err)
	}
	if block != nil {
		t.Errorf("expected nil for an unknown block, got %+v", block)
	}
}

func TestHTTPClient_TxPoolStatus(t *testing.T) {
	server := httptest.NewServer(rpcHandler(t, map[string]interface{}{
		"txpool_status": map[string]string{"pending": "0x7d0", "queued": "0x64"},
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL)
	status, err := client.TxPoolStatus(context.Background())
	if err != nil {
		t.Fatalf("TxPoolStatus: %v", err)
	}
	if status.Pending != 2000 {
		t.Errorf("Pending = %d, want 2000", status.Pending)
	}
	if status.Queued != 100 {
		t.Errorf("Queued = %d, want 100", status.Queued)
	}
}

func TestHTTPClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		resp := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID, "result": "0x1"}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL,
		WithMaxRetries(3),
		WithRetryDelay(time.Millisecond),
		WithMaxDelay(5*time.Millisecond),
	)
	number, err := client.BlockNumber(context.Background())
	if err != nil {
		t.Fatalf("BlockNumber after retries: %v", err)
	}
	if number != 1 {
		t.Errorf("BlockNumber = %d, want 1", number)
	}
	if calls.Load() != 3 {
		t.Errorf("server saw %d calls, want 3", calls.Load())
	}
}

func TestHTTPClient_ExhaustedRetries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL,
		WithMaxRetries(2),
		WithRetryDelay(time.Millisecond),
		WithMaxDelay(2*time.Millisecond),
	)
	_, err := client.BlockNumber(context.Background())
	if err == nil {
		t.Fatal("expected error when every attempt is rate limited")
	}
	if !strings.Contains(err.Error(), "max retries exceeded") {
		t.Errorf("error = %v, want max retries exceeded", err)
	}
}

func TestHTTPClient_RPCErrorNotRetried(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		resp := map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"error":   map[string]interface{}{"code": -32601, "message": "method not found"},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, WithMaxRetries(3), WithRetryDelay(time.Millisecond))
	_, err := client.TxPoolStatus(context.Background())
	if err == nil {
		t.Fatal("expected RPC error")
	}
	if !strings.Contains(err.Error(), "method not found") {
		t.Errorf("error = %v, want method not found", err)
	}
	if calls.Load() != 1 {
		t.Errorf("server saw %d calls, want 1 (RPC errors must not retry)", calls.Load())
	}
}
