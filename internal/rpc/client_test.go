package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func testClient(url string) *HTTPClient {
	cfg := DefaultClientConfig(url)
	cfg.InitialBackoff = time.Millisecond
	cfg.MaxBackoff = 5 * time.Millisecond
	return NewHTTPClient(cfg)
}

func rpcResult(t *testing.T, w http.ResponseWriter, result any) {
	t.Helper()
	raw, err := json.Marshal(result)
	if err != nil {
		t.Fatalf("failed to marshal result: %v", err)
	}
	fmt.Fprintf(w, `{"jsonrpc":"2.0","result":%s,"id":1}`, raw)
}

func TestCall_Success(t *testing.T) {
	var gotMethod string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req JSONRPCRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		gotMethod = req.Method
		rpcResult(t, w, "0xa455")
	}))
	defer srv.Close()

	client := testClient(srv.URL)
	chainID, err := client.ChainID(context.Background())
	if err != nil {
		t.Fatalf("ChainID() error = %v", err)
	}
	if chainID != 0xa455 {
		t.Errorf("ChainID() = %d, want %d", chainID, 0xa455)
	}
	if gotMethod != "eth_chainId" {
		t.Errorf("method = %q, want eth_chainId", gotMethod)
	}
}

func TestGetNonce_UsesLatest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req JSONRPCRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Method != "eth_getTransactionCount" {
			t.Errorf("method = %q, want eth_getTransactionCount", req.Method)
		}
		if len(req.Params) != 2 || req.Params[1] != "latest" {
			t.Errorf("params = %v, want [addr latest]", req.Params)
		}
		rpcResult(t, w, "0x7")
	}))
	defer srv.Close()

	nonce, err := testClient(srv.URL).GetNonce(context.Background(), "0xabc")
	if err != nil {
		t.Fatalf("GetNonce() error = %v", err)
	}
	if nonce != 7 {
		t.Errorf("GetNonce() = %d, want 7", nonce)
	}
}

func TestGetBalance(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rpcResult(t, w, "0xde0b6b3a7640000") // 1 ether
	}))
	defer srv.Close()

	balance, err := testClient(srv.URL).GetBalance(context.Background(), "0xabc")
	if err != nil {
		t.Fatalf("GetBalance() error = %v", err)
	}
	if balance.String() != "1000000000000000000" {
		t.Errorf("GetBalance() = %s, want 1000000000000000000", balance)
	}
}

func TestSendRawTransaction(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req JSONRPCRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Params[0] != "0xdeadbeef" {
			t.Errorf("params[0] = %v, want 0xdeadbeef", req.Params[0])
		}
		rpcResult(t, w, "0x1111")
	}))
	defer srv.Close()

	hash, err := testClient(srv.URL).SendRawTransaction(context.Background(), []byte{0xde, 0xad, 0xbe, 0xef})
	if err != nil {
		t.Fatalf("SendRawTransaction() error = %v", err)
	}
	if hash != "0x1111" {
		t.Errorf("hash = %q, want 0x1111", hash)
	}
}

func TestGetTransactionReceipt(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"jsonrpc":"2.0","result":{"status":"0x1","gasUsed":"0x5208","blockNumber":"0x64"},"id":1}`)
	}))
	defer srv.Close()

	receipt, err := testClient(srv.URL).GetTransactionReceipt(context.Background(), "0xabc")
	if err != nil {
		t.Fatalf("GetTransactionReceipt() error = %v", err)
	}
	if receipt == nil {
		t.Fatal("receipt is nil")
	}
	if receipt.Status != 1 || receipt.GasUsed != 21000 || receipt.BlockNumber != 100 {
		t.Errorf("receipt = %+v, want status 1, gasUsed 21000, blockNumber 100", receipt)
	}
}

func TestGetTransactionReceipt_Pending(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"jsonrpc":"2.0","result":null,"id":1}`)
	}))
	defer srv.Close()

	receipt, err := testClient(srv.URL).GetTransactionReceipt(context.Background(), "0xabc")
	if err != nil {
		t.Fatalf("GetTransactionReceipt() error = %v", err)
	}
	if receipt != nil {
		t.Errorf("receipt = %+v, want nil for pending tx", receipt)
	}
}

func TestCall_RetriesOn503(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		rpcResult(t, w, "0x1")
	}))
	defer srv.Close()

	chainID, err := testClient(srv.URL).ChainID(context.Background())
	if err != nil {
		t.Fatalf("ChainID() error = %v", err)
	}
	if chainID != 1 {
		t.Errorf("ChainID() = %d, want 1", chainID)
	}
	if calls.Load() != 3 {
		t.Errorf("server saw %d calls, want 3", calls.Load())
	}
}

func TestCall_HonorsRetryAfter(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "0.01")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		rpcResult(t, w, "0x1")
	}))
	defer srv.Close()

	if _, err := testClient(srv.URL).ChainID(context.Background()); err != nil {
		t.Fatalf("ChainID() error = %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("server saw %d calls, want 2", calls.Load())
	}
}

func TestCall_RPCErrorNotRetried(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		fmt.Fprint(w, `{"jsonrpc":"2.0","error":{"code":-32000,"message":"nonce too low"},"id":1}`)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).SendRawTransaction(context.Background(), []byte{0x01})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) {
		t.Fatalf("error = %T, want *RPCError", err)
	}
	if rpcErr.Code != -32000 {
		t.Errorf("code = %d, want -32000", rpcErr.Code)
	}
	if calls.Load() != 1 {
		t.Errorf("server saw %d calls, want 1 (no retry on RPC error)", calls.Load())
	}
}

func TestCall_ExhaustsRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).ChainID(context.Background())
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	var httpErr *HTTPStatusError
	if !errors.As(err, &httpErr) {
		t.Fatalf("error = %T, want wrapped *HTTPStatusError", err)
	}
	if httpErr.StatusCode != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", httpErr.StatusCode)
	}
}

func TestEstimateGas_Encoding(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req JSONRPCRequest
		json.NewDecoder(r.Body).Decode(&req)
		arg, ok := req.Params[0].(map[string]interface{})
		if !ok {
			t.Fatalf("params[0] = %T, want object", req.Params[0])
		}
		if arg["from"] != "0xfrom" || arg["to"] != "0xto" {
			t.Errorf("arg = %v", arg)
		}
		if arg["data"] != "0x01" {
			t.Errorf("data = %v, want 0x01", arg["data"])
		}
		rpcResult(t, w, "0x5208")
	}))
	defer srv.Close()

	gas, err := testClient(srv.URL).EstimateGas(context.Background(), CallMsg{
		From: "0xfrom",
		To:   "0xto",
		Data: []byte{0x01},
	})
	if err != nil {
		t.Fatalf("EstimateGas() error = %v", err)
	}
	if gas != 21000 {
		t.Errorf("EstimateGas() = %d, want 21000", gas)
	}
}
