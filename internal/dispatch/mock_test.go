package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"sync"

	"github.com/gateway-fm/batchsender/internal/rpc"
)

// mockGateway is a scriptable in-memory chain gateway shared by the
// dispatch tests.
type mockGateway struct {
	mu sync.Mutex

	nonces   map[string]uint64            // returned by GetNonce
	receipts map[string]*rpc.TransactionReceipt // nil entry = still pending

	sendErr    error
	sendFn     func(attempt int) (string, error) // overrides default behavior
	receiptErr error

	sent         [][]byte
	sendCalls    int
	receiptPolls map[string]int
}

func newMockGateway() *mockGateway {
	return &mockGateway{
		nonces:       make(map[string]uint64),
		receipts:     make(map[string]*rpc.TransactionReceipt),
		receiptPolls: make(map[string]int),
	}
}

func (m *mockGateway) Call(ctx context.Context, method string, params []interface{}) (json.RawMessage, error) {
	return nil, nil
}

func (m *mockGateway) ChainID(ctx context.Context) (uint64, error) { return 42069, nil }

func (m *mockGateway) GetBalance(ctx context.Context, address string) (*big.Int, error) {
	return big.NewInt(1_000_000_000_000_000_000), nil
}

func (m *mockGateway) GetNonce(ctx context.Context, address string) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nonces[address], nil
}

func (m *mockGateway) GetGasPrice(ctx context.Context) (uint64, error) { return 1_000_000_000, nil }

func (m *mockGateway) EstimateGas(ctx context.Context, msg rpc.CallMsg) (uint64, error) {
	return 21000, nil
}

func (m *mockGateway) CallContract(ctx context.Context, to string, data []byte) ([]byte, error) {
	return make([]byte, 32), nil
}

func (m *mockGateway) SendRawTransaction(ctx context.Context, txRLP []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sendCalls++
	if m.sendFn != nil {
		hash, err := m.sendFn(m.sendCalls)
		if err != nil {
			return "", err
		}
		m.sent = append(m.sent, txRLP)
		return hash, nil
	}
	if m.sendErr != nil {
		return "", m.sendErr
	}
	m.sent = append(m.sent, txRLP)
	return fmt.Sprintf("0xhash%d", len(m.sent)), nil
}

func (m *mockGateway) GetTransactionReceipt(ctx context.Context, txHash string) (*rpc.TransactionReceipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.receiptPolls[txHash]++
	if m.receiptErr != nil {
		return nil, m.receiptErr
	}
	return m.receipts[txHash], nil
}

func receiptWith(status, block uint64) *rpc.TransactionReceipt {
	return &rpc.TransactionReceipt{Status: status, GasUsed: 21000, BlockNumber: block}
}

func (m *mockGateway) setReceipt(txHash string, receipt *rpc.TransactionReceipt) {
	m.mu.Lock()
	m.receipts[txHash] = receipt
	m.mu.Unlock()
}

func (m *mockGateway) sentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}
