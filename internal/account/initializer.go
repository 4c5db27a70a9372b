package account

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/gateway-fm/batchsender/internal/rpc"
	"github.com/gateway-fm/batchsender/pkg/types"
)

// balanceOf(address) = 0x70a08231
var balanceOfSelector = common.FromHex("0x70a08231")

// KeyError records a raw key that failed derivation or state lookup.
// The key index refers to the original key file ordering.
type KeyError struct {
	Index int
	Err   error
}

// InitializerConfig configures the account initializer.
type InitializerConfig struct {
	Client        rpc.Client
	Workers       int
	Mode          types.TransferMode
	TokenContract common.Address
	Logger        *slog.Logger
}

// Initializer derives account identities from raw keys and resolves their
// balance and nonce with a pool of concurrent workers.
type Initializer struct {
	client        rpc.Client
	workers       int
	mode          types.TransferMode
	tokenContract common.Address
	logger        *slog.Logger
}

// NewInitializer creates an initializer.
func NewInitializer(cfg InitializerConfig) *Initializer {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Initializer{
		client:        cfg.Client,
		workers:       workers,
		mode:          cfg.Mode,
		tokenContract: cfg.TokenContract,
		logger:        logger,
	}
}

// Run derives and initializes accounts for all raw keys. Per-key failures are
// isolated: a malformed key or failed state lookup is recorded and the batch
// proceeds with whatever accounts succeeded. Every key that passes derivation
// and lookup yields exactly one account; results keep the key file's order
// regardless of worker count.
func (in *Initializer) Run(ctx context.Context, rawKeys []string) ([]*Account, []KeyError) {
	type job struct {
		idx int
		key string
	}

	jobs := make(chan job, len(rawKeys))
	for i, k := range rawKeys {
		jobs <- job{idx: i, key: k}
	}
	close(jobs)

	// Each worker writes only its claimed slots, so no mutex is needed here.
	results := make([]*Account, len(rawKeys))
	errs := make([]error, len(rawKeys))

	var wg sync.WaitGroup
	for w := 0; w < in.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				acc, err := in.initOne(ctx, j.key)
				if err != nil {
					in.logger.Warn("account init failed",
						slog.Int("key_idx", j.idx),
						slog.String("error", err.Error()),
					)
					errs[j.idx] = err
					continue
				}

				in.logger.Info("account loaded",
					slog.String("address", acc.Address.Hex()),
					slog.Uint64("nonce", acc.PeekNonce()),
					slog.String("balance", acc.Balance.String()),
				)
				results[j.idx] = acc
			}
		}()
	}
	wg.Wait()

	var (
		accounts []*Account
		failures []KeyError
	)
	for i := range rawKeys {
		if errs[i] != nil {
			failures = append(failures, KeyError{Index: i, Err: errs[i]})
			continue
		}
		accounts = append(accounts, results[i])
	}
	return accounts, failures
}

// initOne derives one account and fills its balance and nonce snapshot.
func (in *Initializer) initOne(ctx context.Context, rawKey string) (*Account, error) {
	acc, err := NewAccountFromHex(rawKey)
	if err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}

	balance, err := in.fetchBalance(ctx, acc.Address)
	if err != nil {
		return nil, fmt.Errorf("balance %s: %w", acc.Address.Hex(), err)
	}
	acc.Balance = balance

	nonce, err := in.client.GetNonce(ctx, acc.Address.Hex())
	if err != nil {
		return nil, fmt.Errorf("nonce %s: %w", acc.Address.Hex(), err)
	}
	acc.SetNonce(nonce)

	return acc, nil
}

// fetchBalance returns the account balance in base units: wei for native
// transfers, raw token units for token transfers (balanceOf eth_call).
func (in *Initializer) fetchBalance(ctx context.Context, addr common.Address) (*big.Int, error) {
	if in.mode == types.ModeToken {
		data := make([]byte, 4+32)
		copy(data[0:4], balanceOfSelector)
		copy(data[4+12:4+32], addr.Bytes())

		out, err := in.client.CallContract(ctx, in.tokenContract.Hex(), data)
		if err != nil {
			return nil, err
		}
		return new(big.Int).SetBytes(out), nil
	}
	return in.client.GetBalance(ctx, addr.Hex())
}
