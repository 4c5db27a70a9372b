// Package account manages sender accounts for batch dispatch.
package account

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/gateway-fm/batchsender/internal/rpc"
)

// Account holds one sender's keys and state. The nonce is guarded by a mutex
// for the init phase; during dispatch exactly one dispatcher owns the account
// and is its only mutator.
type Account struct {
	PrivateKey *ecdsa.PrivateKey
	Address    common.Address
	Balance    *big.Int // informational snapshot from init time
	nonce      uint64
	mu         sync.Mutex
}

// NewAccount creates an account from a private key.
func NewAccount(privateKey *ecdsa.PrivateKey) *Account {
	return &Account{
		PrivateKey: privateKey,
		Address:    crypto.PubkeyToAddress(privateKey.PublicKey),
		Balance:    new(big.Int),
	}
}

// NewAccountFromHex creates an account from a hex-encoded private key.
// A leading 0x prefix is tolerated.
func NewAccountFromHex(hexKey string) (*Account, error) {
	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, err
	}
	return NewAccount(privateKey), nil
}

// PeekNonce returns the current nonce without incrementing.
func (a *Account) PeekNonce() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.nonce
}

// SetNonce sets the nonce value directly.
func (a *Account) SetNonce(nonce uint64) {
	a.mu.Lock()
	a.nonce = nonce
	a.mu.Unlock()
}

// IncrementNonce advances the nonce by one after a transaction was included
// on chain (confirmed or reverted both consume the nonce).
func (a *Account) IncrementNonce() {
	a.mu.Lock()
	a.nonce++
	a.mu.Unlock()
}

// Resync fetches the confirmed nonce from the chain and updates local state.
// Uses set-if-higher so a late-landing transaction observed by the gateway
// cannot move the account backwards.
func (a *Account) Resync(ctx context.Context, client rpc.Client) error {
	nonce, err := client.GetNonce(ctx, a.Address.Hex())
	if err != nil {
		return err
	}
	a.mu.Lock()
	if nonce > a.nonce {
		a.nonce = nonce
	}
	a.mu.Unlock()
	return nil
}
