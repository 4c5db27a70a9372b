// Package txbuilder assembles chain-ready transfer transactions.
// Builders are pure: no network calls, identical inputs yield identical output.
package txbuilder

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/gateway-fm/batchsender/internal/rpc"
)

// TxParams holds per-account parameters for building a transaction.
type TxParams struct {
	ChainID   *big.Int
	Nonce     uint64
	From      common.Address
	GasLimit  uint64
	GasTipCap *big.Int
	GasFeeCap *big.Int
	UseLegacy bool
}

// Builder builds one kind of transfer transaction.
type Builder interface {
	// Build creates an unsigned transaction for the given sender snapshot.
	Build(params TxParams) (*types.Transaction, error)

	// EstimateMsg describes the transfer for eth_estimateGas, used only
	// when no fixed gas limit is configured.
	EstimateMsg(from common.Address) rpc.CallMsg
}

// NewTransferTx creates either a DynamicFeeTx or LegacyTx depending on useLegacy.
// For legacy transactions, gasFeeCap is used as the gas price.
func NewTransferTx(chainID *big.Int, nonce uint64, to common.Address, value *big.Int, gasLimit uint64, gasTipCap *big.Int, gasFeeCap *big.Int, data []byte, useLegacy bool) *types.Transaction {
	if useLegacy {
		return types.NewTx(&types.LegacyTx{
			Nonce:    nonce,
			GasPrice: gasFeeCap,
			Gas:      gasLimit,
			To:       &to,
			Value:    value,
			Data:     data,
		})
	}
	return types.NewTx(&types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     nonce,
		GasTipCap: gasTipCap,
		GasFeeCap: gasFeeCap,
		Gas:       gasLimit,
		To:        &to,
		Value:     value,
		Data:      data,
	})
}

func validateParams(params TxParams) error {
	if params.ChainID == nil || params.ChainID.Sign() == 0 {
		return fmt.Errorf("ChainID must be non-nil and non-zero")
	}
	if params.GasLimit == 0 {
		return fmt.Errorf("gas limit must be resolved before building")
	}
	return nil
}
