package txbuilder

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/gateway-fm/batchsender/internal/rpc"
)

// transfer(address,uint256) = 0xa9059cbb
var tokenTransferSelector = common.FromHex("0xa9059cbb")

// TokenTransferBuilder builds token transfers: the transaction targets the
// token contract and carries an encoded transfer(address,uint256) call.
type TokenTransferBuilder struct {
	contract  common.Address
	recipient common.Address
	amount    *big.Int // raw token base units
}

// NewTokenTransferBuilder creates a token transfer builder.
func NewTokenTransferBuilder(contract, recipient common.Address, amount *big.Int) *TokenTransferBuilder {
	return &TokenTransferBuilder{
		contract:  contract,
		recipient: recipient,
		amount:    amount,
	}
}

// Build creates a token transfer transaction.
func (b *TokenTransferBuilder) Build(params TxParams) (*types.Transaction, error) {
	if err := validateParams(params); err != nil {
		return nil, err
	}
	data, err := EncodeTokenTransfer(b.recipient, b.amount)
	if err != nil {
		return nil, err
	}
	return NewTransferTx(params.ChainID, params.Nonce, b.contract, big.NewInt(0), params.GasLimit, params.GasTipCap, params.GasFeeCap, data, params.UseLegacy), nil
}

// EstimateMsg describes the token transfer for gas estimation.
func (b *TokenTransferBuilder) EstimateMsg(from common.Address) rpc.CallMsg {
	data, _ := EncodeTokenTransfer(b.recipient, b.amount)
	return rpc.CallMsg{
		From: from.Hex(),
		To:   b.contract.Hex(),
		Data: data,
	}
}

// EncodeTokenTransfer encodes a transfer(address,uint256) call:
// 4-byte selector, 32-byte left-padded recipient, 32-byte left-padded amount.
func EncodeTokenTransfer(to common.Address, amount *big.Int) ([]byte, error) {
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("amount must be non-negative")
	}
	if amount.BitLen() > 256 {
		return nil, fmt.Errorf("amount exceeds 256 bits")
	}
	data := make([]byte, 4+32+32)
	copy(data[0:4], tokenTransferSelector)
	copy(data[4+12:4+32], to.Bytes())
	amount.FillBytes(data[4+32 : 4+64])
	return data, nil
}

// DecodeTokenTransfer decodes a transfer(address,uint256) payload back into
// recipient and amount. Used by tests and the dispatch journal.
func DecodeTokenTransfer(data []byte) (common.Address, *big.Int, error) {
	if len(data) != 4+32+32 {
		return common.Address{}, nil, fmt.Errorf("unexpected payload length %d", len(data))
	}
	for i := 0; i < 4; i++ {
		if data[i] != tokenTransferSelector[i] {
			return common.Address{}, nil, fmt.Errorf("not a transfer(address,uint256) payload")
		}
	}
	var to common.Address
	copy(to[:], data[4+12:4+32])
	amount := new(big.Int).SetBytes(data[4+32 : 4+64])
	return to, amount, nil
}
