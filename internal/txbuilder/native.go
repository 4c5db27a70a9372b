package txbuilder

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/gateway-fm/batchsender/internal/rpc"
)

// AddressPlaceholder is the token replaced by the sender's own address in
// native transfer data templates.
const AddressPlaceholder = "{address}"

// NativeTransferBuilder builds native value transfers with an optional
// operator-supplied data payload.
type NativeTransferBuilder struct {
	recipient    common.Address
	value        *big.Int
	dataTemplate string
}

// NewNativeTransferBuilder creates a native transfer builder.
// value is in wei; dataTemplate may be empty for a plain transfer.
func NewNativeTransferBuilder(recipient common.Address, value *big.Int, dataTemplate string) *NativeTransferBuilder {
	return &NativeTransferBuilder{
		recipient:    recipient,
		value:        value,
		dataTemplate: dataTemplate,
	}
}

// Build creates a native transfer transaction.
func (b *NativeTransferBuilder) Build(params TxParams) (*types.Transaction, error) {
	if err := validateParams(params); err != nil {
		return nil, err
	}

	var data []byte
	if b.dataTemplate != "" {
		var err error
		data, err = decodeTemplate(b.dataTemplate, params.From)
		if err != nil {
			return nil, err
		}
	}

	return NewTransferTx(params.ChainID, params.Nonce, b.recipient, b.value, params.GasLimit, params.GasTipCap, params.GasFeeCap, data, params.UseLegacy), nil
}

// EstimateMsg describes the transfer for gas estimation.
func (b *NativeTransferBuilder) EstimateMsg(from common.Address) rpc.CallMsg {
	var data []byte
	if b.dataTemplate != "" {
		data = common.FromHex(SubstituteAddress(b.dataTemplate, from))
	}
	return rpc.CallMsg{
		From:  from.Hex(),
		To:    b.recipient.Hex(),
		Value: b.value,
		Data:  data,
	}
}

// decodeTemplate substitutes the sender address and decodes the result as
// hex. Rejecting malformed templates here keeps a typo from silently turning
// into an empty payload.
func decodeTemplate(template string, addr common.Address) ([]byte, error) {
	s := strings.TrimPrefix(SubstituteAddress(template, addr), "0x")
	data, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("data template is not valid hex after substitution: %w", err)
	}
	return data, nil
}

// SubstituteAddress replaces every placeholder occurrence with the sender
// address as lowercase hex without the 0x prefix. This is a deliberate raw
// substitution: no padding and no ABI encoding.
func SubstituteAddress(template string, addr common.Address) string {
	hex := strings.ToLower(strings.TrimPrefix(addr.Hex(), "0x"))
	return strings.ReplaceAll(template, AddressPlaceholder, hex)
}
