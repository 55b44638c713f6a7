package aa

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const simpleAccountABIJSON = `[
	{
		"type": "function",
		"name": "execute",
		"inputs": [
			{"name": "dest", "type": "address"},
			{"name": "value", "type": "uint256"},
			{"name": "func", "type": "bytes"}
		],
		"outputs": []
	}
]`

const accountFactoryABIJSON = `[
	{
		"type": "function",
		"name": "createAccount",
		"inputs": [
			{"name": "owner", "type": "address"},
			{"name": "salt", "type": "uint256"}
		],
		"outputs": [{"name": "ret", "type": "address"}]
	},
	{
		"type": "function",
		"name": "getAddress",
		"stateMutability": "view",
		"inputs": [
			{"name": "owner", "type": "address"},
			{"name": "salt", "type": "uint256"}
		],
		"outputs": [{"name": "", "type": "address"}]
	}
]`

const entryPointABIJSON = `[
	{
		"type": "function",
		"name": "getNonce",
		"stateMutability": "view",
		"inputs": [
			{"name": "sender", "type": "address"},
			{"name": "key", "type": "uint192"}
		],
		"outputs": [{"name": "nonce", "type": "uint256"}]
	}
]`

var (
	simpleAccountABI  = mustParseABI(simpleAccountABIJSON)
	accountFactoryABI = mustParseABI(accountFactoryABIJSON)
	entryPointABI     = mustParseABI(entryPointABIJSON)
)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("aa: invalid ABI definition: %v", err))
	}
	return parsed
}

// EncodeExecute returns SimpleAccount.execute(to, value, data) calldata.
func EncodeExecute(to common.Address, value *big.Int, data []byte) ([]byte, error) {
	if value == nil {
		value = new(big.Int)
	}
	if data == nil {
		data = []byte{}
	}
	out, err := simpleAccountABI.Pack("execute", to, value, data)
	if err != nil {
		return nil, fmt.Errorf("failed to encode execute: %w", err)
	}
	return out, nil
}

// EncodeInitCode returns factory || createAccount(owner, salt), the initCode
// for a sender that has not been deployed yet.
func EncodeInitCode(factory, owner common.Address, salt *big.Int) ([]byte, error) {
	call, err := accountFactoryABI.Pack("createAccount", owner, salt)
	if err != nil {
		return nil, fmt.Errorf("failed to encode createAccount: %w", err)
	}
	return append(factory.Bytes(), call...), nil
}

// EncodeGetAddress returns factory.getAddress(owner, salt) calldata.
func EncodeGetAddress(owner common.Address, salt *big.Int) ([]byte, error) {
	out, err := accountFactoryABI.Pack("getAddress", owner, salt)
	if err != nil {
		return nil, fmt.Errorf("failed to encode getAddress: %w", err)
	}
	return out, nil
}

func DecodeGetAddress(result []byte) (common.Address, error) {
	values, err := accountFactoryABI.Unpack("getAddress", result)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to decode getAddress result: %w", err)
	}
	addr, ok := values[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("unexpected getAddress result type %T", values[0])
	}
	return addr, nil
}

// EncodeGetNonce returns entryPoint.getNonce(sender, key) calldata.
func EncodeGetNonce(sender common.Address, key *big.Int) ([]byte, error) {
	out, err := entryPointABI.Pack("getNonce", sender, key)
	if err != nil {
		return nil, fmt.Errorf("failed to encode getNonce: %w", err)
	}
	return out, nil
}

func DecodeGetNonce(result []byte) (*big.Int, error) {
	values, err := entryPointABI.Unpack("getNonce", result)
	if err != nil {
		return nil, fmt.Errorf("failed to decode getNonce result: %w", err)
	}
	nonce, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected getNonce result type %T", values[0])
	}
	return nonce, nil
}
