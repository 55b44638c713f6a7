package aa

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// DummySignature has the shape of a real owner signature. Paymasters and
// bundlers simulate validation with it before the operation is signed.
var DummySignature = hexutil.MustDecode("0xfffffffffffffffffffffffffffffff0000000000000000000000000000000007aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa1c")

// UserOperation is an EntryPoint v0.6 user operation.
type UserOperation struct {
	Sender               common.Address
	Nonce                *big.Int
	InitCode             []byte
	CallData             []byte
	CallGasLimit         *big.Int
	VerificationGasLimit *big.Int
	PreVerificationGas   *big.Int
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
	PaymasterAndData     []byte
	Signature            []byte
}

// PaymasterAddress extracts the paymaster address from PaymasterAndData.
// Returns zero address if no paymaster.
func (op *UserOperation) PaymasterAddress() common.Address {
	if len(op.PaymasterAndData) < common.AddressLength {
		return common.Address{}
	}
	return common.BytesToAddress(op.PaymasterAndData[:common.AddressLength])
}

// HasPaymaster returns true if this operation has a paymaster.
func (op *UserOperation) HasPaymaster() bool {
	return op.PaymasterAddress() != (common.Address{})
}

// TotalGasLimit returns total gas required for the operation.
func (op *UserOperation) TotalGasLimit() *big.Int {
	total := new(big.Int)
	for _, g := range []*big.Int{op.CallGasLimit, op.VerificationGasLimit, op.PreVerificationGas} {
		if g != nil {
			total.Add(total, g)
		}
	}
	return total
}

var (
	addressTy = mustType("address")
	uint256Ty = mustType("uint256")
	bytes32Ty = mustType("bytes32")

	packedOpArgs = abi.Arguments{
		{Type: addressTy}, // sender
		{Type: uint256Ty}, // nonce
		{Type: bytes32Ty}, // keccak(initCode)
		{Type: bytes32Ty}, // keccak(callData)
		{Type: uint256Ty}, // callGasLimit
		{Type: uint256Ty}, // verificationGasLimit
		{Type: uint256Ty}, // preVerificationGas
		{Type: uint256Ty}, // maxFeePerGas
		{Type: uint256Ty}, // maxPriorityFeePerGas
		{Type: bytes32Ty}, // keccak(paymasterAndData)
	}
	opHashArgs = abi.Arguments{
		{Type: bytes32Ty},
		{Type: addressTy},
		{Type: uint256Ty},
	}
)

func mustType(t string) abi.Type {
	ty, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(fmt.Sprintf("aa: invalid ABI type %q: %v", t, err))
	}
	return ty
}

// Pack returns the ABI encoding of the operation without its signature, with
// dynamic fields replaced by their keccak256 hashes.
func (op *UserOperation) Pack() ([]byte, error) {
	out, err := packedOpArgs.Pack(
		op.Sender,
		orZero(op.Nonce),
		common.BytesToHash(crypto.Keccak256(op.InitCode)),
		common.BytesToHash(crypto.Keccak256(op.CallData)),
		orZero(op.CallGasLimit),
		orZero(op.VerificationGasLimit),
		orZero(op.PreVerificationGas),
		orZero(op.MaxFeePerGas),
		orZero(op.MaxPriorityFeePerGas),
		common.BytesToHash(crypto.Keccak256(op.PaymasterAndData)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to pack user operation: %w", err)
	}
	return out, nil
}

// Hash returns the user operation hash as computed by EntryPoint.getUserOpHash.
func (op *UserOperation) Hash(entryPoint common.Address, chainID *big.Int) (common.Hash, error) {
	packed, err := op.Pack()
	if err != nil {
		return common.Hash{}, err
	}
	enc, err := opHashArgs.Pack(common.BytesToHash(crypto.Keccak256(packed)), entryPoint, orZero(chainID))
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to encode user operation hash: %w", err)
	}
	return crypto.Keccak256Hash(enc), nil
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

type userOperationJSON struct {
	Sender               common.Address `json:"sender"`
	Nonce                *hexutil.Big   `json:"nonce"`
	InitCode             hexutil.Bytes  `json:"initCode"`
	CallData             hexutil.Bytes  `json:"callData"`
	CallGasLimit         *hexutil.Big   `json:"callGasLimit"`
	VerificationGasLimit *hexutil.Big   `json:"verificationGasLimit"`
	PreVerificationGas   *hexutil.Big   `json:"preVerificationGas"`
	MaxFeePerGas         *hexutil.Big   `json:"maxFeePerGas"`
	MaxPriorityFeePerGas *hexutil.Big   `json:"maxPriorityFeePerGas"`
	PaymasterAndData     hexutil.Bytes  `json:"paymasterAndData"`
	Signature            hexutil.Bytes  `json:"signature"`
}

// MarshalJSON encodes the operation in the hex form bundler RPCs expect.
// Nil quantities encode as 0x0 and nil byte fields as 0x.
func (op UserOperation) MarshalJSON() ([]byte, error) {
	return json.Marshal(userOperationJSON{
		Sender:               op.Sender,
		Nonce:                hexBig(op.Nonce),
		InitCode:             hexBytes(op.InitCode),
		CallData:             hexBytes(op.CallData),
		CallGasLimit:         hexBig(op.CallGasLimit),
		VerificationGasLimit: hexBig(op.VerificationGasLimit),
		PreVerificationGas:   hexBig(op.PreVerificationGas),
		MaxFeePerGas:         hexBig(op.MaxFeePerGas),
		MaxPriorityFeePerGas: hexBig(op.MaxPriorityFeePerGas),
		PaymasterAndData:     hexBytes(op.PaymasterAndData),
		Signature:            hexBytes(op.Signature),
	})
}

func (op *UserOperation) UnmarshalJSON(data []byte) error {
	var raw userOperationJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*op = UserOperation{
		Sender:               raw.Sender,
		Nonce:                raw.Nonce.ToInt(),
		InitCode:             raw.InitCode,
		CallData:             raw.CallData,
		CallGasLimit:         raw.CallGasLimit.ToInt(),
		VerificationGasLimit: raw.VerificationGasLimit.ToInt(),
		PreVerificationGas:   raw.PreVerificationGas.ToInt(),
		MaxFeePerGas:         raw.MaxFeePerGas.ToInt(),
		MaxPriorityFeePerGas: raw.MaxPriorityFeePerGas.ToInt(),
		PaymasterAndData:     raw.PaymasterAndData,
		Signature:            raw.Signature,
	}
	return nil
}

func hexBig(v *big.Int) *hexutil.Big {
	return (*hexutil.Big)(orZero(v))
}

func hexBytes(b []byte) hexutil.Bytes {
	if b == nil {
		return hexutil.Bytes{}
	}
	return b
}
