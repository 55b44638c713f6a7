package domain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pscheid92/aarelay/internal/aa"
)

// Sponsorship is the paymaster's answer to pm_sponsorUserOperation.
type Sponsorship struct {
	PaymasterAndData     []byte
	CallGasLimit         *big.Int
	VerificationGasLimit *big.Int
	PreVerificationGas   *big.Int
}

// UserOpReceipt is the subset of eth_getUserOperationReceipt the relay uses.
type UserOpReceipt struct {
	UserOpHash    common.Hash
	Sender        common.Address
	Success       bool
	Reason        string
	ActualGasCost *big.Int
	ActualGasUsed *big.Int
	TxHash        common.Hash
	BlockNumber   *big.Int
}

// Paymaster sponsors gas for user operations.
type Paymaster interface {
	Sponsor(ctx context.Context, op *aa.UserOperation, entryPoint common.Address) (*Sponsorship, error)
}

// Bundler relays signed user operations and reports their inclusion.
// Receipt returns ErrReceiptNotFound while the operation is pending.
type Bundler interface {
	Send(ctx context.Context, op *aa.UserOperation, entryPoint common.Address) (common.Hash, error)
	Receipt(ctx context.Context, userOpHash common.Hash) (*UserOpReceipt, error)
	SupportedEntryPoints(ctx context.Context) ([]common.Address, error)
}
