package domain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Fees is an EIP-1559 fee suggestion for a user operation.
type Fees struct {
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
}

// ChainReader is the read side of the node JSON-RPC API the relay depends on.
type ChainReader interface {
	ChainID(ctx context.Context) (*big.Int, error)
	Balance(ctx context.Context, addr common.Address) (*big.Int, error)
	SuggestFees(ctx context.Context) (Fees, error)
	IsDeployed(ctx context.Context, addr common.Address) (bool, error)
	SmartAccountAddress(ctx context.Context, owner common.Address, salt *big.Int) (common.Address, error)
	AccountNonce(ctx context.Context, sender common.Address) (*big.Int, error)
}

// AddressCache stores resolved counterfactual smart-account addresses.
// Get returns ErrAddressNotFound on a miss.
type AddressCache interface {
	Get(ctx context.Context, key string) (common.Address, error)
	Set(ctx context.Context, key string, addr common.Address) error
}
