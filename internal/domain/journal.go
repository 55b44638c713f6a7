package domain

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

type UserOpStatus string

const (
	UserOpSubmitted UserOpStatus = "submitted"
	UserOpIncluded  UserOpStatus = "included"
	UserOpFailed    UserOpStatus = "failed"
)

// UserOpRecord is a journal entry for one relayed user operation.
type UserOpRecord struct {
	UserOpHash    common.Hash
	Sender        common.Address
	Owner         common.Address
	Target        common.Address
	Value         *big.Int
	CallData      []byte
	Status        UserOpStatus
	TxHash        *common.Hash
	FailureReason string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Journal persists relayed user operations. Get returns ErrUserOpNotFound for unknown hashes.
type Journal interface {
	Record(ctx context.Context, rec *UserOpRecord) error
	MarkIncluded(ctx context.Context, userOpHash, txHash common.Hash) error
	MarkFailed(ctx context.Context, userOpHash common.Hash, txHash *common.Hash, reason string) error
	Get(ctx context.Context, userOpHash common.Hash) (*UserOpRecord, error)
}
