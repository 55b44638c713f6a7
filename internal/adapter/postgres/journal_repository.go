package postgres

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pscheid92/aarelay/internal/domain"
)

var _ domain.Journal = (*JournalRepo)(nil)

const (
	insertUserOperation = `-- name: InsertUserOperation
INSERT INTO user_operations (user_op_hash, sender, owner, target, value, call_data, status)
VALUES ($1, $2, $3, $4, $5::numeric, $6, $7)
ON CONFLICT (user_op_hash) DO NOTHING`

	markUserOperationIncluded = `-- name: MarkUserOperationIncluded
UPDATE user_operations
SET status = 'included', tx_hash = $2, failure_reason = '', updated_at = now()
WHERE user_op_hash = $1`

	markUserOperationFailed = `-- name: MarkUserOperationFailed
UPDATE user_operations
SET status = 'failed', tx_hash = $2, failure_reason = $3, updated_at = now()
WHERE user_op_hash = $1`

	getUserOperation = `-- name: GetUserOperation
SELECT user_op_hash, sender, owner, target, value::text, call_data, status, tx_hash, failure_reason, created_at, updated_at
FROM user_operations
WHERE user_op_hash = $1`
)

// JournalRepo persists relayed user operations in the user_operations table.
type JournalRepo struct {
	pool *pgxpool.Pool
}

func NewJournalRepo(pool *pgxpool.Pool) *JournalRepo {
	return &JournalRepo{pool: pool}
}

func (r *JournalRepo) Record(ctx context.Context, rec *domain.UserOpRecord) error {
	value := rec.Value
	if value == nil {
		value = new(big.Int)
	}
	callData := rec.CallData
	if callData == nil {
		callData = []byte{}
	}

	_, err := r.pool.Exec(ctx, insertUserOperation,
		rec.UserOpHash.Hex(),
		rec.Sender.Hex(),
		rec.Owner.Hex(),
		rec.Target.Hex(),
		value.String(),
		callData,
		string(domain.UserOpSubmitted),
	)
	if err != nil {
		return fmt.Errorf("failed to record user operation: %w", err)
	}
	return nil
}

func (r *JournalRepo) MarkIncluded(ctx context.Context, userOpHash, txHash common.Hash) error {
	tag, err := r.pool.Exec(ctx, markUserOperationIncluded, userOpHash.Hex(), txHash.Hex())
	if err != nil {
		return fmt.Errorf("failed to mark user operation included: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrUserOpNotFound
	}
	return nil
}

func (r *JournalRepo) MarkFailed(ctx context.Context, userOpHash common.Hash, txHash *common.Hash, reason string) error {
	var tx *string
	if txHash != nil {
		hex := txHash.Hex()
		tx = &hex
	}

	tag, err := r.pool.Exec(ctx, markUserOperationFailed, userOpHash.Hex(), tx, reason)
	if err != nil {
		return fmt.Errorf("failed to mark user operation failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrUserOpNotFound
	}
	return nil
}

func (r *JournalRepo) Get(ctx context.Context, userOpHash common.Hash) (*domain.UserOpRecord, error) {
	var (
		hash, sender, owner, target, value, status string
		callData                                   []byte
		txHash                                     *string
		rec                                        domain.UserOpRecord
	)

	err := r.pool.QueryRow(ctx, getUserOperation, userOpHash.Hex()).Scan(
		&hash, &sender, &owner, &target, &value, &callData, &status, &txHash,
		&rec.FailureReason, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrUserOpNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user operation: %w", err)
	}

	amount, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, fmt.Errorf("invalid stored value %q for user operation %s", value, hash)
	}

	rec.UserOpHash = common.HexToHash(hash)
	rec.Sender = common.HexToAddress(sender)
	rec.Owner = common.HexToAddress(owner)
	rec.Target = common.HexToAddress(target)
	rec.Value = amount
	rec.CallData = callData
	rec.Status = domain.UserOpStatus(status)
	if txHash != nil {
		h := common.HexToHash(*txHash)
		rec.TxHash = &h
	}
	return &rec, nil
}
