package app

import (
	"context"
	"errors"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jonboulle/clockwork"

	"github.com/pscheid92/aarelay/internal/aa"
	"github.com/pscheid92/aarelay/internal/domain"
	apperrors "github.com/pscheid92/aarelay/internal/platform/errors"
	"github.com/pscheid92/aarelay/internal/platform/logging"
	"github.com/pscheid92/aarelay/internal/platform/retry"
	"github.com/pscheid92/aarelay/internal/wallet"
)

const (
	outcomeIncluded = "included"
	outcomeReverted = "reverted"
	outcomeTimeout  = "timeout"
	outcomeRejected = "rejected"
	outcomeError    = "error"
)

// TransferRequest is a single call to relay from the caller's smart account.
type TransferRequest struct {
	Signature string
	To        common.Address
	Value     *big.Int
	Data      []byte
}

// TransferResult identifies a relayed user operation and the transaction that included it.
type TransferResult struct {
	UserOpHash common.Hash
	Sender     common.Address
	TxHash     common.Hash
	Success    bool
}

// SendTransaction builds, sponsors, signs and submits a user operation for req,
// then waits until a bundler transaction includes it.
func (s *Service) SendTransaction(ctx context.Context, req TransferRequest) (*TransferResult, error) {
	owner, err := s.deriveOwner(req.Signature)
	if err != nil {
		return nil, err
	}

	op, err := s.buildUserOperation(ctx, owner, req)
	if err != nil {
		return nil, err
	}

	chainID, err := s.chain.ChainID(ctx)
	if err != nil {
		return nil, upstreamError("failed to get chain id", err)
	}
	if err := s.sign(op, owner, chainID); err != nil {
		return nil, err
	}

	userOpHash, err := s.bundler.Send(ctx, op, s.cfg.EntryPoint)
	if err != nil {
		s.recordOutcome(outcomeRejected)
		return nil, upstreamError("bundler rejected user operation", err)
	}
	sentAt := s.clock.Now()

	logger := logging.WithUserOp(slog.Default(), userOpHash.Hex(), op.Sender.Hex())
	logger.InfoContext(ctx, "User operation submitted",
		"to", req.To.Hex(), "deployed", len(op.InitCode) == 0, "gas_limit", op.TotalGasLimit().String())

	logJournalError(ctx, "record", userOpHash, s.journal.Record(ctx, &domain.UserOpRecord{
		UserOpHash: userOpHash,
		Sender:     op.Sender,
		Owner:      owner.Address(),
		Target:     req.To,
		Value:      req.Value,
		CallData:   req.Data,
		Status:     domain.UserOpSubmitted,
	}))

	receipt, err := s.waitForReceipt(ctx, userOpHash)
	if err != nil {
		return nil, s.receiptError(ctx, logger, userOpHash, err)
	}
	if s.metrics != nil {
		s.metrics.InclusionWait.Observe(s.clock.Since(sentAt).Seconds())
	}

	if !receipt.Success {
		s.recordOutcome(outcomeReverted)
		logger.WarnContext(ctx, "User operation reverted", "tx_hash", receipt.TxHash.Hex(), "reason", receipt.Reason)
		tx := receipt.TxHash
		logJournalError(ctx, "mark_failed", userOpHash, s.journal.MarkFailed(ctx, userOpHash, &tx, revertReason(receipt)))
	} else {
		s.recordOutcome(outcomeIncluded)
		logger.InfoContext(ctx, "User operation included", "tx_hash", receipt.TxHash.Hex(), "block", receipt.BlockNumber)
		logJournalError(ctx, "mark_included", userOpHash, s.journal.MarkIncluded(ctx, userOpHash, receipt.TxHash))
	}

	return &TransferResult{
		UserOpHash: userOpHash,
		Sender:     op.Sender,
		TxHash:     receipt.TxHash,
		Success:    receipt.Success,
	}, nil
}

// buildUserOperation assembles an unsigned, sponsored user operation.
func (s *Service) buildUserOperation(ctx context.Context, owner *wallet.Owner, req TransferRequest) (*aa.UserOperation, error) {
	sender, err := s.accounts.Resolve(ctx, owner.Address())
	if err != nil {
		return nil, upstreamError("failed to resolve smart account address", err)
	}

	deployed, err := s.chain.IsDeployed(ctx, sender)
	if err != nil {
		return nil, upstreamError("failed to check smart account deployment", err)
	}

	var initCode []byte
	if !deployed {
		initCode, err = aa.EncodeInitCode(s.cfg.Factory, owner.Address(), s.cfg.Salt)
		if err != nil {
			return nil, apperrors.InternalError("failed to encode init code", err)
		}
	}

	nonce, err := s.chain.AccountNonce(ctx, sender)
	if err != nil {
		return nil, upstreamError("failed to get account nonce", err)
	}

	fees, err := s.chain.SuggestFees(ctx)
	if err != nil {
		return nil, upstreamError("failed to get fee suggestion", err)
	}

	callData, err := aa.EncodeExecute(req.To, req.Value, req.Data)
	if err != nil {
		return nil, apperrors.ValidationError("failed to encode call").WithField("to", req.To.Hex())
	}

	op := &aa.UserOperation{
		Sender:               sender,
		Nonce:                nonce,
		InitCode:             initCode,
		CallData:             callData,
		CallGasLimit:         new(big.Int),
		VerificationGasLimit: new(big.Int),
		PreVerificationGas:   new(big.Int),
		MaxFeePerGas:         fees.MaxFeePerGas,
		MaxPriorityFeePerGas: fees.MaxPriorityFeePerGas,
		Signature:            aa.DummySignature,
	}

	sponsorship, err := s.paymaster.Sponsor(ctx, op, s.cfg.EntryPoint)
	if err != nil {
		s.recordOutcome(outcomeRejected)
		return nil, upstreamError("paymaster refused to sponsor user operation", err)
	}
	applySponsorship(op, sponsorship)
	return op, nil
}

func applySponsorship(op *aa.UserOperation, sp *domain.Sponsorship) {
	op.PaymasterAndData = sp.PaymasterAndData
	if sp.CallGasLimit != nil {
		op.CallGasLimit = sp.CallGasLimit
	}
	if sp.VerificationGasLimit != nil {
		op.VerificationGasLimit = sp.VerificationGasLimit
	}
	if sp.PreVerificationGas != nil {
		op.PreVerificationGas = sp.PreVerificationGas
	}
}

// sign replaces the dummy signature with the owner's signature over the user operation hash.
func (s *Service) sign(op *aa.UserOperation, owner *wallet.Owner, chainID *big.Int) error {
	hash, err := op.Hash(s.cfg.EntryPoint, chainID)
	if err != nil {
		return apperrors.InternalError("failed to hash user operation", err)
	}
	sig, err := owner.SignMessage(hash.Bytes())
	if err != nil {
		return apperrors.InternalError("failed to sign user operation", err)
	}
	op.Signature = sig
	return nil
}

// waitForReceipt polls the bundler at a fixed interval until the receipt
// appears or the configured timeout is spent. The timeout bounds the whole
// wait, including receipt calls that hang.
func (s *Service) waitForReceipt(ctx context.Context, userOpHash common.Hash) (*domain.UserOpReceipt, error) {
	waitCtx, cancel := clockwork.WithTimeout(ctx, s.clock, s.cfg.ReceiptTimeout)
	defer cancel()

	interval := s.cfg.ReceiptPollInterval
	policy := retry.Policy{
		MaxAttempts:      int(s.cfg.ReceiptTimeout/interval) + 1,
		InitialBackoff:   interval,
		MaxBackoff:       interval,
		RateLimitBackoff: 2 * interval,
		Clock:            s.clock,
	}

	return retry.Do(waitCtx, policy, classifyReceiptError, func() (*domain.UserOpReceipt, error) {
		return s.bundler.Receipt(waitCtx, userOpHash)
	})
}

func classifyReceiptError(err error) retry.Action {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return retry.Stop
	case errors.Is(err, domain.ErrUpstreamOpen):
		return retry.After
	default:
		return retry.Retry
	}
}

// receiptError maps a failed wait. The operation may still be mined, so the
// journal entry stays submitted and the caller gets the hash to look it up later.
func (s *Service) receiptError(ctx context.Context, logger *slog.Logger, userOpHash common.Hash, err error) error {
	if receiptWaitExpired(ctx, err) {
		s.recordOutcome(outcomeTimeout)
		logger.WarnContext(ctx, "Timed out waiting for user operation receipt", "timeout", s.cfg.ReceiptTimeout, "error", err)
		return apperrors.TimeoutError("timed out waiting for user operation receipt", err).
			WithField("user_op_hash", userOpHash.Hex())
	}

	s.recordOutcome(outcomeError)
	logger.ErrorContext(ctx, "Failed to get user operation receipt", "error", err)
	return upstreamError("failed to get user operation receipt", err).WithField("user_op_hash", userOpHash.Hex())
}

// receiptWaitExpired reports whether err ended the wait because the receipt
// timeout ran out rather than because the caller went away.
func receiptWaitExpired(ctx context.Context, err error) bool {
	var exhausted *retry.ExhaustedError
	if errors.As(err, &exhausted) && errors.Is(err, domain.ErrReceiptNotFound) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil
}

func revertReason(r *domain.UserOpReceipt) string {
	if r.Reason != "" {
		return r.Reason
	}
	return "execution reverted"
}
