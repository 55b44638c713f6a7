package app

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jonboulle/clockwork"

	"github.com/pscheid92/aarelay/internal/adapter/metrics"
	"github.com/pscheid92/aarelay/internal/domain"
	apperrors "github.com/pscheid92/aarelay/internal/platform/errors"
	"github.com/pscheid92/aarelay/internal/wallet"
)

const (
	defaultReceiptPollInterval = 2 * time.Second
	defaultReceiptTimeout      = 60 * time.Second
)

// AccountResolver maps an owner to its counterfactual smart-account address.
type AccountResolver interface {
	Resolve(ctx context.Context, owner common.Address) (common.Address, error)
}

// Config holds the chain constants and receipt polling bounds of the relay.
type Config struct {
	EntryPoint          common.Address
	Factory             common.Address
	Salt                *big.Int
	ReceiptPollInterval time.Duration
	ReceiptTimeout      time.Duration
}

// Service is the application layer. It is the only component that talks to
// the chain, the paymaster, the bundler and the journal together.
type Service struct {
	chain     domain.ChainReader
	accounts  AccountResolver
	paymaster domain.Paymaster
	bundler   domain.Bundler
	journal   domain.Journal
	cfg       Config
	clock     clockwork.Clock
	metrics   *metrics.RelayMetrics
}

// NewService creates the application layer service.
// journal may be nil when no database is configured; m may be nil in tests.
func NewService(chain domain.ChainReader, accounts AccountResolver, paymaster domain.Paymaster, bundler domain.Bundler, journal domain.Journal, cfg Config, clock clockwork.Clock, m *metrics.RelayMetrics) *Service {
	if journal == nil {
		journal = noopJournal{}
	}
	if cfg.Salt == nil {
		cfg.Salt = new(big.Int)
	}
	if cfg.ReceiptPollInterval <= 0 {
		cfg.ReceiptPollInterval = defaultReceiptPollInterval
	}
	if cfg.ReceiptTimeout <= 0 {
		cfg.ReceiptTimeout = defaultReceiptTimeout
	}
	return &Service{
		chain:     chain,
		accounts:  accounts,
		paymaster: paymaster,
		bundler:   bundler,
		journal:   journal,
		cfg:       cfg,
		clock:     clock,
		metrics:   m,
	}
}

// GetAddress returns the smart-account address owned by the key derived from signature.
func (s *Service) GetAddress(ctx context.Context, signature string) (common.Address, error) {
	owner, err := s.deriveOwner(signature)
	if err != nil {
		return common.Address{}, err
	}

	addr, err := s.accounts.Resolve(ctx, owner.Address())
	if err != nil {
		return common.Address{}, upstreamError("failed to resolve smart account address", err)
	}
	return addr, nil
}

// Balance is a native token balance.
type Balance struct {
	Address common.Address
	Wei     *big.Int
}

// Ether formats the balance in ether without losing precision.
func (b Balance) Ether() string {
	return FormatEther(b.Wei)
}

func (s *Service) GetBalance(ctx context.Context, addr common.Address) (*Balance, error) {
	wei, err := s.chain.Balance(ctx, addr)
	if err != nil {
		return nil, upstreamError("failed to get balance", err)
	}
	return &Balance{Address: addr, Wei: wei}, nil
}

// GetUserOperation reads the journal entry of a relayed user operation.
func (s *Service) GetUserOperation(ctx context.Context, userOpHash common.Hash) (*domain.UserOpRecord, error) {
	rec, err := s.journal.Get(ctx, userOpHash)
	if errors.Is(err, domain.ErrUserOpNotFound) {
		return nil, apperrors.NotFoundError("user operation not found").WithField("user_op_hash", userOpHash.Hex())
	}
	if err != nil {
		return nil, apperrors.InternalError("failed to read user operation", err)
	}
	return rec, nil
}

// deriveOwner turns a client signature into the owner key. Signature problems are client errors.
func (s *Service) deriveOwner(signature string) (*wallet.Owner, error) {
	owner, err := wallet.OwnerFromSignature(signature)
	if err != nil {
		return nil, apperrors.ValidationError(signatureMessage(err))
	}
	if s.metrics != nil {
		s.metrics.DerivedOwnersTotal.Inc()
	}
	return owner, nil
}

func signatureMessage(err error) string {
	switch {
	case errors.Is(err, wallet.ErrEmptySignature):
		return wallet.ErrEmptySignature.Error()
	case errors.Is(err, wallet.ErrMalformedSignature):
		return wallet.ErrMalformedSignature.Error()
	case errors.Is(err, wallet.ErrInvalidSignatureLength):
		return wallet.ErrInvalidSignatureLength.Error()
	default:
		return wallet.ErrInvalidDerivedKey.Error()
	}
}

// upstreamError classifies a failed call to the node, paymaster or bundler.
func upstreamError(message string, err error) *apperrors.Error {
	var structured *apperrors.Error
	if errors.As(err, &structured) {
		return structured
	}
	if errors.Is(err, domain.ErrUpstreamOpen) {
		return apperrors.UnavailableError(message, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.TimeoutError(message, err)
	}
	return apperrors.ExternalError(message, err)
}

func (s *Service) recordOutcome(outcome string) {
	if s.metrics != nil {
		s.metrics.UserOpsTotal.WithLabelValues(outcome).Inc()
	}
}

// noopJournal is used when no database is configured.
type noopJournal struct{}

func (noopJournal) Record(context.Context, *domain.UserOpRecord) error { return nil }

func (noopJournal) MarkIncluded(context.Context, common.Hash, common.Hash) error { return nil }

func (noopJournal) MarkFailed(context.Context, common.Hash, *common.Hash, string) error { return nil }

func (noopJournal) Get(context.Context, common.Hash) (*domain.UserOpRecord, error) {
	return nil, domain.ErrUserOpNotFound
}

func logJournalError(ctx context.Context, op string, userOpHash common.Hash, err error) {
	if err != nil {
		slog.WarnContext(ctx, "Journal write failed", "operation", op, "user_op_hash", userOpHash.Hex(), "error", err)
	}
}
