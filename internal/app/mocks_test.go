package app

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/pscheid92/aarelay/internal/aa"
	"github.com/pscheid92/aarelay/internal/domain"
)

// --- Mock implementations ---

type mockChain struct {
	chainIDFn     func(ctx context.Context) (*big.Int, error)
	balanceFn     func(ctx context.Context, addr common.Address) (*big.Int, error)
	suggestFeesFn func(ctx context.Context) (domain.Fees, error)
	isDeployedFn  func(ctx context.Context, addr common.Address) (bool, error)
	nonceFn       func(ctx context.Context, sender common.Address) (*big.Int, error)
}

func (m *mockChain) ChainID(ctx context.Context) (*big.Int, error) {
	if m.chainIDFn != nil {
		return m.chainIDFn(ctx)
	}
	return big.NewInt(11155111), nil
}

func (m *mockChain) Balance(ctx context.Context, addr common.Address) (*big.Int, error) {
	if m.balanceFn != nil {
		return m.balanceFn(ctx, addr)
	}
	return nil, fmt.Errorf("not implemented")
}

func (m *mockChain) SuggestFees(ctx context.Context) (domain.Fees, error) {
	if m.suggestFeesFn != nil {
		return m.suggestFeesFn(ctx)
	}
	return domain.Fees{MaxFeePerGas: big.NewInt(207), MaxPriorityFeePerGas: big.NewInt(7)}, nil
}

func (m *mockChain) IsDeployed(ctx context.Context, addr common.Address) (bool, error) {
	if m.isDeployedFn != nil {
		return m.isDeployedFn(ctx, addr)
	}
	return true, nil
}

func (m *mockChain) SmartAccountAddress(context.Context, common.Address, *big.Int) (common.Address, error) {
	return common.Address{}, fmt.Errorf("not implemented")
}

func (m *mockChain) AccountNonce(ctx context.Context, sender common.Address) (*big.Int, error) {
	if m.nonceFn != nil {
		return m.nonceFn(ctx, sender)
	}
	return big.NewInt(0), nil
}

type mockResolver struct {
	resolveFn func(ctx context.Context, owner common.Address) (common.Address, error)
}

func (m *mockResolver) Resolve(ctx context.Context, owner common.Address) (common.Address, error) {
	if m.resolveFn != nil {
		return m.resolveFn(ctx, owner)
	}
	return testAccount, nil
}

type mockPaymaster struct {
	sponsorFn func(ctx context.Context, op *aa.UserOperation, entryPoint common.Address) (*domain.Sponsorship, error)
}

func (m *mockPaymaster) Sponsor(ctx context.Context, op *aa.UserOperation, entryPoint common.Address) (*domain.Sponsorship, error) {
	if m.sponsorFn != nil {
		return m.sponsorFn(ctx, op, entryPoint)
	}
	return &domain.Sponsorship{
		PaymasterAndData:     append(testPaymaster.Bytes(), 0x01, 0x02),
		CallGasLimit:         big.NewInt(40000),
		VerificationGasLimit: big.NewInt(150000),
		PreVerificationGas:   big.NewInt(50000),
	}, nil
}

type mockBundler struct {
	sendFn    func(ctx context.Context, op *aa.UserOperation, entryPoint common.Address) (common.Hash, error)
	receiptFn func(ctx context.Context, userOpHash common.Hash) (*domain.UserOpReceipt, error)
}

func (m *mockBundler) Send(ctx context.Context, op *aa.UserOperation, entryPoint common.Address) (common.Hash, error) {
	if m.sendFn != nil {
		return m.sendFn(ctx, op, entryPoint)
	}
	return testOpHash, nil
}

func (m *mockBundler) Receipt(ctx context.Context, userOpHash common.Hash) (*domain.UserOpReceipt, error) {
	if m.receiptFn != nil {
		return m.receiptFn(ctx, userOpHash)
	}
	return &domain.UserOpReceipt{UserOpHash: userOpHash, Success: true, TxHash: testTxHash, BlockNumber: big.NewInt(10)}, nil
}

func (m *mockBundler) SupportedEntryPoints(context.Context) ([]common.Address, error) {
	return []common.Address{testEntryPoint}, nil
}

type mockJournal struct {
	records  []*domain.UserOpRecord
	included map[common.Hash]common.Hash
	failed   map[common.Hash]string
	getFn    func(ctx context.Context, userOpHash common.Hash) (*domain.UserOpRecord, error)
}

func newMockJournal() *mockJournal {
	return &mockJournal{
		included: make(map[common.Hash]common.Hash),
		failed:   make(map[common.Hash]string),
	}
}

func (m *mockJournal) Record(_ context.Context, rec *domain.UserOpRecord) error {
	m.records = append(m.records, rec)
	return nil
}

func (m *mockJournal) MarkIncluded(_ context.Context, userOpHash, txHash common.Hash) error {
	m.included[userOpHash] = txHash
	return nil
}

func (m *mockJournal) MarkFailed(_ context.Context, userOpHash common.Hash, _ *common.Hash, reason string) error {
	m.failed[userOpHash] = reason
	return nil
}

func (m *mockJournal) Get(ctx context.Context, userOpHash common.Hash) (*domain.UserOpRecord, error) {
	if m.getFn != nil {
		return m.getFn(ctx, userOpHash)
	}
	return nil, domain.ErrUserOpNotFound
}
