package bundler

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/pscheid92/aarelay/internal/aa"
	"github.com/pscheid92/aarelay/internal/adapter/metrics"
	"github.com/pscheid92/aarelay/internal/domain"
	"github.com/pscheid92/aarelay/internal/platform/version"
)

const (
	serviceBundler   = "bundler"
	servicePaymaster = "paymaster"
)

var (
	_ domain.Bundler   = (*Client)(nil)
	_ domain.Paymaster = (*Client)(nil)
)

// Client talks to an ERC-4337 bundler and its paymaster. Both may live behind one URL;
// each keeps its own circuit breaker.
type Client struct {
	bundler   *endpoint
	paymaster *endpoint
	closers   []*rpc.Client
}

// Dial connects to the bundler and paymaster. A paymaster URL equal to the bundler URL
// reuses the bundler connection.
func Dial(ctx context.Context, bundlerURL, paymasterURL string, m *metrics.UpstreamMetrics) (*Client, error) {
	headers := rpc.WithHeaders(http.Header{"User-Agent": {version.UserAgent()}})

	brc, err := rpc.DialOptions(ctx, bundlerURL, headers)
	if err != nil {
		return nil, fmt.Errorf("failed to dial bundler RPC: %w", err)
	}
	if paymasterURL == "" || paymasterURL == bundlerURL {
		return NewClient(brc, brc, m), nil
	}

	prc, err := rpc.DialOptions(ctx, paymasterURL, headers)
	if err != nil {
		brc.Close()
		return nil, fmt.Errorf("failed to dial paymaster RPC: %w", err)
	}
	return NewClient(brc, prc, m), nil
}

func NewClient(bundlerRPC, paymasterRPC *rpc.Client, m *metrics.UpstreamMetrics) *Client {
	c := &Client{
		bundler:   newEndpoint(serviceBundler, bundlerRPC, m),
		paymaster: newEndpoint(servicePaymaster, paymasterRPC, m),
		closers:   []*rpc.Client{bundlerRPC},
	}
	if paymasterRPC != bundlerRPC {
		c.closers = append(c.closers, paymasterRPC)
	}
	return c
}

func (c *Client) Close() {
	for _, rc := range c.closers {
		rc.Close()
	}
}

type sponsorshipJSON struct {
	PaymasterAndData     hexutil.Bytes `json:"paymasterAndData"`
	CallGasLimit         *hexutil.Big  `json:"callGasLimit"`
	VerificationGasLimit *hexutil.Big  `json:"verificationGasLimit"`
	PreVerificationGas   *hexutil.Big  `json:"preVerificationGas"`
}

// Sponsor asks the paymaster to cover gas for op. The returned gas limits are nil
// when the paymaster leaves them to the caller.
func (c *Client) Sponsor(ctx context.Context, op *aa.UserOperation, entryPoint common.Address) (*domain.Sponsorship, error) {
	var res *sponsorshipJSON
	if err := c.paymaster.call(ctx, &res, "pm_sponsorUserOperation", op, entryPoint); err != nil {
		return nil, err
	}
	if res == nil || len(res.PaymasterAndData) < common.AddressLength {
		return nil, errors.New("paymaster returned no paymasterAndData")
	}

	return &domain.Sponsorship{
		PaymasterAndData:     res.PaymasterAndData,
		CallGasLimit:         res.CallGasLimit.ToInt(),
		VerificationGasLimit: res.VerificationGasLimit.ToInt(),
		PreVerificationGas:   res.PreVerificationGas.ToInt(),
	}, nil
}

// Send submits a signed user operation and returns its hash as computed by the bundler.
func (c *Client) Send(ctx context.Context, op *aa.UserOperation, entryPoint common.Address) (common.Hash, error) {
	var hash common.Hash
	if err := c.bundler.call(ctx, &hash, "eth_sendUserOperation", op, entryPoint); err != nil {
		return common.Hash{}, err
	}
	return hash, nil
}

type receiptJSON struct {
	UserOpHash    common.Hash    `json:"userOpHash"`
	Sender        common.Address `json:"sender"`
	Success       bool           `json:"success"`
	Reason        string         `json:"reason"`
	ActualGasCost *hexutil.Big   `json:"actualGasCost"`
	ActualGasUsed *hexutil.Big   `json:"actualGasUsed"`
	Receipt       struct {
		TransactionHash common.Hash  `json:"transactionHash"`
		BlockNumber     *hexutil.Big `json:"blockNumber"`
	} `json:"receipt"`
}

// Receipt returns domain.ErrReceiptNotFound until the bundler has seen the operation mined.
func (c *Client) Receipt(ctx context.Context, userOpHash common.Hash) (*domain.UserOpReceipt, error) {
	var res *receiptJSON
	if err := c.bundler.call(ctx, &res, "eth_getUserOperationReceipt", userOpHash); err != nil {
		return nil, err
	}
	if res == nil {
		return nil, domain.ErrReceiptNotFound
	}

	return &domain.UserOpReceipt{
		UserOpHash:    res.UserOpHash,
		Sender:        res.Sender,
		Success:       res.Success,
		Reason:        res.Reason,
		ActualGasCost: bigOrZero(res.ActualGasCost),
		ActualGasUsed: bigOrZero(res.ActualGasUsed),
		TxHash:        res.Receipt.TransactionHash,
		BlockNumber:   bigOrZero(res.Receipt.BlockNumber),
	}, nil
}

func (c *Client) SupportedEntryPoints(ctx context.Context) ([]common.Address, error) {
	var eps []common.Address
	if err := c.bundler.call(ctx, &eps, "eth_supportedEntryPoints"); err != nil {
		return nil, err
	}
	return eps, nil
}

// Ping checks that the bundler is reachable and supports entryPoint.
func (c *Client) Ping(ctx context.Context, entryPoint common.Address) error {
	eps, err := c.SupportedEntryPoints(ctx)
	if err != nil {
		return err
	}
	for _, ep := range eps {
		if ep == entryPoint {
			return nil
		}
	}
	return fmt.Errorf("bundler does not support entry point %s", entryPoint.Hex())
}

func bigOrZero(b *hexutil.Big) *big.Int {
	if b == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(b.ToInt())
}
