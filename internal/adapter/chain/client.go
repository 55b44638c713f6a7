package chain

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/pscheid92/aarelay/internal/aa"
	"github.com/pscheid92/aarelay/internal/adapter/metrics"
	"github.com/pscheid92/aarelay/internal/domain"
	"github.com/pscheid92/aarelay/internal/platform/version"
)

const service = "chain"

var _ domain.ChainReader = (*Client)(nil)

// Client reads chain state through a node's JSON-RPC endpoint.
type Client struct {
	rpc        *rpc.Client
	eth        *ethclient.Client
	factory    common.Address
	entryPoint common.Address
	metrics    *metrics.UpstreamMetrics

	mu      sync.Mutex
	chainID *big.Int
}

// Dial connects to the node at url.
func Dial(ctx context.Context, url string, factory, entryPoint common.Address, m *metrics.UpstreamMetrics) (*Client, error) {
	rc, err := rpc.DialOptions(ctx, url, rpc.WithHeaders(http.Header{"User-Agent": {version.UserAgent()}}))
	if err != nil {
		return nil, fmt.Errorf("failed to dial node RPC: %w", err)
	}
	return NewClient(rc, factory, entryPoint, m), nil
}

func NewClient(rc *rpc.Client, factory, entryPoint common.Address, m *metrics.UpstreamMetrics) *Client {
	return &Client{
		rpc:        rc,
		eth:        ethclient.NewClient(rc),
		factory:    factory,
		entryPoint: entryPoint,
		metrics:    m,
	}
}

func (c *Client) Close() {
	c.rpc.Close()
}

// ChainID returns the chain ID; it is fetched once and cached.
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.chainID != nil {
		return new(big.Int).Set(c.chainID), nil
	}

	started := time.Now()
	id, err := c.eth.ChainID(ctx)
	c.metrics.Observe(service, "eth_chainId", started, err)
	if err != nil {
		return nil, fmt.Errorf("failed to get chain ID: %w", err)
	}
	c.chainID = id
	return new(big.Int).Set(id), nil
}

// Ping is a readiness check that reaches the node without using the chain ID cache.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.eth.BlockNumber(ctx); err != nil {
		return fmt.Errorf("node unreachable: %w", err)
	}
	return nil
}

func (c *Client) Balance(ctx context.Context, addr common.Address) (*big.Int, error) {
	started := time.Now()
	balance, err := c.eth.BalanceAt(ctx, addr, nil)
	c.metrics.Observe(service, "eth_getBalance", started, err)
	if err != nil {
		return nil, fmt.Errorf("failed to get balance of %s: %w", addr.Hex(), err)
	}
	return balance, nil
}

// SuggestFees derives EIP-1559 fees from the latest base fee and the node's tip suggestion.
// Nodes without a base fee fall back to eth_gasPrice for both values.
func (c *Client) SuggestFees(ctx context.Context) (domain.Fees, error) {
	baseFee, err := c.latestBaseFee(ctx)
	if err != nil {
		return domain.Fees{}, err
	}

	if baseFee == nil {
		started := time.Now()
		price, err := c.eth.SuggestGasPrice(ctx)
		c.metrics.Observe(service, "eth_gasPrice", started, err)
		if err != nil {
			return domain.Fees{}, fmt.Errorf("failed to get gas price: %w", err)
		}
		return domain.Fees{MaxFeePerGas: price, MaxPriorityFeePerGas: new(big.Int).Set(price)}, nil
	}

	started := time.Now()
	tip, err := c.eth.SuggestGasTipCap(ctx)
	c.metrics.Observe(service, "eth_maxPriorityFeePerGas", started, err)
	if err != nil {
		return domain.Fees{}, fmt.Errorf("failed to get priority fee: %w", err)
	}

	maxFee, maxPriority := aa.FeesFromBaseFee(baseFee, tip)
	return domain.Fees{MaxFeePerGas: maxFee, MaxPriorityFeePerGas: maxPriority}, nil
}

func (c *Client) latestBaseFee(ctx context.Context) (*big.Int, error) {
	var head struct {
		BaseFee *hexutil.Big `json:"baseFeePerGas"`
	}

	started := time.Now()
	err := c.rpc.CallContext(ctx, &head, "eth_getBlockByNumber", "latest", false)
	c.metrics.Observe(service, "eth_getBlockByNumber", started, err)
	if err != nil {
		return nil, fmt.Errorf("failed to get latest block: %w", err)
	}
	return head.BaseFee.ToInt(), nil
}

func (c *Client) IsDeployed(ctx context.Context, addr common.Address) (bool, error) {
	started := time.Now()
	code, err := c.eth.CodeAt(ctx, addr, nil)
	c.metrics.Observe(service, "eth_getCode", started, err)
	if err != nil {
		return false, fmt.Errorf("failed to get code of %s: %w", addr.Hex(), err)
	}
	return len(code) > 0, nil
}

// SmartAccountAddress asks the account factory for the counterfactual address of (owner, salt).
func (c *Client) SmartAccountAddress(ctx context.Context, owner common.Address, salt *big.Int) (common.Address, error) {
	data, err := aa.EncodeGetAddress(owner, salt)
	if err != nil {
		return common.Address{}, err
	}

	out, err := c.call(ctx, c.factory, data)
	if err != nil {
		return common.Address{}, fmt.Errorf("factory getAddress failed: %w", err)
	}
	return aa.DecodeGetAddress(out)
}

// AccountNonce returns the EntryPoint nonce of sender for key 0.
func (c *Client) AccountNonce(ctx context.Context, sender common.Address) (*big.Int, error) {
	data, err := aa.EncodeGetNonce(sender, new(big.Int))
	if err != nil {
		return nil, err
	}

	out, err := c.call(ctx, c.entryPoint, data)
	if err != nil {
		return nil, fmt.Errorf("entry point getNonce failed: %w", err)
	}
	return aa.DecodeGetNonce(out)
}

func (c *Client) call(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	started := time.Now()
	out, err := c.eth.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	c.metrics.Observe(service, "eth_call", started, err)
	return out, err
}
