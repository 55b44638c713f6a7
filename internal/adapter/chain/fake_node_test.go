package chain

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/pscheid92/aarelay/internal/adapter/metrics"
	"github.com/stretchr/testify/require"
)

// fakeNode serves the eth_ namespace subset used by Client over an in-process RPC server.
type fakeNode struct {
	chainID  int64
	balances map[common.Address]*big.Int
	code     map[common.Address][]byte
	baseFee  *big.Int
	tip      *big.Int
	gasPrice *big.Int
	onCall   func(to common.Address, input []byte) ([]byte, error)

	chainIDCalls int
}

type callArgs struct {
	To    *common.Address `json:"to"`
	Input hexutil.Bytes   `json:"input"`
	Data  hexutil.Bytes   `json:"data"`
}

func (f *fakeNode) ChainId() *hexutil.Big {
	f.chainIDCalls++
	return (*hexutil.Big)(big.NewInt(f.chainID))
}

func (f *fakeNode) BlockNumber() hexutil.Uint64 {
	return 1234
}

func (f *fakeNode) GetBalance(addr common.Address, _ string) (*hexutil.Big, error) {
	if b, ok := f.balances[addr]; ok {
		return (*hexutil.Big)(b), nil
	}
	return (*hexutil.Big)(new(big.Int)), nil
}

func (f *fakeNode) GetCode(addr common.Address, _ string) hexutil.Bytes {
	return f.code[addr]
}

func (f *fakeNode) MaxPriorityFeePerGas() (*hexutil.Big, error) {
	if f.tip == nil {
		return nil, errors.New("method not supported")
	}
	return (*hexutil.Big)(f.tip), nil
}

func (f *fakeNode) GasPrice() *hexutil.Big {
	return (*hexutil.Big)(f.gasPrice)
}

func (f *fakeNode) GetBlockByNumber(_ string, _ bool) map[string]any {
	head := map[string]any{"number": "0x4d2"}
	if f.baseFee != nil {
		head["baseFeePerGas"] = (*hexutil.Big)(f.baseFee)
	}
	return head
}

func (f *fakeNode) Call(args callArgs, _ string) (hexutil.Bytes, error) {
	if f.onCall == nil || args.To == nil {
		return nil, errors.New("execution reverted")
	}
	input := args.Input
	if len(input) == 0 {
		input = args.Data
	}
	return f.onCall(*args.To, input)
}

func newTestClient(t *testing.T, node *fakeNode, factory, entryPoint common.Address) (*Client, *metrics.UpstreamMetrics) {
	t.Helper()

	server := rpc.NewServer()
	require.NoError(t, server.RegisterName("eth", node))
	t.Cleanup(server.Stop)

	m := metrics.NewUpstreamMetrics(prometheus.NewRegistry())
	c := NewClient(rpc.DialInProc(server), factory, entryPoint, m)
	t.Cleanup(c.Close)
	return c, m
}
