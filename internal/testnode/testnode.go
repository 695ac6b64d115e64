// Package testnode runs in-process JSON-RPC nodes for tests.
package testnode

import (
	"math/big"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/require"
)

// SubstrateGenesis is the genesis hash reported by Substrate nodes.
const SubstrateGenesis = "0x77afd6190f1554ad45fd0d31aee62aacc33c6db0ea801129acb813f913e0764f"

// Node is a running test node.
type Node struct {
	*httptest.Server

	best atomic.Uint64
}

// SetBest sets the best block number the node reports.
func (n *Node) SetBest(v uint64) {
	n.best.Store(v)
}

// Substrate starts a node answering the Substrate system, chain and state namespaces.
func Substrate(t *testing.T, chainName string) *Node {
	t.Helper()

	n := &Node{}
	srv := rpc.NewServer()
	require.NoError(t, srv.RegisterName("system", &substrateSystem{name: chainName}))
	require.NoError(t, srv.RegisterName("chain", &substrateChain{node: n}))
	require.NoError(t, srv.RegisterName("state", substrateState{}))

	return start(t, n, srv)
}

// EVM starts a node answering eth_chainId and eth_blockNumber.
func EVM(t *testing.T, chainID uint64) *Node {
	t.Helper()

	n := &Node{}
	srv := rpc.NewServer()
	require.NoError(t, srv.RegisterName("eth", &evmEth{node: n, chainID: chainID}))

	return start(t, n, srv)
}

func start(t *testing.T, n *Node, srv *rpc.Server) *Node {
	t.Helper()

	n.Server = httptest.NewServer(srv)
	t.Cleanup(func() {
		n.Close()
		srv.Stop()
	})

	return n
}

type substrateSystem struct {
	name string
}

func (s *substrateSystem) Chain() string { return s.name }

type substrateHeader struct {
	ParentHash string `json:"parentHash"`
	Number     string `json:"number"`
}

type substrateChain struct {
	node *Node
}

func (c *substrateChain) GetHeader() substrateHeader {
	return substrateHeader{
		ParentHash: "0x00",
		Number:     "0x" + strconv.FormatUint(c.node.best.Load(), 16),
	}
}

func (*substrateChain) GetBlockHash(n uint64) string {
	if n == 0 {
		return SubstrateGenesis
	}

	return "0x01"
}

type substrateRuntimeVersion struct {
	SpecName           string `json:"specName"`
	ImplName           string `json:"implName"`
	SpecVersion        uint32 `json:"specVersion"`
	TransactionVersion uint32 `json:"transactionVersion"`
}

type substrateState struct{}

func (substrateState) GetRuntimeVersion() substrateRuntimeVersion {
	return substrateRuntimeVersion{SpecName: "asset-hub-paseo", ImplName: "asset-hub-paseo", SpecVersion: 1_004_001, TransactionVersion: 15}
}

type evmEth struct {
	node    *Node
	chainID uint64
}

func (e *evmEth) ChainId() *hexutil.Big { //nolint:revive // method name maps to eth_chainId
	return (*hexutil.Big)(new(big.Int).SetUint64(e.chainID))
}

func (e *evmEth) BlockNumber() hexutil.Uint64 {
	return hexutil.Uint64(e.node.best.Load())
}
