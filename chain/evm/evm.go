// Package evm provides the descriptor and client for EVM chains.
package evm

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	chainsel "github.com/smartcontractkit/chain-selectors"

	"github.com/smartcontractkit/chainlink-connections/chain"
	"github.com/smartcontractkit/chainlink-connections/chain/internal/rpcdial"
	"github.com/smartcontractkit/chainlink-connections/pkg/logger"
)

// Family is the chain family served by this package.
const Family = chainsel.FamilyEVM

var (
	_ chain.Descriptor[*Client] = (*Descriptor)(nil)
	_ chain.BlockNumberReader   = (*Client)(nil)
)

// Descriptor opens EVM clients.
type Descriptor struct {
	// Selector, when set, pins the descriptor to the chain-selectors chain whose EVM chain id the
	// node must report.
	Selector uint64

	dial chain.DialConfig
	lggr logger.Logger
}

// Option configures a Descriptor.
type Option func(*Descriptor)

// WithSelector pins the descriptor to a chain selector.
func WithSelector(selector uint64) Option {
	return func(d *Descriptor) { d.Selector = selector }
}

// WithDialConfig overrides the dial policy.
func WithDialConfig(cfg chain.DialConfig) Option {
	return func(d *Descriptor) { d.dial = cfg }
}

// WithLogger sets the logger used while dialing.
func WithLogger(lggr logger.Logger) Option {
	return func(d *Descriptor) { d.lggr = lggr }
}

// NewDescriptor returns a Descriptor with the default dial policy.
func NewDescriptor(opts ...Option) *Descriptor {
	d := &Descriptor{
		dial: chain.DefaultDialConfig(),
		lggr: logger.Nop(),
	}
	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Family implements chain.Descriptor.
func (*Descriptor) Family() string {
	return Family
}

// Open dials endpoint and fetches the chain id as the handshake.
func (d *Descriptor) Open(ctx context.Context, endpoint string) (*Client, error) {
	var want *big.Int
	if d.Selector != 0 {
		idStr, err := chainsel.GetChainIDFromSelector(d.Selector)
		if err != nil {
			return nil, fmt.Errorf("failed to get chain ID from selector %d: %w", d.Selector, err)
		}

		var ok bool
		want, ok = new(big.Int).SetString(idStr, 10)
		if !ok {
			return nil, fmt.Errorf("failed to convert chain ID %s to big.Int", idStr)
		}
	}

	var chainID *big.Int
	rc, err := rpcdial.Dial(ctx, d.lggr, d.dial, endpoint, func(ctx context.Context, rc *rpc.Client) error {
		id, err := ethclient.NewClient(rc).ChainID(ctx)
		if err != nil {
			return fmt.Errorf("eth_chainId: %w", err)
		}
		if want != nil && id.Cmp(want) != 0 {
			return fmt.Errorf("chain id mismatch: node reports %s, selector %d expects %s", id, d.Selector, want)
		}
		chainID = id

		return nil
	})
	if err != nil {
		return nil, err
	}

	return &Client{eth: ethclient.NewClient(rc), chainID: chainID}, nil
}

// Client is a live connection to an EVM node.
type Client struct {
	eth     *ethclient.Client
	chainID *big.Int
}

// Eth returns the underlying go-ethereum client for chain specific calls.
func (c *Client) Eth() *ethclient.Client {
	return c.eth
}

// ChainID returns the chain id reported during the handshake.
func (c *Client) ChainID() *big.Int {
	return new(big.Int).Set(c.chainID)
}

// BestBlockNumber returns the latest block number.
func (c *Client) BestBlockNumber(ctx context.Context) (uint64, error) {
	return c.eth.BlockNumber(ctx)
}

// Close releases the connection.
func (c *Client) Close() error {
	c.eth.Close()
	return nil
}
