// Package aptos provides the descriptor and client for Aptos networks.
package aptos

import (
	"context"
	"fmt"
	"strconv"

	aptoslib "github.com/aptos-labs/aptos-go-sdk"
	chainsel "github.com/smartcontractkit/chain-selectors"

	"github.com/smartcontractkit/chainlink-connections/chain"
	"github.com/smartcontractkit/chainlink-connections/chain/internal/rpcdial"
	"github.com/smartcontractkit/chainlink-connections/pkg/logger"
)

// Family is the chain family served by this package.
const Family = chainsel.FamilyAptos

var (
	_ chain.Descriptor[*Client] = (*Descriptor)(nil)
	_ chain.BlockNumberReader   = (*Client)(nil)
)

// Descriptor opens Aptos node clients.
type Descriptor struct {
	// Selector, when set, provides the chain id handed to the node client and checked against
	// the node's ledger info.
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

// Open creates a node client for endpoint and fetches the ledger info as the handshake.
func (d *Descriptor) Open(ctx context.Context, endpoint string) (*Client, error) {
	var chainID uint8
	if d.Selector != 0 {
		idStr, err := chainsel.GetChainIDFromSelector(d.Selector)
		if err != nil {
			return nil, fmt.Errorf("failed to get chain ID from selector %d: %w", d.Selector, err)
		}

		id, err := strconv.ParseUint(idStr, 10, 8)
		if err != nil {
			return nil, fmt.Errorf("failed to parse chain ID %s: %w", idStr, err)
		}
		chainID = uint8(id)
	}

	client, err := aptoslib.NewNodeClient(endpoint, chainID)
	if err != nil {
		return nil, fmt.Errorf("failed to create Aptos node client for %s: %w", endpoint, err)
	}

	info, err := rpcdial.Do(ctx, d.lggr, d.dial, func(ctx context.Context) (aptoslib.NodeInfo, error) {
		return nodeInfo(ctx, client)
	})
	if err != nil {
		return nil, fmt.Errorf("ledger info from %s: %w", endpoint, err)
	}
	if chainID != 0 && info.ChainId != chainID {
		return nil, fmt.Errorf("chain id mismatch: node reports %d, selector %d expects %d", info.ChainId, d.Selector, chainID)
	}

	return &Client{node: client}, nil
}

// Client is a live connection to an Aptos node.
type Client struct {
	node *aptoslib.NodeClient
}

// Node returns the underlying aptos-go-sdk client.
func (c *Client) Node() *aptoslib.NodeClient {
	return c.node
}

// BestBlockNumber returns the latest block height.
func (c *Client) BestBlockNumber(ctx context.Context) (uint64, error) {
	info, err := nodeInfo(ctx, c.node)
	if err != nil {
		return 0, err
	}

	return info.BlockHeight(), nil
}

// Close is a no-op: the node client holds no persistent connection.
func (*Client) Close() error {
	return nil
}

// nodeInfo runs the blocking Info call and gives up when ctx is done. The SDK call itself is not
// context aware, so an abandoned call finishes in the background.
func nodeInfo(ctx context.Context, node *aptoslib.NodeClient) (aptoslib.NodeInfo, error) {
	type result struct {
		info aptoslib.NodeInfo
		err  error
	}

	ch := make(chan result, 1)
	go func() {
		info, err := node.Info()
		ch <- result{info: info, err: err}
	}()

	select {
	case res := <-ch:
		return res.info, res.err
	case <-ctx.Done():
		return aptoslib.NodeInfo{}, ctx.Err()
	}
}
