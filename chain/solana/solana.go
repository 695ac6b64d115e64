// Package solana provides the descriptor and client for Solana clusters.
package solana

import (
	"context"
	"fmt"

	solRpc "github.com/gagliardetto/solana-go/rpc"
	chainsel "github.com/smartcontractkit/chain-selectors"

	"github.com/smartcontractkit/chainlink-connections/chain"
	"github.com/smartcontractkit/chainlink-connections/chain/internal/rpcdial"
	"github.com/smartcontractkit/chainlink-connections/pkg/logger"
)

const (
	// Family is the chain family served by this package.
	Family = chainsel.FamilySolana

	// DefaultCommitment is the commitment used when reading the best slot.
	DefaultCommitment = solRpc.CommitmentConfirmed

	healthOK = "ok"
)

var (
	_ chain.Descriptor[*Client] = (*Descriptor)(nil)
	_ chain.BlockNumberReader   = (*Client)(nil)
)

// Descriptor opens Solana clients.
type Descriptor struct {
	dial chain.DialConfig
	lggr logger.Logger
}

// Option configures a Descriptor.
type Option func(*Descriptor)

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

// Open creates an RPC client for endpoint and checks the node reports itself healthy.
func (d *Descriptor) Open(ctx context.Context, endpoint string) (*Client, error) {
	client := solRpc.New(endpoint)

	_, err := rpcdial.Do(ctx, d.lggr, d.dial, func(ctx context.Context) (struct{}, error) {
		health, err := client.GetHealth(ctx)
		if err != nil {
			return struct{}{}, fmt.Errorf("getHealth on %s: %w", endpoint, err)
		}
		if health != healthOK {
			return struct{}{}, fmt.Errorf("node %s is unhealthy: %s", endpoint, health)
		}

		return struct{}{}, nil
	})
	if err != nil {
		_ = client.Close()
		return nil, err
	}

	return &Client{rpc: client, url: endpoint}, nil
}

// Client is a live connection to a Solana RPC node.
type Client struct {
	rpc *solRpc.Client
	url string
}

// RPC returns the underlying solana-go client.
func (c *Client) RPC() *solRpc.Client {
	return c.rpc
}

// URL returns the endpoint the client talks to.
func (c *Client) URL() string {
	return c.url
}

// BestBlockNumber returns the latest confirmed slot.
func (c *Client) BestBlockNumber(ctx context.Context) (uint64, error) {
	slot, err := c.rpc.GetSlot(ctx, DefaultCommitment)
	if err != nil {
		return 0, fmt.Errorf("getSlot: %w", err)
	}

	return slot, nil
}

// Close releases the connection.
func (c *Client) Close() error {
	return c.rpc.Close()
}
