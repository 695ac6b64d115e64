// Package substrate provides the descriptor and client for Substrate based chains (Polkadot,
// Kusama, Paseo and their parachains) spoken to over the node JSON-RPC interface.
package substrate

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/smartcontractkit/chainlink-connections/chain"
	"github.com/smartcontractkit/chainlink-connections/chain/internal/rpcdial"
	"github.com/smartcontractkit/chainlink-connections/pkg/logger"
)

// Family is the chain family served by this package.
const Family = "substrate"

var (
	_ chain.Descriptor[*Client] = (*Descriptor)(nil)
	_ chain.BlockNumberReader   = (*Client)(nil)
)

// Descriptor opens Substrate clients.
type Descriptor struct {
	// GenesisHash, when set, must match the remote chain's block 0 hash. It pins the descriptor to
	// a specific network so a misconfigured endpoint fails to connect.
	GenesisHash string

	dial chain.DialConfig
	lggr logger.Logger
}

// Option configures a Descriptor.
type Option func(*Descriptor)

// WithGenesisHash pins the descriptor to the chain with the given genesis hash.
func WithGenesisHash(hash string) Option {
	return func(d *Descriptor) { d.GenesisHash = hash }
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

// Open dials endpoint and performs the handshake: the node's chain name is fetched and, if the
// descriptor is pinned, the genesis hash is verified.
func (d *Descriptor) Open(ctx context.Context, endpoint string) (*Client, error) {
	var name string
	rc, err := rpcdial.Dial(ctx, d.lggr, d.dial, endpoint, func(ctx context.Context, rc *rpc.Client) error {
		if err := rc.CallContext(ctx, &name, "system_chain"); err != nil {
			return fmt.Errorf("system_chain: %w", err)
		}

		if d.GenesisHash == "" {
			return nil
		}

		var genesis string
		if err := rc.CallContext(ctx, &genesis, "chain_getBlockHash", 0); err != nil {
			return fmt.Errorf("chain_getBlockHash: %w", err)
		}
		if !strings.EqualFold(genesis, d.GenesisHash) {
			return fmt.Errorf("genesis hash mismatch: node reports %s, expected %s", genesis, d.GenesisHash)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return &Client{rpc: rc, chainName: name}, nil
}

// Client is a live connection to a Substrate node.
type Client struct {
	rpc       *rpc.Client
	chainName string
}

// Header is the subset of a block header the client decodes.
type Header struct {
	ParentHash     string `json:"parentHash"`
	Number         string `json:"number"`
	StateRoot      string `json:"stateRoot"`
	ExtrinsicsRoot string `json:"extrinsicsRoot"`
}

// RuntimeVersion describes the runtime the node is executing.
type RuntimeVersion struct {
	SpecName           string `json:"specName"`
	ImplName           string `json:"implName"`
	SpecVersion        uint32 `json:"specVersion"`
	TransactionVersion uint32 `json:"transactionVersion"`
}

// ChainName returns the chain name reported by the node during the handshake.
func (c *Client) ChainName() string {
	return c.chainName
}

// Header returns the best block header.
func (c *Client) Header(ctx context.Context) (Header, error) {
	var h Header
	if err := c.rpc.CallContext(ctx, &h, "chain_getHeader"); err != nil {
		return Header{}, fmt.Errorf("chain_getHeader: %w", err)
	}

	return h, nil
}

// BestBlockNumber returns the number of the best block.
func (c *Client) BestBlockNumber(ctx context.Context) (uint64, error) {
	h, err := c.Header(ctx)
	if err != nil {
		return 0, err
	}

	n, err := hexutil.DecodeUint64(h.Number)
	if err != nil {
		return 0, fmt.Errorf("invalid block number %q: %w", h.Number, err)
	}

	return n, nil
}

// RuntimeVersion returns the node's runtime version.
func (c *Client) RuntimeVersion(ctx context.Context) (RuntimeVersion, error) {
	var v RuntimeVersion
	if err := c.rpc.CallContext(ctx, &v, "state_getRuntimeVersion"); err != nil {
		return RuntimeVersion{}, fmt.Errorf("state_getRuntimeVersion: %w", err)
	}

	return v, nil
}

// Close releases the connection.
func (c *Client) Close() error {
	c.rpc.Close()
	return nil
}
