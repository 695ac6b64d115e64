package chain

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrInvalidChainID is returned when a chain id is not a member of the registry.
var ErrInvalidChainID = errors.New("invalid chain id")

// ChainID identifies one configured remote chain. The set of valid ids is closed once a
// Registry is built.
type ChainID string

// String returns the id as a plain string.
func (id ChainID) String() string {
	return string(id)
}

// Handle is a live client connection produced by a Descriptor. The manager owns it once it is
// returned and calls Close exactly once.
type Handle interface {
	Close() error
}

// BlockNumberReader is implemented by handles that can report the chain's best block height.
type BlockNumberReader interface {
	BestBlockNumber(ctx context.Context) (uint64, error)
}

// Descriptor pairs a chain with the shape of the client it serves. Open dials the endpoint and
// returns a handle of type H, which is the only type a Key[H] registered with this descriptor can
// be read back as.
type Descriptor[H Handle] interface {
	// Family returns the chain family the descriptor speaks to, e.g. "evm" or "substrate".
	Family() string
	// Open establishes the connection. It must honour ctx cancellation.
	Open(ctx context.Context, endpoint string) (H, error)
}

// Key is a typed reference to a registered chain. Keys can only be minted by Register, so the
// handle type H always matches the descriptor the chain was registered with.
type Key[H Handle] struct {
	id ChainID
}

// ID returns the chain id the key refers to.
func (k Key[H]) ID() ChainID {
	return k.id
}

// ChainInfo holds the static, descriptor independent attributes of a chain.
type ChainInfo struct {
	ID          ChainID
	Endpoint    string
	DisplayName string
	IsTestnet   bool
	// Selector is the optional chain-selectors identifier of the chain. When set it is validated
	// against the descriptor family and used as a display name fallback.
	Selector uint64
}

// Entry is an immutable registry entry.
type Entry struct {
	ChainInfo

	family string
	open   func(ctx context.Context, endpoint string) (Handle, error)
}

// Family returns the chain family of the entry's descriptor.
func (e Entry) Family() string {
	return e.family
}

// String returns "<display name> (<id>)".
func (e Entry) String() string {
	return fmt.Sprintf("%s (%s)", e.DisplayName, e.ID)
}

// Open dials the entry's endpoint through its descriptor.
func (e Entry) Open(ctx context.Context) (Handle, error) {
	if e.open == nil {
		return nil, fmt.Errorf("chain %s has no descriptor", e.ID)
	}

	return e.open(ctx, e.Endpoint)
}

// DialConfig controls how descriptors dial their endpoints. The zero value is not usable, use
// DefaultDialConfig.
type DialConfig struct {
	// Attempts is the number of dial attempts made within a single connection attempt.
	Attempts uint
	// Delay is the wait between dial attempts.
	Delay time.Duration
	// Timeout bounds a single dial attempt including the handshake call.
	Timeout time.Duration
	// HandshakeTimeout bounds the websocket upgrade.
	HandshakeTimeout time.Duration
}

const (
	DefaultDialAttempts         = 1
	DefaultDialDelay            = 1000 * time.Millisecond
	DefaultDialTimeout          = 10 * time.Second
	DefaultDialHandshakeTimeout = 5 * time.Second
)

// DefaultDialConfig returns a single attempt dial policy.
func DefaultDialConfig() DialConfig {
	return DialConfig{
		Attempts:         DefaultDialAttempts,
		Delay:            DefaultDialDelay,
		Timeout:          DefaultDialTimeout,
		HandshakeTimeout: DefaultDialHandshakeTimeout,
	}
}

// WithDefaults fills zero fields from DefaultDialConfig.
func (c DialConfig) WithDefaults() DialConfig {
	d := DefaultDialConfig()
	if c.Attempts == 0 {
		c.Attempts = d.Attempts
	}
	if c.Delay == 0 {
		c.Delay = d.Delay
	}
	if c.Timeout == 0 {
		c.Timeout = d.Timeout
	}
	if c.HandshakeTimeout == 0 {
		c.HandshakeTimeout = d.HandshakeTimeout
	}

	return c
}
