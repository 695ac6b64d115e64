package connection_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/smartcontractkit/chainlink-connections/chain"
	"github.com/smartcontractkit/chainlink-connections/connection"
	"github.com/smartcontractkit/chainlink-connections/pkg/logger"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const waitFor = 5 * time.Second

var errShutdown = errors.New("fake chain shut down")

type fakeHandle struct {
	chain    chain.ChainID
	closes   atomic.Int32
	closeErr error
}

func (h *fakeHandle) Close() error {
	h.closes.Add(1)
	return h.closeErr
}

// call is one pending Open on a blocking fakeChain.
type call struct {
	ctx    context.Context
	handle *fakeHandle
	reply  chan error
}

func (c *call) succeed() { c.reply <- nil }

func (c *call) fail(err error) { c.reply <- err }

// fakeChain is a descriptor whose Open either resolves immediately (auto) or blocks until the
// test answers the call.
type fakeChain struct {
	id       chain.ChainID
	auto     bool
	err      error
	closeErr error

	calls chan *call
	done  chan struct{}
	opens atomic.Int32

	mu      sync.Mutex
	handles []*fakeHandle
}

func newFakeChain(id chain.ChainID, auto bool) *fakeChain {
	return &fakeChain{
		id:    id,
		auto:  auto,
		calls: make(chan *call, 16),
		done:  make(chan struct{}),
	}
}

func (*fakeChain) Family() string { return "fake" }

func (d *fakeChain) Open(ctx context.Context, _ string) (*fakeHandle, error) {
	d.opens.Add(1)

	h := &fakeHandle{chain: d.id, closeErr: d.closeErr}
	d.mu.Lock()
	d.handles = append(d.handles, h)
	d.mu.Unlock()

	if d.auto {
		if d.err != nil {
			return nil, d.err
		}

		return h, nil
	}

	c := &call{ctx: ctx, handle: h, reply: make(chan error, 1)}
	d.calls <- c

	select {
	case err := <-c.reply:
		if err != nil {
			return nil, err
		}

		return h, nil
	case <-d.done:
		return nil, errShutdown
	}
}

// next returns the next pending Open call.
func (d *fakeChain) next(t *testing.T) *call {
	t.Helper()

	select {
	case c := <-d.calls:
		return c
	case <-time.After(waitFor):
		require.FailNow(t, "no Open call", "chain %s", d.id)
		return nil
	}
}

func (d *fakeChain) opened() []*fakeHandle {
	d.mu.Lock()
	defer d.mu.Unlock()

	return append([]*fakeHandle(nil), d.handles...)
}

type fixture struct {
	m      *connection.Manager
	facade *connection.Facade

	alpha, beta, gamma          *fakeChain
	alphaKey, betaKey, gammaKey chain.Key[*fakeHandle]
}

// newFixture registers alpha (default), beta (dev) and gamma. Chains block on Open unless auto
// is set.
func newFixture(t *testing.T, auto bool, mutate ...func(*connection.Config)) *fixture {
	t.Helper()

	f := &fixture{
		alpha: newFakeChain("alpha", auto),
		beta:  newFakeChain("beta", auto),
		gamma: newFakeChain("gamma", auto),
	}

	b := chain.NewRegistryBuilder()
	f.alphaKey = chain.Register(b, chain.ChainInfo{ID: "alpha", Endpoint: "fake://alpha", DisplayName: "Alpha"}, f.alpha)
	f.betaKey = chain.Register(b, chain.ChainInfo{ID: "beta", Endpoint: "fake://beta", DisplayName: "Beta", IsTestnet: true}, f.beta)
	f.gammaKey = chain.Register(b, chain.ChainInfo{ID: "gamma", Endpoint: "fake://gamma", DisplayName: "Gamma"}, f.gamma)
	reg, err := b.Build(chain.Defaults{Default: "alpha", Dev: "beta"})
	require.NoError(t, err)

	cfg := connection.Config{Registry: reg, Logger: logger.Test(t)}
	for _, fn := range mutate {
		fn(&cfg)
	}

	f.m, err = connection.NewManager(cfg)
	require.NoError(t, err)
	f.facade = connection.NewFacade(f.m)

	t.Cleanup(func() {
		close(f.alpha.done)
		close(f.beta.done)
		close(f.gamma.done)

		ctx, cancel := context.WithTimeout(context.Background(), waitFor)
		defer cancel()
		require.NoError(t, f.m.Close(ctx))
	})

	return f
}

// settle waits until no attempt is in flight.
func (f *fixture) settle(t *testing.T) {
	t.Helper()

	ctx, cancel := context.WithTimeout(t.Context(), waitFor)
	defer cancel()
	require.NoError(t, f.m.Wait(ctx))
}

// recv returns the next snapshot of sub.
func recv(t *testing.T, sub *connection.Subscription) connection.Snapshot {
	t.Helper()

	select {
	case snap, ok := <-sub.Updates():
		require.True(t, ok, "subscription closed")
		return snap
	case <-time.After(waitFor):
		require.FailNow(t, "no snapshot published")
		return connection.Snapshot{}
	}
}

// recvUntil reads snapshots until cond holds and returns every snapshot read.
func recvUntil(t *testing.T, sub *connection.Subscription, cond func(connection.Snapshot) bool) []connection.Snapshot {
	t.Helper()

	var seen []connection.Snapshot
	for {
		snap := recv(t, sub)
		seen = append(seen, snap)
		if cond(snap) {
			return seen
		}
	}
}
