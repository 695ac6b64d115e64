// Package blockwatch follows the best block number of whichever chain is active.
package blockwatch

import (
	"context"
	"errors"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/smartcontractkit/chainlink-connections/chain"
	"github.com/smartcontractkit/chainlink-connections/connection"
	"github.com/smartcontractkit/chainlink-connections/pkg/logger"
)

// DefaultInterval matches the six second block time of relay chains.
const DefaultInterval = 6 * time.Second

// Source provides the state to watch. *connection.Facade and *connection.Manager implement it.
type Source interface {
	Snapshot() connection.Snapshot
}

// BlockUpdate is a new best block number of a chain.
type BlockUpdate struct {
	ChainID chain.ChainID
	Number  uint64
}

// Watcher polls the active chain's handle and reports its best block number whenever it changes.
// A chain switch resets the watcher, so the first number read on the new chain is always reported.
// Nothing is read while the active chain is not connected or its handle is not a
// chain.BlockNumberReader.
type Watcher struct {
	Source   Source
	Interval time.Duration
	Clock    clock.Clock
	Logger   logger.Logger
	OnBlock  func(BlockUpdate)

	current chain.ChainID
	last    uint64
	seen    bool
}

// Run polls once immediately and then every Interval until ctx is done. It returns nil when ctx
// is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	if err := w.init(); err != nil {
		return err
	}

	ticker := w.Clock.Ticker(w.Interval)
	defer ticker.Stop()

	for {
		w.poll(ctx)

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (w *Watcher) init() error {
	if w.Source == nil {
		return errors.New("block watcher source is required")
	}
	if w.OnBlock == nil {
		return errors.New("block watcher OnBlock callback is required")
	}
	if w.Interval <= 0 {
		w.Interval = DefaultInterval
	}
	if w.Clock == nil {
		w.Clock = clock.New()
	}
	if w.Logger == nil {
		w.Logger = logger.Nop()
	}
	w.Logger = logger.Named(w.Logger, "blockwatch")

	return nil
}

// poll reads the active chain once and reports a changed number.
func (w *Watcher) poll(ctx context.Context) {
	snap := w.Source.Snapshot()
	if snap.Active != w.current {
		w.current = snap.Active
		w.seen = false
	}

	if snap.ActiveStatus() != connection.StatusConnected {
		return
	}
	reader, ok := snap.ActiveHandle.(chain.BlockNumberReader)
	if !ok {
		return
	}

	pollCtx, cancel := context.WithTimeout(ctx, w.Interval)
	defer cancel()

	n, err := reader.BestBlockNumber(pollCtx)
	if err != nil {
		if ctx.Err() == nil {
			w.Logger.Warnw("Failed to read best block", "chain", snap.Active, "error", err)
		}

		return
	}
	if w.seen && n == w.last {
		return
	}

	w.last, w.seen = n, true
	w.OnBlock(BlockUpdate{ChainID: snap.Active, Number: n})
}
