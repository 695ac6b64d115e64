package connection

import (
	"context"
	"errors"
	"fmt"

	"github.com/smartcontractkit/chainlink-connections/chain"
)

// ErrNotReady is returned by HandleFor when the chain has no live handle.
var ErrNotReady = errors.New("chain is not connected")

// Facade is the read and command surface handed to consumers. It never exposes the manager's
// internal records.
type Facade struct {
	m *Manager
}

// NewFacade returns a Facade over m.
func NewFacade(m *Manager) *Facade {
	return &Facade{m: m}
}

// Activate switches to id and connects it if needed. See Manager.Activate.
func (f *Facade) Activate(id chain.ChainID) error {
	return f.m.Activate(id)
}

// Teardown closes every connection. See Manager.Teardown.
func (f *Facade) Teardown() error {
	return f.m.Teardown()
}

// Wait blocks until no connection attempt is in flight.
func (f *Facade) Wait(ctx context.Context) error {
	return f.m.Wait(ctx)
}

// CurrentHandle returns the active chain's handle or nil.
func (f *Facade) CurrentHandle() chain.Handle {
	return f.m.CurrentHandle()
}

// Handle returns the untyped handle of id and its status. Prefer HandleFor when the chain's key
// is at hand.
func (f *Facade) Handle(id chain.ChainID) (chain.Handle, Status) {
	return f.m.Handle(id)
}

// StatusOf returns the status of id.
func (f *Facade) StatusOf(id chain.ChainID) Status {
	return f.m.StatusOf(id)
}

// IsConnected reports whether id is connected.
func (f *Facade) IsConnected(id chain.ChainID) bool {
	return f.m.StatusOf(id) == StatusConnected
}

// IsLoading reports whether a connection attempt for id is in flight.
func (f *Facade) IsLoading(id chain.ChainID) bool {
	return f.m.StatusOf(id) == StatusConnecting
}

// LastError returns the failure message of id, if it failed.
func (f *Facade) LastError(id chain.ChainID) string {
	return f.m.LastError(id)
}

// ListChainIDs returns every registered chain id in registration order.
func (f *Facade) ListChainIDs() []chain.ChainID {
	return f.m.Registry().IDs()
}

// Entry returns the registry entry of id.
func (f *Facade) Entry(id chain.ChainID) (chain.Entry, error) {
	return f.m.Registry().Lookup(id)
}

// ActiveChainID returns the active chain id.
func (f *Facade) ActiveChainID() chain.ChainID {
	return f.m.ActiveChain()
}

// ActiveDisplayName returns the display name of the active chain.
func (f *Facade) ActiveDisplayName() string {
	return f.m.Snapshot().ActiveName
}

// Snapshot returns a consistent view of the whole state.
func (f *Facade) Snapshot() Snapshot {
	return f.m.Snapshot()
}

// Subscribe returns a subscription to state changes. The caller must Close it.
func (f *Facade) Subscribe() *Subscription {
	return f.m.Subscribe()
}

// HandleFor returns the typed handle of the chain key refers to. It fails with ErrNotReady until
// the chain is connected.
func HandleFor[H chain.Handle](f *Facade, key chain.Key[H]) (H, error) {
	var zero H

	h, status := f.m.Handle(key.ID())
	if status != StatusConnected {
		return zero, fmt.Errorf("chain %s is %s: %w", key.ID(), status, ErrNotReady)
	}

	typed, ok := h.(H)
	if !ok {
		return zero, fmt.Errorf("chain %s handle is %T, not %T", key.ID(), h, zero)
	}

	return typed, nil
}
