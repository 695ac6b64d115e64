// Package connection owns the live chain connections of a process. A Manager lazily opens one
// handle per chain, caches it, tracks which chain is active and publishes every state change to
// subscribers. A Facade exposes the read side and the typed handle accessor.
package connection

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/smartcontractkit/chainlink-connections/chain"
	"github.com/smartcontractkit/chainlink-connections/pkg/logger"
)

// ErrClosed is returned by operations on a closed manager.
var ErrClosed = errors.New("connection manager is closed")

// Config configures a Manager.
type Config struct {
	// Registry is the set of connectable chains. Required.
	Registry *chain.Registry
	// Dev selects the registry's dev chain as the default active chain.
	Dev bool
	// ConnectTimeout bounds each connection attempt. Zero means no bound, an attempt then lasts
	// as long as the descriptor's own dial policy.
	ConnectTimeout time.Duration
	// Logger defaults to a no-op logger.
	Logger logger.Logger
	// Metrics may be nil.
	Metrics *Metrics
}

// Manager is the single owner of the chain connections. All of its methods are safe for
// concurrent use.
type Manager struct {
	registry  *chain.Registry
	defaultID chain.ChainID
	timeout   time.Duration
	lggr      logger.Logger
	metrics   *Metrics

	mu      sync.Mutex
	active  chain.ChainID
	records map[chain.ChainID]*record
	// generation is bumped by every teardown. An attempt started in an older generation is stale
	// and its result is discarded.
	generation uint64
	version    uint64
	closed     bool

	// attemptCtx is the parent context of the attempts of the current generation.
	attemptCtx    context.Context
	cancelAttempt context.CancelFunc
	pending       int
	settled       chan struct{}

	subs      map[uint64]*Subscription
	nextSubID uint64
}

// NewManager returns a Manager with no records and the registry default (or dev) chain active.
// No connection is opened until Activate is called.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Registry == nil {
		return nil, errors.New("chain registry is required")
	}
	if cfg.ConnectTimeout < 0 {
		return nil, fmt.Errorf("connect timeout must not be negative, got %s", cfg.ConnectTimeout)
	}
	lggr := cfg.Logger
	if lggr == nil {
		lggr = logger.Nop()
	}

	defaultID := cfg.Registry.DefaultFor(cfg.Dev)
	attemptCtx, cancel := context.WithCancel(context.Background())

	settled := make(chan struct{})
	close(settled)

	return &Manager{
		registry:      cfg.Registry,
		defaultID:     defaultID,
		timeout:       cfg.ConnectTimeout,
		lggr:          logger.Named(lggr, "manager"),
		metrics:       cfg.Metrics,
		active:        defaultID,
		records:       make(map[chain.ChainID]*record),
		attemptCtx:    attemptCtx,
		cancelAttempt: cancel,
		settled:       settled,
		subs:          make(map[uint64]*Subscription),
	}, nil
}

// Registry returns the registry the manager serves.
func (m *Manager) Registry() *chain.Registry {
	return m.registry
}

// DefaultChain returns the chain the manager starts on and returns to after teardown.
func (m *Manager) DefaultChain() chain.ChainID {
	return m.defaultID
}

// Activate makes id the active chain and, unless a record for id already exists, starts a
// connection attempt in the background. It returns as soon as the state change is published;
// use Wait or a Subscription to observe the outcome. An unknown id returns an error wrapping
// chain.ErrInvalidChainID and changes nothing.
//
// Activating a chain that is connecting, connected or failed only switches the active chain. A
// failed chain is retried only after Teardown.
func (m *Manager) Activate(id chain.ChainID) error {
	entry, err := m.registry.Lookup(id)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}

	changed := false
	if m.active != id {
		m.lggr.Debugw("Switching active chain", "from", m.active, "to", id)
		m.active = id
		m.metrics.switched()
		changed = true
	}

	if _, ok := m.records[id]; !ok {
		m.records[id] = &record{status: StatusConnecting}
		m.startAttemptLocked(entry)
		changed = true
	}

	if changed {
		m.publishLocked()
	}

	return nil
}

// startAttemptLocked launches the attempt for entry in the current generation.
func (m *Manager) startAttemptLocked(entry chain.Entry) {
	if m.pending == 0 {
		m.settled = make(chan struct{})
	}
	m.pending++

	lggr := m.lggr.With("chain", entry.ID, "family", entry.Family(), "attempt", uuid.NewString())
	lggr.Infow("Connecting", "endpoint", entry.Endpoint)

	go m.connect(m.attemptCtx, m.generation, entry, lggr)
}

func (m *Manager) connect(ctx context.Context, generation uint64, entry chain.Entry, lggr logger.Logger) {
	defer m.attemptDone()

	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	start := time.Now()
	h, err := open(ctx, entry)
	elapsed := time.Since(start)

	if !m.resolve(generation, entry.ID, h, err) {
		lggr.Debugw("Discarding stale connection result", "elapsed", elapsed, "error", err)
		m.metrics.attempt(entry.ID, OutcomeStale)
		if h != nil {
			if cerr := h.Close(); cerr != nil {
				lggr.Errorw("Failed to close stale handle", "error", cerr)
			}
		}

		return
	}

	if err != nil {
		lggr.Warnw("Connection failed", "elapsed", elapsed, "error", err)
		m.metrics.attempt(entry.ID, OutcomeFailed)

		return
	}
	lggr.Infow("Connected", "elapsed", elapsed)
	m.metrics.attempt(entry.ID, OutcomeConnected)
}

// open runs the descriptor and turns panics and missing handles into errors.
func open(ctx context.Context, entry chain.Entry) (h chain.Handle, err error) {
	defer func() {
		if r := recover(); r != nil {
			h, err = nil, fmt.Errorf("connecting to %s panicked: %v", entry, r)
		}
	}()

	h, err = entry.Open(ctx)
	if err == nil && h == nil {
		err = fmt.Errorf("connecting to %s returned no handle", entry)
	}
	if err != nil && h != nil {
		_ = h.Close()
		h = nil
	}

	return h, err
}

// resolve records the attempt outcome. It reports false when the attempt is stale, in which case
// the caller owns h.
func (m *Manager) resolve(generation uint64, id chain.ChainID, h chain.Handle, err error) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[id]
	if m.closed || generation != m.generation || !ok || rec.status != StatusConnecting {
		return false
	}

	if err != nil {
		rec.status = StatusFailed
		rec.lastError = err.Error()
	} else {
		rec.status = StatusConnected
		rec.handle = h
	}
	m.publishLocked()

	return true
}

func (m *Manager) attemptDone() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.pending--
	if m.pending == 0 {
		close(m.settled)
	}
}

// Wait blocks until no connection attempt is in flight, including stale ones, or ctx is done.
func (m *Manager) Wait(ctx context.Context) error {
	m.mu.Lock()
	settled := m.settled
	m.mu.Unlock()

	select {
	case <-settled:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CurrentHandle returns the handle of the active chain, or nil when it is not connected.
func (m *Manager) CurrentHandle() chain.Handle {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.handleLocked(m.active)
}

// Handle returns the handle of id and its status. The handle is nil unless the status is
// StatusConnected.
func (m *Manager) Handle(id chain.ChainID) (chain.Handle, Status) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[id]
	if !ok {
		return nil, StatusIdle
	}

	return m.handleLocked(id), rec.status
}

func (m *Manager) handleLocked(id chain.ChainID) chain.Handle {
	rec, ok := m.records[id]
	if !ok || rec.status != StatusConnected {
		return nil
	}

	return rec.handle
}

// StatusOf returns the status of id. Unknown and never activated chains are idle.
func (m *Manager) StatusOf(id chain.ChainID) Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	if rec, ok := m.records[id]; ok {
		return rec.status
	}

	return StatusIdle
}

// LastError returns the failure message of id, or "" unless it is failed.
func (m *Manager) LastError(id chain.ChainID) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if rec, ok := m.records[id]; ok {
		return rec.lastError
	}

	return ""
}

// ActiveChain returns the active chain id.
func (m *Manager) ActiveChain() chain.ChainID {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.active
}

// Teardown closes every cached handle, forgets all records, discards in-flight attempts and
// resets the active chain to the default. Every handle is closed exactly once; the first close
// error is returned after all handles were closed. Teardown on a fresh manager is a no-op.
func (m *Manager) Teardown() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	handles, changed := m.resetLocked()
	if changed {
		m.publishLocked()
	}
	m.mu.Unlock()

	if changed {
		m.lggr.Infow("Torn down", "closing", len(handles))
	}

	return m.closeHandles(handles)
}

// resetLocked starts a new generation and returns the handles to close.
func (m *Manager) resetLocked() ([]chain.Handle, bool) {
	m.generation++
	m.cancelAttempt()
	m.attemptCtx, m.cancelAttempt = context.WithCancel(context.Background())

	changed := len(m.records) > 0 || m.active != m.defaultID

	var handles []chain.Handle
	for _, rec := range m.records {
		if rec.status == StatusConnected && rec.handle != nil {
			handles = append(handles, rec.handle)
		}
	}
	m.records = make(map[chain.ChainID]*record)
	m.active = m.defaultID

	if changed {
		m.metrics.tornDown()
	}

	return handles, changed
}

func (m *Manager) closeHandles(handles []chain.Handle) error {
	var g errgroup.Group
	for _, h := range handles {
		g.Go(func() error {
			if err := h.Close(); err != nil {
				m.lggr.Errorw("Failed to close handle", "error", err)
				return fmt.Errorf("failed to close handle: %w", err)
			}

			return nil
		})
	}

	return g.Wait()
}

// Close tears the manager down, ends every subscription and waits for in-flight attempts to
// return. The manager is unusable afterwards.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	handles, changed := m.resetLocked()
	if changed {
		m.publishLocked()
	}
	m.closed = true
	m.cancelAttempt()
	subs := make([]*Subscription, 0, len(m.subs))
	for _, s := range m.subs {
		subs = append(subs, s)
	}
	m.mu.Unlock()

	for _, s := range subs {
		s.Close()
	}

	closeErr := m.closeHandles(handles)

	return errors.Join(closeErr, m.Wait(ctx))
}

// Snapshot returns the current state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.snapshotLocked()
}

func (m *Manager) snapshotLocked() Snapshot {
	records := make(map[chain.ChainID]RecordState, len(m.records))
	for id, rec := range m.records {
		records[id] = RecordState{Status: rec.status, LastError: rec.lastError}
	}

	name := m.active.String()
	if entry, err := m.registry.Lookup(m.active); err == nil {
		name = entry.DisplayName
	}

	return Snapshot{
		Version:      m.version,
		Active:       m.active,
		ActiveName:   name,
		ActiveHandle: m.handleLocked(m.active),
		Records:      records,
	}
}

// Subscribe returns a subscription that first yields the current snapshot and then every later
// one. On a closed manager the subscription yields the final snapshot only.
func (m *Manager) Subscribe() *Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextSubID++
	s := newSubscription(m.nextSubID, m.snapshotLocked(), m.unsubscribe)
	if !m.closed {
		m.subs[s.id] = s
	}

	return s
}

func (m *Manager) unsubscribe(id uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.subs, id)
}

// publishLocked bumps the version and queues the new snapshot for every subscriber.
func (m *Manager) publishLocked() {
	m.version++
	snap := m.snapshotLocked()
	for _, s := range m.subs {
		s.push(cloneSnapshot(snap))
	}
}

func cloneSnapshot(s Snapshot) Snapshot {
	s.Records = maps.Clone(s.Records)
	return s
}
