package chain

import (
	"context"
	"errors"
	"fmt"
	"slices"

	chainsel "github.com/smartcontractkit/chain-selectors"
)

// Defaults designates the chains the manager starts on.
type Defaults struct {
	// Default is the active chain in normal runs.
	Default ChainID
	// Dev is the active chain in dev mode. Falls back to Default when empty.
	Dev ChainID
}

// Registry is an immutable, ordered set of chain entries. Build one with a RegistryBuilder.
type Registry struct {
	order    []ChainID
	entries  map[ChainID]Entry
	defaults Defaults
}

// RegistryBuilder collects chain registrations. Registration errors are deferred to Build so
// that a whole table can be declared in one place.
type RegistryBuilder struct {
	order   []ChainID
	entries map[ChainID]Entry
	errs    []error
}

// NewRegistryBuilder returns an empty builder.
func NewRegistryBuilder() *RegistryBuilder {
	return &RegistryBuilder{
		entries: make(map[ChainID]Entry),
	}
}

// Register adds a chain served by desc to the builder and returns its typed key.
//
// Usage:
//
//	b := chain.NewRegistryBuilder()
//	assetHub := chain.Register(b, chain.ChainInfo{
//	    ID:          "paseo_asset_hub",
//	    Endpoint:    "wss://sys.ibp.network/asset-hub-paseo",
//	    DisplayName: "Paseo Asset Hub",
//	    IsTestnet:   true,
//	}, substrate.NewDescriptor())
//	reg, err := b.Build(chain.Defaults{Default: assetHub.ID()})
func Register[H Handle](b *RegistryBuilder, info ChainInfo, desc Descriptor[H]) Key[H] {
	key := Key[H]{id: info.ID}

	if desc == nil {
		b.errs = append(b.errs, fmt.Errorf("chain %q: descriptor is required", info.ID))
		return key
	}

	entry := Entry{
		ChainInfo: info,
		family:    desc.Family(),
		open: func(ctx context.Context, endpoint string) (Handle, error) {
			return desc.Open(ctx, endpoint)
		},
	}

	if err := validateEntry(entry); err != nil {
		b.errs = append(b.errs, fmt.Errorf("chain %q: %w", info.ID, err))
		return key
	}

	if _, ok := b.entries[info.ID]; ok {
		b.errs = append(b.errs, fmt.Errorf("chain %q: registered more than once", info.ID))
		return key
	}

	if entry.DisplayName == "" {
		entry.DisplayName = selectorName(entry.Selector, string(entry.ID))
	}

	b.entries[info.ID] = entry
	b.order = append(b.order, info.ID)

	return key
}

// Build validates the registrations and the defaults and returns the registry.
func (b *RegistryBuilder) Build(defaults Defaults) (*Registry, error) {
	errs := slices.Clone(b.errs)

	if len(b.order) == 0 {
		errs = append(errs, errors.New("at least one chain is required"))
	}

	if defaults.Dev == "" {
		defaults.Dev = defaults.Default
	}
	if _, ok := b.entries[defaults.Default]; !ok {
		errs = append(errs, fmt.Errorf("default chain %q: %w", defaults.Default, ErrInvalidChainID))
	}
	if _, ok := b.entries[defaults.Dev]; !ok {
		errs = append(errs, fmt.Errorf("dev chain %q: %w", defaults.Dev, ErrInvalidChainID))
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid chain registry: %w", errors.Join(errs...))
	}

	entries := make(map[ChainID]Entry, len(b.entries))
	for id, e := range b.entries {
		entries[id] = e
	}

	return &Registry{
		order:    slices.Clone(b.order),
		entries:  entries,
		defaults: defaults,
	}, nil
}

// Lookup returns the entry for id, or ErrInvalidChainID.
func (r *Registry) Lookup(id ChainID) (Entry, error) {
	e, ok := r.entries[id]
	if !ok {
		return Entry{}, fmt.Errorf("chain %q: %w", id, ErrInvalidChainID)
	}

	return e, nil
}

// Contains reports whether id is registered.
func (r *Registry) Contains(id ChainID) bool {
	_, ok := r.entries[id]
	return ok
}

// IDs returns the registered chain ids in registration order.
func (r *Registry) IDs() []ChainID {
	return slices.Clone(r.order)
}

// Entries returns the registered entries in registration order.
func (r *Registry) Entries() []Entry {
	out := make([]Entry, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.entries[id])
	}

	return out
}

// Testnets returns the ids of the testnet chains in registration order.
func (r *Registry) Testnets() []ChainID {
	return r.filter(func(e Entry) bool { return e.IsTestnet })
}

// Mainnets returns the ids of the non testnet chains in registration order.
func (r *Registry) Mainnets() []ChainID {
	return r.filter(func(e Entry) bool { return !e.IsTestnet })
}

// Len returns the number of registered chains.
func (r *Registry) Len() int {
	return len(r.order)
}

// DefaultChain returns the chain used outside of dev mode.
func (r *Registry) DefaultChain() ChainID {
	return r.defaults.Default
}

// DevChain returns the chain used in dev mode.
func (r *Registry) DevChain() ChainID {
	return r.defaults.Dev
}

// DefaultFor returns the starting chain for the given run mode.
func (r *Registry) DefaultFor(dev bool) ChainID {
	if dev {
		return r.defaults.Dev
	}

	return r.defaults.Default
}

func (r *Registry) filter(keep func(Entry) bool) []ChainID {
	out := make([]ChainID, 0, len(r.order))
	for _, id := range r.order {
		if keep(r.entries[id]) {
			out = append(out, id)
		}
	}

	return out
}

func validateEntry(e Entry) error {
	if e.ID == "" {
		return errors.New("id is required")
	}
	if e.Endpoint == "" {
		return errors.New("endpoint is required")
	}

	if e.Selector == 0 {
		return nil
	}

	family, err := chainsel.GetSelectorFamily(e.Selector)
	if err != nil {
		return fmt.Errorf("chain selector %d: %w", e.Selector, err)
	}
	if family != e.family {
		return fmt.Errorf("chain selector %d belongs to family %q, descriptor serves %q", e.Selector, family, e.family)
	}

	return nil
}

// selectorName returns the chain-selectors name for selector, or fallback when the selector is
// unset or unknown.
func selectorName(selector uint64, fallback string) string {
	if selector == 0 {
		return fallback
	}

	id, err := chainsel.GetChainIDFromSelector(selector)
	if err != nil {
		return fallback
	}
	family, err := chainsel.GetSelectorFamily(selector)
	if err != nil {
		return fallback
	}
	details, err := chainsel.GetChainDetailsByChainIDAndFamily(id, family)
	if err != nil || details.ChainName == "" {
		return fallback
	}

	return details.ChainName
}
