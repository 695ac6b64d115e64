package app

import (
	"errors"
	"fmt"

	"github.com/smartcontractkit/chainlink-connections/chain"
	"github.com/smartcontractkit/chainlink-connections/chain/aptos"
	"github.com/smartcontractkit/chainlink-connections/chain/evm"
	"github.com/smartcontractkit/chainlink-connections/chain/solana"
	"github.com/smartcontractkit/chainlink-connections/chain/substrate"
	"github.com/smartcontractkit/chainlink-connections/config"
	"github.com/smartcontractkit/chainlink-connections/pkg/logger"
)

// Keys holds the typed key of every registered chain, by family.
type Keys struct {
	Substrate map[chain.ChainID]chain.Key[*substrate.Client]
	EVM       map[chain.ChainID]chain.Key[*evm.Client]
	Solana    map[chain.ChainID]chain.Key[*solana.Client]
	Aptos     map[chain.ChainID]chain.Key[*aptos.Client]
}

func newKeys() Keys {
	return Keys{
		Substrate: make(map[chain.ChainID]chain.Key[*substrate.Client]),
		EVM:       make(map[chain.ChainID]chain.Key[*evm.Client]),
		Solana:    make(map[chain.ChainID]chain.Key[*solana.Client]),
		Aptos:     make(map[chain.ChainID]chain.Key[*aptos.Client]),
	}
}

// BuildRegistry registers every chain of the manifest with the descriptor of its family.
func BuildRegistry(m *config.Manifest, dial chain.DialConfig, lggr logger.Logger) (*chain.Registry, Keys, error) {
	b := chain.NewRegistryBuilder()
	keys := newKeys()

	var errs []error
	for _, spec := range m.Chains {
		info := spec.Info()
		clggr := lggr.With("chain", spec.ID)

		switch spec.Family {
		case substrate.Family:
			keys.Substrate[info.ID] = chain.Register(b, info, substrate.NewDescriptor(
				substrate.WithGenesisHash(spec.GenesisHash),
				substrate.WithDialConfig(dial),
				substrate.WithLogger(clggr),
			))
		case evm.Family:
			keys.EVM[info.ID] = chain.Register(b, info, evm.NewDescriptor(
				evm.WithSelector(spec.ChainSelector),
				evm.WithDialConfig(dial),
				evm.WithLogger(clggr),
			))
		case solana.Family:
			keys.Solana[info.ID] = chain.Register(b, info, solana.NewDescriptor(
				solana.WithDialConfig(dial),
				solana.WithLogger(clggr),
			))
		case aptos.Family:
			keys.Aptos[info.ID] = chain.Register(b, info, aptos.NewDescriptor(
				aptos.WithSelector(spec.ChainSelector),
				aptos.WithDialConfig(dial),
				aptos.WithLogger(clggr),
			))
		default:
			errs = append(errs, fmt.Errorf("chain %q: unsupported family %q", spec.ID, spec.Family))
		}
	}

	reg, err := b.Build(m.Defaults())
	if err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return nil, Keys{}, errors.Join(errs...)
	}

	return reg, keys, nil
}
