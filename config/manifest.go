package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/smartcontractkit/chainlink-connections/chain"
)

//go:embed default_registry.yaml
var defaultManifest []byte

// ChainSpec is one chain of the registry manifest.
type ChainSpec struct {
	ID          string `yaml:"id"`
	Family      string `yaml:"family"`
	Endpoint    string `yaml:"endpoint"`
	DisplayName string `yaml:"display_name"`
	Testnet     bool   `yaml:"testnet"`
	// ChainSelector is optional. EVM and Aptos chains use it to verify the remote chain id.
	ChainSelector uint64 `yaml:"chain_selector,omitempty"`
	// GenesisHash is optional. Substrate chains use it to verify the node serves the expected
	// chain.
	GenesisHash string `yaml:"genesis_hash,omitempty"`
}

// Info returns the registry information of the chain.
func (c ChainSpec) Info() chain.ChainInfo {
	return chain.ChainInfo{
		ID:          chain.ChainID(c.ID),
		Endpoint:    c.Endpoint,
		DisplayName: c.DisplayName,
		IsTestnet:   c.Testnet,
		Selector:    c.ChainSelector,
	}
}

// Validate ensures the required fields are set.
func (c ChainSpec) Validate() error {
	if c.ID == "" {
		return errors.New("id is required")
	}
	if c.Family == "" {
		return errors.New("family is required")
	}
	if c.Endpoint == "" {
		return errors.New("endpoint is required")
	}

	return nil
}

// Manifest is the YAML representation of the chain registry.
type Manifest struct {
	DefaultChain string      `yaml:"default_chain"`
	DevChain     string      `yaml:"dev_chain,omitempty"`
	Chains       []ChainSpec `yaml:"chains"`
}

// Defaults returns the default and dev chains. The dev chain falls back to the default.
func (m *Manifest) Defaults() chain.Defaults {
	return chain.Defaults{
		Default: chain.ChainID(m.DefaultChain),
		Dev:     chain.ChainID(m.DevChain),
	}
}

// Validate checks every chain and the default chain references.
func (m *Manifest) Validate() error {
	var errs []error

	if len(m.Chains) == 0 {
		errs = append(errs, errors.New("at least one chain is required"))
	}

	seen := make(map[string]bool, len(m.Chains))
	for i, c := range m.Chains {
		if err := c.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("chain %d: %w", i, err))
			continue
		}
		if seen[c.ID] {
			errs = append(errs, fmt.Errorf("chain %q: duplicate id", c.ID))
		}
		seen[c.ID] = true
	}

	if m.DefaultChain == "" {
		errs = append(errs, errors.New("default_chain is required"))
	} else if !seen[m.DefaultChain] {
		errs = append(errs, fmt.Errorf("default_chain %q is not listed in chains", m.DefaultChain))
	}
	if m.DevChain != "" && !seen[m.DevChain] {
		errs = append(errs, fmt.Errorf("dev_chain %q is not listed in chains", m.DevChain))
	}

	return errors.Join(errs...)
}

// ParseManifest decodes and validates a manifest.
func ParseManifest(data []byte) (*Manifest, error) {
	m := &Manifest{}
	if err := yaml.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("failed to decode registry manifest: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid registry manifest: %w", err)
	}

	return m, nil
}

// LoadManifest reads the manifest at path.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read registry manifest: %w", err)
	}

	return ParseManifest(data)
}

// DefaultManifest returns the built in registry: Paseo Asset Hub (default and dev chain) and
// the Paseo relay chain.
func DefaultManifest() *Manifest {
	m, err := ParseManifest(defaultManifest)
	if err != nil {
		panic(fmt.Sprintf("embedded registry manifest: %v", err))
	}

	return m
}

// ManifestFor loads the manifest at path, or the default manifest when path is empty.
func ManifestFor(path string) (*Manifest, error) {
	if path == "" {
		return DefaultManifest(), nil
	}

	return LoadManifest(path)
}
