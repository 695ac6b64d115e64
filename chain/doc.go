/*
Package chain provides the chain registry consumed by the connection manager.

# Overview

A Registry is an immutable, ordered table of chains. Each entry carries the endpoint to dial, a
display name, a testnet flag and a Descriptor that knows how to turn the endpoint into a live
client Handle. The registry is built once at startup and never mutated afterwards.

# Typed keys

Descriptors are generic over the handle type they produce. Registering a chain returns a Key
parameterised by that type, so a handle can only be read back as the client its descriptor
created:

	b := chain.NewRegistryBuilder()
	assetHub := chain.Register(b, chain.ChainInfo{
		ID:          "paseo_asset_hub",
		Endpoint:    "wss://sys.ibp.network/asset-hub-paseo",
		DisplayName: "Paseo Asset Hub",
		IsTestnet:   true,
	}, substrate.NewDescriptor())

	sepolia := chain.Register(b, chain.ChainInfo{
		ID:       "sepolia",
		Endpoint: "https://ethereum-sepolia-rpc.publicnode.com",
		Selector: chainsel.ETHEREUM_TESTNET_SEPOLIA.Selector,
	}, evm.NewDescriptor())

	reg, err := b.Build(chain.Defaults{Default: assetHub.ID()})
	if err != nil {
		return err
	}

	// assetHub is a chain.Key[*substrate.Client], sepolia a chain.Key[*evm.Client].

# Families

Descriptors for each supported family live in sub packages: substrate, evm, solana and aptos.
They all dial through a DialConfig which defaults to a single attempt.
*/
package chain
