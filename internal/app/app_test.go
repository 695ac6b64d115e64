package app_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	chainsel "github.com/smartcontractkit/chain-selectors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"
	"gopkg.in/yaml.v3"

	"github.com/smartcontractkit/chainlink-connections/chain"
	"github.com/smartcontractkit/chainlink-connections/chain/substrate"
	"github.com/smartcontractkit/chainlink-connections/config"
	"github.com/smartcontractkit/chainlink-connections/connection"
	"github.com/smartcontractkit/chainlink-connections/internal/app"
	"github.com/smartcontractkit/chainlink-connections/internal/testnode"
	"github.com/smartcontractkit/chainlink-connections/pkg/logger"
)

func writeManifest(t *testing.T, m *config.Manifest) string {
	t.Helper()

	b, err := yaml.Marshal(m)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "registry.yml")
	require.NoError(t, os.WriteFile(path, b, 0o600))

	return path
}

func testSettings(t *testing.T, manifestPath string) *config.Settings {
	t.Helper()

	return &config.Settings{
		Registry: config.RegistrySettings{ManifestPath: manifestPath},
		Dial: config.DialSettings{
			Attempts: 1,
			Delay:    time.Millisecond,
			Timeout:  2 * time.Second,
		},
		Watch: config.WatchSettings{Interval: time.Second},
		Log:   config.LogSettings{Level: "debug"},
	}
}

func testLogger(t *testing.T) fx.Option {
	t.Helper()

	return fx.Decorate(func(logger.Logger) logger.Logger { return logger.Test(t) })
}

func TestApp_Lifecycle(t *testing.T) {
	t.Parallel()

	relay := testnode.Substrate(t, "Paseo Testnet")
	relay.SetBest(77)
	hub := testnode.Substrate(t, "Paseo Asset Hub")

	path := writeManifest(t, &config.Manifest{
		DefaultChain: "hub",
		Chains: []config.ChainSpec{
			{ID: "hub", Family: "substrate", Endpoint: hub.URL, DisplayName: "Paseo Asset Hub", Testnet: true},
			{ID: "relay", Family: "substrate", Endpoint: relay.URL, DisplayName: "Paseo Relay Chain", Testnet: true, GenesisHash: testnode.SubstrateGenesis},
		},
	})

	reg := prometheus.NewRegistry()
	var (
		facade *connection.Facade
		keys   app.Keys
	)
	fxApp := fxtest.New(t,
		fx.Supply(testSettings(t, path)),
		fx.Provide(func() prometheus.Registerer { return reg }),
		app.Module,
		testLogger(t),
		fx.Populate(&facade, &keys),
	)
	fxApp.RequireStart()

	// Starting activates the default chain.
	require.NoError(t, facade.Wait(t.Context()))
	assert.Equal(t, chain.ChainID("hub"), facade.ActiveChainID())
	assert.True(t, facade.IsConnected("hub"))

	require.NoError(t, facade.Activate("relay"))
	require.NoError(t, facade.Wait(t.Context()))

	client, err := connection.HandleFor(facade, keys.Substrate["relay"])
	require.NoError(t, err)
	assert.Equal(t, "Paseo Testnet", client.ChainName())

	best, err := client.BestBlockNumber(t.Context())
	require.NoError(t, err)
	assert.Equal(t, uint64(77), best)

	n, err := testutil.GatherAndCount(reg, "chainconn_connect_attempts_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	fxApp.RequireStop()

	_, err = connection.HandleFor(facade, keys.Substrate["relay"])
	require.ErrorIs(t, err, connection.ErrNotReady)
	require.ErrorIs(t, facade.Activate("relay"), connection.ErrClosed)
}

func TestApp_DevChain(t *testing.T) {
	t.Parallel()

	node := testnode.Substrate(t, "Development")
	path := writeManifest(t, &config.Manifest{
		DefaultChain: "prod",
		DevChain:     "dev",
		Chains: []config.ChainSpec{
			{ID: "prod", Family: "substrate", Endpoint: "ws://127.0.0.1:1"},
			{ID: "dev", Family: "substrate", Endpoint: node.URL},
		},
	})
	settings := testSettings(t, path)
	settings.Registry.Dev = true

	var m *connection.Manager
	fxApp := app.New(settings, testLogger(t), fx.Populate(&m))
	require.NoError(t, fxApp.Err())

	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()
	require.NoError(t, fxApp.Start(ctx))
	require.NoError(t, m.Wait(ctx))

	assert.Equal(t, chain.ChainID("dev"), m.ActiveChain())
	assert.Equal(t, connection.StatusConnected, m.StatusOf("dev"))
	assert.Equal(t, connection.StatusIdle, m.StatusOf("prod"))

	require.NoError(t, fxApp.Stop(ctx))
}

func TestApp_InvalidManifest(t *testing.T) {
	t.Parallel()

	path := writeManifest(t, &config.Manifest{
		DefaultChain: "x",
		Chains:       []config.ChainSpec{{ID: "x", Family: "cosmos", Endpoint: "http://localhost"}},
	})

	fxApp := app.New(testSettings(t, path), testLogger(t))
	require.ErrorContains(t, fxApp.Err(), `unsupported family "cosmos"`)
}

func TestBuildRegistry(t *testing.T) {
	t.Parallel()

	m := &config.Manifest{
		DefaultChain: "paseo",
		Chains: []config.ChainSpec{
			{ID: "paseo", Family: substrate.Family, Endpoint: "wss://sys.ibp.network/paseo", DisplayName: "Paseo"},
			{ID: "sepolia", Family: chainsel.FamilyEVM, Endpoint: "https://rpc.sepolia.org", ChainSelector: chainsel.ETHEREUM_TESTNET_SEPOLIA.Selector, Testnet: true},
			{ID: "solana-devnet", Family: chainsel.FamilySolana, Endpoint: "https://api.devnet.solana.com", Testnet: true},
			{ID: "aptos", Family: chainsel.FamilyAptos, Endpoint: "https://api.mainnet.aptoslabs.com/v1", ChainSelector: chainsel.APTOS_MAINNET.Selector},
		},
	}

	reg, keys, err := app.BuildRegistry(m, chain.DefaultDialConfig(), logger.Test(t))
	require.NoError(t, err)

	assert.Equal(t, []chain.ChainID{"paseo", "sepolia", "solana-devnet", "aptos"}, reg.IDs())
	assert.Equal(t, []chain.ChainID{"sepolia", "solana-devnet"}, reg.Testnets())
	assert.Contains(t, keys.Substrate, chain.ChainID("paseo"))
	assert.Contains(t, keys.EVM, chain.ChainID("sepolia"))
	assert.Contains(t, keys.Solana, chain.ChainID("solana-devnet"))
	assert.Contains(t, keys.Aptos, chain.ChainID("aptos"))

	entry, err := reg.Lookup("sepolia")
	require.NoError(t, err)
	assert.Equal(t, chainsel.FamilyEVM, entry.Family())
	assert.Equal(t, chainsel.ETHEREUM_TESTNET_SEPOLIA.Name, entry.DisplayName)

	t.Run("selector of another family", func(t *testing.T) {
		t.Parallel()

		bad := &config.Manifest{
			DefaultChain: "x",
			Chains: []config.ChainSpec{
				{ID: "x", Family: chainsel.FamilyEVM, Endpoint: "http://localhost", ChainSelector: chainsel.APTOS_MAINNET.Selector},
			},
		}
		_, _, err := app.BuildRegistry(bad, chain.DefaultDialConfig(), logger.Nop())
		require.ErrorContains(t, err, "belongs to family")
	})

	t.Run("default manifest", func(t *testing.T) {
		t.Parallel()

		reg, keys, err := app.BuildRegistry(config.DefaultManifest(), chain.DefaultDialConfig(), logger.Nop())
		require.NoError(t, err)
		assert.Equal(t, chain.ChainID("paseo_asset_hub"), reg.DefaultChain())
		assert.Len(t, keys.Substrate, 2)
	})
}

func TestRun(t *testing.T) {
	t.Parallel()

	node := testnode.Substrate(t, "Paseo Asset Hub")
	path := writeManifest(t, &config.Manifest{
		DefaultChain: "hub",
		Chains: []config.ChainSpec{
			{ID: "hub", Family: "substrate", Endpoint: node.URL},
			{ID: "down", Family: "substrate", Endpoint: "http://127.0.0.1:1"},
		},
	})
	settings := testSettings(t, path)

	t.Run("without auto connect", func(t *testing.T) {
		t.Parallel()

		var kept *connection.Facade
		err := app.Run(t.Context(), settings, func(ctx context.Context, f *connection.Facade, keys app.Keys) error {
			kept = f
			assert.Equal(t, connection.StatusIdle, f.StatusOf("hub"))
			assert.Len(t, keys.Substrate, 2)

			require.NoError(t, f.Activate("hub"))
			require.NoError(t, f.Wait(ctx))
			assert.True(t, f.IsConnected("hub"))

			return nil
		}, app.WithoutAutoConnect(), testLogger(t))
		require.NoError(t, err)

		// Stopping the application closes the manager.
		require.ErrorIs(t, kept.Activate("hub"), connection.ErrClosed)
	})

	t.Run("auto connect", func(t *testing.T) {
		t.Parallel()

		err := app.Run(t.Context(), settings, func(ctx context.Context, f *connection.Facade, _ app.Keys) error {
			require.NoError(t, f.Wait(ctx))
			assert.True(t, f.IsConnected("hub"))

			return nil
		}, testLogger(t))
		require.NoError(t, err)
	})

	t.Run("callback error", func(t *testing.T) {
		t.Parallel()

		want := errors.New("boom")
		err := app.Run(t.Context(), settings, func(context.Context, *connection.Facade, app.Keys) error {
			return want
		}, app.WithoutAutoConnect(), testLogger(t))
		require.ErrorIs(t, err, want)
	})

	t.Run("invalid settings", func(t *testing.T) {
		t.Parallel()

		bad := testSettings(t, filepath.Join(t.TempDir(), "missing.yml"))
		err := app.Run(t.Context(), bad, func(context.Context, *connection.Facade, app.Keys) error {
			t.Fatal("callback must not run")
			return nil
		}, testLogger(t))
		require.ErrorContains(t, err, "failed to read registry manifest")
	})
}
