package substrate_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartcontractkit/chainlink-connections/chain"
	"github.com/smartcontractkit/chainlink-connections/chain/substrate"
	"github.com/smartcontractkit/chainlink-connections/internal/testnode"
	"github.com/smartcontractkit/chainlink-connections/pkg/logger"
)

func fastDial() chain.DialConfig {
	return chain.DialConfig{Attempts: 1, Delay: time.Millisecond, Timeout: 2 * time.Second}
}

func TestDescriptor_Open(t *testing.T) {
	t.Parallel()

	node := testnode.Substrate(t, "Paseo Testnet")
	node.SetBest(4_321)

	d := substrate.NewDescriptor(substrate.WithDialConfig(fastDial()), substrate.WithLogger(logger.Test(t)))
	assert.Equal(t, substrate.Family, d.Family())

	client, err := d.Open(t.Context(), node.URL)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, client.Close()) })

	assert.Equal(t, "Paseo Testnet", client.ChainName())

	n, err := client.BestBlockNumber(t.Context())
	require.NoError(t, err)
	assert.Equal(t, uint64(4_321), n)

	h, err := client.Header(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "0x10e1", h.Number)

	v, err := client.RuntimeVersion(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "asset-hub-paseo", v.SpecName)
	assert.Equal(t, uint32(15), v.TransactionVersion)
}

func TestDescriptor_Open_GenesisHash(t *testing.T) {
	t.Parallel()

	node := testnode.Substrate(t, "Paseo Testnet")

	t.Run("matching genesis connects", func(t *testing.T) {
		t.Parallel()

		d := substrate.NewDescriptor(substrate.WithDialConfig(fastDial()), substrate.WithGenesisHash(testnode.SubstrateGenesis))
		client, err := d.Open(t.Context(), node.URL)
		require.NoError(t, err)
		require.NoError(t, client.Close())
	})

	t.Run("mismatching genesis fails", func(t *testing.T) {
		t.Parallel()

		d := substrate.NewDescriptor(substrate.WithDialConfig(fastDial()), substrate.WithGenesisHash("0xdeadbeef"))
		_, err := d.Open(t.Context(), node.URL)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "genesis hash mismatch")
	})
}

func TestDescriptor_Open_Unreachable(t *testing.T) {
	t.Parallel()

	node := testnode.Substrate(t, "Paseo Testnet")
	url := node.URL
	node.Close()

	d := substrate.NewDescriptor(substrate.WithDialConfig(fastDial()))
	_, err := d.Open(t.Context(), url)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "system_chain")
}
