package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	chainsel "github.com/smartcontractkit/chain-selectors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/smartcontractkit/chainlink-connections/chain"
)

var (
	// defaultSettings are the settings loaded with no file and no environment.
	defaultSettings = &Settings{
		Dial: DialSettings{
			Attempts:         1,
			Delay:            time.Second,
			Timeout:          10 * time.Second,
			HandshakeTimeout: 5 * time.Second,
		},
		Watch: WatchSettings{Interval: 6 * time.Second},
		Log:   LogSettings{Level: "info"},
	}

	// fileSettings are the settings loaded from testdata/settings.yml.
	fileSettings = &Settings{
		Registry:   RegistrySettings{ManifestPath: "./testdata/registry.yml", Dev: true},
		Connection: ConnectionSettings{ConnectTimeout: 30 * time.Second},
		Dial: DialSettings{
			Attempts:         3,
			Delay:            250 * time.Millisecond,
			Timeout:          5 * time.Second,
			HandshakeTimeout: 2 * time.Second,
		},
		Watch: WatchSettings{Interval: 12 * time.Second},
		Log:   LogSettings{Level: "debug", Development: true},
	}
)

func Test_Load(t *testing.T) {
	t.Parallel()

	invalid := filepath.Join(t.TempDir(), "invalid.yml")
	require.NoError(t, os.WriteFile(invalid, []byte("dial:\n  attempts: 0\n"), 0o600))

	tests := []struct {
		name     string
		givePath string
		want     *Settings
		wantErr  string
	}{
		{
			name:     "load from file",
			givePath: "./testdata/settings.yml",
			want:     fileSettings,
		},
		{
			name:     "missing file falls back to defaults",
			givePath: "./testdata/missing.yml",
			want:     defaultSettings,
		},
		{
			name:     "no file",
			givePath: "",
			want:     defaultSettings,
		},
		{
			name:     "invalid values",
			givePath: invalid,
			wantErr:  "dial.attempts must be at least 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := Load(tt.givePath)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.ErrorContains(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func Test_LoadEnv(t *testing.T) { //nolint:paralleltest // see comment in setupEnvVars
	setupEnvVars(t, map[string]string{
		"CHAINCONN_REGISTRY_MANIFEST_PATH":     "/etc/chains.yml",
		"CHAINCONN_DEV":                        "true",
		"CHAINCONN_CONNECTION_CONNECT_TIMEOUT": "45s",
		"CHAINCONN_DIAL_ATTEMPTS":              "2",
		"CHAINCONN_WATCH_INTERVAL":             "1s",
		"CHAINCONN_LOG_LEVEL":                  "warn",
	})

	got, err := LoadEnv()
	require.NoError(t, err)

	want := *defaultSettings
	want.Registry = RegistrySettings{ManifestPath: "/etc/chains.yml", Dev: true}
	want.Connection.ConnectTimeout = 45 * time.Second
	want.Dial.Attempts = 2
	want.Watch.Interval = time.Second
	want.Log.Level = "warn"
	assert.Equal(t, &want, got)
}

func Test_Load_EnvOverridesFile(t *testing.T) { //nolint:paralleltest // see comment in setupEnvVars
	setupEnvVars(t, map[string]string{"LOG_LEVEL": "error"})

	got, err := Load("./testdata/settings.yml")
	require.NoError(t, err)

	assert.Equal(t, "error", got.Log.Level)
	assert.Equal(t, uint(3), got.Dial.Attempts)
}

func TestSettings_Derived(t *testing.T) {
	t.Parallel()

	s := *fileSettings

	assert.Equal(t, chain.DialConfig{
		Attempts:         3,
		Delay:            250 * time.Millisecond,
		Timeout:          5 * time.Second,
		HandshakeTimeout: 2 * time.Second,
	}, s.DialConfig())

	lc, err := s.LoggerConfig()
	require.NoError(t, err)
	assert.Equal(t, zapcore.DebugLevel, lc.Level)
	assert.True(t, lc.Development)

	s.Log.Level = "chatty"
	_, err = s.LoggerConfig()
	require.ErrorContains(t, err, "invalid log level")
}

func TestParseManifest(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		give    string
		wantErr string
	}{
		{
			name:    "malformed yaml",
			give:    "chains: [",
			wantErr: "failed to decode registry manifest",
		},
		{
			name:    "no chains",
			give:    "default_chain: a\n",
			wantErr: "at least one chain is required",
		},
		{
			name:    "missing fields",
			give:    "default_chain: a\nchains:\n  - id: a\n",
			wantErr: "chain 0: family is required",
		},
		{
			name:    "duplicate id",
			give:    "default_chain: a\nchains:\n  - {id: a, family: evm, endpoint: x}\n  - {id: a, family: evm, endpoint: y}\n",
			wantErr: `chain "a": duplicate id`,
		},
		{
			name:    "unknown default",
			give:    "default_chain: b\nchains:\n  - {id: a, family: evm, endpoint: x}\n",
			wantErr: `default_chain "b" is not listed in chains`,
		},
		{
			name:    "unknown dev chain",
			give:    "default_chain: a\ndev_chain: c\nchains:\n  - {id: a, family: evm, endpoint: x}\n",
			wantErr: `dev_chain "c" is not listed in chains`,
		},
		{
			name: "valid",
			give: "default_chain: a\nchains:\n  - {id: a, family: evm, endpoint: x}\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := ParseManifest([]byte(tt.give))
			if tt.wantErr != "" {
				require.ErrorContains(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestLoadManifest(t *testing.T) {
	t.Parallel()

	m, err := LoadManifest("./testdata/registry.yml")
	require.NoError(t, err)

	assert.Equal(t, chain.Defaults{Default: "sepolia", Dev: "local"}, m.Defaults())
	require.Len(t, m.Chains, 2)

	assert.Equal(t, chain.ChainInfo{
		ID:          "sepolia",
		Endpoint:    "https://rpc.sepolia.org",
		DisplayName: "Sepolia",
		IsTestnet:   true,
		Selector:    chainsel.ETHEREUM_TESTNET_SEPOLIA.Selector,
	}, m.Chains[0].Info())
	assert.Equal(t, "0x91b171bb158e2d3848fa23a9f1c25182fb8e20313b2c1eb49219da7a70ce90c3", m.Chains[1].GenesisHash)

	b, err := yaml.Marshal(m)
	require.NoError(t, err)
	again, err := ParseManifest(b)
	require.NoError(t, err)
	assert.Equal(t, m, again)

	_, err = LoadManifest("./testdata/missing.yml")
	require.ErrorContains(t, err, "failed to read registry manifest")
}

func TestDefaultManifest(t *testing.T) {
	t.Parallel()

	m := DefaultManifest()

	assert.Equal(t, "paseo_asset_hub", m.DefaultChain)
	assert.Equal(t, "paseo_asset_hub", m.DevChain)
	require.Len(t, m.Chains, 2)
	assert.Equal(t, "wss://sys.ibp.network/asset-hub-paseo", m.Chains[0].Endpoint)
	assert.Equal(t, "Paseo Relay Chain", m.Chains[1].DisplayName)
	for _, c := range m.Chains {
		assert.Equal(t, "substrate", c.Family)
		assert.True(t, c.Testnet)
	}

	got, err := ManifestFor("")
	require.NoError(t, err)
	assert.Equal(t, m, got)
}

// setupEnvVars sets up the environment variables for the test.
//
// CAUTION: Because this function uses t.Setenv which affects the entire process, tests which call
// this function cannot be run in parallel.
func setupEnvVars(t *testing.T, envVars map[string]string) {
	t.Helper()

	for key, value := range envVars {
		t.Setenv(key, value)
	}
}
