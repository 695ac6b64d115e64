// Package config loads the run settings and the chain registry manifest.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"time"

	"github.com/spf13/viper"

	"github.com/smartcontractkit/chainlink-connections/blockwatch"
	"github.com/smartcontractkit/chainlink-connections/chain"
	"github.com/smartcontractkit/chainlink-connections/pkg/logger"
)

type RegistrySettings struct {
	ManifestPath string `mapstructure:"manifest_path" yaml:"manifest_path"` // Path to a registry manifest. Empty uses the built in registry.
	Dev          bool   `mapstructure:"dev" yaml:"dev"`                     // Start on the dev chain instead of the default chain.
}

type ConnectionSettings struct {
	ConnectTimeout time.Duration `mapstructure:"connect_timeout" yaml:"connect_timeout"` // Bound on one connection attempt. Zero disables it.
}

type DialSettings struct {
	Attempts         uint          `mapstructure:"attempts" yaml:"attempts"`                   // Dial attempts per connection, including the first.
	Delay            time.Duration `mapstructure:"delay" yaml:"delay"`                         // Delay between dial attempts.
	Timeout          time.Duration `mapstructure:"timeout" yaml:"timeout"`                     // Bound on one dial attempt.
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout" yaml:"handshake_timeout"` // Bound on the websocket handshake.
}

type WatchSettings struct {
	Interval time.Duration `mapstructure:"interval" yaml:"interval"` // Block polling interval.
}

type LogSettings struct {
	Level       string `mapstructure:"level" yaml:"level"`             // debug, info, warn or error.
	Development bool   `mapstructure:"development" yaml:"development"` // Human friendly console output.
}

type Settings struct {
	Registry   RegistrySettings   `mapstructure:"registry" yaml:"registry"`
	Connection ConnectionSettings `mapstructure:"connection" yaml:"connection"`
	Dial       DialSettings       `mapstructure:"dial" yaml:"dial"`
	Watch      WatchSettings      `mapstructure:"watch" yaml:"watch"`
	Log        LogSettings        `mapstructure:"log" yaml:"log"`
}

// Validate checks the settings for values the components would reject.
func (s *Settings) Validate() error {
	var errs []error

	if s.Connection.ConnectTimeout < 0 {
		errs = append(errs, errors.New("connection.connect_timeout must not be negative"))
	}
	if s.Dial.Attempts == 0 {
		errs = append(errs, errors.New("dial.attempts must be at least 1"))
	}
	if s.Dial.Timeout <= 0 {
		errs = append(errs, errors.New("dial.timeout must be positive"))
	}
	if s.Watch.Interval <= 0 {
		errs = append(errs, errors.New("watch.interval must be positive"))
	}
	if _, err := logger.ParseLevel(s.Log.Level); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// DialConfig returns the dial policy handed to the chain descriptors.
func (s *Settings) DialConfig() chain.DialConfig {
	return chain.DialConfig{
		Attempts:         s.Dial.Attempts,
		Delay:            s.Dial.Delay,
		Timeout:          s.Dial.Timeout,
		HandshakeTimeout: s.Dial.HandshakeTimeout,
	}.WithDefaults()
}

// LoggerConfig returns the logger configuration.
func (s *Settings) LoggerConfig() (logger.Config, error) {
	lvl, err := logger.ParseLevel(s.Log.Level)
	if err != nil {
		return logger.Config{}, err
	}

	return logger.Config{Level: lvl, Development: s.Log.Development}, nil
}

// Load reads the settings file at filePath, if it exists, overlaid with environment variables
// and defaults. An empty filePath reads the environment only.
func Load(filePath string) (*Settings, error) {
	v := newViper()

	if filePath != "" {
		v.SetConfigFile(filePath)
		if _, err := os.Stat(filePath); !errors.Is(err, fs.ErrNotExist) {
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read settings file %s: %w", filePath, err)
			}
		}
	}

	return unmarshal(v)
}

// LoadEnv reads the settings from environment variables and defaults only.
func LoadEnv() (*Settings, error) {
	return Load("")
}

func newViper() *viper.Viper {
	v := viper.New()
	for key, val := range defaults {
		v.SetDefault(key, val)
	}

	return v
}

func unmarshal(v *viper.Viper) (*Settings, error) {
	if err := bindEnvs(v); err != nil {
		return nil, err
	}

	cfg := &Settings{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode settings: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}

	return cfg, nil
}

var (
	defaults = map[string]any{
		"registry.manifest_path":     "",
		"registry.dev":               false,
		"connection.connect_timeout": time.Duration(0),
		"dial.attempts":              chain.DefaultDialAttempts,
		"dial.delay":                 chain.DefaultDialDelay,
		"dial.timeout":               chain.DefaultDialTimeout,
		"dial.handshake_timeout":     chain.DefaultDialHandshakeTimeout,
		"watch.interval":             blockwatch.DefaultInterval,
		"log.level":                  "info",
		"log.development":            false,
	}

	envBindings = map[string][]string{
		"registry.manifest_path":     {"CHAINCONN_REGISTRY_MANIFEST_PATH", "CHAINCONN_REGISTRY"},
		"registry.dev":               {"CHAINCONN_REGISTRY_DEV", "CHAINCONN_DEV"},
		"connection.connect_timeout": {"CHAINCONN_CONNECTION_CONNECT_TIMEOUT", "CHAINCONN_CONNECT_TIMEOUT"},
		"dial.attempts":              {"CHAINCONN_DIAL_ATTEMPTS"},
		"dial.delay":                 {"CHAINCONN_DIAL_DELAY"},
		"dial.timeout":               {"CHAINCONN_DIAL_TIMEOUT"},
		"dial.handshake_timeout":     {"CHAINCONN_DIAL_HANDSHAKE_TIMEOUT"},
		"watch.interval":             {"CHAINCONN_WATCH_INTERVAL"},
		"log.level":                  {"CHAINCONN_LOG_LEVEL", "LOG_LEVEL"},
		"log.development":            {"CHAINCONN_LOG_DEVELOPMENT"},
	}
)

func bindEnvs(v *viper.Viper) error {
	for key, envs := range envBindings {
		inputs := slices.Insert(envs, 0, key)

		if err := v.BindEnv(inputs...); err != nil {
			return err
		}
	}

	return nil
}
