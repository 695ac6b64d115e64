// Package watch provides the CLI command that follows the best block of a chain.
package watch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"github.com/smartcontractkit/chainlink-connections/blockwatch"
	"github.com/smartcontractkit/chainlink-connections/chain"
	"github.com/smartcontractkit/chainlink-connections/config"
	"github.com/smartcontractkit/chainlink-connections/connection"
	"github.com/smartcontractkit/chainlink-connections/internal/app"
	"github.com/smartcontractkit/chainlink-connections/pkg/logger"
)

// Config holds the configuration of the watch command.
type Config struct {
	Logger logger.Logger

	// SettingsLoader loads the run settings. Default: config.LoadEnv
	SettingsLoader func() (*config.Settings, error)
	// Clock drives the polling. Default: the wall clock.
	Clock clock.Clock
	// AppOptions are appended to the application the command starts.
	AppOptions []fx.Option
}

func (c *Config) applyDefaults() {
	if c.Logger == nil {
		c.Logger = logger.Nop()
	}
	if c.SettingsLoader == nil {
		c.SettingsLoader = config.LoadEnv
	}
	if c.Clock == nil {
		c.Clock = clock.New()
	}
}

type flags struct {
	chain    string
	count    int
	interval time.Duration
}

// NewCommand creates the watch command.
//
// Usage:
//
//	rootCmd.AddCommand(watch.NewCommand(watch.Config{Logger: lggr}))
func NewCommand(cfg Config) *cobra.Command {
	cfg.applyDefaults()

	var f flags
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print the best block of a chain as it advances",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, cfg, f)
		},
	}

	cmd.Flags().StringVarP(&f.chain, "chain", "c", "", "Chain to watch (default: the registry default chain)")
	cmd.Flags().IntVarP(&f.count, "count", "n", 0, "Stop after this many blocks (0 watches until interrupted)")
	cmd.Flags().DurationVarP(&f.interval, "interval", "i", 0, "Polling interval (default: watch.interval setting)")

	return cmd
}

func run(cmd *cobra.Command, cfg Config, f flags) error {
	if f.count < 0 {
		return errors.New("count must not be negative")
	}

	settings, err := cfg.SettingsLoader()
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}
	interval := settings.Watch.Interval
	if f.interval > 0 {
		interval = f.interval
	}

	opts := append([]fx.Option{app.WithoutAutoConnect()}, cfg.AppOptions...)

	return app.Run(cmd.Context(), settings, func(ctx context.Context, facade *connection.Facade, _ app.Keys) error {
		id := chain.ChainID(f.chain)
		if id == "" {
			id = facade.ActiveChainID()
		}
		if err := connect(ctx, facade, id); err != nil {
			return err
		}

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		seen := 0
		w := &blockwatch.Watcher{
			Source:   facade,
			Interval: interval,
			Clock:    cfg.Clock,
			Logger:   cfg.Logger,
			OnBlock: func(u blockwatch.BlockUpdate) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s #%d\n", u.ChainID, u.Number)
				seen++
				if f.count > 0 && seen >= f.count {
					cancel()
				}
			},
		}

		return w.Run(ctx)
	}, opts...)
}

// connect activates id and waits for the attempt to settle.
func connect(ctx context.Context, facade *connection.Facade, id chain.ChainID) error {
	if err := facade.Activate(id); err != nil {
		return err
	}
	if err := facade.Wait(ctx); err != nil {
		return err
	}

	if status := facade.StatusOf(id); status != connection.StatusConnected {
		return fmt.Errorf("failed to connect to %s: %s", id, facade.LastError(id))
	}

	return nil
}
