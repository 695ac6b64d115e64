// Package commands provides the CLI command groups of chainctl.
//
// There are two ways to use commands from this package:
//
// 1. Via the Commands factory (recommended for most use cases):
//
//	cmds := commands.New(lggr, loadSettings)
//	rootCmd.AddCommand(
//	    cmds.Chains(),
//	    cmds.Watch(),
//	)
//
// 2. Via direct package imports (for advanced DI/testing):
//
//	import "github.com/smartcontractkit/chainlink-connections/pkg/commands/chains"
//
//	rootCmd.AddCommand(chains.NewCommand(chains.Config{
//	    Logger: lggr,
//	    Deps:   &chains.Deps{...}, // inject test doubles
//	}))
package commands

import (
	"github.com/spf13/cobra"

	"github.com/smartcontractkit/chainlink-connections/config"
	"github.com/smartcontractkit/chainlink-connections/pkg/commands/chains"
	"github.com/smartcontractkit/chainlink-connections/pkg/commands/watch"
	"github.com/smartcontractkit/chainlink-connections/pkg/logger"
)

// SettingsLoader returns the run settings.
type SettingsLoader func() (*config.Settings, error)

// Commands provides a factory for creating CLI commands with shared configuration.
// This allows setting the logger and the settings source once and reusing them across all
// commands.
type Commands struct {
	lggr         logger.Logger
	loadSettings SettingsLoader
}

// New creates a new Commands factory. A nil loadSettings reads the settings from the environment.
func New(lggr logger.Logger, loadSettings SettingsLoader) *Commands {
	if loadSettings == nil {
		loadSettings = config.LoadEnv
	}

	return &Commands{lggr: lggr, loadSettings: loadSettings}
}

// Chains creates the chains command group to list and probe registered chains.
func (c *Commands) Chains() *cobra.Command {
	return chains.NewCommand(chains.Config{
		Logger: c.lggr,
		Deps:   &chains.Deps{SettingsLoader: chains.SettingsLoaderFunc(c.loadSettings)},
	})
}

// Watch creates the watch command that follows the best block of a chain.
func (c *Commands) Watch() *cobra.Command {
	return watch.NewCommand(watch.Config{
		Logger:         c.lggr,
		SettingsLoader: c.loadSettings,
	})
}
