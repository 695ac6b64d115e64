// Package chains provides the CLI commands to inspect and probe the chain registry.
package chains

import (
	"github.com/spf13/cobra"

	"github.com/smartcontractkit/chainlink-connections/pkg/logger"
)

// Config holds the configuration of the chains commands.
type Config struct {
	Logger logger.Logger
	Deps   *Deps
}

func (c *Config) deps() {
	if c.Logger == nil {
		c.Logger = logger.Nop()
	}
	if c.Deps == nil {
		c.Deps = &Deps{}
	}
	c.Deps.applyDefaults()
}

// NewCommand creates the chains command with all subcommands.
//
// Usage:
//
//	rootCmd.AddCommand(chains.NewCommand(chains.Config{
//	    Logger: lggr,
//	}))
func NewCommand(cfg Config) *cobra.Command {
	cfg.deps()

	cmd := &cobra.Command{
		Use:   "chains",
		Short: "Chain registry commands",
	}

	cmd.AddCommand(
		newListCmd(cfg),
		newProbeCmd(cfg),
	)

	return cmd
}
