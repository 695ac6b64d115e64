// Command chainctl lists, probes and watches the chains of a registry manifest.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/smartcontractkit/chainlink-connections/config"
	"github.com/smartcontractkit/chainlink-connections/pkg/commands"
	"github.com/smartcontractkit/chainlink-connections/pkg/logger"
)

func main() {
	lggr, err := logger.New()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = newRootCmd(lggr).ExecuteContext(ctx)
	stop()
	_ = lggr.Sync()

	if err != nil {
		os.Exit(1)
	}
}

// newRootCmd wires the command groups. The --config flag is read when a subcommand loads its
// settings; the application logger follows the log settings, lggr only reports CLI level events.
func newRootCmd(lggr logger.Logger) *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:          "chainctl",
		Short:        "Connect to and inspect registered chains",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to a settings file (yaml)")

	cmds := commands.New(lggr, func() (*config.Settings, error) {
		return config.Load(configPath)
	})
	root.AddCommand(cmds.Chains(), cmds.Watch())

	return root
}
