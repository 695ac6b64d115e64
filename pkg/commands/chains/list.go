package chains

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/smartcontractkit/chainlink-connections/chain"
	"github.com/smartcontractkit/chainlink-connections/config"
	"github.com/smartcontractkit/chainlink-connections/internal/app"
)

type listFlags struct {
	testnet bool
	mainnet bool
}

func newListCmd(cfg Config) *cobra.Command {
	var flags listFlags

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the registered chains",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runList(cmd, cfg, flags)
		},
	}

	cmd.Flags().BoolVar(&flags.testnet, "testnet", false, "Only list testnets")
	cmd.Flags().BoolVar(&flags.mainnet, "mainnet", false, "Only list mainnets")
	cmd.MarkFlagsMutuallyExclusive("testnet", "mainnet")

	return cmd
}

func runList(cmd *cobra.Command, cfg Config, flags listFlags) error {
	settings, err := cfg.Deps.SettingsLoader()
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}
	manifest, err := config.ManifestFor(settings.Registry.ManifestPath)
	if err != nil {
		return err
	}
	reg, _, err := app.BuildRegistry(manifest, settings.DialConfig(), cfg.Logger)
	if err != nil {
		return err
	}

	ids := reg.IDs()
	switch {
	case flags.testnet:
		ids = reg.Testnets()
	case flags.mainnet:
		ids = reg.Mainnets()
	}

	active := reg.DefaultFor(settings.Registry.Dev)

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "\tID\tNAME\tFAMILY\tNETWORK\tENDPOINT")
	for _, id := range ids {
		e, lerr := reg.Lookup(id)
		if lerr != nil {
			err = errors.Join(err, lerr)
			continue
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", marker(id, active), e.ID, e.DisplayName, e.Family(), network(e), e.Endpoint)
	}

	return errors.Join(err, w.Flush())
}

func marker(id, active chain.ChainID) string {
	if id == active {
		return "*"
	}

	return ""
}

func network(e chain.Entry) string {
	if e.IsTestnet {
		return "testnet"
	}

	return "mainnet"
}
