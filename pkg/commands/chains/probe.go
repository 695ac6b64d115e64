package chains

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"golang.org/x/sync/errgroup"

	"github.com/smartcontractkit/chainlink-connections/chain"
	"github.com/smartcontractkit/chainlink-connections/connection"
	"github.com/smartcontractkit/chainlink-connections/internal/app"
)

// ProbeResult is the outcome of probing one chain.
type ProbeResult struct {
	ID     chain.ChainID     `json:"id"`
	Name   string            `json:"name"`
	Family string            `json:"family"`
	Status connection.Status `json:"status"`
	Block  *uint64           `json:"block,omitempty"`
	Error  string            `json:"error,omitempty"`
}

type probeFlags struct {
	timeout time.Duration
	output  string
}

func newProbeCmd(cfg Config) *cobra.Command {
	var flags probeFlags

	cmd := &cobra.Command{
		Use:   "probe [chain-id...]",
		Short: "Connect to chains and report their status",
		Long: "Connects to the given chains, or every registered chain when none is given, and " +
			"reports whether each connection succeeded along with its best block.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProbe(cmd, cfg, flags, args)
		},
	}

	cmd.Flags().DurationVarP(&flags.timeout, "timeout", "t", 30*time.Second, "Overall probe timeout")
	cmd.Flags().StringVarP(&flags.output, "output", "o", "table", "Output format: table or json")

	return cmd
}

func runProbe(cmd *cobra.Command, cfg Config, flags probeFlags, args []string) error {
	if flags.output != "table" && flags.output != "json" {
		return fmt.Errorf("unsupported output format %q", flags.output)
	}

	settings, err := cfg.Deps.SettingsLoader()
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), flags.timeout)
	defer cancel()

	var results []ProbeResult
	opts := append([]fx.Option{app.WithoutAutoConnect()}, cfg.Deps.AppOptions...)
	err = cfg.Deps.AppRunner(ctx, settings, func(ctx context.Context, f *connection.Facade, _ app.Keys) error {
		var perr error
		results, perr = probe(ctx, f, args)

		return perr
	}, opts...)
	if err != nil {
		return err
	}

	if err := printProbe(cmd, flags.output, results); err != nil {
		return err
	}

	failed := 0
	for _, r := range results {
		if r.Status != connection.StatusConnected {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d chains failed to connect", failed, len(results))
	}

	return nil
}

// probe activates every id, waits for the attempts to settle and reads the best block of each
// connected chain.
func probe(ctx context.Context, f *connection.Facade, ids []string) ([]ProbeResult, error) {
	targets := f.ListChainIDs()
	if len(ids) > 0 {
		targets = make([]chain.ChainID, 0, len(ids))
		for _, id := range ids {
			targets = append(targets, chain.ChainID(id))
		}
	}

	var errs []error
	for _, id := range targets {
		if err := f.Activate(id); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	if err := f.Wait(ctx); err != nil {
		return nil, fmt.Errorf("chains did not settle: %w", err)
	}

	snap := f.Snapshot()
	results := make([]ProbeResult, len(targets))

	g, gctx := errgroup.WithContext(ctx)
	for i, id := range targets {
		entry, err := f.Entry(id)
		if err != nil {
			return nil, err
		}
		results[i] = ProbeResult{
			ID:     id,
			Name:   entry.DisplayName,
			Family: entry.Family(),
			Status: snap.StatusOf(id),
			Error:  snap.LastError(id),
		}
		if results[i].Status != connection.StatusConnected {
			continue
		}

		g.Go(func() error {
			if err := readBlock(gctx, f, &results[i]); err != nil {
				results[i].Error = err.Error()
			}

			return nil
		})
	}

	return results, g.Wait()
}

func readBlock(ctx context.Context, f *connection.Facade, r *ProbeResult) error {
	h, status := f.Handle(r.ID)
	if status != connection.StatusConnected {
		return fmt.Errorf("chain %s is %s", r.ID, status)
	}
	reader, ok := h.(chain.BlockNumberReader)
	if !ok {
		return nil
	}

	n, err := reader.BestBlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("failed to read best block: %w", err)
	}
	r.Block = &n

	return nil
}

func printProbe(cmd *cobra.Command, output string, results []ProbeResult) error {
	if output == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")

		return enc.Encode(results)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tFAMILY\tSTATUS\tBLOCK\tERROR")
	for _, r := range results {
		block := "-"
		if r.Block != nil {
			block = strconv.FormatUint(*r.Block, 10)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", r.ID, r.Family, r.Status, block, r.Error)
	}

	return w.Flush()
}
