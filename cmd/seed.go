package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/centrallog/internal/ingest"
	"github.com/telhawk-systems/centrallog/internal/seed"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Generate sample events for every source and send them to the server",
	Example: `  centrallog seed --count 500 --tenants acme,globex --spread 24h
  centrallog seed --count 0 --scenario brute-force --scenario recovery
  centrallog seed --count 20 --dry-run > sample.ndjson`,
	RunE: func(cmd *cobra.Command, args []string) error {
		count, _ := cmd.Flags().GetInt("count")
		seedValue, _ := cmd.Flags().GetInt64("seed")
		tenants, _ := cmd.Flags().GetStringSlice("tenants")
		spread, _ := cmd.Flags().GetDuration("spread")
		scenarios, _ := cmd.Flags().GetStringSlice("scenario")
		batchSize, _ := cmd.Flags().GetInt("batch-size")
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		if batchSize < 1 {
			return fmt.Errorf("--batch-size must be at least 1")
		}

		events, err := generateSeed(seed.New(seedValue, tenants...).WithSpread(spread), count, scenarios)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			return fmt.Errorf("nothing to generate; set --count or --scenario")
		}

		if dryRun {
			enc := json.NewEncoder(cmd.OutOrStdout())
			for _, ev := range events {
				if err := enc.Encode(ev); err != nil {
					return err
				}
			}
			return nil
		}

		p, err := printerFor(cmd)
		if err != nil {
			return err
		}
		c := clientFor(cmd)
		total := &ingest.BatchResult{}
		for start := 0; start < len(events); start += batchSize {
			res, err := c.IngestBatch(cmd.Context(), events[start:min(start+batchSize, len(events))])
			if err != nil {
				return fmt.Errorf("failed to send batch at offset %d: %w", start, err)
			}
			mergeBatch(total, res, start)
		}

		if p.Structured() {
			return p.Data(total)
		}
		printBatch(p, total)
		return nil
	},
}

// generateSeed returns count background events followed by the events of
// each scenario in order. Scenarios run after the background traffic so
// their timestamps are the newest.
func generateSeed(g *seed.Generator, count int, scenarios []string) ([]map[string]any, error) {
	events := g.Events(count)
	for _, name := range scenarios {
		evs, err := g.Scenario(strings.TrimSpace(name))
		if err != nil {
			return nil, err
		}
		events = append(events, evs...)
	}
	return events, nil
}

func init() {
	rootCmd.AddCommand(seedCmd)
	seedCmd.Flags().Int("count", 100, "background events to generate")
	seedCmd.Flags().Int64("seed", 0, "random seed, 0 for a random one")
	seedCmd.Flags().StringSlice("tenants", []string{"acme", "globex"}, "tenant names to spread events over")
	seedCmd.Flags().Duration("spread", 0, "spread background timestamps over this window before now")
	seedCmd.Flags().StringSlice("scenario", nil, "attack scenario to append: "+strings.Join(seed.Scenarios, ", "))
	seedCmd.Flags().Int("batch-size", 500, "events per batch request")
	seedCmd.Flags().Bool("dry-run", false, "print NDJSON instead of sending")
}
