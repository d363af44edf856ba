package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/patrickwarner/adsimulator/internal/db"
)

type runSummary struct {
	RunID       string  `json:"run_id"`
	Days        int     `json:"days"`
	Impressions int64   `json:"impressions"`
	Clicks      int64   `json:"clicks"`
	Conversions int64   `json:"conversions"`
	Cost        float64 `json:"cost"`
	FinalQS     float64 `json:"final_avg_qs"`
}

func newHistoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history <campaign>",
		Short: "List recorded runs of a campaign",
		Long: `History reads the run store (--store, or RUN_STORE_* settings) and
prints one line per recorded run of the campaign, oldest first.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if !cfg.RunStoreEnabled {
				return fmt.Errorf("no run store configured: pass --store or set RUN_STORE_ENABLED")
			}

			ctx := cmd.Context()
			pg, err := db.OpenRunStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer pg.Close()

			ids, err := pg.RunIDs(ctx, args[0])
			if err != nil {
				return err
			}
			summaries := make([]runSummary, 0, len(ids))
			for _, id := range ids {
				rows, err := pg.LoadDailyResults(ctx, id)
				if err != nil {
					return err
				}
				summaries = append(summaries, summarise(id, rows))
			}

			out := cmd.OutOrStdout()
			if jsonOut {
				return writeJSON(out, summaries)
			}
			if len(summaries) == 0 {
				fmt.Fprintf(out, "no runs recorded for %q\n", args[0])
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "RUN\tDAYS\tIMPR\tCLICKS\tCONV\tCOST\tFINAL QS")
			for _, s := range summaries {
				fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%.2f\t%.2f\n",
					s.RunID, s.Days, s.Impressions, s.Clicks, s.Conversions, s.Cost, s.FinalQS)
			}
			return tw.Flush()
		},
	}
}

// summarise folds a run's daily rows. Rows arrive ordered by day.
func summarise(runID string, rows []db.DailyResult) runSummary {
	s := runSummary{RunID: runID}
	var lastDay, lastCount int
	var lastQS float64
	for _, r := range rows {
		s.Impressions += r.Impressions
		s.Clicks += r.Clicks
		s.Conversions += r.Conversions
		s.Cost += r.Cost
		if r.Day != lastDay {
			lastDay, lastCount, lastQS = r.Day, 0, 0
		}
		lastCount++
		lastQS += r.QualityScore
	}
	s.Days = lastDay
	if lastCount > 0 {
		s.FinalQS = lastQS / float64(lastCount)
	}
	return s
}
