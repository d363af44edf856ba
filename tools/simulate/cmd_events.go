package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/patrickwarner/adsimulator/internal/analytics"
	"github.com/patrickwarner/adsimulator/internal/observability"
)

func newEventsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events <run-id>",
		Short: "Print the analytics events recorded for a run",
		Long: `Events reads the simulation_events table in ClickHouse. The DSN
defaults to CLICKHOUSE_DSN.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			dsn, _ := cmd.Flags().GetString("dsn")
			eventType, _ := cmd.Flags().GetString("type")

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if dsn == "" {
				dsn = cfg.ClickHouseDSN
			}

			ctx := cmd.Context()
			ch, err := analytics.InitClickHouse(ctx, dsn, 2, 1, cfg.CHConnMaxLifetime, cfg.CHConnMaxIdleTime, observability.NewNoOpRegistry())
			if err != nil {
				return fmt.Errorf("connect clickhouse: %w", err)
			}
			defer ch.Close()

			events, err := ch.EventsByRun(ctx, args[0])
			if err != nil {
				return err
			}
			events = filterEvents(events, eventType)

			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), events)
			}
			return writeEvents(cmd.OutOrStdout(), events)
		},
	}
	cmd.Flags().String("dsn", "", "ClickHouse DSN (default CLICKHOUSE_DSN)")
	cmd.Flags().String("type", "", "Only print events of this type (qs_update, rsa_serve, impression_share)")
	return cmd
}

func filterEvents(events []analytics.Event, eventType string) []analytics.Event {
	if eventType == "" {
		return events
	}
	out := make([]analytics.Event, 0, len(events))
	for _, ev := range events {
		if ev.EventType == eventType {
			out = append(out, ev)
		}
	}
	return out
}

func writeEvents(w io.Writer, events []analytics.Event) error {
	if len(events) == 0 {
		_, err := fmt.Fprintln(w, "no events")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DAY\tTYPE\tSUBJECT\tIMPR\tCLICKS\tCOST\tQS\tIS%")
	for _, ev := range events {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%d\t%.2f\t%.1f\t%.1f\n",
			ev.Day, ev.EventType, subject(ev), ev.Impressions, ev.Clicks, ev.Cost, ev.QualityScore, ev.SearchIS)
	}
	return tw.Flush()
}

// subject names what an event is about.
func subject(ev analytics.Event) string {
	switch {
	case ev.AdID != "":
		return ev.AdID + "/" + ev.HeadlineID + "/" + ev.DescriptionID
	case ev.KeywordID != "":
		return ev.KeywordID
	default:
		return ev.Campaign
	}
}
