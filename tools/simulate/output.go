package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/patrickwarner/adsimulator/internal/simulation"
)

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// writeReport prints a human readable summary of r.
func writeReport(w io.Writer, r *simulation.Report) error {
	fmt.Fprintf(w, "Campaign: %s (%s)\n", r.Campaign, r.Industry)
	fmt.Fprintf(w, "Run: %s  seed %d  %d days\n\n", r.RunID, r.Seed, r.Days)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "Day\tImpr\tClicks\tConv\tCost\tAvgPos\tIS%\tBudget\t")
	for _, d := range r.Daily {
		limited := ""
		if d.BudgetLimited {
			limited = "capped"
		}
		fmt.Fprintf(tw, "%d\t%d\t%d\t%d\t%.2f\t%.2f\t%.2f\t%s\t\n",
			d.Day, d.Impressions, d.Clicks, d.Conversions, d.Cost, d.AvgPosition,
			d.ImpressionShare.SearchImpressionShare, limited)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	t := r.Totals
	fmt.Fprintf(w, "\nTotals: %d impressions, %d clicks, %d conversions, $%.2f spent\n",
		t.Impressions, t.Clicks, t.Conversions, t.Cost)
	fmt.Fprintf(w, "CTR %.2f%%  CVR %.2f%%  avg CPC $%.2f\n", t.CTR*100, t.CVR*100, t.AvgCPC)

	fmt.Fprintln(w, "\nQuality scores:")
	for _, k := range r.Keywords {
		fmt.Fprintf(w, "  %-24s %.1f -> %.1f  %s (%s)\n",
			k.Text, k.Trend.InitialQS, k.Trend.CurrentQS, k.Trend.Direction, k.Trend.Performance)
		for _, rec := range k.Recommendations {
			fmt.Fprintf(w, "    %s\n", rec)
		}
	}

	if len(r.Ads) > 0 {
		fmt.Fprintln(w, "\nAds:")
		for _, a := range r.Ads {
			fmt.Fprintf(w, "  %-24s strength %s (%d)  %s  %d impressions\n",
				a.AdID, a.Insights.AdStrength, a.Insights.StrengthScore, a.Insights.LearningStatus, a.Insights.TotalImpressions)
			if len(a.Insights.HeadlinePerformance) > 0 {
				best := a.Insights.HeadlinePerformance[0]
				fmt.Fprintf(w, "    best headline: %q CTR %.2f%%\n", best.Text, best.CTR*100)
			}
		}
	}

	is := r.ImpressionShare
	fmt.Fprintf(w, "\nImpression share: %.2f%%  top %.2f%%  abs top %.2f%%  lost budget %.2f%%  lost rank %.2f%%\n",
		is.SearchImpressionShare, is.SearchTopImpressionShare, is.SearchAbsoluteTopIS, is.SearchLostISBudget, is.SearchLostISRank)
	fmt.Fprintf(w, "Benchmark: %s\n", r.Benchmark.Message)
	for _, rec := range r.ImpressionShareAdvice {
		fmt.Fprintf(w, "  %s\n", rec)
	}
	if r.SinkErrors > 0 {
		fmt.Fprintf(w, "\nwarning: %d sink writes failed, see logs\n", r.SinkErrors)
	}
	return nil
}
