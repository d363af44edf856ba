package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/patrickwarner/adsimulator/internal/simulation"
)

type validateResult struct {
	File     string `json:"file"`
	Campaign string `json:"campaign,omitempty"`
	Keywords int    `json:"keywords,omitempty"`
	Ads      int    `json:"ads,omitempty"`
	Days     int    `json:"days,omitempty"`
	Seed     uint32 `json:"seed,omitempty"`
	Error    string `json:"error,omitempty"`
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <scenario.yaml>...",
		Short: "Check scenario files without running them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			results := make([]validateResult, 0, len(args))
			failed := 0
			for _, path := range args {
				sc, err := simulation.LoadScenario(path)
				if err != nil {
					failed++
					results = append(results, validateResult{File: path, Error: err.Error()})
					continue
				}
				results = append(results, validateResult{
					File:     path,
					Campaign: sc.Campaign.Name,
					Keywords: len(sc.Keywords),
					Ads:      len(sc.Ads),
					Days:     sc.Days,
					Seed:     sc.DeterministicSeed(),
				})
			}

			out := cmd.OutOrStdout()
			if jsonOut {
				if err := writeJSON(out, results); err != nil {
					return err
				}
			} else {
				for _, r := range results {
					if r.Error != "" {
						fmt.Fprintf(out, "FAIL %s: %s\n", r.File, r.Error)
						continue
					}
					fmt.Fprintf(out, "ok   %s: %q, %d keywords, %d ads, %d days, seed %d\n",
						r.File, r.Campaign, r.Keywords, r.Ads, r.Days, r.Seed)
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d scenarios invalid", failed, len(args))
			}
			return nil
		},
	}
}
