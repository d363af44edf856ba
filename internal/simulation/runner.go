package simulation

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// RunAll simulates independent scenarios with at most workers running at
// once. Each scenario gets its own engines, so runs share no state. Reports
// come back in scenario order. The first failure cancels runs that have not
// finished.
func RunAll(ctx context.Context, scenarios []Scenario, workers int, opts Options) ([]*Report, error) {
	if workers < 1 {
		workers = 1
	}
	sims := make([]*Simulator, len(scenarios))
	for i, sc := range scenarios {
		o := opts
		// a fixed run id would collide across scenarios
		o.RunID = ""
		sim, err := New(sc, o)
		if err != nil {
			return nil, fmt.Errorf("scenario %d (%s): %w", i, sc.Campaign.Name, err)
		}
		sims[i] = sim
	}

	reports := make([]*Report, len(scenarios))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, sim := range sims {
		g.Go(func() error {
			report, err := sim.Run(ctx)
			if err != nil {
				return fmt.Errorf("scenario %d (%s): %w", i, sim.scenario.Campaign.Name, err)
			}
			reports[i] = report
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return reports, nil
}
