package simulation

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunAllKeepsScenarioOrder(t *testing.T) {
	var scenarios []Scenario
	for _, name := range []string{"alpha", "beta", "gamma", "delta"} {
		sc := testScenario()
		sc.Campaign.Name = name
		sc.Days = 3
		scenarios = append(scenarios, sc)
	}

	reports, err := RunAll(context.Background(), scenarios, 2, Options{RunID: "ignored"})
	require.NoError(t, err)
	require.Len(t, reports, 4)

	ids := map[string]bool{}
	for i, r := range reports {
		assert.Equal(t, scenarios[i].Campaign.Name, r.Campaign)
		assert.Len(t, r.Daily, 3)
		assert.NotEqual(t, "ignored", r.RunID)
		ids[r.RunID] = true
	}
	assert.Len(t, ids, 4, "every run gets its own id")
}

func TestRunAllMatchesSequentialRuns(t *testing.T) {
	sc := testScenario()
	sc.Days = 5

	sim, err := New(sc, Options{})
	require.NoError(t, err)
	sequential, err := sim.Run(context.Background())
	require.NoError(t, err)

	reports, err := RunAll(context.Background(), []Scenario{sc, sc, sc}, 3, Options{})
	require.NoError(t, err)
	for _, r := range reports {
		assert.Equal(t, sequential.Daily, r.Daily)
	}
}

func TestRunAllInvalidScenario(t *testing.T) {
	bad := testScenario()
	bad.Campaign.DailyBudget = 0

	_, err := RunAll(context.Background(), []Scenario{testScenario(), bad}, 2, Options{})
	assert.True(t, errors.Is(err, ErrInvalidScenario))
}

func TestRunAllCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := RunAll(ctx, []Scenario{testScenario()}, 0, Options{})
	assert.True(t, errors.Is(err, context.Canceled))
}
