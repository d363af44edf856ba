package main

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/patrickwarner/adsimulator/internal/config"
	"github.com/patrickwarner/adsimulator/internal/impressionshare"
	"github.com/patrickwarner/adsimulator/internal/observability"
	"github.com/patrickwarner/adsimulator/internal/rsa"
	"github.com/patrickwarner/adsimulator/internal/simulation"
)

func newTestTools() *SimulatorTools {
	return &SimulatorTools{
		engines: config.DefaultEngines(),
		metrics: observability.NewNoOpRegistry(),
		logger:  zap.NewNop(),
	}
}

func TestNewMCPServerRegistersTools(t *testing.T) {
	assert.NotPanics(t, func() { newMCPServer(newTestTools()) })
}

func TestCalculateImpressionShareTool(t *testing.T) {
	tools := newTestTools()
	_, out, err := tools.CalculateImpressionShare(context.Background(), nil, ImpressionShareInput{
		Impressions:     1000,
		Budget:          100,
		Spend:           100,
		AvgPosition:     1.5,
		AvgQualityScore: 7,
		CompetitorCount: 3,
		Industry:        "retail",
	})
	require.NoError(t, err)
	assert.Greater(t, out.Metrics.SearchImpressionShare, 0.0)
	assert.NotEmpty(t, out.Recommendations)
	assert.Equal(t, "retail", out.Benchmark.Industry)

	_, _, err = tools.CalculateImpressionShare(context.Background(), nil, ImpressionShareInput{Budget: 0})
	assert.True(t, errors.Is(err, impressionshare.ErrInvalidInput))
}

func TestAdStrengthTool(t *testing.T) {
	tools := newTestTools()
	_, out, err := tools.AdStrength(context.Background(), nil, AdStrengthInput{
		Headlines:    []string{"Only Headline"},
		Descriptions: []string{"Only description."},
	})
	require.NoError(t, err)
	assert.Equal(t, rsa.StrengthPoor, out.AdStrength)
	assert.Equal(t, out.Breakdown.Total, rsa.AdStrengthScore(rsa.NewAd("", "", []string{"Only Headline"}, []string{"Only description."})).Total)
	assert.NotEmpty(t, out.Recommendations)
}

func TestSimulateScenarioTool(t *testing.T) {
	tools := newTestTools()
	scenario := `
campaign:
  name: mcp
  daily_budget: 50
keywords:
  - text: hiking boots
    daily_searches: 100
`
	_, report, err := tools.SimulateScenario(context.Background(), nil, SimulateInput{Scenario: scenario, Days: 2})
	require.NoError(t, err)
	assert.Equal(t, "mcp", report.Campaign)
	assert.Equal(t, 2, report.Days)
	assert.Len(t, report.Daily, 2)

	_, _, err = tools.SimulateScenario(context.Background(), nil, SimulateInput{Scenario: "keywords: [{text: a}]"})
	assert.True(t, errors.Is(err, simulation.ErrInvalidScenario))
}
