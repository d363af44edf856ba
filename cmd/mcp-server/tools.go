package main

import (
	"context"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/patrickwarner/adsimulator/internal/config"
	"github.com/patrickwarner/adsimulator/internal/impressionshare"
	"github.com/patrickwarner/adsimulator/internal/observability"
	"github.com/patrickwarner/adsimulator/internal/rsa"
	"github.com/patrickwarner/adsimulator/internal/simulation"
)

// simulationTimeout bounds one simulate_scenario call.
const simulationTimeout = 30 * time.Second

type ImpressionShareInput struct {
	Impressions     int     `json:"your_impressions"`
	Budget          float64 `json:"your_budget"`
	Spend           float64 `json:"total_spend"`
	AvgPosition     float64 `json:"avg_position"`
	AvgQualityScore float64 `json:"avg_quality_score"`
	CompetitorCount int     `json:"competitor_count"`
	Industry        string  `json:"industry,omitempty"`
}

type ImpressionShareOutput struct {
	Metrics         impressionshare.Metrics    `json:"metrics"`
	Recommendations []string                   `json:"recommendations"`
	Benchmark       impressionshare.Comparison `json:"benchmark"`
}

type AdStrengthInput struct {
	Headlines    []string `json:"headlines"`
	Descriptions []string `json:"descriptions"`
}

type AdStrengthOutput struct {
	AdStrength      rsa.Strength          `json:"ad_strength"`
	Breakdown       rsa.StrengthBreakdown `json:"breakdown"`
	Recommendations []string              `json:"recommendations"`
}

type SimulateInput struct {
	// Scenario is a YAML scenario document.
	Scenario string `json:"scenario"`
	// Days overrides the scenario's length when positive.
	Days int `json:"days,omitempty"`
}

// SimulatorTools exposes the engines as MCP tools. Every call builds fresh
// engines, so calls share no state.
type SimulatorTools struct {
	engines config.Engines
	metrics observability.MetricsRegistry
	logger  *zap.Logger
}

// CalculateImpressionShare implements the calculate_impression_share tool.
func (s *SimulatorTools) CalculateImpressionShare(ctx context.Context, req *mcp.CallToolRequest, input ImpressionShareInput) (*mcp.CallToolResult, ImpressionShareOutput, error) {
	calc := impressionshare.NewCalculator(s.engines.ImpressionShare(), s.logger, s.metrics)
	m, err := calc.Calculate(impressionshare.Input{
		Impressions:     input.Impressions,
		Budget:          input.Budget,
		Spend:           input.Spend,
		AvgPosition:     input.AvgPosition,
		AvgQualityScore: input.AvgQualityScore,
		CompetitorCount: input.CompetitorCount,
	})
	if err != nil {
		return nil, ImpressionShareOutput{}, err
	}
	industry := input.Industry
	if industry == "" {
		industry = impressionshare.DefaultIndustry
	}
	return nil, ImpressionShareOutput{
		Metrics:         m,
		Recommendations: impressionshare.Recommendations(m),
		Benchmark:       impressionshare.CompareToBenchmarks(m, industry),
	}, nil
}

// AdStrength implements the ad_strength tool.
func (s *SimulatorTools) AdStrength(ctx context.Context, req *mcp.CallToolRequest, input AdStrengthInput) (*mcp.CallToolResult, AdStrengthOutput, error) {
	ad := rsa.NewAd("", "", input.Headlines, input.Descriptions)
	engine := rsa.NewEngine(s.engines.RSA(), nil, s.logger, s.metrics)
	recs := rsa.Recommendations(ad)
	if recs == nil {
		recs = []string{}
	}
	return nil, AdStrengthOutput{
		AdStrength:      engine.CalculateAdStrength(ad),
		Breakdown:       rsa.AdStrengthScore(ad),
		Recommendations: recs,
	}, nil
}

// SimulateScenario implements the simulate_scenario tool.
func (s *SimulatorTools) SimulateScenario(ctx context.Context, req *mcp.CallToolRequest, input SimulateInput) (*mcp.CallToolResult, simulation.Report, error) {
	ctx, cancel := context.WithTimeout(ctx, simulationTimeout)
	defer cancel()

	sc, err := simulation.ParseScenario([]byte(input.Scenario))
	if err != nil {
		return nil, simulation.Report{}, err
	}
	if input.Days > 0 {
		sc.Days = input.Days
	}
	sim, err := simulation.New(sc, simulation.Options{
		Engines: s.engines,
		Logger:  s.logger,
		Metrics: s.metrics,
	})
	if err != nil {
		return nil, simulation.Report{}, err
	}
	report, err := sim.Run(ctx)
	if err != nil {
		return nil, simulation.Report{}, fmt.Errorf("simulate %s: %w", sc.Campaign.Name, err)
	}
	s.logger.Info("scenario simulated",
		zap.String("run_id", report.RunID),
		zap.String("campaign", report.Campaign),
		zap.Int("days", report.Days))
	return nil, *report, nil
}
