package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/patrickwarner/adsimulator/internal/config"
	"github.com/patrickwarner/adsimulator/internal/observability"
)

const serviceName = "adsimulator-mcp"

func newMCPServer(tools *SimulatorTools) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "adsimulator",
		Version: "1.0.0",
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "calculate_impression_share",
		Description: "Estimate search impression share, lost share and industry benchmark for a reporting period",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"your_impressions": map[string]interface{}{
					"type":        "integer",
					"minimum":     0,
					"description": "Impressions served in the period",
				},
				"your_budget": map[string]interface{}{
					"type":        "number",
					"description": "Budget for the period, must be positive",
				},
				"total_spend": map[string]interface{}{
					"type":        "number",
					"minimum":     0,
					"description": "Amount spent in the period",
				},
				"avg_position": map[string]interface{}{
					"type":        "number",
					"description": "Average ad position, 1 is top",
				},
				"avg_quality_score": map[string]interface{}{
					"type":        "number",
					"minimum":     1,
					"maximum":     10,
					"description": "Average keyword quality score",
				},
				"competitor_count": map[string]interface{}{
					"type":        "integer",
					"minimum":     0,
					"description": "Number of competing advertisers",
				},
				"industry": map[string]interface{}{
					"type":        "string",
					"description": "Industry for benchmark comparison (optional, defaults to general)",
				},
			},
			"required": []string{"your_impressions", "your_budget", "total_spend", "avg_position", "avg_quality_score", "competitor_count"},
		},
	}, tools.CalculateImpressionShare)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "ad_strength",
		Description: "Rate a responsive search ad from its headlines and descriptions",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"headlines": map[string]interface{}{
					"type":        "array",
					"items":       map[string]interface{}{"type": "string"},
					"description": "Headline texts, up to 15",
				},
				"descriptions": map[string]interface{}{
					"type":        "array",
					"items":       map[string]interface{}{"type": "string"},
					"description": "Description texts, up to 4",
				},
			},
			"required": []string{"headlines", "descriptions"},
		},
	}, tools.AdStrength)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "simulate_scenario",
		Description: "Run a day-by-day campaign simulation from a YAML scenario and return the report",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"scenario": map[string]interface{}{
					"type":        "string",
					"description": "Scenario document in YAML: campaign, days, keywords, ads and targeting",
				},
				"days": map[string]interface{}{
					"type":        "integer",
					"minimum":     0,
					"description": "Override the number of simulated days (optional)",
				},
			},
			"required": []string{"scenario"},
		},
	}, tools.SimulateScenario)

	return server
}

func main() {
	// stdout carries the protocol, so logs go to stderr
	logger, err := observability.InitStderrLogger(serviceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg := config.Load()
	tools := &SimulatorTools{
		engines: cfg.Engines,
		metrics: observability.NewNoOpRegistry(),
		logger:  logger,
	}
	server := newMCPServer(tools)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var logBuffer bytes.Buffer
	transport := &mcp.LoggingTransport{
		Transport: &mcp.StdioTransport{},
		Writer:    &logBuffer,
	}

	logger.Info("MCP server running via stdio")
	if err := server.Run(ctx, transport); err != nil && ctx.Err() == nil {
		logger.Fatal("Server error", zap.Error(err), zap.String("mcp_logs", logBuffer.String()))
	}
}
